/*
 * Copyright (c) 2013 IBM Corp.
 *
 * All rights reserved. This program and the accompanying materials
 * are made available under the terms of the Eclipse Public License v1.0
 * which accompanies this distribution, and is available at
 * http://www.eclipse.org/legal/epl-v10.html
 */

package mqtt

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// workerPool runs MessageHandler callbacks (when Order is false) off of
// a bounded number of goroutines so a slow handler
// cannot stall the receiver loop indefinitely while still capping total
// concurrency (§5's "optional shared worker pool").
type workerPool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func newWorkerPool(concurrency int64) *workerPool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &workerPool{sem: semaphore.NewWeighted(concurrency)}
}

func (p *workerPool) submit(work func()) {
	_ = p.sem.Acquire(context.Background(), 1)
	p.wg.Add(1)
	go func() {
		defer p.sem.Release(1)
		defer p.wg.Done()
		work()
	}()
}

func (p *workerPool) wait() {
	p.wg.Wait()
}

package mqtt

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPoolRunsSubmittedWork(t *testing.T) {
	p := newWorkerPool(2)
	var count int32
	for i := 0; i < 5; i++ {
		p.submit(func() { atomic.AddInt32(&count, 1) })
	}
	p.wait()
	assert.Equal(t, int32(5), count)
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	p := newWorkerPool(1)
	var running int32
	var maxSeen int32
	for i := 0; i < 4; i++ {
		p.submit(func() {
			cur := atomic.AddInt32(&running, 1)
			for {
				seen := atomic.LoadInt32(&maxSeen)
				if cur <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
		})
	}
	p.wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxSeen))
}

func TestNewWorkerPoolDefaultsToOneOnNonPositive(t *testing.T) {
	p := newWorkerPool(0)
	assert.NotNil(t, p.sem)
	assert.True(t, p.sem.TryAcquire(1))
	assert.False(t, p.sem.TryAcquire(1))
}

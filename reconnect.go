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
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanternmq/mqttgo/packets"
)

// reconnectController drives the exponential-backoff retry loop used
// after an unplanned connection loss (§4.6). It is decoupled from the
// client's CONNECTED/DISCONNECTED bookkeeping on purpose: state it holds
// (the current backoff delay) is instance-local, so two clients never
// share or contend on one resting-state timer (§9's note on the
// suspicious static lock the teacher's own code carried).
type reconnectController struct {
	c *client

	mu    sync.Mutex
	delay time.Duration

	kick chan struct{}
}

const reconnectInitialDelay = time.Second

func newReconnectController(c *client) *reconnectController {
	return &reconnectController{
		c:     c,
		delay: reconnectInitialDelay,
		kick:  make(chan struct{}, 1),
	}
}

// forceNow wakes a sleeping backoff wait immediately, for Client.Reconnect.
func (r *reconnectController) forceNow() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// restingStateReset returns the backoff delay to its initial value, called
// once a reconnect attempt actually succeeds so the next unrelated outage
// starts from a fresh 1s delay rather than wherever the previous outage's
// backoff had climbed to.
func (r *reconnectController) restingStateReset() {
	r.mu.Lock()
	r.delay = reconnectInitialDelay
	r.mu.Unlock()
}

// nextDelay returns the delay to sleep before the next attempt and
// doubles it (capped at MaxReconnectInterval) for the attempt after that.
func (r *reconnectController) nextDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.delay
	maxDelay := r.c.options.MaxReconnectInterval
	if maxDelay <= 0 {
		maxDelay = 128 * time.Second
	}
	r.delay *= 2
	if r.delay > maxDelay {
		r.delay = maxDelay
	}
	return d
}

// run is the reconnect loop itself: sleep, attempt, repeat until either a
// connection is re-established or the client leaves the RECONNECTING
// state (a user Disconnect/Close won out the race).
func (r *reconnectController) run() {
	c := r.c
	DEBUG.Println(RCN, "reconnect loop starting")
	for {
		if atomic.LoadUint32(&c.status) != reconnecting {
			DEBUG.Println(RCN, "reconnect loop exiting, client left RECONNECTING")
			return
		}

		d := r.nextDelay()
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-r.kick:
			timer.Stop()
		}

		if atomic.LoadUint32(&c.status) != reconnecting {
			return
		}

		if c.options.OnReconnecting != nil {
			c.options.OnReconnecting(c, &c.options)
		}

		conn, uri, _, err := c.attemptConnection()
		if err != nil {
			WARN.Println(RCN, "reconnect attempt failed:", err)
			continue
		}

		c.currentServerURI = uri
		if !c.options.CleanSession {
			c.reserveStoredPublishIDs()
		}
		c.startCommsWorkers(conn)
		if c.options.CleanSession {
			c.persist.Reset()
		} else {
			c.resume(c.options.ResumeSubs)
		}
		r.restingStateReset()
		if c.buffer != nil {
			c.buffer.drain(func(pub *packets.PublishPacket, t *PublishToken) {
				c.sendPublish(pub, t)
			})
		}
		if c.options.OnConnect != nil {
			go c.options.OnConnect(c)
		}
		DEBUG.Println(RCN, "reconnected")
		return
	}
}

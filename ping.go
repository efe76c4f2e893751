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
	"net"
	"sync/atomic"
	"time"

	"github.com/lanternmq/mqttgo/packets"
)

// keepalive runs for the lifetime of one connection, observing the last
// time a packet was sent and received. When the gap since the last send
// reaches KeepAlive and no PINGREQ is currently outstanding, it sends one
// and starts a response timer; if PINGRESP doesn't arrive within that
// window it declares the connection lost with CLIENT_TIMEOUT (§4.5).
func keepalive(c *client, conn net.Conn) {
	defer c.workers.Done()
	DEBUG.Println(PNG, "keepalive starting")

	interval := c.options.KeepAlive
	if interval <= 0 {
		return
	}
	checkEvery := interval / 4
	if checkEvery <= 0 {
		checkEvery = 500 * time.Millisecond
	}
	ticker := time.NewTicker(checkEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			DEBUG.Println(PNG, "keepalive stopped")
			return
		case <-ticker.C:
			c.checkPing()
		}
	}
}

// checkPing evaluates whether a PINGREQ is due or a response is overdue.
// It is exported (in spirit — the exported surface is Client.CheckPing)
// so a host that disables the internal ticker can drive keepalive itself
// on platforms where background timers are undesirable (§4.5).
func (c *client) checkPing() {
	last := c.lastSent.Load().(time.Time)
	interval := c.options.KeepAlive

	if atomic.LoadInt32(&c.pingOutstanding) == 1 {
		if time.Since(last) >= c.options.PingTimeout {
			ERROR.Println(PNG, "ping response not received, timing out")
			go c.internalConnLost(NewError(CodeClientTimeout))
		}
		return
	}

	if time.Since(last) >= interval {
		DEBUG.Println(PNG, "keepalive sending PINGREQ")
		atomic.StoreInt32(&c.pingOutstanding, 1)
		c.lastSent.Store(time.Now())
		ping := packets.NewControlPacket(packets.Pingreq)
		select {
		case c.oboundP <- &PacketAndToken{p: ping, t: nil}:
		case <-c.stop:
		}
	}
}

// CheckPing exposes checkPing to callers who want to drive keepalive from
// their own scheduler instead of the client's internal ticker.
func (c *client) CheckPing() {
	c.checkPing()
}

// pingRespReceived is called by the receiver loop when a PINGRESP arrives.
func (c *client) pingRespReceived() {
	atomic.StoreInt32(&c.pingOutstanding, 0)
}

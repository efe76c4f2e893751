/*
 * Copyright (c) 2013 IBM Corp.
 *
 * All rights reserved. This program and the accompanying materials
 * are made available under the terms of the Eclipse Public License v1.0
 * which accompanies this distribution, and is available at
 * http://www.eclipse.org/legal/epl-v10.html
 *
 * Contributors:
 *    Seth Hoenig
 *    Allan Stockdill-Mander
 *    Mike Robertson
 */

package mqtt

import (
	"bufio"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/lanternmq/mqttgo/packets"
)

// connectMQTT writes cp and reads the CONNACK that should follow,
// bounding the whole handshake by timeout.
func connectMQTT(conn net.Conn, cp *packets.ConnectPacket, timeout time.Duration) (byte, bool, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	conn.SetDeadline(time.Now().Add(timeout))
	defer conn.SetDeadline(time.Time{})

	if err := cp.Write(conn); err != nil {
		return 0, false, err
	}
	cpResp, err := packets.ReadPacket(conn)
	if err != nil {
		return 0, false, err
	}
	ack, ok := cpResp.(*packets.ConnackPacket)
	if !ok {
		return 0, false, fmt.Errorf("expected CONNACK, got %s", cpResp)
	}
	return ack.ReturnCode, ack.SessionPresent, nil
}

// startCommsWorkers brings up the sender, receiver and keepalive
// goroutines for conn and flips the client into CONNECTED.
func (c *client) startCommsWorkers(conn net.Conn) {
	c.conn = conn
	c.stop = make(chan struct{})
	atomic.StoreUint32(&c.status, connected)
	atomic.StoreInt32(&c.commsRunning, 1)
	atomic.StoreInt32(&c.pingOutstanding, 0)
	c.lastSent.Store(time.Now())
	c.lastReceived.Store(time.Now())

	c.workers.Add(3)
	go keepalive(c, conn)
	go c.sender(conn)
	go c.receiver(conn)
}

// stopCommsWorkers tears down the current connection's goroutines
// exactly once. It returns false if comms were already stopped, so
// callers racing a connection-loss report against a user Disconnect
// don't run teardown twice.
func (c *client) stopCommsWorkers() bool {
	if !atomic.CompareAndSwapInt32(&c.commsRunning, 1, 0) {
		return false
	}
	close(c.stop)
	if c.conn != nil {
		c.conn.Close()
	}
	c.workers.Wait()
	return true
}

// sender drains c.oboundP, writing each packet to conn in turn. Sends are
// serialized here because MQTT is a single connection protocol: one
// writer at a time keeps the wire well formed even though Publish,
// Subscribe, Unsubscribe, the keepalive ticker and the receiver's
// protocol-level acks all originate from different goroutines.
func (c *client) sender(conn net.Conn) {
	defer c.workers.Done()
	DEBUG.Println(NET, "sender starting")
	writer := bufio.NewWriter(conn)

	for {
		select {
		case <-c.stop:
			DEBUG.Println(NET, "sender stopped")
			return
		case pt := <-c.oboundP:
			if c.options.WriteTimeout > 0 {
				conn.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
			}
			err := pt.p.Write(writer)
			if err == nil {
				err = writer.Flush()
			}
			if c.options.WriteTimeout > 0 {
				conn.SetWriteDeadline(time.Time{})
			}
			if err != nil {
				ERROR.Println(NET, "sender stopped with error:", err)
				go c.internalConnLost(wrapError(CodeWriteTimeout, err))
				return
			}
			c.lastSent.Store(time.Now())

			if _, isDisconnect := pt.p.(*packets.DisconnectPacket); isDisconnect {
				if pt.t != nil {
					pt.t.flowComplete()
				}
				DEBUG.Println(NET, "sender wrote DISCONNECT, stopping")
				return
			}
		}
	}
}

// receiver reads packets off conn until it errs or c.stop closes, driving
// every ack-phase transition of the in-flight engine (§4.3) and handing
// inbound PUBLISHes to the subscription dispatch table.
func (c *client) receiver(conn net.Conn) {
	defer c.workers.Done()
	DEBUG.Println(NET, "receiver starting")
	reader := bufio.NewReader(conn)

	for {
		cp, err := packets.ReadPacket(reader)
		if err != nil {
			select {
			case <-c.stop:
				DEBUG.Println(NET, "receiver stopped")
			default:
				ERROR.Println(NET, "receiver stopped with error:", err)
				go c.internalConnLost(err)
			}
			return
		}
		c.lastReceived.Store(time.Now())

		switch p := cp.(type) {
		case *packets.PingrespPacket:
			c.pingRespReceived()

		case *packets.PublishPacket:
			c.handleInboundPublish(p)

		case *packets.PubackPacket:
			c.completeOutbound(p.MessageID)

		case *packets.PubrecPacket:
			c.handlePubrec(p.MessageID)

		case *packets.PubrelPacket:
			c.completeInboundQos2(p.MessageID)

		case *packets.PubcompPacket:
			c.completeOutbound(p.MessageID)

		case *packets.SubackPacket:
			if token, ok := c.getToken(p.MessageID).(*SubscribeToken); ok {
				for i, rc := range p.ReturnCodes {
					if i < len(token.subs) {
						token.subResult[token.subs[i]] = rc
						if rc == packets.SubackFailure {
							WARN.Println(CLI, "subscription refused by broker:", token.subs[i])
							c.msgRouter.deleteRoute(stripSharedPrefix(token.subs[i]))
						}
					}
				}
				token.flowComplete()
			}
			c.freeID(p.MessageID)
			c.persist.Del(outboundSentKey(p.MessageID))

		case *packets.UnsubackPacket:
			c.getToken(p.MessageID).flowComplete()
			c.freeID(p.MessageID)
			c.persist.Del(outboundSentKey(p.MessageID))

		case *packets.DisconnectPacket:
			// A broker never legitimately sends DISCONNECT; treat it as a
			// protocol error rather than a silent hang.
			go c.internalConnLost(NewError(CodeProtocolError))
			return
		}

		select {
		case <-c.stop:
			DEBUG.Println(NET, "receiver stopped")
			return
		default:
		}
	}
}

// handleInboundPublish dispatches pub to the subscription table and, for
// QoS>0, sends or defers the local ack per ManualAcks (§4.8, §7). A QoS 2
// publish already on record (broker retransmit after a PUBREC it never
// saw acked) is never redispatched; only the PUBREC is resent.
func (c *client) handleInboundPublish(pub *packets.PublishPacket) {
	if pub.Qos == 2 {
		existing, err := c.persist.Get(inboundKey(pub.MessageID))
		if err != nil {
			ERROR.Println(NET, "failed to check inbound persistence:", err)
		}
		if existing != nil {
			c.messageArrivedComplete(pub.MessageID, pub.Qos)
			return
		}
		if err := persistInbound(c.persist, pub); err != nil {
			ERROR.Println(NET, "failed to persist inbound publish:", err)
		}
	}
	select {
	case c.msgRouter.messages <- pub:
	case <-c.stop:
		return
	}
	if !c.options.ManualAcks {
		c.messageArrivedComplete(pub.MessageID, pub.Qos)
	}
}

// completeOutbound finishes an outbound QoS 1 PUBLISH (on PUBACK) or the
// tail of an outbound QoS 2 PUBLISH (on PUBCOMP): frees the message id,
// releases the in-flight window slot, clears the persisted record, and
// completes the owning token.
func (c *client) completeOutbound(id uint16) {
	token := c.getToken(id)
	token.flowComplete()
	c.freeID(id)
	c.persist.Del(outboundSentKey(id))
	c.persist.Del(outboundPubcompKey(id))
	c.persist.Del(outboundPubrelKey(id))
	c.inflightSem.Release(1)
}

// handlePubrec advances an outbound QoS 2 publish from SENT to
// PUBREC_RECEIVED: re-key its persisted record and reply PUBREL. The
// token stays pending and the in-flight slot stays held until PUBCOMP.
func (c *client) handlePubrec(id uint16) {
	prel := packets.NewControlPacket(packets.Pubrel).(*packets.PubrelPacket)
	prel.MessageID = id
	if err := persistOutboundPubrec(c.persist, id, prel); err != nil {
		ERROR.Println(NET, "failed to persist pubrec phase transition:", err)
	}
	select {
	case c.oboundP <- &PacketAndToken{p: prel, t: nil}:
	case <-c.stop:
	}
}

// completeInboundQos2 finishes an inbound QoS 2 publish on arrival of the
// broker's PUBREL: clears the persisted record and replies PUBCOMP.
func (c *client) completeInboundQos2(id uint16) {
	c.persist.Del(inboundKey(id))
	pc := packets.NewControlPacket(packets.Pubcomp).(*packets.PubcompPacket)
	pc.MessageID = id
	select {
	case c.oboundP <- &PacketAndToken{p: pc, t: nil}:
	case <-c.stop:
	}
}

// messageArrivedComplete performs the local ack step a ManualAcks caller
// deferred via Message.Ack, or that automatic-ack mode performs itself
// right after handing a publish to the dispatch table.
func (c *client) messageArrivedComplete(id uint16, qos byte) error {
	switch qos {
	case 0:
		return nil
	case 1:
		pa := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
		pa.MessageID = id
		select {
		case c.oboundP <- &PacketAndToken{p: pa, t: nil}:
		case <-c.stop:
			return ErrNotConnected
		}
		return nil
	case 2:
		pr := packets.NewControlPacket(packets.Pubrec).(*packets.PubrecPacket)
		pr.MessageID = id
		select {
		case c.oboundP <- &PacketAndToken{p: pr, t: nil}:
		case <-c.stop:
			return ErrNotConnected
		}
		return nil
	}
	return fmt.Errorf("invalid qos %d", qos)
}

// MessageArrivedComplete is the exported surface of messageArrivedComplete,
// for callers that manage ManualAcks themselves rather than through
// Message.Ack.
func (c *client) MessageArrivedComplete(id uint16, qos byte) error {
	return c.messageArrivedComplete(id, qos)
}

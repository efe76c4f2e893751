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
	"bytes"
	"strings"

	"github.com/lanternmq/mqttgo/packets"
)

// Store defines the interface the in-flight engine uses to persist
// packets before they are written to the wire, so they can be replayed
// after a reconnect or application restart. Concrete backends (memory,
// file) live outside this interface's callers. Put/Get can fail (a full
// disk, a corrupt record); callers that persist before acting on the
// wire (§4.3 step 2) must surface that failure rather than assume success.
type Store interface {
	Open(clientID, serverURI string)
	Close()
	Put(key string, message packets.ControlPacket) error
	Get(key string) (packets.ControlPacket, error)
	All() []string
	Del(key string)
	Reset()
}

// Key prefixes, per the persistence provider's key convention.
const (
	prefixOutboundSent    = "s-"  // SENT, outbound QoS 1/2 awaiting first ack
	prefixOutboundPubcomp = "sc-" // PUBREC_RECEIVED, outbound QoS 2 awaiting PUBCOMP
	prefixOutboundPubrel  = "sb-" // PUBREL queued/sent, retransmitted on reconnect if unacked
	prefixInbound         = "r-"  // RECEIVED, inbound QoS 2 awaiting PUBREL
	prefixBuffer          = "b-"  // offline-buffered PUBLISH awaiting a connection to send on
)

func isKeyOutbound(key string) bool {
	return len(key) > 0 && key[0] == 's'
}

func isKeyInbound(key string) bool {
	return len(key) > 0 && key[0] == 'r'
}

func isKeyBuffer(key string) bool {
	return len(key) > 0 && key[0] == 'b'
}

func outboundSentKey(id uint16) string    { return keyWithID(prefixOutboundSent, id) }
func outboundPubcompKey(id uint16) string { return keyWithID(prefixOutboundPubcomp, id) }
func outboundPubrelKey(id uint16) string  { return keyWithID(prefixOutboundPubrel, id) }
func inboundKey(id uint16) string         { return keyWithID(prefixInbound, id) }
func bufferKey(seq int) string            { return prefixBuffer + itoa(seq) }

func bufferKeySeq(key string) int {
	return atoi(strings.TrimPrefix(key, prefixBuffer))
}

func keyWithID(prefix string, id uint16) string {
	var buf bytes.Buffer
	buf.WriteString(prefix)
	buf.WriteString(itoa(int(id)))
	return buf.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits [5]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

// atoi parses the leading run of decimal digits in s, stopping at the
// first non-digit. It is only ever handed this store's own generated
// keys, so a malformed suffix simply parses as far as it can.
func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// persistOutbound stores an outbound packet under the key appropriate to
// its current phase (send-before-write, §4.3).
func persistOutbound(s Store, packet packets.ControlPacket) error {
	switch p := packet.(type) {
	case *packets.SubscribePacket:
		return s.Put(outboundSentKey(p.MessageID), packet)
	case *packets.UnsubscribePacket:
		return s.Put(outboundSentKey(p.MessageID), packet)
	case *packets.PublishPacket:
		switch p.Qos {
		case 1, 2:
			return s.Put(outboundSentKey(p.MessageID), packet)
		}
	case *packets.PubrelPacket:
		return s.Put(outboundPubrelKey(p.MessageID), packet)
	}
	return nil
}

// persistOutboundPubrec moves an outbound QoS 2 record from SENT to
// PUBREC_RECEIVED phase on arrival of a PUBREC: it drops the "s-" record
// holding the publish and stores the PUBREL that phase transition
// triggers under both the "sc-" and "sb-" keys, so it can be
// retransmitted on reconnect if it goes unacked.
func persistOutboundPubrec(s Store, id uint16, pubrel *packets.PubrelPacket) error {
	s.Del(outboundSentKey(id))
	if err := s.Put(outboundPubcompKey(id), pubrel); err != nil {
		return err
	}
	return s.Put(outboundPubrelKey(id), pubrel)
}

// persistInbound stores an inbound QoS 2 publish awaiting PUBREL.
func persistInbound(s Store, packet packets.ControlPacket) error {
	if p, ok := packet.(*packets.PublishPacket); ok {
		return s.Put(inboundKey(p.MessageID), packet)
	}
	return nil
}

/*
 * Copyright (c) 2013 IBM Corp.
 *
 * All rights reserved. This program and the accompanying materials
 * are made available under the terms of the Eclipse Public License v1.0
 * which accompanies this distribution, and is available at
 * http://www.eclipse.org/legal/epl-v10.html
 */

package mqtt

import "github.com/lanternmq/mqttgo/packets"

// Message represents an inbound PUBLISH handed to application code by
// the subscription dispatch table.
type Message interface {
	Duplicate() bool
	Qos() byte
	Retained() bool
	Topic() string
	MessageID() uint16
	Payload() []byte
	// Ack sends the acknowledgement that automatic-ack mode would
	// otherwise have sent already: PUBACK for QoS 1, PUBREC for QoS 2.
	// The QoS 2 PUBCOMP is not deferred; it is sent as soon as the
	// broker's PUBREL arrives. Ack only needs calling when ManualAcks is
	// enabled.
	Ack()
}

type message struct {
	duplicate bool
	qos       byte
	retained  bool
	topic     string
	messageID uint16
	payload   []byte
	ack       func()
	acked     bool
}

func (m *message) Duplicate() bool    { return m.duplicate }
func (m *message) Qos() byte          { return m.qos }
func (m *message) Retained() bool     { return m.retained }
func (m *message) Topic() string      { return m.topic }
func (m *message) MessageID() uint16  { return m.messageID }
func (m *message) Payload() []byte    { return m.payload }

func (m *message) Ack() {
	if m.acked || m.ack == nil {
		return
	}
	m.acked = true
	m.ack()
}

func messageFromPublish(p *packets.PublishPacket, ack func()) *message {
	return &message{
		duplicate: p.Dup,
		qos:       p.Qos,
		retained:  p.Retain,
		topic:     p.TopicName,
		messageID: p.MessageID,
		payload:   p.Payload,
		ack:       ack,
	}
}

package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lanternmq/mqttgo/packets"
)

func TestMessageFromPublishCopiesFields(t *testing.T) {
	p := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	p.Dup = true
	p.Qos = 1
	p.Retain = true
	p.TopicName = "a/b"
	p.MessageID = 42
	p.Payload = []byte("hi")

	m := messageFromPublish(p, func() {})
	assert.True(t, m.Duplicate())
	assert.Equal(t, byte(1), m.Qos())
	assert.True(t, m.Retained())
	assert.Equal(t, "a/b", m.Topic())
	assert.Equal(t, uint16(42), m.MessageID())
	assert.Equal(t, []byte("hi"), m.Payload())
}

func TestMessageAckIsIdempotent(t *testing.T) {
	var calls int
	m := messageFromPublish(&packets.PublishPacket{}, func() { calls++ })
	m.Ack()
	m.Ack()
	assert.Equal(t, 1, calls)
}

func TestMessageAckNoopWithoutCallback(t *testing.T) {
	m := messageFromPublish(&packets.PublishPacket{}, nil)
	assert.NotPanics(t, func() { m.Ack() })
}

package packets

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, cp ControlPacket) ControlPacket {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, cp.Write(&buf))
	out, err := ReadPacket(&buf)
	require.NoError(t, err)
	return out
}

func TestConnectPacketRoundTrip(t *testing.T) {
	cp := NewControlPacket(Connect).(*ConnectPacket)
	cp.ProtocolName = "MQTT"
	cp.ProtocolVersion = 4
	cp.CleanSession = true
	cp.ClientIdentifier = "test-client"
	cp.Keepalive = 60
	cp.UsernameFlag = true
	cp.Username = "alice"
	cp.PasswordFlag = true
	cp.Password = []byte("hunter2")

	out := roundTrip(t, cp).(*ConnectPacket)
	assert.Equal(t, cp.ProtocolName, out.ProtocolName)
	assert.Equal(t, cp.ClientIdentifier, out.ClientIdentifier)
	assert.Equal(t, cp.Keepalive, out.Keepalive)
	assert.Equal(t, cp.Username, out.Username)
	assert.Equal(t, cp.Password, out.Password)
	assert.Equal(t, Accepted, int(cp.Validate()))
}

func TestConnectPacketValidate(t *testing.T) {
	cp := NewControlPacket(Connect).(*ConnectPacket)
	cp.ProtocolName = "MQTT"
	cp.ProtocolVersion = 4
	cp.CleanSession = false
	cp.ClientIdentifier = ""
	assert.Equal(t, byte(ErrRefusedIDRejected), cp.Validate())

	cp.ProtocolVersion = 9
	cp.ClientIdentifier = "x"
	assert.Equal(t, byte(ErrRefusedBadProtocolVersion), cp.Validate())
}

func TestConnackPacketRoundTrip(t *testing.T) {
	ca := NewControlPacket(Connack).(*ConnackPacket)
	ca.SessionPresent = true
	ca.ReturnCode = Accepted

	out := roundTrip(t, ca).(*ConnackPacket)
	assert.True(t, out.SessionPresent)
	assert.Equal(t, byte(Accepted), out.ReturnCode)
}

func TestPublishPacketRoundTripQoS(t *testing.T) {
	for _, qos := range []byte{0, 1, 2} {
		p := NewControlPacket(Publish).(*PublishPacket)
		p.Qos = qos
		p.TopicName = "a/b/c"
		p.Payload = []byte("hello world")
		if qos > 0 {
			p.MessageID = 42
		}

		out := roundTrip(t, p).(*PublishPacket)
		assert.Equal(t, p.TopicName, out.TopicName)
		assert.Equal(t, p.Payload, out.Payload)
		if qos > 0 {
			assert.Equal(t, p.MessageID, out.MessageID)
		}
	}
}

func TestPublishPacketCopyIsIndependent(t *testing.T) {
	p := NewControlPacket(Publish).(*PublishPacket)
	p.Qos = 1
	p.MessageID = 7
	p.TopicName = "x"
	p.Payload = []byte{1, 2, 3}

	dup := p.Copy()
	dup.Payload[0] = 99
	assert.Equal(t, byte(1), p.Payload[0])
	assert.Equal(t, p.MessageID, dup.MessageID)
}

func TestSimpleAckRoundTrip(t *testing.T) {
	types := []byte{Puback, Pubrec, Pubrel, Pubcomp, Unsuback}
	for _, pt := range types {
		cp := NewControlPacket(pt)
		switch p := cp.(type) {
		case *PubackPacket:
			p.MessageID = 5
		case *PubrecPacket:
			p.MessageID = 5
		case *PubrelPacket:
			p.MessageID = 5
		case *PubcompPacket:
			p.MessageID = 5
		case *UnsubackPacket:
			p.MessageID = 5
		}
		out := roundTrip(t, cp)
		assert.Equal(t, uint16(5), out.Details().MessageID)
	}
}

func TestSubscribeUnsubscribeRoundTrip(t *testing.T) {
	sub := NewControlPacket(Subscribe).(*SubscribePacket)
	sub.MessageID = 10
	sub.Topics = []string{"a/+", "b/#"}
	sub.Qoss = []byte{0, 1}

	out := roundTrip(t, sub).(*SubscribePacket)
	assert.Equal(t, sub.Topics, out.Topics)
	assert.Equal(t, sub.Qoss, out.Qoss)

	unsub := NewControlPacket(Unsubscribe).(*UnsubscribePacket)
	unsub.MessageID = 11
	unsub.Topics = []string{"a/+"}
	out2 := roundTrip(t, unsub).(*UnsubscribePacket)
	assert.Equal(t, unsub.Topics, out2.Topics)
}

func TestSubackRoundTrip(t *testing.T) {
	sa := NewControlPacket(Suback).(*SubackPacket)
	sa.MessageID = 20
	sa.ReturnCodes = []byte{0, 1, SubackFailure}

	out := roundTrip(t, sa).(*SubackPacket)
	assert.Equal(t, sa.ReturnCodes, out.ReturnCodes)
}

func TestPingAndDisconnectRoundTrip(t *testing.T) {
	_ = roundTrip(t, NewControlPacket(Pingreq))
	_ = roundTrip(t, NewControlPacket(Pingresp))
	_ = roundTrip(t, NewControlPacket(Disconnect))
}

func TestReadPacketRejectsOversizedRemainingLength(t *testing.T) {
	old := MaxRemainingLength
	MaxRemainingLength = 4
	defer func() { MaxRemainingLength = old }()

	p := NewControlPacket(Publish).(*PublishPacket)
	p.TopicName = "a/b/c/d/e/f"
	p.Payload = []byte("this payload is long enough to exceed the cap")

	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))
	_, err := ReadPacket(&buf)
	assert.Error(t, err)
}

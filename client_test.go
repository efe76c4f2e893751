package mqtt

import (
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternmq/mqttgo/packets"
)

// fakeBroker is a minimal, single-connection MQTT 3.1.1 broker used to
// drive the client core's sender/receiver loops end to end without a
// real broker dependency.
type fakeBroker struct {
	ln net.Listener

	mu       sync.Mutex
	received []packets.ControlPacket
	conn     net.Conn

	onSubscribe func(*packets.SubscribePacket, net.Conn)
}

func startFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	b := &fakeBroker{ln: ln}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		b.serve(conn)
	}()

	return b
}

func (b *fakeBroker) serve(conn net.Conn) {
	for {
		cp, err := packets.ReadPacket(conn)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.received = append(b.received, cp)
		b.mu.Unlock()

		switch p := cp.(type) {
		case *packets.ConnectPacket:
			ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
			ack.ReturnCode = packets.Accepted
			ack.Write(conn)
			_ = p
		case *packets.SubscribePacket:
			if b.onSubscribe != nil {
				b.onSubscribe(p, conn)
			}
			ack := packets.NewControlPacket(packets.Suback).(*packets.SubackPacket)
			ack.MessageID = p.MessageID
			ack.ReturnCodes = p.Qoss
			ack.Write(conn)
		case *packets.UnsubscribePacket:
			ack := packets.NewControlPacket(packets.Unsuback).(*packets.UnsubackPacket)
			ack.MessageID = p.MessageID
			ack.Write(conn)
		case *packets.PublishPacket:
			if p.Qos == 1 {
				ack := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
				ack.MessageID = p.MessageID
				ack.Write(conn)
			} else if p.Qos == 2 {
				rec := packets.NewControlPacket(packets.Pubrec).(*packets.PubrecPacket)
				rec.MessageID = p.MessageID
				rec.Write(conn)
			}
		case *packets.PubrelPacket:
			comp := packets.NewControlPacket(packets.Pubcomp).(*packets.PubcompPacket)
			comp.MessageID = p.MessageID
			comp.Write(conn)
		case *packets.PingreqPacket:
			packets.NewControlPacket(packets.Pingresp).Write(conn)
		case *packets.DisconnectPacket:
			return
		}
	}
}

func (b *fakeBroker) addr() string {
	return "tcp://" + b.ln.Addr().String()
}

func (b *fakeBroker) close() {
	b.ln.Close()
	b.mu.Lock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.mu.Unlock()
}

func newTestOptions(brokerAddr string) *ClientOptions {
	o := NewClientOptions()
	o.AddBroker(brokerAddr)
	o.ClientID = "test-client"
	o.AutoReconnect = false
	o.ConnectTimeout = 2 * time.Second
	o.KeepAlive = 0
	return o
}

func TestClientConnectAndDisconnect(t *testing.T) {
	broker := startFakeBroker(t)
	defer broker.close()

	c := NewClient(newTestOptions(broker.addr()))
	token := c.Connect()
	require.True(t, token.WaitTimeout(2*time.Second))
	require.NoError(t, token.Error())
	assert.True(t, c.IsConnected())
	assert.True(t, c.IsConnectionOpen())

	dtok := c.Disconnect(250)
	require.True(t, dtok.WaitTimeout(2*time.Second))
	assert.False(t, c.IsConnectionOpen())
}

func TestClientPublishQoS1(t *testing.T) {
	broker := startFakeBroker(t)
	defer broker.close()

	c := NewClient(newTestOptions(broker.addr()))
	require.True(t, c.Connect().WaitTimeout(2*time.Second))
	defer c.Disconnect(250)

	tok := c.Publish("a/b", 1, false, "hello")
	require.True(t, tok.WaitTimeout(2*time.Second))
	assert.NoError(t, tok.Error())
}

func TestClientPublishQoS2(t *testing.T) {
	broker := startFakeBroker(t)
	defer broker.close()

	c := NewClient(newTestOptions(broker.addr()))
	require.True(t, c.Connect().WaitTimeout(2*time.Second))
	defer c.Disconnect(250)

	tok := c.Publish("a/b", 2, false, []byte("hello"))
	require.True(t, tok.WaitTimeout(2*time.Second))
	assert.NoError(t, tok.Error())
}

func TestClientSubscribeDispatchesInboundPublish(t *testing.T) {
	broker := startFakeBroker(t)
	defer broker.close()

	received := make(chan Message, 1)
	broker.onSubscribe = func(sub *packets.SubscribePacket, conn net.Conn) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			pub := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
			pub.Qos = 0
			pub.TopicName = "a/b"
			pub.Payload = []byte("pushed")
			pub.Write(conn)
		}()
	}

	c := NewClient(newTestOptions(broker.addr()))
	require.True(t, c.Connect().WaitTimeout(2*time.Second))
	defer c.Disconnect(250)

	subTok := c.Subscribe("a/b", 0, func(_ Client, msg Message) {
		received <- msg
	})
	require.True(t, subTok.WaitTimeout(2*time.Second))
	require.NoError(t, subTok.Error())

	select {
	case msg := <-received:
		assert.Equal(t, "a/b", msg.Topic())
		assert.Equal(t, []byte("pushed"), msg.Payload())
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive dispatched publish")
	}
}

func TestClientUnsubscribeRemovesRoute(t *testing.T) {
	broker := startFakeBroker(t)
	defer broker.close()

	c := NewClient(newTestOptions(broker.addr()))
	require.True(t, c.Connect().WaitTimeout(2*time.Second))
	defer c.Disconnect(250)

	require.True(t, c.Subscribe("a/b", 0, func(Client, Message) {}).WaitTimeout(2*time.Second))
	tok := c.Unsubscribe("a/b")
	require.True(t, tok.WaitTimeout(2*time.Second))
	assert.NoError(t, tok.Error())
	assert.Empty(t, c.(*client).msgRouter.routes)
}

func TestClientPublishFailsWhenNotConnectedWithoutBuffer(t *testing.T) {
	c := NewClient(newTestOptions("tcp://127.0.0.1:1"))
	tok := c.Publish("a/b", 1, false, "x")
	require.True(t, tok.WaitTimeout(time.Second))
	assert.ErrorIs(t, tok.Error(), NewError(CodeClientNotConnected))
}

func TestClientPublishBuffersWhenOfflineBufferConfigured(t *testing.T) {
	o := newTestOptions("tcp://127.0.0.1:1")
	o.Buffer = BufferOptions{BufferEnabled: true, BufferSize: 5}
	c := NewClient(o).(*client)

	tok := c.Publish("a/b", 1, false, "x")
	assert.False(t, tok.WaitTimeout(50*time.Millisecond))
	assert.Equal(t, 1, c.buffer.len())
}

func TestClientConnectTwiceReturnsAlreadyConnected(t *testing.T) {
	broker := startFakeBroker(t)
	defer broker.close()

	c := NewClient(newTestOptions(broker.addr()))
	require.True(t, c.Connect().WaitTimeout(2*time.Second))
	defer c.Disconnect(250)

	tok := c.Connect()
	require.True(t, tok.WaitTimeout(time.Second))
	assert.ErrorIs(t, tok.Error(), NewError(CodeClientConnected))
}

func TestClientCloseRequiresDisconnected(t *testing.T) {
	broker := startFakeBroker(t)
	defer broker.close()

	c := NewClient(newTestOptions(broker.addr()))
	require.True(t, c.Connect().WaitTimeout(2*time.Second))
	assert.Error(t, c.Close())

	require.True(t, c.Disconnect(250).WaitTimeout(2*time.Second))
	assert.NoError(t, c.Close())
}

var _ = url.URL{} // referenced indirectly through ClientOptions.Servers in other tests

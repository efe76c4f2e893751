package mqtt

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternmq/mqttgo/packets"
)

func newTestClientForPing(keepAlive, pingTimeout time.Duration) *client {
	o := NewClientOptions()
	o.KeepAlive = keepAlive
	o.PingTimeout = pingTimeout
	o.AutoReconnect = false
	c := NewClient(o).(*client)
	c.persist.Open(c.options.clientIDOrGenerated(), "")
	c.stop = make(chan struct{})
	c.lastSent.Store(time.Now())
	c.lastReceived.Store(time.Now())
	return c
}

func TestCheckPingSendsPingreqWhenIntervalElapsed(t *testing.T) {
	c := newTestClientForPing(10*time.Millisecond, time.Second)
	c.lastSent.Store(time.Now().Add(-time.Minute))

	got := make(chan *PacketAndToken, 1)
	go func() {
		select {
		case pt := <-c.oboundP:
			got <- pt
		case <-time.After(time.Second):
		}
	}()

	c.checkPing()

	select {
	case pt := <-got:
		_, ok := pt.p.(*packets.PingreqPacket)
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected a PINGREQ to be queued")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&c.pingOutstanding))
}

func TestCheckPingSkipsWhenIntervalNotElapsed(t *testing.T) {
	c := newTestClientForPing(time.Hour, time.Second)
	c.checkPing()
	assert.Equal(t, int32(0), atomic.LoadInt32(&c.pingOutstanding))
}

func TestCheckPingTimesOutWaitingForPingresp(t *testing.T) {
	c := newTestClientForPing(time.Hour, 10*time.Millisecond)
	server, clientConn := net.Pipe()
	defer server.Close()
	c.conn = clientConn
	atomic.StoreUint32(&c.status, connected)
	atomic.StoreInt32(&c.commsRunning, 1)
	atomic.StoreInt32(&c.pingOutstanding, 1)
	c.lastSent.Store(time.Now().Add(-time.Hour))

	c.checkPing()

	require.Eventually(t, func() bool {
		return atomic.LoadUint32(&c.status) == disconnected
	}, time.Second, 5*time.Millisecond)
}

func TestPingRespReceivedClearsOutstandingFlag(t *testing.T) {
	c := newTestClientForPing(time.Second, time.Second)
	atomic.StoreInt32(&c.pingOutstanding, 1)
	c.pingRespReceived()
	assert.Equal(t, int32(0), atomic.LoadInt32(&c.pingOutstanding))
}

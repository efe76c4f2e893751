package transport

import (
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDialsTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	u, err := url.Parse("tcp://" + ln.Addr().String())
	require.NoError(t, err)

	conn, err := Open(u, Options{Timeout: time.Second})
	require.NoError(t, err)
	defer conn.Close()
}

func TestOpenRejectsUnsupportedScheme(t *testing.T) {
	u, _ := url.Parse("local://whatever")
	_, err := Open(u, Options{})
	assert.Error(t, err)
}

func TestOpenRejectsUnreachableTCP(t *testing.T) {
	u, _ := url.Parse("tcp://127.0.0.1:1")
	_, err := Open(u, Options{Timeout: 200 * time.Millisecond})
	assert.Error(t, err)
}

func TestDefaultPort(t *testing.T) {
	assert.Equal(t, 1883, DefaultPort("tcp"))
	assert.Equal(t, 1883, DefaultPort("ws"))
	assert.Equal(t, 8883, DefaultPort("ssl"))
	assert.Equal(t, 8883, DefaultPort("wss"))
	assert.Equal(t, 0, DefaultPort("unix"))
}

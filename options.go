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
	"crypto/tls"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lanternmq/mqttgo/transport"
)

// MessageHandler is invoked by the dispatch table (router.go) for an
// inbound PUBLISH whose topic matches a subscribed filter.
type MessageHandler func(Client, Message)

// ConnectionLostHandler is invoked, at most once per CONNECTED→not
// connected transition, when the connection drops for any reason other
// than a user-initiated Disconnect.
type ConnectionLostHandler func(Client, error)

// OnConnectHandler is invoked after every successful (re)connection.
type OnConnectHandler func(Client)

// ReconnectHandler is invoked immediately before each reconnect attempt.
type ReconnectHandler func(Client, *ClientOptions)

// BufferOptions configures the offline publish buffer (§4.7).
type BufferOptions struct {
	BufferEnabled     bool
	BufferSize        int
	PersistBuffer     bool
	DeleteOldestOnFull bool
}

// ClientOptions holds every configuration value the client core
// recognizes. It is built with NewClientOptions and a chain of
// AddBroker/SetXxx calls, mirroring the teacher's options surface.
type ClientOptions struct {
	Servers               []*url.URL
	ClientID              string
	Username              string
	Password              string
	CleanSession          bool
	Order                 bool
	WillEnabled           bool
	WillTopic             string
	WillPayload           []byte
	WillQos               byte
	WillRetained          bool
	ProtocolVersion       byte
	protocolVersionExplicit bool
	KeepAlive             time.Duration
	PingTimeout           time.Duration
	ConnectTimeout        time.Duration
	WriteTimeout          time.Duration
	MaxReconnectInterval  time.Duration
	AutoReconnect         bool
	ConnectRetry          bool
	ConnectRetryInterval  time.Duration
	Store                 Store
	DefaultPublishHandler MessageHandler
	OnConnect             OnConnectHandler
	OnConnectionLost      ConnectionLostHandler
	OnReconnecting        ReconnectHandler
	MaxInflight           int
	ResumeSubs            bool
	ManualAcks            bool
	TLSConfig             *tls.Config
	HTTPHeaders           http.Header
	Buffer                BufferOptions
}

// NewClientOptions returns a ClientOptions populated with the teacher's
// historical defaults.
func NewClientOptions() *ClientOptions {
	o := &ClientOptions{
		Servers:              nil,
		ClientID:             "",
		CleanSession:         true,
		Order:                true,
		ProtocolVersion:      4,
		KeepAlive:            30 * time.Second,
		PingTimeout:          10 * time.Second,
		ConnectTimeout:       30 * time.Second,
		WriteTimeout:         0,
		MaxReconnectInterval: 128 * time.Second,
		AutoReconnect:        true,
		MaxInflight:          10,
		ResumeSubs:           false,
		ManualAcks:           false,
	}
	o.OnConnectionLost = DefaultConnectionLostHandler
	return o
}

// AddBroker adds a server to the list Connect and reconnect will try, in
// the order added. uri may omit its port; the conventional one for the
// scheme is assumed (transport.DefaultPort).
func (o *ClientOptions) AddBroker(server string) *ClientOptions {
	u, err := url.Parse(server)
	if err != nil {
		WARN.Println(CLI, "AddBroker: failed to parse", server, err)
		return o
	}
	if u.Port() == "" {
		if port := transport.DefaultPort(u.Scheme); port != 0 {
			u.Host = u.Hostname() + ":" + strconv.Itoa(port)
		}
	}
	o.Servers = append(o.Servers, u)
	return o
}

func (o *ClientOptions) SetClientID(id string) *ClientOptions {
	o.ClientID = id
	return o
}

func (o *ClientOptions) SetUsername(u string) *ClientOptions {
	o.Username = u
	return o
}

func (o *ClientOptions) SetPassword(p string) *ClientOptions {
	o.Password = p
	return o
}

func (o *ClientOptions) SetCleanSession(clean bool) *ClientOptions {
	o.CleanSession = clean
	return o
}

func (o *ClientOptions) SetKeepAlive(d time.Duration) *ClientOptions {
	o.KeepAlive = d
	return o
}

func (o *ClientOptions) SetConnectTimeout(d time.Duration) *ClientOptions {
	o.ConnectTimeout = d
	return o
}

func (o *ClientOptions) SetWriteTimeout(d time.Duration) *ClientOptions {
	o.WriteTimeout = d
	return o
}

func (o *ClientOptions) SetAutoReconnect(auto bool) *ClientOptions {
	o.AutoReconnect = auto
	return o
}

func (o *ClientOptions) SetMaxReconnectInterval(d time.Duration) *ClientOptions {
	o.MaxReconnectInterval = d
	return o
}

func (o *ClientOptions) SetMaxInflight(n int) *ClientOptions {
	o.MaxInflight = n
	return o
}

func (o *ClientOptions) SetStore(s Store) *ClientOptions {
	o.Store = s
	return o
}

func (o *ClientOptions) SetDefaultPublishHandler(h MessageHandler) *ClientOptions {
	o.DefaultPublishHandler = h
	return o
}

func (o *ClientOptions) SetOnConnectHandler(h OnConnectHandler) *ClientOptions {
	o.OnConnect = h
	return o
}

func (o *ClientOptions) SetConnectionLostHandler(h ConnectionLostHandler) *ClientOptions {
	o.OnConnectionLost = h
	return o
}

func (o *ClientOptions) SetReconnectingHandler(h ReconnectHandler) *ClientOptions {
	o.OnReconnecting = h
	return o
}

func (o *ClientOptions) SetWill(topic string, payload []byte, qos byte, retained bool) *ClientOptions {
	o.WillEnabled = true
	o.WillTopic = topic
	o.WillPayload = payload
	o.WillQos = qos
	o.WillRetained = retained
	return o
}

func (o *ClientOptions) SetResumeSubs(r bool) *ClientOptions {
	o.ResumeSubs = r
	return o
}

func (o *ClientOptions) SetManualAcks(m bool) *ClientOptions {
	o.ManualAcks = m
	return o
}

func (o *ClientOptions) SetOfflineBuffer(opts BufferOptions) *ClientOptions {
	o.Buffer = opts
	return o
}

func (o *ClientOptions) SetTLSConfig(c *tls.Config) *ClientOptions {
	o.TLSConfig = c
	return o
}

// clientIDOrGenerated returns the configured ClientID, or a freshly
// generated one (a practice the teacher's own docs recommend against for
// CleanSession=false sessions, but which is convenient for the common
// CleanSession=true case).
func (o *ClientOptions) clientIDOrGenerated() string {
	if o.ClientID != "" {
		return o.ClientID
	}
	return "mqttgo-" + uuid.NewString()
}

// ClientOptionsReader is a read-only view of a client's in-use options,
// safe to hand to callers without exposing the mutable struct.
type ClientOptionsReader struct {
	options *ClientOptions
}

func (r ClientOptionsReader) ClientID() string           { return r.options.ClientID }
func (r ClientOptionsReader) Servers() []*url.URL         { return r.options.Servers }
func (r ClientOptionsReader) CleanSession() bool          { return r.options.CleanSession }
func (r ClientOptionsReader) KeepAlive() time.Duration    { return r.options.KeepAlive }
func (r ClientOptionsReader) AutoReconnect() bool         { return r.options.AutoReconnect }
func (r ClientOptionsReader) MaxReconnectInterval() time.Duration {
	return r.options.MaxReconnectInterval
}
func (r ClientOptionsReader) MaxInflight() int { return r.options.MaxInflight }

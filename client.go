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

// Package mqtt provides an asynchronous MQTT v3.1.1 client library: the
// session state machine, in-flight message engine, transport I/O loop,
// automatic reconnect with offline buffering, and subscription dispatch
// that sit between a caller's Publish/Subscribe calls and the wire.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lanternmq/mqttgo/packets"
	"github.com/lanternmq/mqttgo/transport"
)

// Session states, per the state machine this library implements.
const (
	disconnected uint32 = iota
	connecting
	reconnecting
	connected
	disconnecting
	closedState
)

// ErrNotConnected is the error attached to tokens abandoned by a clean
// session reset or a non-reconnecting disconnect.
var ErrNotConnected = errors.New("not connected")

// Client is the public surface of the MQTT client core.
type Client interface {
	IsConnected() bool
	IsConnectionOpen() bool
	Connect() Token
	Disconnect(quiesce uint) Token
	DisconnectForcibly(quiesceTimeout, disconnectTimeout time.Duration, sendDisconnectPacket bool) Token
	Publish(topic string, qos byte, retained bool, payload interface{}) Token
	Subscribe(topic string, qos byte, callback MessageHandler) Token
	SubscribeMultiple(filters map[string]byte, callback MessageHandler) Token
	Unsubscribe(topics ...string) Token
	AddRoute(topic string, callback MessageHandler)
	SetManualAcks(enabled bool)
	MessageArrivedComplete(id uint16, qos byte) error
	Reconnect()
	Close() error
	CloseForce() error
	OptionsReader() ClientOptionsReader
	CheckPing()
}

// client implements Client.
type client struct {
	lastSent        atomic.Value // time.Time
	lastReceived    atomic.Value // time.Time
	pingOutstanding int32

	status uint32
	sync.RWMutex

	messageIds

	oboundP   chan *PacketAndToken
	msgRouter *router
	persist   Store
	options   ClientOptions

	conn net.Conn

	stop          chan struct{}
	workers       sync.WaitGroup
	commsRunning  int32

	inflightSem *semaphore.Weighted

	buffer      *offlineBuffer
	reconnector *reconnectController

	currentServerURI string
}

// NewClient creates an MQTT v3.1.1 client with the given options. Connect
// must be called before the client does anything useful, so that
// resources (persistence, the network connection) are opened only when
// the application is actually ready to use them.
func NewClient(o *ClientOptions) Client {
	c := &client{}
	c.options = *o
	if c.options.Store == nil {
		c.options.Store = NewMemoryStore()
	}
	if c.options.ClientID == "" {
		c.options.ClientID = c.options.clientIDOrGenerated()
	}
	if c.options.MaxInflight <= 0 {
		c.options.MaxInflight = 10
	}
	c.persist = c.options.Store
	c.status = disconnected
	c.messageIds = messageIds{index: make(map[uint16]tokenCompletor)}
	c.msgRouter = newRouter()
	c.msgRouter.setDefaultHandler(c.options.DefaultPublishHandler)
	c.oboundP = make(chan *PacketAndToken)
	c.inflightSem = semaphore.NewWeighted(int64(c.options.MaxInflight))
	if c.options.Buffer.BufferEnabled {
		c.buffer = newOfflineBuffer(c.options.Buffer, c.persist)
	}
	c.reconnector = newReconnectController(c)
	if !c.options.Order {
		c.msgRouter.pool = newWorkerPool(int64(c.options.MaxInflight))
	}
	go c.msgRouter.matchAndDispatch(c.msgRouter.messages, c.options.Order, c)
	c.lastSent.Store(time.Now())
	c.lastReceived.Store(time.Now())
	return c
}

func (c *client) IsConnected() bool {
	status := atomic.LoadUint32(&c.status)
	switch {
	case status == connected:
		return true
	case c.options.AutoReconnect && status == reconnecting:
		return true
	case c.options.ConnectRetry && status == connecting:
		return true
	default:
		return false
	}
}

func (c *client) IsConnectionOpen() bool {
	return atomic.LoadUint32(&c.status) == connected
}

func (c *client) setStatus(status uint32) {
	atomic.StoreUint32(&c.status, status)
}

// AddRoute registers a handler for topic without making a subscription,
// e.g. to give part of a wildcard subscription its own handler.
func (c *client) AddRoute(topic string, callback MessageHandler) {
	if callback != nil {
		c.msgRouter.addRoute(topic, callback)
	}
}

func (c *client) SetManualAcks(enabled bool) {
	c.options.ManualAcks = enabled
}

func (c *client) OptionsReader() ClientOptionsReader {
	return ClientOptionsReader{options: &c.options}
}

// Connect dials the first reachable server from Servers (§4.2) and
// performs the CONNECT/CONNACK handshake, then starts the comms workers.
func (c *client) Connect() Token {
	t := newToken(packets.Connect).(*ConnectToken)
	DEBUG.Println(CLI, "Connect()")

	switch atomic.LoadUint32(&c.status) {
	case connected:
		t.setError(NewError(CodeClientConnected))
		t.flowComplete()
		return t
	case connecting, reconnecting:
		t.setError(NewError(CodeConnectInProgress))
		t.flowComplete()
		return t
	case disconnecting:
		t.setError(NewError(CodeClientDisconnecting))
		t.flowComplete()
		return t
	case closedState:
		t.setError(NewError(CodeClientClosed))
		t.flowComplete()
		return t
	}

	if len(c.options.Servers) == 0 {
		t.setError(fmt.Errorf("no servers defined to connect to"))
		t.flowComplete()
		return t
	}

	c.persist.Open(c.options.ClientID, serverURIKey(c.options.Servers))
	if c.buffer != nil {
		c.buffer.loadPersisted()
	}
	c.setStatus(connecting)

	go func() {
		conn, uri, sessionPresent, err := c.attemptConnection()
		if err != nil {
			ERROR.Println(CLI, "failed to connect to a broker:", err)
			c.setStatus(disconnected)
			t.setError(err)
			t.flowComplete()
			return
		}
		t.sessionPresent = sessionPresent
		c.currentServerURI = uri

		if !c.options.CleanSession {
			c.reserveStoredPublishIDs()
		}

		c.startCommsWorkers(conn)

		if c.options.CleanSession {
			c.persist.Reset()
		} else {
			c.resume(c.options.ResumeSubs)
		}
		if c.buffer != nil {
			c.buffer.drain(c.sendPublish)
		}
		if c.options.OnConnect != nil {
			go c.options.OnConnect(c)
		}
		t.flowComplete()
	}()
	return t
}

// attemptConnection tries each configured server URI in order, falling
// back from protocol level 4 (v3.1.1) to level 3 (v3.1) against the same
// candidate after any failed level 4 attempt (§4.2). ClientOptions has no
// exported way to pin level 4, so the fallback applies whenever
// ProtocolVersion is 4.
func (c *client) attemptConnection() (net.Conn, string, bool, error) {
	var lastErr error
	for _, broker := range c.options.Servers {
		conn, sessionPresent, err := c.dialAndHandshake(broker, c.options.ProtocolVersion)
		if err != nil && !c.options.protocolVersionExplicit && c.options.ProtocolVersion == 4 {
			WARN.Println(CLI, "v3.1.1 CONNECT refused, retrying at v3.1:", err)
			conn, sessionPresent, err = c.dialAndHandshake(broker, 3)
		}
		if err != nil {
			WARN.Println(CLI, "failed to connect to broker, trying next:", err)
			lastErr = err
			continue
		}
		return conn, broker.String(), sessionPresent, nil
	}
	if lastErr == nil {
		lastErr = NewError(CodeBrokerUnavailable)
	}
	return nil, "", false, lastErr
}

func (c *client) dialAndHandshake(broker *url.URL, protocolVersion byte) (net.Conn, bool, error) {
	conn, err := transport.Open(broker, transport.Options{
		TLSConfig:  c.options.TLSConfig,
		Timeout:    c.options.ConnectTimeout,
		HTTPHeader: c.options.HTTPHeaders,
	})
	if err != nil {
		return nil, false, err
	}
	cp := newConnectPacket(&c.options, protocolVersion)
	rc, sessionPresent, err := connectMQTT(conn, cp, c.options.ConnectTimeout)
	if err != nil {
		conn.Close()
		return nil, false, err
	}
	if rc != packets.Accepted {
		conn.Close()
		if connErr, ok := packets.ConnErrors[rc]; ok && connErr != nil {
			return nil, false, connErr
		}
		return nil, false, fmt.Errorf("%s", packets.ConnackReturnCodes[rc])
	}
	return conn, sessionPresent, nil
}

func newConnectPacket(o *ClientOptions, protocolVersion byte) *packets.ConnectPacket {
	cp := packets.NewControlPacket(packets.Connect).(*packets.ConnectPacket)
	cp.ProtocolVersion = protocolVersion
	if protocolVersion == 3 {
		cp.ProtocolName = "MQIsdp"
	} else {
		cp.ProtocolName = "MQTT"
	}
	cp.CleanSession = o.CleanSession
	cp.ClientIdentifier = o.ClientID
	cp.Keepalive = uint16(o.KeepAlive / time.Second)
	if o.WillEnabled {
		cp.WillFlag = true
		cp.WillTopic = o.WillTopic
		cp.WillMessage = o.WillPayload
		cp.WillQos = o.WillQos
		cp.WillRetain = o.WillRetained
	}
	if o.Username != "" {
		cp.UsernameFlag = true
		cp.Username = o.Username
	}
	if o.Password != "" {
		cp.PasswordFlag = true
		cp.Password = []byte(o.Password)
	}
	return cp
}

func serverURIKey(servers []*url.URL) string {
	parts := make([]string, len(servers))
	for i, s := range servers {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

// Disconnect transitions to DISCONNECTING, waits up to quiesce ms for the
// DISCONNECT packet to be sent, and tears the transport down.
func (c *client) Disconnect(quiesce uint) Token {
	dt := newToken(packets.Disconnect).(*DisconnectToken)
	if atomic.LoadUint32(&c.status) != connected {
		WARN.Println(CLI, "Disconnect() called but not connected")
		c.setStatus(disconnected)
		dt.flowComplete()
		return dt
	}
	DEBUG.Println(CLI, "disconnecting")
	c.setStatus(disconnecting)

	dm := packets.NewControlPacket(packets.Disconnect)
	select {
	case c.oboundP <- &PacketAndToken{p: dm, t: dt}:
		dt.WaitTimeout(time.Duration(quiesce) * time.Millisecond)
	case <-time.After(time.Duration(quiesce) * time.Millisecond):
		dt.flowComplete()
	}
	c.shutdownConn()
	return dt
}

// DisconnectForcibly tears the connection down without waiting for
// in-flight acks beyond quiesceTimeout.
func (c *client) DisconnectForcibly(quiesceTimeout, disconnectTimeout time.Duration, sendDisconnectPacket bool) Token {
	dt := newToken(packets.Disconnect).(*DisconnectToken)
	if atomic.LoadUint32(&c.status) != connected {
		c.setStatus(disconnected)
		dt.flowComplete()
		return dt
	}
	c.setStatus(disconnecting)
	quiesceDeadline := time.Now().Add(quiesceTimeout)
	for c.messageIds.inUse() > 0 && time.Now().Before(quiesceDeadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sendDisconnectPacket {
		dm := packets.NewControlPacket(packets.Disconnect)
		select {
		case c.oboundP <- &PacketAndToken{p: dm, t: dt}:
			dt.WaitTimeout(disconnectTimeout)
		case <-time.After(disconnectTimeout):
		}
	} else {
		dt.flowComplete()
	}
	c.shutdownConn()
	return dt
}

func (c *client) shutdownConn() {
	c.stopCommsWorkers()
	if c.options.CleanSession {
		c.messageIds.cleanUp()
	}
	DEBUG.Println(CLI, "disconnected")
	c.persist.Close()
	c.setStatus(disconnected)
}

// Close transitions a DISCONNECTED client to CLOSED, releasing
// persistence; it is legal only from DISCONNECTED (§4.1).
func (c *client) Close() error {
	if !atomic.CompareAndSwapUint32(&c.status, disconnected, closedState) {
		return NewError(CodeClientConnected)
	}
	c.persist.Close()
	return nil
}

// CloseForce tears the client down regardless of its current state.
func (c *client) CloseForce() error {
	status := atomic.LoadUint32(&c.status)
	if status == connected || status == connecting || status == reconnecting || status == disconnecting {
		c.stopCommsWorkers()
	}
	atomic.StoreUint32(&c.status, closedState)
	c.persist.Close()
	return nil
}

// internalConnLost runs the cleanup triggered by any connection loss that
// wasn't a user-initiated Disconnect: stop the comms workers, then either
// hand off to the reconnect controller or settle into DISCONNECTED.
func (c *client) internalConnLost(err error) {
	status := atomic.LoadUint32(&c.status)
	if status == disconnected || status == closedState || status == disconnecting {
		return
	}
	if !c.stopCommsWorkers() {
		return
	}
	DEBUG.Println(CLI, "internalConnLost:", err)
	if c.options.OnConnectionLost != nil {
		go c.options.OnConnectionLost(c, err)
	}
	if c.options.AutoReconnect {
		c.setStatus(reconnecting)
		go c.reconnector.run()
	} else {
		c.messageIds.cleanUp()
		c.setStatus(disconnected)
	}
}

// Reconnect forces an immediate reconnect attempt rather than waiting for
// the backoff timer the reconnect controller is currently running.
func (c *client) Reconnect() {
	c.reconnector.forceNow()
}

// Publish queues payload for delivery to topic at the given QoS. While
// not CONNECTED, it is accepted into the offline buffer if one is
// configured, and fails immediately otherwise (§4.7).
func (c *client) Publish(topic string, qos byte, retained bool, payload interface{}) Token {
	t := newToken(packets.Publish).(*PublishToken)
	if topic == "" {
		t.setError(NewError(CodeInvalidTopic))
		t.flowComplete()
		return t
	}

	pub := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	pub.Qos = qos
	pub.Retain = retained
	pub.TopicName = topic
	pub.Payload = payloadToBytes(payload)

	if atomic.LoadUint32(&c.status) != connected {
		if c.buffer != nil {
			if c.buffer.enqueue(pub, t) {
				DEBUG.Println(CLI, "publish buffered while offline")
			}
			return t
		}
		t.setError(NewError(CodeClientNotConnected))
		t.flowComplete()
		return t
	}

	c.sendPublish(pub, t)
	return t
}

func payloadToBytes(payload interface{}) []byte {
	switch p := payload.(type) {
	case nil:
		return nil
	case string:
		return []byte(p)
	case []byte:
		return p
	default:
		return []byte(fmt.Sprintf("%v", p))
	}
}

// sendPublish assigns a message id for QoS>0, persists it per the
// send-before-write rule, and hands it to the sender loop, bounded by the
// in-flight semaphore for QoS>0.
func (c *client) sendPublish(pub *packets.PublishPacket, t *PublishToken) {
	switch pub.Qos {
	case 1, 2:
		if err := c.inflightSem.Acquire(context.Background(), 1); err != nil {
			t.setError(err)
			t.flowComplete()
			return
		}
		pub.MessageID = c.getID(t)
		if pub.MessageID == 0 {
			c.inflightSem.Release(1)
			t.setError(NewError(CodeNoMessageIDsAvailable))
			t.flowComplete()
			return
		}
		t.messageID = pub.MessageID
		if err := persistOutbound(c.persist, pub); err != nil {
			c.inflightSem.Release(1)
			c.freeID(pub.MessageID)
			t.setError(wrapError(CodePersistenceFailure, err))
			t.flowComplete()
			return
		}
	}
	select {
	case c.oboundP <- &PacketAndToken{p: pub, t: t}:
	case <-c.stop:
		t.setError(ErrNotConnected)
		t.flowComplete()
	}
	if pub.Qos == 0 {
		t.flowComplete()
	}
}

// Subscribe registers callback for topic at the requested QoS.
func (c *client) Subscribe(topic string, qos byte, callback MessageHandler) Token {
	return c.SubscribeMultiple(map[string]byte{topic: qos}, callback)
}

// SubscribeMultiple sends one SUBSCRIBE packet covering every filter in
// filters. If callback is non-nil it is registered for each filter before
// the packet is sent; a filter the SUBACK refuses (0x80) has its route
// removed again when the SUBACK arrives. With a nil callback, matching
// publishes go to the default handler.
func (c *client) SubscribeMultiple(filters map[string]byte, callback MessageHandler) Token {
	t := newToken(packets.Subscribe).(*SubscribeToken)
	if atomic.LoadUint32(&c.status) != connected {
		t.setError(NewError(CodeClientNotConnected))
		t.flowComplete()
		return t
	}

	sub := packets.NewControlPacket(packets.Subscribe).(*packets.SubscribePacket)
	for topic, qos := range filters {
		sub.Topics = append(sub.Topics, topic)
		sub.Qoss = append(sub.Qoss, qos)
		t.subs = append(t.subs, topic)
		if callback != nil {
			c.msgRouter.addRoute(stripSharedPrefix(topic), callback)
		}
	}

	sub.MessageID = c.getID(t)
	if sub.MessageID == 0 {
		t.setError(NewError(CodeNoMessageIDsAvailable))
		t.flowComplete()
		return t
	}
	t.messageID = sub.MessageID
	if err := persistOutbound(c.persist, sub); err != nil {
		ERROR.Println(CLI, "failed to persist subscribe:", err)
	}

	select {
	case c.oboundP <- &PacketAndToken{p: sub, t: t}:
	case <-c.stop:
		t.setError(ErrNotConnected)
		t.flowComplete()
	}
	return t
}

// stripSharedPrefix removes a leading "$share/<group>/" or "$queue/"
// segment so the dispatch table is keyed by the real topic filter
// regardless of the shared-subscription syntax used to request it
// (§4.8 supplement).
func stripSharedPrefix(topic string) string {
	if strings.HasPrefix(topic, "$queue/") {
		return strings.TrimPrefix(topic, "$queue/")
	}
	if strings.HasPrefix(topic, "$share/") {
		rest := strings.TrimPrefix(topic, "$share/")
		if i := strings.Index(rest, "/"); i >= 0 {
			return rest[i+1:]
		}
	}
	return topic
}

// Unsubscribe removes the routes for topics and sends one UNSUBSCRIBE
// packet covering all of them.
func (c *client) Unsubscribe(topics ...string) Token {
	t := newToken(packets.Unsubscribe).(*UnsubscribeToken)
	if atomic.LoadUint32(&c.status) != connected {
		t.setError(NewError(CodeClientNotConnected))
		t.flowComplete()
		return t
	}

	unsub := packets.NewControlPacket(packets.Unsubscribe).(*packets.UnsubscribePacket)
	unsub.Topics = topics
	unsub.MessageID = c.getID(t)
	if unsub.MessageID == 0 {
		t.setError(NewError(CodeNoMessageIDsAvailable))
		t.flowComplete()
		return t
	}
	t.messageID = unsub.MessageID
	if err := persistOutbound(c.persist, unsub); err != nil {
		ERROR.Println(CLI, "failed to persist unsubscribe:", err)
	}

	for _, topic := range topics {
		c.msgRouter.deleteRoute(stripSharedPrefix(topic))
	}

	select {
	case c.oboundP <- &PacketAndToken{p: unsub, t: t}:
	case <-c.stop:
		t.setError(ErrNotConnected)
		t.flowComplete()
	}
	return t
}

// reserveStoredPublishIDs walks the persisted outbound keys and claims
// each message id with a PlaceHolderToken before the comms workers start,
// so a freshly issued Publish during replay can't collide with an id that
// is about to be retransmitted from the store.
func (c *client) reserveStoredPublishIDs() {
	for _, key := range c.persist.All() {
		if !isKeyOutbound(key) {
			continue
		}
		cp, err := c.persist.Get(key)
		if err != nil {
			ERROR.Println(CLI, "failed to read persisted publish id:", err)
			continue
		}
		if cp != nil {
			id := cp.Details().MessageID
			if id != 0 {
				c.claimID(&PlaceHolderToken{baseToken: newBaseToken(), id: id}, id)
			}
		}
	}
}

// resume replays everything the persistence provider is still holding
// for this (clientID, serverURI) after a reconnect with CleanSession
// false: unacked outbound SENT/PUBREL packets and, if resubscribe is
// true, any persisted SUBSCRIBE/UNSUBSCRIBE packets too (otherwise those
// records are deleted). Persisted inbound QoS 2 publishes are left as
// they are.
func (c *client) resume(resubscribe bool) {
	for _, key := range c.persist.All() {
		cp, err := c.persist.Get(key)
		if err != nil {
			ERROR.Println(CLI, "failed to read persisted record during resume:", err)
			continue
		}
		if cp == nil {
			continue
		}
		switch p := cp.(type) {
		case *packets.PublishPacket:
			if isKeyOutbound(key) {
				p.Dup = true
				t := newToken(packets.Publish).(*PublishToken)
				t.messageID = p.MessageID
				c.claimID(t, p.MessageID)
				select {
				case c.oboundP <- &PacketAndToken{p: p, t: t}:
				case <-c.stop:
				}
			}
			// Inbound QoS 2 publishes awaiting a PUBREL need no action of
			// our own on resume: the broker is responsible for
			// retransmitting the PUBREL if it never saw our PUBCOMP.
		case *packets.PubrelPacket:
			select {
			case c.oboundP <- &PacketAndToken{p: p, t: nil}:
			case <-c.stop:
			}
		case *packets.SubscribePacket:
			if resubscribe {
				select {
				case c.oboundP <- &PacketAndToken{p: p, t: nil}:
				case <-c.stop:
				}
			} else {
				c.persist.Del(key)
			}
		case *packets.UnsubscribePacket:
			if resubscribe {
				select {
				case c.oboundP <- &PacketAndToken{p: p, t: nil}:
				case <-c.stop:
				}
			} else {
				c.persist.Del(key)
			}
		}
	}
}

//DefaultConnectionLostHandler simply logs the reason the connection was lost.
func DefaultConnectionLostHandler(client Client, reason error) {
	DEBUG.Println(CLI, "Connection lost:", reason.Error())
}

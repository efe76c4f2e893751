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
	"sync"
	"time"

	"github.com/lanternmq/mqttgo/packets"
)

// PacketAndToken pairs an outbound packet with the token that should be
// completed when that packet's send/ack cycle finishes.
type PacketAndToken struct {
	p packets.ControlPacket
	t tokenCompletor
}

// TokenCompletionHandler is invoked exactly once when a token completes,
// whether it succeeded or failed; inspect Token.Error() from within the
// callback to tell the two apart.
type TokenCompletionHandler func(Token)

// Token defines the public behaviour of the future returned by every
// operation that must wait on the broker (Connect, Publish at QoS>0,
// Subscribe, Unsubscribe, Disconnect).
type Token interface {
	// Wait blocks until the token completes and returns true. It returns
	// immediately (true) if the token is already complete.
	Wait() bool
	// WaitTimeout behaves like Wait but returns false if d elapses first.
	WaitTimeout(d time.Duration) bool
	// Done returns a channel that is closed when the token completes,
	// for use in a select alongside other events.
	Done() <-chan struct{}
	// Error returns the error the token completed with, or nil on success.
	Error() error
	// IsComplete reports whether the token has finished, successfully or
	// not, without blocking.
	IsComplete() bool
	// SetActionCallback registers cb to run exactly once on completion, on
	// its own goroutine. If the token is already complete, that goroutine
	// is started right away by this call.
	// A later call replaces any callback set by an earlier one.
	SetActionCallback(cb TokenCompletionHandler)
	// UserContext returns the value set by SetUserContext, or nil.
	UserContext() interface{}
	// SetUserContext attaches an arbitrary value to the token for the
	// caller's own bookkeeping; the client never inspects it.
	SetUserContext(ctx interface{})
}

// tokenCompletor is the engine-internal extension of Token: the bits the
// in-flight engine and sender/receiver loops need to drive a token to
// completion that callers should not see.
type tokenCompletor interface {
	Token
	flowComplete()
	setError(error)
}

type baseToken struct {
	m            sync.Mutex
	complete     chan struct{}
	err          error
	callback     TokenCompletionHandler
	callbackDone bool
	userCtx      interface{}
	self         Token
}

func newBaseToken() baseToken {
	return baseToken{complete: make(chan struct{})}
}

func (b *baseToken) Wait() bool {
	<-b.complete
	return true
}

func (b *baseToken) WaitTimeout(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-b.complete:
		return true
	case <-timer.C:
		return false
	}
}

func (b *baseToken) Done() <-chan struct{} {
	return b.complete
}

func (b *baseToken) Error() error {
	b.m.Lock()
	defer b.m.Unlock()
	return b.err
}

func (b *baseToken) setError(e error) {
	b.m.Lock()
	defer b.m.Unlock()
	b.err = e
}

// flowComplete marks the token done exactly once. Extra calls (which can
// legitimately race, e.g. a forced disconnect racing an incoming ack) are
// no-ops. The action callback, if any, fires exactly once as part of the
// call that actually completes the token.
func (b *baseToken) flowComplete() {
	b.m.Lock()
	select {
	case <-b.complete:
		b.m.Unlock()
		return
	default:
		close(b.complete)
	}
	b.fireCallbackLocked()
	b.m.Unlock()
}

// fireCallbackLocked invokes the registered callback exactly once. Callers
// hold b.m and must already know the token is complete.
func (b *baseToken) fireCallbackLocked() {
	if b.callback == nil || b.callbackDone {
		return
	}
	b.callbackDone = true
	tok := b.self
	if tok == nil {
		tok = b
	}
	cb := b.callback
	go cb(tok)
}

func (b *baseToken) IsComplete() bool {
	select {
	case <-b.complete:
		return true
	default:
		return false
	}
}

// SetActionCallback registers cb to run exactly once on completion. If the
// token is already complete by the time this is called, cb runs right away.
func (b *baseToken) SetActionCallback(cb TokenCompletionHandler) {
	b.m.Lock()
	b.callback = cb
	b.callbackDone = false
	complete := b.IsComplete()
	if complete {
		b.fireCallbackLocked()
	}
	b.m.Unlock()
}

func (b *baseToken) UserContext() interface{} {
	b.m.Lock()
	defer b.m.Unlock()
	return b.userCtx
}

func (b *baseToken) SetUserContext(ctx interface{}) {
	b.m.Lock()
	b.userCtx = ctx
	b.m.Unlock()
}

// ConnectToken is returned by Client.Connect.
type ConnectToken struct {
	baseToken
	returnCode     byte
	sessionPresent bool
}

func (t *ConnectToken) ReturnCode() byte     { return t.returnCode }
func (t *ConnectToken) SessionPresent() bool { return t.sessionPresent }

// PublishToken is returned by Client.Publish.
type PublishToken struct {
	baseToken
	messageID uint16
}

func (t *PublishToken) MessageID() uint16 { return t.messageID }

// SubscribeToken is returned by Client.Subscribe and SubscribeMultiple.
type SubscribeToken struct {
	baseToken
	subs      []string
	messageID uint16
	subResult map[string]byte
}

func (t *SubscribeToken) Result() map[string]byte {
	t.m.Lock()
	defer t.m.Unlock()
	return t.subResult
}

// UnsubscribeToken is returned by Client.Unsubscribe.
type UnsubscribeToken struct {
	baseToken
	messageID uint16
}

// DisconnectToken is returned by Client.Disconnect.
type DisconnectToken struct {
	baseToken
}

// PlaceHolderToken reserves a message id (e.g. during persisted-store
// replay on reconnect, before a caller-owned token exists for it) without
// participating in completion.
type PlaceHolderToken struct {
	baseToken
	id uint16
}

func newToken(tType byte) tokenCompletor {
	switch tType {
	case packets.Connect:
		t := &ConnectToken{baseToken: newBaseToken()}
		t.self = t
		return t
	case packets.Publish:
		t := &PublishToken{baseToken: newBaseToken()}
		t.self = t
		return t
	case packets.Subscribe:
		t := &SubscribeToken{baseToken: newBaseToken(), subResult: make(map[string]byte)}
		t.self = t
		return t
	case packets.Unsubscribe:
		t := &UnsubscribeToken{baseToken: newBaseToken()}
		t.self = t
		return t
	case packets.Disconnect:
		t := &DisconnectToken{baseToken: newBaseToken()}
		t.self = t
		return t
	}
	return nil
}

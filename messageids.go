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
)

const (
	midMin uint16 = 1
	midMax uint16 = 65535
	// words is the number of uint64 words needed to hold one bit per id
	// in [0, 65535]; bit n%64 of word n/64 tracks id n.
	words = int(midMax)/64 + 1
)

// messageIds tracks which of the 65535 legal MQTT message ids are
// currently assigned to an in-flight outbound packet, and which token
// owns each one so the receiver loop can complete it on ack.
type messageIds struct {
	sync.RWMutex
	index  map[uint16]tokenCompletor
	bits   [words]uint64
	cursor uint16
}

func (mids *messageIds) cleanUp() {
	mids.Lock()
	defer mids.Unlock()
	for _, token := range mids.index {
		switch token.(type) {
		case *PublishToken:
			token.setError(ErrNotConnected)
		case *SubscribeToken:
			token.setError(ErrNotConnected)
		case *UnsubscribeToken:
			token.setError(ErrNotConnected)
		}
		token.flowComplete()
	}
	mids.index = make(map[uint16]tokenCompletor)
	for i := range mids.bits {
		mids.bits[i] = 0
	}
	mids.cursor = 0
}

func (mids *messageIds) setBit(id uint16) {
	mids.bits[id/64] |= 1 << (id % 64)
}

func (mids *messageIds) clearBit(id uint16) {
	mids.bits[id/64] &^= 1 << (id % 64)
}

func (mids *messageIds) testBit(id uint16) bool {
	return mids.bits[id/64]&(1<<(id%64)) != 0
}

// getID allocates the next free message id (scanning forward from the
// cursor and wrapping at most once), claims it for token, and returns it.
// It returns 0 if the id space is exhausted (NO_MESSAGE_IDS_AVAILABLE).
func (mids *messageIds) getID(t tokenCompletor) uint16 {
	mids.Lock()
	defer mids.Unlock()
	start := mids.cursor
	for {
		mids.cursor++
		if mids.cursor < midMin {
			mids.cursor = midMin
		}
		if !mids.testBit(mids.cursor) {
			mids.setBit(mids.cursor)
			mids.index[mids.cursor] = t
			return mids.cursor
		}
		if mids.cursor == start {
			return 0
		}
		if mids.cursor == midMax {
			mids.cursor = midMin - 1 // wraps to midMin on next iteration
		}
	}
}

// claimID is used during store replay to reserve a specific id (one that
// was already persisted from a previous connection) before a real token
// for it exists.
func (mids *messageIds) claimID(t tokenCompletor, id uint16) {
	mids.Lock()
	defer mids.Unlock()
	if _, ok := mids.index[id]; !ok {
		mids.index[id] = t
	}
	mids.setBit(id)
}

func (mids *messageIds) freeID(id uint16) {
	mids.Lock()
	defer mids.Unlock()
	delete(mids.index, id)
	mids.clearBit(id)
}

func (mids *messageIds) getToken(id uint16) tokenCompletor {
	mids.RLock()
	defer mids.RUnlock()
	if token, ok := mids.index[id]; ok {
		return token
	}
	return &DummyToken{id: id}
}

// inUse reports how many message ids are currently assigned, used by
// tests asserting the in-flight window contract.
func (mids *messageIds) inUse() int {
	mids.RLock()
	defer mids.RUnlock()
	return len(mids.index)
}

// DummyToken is returned by getToken when an ack arrives for an id the
// engine has no record of (e.g. a duplicate or late ack after a timeout);
// its methods are no-ops so the caller can treat it uniformly.
type DummyToken struct {
	id uint16
}

func (d *DummyToken) Wait() bool                     { return true }
func (d *DummyToken) WaitTimeout(time.Duration) bool { return true }
func (d *DummyToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (d *DummyToken) Error() error      { return nil }
func (d *DummyToken) flowComplete()     {}
func (d *DummyToken) setError(error)    {}
func (d *DummyToken) IsComplete() bool  { return true }
func (d *DummyToken) UserContext() interface{} { return nil }
func (d *DummyToken) SetUserContext(interface{}) {}

// SetActionCallback fires cb immediately: a DummyToken is always already
// complete by the time anyone could observe it.
func (d *DummyToken) SetActionCallback(cb TokenCompletionHandler) {
	if cb != nil {
		go cb(d)
	}
}

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

	"github.com/lanternmq/mqttgo/packets"
)

// bufferedPublish is one entry in the offline buffer: the packet to send
// once reconnected, and the token the original Publish call returned. key
// is the entry's persisted store key ("b-<n>"), empty if PersistBuffer is
// off or the entry hasn't been persisted yet.
type bufferedPublish struct {
	packet *packets.PublishPacket
	token  *PublishToken
	key    string
}

// offlineBuffer holds PUBLISH packets submitted while not CONNECTED, for
// replay in FIFO order once the connection comes back (§4.7). When
// opts.PersistBuffer is set, each entry is mirrored to persist under a
// "b-<n>" key so it survives a process restart while still disconnected;
// loadPersisted reloads any such entries the first time persistence opens.
type offlineBuffer struct {
	sync.Mutex
	opts    BufferOptions
	entries []*bufferedPublish
	persist Store
	nextSeq int
	loaded  bool
}

func newOfflineBuffer(opts BufferOptions, persist Store) *offlineBuffer {
	return &offlineBuffer{opts: opts, persist: persist}
}

// loadPersisted reloads any "b-<n>" entries left over from a previous
// run, handing each a fresh token since the original caller's token
// cannot survive a restart. It is a no-op past its first call, and a
// no-op entirely unless PersistBuffer is set.
func (b *offlineBuffer) loadPersisted() {
	b.Lock()
	defer b.Unlock()
	if b.loaded || !b.opts.PersistBuffer || b.persist == nil {
		return
	}
	b.loaded = true
	for _, key := range b.persist.All() {
		if !isKeyBuffer(key) {
			continue
		}
		cp, err := b.persist.Get(key)
		if err != nil {
			ERROR.Println(BUF, "failed to reload buffered publish:", err)
			continue
		}
		pub, ok := cp.(*packets.PublishPacket)
		if !ok {
			continue
		}
		b.entries = append(b.entries, &bufferedPublish{
			packet: pub,
			token:  newToken(packets.Publish).(*PublishToken),
			key:    key,
		})
		if seq := bufferKeySeq(key); seq >= b.nextSeq {
			b.nextSeq = seq + 1
		}
	}
}

// enqueue appends pub to the buffer, applying the full-buffer policy. It
// returns false (with the token already failed) if the publish could not
// be accepted.
func (b *offlineBuffer) enqueue(pub *packets.PublishPacket, token *PublishToken) bool {
	b.Lock()
	defer b.Unlock()
	if b.opts.BufferSize > 0 && len(b.entries) >= b.opts.BufferSize {
		if !b.opts.DeleteOldestOnFull {
			token.setError(wrapError(CodeDisconnectedBufferFull, nil))
			token.flowComplete()
			return false
		}
		b.deletePersisted(b.entries[0])
		b.entries = b.entries[1:]
	}

	entry := &bufferedPublish{packet: pub, token: token}
	if b.opts.PersistBuffer && b.persist != nil {
		entry.key = bufferKey(b.nextSeq)
		b.nextSeq++
		if err := b.persist.Put(entry.key, pub); err != nil {
			ERROR.Println(BUF, "failed to persist buffered publish:", err)
		}
	}
	b.entries = append(b.entries, entry)
	return true
}

// drain empties the buffer in FIFO order, handing each entry to send.
// send is expected to respect the in-flight window itself (it is the
// same enqueue path a live Publish call uses).
func (b *offlineBuffer) drain(send func(*packets.PublishPacket, *PublishToken)) {
	b.Lock()
	entries := b.entries
	b.entries = nil
	b.Unlock()

	for _, e := range entries {
		b.deletePersisted(e)
		send(e.packet, e.token)
	}
}

// deletePersisted removes e's persisted record, if it has one. enqueue
// calls it with b's lock held; drain calls it after releasing the lock.
func (b *offlineBuffer) deletePersisted(e *bufferedPublish) {
	if e.key != "" && b.persist != nil {
		b.persist.Del(e.key)
	}
}

func (b *offlineBuffer) len() int {
	b.Lock()
	defer b.Unlock()
	return len(b.entries)
}

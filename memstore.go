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

// MemoryStore implements the Store interface using an in-memory map. It
// does not survive process restart, making it suitable only for clients
// that do not need QoS>0 delivery guarantees across a crash.
type MemoryStore struct {
	sync.RWMutex
	messages map[string]packets.ControlPacket
	opened   bool
}

// NewMemoryStore returns a ready-to-open MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string]packets.ControlPacket)}
}

func (s *MemoryStore) Open(clientID, serverURI string) {
	s.Lock()
	defer s.Unlock()
	s.opened = true
}

func (s *MemoryStore) Put(key string, message packets.ControlPacket) error {
	s.Lock()
	defer s.Unlock()
	if !s.opened {
		return NewError(CodePersistenceFailure)
	}
	s.messages[key] = message
	return nil
}

func (s *MemoryStore) Get(key string) (packets.ControlPacket, error) {
	s.RLock()
	defer s.RUnlock()
	if !s.opened {
		return nil, nil
	}
	return s.messages[key], nil
}

func (s *MemoryStore) All() []string {
	s.RLock()
	defer s.RUnlock()
	keys := make([]string, 0, len(s.messages))
	for k := range s.messages {
		keys = append(keys, k)
	}
	return keys
}

func (s *MemoryStore) Del(key string) {
	s.Lock()
	defer s.Unlock()
	delete(s.messages, key)
}

func (s *MemoryStore) Close() {
	s.Lock()
	defer s.Unlock()
	if s.opened {
		s.opened = false
	}
}

func (s *MemoryStore) Reset() {
	s.Lock()
	defer s.Unlock()
	s.messages = make(map[string]packets.ControlPacket)
}

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
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/lanternmq/mqttgo/packets"
)

// FileStore implements the Store interface on top of one file per key in
// a directory, so that QoS 1/2 in-flight state survives a process
// restart with the same (clientID, serverURI). Each key's wire bytes are
// written via ControlPacket.Write, so the directory holds exactly the
// bytes that would have gone over the wire.
type FileStore struct {
	sync.RWMutex
	dir    string
	opened bool
}

// NewFileStore returns a FileStore rooted at dir. dir is created lazily
// by Open.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Open(clientID, serverURI string) {
	s.Lock()
	defer s.Unlock()
	s.dir = filepath.Join(s.dir, sanitizeForPath(clientID+"-"+serverURI))
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		log.WithError(err).WithField("dir", s.dir).Error("FileStore: failed to create store directory")
		return
	}
	s.opened = true
}

func sanitizeForPath(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}

func (s *FileStore) fullpath(key string) string {
	return filepath.Join(s.dir, key+".msg")
}

func (s *FileStore) Put(key string, message packets.ControlPacket) error {
	s.Lock()
	defer s.Unlock()
	if !s.opened {
		return NewError(CodePersistenceFailure)
	}
	var buf bytes.Buffer
	if err := message.Write(&buf); err != nil {
		log.WithError(err).WithField("key", key).Error("FileStore: failed to encode message for persistence")
		return wrapError(CodePersistenceFailure, err)
	}
	if err := ioutil.WriteFile(s.fullpath(key), buf.Bytes(), 0600); err != nil {
		log.WithError(err).WithField("key", key).Error("FileStore: failed to write persisted message")
		return wrapError(CodePersistenceFailure, err)
	}
	return nil
}

func (s *FileStore) Get(key string) (packets.ControlPacket, error) {
	s.RLock()
	defer s.RUnlock()
	if !s.opened {
		return nil, nil
	}
	raw, err := ioutil.ReadFile(s.fullpath(key))
	if err != nil {
		return nil, nil
	}
	cp, err := packets.ReadPacket(bytes.NewBuffer(raw))
	if err != nil {
		log.WithError(err).WithField("key", key).Error("FileStore: corrupt persisted message")
		return nil, wrapError(CodePersistenceFailure, err)
	}
	return cp, nil
}

func (s *FileStore) All() []string {
	s.RLock()
	defer s.RUnlock()
	entries, err := ioutil.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".msg" {
			keys = append(keys, name[:len(name)-len(".msg")])
		}
	}
	return keys
}

func (s *FileStore) Del(key string) {
	s.Lock()
	defer s.Unlock()
	_ = os.Remove(s.fullpath(key))
}

func (s *FileStore) Close() {
	s.Lock()
	defer s.Unlock()
	s.opened = false
}

func (s *FileStore) Reset() {
	s.Lock()
	defer s.Unlock()
	entries, err := ioutil.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		_ = os.Remove(filepath.Join(s.dir, e.Name()))
	}
}

// Copyright 2024 The logforge Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package logstore

import (
	"sync"

	"go.etcd.io/raft/v3/raftpb"
)

/**
MemoryStorage satisfies the Storage contract with a plain slice. It is for
unit tests and embedding; nothing it holds survives the process.
*/
type MemoryStorage struct {
	l  sync.RWMutex
	hs raftpb.HardState
	//the compaction point, same meaning as the disk storage's snapshot
	snap SnapshotMeta
	//ents[i].Index == snap.Index + 1 + i
	ents []raftpb.Entry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) firstIndexLocked() uint64 {
	return m.snap.Index + 1
}

func (m *MemoryStorage) lastIndexLocked() uint64 {
	return m.snap.Index + uint64(len(m.ents))
}

func (m *MemoryStorage) FirstIndex() uint64 {
	m.l.RLock()
	defer m.l.RUnlock()
	return m.firstIndexLocked()
}

func (m *MemoryStorage) LastIndex() uint64 {
	m.l.RLock()
	defer m.l.RUnlock()
	return m.lastIndexLocked()
}

func (m *MemoryStorage) StoreEntries(entries []raftpb.Entry) error {
	m.l.Lock()
	defer m.l.Unlock()
	if len(entries) == 0 {
		return nil
	}
	for i := 0; i < len(entries)-1; i++ {
		if entries[i].Index+1 != entries[i+1].Index {
			return ErrArgsNotAvailable
		}
	}
	if entries[0].Index <= m.snap.Index {
		if entries[len(entries)-1].Index <= m.snap.Index {
			return nil
		}
		entries = entries[m.snap.Index+1-entries[0].Index:]
	}
	base := entries[0].Index
	last := m.lastIndexLocked()
	if base > last+1 {
		return ErrOutOfOrder
	}
	if base <= last {
		m.ents = m.ents[:base-m.snap.Index-1]
	}
	m.ents = append(m.ents, entries...)
	return nil
}

func (m *MemoryStorage) Entries(lo, hi, maxSize uint64) ([]raftpb.Entry, bool, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	if lo >= hi {
		return nil, false, ErrArgsNotAvailable
	}
	if lo < m.firstIndexLocked() {
		return nil, true, nil
	}
	if hi > m.lastIndexLocked()+1 {
		return nil, false, ErrOutOfBound
	}
	ents := make([]raftpb.Entry, hi-lo)
	copy(ents, m.ents[lo-m.snap.Index-1:hi-m.snap.Index-1])
	return limitEntrySize(ents, maxSize), false, nil
}

func (m *MemoryStorage) Term(i uint64) (uint64, bool, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	if i == m.snap.Index {
		return m.snap.Term, false, nil
	}
	if i < m.firstIndexLocked() {
		return 0, true, nil
	}
	if i > m.lastIndexLocked() {
		return 0, false, ErrOutOfBound
	}
	return m.ents[i-m.snap.Index-1].Term, false, nil
}

func (m *MemoryStorage) HardState() raftpb.HardState {
	m.l.RLock()
	defer m.l.RUnlock()
	return m.hs
}

func (m *MemoryStorage) SetHardState(hs raftpb.HardState) error {
	m.l.Lock()
	defer m.l.Unlock()
	m.hs = hs
	return nil
}

func (m *MemoryStorage) InitialState() (raftpb.HardState, raftpb.ConfState, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	return m.hs, m.snap.ConfState, nil
}

func (m *MemoryStorage) ApplySnapshot(meta *SnapshotMeta) error {
	m.l.Lock()
	defer m.l.Unlock()
	if meta == nil {
		return ErrArgsNotAvailable
	}
	if meta.Index < m.snap.Index {
		return ErrSnapOutOfDate
	}
	last := m.lastIndexLocked()
	prevSnap := m.snap.Index
	m.snap = *meta
	if meta.Index >= last {
		m.ents = nil
		return nil
	}
	//memory has no segment granularity, so the suffix after the snapshot
	//survives precisely
	m.ents = m.ents[meta.Index-prevSnap:]
	return nil
}

func (m *MemoryStorage) AppliedTo(index uint64) {}

func (m *MemoryStorage) Close() error {
	return nil
}

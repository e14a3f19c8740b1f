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
	"go.etcd.io/raft/v3/raftpb"
)

// Storage is the contract a consensus module programs against. DiskStorage
// is the durable implementation; MemoryStorage satisfies the same contract
// for tests and embedding.
//
// The compacted return on the read paths signals an index below the
// retained prefix; it is an expected condition for a lagging reader, not an
// error.
type Storage interface {
	// StoreEntries appends entries. Entries overlapping the existing log
	// truncate the conflicting suffix first; entries at or below the applied
	// snapshot index are dropped silently; a batch that would leave a hole
	// fails with ErrOutOfOrder.
	StoreEntries(entries []raftpb.Entry) error

	// Entries returns entries in [lo,hi) limited to maxSize serialized
	// bytes, but always at least one entry when any is available.
	Entries(lo, hi, maxSize uint64) (ents []raftpb.Entry, compacted bool, err error)

	// Term answers the term of index i; the snapshot boundary answers the
	// snapshot term.
	Term(i uint64) (term uint64, compacted bool, err error)

	FirstIndex() uint64
	LastIndex() uint64

	HardState() raftpb.HardState
	SetHardState(hs raftpb.HardState) error
	InitialState() (raftpb.HardState, raftpb.ConfState, error)

	// ApplySnapshot records the snapshot metadata and erases the log prefix
	// it covers.
	ApplySnapshot(meta *SnapshotMeta) error

	// AppliedTo hints which entries the state machine consumed; retention
	// never deletes past it.
	AppliedTo(index uint64)

	Close() error
}

var (
	_ Storage = (*DiskStorage)(nil)
	_ Storage = (*MemoryStorage)(nil)
)

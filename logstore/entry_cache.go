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

	"github.com/golang/glog"
	"go.etcd.io/raft/v3/raftpb"
)

var (
	//DefaultEntryCacheSize is the slot count of the tail entry cache.
	DefaultEntryCacheSize uint64 = 4096
)

//EntryCache keeps the most recent entries in fixed slots (index % size) so
//reads near the tail never touch the disk. The window [first,last] is
//always contiguous; first==0 means empty.
type EntryCache struct {
	Mu    sync.RWMutex
	Slots []raftpb.Entry
	Size  uint64
	First uint64
	Last  uint64
}

func NewEntryCache(size uint64) *EntryCache {
	if size == 0 {
		size = DefaultEntryCacheSize
	}
	return &EntryCache{
		Slots: make([]raftpb.Entry, size),
		Size:  size,
	}
}

func (c *EntryCache) WriteEntries(ents []raftpb.Entry) {
	if len(ents) == 0 {
		return
	}
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if c.First != 0 && ents[0].Index != c.Last+1 {
		//the caller truncated behind our back, start over
		glog.Warningf("[entry_cache.go-WriteEntries]:cache window is not continuous,last=%d,ents[0].Index=%d",
			c.Last, ents[0].Index)
		c.resetLocked()
	}
	for i := 0; i < len(ents); i++ {
		c.Slots[ents[i].Index%c.Size] = ents[i]
		c.Last = ents[i].Index
		if c.First == 0 {
			c.First = ents[i].Index
		}
	}
	if c.Last-c.First+1 > c.Size {
		c.First = c.Last - c.Size + 1
	}
}

//GetEntries answers [lo,hi) only when the whole range is resident.
func (c *EntryCache) GetEntries(lo, hi uint64) ([]raftpb.Entry, bool) {
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	if c.First == 0 || lo < c.First || hi > c.Last+1 || lo >= hi {
		return nil, false
	}
	ents := createRaftEntriesSlice(hi - lo)
	for i := lo; i < hi; i++ {
		e := c.Slots[i%c.Size]
		if e.Index != i {
			glog.Fatalf("[entry_cache.go-GetEntries]:entry in cache is not correct,want=%d,got=%d,first=%d,last=%d",
				i, e.Index, c.First, c.Last)
		}
		ents = append(ents, e)
	}
	return ents, true
}

func (c *EntryCache) GetTerm(i uint64) (uint64, bool) {
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	if c.First == 0 || i < c.First || i > c.Last {
		return 0, false
	}
	e := c.Slots[i%c.Size]
	if e.Index != i {
		glog.Fatalf("[entry_cache.go-GetTerm]:entry in cache is not correct,want=%d,got=%d", i, e.Index)
	}
	return e.Term, true
}

//TruncateFrom drops every cached entry with index >= idx.
func (c *EntryCache) TruncateFrom(idx uint64) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if c.First == 0 || idx > c.Last {
		return
	}
	if idx <= c.First {
		c.resetLocked()
		return
	}
	c.Last = idx - 1
}

func (c *EntryCache) Reset() {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.resetLocked()
}

func (c *EntryCache) resetLocked() {
	c.First = 0
	c.Last = 0
}

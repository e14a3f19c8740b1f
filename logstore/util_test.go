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
	"bytes"
	"math/rand"
	"os"
	"testing"

	"go.etcd.io/raft/v3/raftpb"
)

func initTmpDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "logforge-logstore-test")
	if err != nil {
		t.Fatalf("MkdirTemp error:%s", err.Error())
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

func openStore(t *testing.T, cfg *Config) *DiskStorage {
	t.Helper()
	store, err := NewDiskStorage(cfg)
	if err != nil {
		t.Fatalf("NewDiskStorage error:%s", err.Error())
	}
	return store
}

func randomEntries(lo, hi uint64, dataSize int) []raftpb.Entry {
	ents := make([]raftpb.Entry, 0, hi-lo)
	term := uint64(1)
	for i := lo; i < hi; i++ {
		if rand.Intn(10) == 0 {
			term++
		}
		data := make([]byte, dataSize)
		rand.Read(data)
		ents = append(ents, raftpb.Entry{
			Index: i,
			Term:  term,
			Type:  raftpb.EntryNormal,
			Data:  data,
		})
	}
	return ents
}

func equalEntries(t *testing.T, got, want []raftpb.Entry) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("entries count not equal,got=%d,want=%d", len(got), len(want))
	}
	for i := 0; i < len(got); i++ {
		if got[i].Index != want[i].Index || got[i].Term != want[i].Term || got[i].Type != want[i].Type {
			t.Fatalf("entry header not equal at %d,got={%d,%d,%v},want={%d,%d,%v}",
				i, got[i].Index, got[i].Term, got[i].Type, want[i].Index, want[i].Term, want[i].Type)
		}
		if !bytes.Equal(got[i].Data, want[i].Data) {
			t.Fatalf("entry data not equal at index %d", got[i].Index)
		}
	}
}

func TestSegmentFileName(t *testing.T) {
	name := segmentFileName(3, 121)
	seqno, first, err := parseSegmentName(name)
	if err != nil {
		t.Fatalf("parseSegmentName error:%s", err.Error())
	}
	if seqno != 3 || first != 121 {
		t.Fatalf("parseSegmentName not equal,seqno=%d,first=%d", seqno, first)
	}
	if _, _, err = parseSegmentName("whatever.log"); err != ErrBadSegmentName {
		t.Fatalf("expect ErrBadSegmentName,got=%v", err)
	}
	if _, _, err = parseSegmentName("0000000000000003-00000000000000000121.idx"); err != ErrBadSegmentName {
		t.Fatalf("expect ErrBadSegmentName,got=%v", err)
	}
}

func TestLimitEntrySize(t *testing.T) {
	ents := randomEntries(1, 10, 64)
	budget := entrySize(&ents[0]) + entrySize(&ents[1])
	got := limitEntrySize(ents, budget)
	if len(got) != 2 {
		t.Fatalf("limitEntrySize count not equal,got=%d", len(got))
	}
	//the first entry always comes back
	got = limitEntrySize(ents, 1)
	if len(got) != 1 {
		t.Fatalf("limitEntrySize should keep one entry,got=%d", len(got))
	}
	got = limitEntrySize(ents, noLimit)
	if len(got) != len(ents) {
		t.Fatalf("limitEntrySize should keep all,got=%d", len(got))
	}
}

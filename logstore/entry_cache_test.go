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
	"testing"
)

func TestEntryCacheWriteAndGet(t *testing.T) {
	c := NewEntryCache(16)
	ents := randomEntries(1, 11, 8)
	c.WriteEntries(ents)

	got, ok := c.GetEntries(1, 11)
	if !ok {
		t.Fatalf("cache should hold [1,11)")
	}
	equalEntries(t, got, ents)

	if _, ok = c.GetEntries(0, 5); ok {
		t.Fatalf("cache should miss below the window")
	}
	if _, ok = c.GetEntries(5, 12); ok {
		t.Fatalf("cache should miss above the window")
	}

	term, ok := c.GetTerm(5)
	if !ok || term != ents[4].Term {
		t.Fatalf("GetTerm not equal,term=%d,ok=%v", term, ok)
	}
}

func TestEntryCacheWrapAround(t *testing.T) {
	c := NewEntryCache(8)
	ents := randomEntries(1, 21, 8)
	c.WriteEntries(ents)

	if c.First != 13 || c.Last != 20 {
		t.Fatalf("cache window not equal,first=%d,last=%d", c.First, c.Last)
	}
	if _, ok := c.GetEntries(1, 9); ok {
		t.Fatalf("overwritten entries should miss")
	}
	got, ok := c.GetEntries(13, 21)
	if !ok {
		t.Fatalf("cache should hold [13,21)")
	}
	equalEntries(t, got, ents[12:])
}

func TestEntryCacheTruncateFrom(t *testing.T) {
	c := NewEntryCache(16)
	ents := randomEntries(1, 11, 8)
	c.WriteEntries(ents)

	c.TruncateFrom(6)
	if c.Last != 5 {
		t.Fatalf("cache last not equal,last=%d", c.Last)
	}
	if _, ok := c.GetEntries(1, 7); ok {
		t.Fatalf("truncated entries should miss")
	}
	got, ok := c.GetEntries(1, 6)
	if !ok {
		t.Fatalf("cache should hold [1,6)")
	}
	equalEntries(t, got, ents[:5])

	//write again across the truncation point
	c.WriteEntries(randomEntries(6, 8, 8))
	if c.Last != 7 {
		t.Fatalf("cache last not equal after rewrite,last=%d", c.Last)
	}

	c.TruncateFrom(1)
	if c.First != 0 || c.Last != 0 {
		t.Fatalf("cache should be empty,first=%d,last=%d", c.First, c.Last)
	}
}

func TestEntryCacheDiscontinuousWrite(t *testing.T) {
	c := NewEntryCache(16)
	c.WriteEntries(randomEntries(1, 5, 8))
	//a gap resets the window instead of serving a broken range
	c.WriteEntries(randomEntries(10, 12, 8))
	if c.First != 10 || c.Last != 11 {
		t.Fatalf("cache window not reset,first=%d,last=%d", c.First, c.Last)
	}
}

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
	"os"
	"path"
	"testing"

	"go.etcd.io/raft/v3/raftpb"
)

var segmentTestSize int64 = 64 * 1024

func newTestSegment(t *testing.T, dir string, firstIndex uint64) *Segment {
	t.Helper()
	segment, err := NewSegment(&NewSegmentConfig{
		Dir:        dir,
		Seqno:      0,
		FirstIndex: firstIndex,
		MaxBytes:   segmentTestSize,
	})
	if err != nil {
		t.Fatalf("NewSegment error:%s", err.Error())
	}
	return segment
}

func TestNewSegment(t *testing.T) {
	dir := initTmpDir(t)
	segment := newTestSegment(t, dir, 1)
	defer segment.Close()

	if segment.Name != segmentFileName(0, 1) {
		t.Fatalf("segment.Name not equal,segment.Name=%s", segment.Name)
	}
	if segment.SegmentPath != path.Join(dir, segment.Name) {
		t.Fatalf("segment.SegmentPath not equal,segment.SegmentPath=%s", segment.SegmentPath)
	}
	if segment.Status != SegmentRDWR || segment.WritePos != 0 || segment.EntryCount() != 0 {
		t.Fatalf("segment state not equal,status=%v,writePos=%d,count=%d",
			segment.Status, segment.WritePos, segment.EntryCount())
	}
	if segment.LastIndex() != 0 {
		t.Fatalf("empty segment lastIndex not equal,lastIndex=%d", segment.LastIndex())
	}

	fi, err := os.Stat(segment.SegmentPath)
	if err != nil {
		t.Fatalf("Stat error:%s", err.Error())
	}
	if fi.Size() != segmentTestSize {
		t.Fatalf("segment file is not preallocated,size=%d", fi.Size())
	}

	//creating the same segment twice must fail
	if _, err = NewSegment(&NewSegmentConfig{Dir: dir, Seqno: 0, FirstIndex: 1, MaxBytes: segmentTestSize}); err != ErrFileExist {
		t.Fatalf("expect ErrFileExist,got=%v", err)
	}
}

func TestSegmentWriteAndRead(t *testing.T) {
	dir := initTmpDir(t)
	segment := newTestSegment(t, dir, 1)
	defer segment.Close()

	ents := randomEntries(1, 21, 64)
	records, _ := generateRecords(ents)
	if err := segment.WriteRecords(records); err != nil {
		t.Fatalf("WriteRecords error:%s", err.Error())
	}
	if err := segment.Flush(); err != nil {
		t.Fatalf("Flush error:%s", err.Error())
	}
	if segment.LastIndex() != 20 || segment.EntryCount() != 20 {
		t.Fatalf("segment range not equal,lastIndex=%d,count=%d", segment.LastIndex(), segment.EntryCount())
	}

	got, _, err := segment.ReadEntries(1, 21, noLimit, 0)
	if err != nil {
		t.Fatalf("ReadEntries error:%s", err.Error())
	}
	equalEntries(t, got, ents)

	got, _, err = segment.ReadEntries(5, 9, noLimit, 0)
	if err != nil {
		t.Fatalf("ReadEntries error:%s", err.Error())
	}
	equalEntries(t, got, ents[4:8])

	for i := uint64(1); i <= 20; i++ {
		term, err := segment.ReadTerm(i)
		if err != nil {
			t.Fatalf("ReadTerm error:%s", err.Error())
		}
		if term != ents[i-1].Term {
			t.Fatalf("term not equal,index=%d,term=%d,want=%d", i, term, ents[i-1].Term)
		}
	}

	if _, _, err = segment.ReadEntries(21, 22, noLimit, 0); err != ErrEntryNotExist {
		t.Fatalf("expect ErrEntryNotExist,got=%v", err)
	}
}

func TestSegmentReadBudget(t *testing.T) {
	dir := initTmpDir(t)
	segment := newTestSegment(t, dir, 1)
	defer segment.Close()

	ents := randomEntries(1, 11, 64)
	records, _ := generateRecords(ents)
	if err := segment.WriteRecords(records); err != nil {
		t.Fatalf("WriteRecords error:%s", err.Error())
	}

	budget := entrySize(&ents[0]) + entrySize(&ents[1])
	got, used, err := segment.ReadEntries(1, 11, budget, 0)
	if err != nil {
		t.Fatalf("ReadEntries error:%s", err.Error())
	}
	if len(got) != 2 || used != budget {
		t.Fatalf("budget read not equal,count=%d,used=%d,budget=%d", len(got), used, budget)
	}

	//the first entry ignores the budget
	got, _, err = segment.ReadEntries(1, 11, 1, 0)
	if err != nil {
		t.Fatalf("ReadEntries error:%s", err.Error())
	}
	if len(got) != 1 {
		t.Fatalf("budget read should keep one entry,count=%d", len(got))
	}

	//a previous segment already produced entries, the budget binds
	got, _, err = segment.ReadEntries(1, 11, 1, 3)
	if err != nil {
		t.Fatalf("ReadEntries error:%s", err.Error())
	}
	if len(got) != 0 {
		t.Fatalf("exhausted budget should read nothing,count=%d", len(got))
	}
}

func TestSegmentTruncateFrom(t *testing.T) {
	dir := initTmpDir(t)
	segment := newTestSegment(t, dir, 1)
	defer segment.Close()

	ents := randomEntries(1, 11, 64)
	records, _ := generateRecords(ents)
	if err := segment.WriteRecords(records); err != nil {
		t.Fatalf("WriteRecords error:%s", err.Error())
	}
	prevPos := segment.WritePos

	if err := segment.TruncateFrom(6); err != nil {
		t.Fatalf("TruncateFrom error:%s", err.Error())
	}
	if segment.LastIndex() != 5 || segment.WritePos >= prevPos {
		t.Fatalf("truncate not applied,lastIndex=%d,writePos=%d", segment.LastIndex(), segment.WritePos)
	}
	got, _, err := segment.ReadEntries(1, 6, noLimit, 0)
	if err != nil {
		t.Fatalf("ReadEntries error:%s", err.Error())
	}
	equalEntries(t, got, ents[:5])

	//append after the cut
	newEnts := randomEntries(6, 9, 64)
	records, _ = generateRecords(newEnts)
	if err = segment.WriteRecords(records); err != nil {
		t.Fatalf("WriteRecords error:%s", err.Error())
	}
	got, _, err = segment.ReadEntries(6, 9, noLimit, 0)
	if err != nil {
		t.Fatalf("ReadEntries error:%s", err.Error())
	}
	equalEntries(t, got, newEnts)

	//truncate the whole segment
	if err = segment.TruncateFrom(1); err != nil {
		t.Fatalf("TruncateFrom error:%s", err.Error())
	}
	if segment.EntryCount() != 0 || segment.WritePos != 0 {
		t.Fatalf("segment should be empty,count=%d,writePos=%d", segment.EntryCount(), segment.WritePos)
	}
}

func TestSegmentSealAndReopen(t *testing.T) {
	dir := initTmpDir(t)
	segment := newTestSegment(t, dir, 1)

	ents := randomEntries(1, 31, 64)
	records, _ := generateRecords(ents)
	if err := segment.WriteRecords(records); err != nil {
		t.Fatalf("WriteRecords error:%s", err.Error())
	}
	dataEnd := segment.WritePos
	if err := segment.Seal(); err != nil {
		t.Fatalf("Seal error:%s", err.Error())
	}
	if segment.Status != SegmentReadOnly {
		t.Fatalf("sealed segment should be read only,status=%v", segment.Status)
	}
	fi, err := os.Stat(segment.SegmentPath)
	if err != nil {
		t.Fatalf("Stat error:%s", err.Error())
	}
	if fi.Size() != dataEnd+TrailerSize {
		t.Fatalf("sealed size not equal,size=%d,want=%d", fi.Size(), dataEnd+TrailerSize)
	}
	name := segment.Name
	if err = segment.Close(); err != nil {
		t.Fatalf("Close error:%s", err.Error())
	}

	//the trailer hands back the offset table without a scan
	reopened, res, err := OpenSegment(&OpenSegmentConfig{Dir: dir, Name: name, IsTail: true})
	if err != nil {
		t.Fatalf("OpenSegment error:%s", err.Error())
	}
	defer reopened.Close()
	if res != nil {
		t.Fatalf("sealed segment should open from its trailer")
	}
	if reopened.Status != SegmentReadOnly || reopened.EntryCount() != 30 || reopened.WritePos != dataEnd {
		t.Fatalf("reopened segment not equal,status=%v,count=%d,writePos=%d",
			reopened.Status, reopened.EntryCount(), reopened.WritePos)
	}
	got, _, err := reopened.ReadEntries(1, 31, noLimit, 0)
	if err != nil {
		t.Fatalf("ReadEntries error:%s", err.Error())
	}
	equalEntries(t, got, ents)
}

func TestSegmentReopenWithoutTrailer(t *testing.T) {
	dir := initTmpDir(t)
	segment := newTestSegment(t, dir, 1)

	ents := randomEntries(1, 11, 64)
	records, _ := generateRecords(ents)
	if err := segment.WriteRecords(records); err != nil {
		t.Fatalf("WriteRecords error:%s", err.Error())
	}
	if err := segment.Flush(); err != nil {
		t.Fatalf("Flush error:%s", err.Error())
	}
	name := segment.Name
	segment.Close()

	//a mutable tail rebuilds its offset table by scan
	reopened, res, err := OpenSegment(&OpenSegmentConfig{Dir: dir, Name: name, IsTail: true})
	if err != nil {
		t.Fatalf("OpenSegment error:%s", err.Error())
	}
	defer reopened.Close()
	if res == nil || res.corrupt {
		t.Fatalf("scan result not clean,res=%v", res)
	}
	if reopened.Status != SegmentRDWR || reopened.EntryCount() != 10 {
		t.Fatalf("reopened segment not equal,status=%v,count=%d", reopened.Status, reopened.EntryCount())
	}
	got, _, err := reopened.ReadEntries(1, 11, noLimit, 0)
	if err != nil {
		t.Fatalf("ReadEntries error:%s", err.Error())
	}
	equalEntries(t, got, ents)

	//and keeps accepting appends
	more := randomEntries(11, 16, 64)
	records, _ = generateRecords(more)
	if err = reopened.WriteRecords(records); err != nil {
		t.Fatalf("WriteRecords error:%s", err.Error())
	}
	if reopened.LastIndex() != 15 {
		t.Fatalf("lastIndex not equal,lastIndex=%d", reopened.LastIndex())
	}
}

func TestSegmentRepairAfterSeal(t *testing.T) {
	dir := initTmpDir(t)
	segment := newTestSegment(t, dir, 1)

	ents := randomEntries(1, 11, 64)
	records, _ := generateRecords(ents)
	if err := segment.WriteRecords(records); err != nil {
		t.Fatalf("WriteRecords error:%s", err.Error())
	}
	if err := segment.Seal(); err != nil {
		t.Fatalf("Seal error:%s", err.Error())
	}
	if err := segment.TruncateFrom(5); err != ErrNotAllowWrite {
		t.Fatalf("expect ErrNotAllowWrite,got=%v", err)
	}

	//a conflict truncation re-opens the sealed segment for write
	if err := segment.Repair(segmentTestSize); err != nil {
		t.Fatalf("Repair error:%s", err.Error())
	}
	if err := segment.TruncateFrom(5); err != nil {
		t.Fatalf("TruncateFrom error:%s", err.Error())
	}
	if segment.LastIndex() != 4 {
		t.Fatalf("lastIndex not equal,lastIndex=%d", segment.LastIndex())
	}
	more := randomEntries(5, 8, 64)
	records, _ = generateRecords(more)
	if err := segment.WriteRecords(records); err != nil {
		t.Fatalf("WriteRecords error:%s", err.Error())
	}
	got, _, err := segment.ReadEntries(1, 8, noLimit, 0)
	if err != nil {
		t.Fatalf("ReadEntries error:%s", err.Error())
	}
	want := append([]raftpb.Entry{}, ents[:4]...)
	want = append(want, more...)
	equalEntries(t, got, want)
	segment.Close()

	name := segment.Name
	reopened, res, err := OpenSegment(&OpenSegmentConfig{Dir: dir, Name: name, IsTail: true})
	if err != nil {
		t.Fatalf("OpenSegment error:%s", err.Error())
	}
	defer reopened.Close()
	if res == nil || res.corrupt || reopened.LastIndex() != 7 {
		t.Fatalf("repaired segment did not reopen clean,lastIndex=%d", reopened.LastIndex())
	}
}

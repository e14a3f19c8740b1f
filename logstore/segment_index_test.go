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

//a descriptor-only segment, enough for the index arithmetic
func descSegment(first uint64, count int) *Segment {
	return &Segment{
		FirstIndex: first,
		Offsets:    make([]int64, count),
		Status:     SegmentReadOnly,
	}
}

func newTestIndex() *segmentIndex {
	x := newSegmentIndex()
	//[1,10] [11,20] [21,30]
	x.segs = append(x.segs, descSegment(1, 10), descSegment(11, 10), descSegment(21, 10))
	return x
}

func TestSegmentIndexLocate(t *testing.T) {
	x := newTestIndex()
	for i := uint64(1); i <= 30; i++ {
		seg := x.locate(i)
		if seg == nil {
			t.Fatalf("locate(%d) should find a segment", i)
		}
		if seg.FirstIndex > i || seg.LastIndex() < i {
			t.Fatalf("locate(%d) found wrong segment [%d,%d]", i, seg.FirstIndex, seg.LastIndex())
		}
	}
	if x.locate(31) != nil {
		t.Fatalf("locate above the log should answer nil")
	}
	if x.front().FirstIndex != 1 || x.tail().LastIndex() != 30 {
		t.Fatalf("front/tail not equal,front=%d,tail=%d", x.front().FirstIndex, x.tail().LastIndex())
	}
}

func TestSegmentIndexDropFrontUntil(t *testing.T) {
	x := newTestIndex()

	//a straddling segment stays
	dropped := x.dropFrontUntil(15)
	if len(dropped) != 1 || dropped[0].FirstIndex != 1 {
		t.Fatalf("dropFrontUntil(15) dropped wrong segments,count=%d", len(dropped))
	}
	if x.count() != 2 || x.front().FirstIndex != 11 {
		t.Fatalf("index not equal after drop,count=%d,front=%d", x.count(), x.front().FirstIndex)
	}

	dropped = x.dropFrontUntil(30)
	if len(dropped) != 2 || x.count() != 0 {
		t.Fatalf("dropFrontUntil(30) should empty the index,dropped=%d,count=%d", len(dropped), x.count())
	}
}

func TestSegmentIndexDropBackFrom(t *testing.T) {
	x := newTestIndex()

	dropped := x.dropBackFrom(11)
	if len(dropped) != 2 || x.count() != 1 || x.tail().LastIndex() != 10 {
		t.Fatalf("dropBackFrom(11) not equal,dropped=%d,count=%d", len(dropped), x.count())
	}

	//a cut inside a segment keeps it for the caller to truncate
	x = newTestIndex()
	dropped = x.dropBackFrom(15)
	if len(dropped) != 2 || x.tail().FirstIndex != 11 {
		t.Fatalf("dropBackFrom(15) not equal,dropped=%d,tail=%d", len(dropped), x.tail().FirstIndex)
	}
}

func TestSegmentIndexSealedCount(t *testing.T) {
	x := newTestIndex()
	if x.sealedCount() != 3 {
		t.Fatalf("sealedCount not equal,count=%d", x.sealedCount())
	}
	x.segs[2].Status = SegmentRDWR
	if x.sealedCount() != 2 {
		t.Fatalf("sealedCount not equal,count=%d", x.sealedCount())
	}
	if front := x.removeFront(); front.FirstIndex != 1 {
		t.Fatalf("removeFront not equal,first=%d", front.FirstIndex)
	}
	if x.count() != 2 {
		t.Fatalf("count not equal,count=%d", x.count())
	}
}

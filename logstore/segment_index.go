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
	"sort"

	"github.com/golang/glog"
)

//segmentIndex is the ordered collection of segment descriptors. It owns the
//segment file handles; the façade serializes all mutations, so no extra
//locking happens here.
type segmentIndex struct {
	segs []*Segment
}

func newSegmentIndex() *segmentIndex {
	return &segmentIndex{segs: make([]*Segment, 0, 8)}
}

func (x *segmentIndex) count() int {
	return len(x.segs)
}

func (x *segmentIndex) sealedCount() int {
	n := 0
	for _, s := range x.segs {
		if !s.IsMutable() {
			n++
		}
	}
	return n
}

func (x *segmentIndex) front() *Segment {
	if len(x.segs) == 0 {
		return nil
	}
	return x.segs[0]
}

func (x *segmentIndex) tail() *Segment {
	if len(x.segs) == 0 {
		return nil
	}
	return x.segs[len(x.segs)-1]
}

//locate answers which segment holds index i in logarithmic time.
func (x *segmentIndex) locate(i uint64) *Segment {
	n := len(x.segs)
	pos := sort.Search(n, func(j int) bool {
		return x.segs[j].LastIndex() >= i
	})
	if pos == n {
		return nil
	}
	if s := x.segs[pos]; s.FirstIndex <= i {
		return s
	}
	return nil
}

func (x *segmentIndex) appendTail(s *Segment) {
	if len(x.segs) != 0 {
		prev := x.tail()
		if prev.LastIndex()+1 != s.FirstIndex {
			glog.Fatalf("[segment_index.go-appendTail]:segments are not continuous,prevLast=%d,newFirst=%d",
				prev.LastIndex(), s.FirstIndex)
		}
	}
	x.segs = append(x.segs, s)
}

//dropFrontUntil removes segments whose whole range is <= idx and returns
//them for deletion. A segment straddling idx stays; prefix compaction never
//splits a segment.
func (x *segmentIndex) dropFrontUntil(idx uint64) []*Segment {
	n := 0
	for n < len(x.segs) && x.segs[n].LastIndex() <= idx {
		n++
	}
	dropped := x.segs[:n]
	x.segs = x.segs[n:]
	return dropped
}

//dropBackFrom removes segments whose first index is >= idx and returns them
//for deletion; used by conflict truncation.
func (x *segmentIndex) dropBackFrom(idx uint64) []*Segment {
	n := len(x.segs)
	for n > 0 && x.segs[n-1].FirstIndex >= idx {
		n--
	}
	dropped := x.segs[n:]
	x.segs = x.segs[:n]
	return dropped
}

//dropAll empties the index and returns every segment for deletion.
func (x *segmentIndex) dropAll() []*Segment {
	dropped := x.segs
	x.segs = nil
	return dropped
}

//removeFront pops the first segment; used by the retention policy.
func (x *segmentIndex) removeFront() *Segment {
	if len(x.segs) == 0 {
		return nil
	}
	s := x.segs[0]
	x.segs = x.segs[1:]
	return s
}

func (x *segmentIndex) closeAll() error {
	var firstErr error
	for _, s := range x.segs {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

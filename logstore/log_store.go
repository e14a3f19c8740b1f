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
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.etcd.io/etcd/client/pkg/v3/fileutil"
	"go.etcd.io/raft/v3/raftpb"
)

var (
	DefaultLogFileSize int64 = 64 * 1024 * 1024
	MaxSegmentSize     int64 = 512 * 1024 * 1024

	noLimit      uint64 = math.MaxUint64
	maxSliceSize uint64 = 10000

	lockFileName = "LOCK"

	warningStoreTimeout = 100 //ms
	warningReadTimeout  = 100 //ms
)

//Config carries the open-time options of a DiskStorage.
type Config struct {
	Dir string

	//LogFileSize is the target size at which the tail seals and rolls.
	LogFileSize int64

	//MaxLogFiles caps the sealed segments kept past the applied index;
	//0 keeps everything.
	MaxLogFiles int

	//AllowCorruptStartup tolerates corruption in the middle of the log by
	//truncating the suffix at open time.
	AllowCorruptStartup bool

	//InitialFirstIndex seeds a fresh directory with an empty log whose
	//next accepted index is exactly this value.
	InitialFirstIndex uint64
}

//DiskStorage is the durable log storage of one replication group: a set of
//append-only segment files plus a meta file under a single directory. One
//writer and any number of readers may use it concurrently; the owning
//consensus module serializes the writes.
type DiskStorage struct {
	Dir string
	cfg Config

	Mu   sync.RWMutex
	segs *segmentIndex

	meta      *MetaFile
	hardState raftpb.HardState
	snap      *SnapshotMeta //the compaction point; Index 0 means none

	applied   uint64
	nextSeqno uint64

	cache *EntryCache

	lockFile *fileutil.LockedFile
	dirFile  *os.File
	opened   bool
}

//NewDiskStorage opens (or creates) the storage rooted at cfg.Dir and
//replays the directory into a consistent state.
func NewDiskStorage(cfg *Config) (*DiskStorage, error) {
	if cfg == nil || len(cfg.Dir) == 0 {
		return nil, ErrArgsNotAvailable
	}
	conf := *cfg
	if conf.LogFileSize <= 0 {
		conf.LogFileSize = DefaultLogFileSize
	}
	if conf.LogFileSize > MaxSegmentSize {
		conf.LogFileSize = MaxSegmentSize
	}

	s := &DiskStorage{
		Dir:   filepath.Clean(conf.Dir),
		cfg:   conf,
		segs:  newSegmentIndex(),
		cache: NewEntryCache(DefaultEntryCacheSize),
	}

	if err := os.MkdirAll(s.Dir, fileutil.PrivateDirMode); err != nil {
		glog.Errorf("[log_store.go-NewDiskStorage]:MkdirAll error,err=%s,dir=%s", err.Error(), s.Dir)
		return nil, err
	}
	lockFile, err := fileutil.TryLockFile(filepath.Join(s.Dir, lockFileName),
		os.O_RDWR|os.O_CREATE, fileutil.PrivateFileMode)
	if err != nil {
		glog.Errorf("[log_store.go-NewDiskStorage]:lock dir error,err=%s,dir=%s", err.Error(), s.Dir)
		return nil, err
	}
	s.lockFile = lockFile
	s.dirFile, err = fileutil.OpenDir(s.Dir)
	if err != nil {
		s.releaseLocked()
		return nil, err
	}

	s.meta = NewMetaFile(s.Dir)
	s.meta.RemoveTmp()
	hs, snap, exist, err := s.meta.Load()
	if err != nil {
		s.releaseLocked()
		return nil, err
	}
	if !exist {
		hs = &raftpb.HardState{}
		snap = &SnapshotMeta{}
		if conf.InitialFirstIndex > 1 {
			//synthesize the hole at the front of the log (never un-done by
			//a later open with a different option value)
			snap.Index = conf.InitialFirstIndex - 1
		}
		if err = s.meta.Save(s.dirFile, hs, snap); err != nil {
			s.releaseLocked()
			return nil, err
		}
	}
	s.hardState = *hs
	s.snap = snap
	s.applied = snap.Index

	if err = s.openSegments(); err != nil {
		s.releaseLocked()
		return nil, err
	}
	if err = s.warmCache(); err != nil {
		s.segs.closeAll()
		s.releaseLocked()
		return nil, err
	}

	s.opened = true
	glog.Infof("[log_store.go-NewDiskStorage]:open log store success,dir=%s,firstIndex=%d,lastIndex=%d,segments=%d",
		s.Dir, s.firstIndexLocked(), s.lastIndexLocked(), s.segs.count())
	return s, nil
}

func (s *DiskStorage) releaseLocked() {
	if s.dirFile != nil {
		s.dirFile.Close()
		s.dirFile = nil
	}
	if s.lockFile != nil {
		s.lockFile.Close()
		s.lockFile = nil
	}
}

//openSegments lists the directory, deletes orphans, opens every segment and
//applies the corruption and snapshot-redo policies.
func (s *DiskStorage) openSegments() error {
	names, err := fileutil.ReadDir(s.Dir)
	if err != nil {
		glog.Errorf("[log_store.go-openSegments]:read dir error,err=%s,dir=%s", err.Error(), s.Dir)
		return err
	}

	type segFile struct {
		name  string
		seqno uint64
		first uint64
	}
	logs := make([]segFile, 0, len(names))
	for _, name := range names {
		if !strings.HasSuffix(name, LogFileSuffix) {
			continue
		}
		seqno, first, perr := parseSegmentName(name)
		if perr != nil {
			//an orphan nothing references, from an interrupted create
			glog.Warningf("[log_store.go-openSegments]:remove orphan file,name=%s", name)
			if err := os.Remove(filepath.Join(s.Dir, name)); err != nil {
				return err
			}
			continue
		}
		logs = append(logs, segFile{name: name, seqno: seqno, first: first})
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].seqno < logs[j].seqno })
	for _, lf := range logs {
		if lf.seqno >= s.nextSeqno {
			s.nextSeqno = lf.seqno + 1
		}
	}

	opened := make([]*Segment, 0, len(logs))
	closeOpened := func() {
		for _, sg := range opened {
			sg.Close()
		}
	}

	for i := 0; i < len(logs); i++ {
		isTail := i == len(logs)-1
		seg, res, err := OpenSegment(&OpenSegmentConfig{Dir: s.Dir, Name: logs[i].name, IsTail: isTail})
		if err != nil {
			closeOpened()
			return err
		}
		if res == nil || !res.corrupt {
			opened = append(opened, seg)
			continue
		}

		if !isTail || res.midCorrupt {
			//corruption in the middle of valid data
			if !s.cfg.AllowCorruptStartup {
				glog.Errorf("[log_store.go-openSegments]:corrupt record in %s at offset %d",
					logs[i].name, res.corruptAt)
				seg.Close()
				closeOpened()
				return ErrCorrupt
			}
			glog.Warningf("[log_store.go-openSegments]:corrupt record in %s at offset %d,"+
				"truncating the log suffix from index %d", logs[i].name, res.corruptAt,
				seg.FirstIndex+uint64(len(res.offsets)))
			if err := seg.Repair(s.cfg.LogFileSize); err != nil {
				seg.Close()
				closeOpened()
				return err
			}
			opened = append(opened, seg)
			for j := i + 1; j < len(logs); j++ {
				glog.Warningf("[log_store.go-openSegments]:remove segment %s behind the corruption", logs[j].name)
				if err := os.Remove(filepath.Join(s.Dir, logs[j].name)); err != nil {
					closeOpened()
					return err
				}
			}
			break
		}

		//a torn write at the very end of the tail, from a crash mid-append
		glog.Warningf("[log_store.go-openSegments]:torn write at the tail of %s,offset=%d,truncating",
			logs[i].name, res.corruptAt)
		if err := seg.Repair(s.cfg.LogFileSize); err != nil {
			seg.Close()
			closeOpened()
			return err
		}
		opened = append(opened, seg)
	}

	for i := 1; i < len(opened); i++ {
		if opened[i-1].LastIndex()+1 != opened[i].FirstIndex {
			glog.Errorf("[log_store.go-openSegments]:segments are not continuous,prev=%s(last=%d),next=%s(first=%d)",
				opened[i-1].Name, opened[i-1].LastIndex(), opened[i].Name, opened[i].FirstIndex)
			closeOpened()
			return ErrNotContinuous
		}
	}

	idx := newSegmentIndex()
	idx.segs = append(idx.segs, opened...)

	//redo of a snapshot install the previous process may not have finished
	dropped := idx.dropFrontUntil(s.snap.Index)
	if front := idx.front(); front != nil && front.FirstIndex <= s.snap.Index {
		dropped = append(dropped, idx.dropAll()...)
	}
	for _, sg := range dropped {
		glog.Infof("[log_store.go-openSegments]:remove segment %s below the snapshot point %d",
			sg.Name, s.snap.Index)
		if err := sg.Remove(); err != nil {
			idx.closeAll()
			return err
		}
	}
	s.segs = idx
	return nil
}

//load the newest tail entries into the cache
func (s *DiskStorage) warmCache() error {
	tail := s.segs.tail()
	if tail == nil || tail.EntryCount() == 0 {
		return nil
	}
	lo, last := tail.FirstIndex, tail.LastIndex()
	if last-lo+1 > s.cache.Size {
		lo = last - s.cache.Size + 1
	}
	ents, _, err := tail.ReadEntries(lo, last+1, noLimit, 0)
	if err != nil {
		return err
	}
	s.cache.WriteEntries(ents)
	return nil
}

func (s *DiskStorage) firstIndexLocked() uint64 {
	if front := s.segs.front(); front != nil {
		return front.FirstIndex
	}
	return s.snap.Index + 1
}

func (s *DiskStorage) lastIndexLocked() uint64 {
	if tail := s.segs.tail(); tail != nil {
		return tail.LastIndex()
	}
	return s.snap.Index
}

//FirstIndex is the lowest readable index; LastIndex+1 when the log is
//empty. It never fails once the storage is open.
func (s *DiskStorage) FirstIndex() uint64 {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return s.firstIndexLocked()
}

func (s *DiskStorage) LastIndex() uint64 {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return s.lastIndexLocked()
}

//FilesCount answers how many segment files the storage currently holds.
func (s *DiskStorage) FilesCount() int {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return s.segs.count()
}

//StoreEntries appends a batch of entries with strictly sequential indices.
//A batch overlapping the stored log truncates the conflicting suffix; a
//batch at or below the snapshot point shrinks to its unseen part; a batch
//beyond LastIndex()+1 fails with ErrOutOfOrder. The batch becomes durable
//with a single fsync before the call returns.
func (s *DiskStorage) StoreEntries(entries []raftpb.Entry) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if !s.opened {
		return ErrNotOpen
	}
	if len(entries) == 0 {
		return nil
	}
	for i := 0; i < len(entries)-1; i++ {
		if entries[i].Index+1 != entries[i+1].Index {
			glog.Errorf("[log_store.go-StoreEntries]:entries are not continuous,entries[%d].Index=%d,entries[%d].Index=%d",
				i, entries[i].Index, i+1, entries[i+1].Index)
			return ErrArgsNotAvailable
		}
	}

	//drop the part the snapshot already covers
	if entries[0].Index <= s.snap.Index {
		if entries[len(entries)-1].Index <= s.snap.Index {
			return nil
		}
		entries = entries[s.snap.Index+1-entries[0].Index:]
	}

	base := entries[0].Index
	last := s.lastIndexLocked()
	if base > last+1 {
		glog.Errorf("[log_store.go-StoreEntries]:entries would leave a hole,base=%d,lastIndex=%d", base, last)
		return ErrOutOfOrder
	}
	if base <= last {
		if err := s.truncateSuffix(base); err != nil {
			return err
		}
	}

	writeStart := time.Now()
	if err := s.appendEntries(entries); err != nil {
		return err
	}
	s.cache.WriteEntries(entries)

	storeDuration := time.Since(writeStart)
	LogstoreWriteTps.Add(float64(len(entries)))
	LogstoreWriteLatency.Observe(float64(storeDuration / time.Millisecond))
	if storeDuration > time.Duration(warningStoreTimeout)*time.Millisecond {
		glog.Warningf("[log_store.go-StoreEntries]:store entries cost %v,count=%d,range=[%d,%d]",
			storeDuration, len(entries), base, entries[len(entries)-1].Index)
	}
	return nil
}

//truncateSuffix removes every stored entry with index >= base. Whole tail
//segments drop first; a segment straddling base re-opens mutable and cuts
//at the record boundary.
func (s *DiskStorage) truncateSuffix(base uint64) error {
	dropped := s.segs.dropBackFrom(base)
	for _, sg := range dropped {
		glog.Infof("[log_store.go-truncateSuffix]:remove segment %s for conflict at index %d", sg.Name, base)
		if err := sg.Remove(); err != nil {
			return err
		}
	}
	if tail := s.segs.tail(); tail != nil && tail.LastIndex() >= base {
		if !tail.IsMutable() {
			if err := tail.Repair(s.cfg.LogFileSize); err != nil {
				return err
			}
		}
		if err := tail.TruncateFrom(base); err != nil {
			return err
		}
	}
	s.cache.TruncateFrom(base)
	return nil
}

func generateRecords(entries []raftpb.Entry) ([]*Record, int64) {
	records := make([]*Record, 0, len(entries))
	var size int64
	for i := 0; i < len(entries); i++ {
		r := recordFromEntry(&entries[i])
		records = append(records, r)
		size += r.frameSize()
	}
	return records, size
}

//appendEntries writes the batch into the tail, rolling as needed, and
//fsyncs once at the end. On failure the log rolls back to the pre-batch
//boundary so the batch is never half visible.
func (s *DiskStorage) appendEntries(entries []raftpb.Entry) error {
	records, _ := generateRecords(entries)

	preCount := s.segs.count()
	preTail := s.segs.tail()
	var preNext uint64 //first index this batch occupies in preTail
	if preTail != nil {
		if preTail.EntryCount() == 0 {
			preNext = preTail.FirstIndex
		} else {
			preNext = preTail.LastIndex() + 1
		}
	}

	err := func() error {
		i := 0
		for i < len(records) {
			tail := s.segs.tail()
			need := records[i].frameSize()
			if tail == nil || !tail.IsMutable() || !tail.fits(need) {
				var rerr error
				tail, rerr = s.rollSegment(records[i].Index, need)
				if rerr != nil {
					return rerr
				}
			}
			j := i
			var groupSize int64
			for j < len(records) && tail.fits(groupSize+records[j].frameSize()) {
				groupSize += records[j].frameSize()
				j++
			}
			if j == i {
				glog.Fatalf("[log_store.go-appendEntries]:fresh segment cannot hold record,index=%d,size=%d",
					records[i].Index, need)
			}
			if werr := tail.WriteRecords(records[i:j]); werr != nil {
				return werr
			}
			i = j
		}
		return s.segs.tail().Flush()
	}()
	if err != nil {
		s.rollbackAppend(preCount, preTail, preNext)
		return err
	}
	return nil
}

//rollbackAppend undoes a failed batch: segments the batch created go away
//and the previous tail truncates back to the pre-batch boundary.
func (s *DiskStorage) rollbackAppend(preCount int, preTail *Segment, preNext uint64) {
	for s.segs.count() > preCount {
		sg := s.segs.segs[s.segs.count()-1]
		s.segs.segs = s.segs.segs[:s.segs.count()-1]
		if err := sg.Remove(); err != nil {
			glog.Errorf("[log_store.go-rollbackAppend]:remove segment error,err=%s,segmentName=%s",
				err.Error(), sg.Name)
		}
	}
	if preTail == nil {
		return
	}
	if !preTail.IsMutable() {
		if err := preTail.Repair(s.cfg.LogFileSize); err != nil {
			glog.Errorf("[log_store.go-rollbackAppend]:repair segment error,err=%s,segmentName=%s",
				err.Error(), preTail.Name)
			return
		}
	}
	if err := preTail.TruncateFrom(preNext); err != nil {
		glog.Errorf("[log_store.go-rollbackAppend]:truncate segment error,err=%s,segmentName=%s",
			err.Error(), preTail.Name)
	}
}

//rollSegment seals the current tail and starts a fresh one whose first
//record is already known, so an oversized record gets a big enough file.
func (s *DiskStorage) rollSegment(firstIndex uint64, need int64) (*Segment, error) {
	if tail := s.segs.tail(); tail != nil && tail.IsMutable() {
		if err := tail.Seal(); err != nil {
			return nil, err
		}
		SegmentCutCounter.Inc()
		s.checkRetention()
	}
	maxBytes := s.cfg.LogFileSize
	if need > maxBytes {
		maxBytes = need
	}
	seg, err := NewSegment(&NewSegmentConfig{
		Dir:        s.Dir,
		Seqno:      s.nextSeqno,
		FirstIndex: firstIndex,
		MaxBytes:   maxBytes,
	})
	if err != nil {
		return nil, err
	}
	s.nextSeqno++
	s.segs.appendTail(seg)
	if err = syncDir(s.dirFile); err != nil {
		return nil, err
	}
	glog.Infof("[log_store.go-rollSegment]:rolling segment,newSegmentName=%s,firstIndex=%d", seg.Name, firstIndex)
	return seg, nil
}

//checkRetention deletes applied front segments once the sealed count
//crosses the configured cap; it never crosses the applied index.
func (s *DiskStorage) checkRetention() {
	if s.cfg.MaxLogFiles <= 0 {
		return
	}
	for s.segs.sealedCount() > s.cfg.MaxLogFiles {
		front := s.segs.front()
		if front == nil || front.IsMutable() || front.LastIndex() > s.applied {
			return
		}
		deleteStart := time.Now()
		s.segs.removeFront()
		if err := front.Remove(); err != nil {
			glog.Errorf("[log_store.go-checkRetention]:remove segment error,err=%s,segmentName=%s",
				err.Error(), front.Name)
			return
		}
		LogstoreDeleteSegmentLatency.Observe(float64(time.Since(deleteStart) / time.Millisecond))
	}
}

//Entries returns entries in [lo,hi). An lo below the retained prefix
//reports compacted with no entries. The cumulative serialized size stays
//within maxSize except that the first entry always comes back, so a caller
//paging through the log can never stall.
func (s *DiskStorage) Entries(lo, hi, maxSize uint64) ([]raftpb.Entry, bool, error) {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	if !s.opened {
		return nil, false, ErrNotOpen
	}
	if lo >= hi {
		return nil, false, ErrArgsNotAvailable
	}
	if lo < s.firstIndexLocked() {
		return nil, true, nil
	}
	if hi > s.lastIndexLocked()+1 {
		glog.Errorf("[log_store.go-Entries]:entries' hi(%d) is out of bound lastIndex(%d)",
			hi, s.lastIndexLocked())
		return nil, false, ErrOutOfBound
	}

	readStart := time.Now()
	var ents []raftpb.Entry
	if cached, ok := s.cache.GetEntries(lo, hi); ok {
		ents = limitEntrySize(cached, maxSize)
	} else {
		var err error
		ents, err = s.readFromSegments(lo, hi, maxSize)
		if err != nil {
			glog.Errorf("[log_store.go-Entries]:read entries error,lo=%d,hi=%d,err=%s", lo, hi, err.Error())
			return nil, false, err
		}
	}

	readDuration := time.Since(readStart)
	LogstoreReadTps.Add(float64(len(ents)))
	LogstoreReadLatency.Observe(float64(readDuration / time.Millisecond))
	if readDuration > time.Duration(warningReadTimeout)*time.Millisecond {
		glog.Warningf("[log_store.go-Entries]:read entries cost %v,count=%d,range=[%d,%d),maxSize=%d",
			readDuration, len(ents), lo, hi, maxSize)
	}
	return ents, false, nil
}

func (s *DiskStorage) readFromSegments(lo, hi, maxSize uint64) ([]raftpb.Entry, error) {
	ents := createRaftEntriesSlice(hi - lo)
	var used uint64
	cur := lo
	for cur < hi {
		seg := s.segs.locate(cur)
		if seg == nil {
			glog.Errorf("[log_store.go-readFromSegments]:no segment holds index %d", cur)
			return nil, ErrEntryNotExist
		}
		segHi := seg.LastIndex() + 1
		if hi < segHi {
			segHi = hi
		}
		budget := uint64(0)
		if used < maxSize {
			budget = maxSize - used
		}
		part, u, err := seg.ReadEntries(cur, segHi, budget, len(ents))
		if err != nil {
			return nil, err
		}
		ents = append(ents, part...)
		used += u
		if uint64(len(part)) < segHi-cur {
			break
		}
		cur = segHi
	}
	return ents, nil
}

//Term answers the term of index i. The snapshot boundary itself answers
//the snapshot term; anything below the retained prefix reports compacted.
func (s *DiskStorage) Term(i uint64) (uint64, bool, error) {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	if !s.opened {
		return 0, false, ErrNotOpen
	}
	if i == s.snap.Index {
		return s.snap.Term, false, nil
	}
	if i < s.firstIndexLocked() {
		return 0, true, nil
	}
	if i > s.lastIndexLocked() {
		return 0, false, ErrOutOfBound
	}
	if term, ok := s.cache.GetTerm(i); ok {
		return term, false, nil
	}
	seg := s.segs.locate(i)
	if seg == nil {
		glog.Errorf("[log_store.go-Term]:no segment holds index %d", i)
		return 0, false, ErrEntryNotExist
	}
	term, err := seg.ReadTerm(i)
	if err != nil {
		return 0, false, err
	}
	return term, false, nil
}

//HardState answers the persisted hard state.
func (s *DiskStorage) HardState() raftpb.HardState {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return s.hardState
}

//SetHardState persists term, vote and commit before returning, so an
//election acknowledged by this node survives a crash.
func (s *DiskStorage) SetHardState(hs raftpb.HardState) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if !s.opened {
		return ErrNotOpen
	}
	if err := s.meta.Save(s.dirFile, &hs, s.snap); err != nil {
		return err
	}
	s.hardState = hs
	return nil
}

//InitialState hands the consensus module its boot state.
func (s *DiskStorage) InitialState() (raftpb.HardState, raftpb.ConfState, error) {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	if !s.opened {
		return raftpb.HardState{}, raftpb.ConfState{}, ErrNotOpen
	}
	return s.hardState, s.snap.ConfState, nil
}

//Snapshot answers the applied snapshot metadata.
func (s *DiskStorage) Snapshot() SnapshotMeta {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return *s.snap
}

//ApplySnapshot records the snapshot metadata atomically, then erases the
//log prefix it covers. A segment straddling the snapshot index drops in
//full and the next write starts a fresh tail right after the snapshot.
func (s *DiskStorage) ApplySnapshot(meta *SnapshotMeta) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if !s.opened {
		return ErrNotOpen
	}
	if meta == nil {
		return ErrArgsNotAvailable
	}
	if meta.Index < s.snap.Index {
		glog.Errorf("[log_store.go-ApplySnapshot]:snapshot index %d is behind the applied snapshot %d",
			meta.Index, s.snap.Index)
		return ErrSnapOutOfDate
	}

	snap := &SnapshotMeta{
		Index:     meta.Index,
		Term:      meta.Term,
		ConfState: meta.ConfState,
	}
	if len(meta.Data) > 0 {
		snap.Data = make([]byte, len(meta.Data))
		copy(snap.Data, meta.Data)
	}
	if err := s.meta.Save(s.dirFile, &s.hardState, snap); err != nil {
		return err
	}
	s.snap = snap

	dropped := s.segs.dropFrontUntil(meta.Index)
	if front := s.segs.front(); front != nil && front.FirstIndex <= meta.Index {
		//the rest of the straddling segment is already reflected in the
		//snapshot; everything behind it goes with it
		dropped = append(dropped, s.segs.dropAll()...)
	}
	for _, sg := range dropped {
		glog.Infof("[log_store.go-ApplySnapshot]:remove segment %s below the snapshot point %d",
			sg.Name, meta.Index)
		if err := sg.Remove(); err != nil {
			return err
		}
	}
	s.cache.Reset()
	if s.applied < meta.Index {
		s.applied = meta.Index
	}
	return nil
}

//Truncate compacts the log prefix up to index: whole segments at or below
//it go away, the straddling segment stays, and the cut never crosses the
//applied index. Retention does this on every seal; Truncate lets the owner
//force it.
func (s *DiskStorage) Truncate(index uint64) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if !s.opened {
		return ErrNotOpen
	}
	if index > s.applied {
		index = s.applied
	}
	//the last segment always stays so FirstIndex/LastIndex keep their
	//meaning without a snapshot
	for s.segs.count() > 1 {
		front := s.segs.front()
		if front.IsMutable() || front.LastIndex() > index {
			break
		}
		deleteStart := time.Now()
		s.segs.removeFront()
		if err := front.Remove(); err != nil {
			glog.Errorf("[log_store.go-Truncate]:remove segment error,err=%s,segmentName=%s",
				err.Error(), front.Name)
			return err
		}
		LogstoreDeleteSegmentLatency.Observe(float64(time.Since(deleteStart) / time.Millisecond))
		glog.Infof("[log_store.go-Truncate]:segment %s compacted below index %d", front.Name, index)
	}
	return nil
}

//AppliedTo records how far the state machine consumed the log; retention
//deletes sealed segments only below this point.
func (s *DiskStorage) AppliedTo(index uint64) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if index > s.applied {
		s.applied = index
	}
}

//Close flushes the tail and releases every file handle. The mutable tail
//stays mutable; a later open resumes exactly where this one stopped.
func (s *DiskStorage) Close() error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if !s.opened {
		return nil
	}
	if tail := s.segs.tail(); tail != nil && tail.IsMutable() {
		if err := tail.Flush(); err != nil {
			glog.Errorf("[log_store.go-Close]:flush tail error,err=%s,segmentName=%s", err.Error(), tail.Name)
		}
	}
	err := s.segs.closeAll()
	s.releaseLocked()
	s.opened = false
	glog.Infof("[log_store.go-Close]:log store closed,dir=%s", s.Dir)
	return err
}

//Destroy closes the storage and removes the directory, or renames it to
//<dir>.bak.<unix-seconds> when backup is set.
func (s *DiskStorage) Destroy(backup bool) error {
	if err := s.Close(); err != nil {
		return err
	}
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if backup {
		bakPath := fmt.Sprintf("%s.bak.%d", s.Dir, time.Now().Unix())
		if err := os.Rename(s.Dir, bakPath); err != nil {
			glog.Errorf("[log_store.go-Destroy]:rename dir error,err=%s,dir=%s", err.Error(), s.Dir)
			return err
		}
		glog.Infof("[log_store.go-Destroy]:log store moved to %s", bakPath)
		return nil
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		glog.Errorf("[log_store.go-Destroy]:remove dir error,err=%s,dir=%s", err.Error(), s.Dir)
		return err
	}
	glog.Infof("[log_store.go-Destroy]:log store destroyed,dir=%s", s.Dir)
	return nil
}

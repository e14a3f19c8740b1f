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
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/glog"
	"go.etcd.io/etcd/client/pkg/v3/fileutil"
	"go.etcd.io/raft/v3/raftpb"
)

type SegmentStatus int8

const (
	SegmentReadOnly SegmentStatus = iota
	SegmentRDWR
	SegmentClosed
)

//A sealed segment ends with a fixed-size trailer:
//magic|entry_count|offset_table|padding|crc
//The crc covers everything before it. When the entry count exceeds the
//table capacity the table is omitted and readers rebuild it by scan.
const (
	TrailerSize  = 4096
	trailerMagic uint32 = 0x4c465452

	trailerTableCap = (TrailerSize - 12) / 4
)

type Segment struct {
	Mu          sync.RWMutex
	SegmentPath string

	Seqno      uint64
	FirstIndex uint64 //fixed at creation, encoded in the file name

	Log      *fileutil.LockedFile
	Name     string
	Size     int64 //preallocated logical size while mutable
	WritePos int64

	Offsets []int64 //byte position of every live record
	Status  SegmentStatus
}

type NewSegmentConfig struct {
	Dir        string
	Seqno      uint64
	FirstIndex uint64
	MaxBytes   int64
}

//create a segment file, preallocated so the zero-filled remainder marks
//the end of valid data for scans
func NewSegment(cfg *NewSegmentConfig) (*Segment, error) {
	if cfg.MaxBytes <= 0 || len(cfg.Dir) == 0 {
		glog.Errorf("[segment.go-NewSegment]:args are not available:cfg.MaxBytes=%d,cfg.Dir=%s",
			cfg.MaxBytes, cfg.Dir)
		return nil, ErrArgsNotAvailable
	}

	name := segmentFileName(cfg.Seqno, cfg.FirstIndex)
	logPath := filepath.Join(filepath.Clean(cfg.Dir), name)
	if IsFileExist(logPath) {
		glog.Errorf("[segment.go-NewSegment]:segment file:%v already exists", logPath)
		return nil, ErrFileExist
	}

	logFile, err := fileutil.TryLockFile(logPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, fileutil.PrivateFileMode)
	if err != nil {
		return nil, err
	}
	if err = fileutil.Preallocate(logFile.File, cfg.MaxBytes, true); err != nil {
		glog.Errorf("[segment.go-NewSegment]:failed to allocate space when creating new segment file (%v)", err)
		logFile.Close()
		return nil, err
	}

	s := &Segment{
		SegmentPath: logPath,
		Seqno:       cfg.Seqno,
		FirstIndex:  cfg.FirstIndex,
		Log:         logFile,
		Name:        name,
		Size:        cfg.MaxBytes,
		WritePos:    0,
		Status:      SegmentRDWR,
	}
	return s, nil
}

type OpenSegmentConfig struct {
	Dir    string
	Name   string
	IsTail bool //the last segment in the directory opens for write unless it is sealed
}

type scanResult struct {
	offsets    []int64
	end        int64 //offset one past the last valid record
	corrupt    bool
	corruptAt  int64
	midCorrupt bool //a parsable record follows the corrupt one
}

//open an existing segment file. A valid trailer gives the offset table in
//O(1); otherwise the file is scanned record by record. The caller applies
//the corruption policy using the returned scan result.
func OpenSegment(cfg *OpenSegmentConfig) (*Segment, *scanResult, error) {
	if len(cfg.Dir) == 0 || len(cfg.Name) == 0 {
		return nil, nil, ErrArgsNotAvailable
	}
	seqno, firstIndex, err := parseSegmentName(cfg.Name)
	if err != nil {
		return nil, nil, err
	}
	segmentPath := filepath.Join(filepath.Clean(cfg.Dir), cfg.Name)
	if !IsFileExist(segmentPath) {
		return nil, nil, ErrFileNotExist
	}

	logFile, err := fileutil.TryLockFile(segmentPath, os.O_RDWR, fileutil.PrivateFileMode)
	if err != nil {
		return nil, nil, err
	}
	fi, err := logFile.Stat()
	if err != nil {
		logFile.Close()
		return nil, nil, err
	}
	size := fi.Size()

	s := &Segment{
		SegmentPath: segmentPath,
		Seqno:       seqno,
		FirstIndex:  firstIndex,
		Log:         logFile,
		Name:        cfg.Name,
		Size:        size,
		Status:      SegmentReadOnly,
	}

	count, offsets, sealed := readTrailer(logFile.File, size)
	if sealed {
		dataEnd := size - TrailerSize
		if offsets != nil {
			s.Offsets = offsets
			s.WritePos = dataEnd
			if err := s.checkFirstRecord(); err != nil {
				//trailer lies about the content, fall back to a scan
				glog.Warningf("[segment.go-OpenSegment]:trailer does not match records,rebuild by scan,segmentName=%s", cfg.Name)
			} else {
				return s, nil, nil
			}
		}
		if glog.V(1) {
			glog.Infof("D:[segment.go-OpenSegment]:sealed segment %s has no usable offset table (count=%d), scanning", cfg.Name, count)
		}
		res, err := scanSegmentFile(logFile.File, dataEnd, firstIndex)
		if err != nil {
			logFile.Close()
			return nil, nil, err
		}
		s.Offsets = res.offsets
		s.WritePos = res.end
		return s, res, nil
	}

	//no trailer: a mutable tail, or a segment whose seal never finished
	res, err := scanSegmentFile(logFile.File, size, firstIndex)
	if err != nil {
		logFile.Close()
		return nil, nil, err
	}
	s.Offsets = res.offsets
	s.WritePos = res.end
	if cfg.IsTail && !res.corrupt {
		s.Status = SegmentRDWR
	}
	return s, res, nil
}

//cheap sanity check that the first record agrees with the trailer
func (s *Segment) checkFirstRecord() error {
	if len(s.Offsets) == 0 {
		return ErrCorrupt
	}
	hdr := make([]byte, FrameHeaderSize+RecordHeaderSize)
	if _, err := s.Log.ReadAt(hdr, s.Offsets[0]); err != nil {
		return err
	}
	if recordBinaryToIndex(hdr) != s.FirstIndex {
		return ErrCorrupt
	}
	return nil
}

//scan records from offset 0 up to limit, validating crc and index
//continuity. A zero length field or a clean EOF ends the scan; anything
//else marks the segment corrupt at the last good boundary.
func scanSegmentFile(f *os.File, limit int64, wantFirst uint64) (*scanResult, error) {
	res := new(scanResult)
	hdr := make([]byte, FrameHeaderSize+RecordHeaderSize)
	var off int64
	next := wantFirst

	for off < limit {
		n, err := f.ReadAt(hdr, off)
		if err == io.EOF {
			if n == 0 {
				res.end = off
				return res, nil
			}
			//a few trailing bytes that cannot hold a record header
			res.corrupt = true
			res.corruptAt = off
			res.end = off
			return res, nil
		}
		if err != nil {
			return nil, err
		}
		length := recordBinaryToLength(hdr)
		if length == 0 {
			//zero filled preallocated region
			res.end = off
			return res, nil
		}
		frame := int64(FrameHeaderSize) + int64(length)
		if length < RecordHeaderSize || off+frame > limit {
			res.corrupt = true
			res.corruptAt = off
			res.end = off
			return res, nil
		}
		buf := make([]byte, frame)
		if _, err := f.ReadAt(buf, off); err != nil && err != io.EOF {
			return nil, err
		}
		rec, rerr := binaryToRecord(buf)
		if rerr != nil {
			res.corrupt = true
			res.corruptAt = off
			res.end = off
			res.midCorrupt = probeRecordAt(f, off+frame, limit)
			return res, nil
		}
		if rec.Index != next {
			glog.Errorf("[segment.go-scanSegmentFile]:record index is not sequential,want=%d,got=%d,offset=%d",
				next, rec.Index, off)
			res.corrupt = true
			res.corruptAt = off
			res.end = off
			res.midCorrupt = true
			return res, nil
		}
		res.offsets = append(res.offsets, off)
		off += frame
		next++
		res.end = off
	}
	return res, nil
}

//whether a parsable record sits at off; distinguishes a torn write at the
//tail from corruption in the middle of valid data
func probeRecordAt(f *os.File, off, limit int64) bool {
	if off+FrameHeaderSize+RecordHeaderSize > limit {
		return false
	}
	hdr := make([]byte, FrameHeaderSize+RecordHeaderSize)
	if _, err := f.ReadAt(hdr, off); err != nil {
		return false
	}
	length := recordBinaryToLength(hdr)
	if length < RecordHeaderSize {
		return false
	}
	frame := int64(FrameHeaderSize) + int64(length)
	if off+frame > limit {
		return false
	}
	buf := make([]byte, frame)
	if _, err := f.ReadAt(buf, off); err != nil {
		return false
	}
	_, err := binaryToRecord(buf)
	return err == nil
}

func readTrailer(f *os.File, size int64) (count uint32, offsets []int64, ok bool) {
	if size < TrailerSize {
		return 0, nil, false
	}
	block := make([]byte, TrailerSize)
	if _, err := f.ReadAt(block, size-TrailerSize); err != nil {
		return 0, nil, false
	}
	if Encoding.Uint32(block[0:4]) != trailerMagic {
		return 0, nil, false
	}
	crc := Encoding.Uint32(block[TrailerSize-4:])
	if crc != crc32.Checksum(block[:TrailerSize-4], crcTable) {
		return 0, nil, false
	}
	count = Encoding.Uint32(block[4:8])
	if count == 0 || count > trailerTableCap {
		return count, nil, true
	}
	offsets = make([]int64, count)
	for i := uint32(0); i < count; i++ {
		offsets[i] = int64(Encoding.Uint32(block[8+4*i : 12+4*i]))
	}
	return count, offsets, true
}

func buildTrailer(offsets []int64, writePos int64) []byte {
	block := make([]byte, TrailerSize)
	Encoding.PutUint32(block[0:4], trailerMagic)
	Encoding.PutUint32(block[4:8], uint32(len(offsets)))
	if len(offsets) <= trailerTableCap && writePos <= int64(^uint32(0)) {
		for i, off := range offsets {
			Encoding.PutUint32(block[8+4*i:12+4*i], uint32(off))
		}
	} else {
		//table omitted, readers rebuild it by scan
		Encoding.PutUint32(block[4:8], uint32(trailerTableCap)+1)
	}
	crc := crc32.Checksum(block[:TrailerSize-4], crcTable)
	Encoding.PutUint32(block[TrailerSize-4:], crc)
	return block
}

//the last index this segment holds; FirstIndex-1 when empty
func (s *Segment) LastIndex() uint64 {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return s.lastIndexLocked()
}

func (s *Segment) lastIndexLocked() uint64 {
	return s.FirstIndex + uint64(len(s.Offsets)) - 1
}

func (s *Segment) EntryCount() uint64 {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return uint64(len(s.Offsets))
}

func (s *Segment) IsMutable() bool {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return s.Status == SegmentRDWR
}

func (s *Segment) fits(size int64) bool {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return s.WritePos+size <= s.Size
}

//WriteRecords appends records at the write position. Durability comes from
//a later Flush; the caller groups the fsync per batch.
func (s *Segment) WriteRecords(records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Status != SegmentRDWR {
		glog.Fatalf("[segment.go-WriteRecords]:segment is not allowed to write,name=%s", s.Name)
	}
	want := s.FirstIndex
	if len(s.Offsets) != 0 {
		want = s.lastIndexLocked() + 1
	}
	if records[0].Index != want {
		glog.Fatalf("[segment.go-WriteRecords]:the records are not sequential,want=%d,records[0].Index=%d,name=%s",
			want, records[0].Index, s.Name)
	}

	buf := recordsToBinary(records)
	if _, err := s.Log.WriteAt(buf, s.WritePos); err != nil {
		glog.Errorf("[segment.go-WriteRecords]:WriteAt error,err=%s,segmentName=%s,position=%d",
			err.Error(), s.Name, s.WritePos)
		return err
	}
	off := s.WritePos
	for i := 0; i < len(records); i++ {
		s.Offsets = append(s.Offsets, off)
		off += records[i].frameSize()
	}
	s.WritePos = off
	return nil
}

//Flush makes every appended record durable.
func (s *Segment) Flush() error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Status == SegmentClosed {
		return ErrSegmentClosed
	}
	return fileutil.Fdatasync(s.Log.File)
}

//ReadEntries reads entries in [lo,hi) while the cumulative serialized size
//stays within budget. already counts entries the caller accumulated from
//earlier segments; the first entry overall is returned regardless of budget.
func (s *Segment) ReadEntries(lo, hi uint64, budget uint64, already int) ([]raftpb.Entry, uint64, error) {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	if s.Status == SegmentClosed {
		glog.Errorf("[segment.go-ReadEntries]:segment is closed,segmentName=%s,lo=%d,hi=%d", s.Name, lo, hi)
		return nil, 0, ErrSegmentClosed
	}
	if len(s.Offsets) == 0 || lo < s.FirstIndex || hi > s.lastIndexLocked()+1 || lo >= hi {
		return nil, 0, ErrEntryNotExist
	}

	startOff := s.Offsets[lo-s.FirstIndex]
	var endOff int64
	if hi == s.lastIndexLocked()+1 {
		endOff = s.WritePos
	} else {
		endOff = s.Offsets[hi-s.FirstIndex]
	}
	buf := make([]byte, endOff-startOff)
	if _, err := s.Log.ReadAt(buf, startOff); err != nil && err != io.EOF {
		glog.Errorf("[segment.go-ReadEntries]:ReadAt error,err=%s,segmentName=%s,offset=%d,length=%d",
			err.Error(), s.Name, startOff, endOff-startOff)
		return nil, 0, err
	}

	ents := createRaftEntriesSlice(hi - lo)
	var used uint64
	var pos int64
	for idx := lo; idx < hi; idx++ {
		length := recordBinaryToLength(buf[pos:])
		frame := int64(FrameHeaderSize) + int64(length)
		rec, err := binaryToRecord(buf[pos : pos+frame])
		if err != nil {
			glog.Errorf("[segment.go-ReadEntries]:record crc do not match,segmentName=%s,index=%d,position=%d",
				s.Name, idx, startOff+pos)
			return nil, 0, ErrCorrupt
		}
		if rec.Index != idx {
			glog.Fatalf("[segment.go-ReadEntries]:read entries are not continuous,want=%d,got=%d,segmentName=%s",
				idx, rec.Index, s.Name)
		}
		e := rec.entry()
		size := entrySize(&e)
		if already+len(ents) >= 1 && used+size > budget {
			break
		}
		ents = append(ents, e)
		used += size
		pos += frame
	}
	return ents, used, nil
}

//ReadTerm answers the term of one entry from the record header alone.
func (s *Segment) ReadTerm(i uint64) (uint64, error) {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	if s.Status == SegmentClosed {
		return 0, ErrSegmentClosed
	}
	if len(s.Offsets) == 0 || i < s.FirstIndex || i > s.lastIndexLocked() {
		return 0, ErrEntryNotExist
	}
	hdr := make([]byte, FrameHeaderSize+RecordHeaderSize)
	if _, err := s.Log.ReadAt(hdr, s.Offsets[i-s.FirstIndex]); err != nil {
		return 0, err
	}
	if recordBinaryToIndex(hdr) != i {
		glog.Fatalf("[segment.go-ReadTerm]:record index do not match,want=%d,got=%d,segmentName=%s",
			i, recordBinaryToIndex(hdr), s.Name)
	}
	return recordBinaryToTerm(hdr), nil
}

//TruncateFrom removes every record with index >= index by zeroing the byte
//range back to the record boundary. Only the mutable tail may truncate.
func (s *Segment) TruncateFrom(index uint64) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Status == SegmentClosed {
		return ErrSegmentClosed
	}
	if s.Status != SegmentRDWR {
		glog.Errorf("[segment.go-TruncateFrom]:segment open with read,not allow to truncate,segmentName=%s", s.Name)
		return ErrNotAllowWrite
	}
	if len(s.Offsets) == 0 || index > s.lastIndexLocked() {
		return nil
	}
	if index < s.FirstIndex {
		index = s.FirstIndex
	}

	off := s.Offsets[index-s.FirstIndex]
	zeroBuf := make([]byte, s.WritePos-off)
	if _, err := s.Log.WriteAt(zeroBuf, off); err != nil {
		glog.Errorf("[segment.go-TruncateFrom]:WriteAt error,err=%s,segmentName=%s,position=%d",
			err.Error(), s.Name, off)
		return err
	}
	if err := fileutil.Fdatasync(s.Log.File); err != nil {
		return err
	}
	s.Offsets = s.Offsets[:index-s.FirstIndex]
	s.WritePos = off
	return nil
}

//Seal cuts the file to its live bytes, appends the trailer and turns the
//segment read only. A sealed segment never grows again unless Repair
//re-opens it for a conflict truncation or a corrupt-startup splice.
func (s *Segment) Seal() error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Status == SegmentReadOnly {
		return nil
	}
	if s.Status != SegmentRDWR {
		return ErrSegmentClosed
	}
	if err := s.Log.Truncate(s.WritePos); err != nil {
		glog.Errorf("[segment.go-Seal]:Truncate error,err=%s,segmentName=%s", err.Error(), s.Name)
		return err
	}
	block := buildTrailer(s.Offsets, s.WritePos)
	if _, err := s.Log.WriteAt(block, s.WritePos); err != nil {
		glog.Errorf("[segment.go-Seal]:write trailer error,err=%s,segmentName=%s", err.Error(), s.Name)
		return err
	}
	if err := fileutil.Fsync(s.Log.File); err != nil {
		return err
	}
	s.Size = s.WritePos + TrailerSize
	s.Status = SegmentReadOnly
	glog.Infof("[segment.go-Seal]:segment[%s] sealed,entries=%d,bytes=%d", s.Name, len(s.Offsets), s.WritePos)
	return nil
}

//Repair drops everything after the last good record (trailer included) and
//re-opens the segment for write, preallocated back to maxBytes.
func (s *Segment) Repair(maxBytes int64) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Status == SegmentClosed {
		return ErrSegmentClosed
	}
	if err := s.Log.Truncate(s.WritePos); err != nil {
		glog.Errorf("[segment.go-Repair]:Truncate error,err=%s,segmentName=%s", err.Error(), s.Name)
		return err
	}
	if maxBytes < s.WritePos {
		maxBytes = s.WritePos
	}
	if err := fileutil.Preallocate(s.Log.File, maxBytes, true); err != nil {
		glog.Errorf("[segment.go-Repair]:Preallocate error,err=%s,segmentName=%s", err.Error(), s.Name)
		return err
	}
	if err := fileutil.Fsync(s.Log.File); err != nil {
		return err
	}
	s.Size = maxBytes
	s.Status = SegmentRDWR
	return nil
}

func (s *Segment) Close() error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Status == SegmentClosed {
		return nil
	}
	s.Status = SegmentClosed
	if err := s.Log.Close(); err != nil {
		glog.Errorf("[segment.go-Close]:file Close error,err=%s,segmentName=%s", err.Error(), s.Name)
		return err
	}
	if glog.V(1) {
		glog.Infof("D:[segment.go-Close]:segment[%s] has been closed", s.Name)
	}
	return nil
}

//remove the segment file synchronously
func (s *Segment) Remove() error {
	if err := s.Close(); err != nil {
		glog.Errorf("[segment.go-Remove]:close segment error,err=%s,segmentName=%s", err.Error(), s.Name)
		return err
	}
	if err := os.Remove(s.SegmentPath); err != nil {
		glog.Errorf("[segment.go-Remove]:remove segment[%s] error,err=%s", s.Name, err.Error())
		return err
	}
	glog.Infof("[segment.go-Remove]:segment[%s] has been removed", s.Name)
	return nil
}

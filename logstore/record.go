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
	"encoding/binary"
	"hash/crc32"

	"go.etcd.io/raft/v3/raftpb"
)

var Encoding = binary.LittleEndian

var crcTable = crc32.MakeTable(crc32.Castagnoli)

//Record store order
//Length|Crc|Index|Term|Type|Data
//Length covers Index|Term|Type|Data, Crc covers the same bytes.
const (
	FrameHeaderSize  = 8  // length + crc
	RecordHeaderSize = 17 // index + term + type
)

type Record struct {
	Length uint32 // RecordHeaderSize plus the data length
	Crc    uint32
	Index  uint64
	Term   uint64
	Type   raftpb.EntryType
	Data   []byte
}

func recordFromEntry(e *raftpb.Entry) *Record {
	return &Record{
		Length: uint32(RecordHeaderSize + len(e.Data)),
		Index:  e.Index,
		Term:   e.Term,
		Type:   e.Type,
		Data:   e.Data,
	}
}

func (r *Record) entry() raftpb.Entry {
	return raftpb.Entry{
		Index: r.Index,
		Term:  r.Term,
		Type:  r.Type,
		Data:  r.Data,
	}
}

//frame size on disk, header included
func (r *Record) frameSize() int64 {
	return int64(FrameHeaderSize) + int64(r.Length)
}

func recordToBinary(r *Record) []byte {
	b := make([]byte, FrameHeaderSize+RecordHeaderSize, FrameHeaderSize+int(r.Length))
	Encoding.PutUint32(b[0:4], r.Length)
	Encoding.PutUint64(b[8:16], r.Index)
	Encoding.PutUint64(b[16:24], r.Term)
	b[24] = byte(r.Type)
	b = append(b, r.Data...)
	r.Crc = crc32.Checksum(b[FrameHeaderSize:], crcTable)
	Encoding.PutUint32(b[4:8], r.Crc)
	return b
}

//b must hold exactly one frame
func binaryToRecord(b []byte) (*Record, error) {
	if len(b) < FrameHeaderSize+RecordHeaderSize {
		return nil, ErrCorrupt
	}
	record := new(Record)
	record.Length = Encoding.Uint32(b[0:4])
	if int(record.Length) != len(b)-FrameHeaderSize {
		return nil, ErrCorrupt
	}
	record.Crc = Encoding.Uint32(b[4:8])
	newCrc := crc32.Checksum(b[FrameHeaderSize:], crcTable)
	if record.Crc != newCrc {
		return nil, ErrCrcNotMatch
	}
	record.Index = Encoding.Uint64(b[8:16])
	record.Term = Encoding.Uint64(b[16:24])
	record.Type = raftpb.EntryType(b[24])
	record.Data = b[FrameHeaderSize+RecordHeaderSize:]
	return record, nil
}

func recordBinaryToLength(b []byte) uint32 {
	return Encoding.Uint32(b[0:4])
}

func recordBinaryToIndex(b []byte) uint64 {
	return Encoding.Uint64(b[8:16])
}

func recordBinaryToTerm(b []byte) uint64 {
	return Encoding.Uint64(b[16:24])
}

func recordsToBinary(records []*Record) []byte {
	var size int64
	for i := 0; i < len(records); i++ {
		size += records[i].frameSize()
	}
	buf := make([]byte, 0, size)
	for i := 0; i < len(records); i++ {
		buf = append(buf, recordToBinary(records[i])...)
	}
	return buf
}

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
	"os"
	"path"
	"sync"

	"github.com/golang/glog"
	"go.etcd.io/etcd/client/pkg/v3/fileutil"
	"go.etcd.io/raft/v3/raftpb"
)

var (
	metaFileName    = "META"
	metaTmpFileName = "META.tmp"
)

const (
	metaMagic   uint32 = 0x4c464d54
	metaVersion uint32 = 1

	//magic|version|term|vote|commit|snapIndex|snapTerm|metaLen
	metaFixedSize = 4 + 4 + 8 + 8 + 8 + 8 + 8 + 4
)

//SnapshotMeta describes the applied snapshot: the compaction point of the
//log plus the membership configuration and opaque user bytes carried with it.
type SnapshotMeta struct {
	Index     uint64
	Term      uint64
	ConfState raftpb.ConfState
	Data      []byte
}

//MetaFile holds the durable hard state and the applied snapshot metadata.
//Every update writes a temp file and renames it over the old one.
type MetaFile struct {
	dir      string
	metaPath string
	tmpPath  string
	l        sync.Mutex
}

func NewMetaFile(dir string) *MetaFile {
	if len(dir) == 0 {
		glog.Fatalf("[meta_file.go-NewMetaFile]:dir is nil in NewMetaFile")
	}
	return &MetaFile{
		dir:      dir,
		metaPath: path.Join(dir, metaFileName),
		tmpPath:  path.Join(dir, metaTmpFileName),
	}
}

func metaToBinary(hs *raftpb.HardState, snap *SnapshotMeta) ([]byte, error) {
	confBuf, err := snap.ConfState.Marshal()
	if err != nil {
		return nil, err
	}
	metaBytes := make([]byte, 4, 4+len(confBuf)+len(snap.Data))
	Encoding.PutUint32(metaBytes[0:4], uint32(len(confBuf)))
	metaBytes = append(metaBytes, confBuf...)
	metaBytes = append(metaBytes, snap.Data...)

	b := make([]byte, metaFixedSize, metaFixedSize+len(metaBytes)+4)
	Encoding.PutUint32(b[0:4], metaMagic)
	Encoding.PutUint32(b[4:8], metaVersion)
	Encoding.PutUint64(b[8:16], hs.Term)
	Encoding.PutUint64(b[16:24], hs.Vote)
	Encoding.PutUint64(b[24:32], hs.Commit)
	Encoding.PutUint64(b[32:40], snap.Index)
	Encoding.PutUint64(b[40:48], snap.Term)
	Encoding.PutUint32(b[48:52], uint32(len(metaBytes)))
	b = append(b, metaBytes...)

	crc := crc32.Checksum(b, crcTable)
	var crcBuf [4]byte
	Encoding.PutUint32(crcBuf[:], crc)
	b = append(b, crcBuf[:]...)
	return b, nil
}

func binaryToMeta(b []byte) (*raftpb.HardState, *SnapshotMeta, error) {
	if len(b) < metaFixedSize+4 {
		return nil, nil, ErrMetaDestroy
	}
	crc := Encoding.Uint32(b[len(b)-4:])
	newCrc := crc32.Checksum(b[:len(b)-4], crcTable)
	if crc != newCrc {
		return nil, nil, ErrCrcNotMatch
	}
	if Encoding.Uint32(b[0:4]) != metaMagic {
		return nil, nil, ErrMetaDestroy
	}
	if Encoding.Uint32(b[4:8]) != metaVersion {
		return nil, nil, ErrMetaDestroy
	}

	hs := &raftpb.HardState{
		Term:   Encoding.Uint64(b[8:16]),
		Vote:   Encoding.Uint64(b[16:24]),
		Commit: Encoding.Uint64(b[24:32]),
	}
	snap := &SnapshotMeta{
		Index: Encoding.Uint64(b[32:40]),
		Term:  Encoding.Uint64(b[40:48]),
	}
	metaLen := int(Encoding.Uint32(b[48:52]))
	if metaFixedSize+metaLen+4 != len(b) {
		return nil, nil, ErrMetaDestroy
	}
	metaBytes := b[metaFixedSize : metaFixedSize+metaLen]
	if len(metaBytes) < 4 {
		return nil, nil, ErrMetaDestroy
	}
	confLen := int(Encoding.Uint32(metaBytes[0:4]))
	if 4+confLen > len(metaBytes) {
		return nil, nil, ErrMetaDestroy
	}
	if confLen > 0 {
		if err := snap.ConfState.Unmarshal(metaBytes[4 : 4+confLen]); err != nil {
			return nil, nil, err
		}
	}
	if userLen := len(metaBytes) - 4 - confLen; userLen > 0 {
		snap.Data = make([]byte, userLen)
		copy(snap.Data, metaBytes[4+confLen:])
	}
	return hs, snap, nil
}

//Save writes the meta file atomically: temp file, fsync, rename, dir fsync.
func (m *MetaFile) Save(dirFile *os.File, hs *raftpb.HardState, snap *SnapshotMeta) error {
	m.l.Lock()
	defer m.l.Unlock()

	b, err := metaToBinary(hs, snap)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(m.tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fileutil.PrivateFileMode)
	if err != nil {
		return err
	}
	if _, err = f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err = fileutil.Fsync(f); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Rename(m.tmpPath, m.metaPath); err != nil {
		return err
	}
	return syncDir(dirFile)
}

//Load reads the meta file. exist is false when no meta file has been written.
func (m *MetaFile) Load() (hs *raftpb.HardState, snap *SnapshotMeta, exist bool, err error) {
	m.l.Lock()
	defer m.l.Unlock()

	if !IsFileExist(m.metaPath) {
		return nil, nil, false, nil
	}
	b, err := os.ReadFile(m.metaPath)
	if err != nil {
		return nil, nil, true, err
	}
	hs, snap, err = binaryToMeta(b)
	if err != nil {
		glog.Errorf("[meta_file.go-Load]:decode meta file error,err=%s,path=%s", err.Error(), m.metaPath)
		return nil, nil, true, err
	}
	return hs, snap, true, nil
}

//RemoveTmp deletes an orphan temp file a crash may have left behind.
func (m *MetaFile) RemoveTmp() {
	m.l.Lock()
	defer m.l.Unlock()
	if IsFileExist(m.tmpPath) {
		if err := os.Remove(m.tmpPath); err != nil {
			glog.Warningf("[meta_file.go-RemoveTmp]:remove temp meta file error,err=%s,path=%s",
				err.Error(), m.tmpPath)
		}
	}
}

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
	"os"
	"strings"

	"github.com/golang/glog"
	"go.etcd.io/etcd/client/pkg/v3/fileutil"
	"go.etcd.io/raft/v3/raftpb"
)

var (
	LogFileSuffix = ".log"
)

//dir not exist or no files in this dir,return false
func existFile(dirpath string) bool {
	names, err := fileutil.ReadDir(dirpath)
	if err != nil {
		return false
	}
	return len(names) != 0
}

//segment file name carries the create sequence and the first index it covers,
//like "0000000000000003-00000000000000000121.log"
func segmentFileName(seqno uint64, firstIndex uint64) string {
	return fmt.Sprintf("%016d-%020d%s", seqno, firstIndex, LogFileSuffix)
}

func parseSegmentName(name string) (seqno uint64, firstIndex uint64, err error) {
	if !strings.HasSuffix(name, LogFileSuffix) {
		return 0, 0, ErrBadSegmentName
	}
	_, err = fmt.Sscanf(name, "%016d-%020d.log", &seqno, &firstIndex)
	if err != nil {
		return 0, 0, ErrBadSegmentName
	}
	return seqno, firstIndex, nil
}

func IsFileExist(filePath string) bool {
	if len(filePath) == 0 {
		return false
	}
	_, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false
		}
		glog.Errorf("[util.go-IsFileExist]:stat error:error=%s,path=%s", err.Error(), filePath)
		return false
	}
	return true
}

//fsync the directory so a file creation or rename in it is durable
func syncDir(dir *os.File) error {
	if dir == nil {
		return nil
	}
	return fileutil.Fsync(dir)
}

//serialized size used for the Entries max-bytes budget
func entrySize(e *raftpb.Entry) uint64 {
	return uint64(e.Size())
}

//cut ents so the cumulative serialized size stays within maxSize,
//the first entry is always kept
func limitEntrySize(ents []raftpb.Entry, maxSize uint64) []raftpb.Entry {
	if len(ents) == 0 {
		return ents
	}
	size := entrySize(&ents[0])
	var limit int
	for limit = 1; limit < len(ents); limit++ {
		size += entrySize(&ents[limit])
		if size > maxSize {
			break
		}
	}
	return ents[:limit]
}

func createRaftEntriesSlice(maxCount uint64) []raftpb.Entry {
	if maxSliceSize < maxCount {
		return make([]raftpb.Entry, 0, maxSliceSize)
	}
	return make([]raftpb.Entry, 0, maxCount)
}

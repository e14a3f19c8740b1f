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
	"errors"
)

var (
	ErrArgsNotAvailable = errors.New("logstore: args not available")
	ErrOutOfBound       = errors.New("logstore: index is out of bound")
	ErrOutOfOrder       = errors.New("logstore: entries would leave a hole in the log")
	ErrCorrupt          = errors.New("logstore: log file is corrupt")
	ErrCrcNotMatch      = errors.New("logstore: Crc32 values do not match")
	ErrNotOpen          = errors.New("logstore: the storage is not open")
	ErrSnapOutOfDate    = errors.New("logstore: snapshot index is older than the applied snapshot")
	ErrEntryNotExist    = errors.New("logstore: entry not exists")
	ErrFileExist        = errors.New("logstore: file already exists")
	ErrFileNotExist     = errors.New("logstore: the file or dir not exists")
	ErrBadSegmentName   = errors.New("logstore: bad segment name")
	ErrNotContinuous    = errors.New("logstore: segments are not continuous")
	ErrNotAllowWrite    = errors.New("logstore: segment doesn't allow to write")
	ErrSegmentClosed    = errors.New("logstore: the segment is closed")
	ErrTornWrite        = errors.New("logstore: file exist an incomplete write in the end")
	ErrMetaDestroy      = errors.New("logstore: the meta file is destroy")
)

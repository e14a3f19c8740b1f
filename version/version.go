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

package version

var (
	Version = "1.0.0"

	// LogStoreVersion tracks the on-disk format; bump it when the record or
	// meta layout changes.
	LogStoreVersion = "1.0.0"

	// set by the build with -ldflags
	GitLog  = "unknown"
	Compile = "unknown"
)

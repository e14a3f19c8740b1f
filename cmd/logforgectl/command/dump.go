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

package command

import (
	"fmt"
	"math"

	"github.com/logforge/logforge/logstore"
	"github.com/spf13/cobra"
)

var (
	dumpStart uint64
	dumpEnd   uint64
)

func NewDumpCommand() *cobra.Command {
	mc := &cobra.Command{
		Use:   "dump <dir>",
		Short: "print decoded log entries of a storage directory",
		Args:  cobra.ExactArgs(1),
		Run:   dumpCommandFunc,
	}
	mc.Flags().Uint64Var(&dumpStart, "start", 0, "first index to dump, default FirstIndex")
	mc.Flags().Uint64Var(&dumpEnd, "end", 0, "one past the last index to dump, default LastIndex+1")
	return mc
}

func dumpCommandFunc(cmd *cobra.Command, args []string) {
	store, err := logstore.NewDiskStorage(&logstore.Config{Dir: args[0]})
	if err != nil {
		exitWithError(err)
	}
	defer store.Close()

	lo, hi := dumpStart, dumpEnd
	if lo == 0 {
		lo = store.FirstIndex()
	}
	if hi == 0 {
		hi = store.LastIndex() + 1
	}
	if lo >= hi {
		fmt.Printf("nothing to dump, range=[%d,%d)\n", lo, hi)
		return
	}
	ents, compacted, err := store.Entries(lo, hi, math.MaxUint64)
	if err != nil {
		exitWithError(err)
	}
	if compacted {
		fmt.Printf("range [%d,%d) is below the retained prefix (FirstIndex=%d)\n", lo, hi, store.FirstIndex())
		return
	}
	for i := range ents {
		fmt.Printf("index=%d term=%d type=%s dataLen=%d\n",
			ents[i].Index, ents[i].Term, ents[i].Type, len(ents[i].Data))
	}
}

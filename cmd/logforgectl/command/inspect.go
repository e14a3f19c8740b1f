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
	"os"

	"github.com/logforge/logforge/logstore"
	"github.com/spf13/cobra"
)

func NewInspectCommand() *cobra.Command {
	mc := &cobra.Command{
		Use:   "inspect <dir>",
		Short: "print the meta state and segment table of a storage directory",
		Args:  cobra.ExactArgs(1),
		Run:   inspectCommandFunc,
	}
	return mc
}

func inspectCommandFunc(cmd *cobra.Command, args []string) {
	//the open takes the directory lock, so a live instance refuses us
	store, err := logstore.NewDiskStorage(&logstore.Config{Dir: args[0]})
	if err != nil {
		exitWithError(err)
	}
	defer store.Close()

	hs := store.HardState()
	snap := store.Snapshot()
	fmt.Printf("HardState:    term=%d vote=%d commit=%d\n", hs.Term, hs.Vote, hs.Commit)
	fmt.Printf("Snapshot:     index=%d term=%d userBytes=%d\n", snap.Index, snap.Term, len(snap.Data))
	fmt.Printf("FirstIndex:   %d\n", store.FirstIndex())
	fmt.Printf("LastIndex:    %d\n", store.LastIndex())
	fmt.Printf("SegmentFiles: %d\n", store.FilesCount())
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

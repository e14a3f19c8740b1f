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

package main

import (
	"fmt"
	"os"

	"github.com/logforge/logforge/cmd/logforgectl/command"
	"github.com/spf13/cobra"
)

const (
	cliName        = "logforgectl"
	cliDescription = "An offline inspection tool for logforge storage directories."
)

var (
	rootCmd = &cobra.Command{
		Use:        cliName,
		Short:      cliDescription,
		SuggestFor: []string{"logforgectl"},
	}
)

func init() {
	rootCmd.AddCommand(
		command.NewInspectCommand(),
		command.NewDumpCommand(),
		command.NewVersionCommand(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

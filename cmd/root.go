// Copyright 2025 The r2000link Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd is the r2000link demo CLI: a thin cobra front-end over
// datalink.BuildStream and datalink.BuildDatagram, wired the way packetd's own cmd package wires its
// agent/log subcommands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/b2atech/r2000link/logger"
)

var (
	version   = "dev"
	gitHash   = "unknown"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "r2000link",
	Short: "R2000 laser range-finder data-plane client",
}

// Execute runs the CLI, exiting the process on error.
func Execute() {
	if _, err := maxprocs.Set(maxprocs.Logger(logger.Debugf)); err != nil {
		logger.Warnf("automaxprocs: %v", err)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, gitHash, buildTime)
}

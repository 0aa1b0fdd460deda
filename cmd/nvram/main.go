// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"
	"os"

	"github.com/cockroachdb/nvram/internal/base"
	"github.com/cockroachdb/nvram/tool"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nvram [command] (flags)",
	Short: "nvram space store introspection and maintenance tool",
	Long: `
Inspect and modify the NVRAM spaces persisted in a directory. Each
command opens the directory as a fresh boot.
`,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	t := tool.New(tool.Logger(base.DefaultLogger{}))
	rootCmd.AddCommand(t.Commands...)

	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}

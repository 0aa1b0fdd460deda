// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/nvram/vfs"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// runCommand executes one command line against fs and returns its combined
// output.
func runCommand(t *testing.T, fs vfs.FS, args ...string) string {
	var buf bytes.Buffer
	c := &cobra.Command{}
	c.AddCommand(New(FS(fs)).Commands...)
	c.SetArgs(args)
	c.SetOut(&buf)
	c.SetErr(&buf)
	require.NoError(t, c.Execute())
	return buf.String()
}

func TestCommands(t *testing.T) {
	fs := vfs.NewMem()
	datadriven.RunTest(t, "testdata/commands", func(t *testing.T, td *datadriven.TestData) string {
		args := []string{td.Cmd}
		for _, arg := range td.CmdArgs {
			args = append(args, arg.String())
		}
		args = append(args, strings.Fields(td.Input)...)
		return runCommand(t, fs, args...)
	})
}

func TestInfo(t *testing.T) {
	fs := vfs.NewMem()
	require.Equal(t, "ok\n", runCommand(t, fs, "create", "nvram", "1", "--size=16", "--controls=boot-write-lock,write-extend"))
	require.Equal(t, "ok\n", runCommand(t, fs, "create", "nvram", "0x20", "--size=32", "--controls=persistent-write-lock"))
	require.Equal(t, "ok\n", runCommand(t, fs, "lock-write", "nvram", "32"))

	out := runCommand(t, fs, "info", "nvram")
	require.Contains(t, out, "2 / 32")
	lines := strings.Split(out, "\n")
	var rows []string
	for _, line := range lines {
		if strings.Contains(line, "0x000000") {
			rows = append(rows, line)
		}
	}
	require.Len(t, rows, 2)
	require.Contains(t, rows[0], "0x00000001")
	require.Contains(t, rows[0], "boot-write-lock,write-extend")
	require.Contains(t, rows[0], "false")
	require.Contains(t, rows[1], "0x00000020")
	require.Contains(t, rows[1], "persistent-write-lock")
	require.Contains(t, rows[1], "true")
}

func TestBench(t *testing.T) {
	fs := vfs.NewMem()
	require.Equal(t, "ok\n", runCommand(t, fs, "create", "nvram", "1", "--size=4"))

	out := runCommand(t, fs, "bench", "nvram", "--workers=3", "--ops=5", "--size=16", "--block-size=8")
	require.Contains(t, out, "store")
	require.Contains(t, out, "load")
	require.Contains(t, out, "elapsed")

	// The benchmark spaces are gone and the existing space is untouched.
	require.Equal(t,
		"header: version=1 flags=0x0 spaces=[1] provisional=0x00000001\n"+
			"0x00000001: flags=0x0 controls=() auth=0 size=4 contents=00000000\n",
		runCommand(t, fs, "dump", "nvram"))
}

func TestBenchIndexInUse(t *testing.T) {
	fs := vfs.NewMem()
	require.Equal(t, "ok\n", runCommand(t, fs, "create", "nvram", "0xbe000001", "--size=4"))
	out := runCommand(t, fs, "bench", "nvram", "--workers=2", "--ops=1")
	require.Equal(t, "space 0xbe000001 is in use\n", out)
}

func TestBenchFlagValidation(t *testing.T) {
	fs := vfs.NewMem()
	for _, tc := range []struct {
		args []string
		want string
	}{
		{[]string{"--workers=0"}, "--workers must be positive, got 0\n"},
		{[]string{"--ops=-1"}, "--ops must be positive, got -1\n"},
		{[]string{"--size=-1"}, "--size must not be negative, got -1\n"},
		{[]string{"--index-base=0xffffffff", "--workers=2"}, "--index-base 0xffffffff leaves no room for 2 workers\n"},
	} {
		args := append([]string{"bench", "nvram"}, tc.args...)
		require.Equal(t, tc.want, runCommand(t, fs, args...), "%v", tc.args)
	}
	// The last index may be used by the last worker.
	out := runCommand(t, fs, "bench", "nvram", "--index-base=0xffffffff", "--workers=1", "--ops=1", "--size=0")
	require.Contains(t, out, "syncs")
}

func TestBytesValue(t *testing.T) {
	var b bytesValue
	require.NoError(t, b.Set("hex:00ff"))
	require.Equal(t, []byte{0x00, 0xff}, []byte(b))
	require.NoError(t, b.Set("raw:hex:"))
	require.Equal(t, "hex:", b.String())
	require.Error(t, b.Set("hex:zz"))
}

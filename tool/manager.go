// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"fmt"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/nvram"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// managerT implements the commands that issue Manager requests.
type managerT struct {
	Info          *cobra.Command
	Create        *cobra.Command
	Read          *cobra.Command
	Write         *cobra.Command
	Delete        *cobra.Command
	LockWrite     *cobra.Command
	LockRead      *cobra.Command
	DisableCreate *cobra.Command
	Wipe          *cobra.Command
	Commands      []*cobra.Command

	t        *T
	auth     bytesValue
	size     uint64
	controls []string
	format   formatter
}

func newManager(t *T) *managerT {
	m := &managerT{t: t}
	m.format.mustSet("quoted")

	m.Info = &cobra.Command{
		Use:   "info <dir>",
		Short: "print NVRAM and space information",
		Args:  cobra.ExactArgs(1),
		Run:   m.runInfo,
	}
	m.Create = &cobra.Command{
		Use:   "create <dir> <index>",
		Short: "create a space",
		Long: `
Create a space with zeroed contents. Controls are given by name:
persistent-write-lock, boot-write-lock, boot-read-lock,
write-authorization, read-authorization, write-extend.
`,
		Args: cobra.ExactArgs(2),
		Run:  m.runCreate,
	}
	m.Read = &cobra.Command{
		Use:   "read <dir> <index>",
		Short: "print the contents of a space",
		Args:  cobra.ExactArgs(2),
		Run:   m.runRead,
	}
	m.Write = &cobra.Command{
		Use:   "write <dir> <index> <data>",
		Short: "write the contents of a space",
		Long: `
Write data to a space. Data prefixed with "hex:" is hex decoded.
`,
		Args: cobra.ExactArgs(3),
		Run:  m.runWrite,
	}
	m.Delete = &cobra.Command{
		Use:   "delete <dir> <index>",
		Short: "delete a space",
		Args:  cobra.ExactArgs(2),
		Run: m.runIndexed(func(mgr *nvram.Manager, index uint32, auth []byte) error {
			return mgr.DeleteSpace(index, auth)
		}),
	}
	m.LockWrite = &cobra.Command{
		Use:   "lock-write <dir> <index>",
		Short: "write-lock a space persistently",
		Long: `
Write-lock a space. Only spaces with the persistent-write-lock control
stay locked once the command exits.
`,
		Args: cobra.ExactArgs(2),
		Run: m.runIndexed(func(mgr *nvram.Manager, index uint32, auth []byte) error {
			return mgr.LockSpaceWrite(index, auth)
		}),
	}
	m.LockRead = &cobra.Command{
		Use:   "lock-read <dir> <index>",
		Short: "check that a space can be read-locked",
		Long: `
Read-lock a space. Read locks last until reboot, which is the end of the
command, so this only validates the request.
`,
		Args: cobra.ExactArgs(2),
		Run: m.runIndexed(func(mgr *nvram.Manager, index uint32, auth []byte) error {
			return mgr.LockSpaceRead(index, auth)
		}),
	}
	m.DisableCreate = &cobra.Command{
		Use:   "disable-create <dir>",
		Short: "permanently disable the creation of spaces",
		Args:  cobra.ExactArgs(1),
		Run: m.runGlobal(func(mgr *nvram.Manager) error {
			return mgr.DisableCreate()
		}),
	}
	m.Wipe = &cobra.Command{
		Use:   "wipe <dir>",
		Short: "delete all spaces",
		Args:  cobra.ExactArgs(1),
		Run: m.runGlobal(func(mgr *nvram.Manager) error {
			return mgr.WipeStorage()
		}),
	}

	m.Create.Flags().Uint64Var(&m.size, "size", 0, "size of the space contents")
	m.Create.Flags().StringSliceVar(&m.controls, "controls", nil, "comma separated controls")
	m.Read.Flags().Var(&m.format, "format", "contents formatter: hex, quoted, raw or a %-format")
	for _, c := range []*cobra.Command{m.Create, m.Read, m.Write, m.Delete, m.LockWrite, m.LockRead} {
		c.Flags().Var(&m.auth, "auth", "authorization value (hex: prefix for hex)")
	}

	m.Commands = []*cobra.Command{
		m.Info, m.Create, m.Read, m.Write, m.Delete,
		m.LockWrite, m.LockRead, m.DisableCreate, m.Wipe,
	}
	return m
}

func (m *managerT) runInfo(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.OutOrStderr()
	err := m.t.withManager(args[0], func(mgr *nvram.Manager) error {
		info, err := mgr.GetInfo()
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "total:     %s\n", humanizeBytes(info.TotalSize))
		fmt.Fprintf(stdout, "available: %s\n", humanizeBytes(info.AvailableSize))
		fmt.Fprintf(stdout, "spaces:    %d / %d (max %s each)\n",
			len(info.SpaceList), info.MaxSpaces, humanizeBytes(info.MaxSpaceSize))
		if len(info.SpaceList) == 0 {
			return nil
		}

		tbl := tablewriter.NewWriter(stdout)
		tbl.SetHeader([]string{"Index", "Size", "Controls", "Write locked"})
		for _, index := range info.SpaceList {
			spaceInfo, err := mgr.GetSpaceInfo(index)
			if err != nil {
				tbl.Append([]string{fmt.Sprintf("0x%08x", index), "?", nvram.ResultOf(err).String(), "?"})
				continue
			}
			tbl.Append([]string{
				fmt.Sprintf("0x%08x", index),
				humanizeBytes(spaceInfo.Size),
				nvram.FormatControls(spaceInfo.Controls),
				fmt.Sprintf("%t", spaceInfo.WriteLocked),
			})
		}
		tbl.Render()
		return nil
	})
	if err != nil {
		reportErr(stderr, err)
	}
}

func (m *managerT) runCreate(cmd *cobra.Command, args []string) {
	stderr := cmd.OutOrStderr()
	index, err := parseIndex(args[1])
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	cfg := nvram.SpaceConfig{Size: m.size, AuthorizationValue: m.auth}
	for _, name := range m.controls {
		c, err := nvram.ParseControl(name)
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
			return
		}
		cfg.Controls = append(cfg.Controls, c)
	}
	err = m.t.withManager(args[0], func(mgr *nvram.Manager) error {
		return mgr.CreateSpace(index, cfg)
	})
	m.report(cmd, err)
}

func (m *managerT) runRead(cmd *cobra.Command, args []string) {
	stderr := cmd.OutOrStderr()
	index, err := parseIndex(args[1])
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	err = m.t.withManager(args[0], func(mgr *nvram.Manager) error {
		contents, err := mgr.ReadSpace(index, m.auth)
		if err != nil {
			return err
		}
		m.format.fn(cmd.OutOrStdout(), contents)
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	})
	if err != nil {
		reportErr(stderr, err)
	}
}

func (m *managerT) runWrite(cmd *cobra.Command, args []string) {
	stderr := cmd.OutOrStderr()
	index, err := parseIndex(args[1])
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	var data bytesValue
	if err := data.Set(args[2]); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	err = m.t.withManager(args[0], func(mgr *nvram.Manager) error {
		return mgr.WriteSpace(index, data, m.auth)
	})
	m.report(cmd, err)
}

// runIndexed returns a command implementation that issues a request on the
// space named by the second argument.
func (m *managerT) runIndexed(
	fn func(mgr *nvram.Manager, index uint32, auth []byte) error,
) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		index, err := parseIndex(args[1])
		if err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "%s\n", err)
			return
		}
		err = m.t.withManager(args[0], func(mgr *nvram.Manager) error {
			return fn(mgr, index, m.auth)
		})
		m.report(cmd, err)
	}
}

// runGlobal returns a command implementation that issues a request that
// does not name a space.
func (m *managerT) runGlobal(
	fn func(mgr *nvram.Manager) error,
) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		m.report(cmd, m.t.withManager(args[0], fn))
	}
}

func (m *managerT) report(cmd *cobra.Command, err error) {
	if err != nil {
		reportErr(cmd.OutOrStderr(), err)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
}

func humanizeBytes(n uint64) string {
	return string(crhumanize.Bytes(int64(n), crhumanize.Compact, crhumanize.OmitI))
}

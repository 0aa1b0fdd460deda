// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"fmt"
	"io"
	"slices"

	"github.com/cockroachdb/nvram"
	"github.com/cockroachdb/nvram/persistence"
	"github.com/cockroachdb/nvram/storage"
	"github.com/spf13/cobra"
)

// dumpT implements the dump command, which decodes the stored objects
// without going through a Manager. It never modifies the store, so the
// provisional index and unlisted spaces are shown as found.
type dumpT struct {
	Root *cobra.Command

	t        *T
	contents formatter
}

func newDump(t *T) *dumpT {
	d := &dumpT{t: t}
	d.contents.mustSet("hex")
	d.Root = &cobra.Command{
		Use:   "dump <dir>",
		Short: "print the stored header and spaces",
		Args:  cobra.ExactArgs(1),
		Run:   d.run,
	}
	d.Root.Flags().Var(&d.contents, "contents", "contents formatter: hex, quoted, raw or a %-format")
	return d
}

func (d *dumpT) run(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.OutOrStderr()
	s, err := d.t.openStore(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer s.Close()

	var listed []uint32
	h, err := persistence.LoadHeader(s)
	switch storage.StatusOf(err) {
	case storage.Success:
		listed = h.Indices()
		fmt.Fprintf(stdout, "header: version=%d flags=%#x spaces=%v provisional=%s\n",
			h.Version, h.Flags, listed, formatProvisional(h.ProvisionalIndex))
	case storage.NotFound:
		fmt.Fprintf(stdout, "header: none\n")
	default:
		fmt.Fprintf(stdout, "header: %v\n", err)
	}

	indices, err := s.Indices()
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	for _, index := range indices {
		d.dumpSpace(stdout, s, index, slices.Contains(listed, index))
	}
	for _, index := range listed {
		if !slices.Contains(indices, index) {
			fmt.Fprintf(stdout, "%s: missing\n", storage.SpaceIndex(index))
		}
	}
}

func (d *dumpT) dumpSpace(w io.Writer, s storage.Storage, index uint32, listed bool) {
	fmt.Fprintf(w, "%s:", storage.SpaceIndex(index))
	if !listed {
		fmt.Fprintf(w, " (unlisted)")
	}
	sp, err := persistence.LoadSpace(s, index)
	if err != nil {
		fmt.Fprintf(w, " %v\n", err)
		return
	}
	fmt.Fprintf(w, " flags=%#x controls=(%s) auth=%d size=%d contents=",
		sp.Flags, nvram.FormatControls(nvram.ControlList(sp.Controls)),
		len(sp.AuthorizationValue), len(sp.Contents))
	d.contents.fn(w, sp.Contents)
	fmt.Fprintln(w)
}

func formatProvisional(p *uint32) string {
	if p == nil {
		return "none"
	}
	return storage.SpaceIndex(*p).String()
}

// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nvram/persistence"
	"github.com/cockroachdb/nvram/storage"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	minLatency = 10 * time.Microsecond
	maxLatency = 10 * time.Second
)

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatency.Nanoseconds(), maxLatency.Nanoseconds(), 1)
}

// benchT implements the bench command, which measures store and load
// latencies of the FileStore with concurrent workers, each owning one space.
type benchT struct {
	Root *cobra.Command

	t         *T
	workers   int
	ops       int
	size      int
	indexBase uint32
	seed      uint64
}

func newBench(t *T) *benchT {
	b := &benchT{t: t}
	b.Root = &cobra.Command{
		Use:   "bench <dir>",
		Short: "benchmark space stores and loads",
		Long: `
Run concurrent workers storing and loading spaces directly in the store.
Each worker owns the index --index-base plus its number. The spaces are
deleted when the benchmark ends; the indices must not be in use.
`,
		Args: cobra.ExactArgs(1),
		Run:  b.run,
	}
	b.Root.Flags().IntVarP(&b.workers, "workers", "c", 4, "number of concurrent workers")
	b.Root.Flags().IntVarP(&b.ops, "ops", "n", 100, "number of store/load pairs per worker")
	b.Root.Flags().IntVar(&b.size, "size", 64, "maximum size of the space contents")
	b.Root.Flags().Uint32Var(&b.indexBase, "index-base", 0xbe000000, "index of the first worker's space")
	b.Root.Flags().Uint64Var(&b.seed, "seed", 1, "random seed for the contents")
	return b
}

type benchResult struct {
	store *hdrhistogram.Histogram
	load  *hdrhistogram.Histogram
}

func (b *benchT) run(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.OutOrStderr()
	if err := b.validate(); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	s, err := b.t.openStore(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer s.Close()

	if err := b.checkIndicesFree(s); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}

	start := time.Now()
	results := make([]benchResult, b.workers)
	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < b.workers; w++ {
		g.Go(func() error {
			return b.worker(ctx, s, w, &results[w])
		})
	}
	err = g.Wait()
	elapsed := time.Since(start)

	for w := 0; w < b.workers; w++ {
		if delErr := s.DeleteSpace(b.indexBase + uint32(w)); delErr != nil && !storage.IsNotFound(delErr) {
			fmt.Fprintf(stderr, "%s\n", delErr)
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}

	store, load := newHistogram(), newHistogram()
	for _, r := range results {
		store.Merge(r.store)
		load.Merge(r.load)
	}
	tbl := tablewriter.NewWriter(stdout)
	tbl.SetHeader([]string{"Op", "Ops", "Mean", "p50", "p99", "Max"})
	for _, row := range []struct {
		name string
		h    *hdrhistogram.Histogram
	}{{"store", store}, {"load", load}} {
		tbl.Append([]string{
			row.name,
			string(crhumanize.Count(row.h.TotalCount(), crhumanize.Compact)),
			time.Duration(row.h.Mean()).String(),
			time.Duration(row.h.ValueAtQuantile(50)).String(),
			time.Duration(row.h.ValueAtQuantile(99)).String(),
			time.Duration(row.h.Max()).String(),
		})
	}
	tbl.Render()
	m := s.Metrics()
	fmt.Fprintf(stdout, "elapsed %s, wrote %s in %d syncs\n",
		elapsed.Round(time.Millisecond),
		crhumanize.Bytes(m.BytesWritten, crhumanize.Compact, crhumanize.OmitI), m.Syncs)
}

func (b *benchT) validate() error {
	switch {
	case b.workers <= 0:
		return errors.Newf("--workers must be positive, got %d", b.workers)
	case b.ops <= 0:
		return errors.Newf("--ops must be positive, got %d", b.ops)
	case b.size < 0:
		return errors.Newf("--size must not be negative, got %d", b.size)
	case uint64(b.indexBase)+uint64(b.workers)-1 > math.MaxUint32:
		return errors.Newf("--index-base %#x leaves no room for %d workers", b.indexBase, b.workers)
	}
	return nil
}

// checkIndicesFree returns an error if a benchmark index is listed in the
// header or stored.
func (b *benchT) checkIndicesFree(s *storage.FileStore) error {
	var used []uint32
	h, err := persistence.LoadHeader(s)
	switch storage.StatusOf(err) {
	case storage.Success:
		used = h.Indices()
	case storage.NotFound:
	default:
		return err
	}
	stored, err := s.Indices()
	if err != nil {
		return err
	}
	used = append(used, stored...)
	for w := 0; w < b.workers; w++ {
		if index := b.indexBase + uint32(w); slices.Contains(used, index) {
			return errors.Newf("space %s is in use", storage.SpaceIndex(index))
		}
	}
	return nil
}

func (b *benchT) worker(ctx context.Context, s storage.Storage, w int, r *benchResult) error {
	index := b.indexBase + uint32(w)
	rng := rand.New(rand.NewPCG(b.seed, uint64(w)))
	r.store, r.load = newHistogram(), newHistogram()
	sp := &persistence.Space{}
	for i := 0; i < b.ops; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		sp.Contents = sp.Contents[:0]
		for n := rng.IntN(b.size + 1); n > 0; n-- {
			sp.Contents = append(sp.Contents, byte(rng.Uint32()))
		}

		begin := time.Now()
		if err := persistence.StoreSpace(s, index, sp); err != nil {
			return err
		}
		_ = r.store.RecordValue(time.Since(begin).Nanoseconds())

		begin = time.Now()
		loaded, err := persistence.LoadSpace(s, index)
		if err != nil {
			return err
		}
		_ = r.load.RecordValue(time.Since(begin).Nanoseconds())
		if !slices.Equal(loaded.Contents, sp.Contents) {
			return errors.AssertionFailedf("space %s: loaded contents differ from stored", storage.SpaceIndex(index))
		}
	}
	return nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dedup

import (
	"context"
	"fmt"

	"github.com/pdiddy/scholar-digest/pkg/types"
)

// PartitionReader is the read side of the record store.
type PartitionReader interface {
	ListPartitions(ctx context.Context) ([]types.Partition, error)
	// Rows returns every row of a partition, header first.
	Rows(ctx context.Context, partition string) ([][]string, error)
}

// Entry is the representative kept for a persisted record.
type Entry struct {
	Title  string
	Author string
	Type   types.RecordType
}

// Index is a snapshot of persisted record identities. It does not observe
// store writes; callers Add records they persist when later lookups in the
// same run must see them.
type Index struct {
	key     KeyFunc
	entries map[string]Entry
}

// NewIndex returns an empty index keyed by key.
func NewIndex(key KeyFunc) *Index {
	return &Index{key: key, entries: make(map[string]Entry)}
}

// BuildIndex scans every partition of src and indexes its rows. Header rows
// and rows with neither title nor link are skipped.
func BuildIndex(ctx context.Context, src PartitionReader, key KeyFunc) (*Index, error) {
	partitions, err := src.ListPartitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing partitions: %w", err)
	}

	ix := NewIndex(key)
	for _, p := range partitions {
		rows, err := src.Rows(ctx, p.Name)
		if err != nil {
			return nil, fmt.Errorf("reading partition %s: %w", p.Name, err)
		}
		for i, row := range rows {
			if i == 0 {
				continue
			}
			r := types.RecordFromRow(row)
			if r.Title == "" && r.Link == "" {
				continue
			}
			ix.Add(r)
		}
	}
	return ix, nil
}

// Len returns the number of distinct keys.
func (ix *Index) Len() int { return len(ix.entries) }

// Key returns the identity key of r under the index's strategy.
func (ix *Index) Key(r types.Record) string { return ix.key(r) }

// Contains reports whether a record with r's identity is indexed.
func (ix *Index) Contains(r types.Record) bool {
	k := ix.key(r)
	if k == "" {
		return false
	}
	_, ok := ix.entries[k]
	return ok
}

// Lookup returns the entry stored under key.
func (ix *Index) Lookup(key string) (Entry, bool) {
	e, ok := ix.entries[key]
	return e, ok
}

// Add indexes r. The first entry for a key is kept.
func (ix *Index) Add(r types.Record) {
	k := ix.key(r)
	if k == "" {
		return
	}
	if _, ok := ix.entries[k]; ok {
		return
	}
	ix.entries[k] = Entry{Title: r.Title, Author: r.Author, Type: r.Type}
}

// Filter splits records into those not yet indexed and a count of those
// already known.
func (ix *Index) Filter(records []types.Record) (fresh []types.Record, known int) {
	for _, r := range records {
		if ix.Contains(r) {
			known++
			continue
		}
		fresh = append(fresh, r)
	}
	return fresh, known
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dedup

import (
	"strings"

	"github.com/pdiddy/scholar-digest/pkg/types"
)

// authorSep joins authors in a merged record.
const authorSep = ", "

// Merge collapses records sharing an identity key into one record per key,
// in first-seen order. See MergeStats.
func Merge(records []types.Record, key KeyFunc) []types.Record {
	merged, _ := MergeStats(records, key)
	return merged
}

// MergeStats is Merge that also reports how many records were folded into
// an earlier one. The surviving record keeps its first-seen title, link and
// date; authors are accumulated and the highest-priority type wins. Records
// with an empty key pass through untouched.
func MergeStats(records []types.Record, key KeyFunc) ([]types.Record, int) {
	seen := make(map[string]int, len(records)) // key → index in merged
	merged := make([]types.Record, 0, len(records))
	removed := 0

	for _, r := range records {
		k := key(r)
		if k == "" {
			merged = append(merged, r)
			continue
		}
		if idx, ok := seen[k]; ok {
			mergeInto(&merged[idx], r)
			removed++
			continue
		}
		seen[k] = len(merged)
		merged = append(merged, r)
	}
	return merged, removed
}

func mergeInto(dst *types.Record, src types.Record) {
	dst.Author = JoinAuthors(dst.Author, src.Author)
	if src.Type.Priority() < dst.Type.Priority() {
		dst.Type = src.Type
	}
}

// JoinAuthors appends each author of add (itself possibly comma-joined) to
// acc unless acc already contains it as a substring.
func JoinAuthors(acc, add string) string {
	acc = strings.TrimSpace(acc)
	for _, a := range strings.Split(add, ",") {
		a = strings.TrimSpace(a)
		if a == "" || strings.Contains(acc, a) {
			continue
		}
		if acc == "" {
			acc = a
		} else {
			acc += authorSep + a
		}
	}
	return acc
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dedup decides when two records describe the same paper. It merges
// duplicates inside a batch and keeps an index of records already persisted
// so repeated or overlapping runs do not write them twice.
package dedup

import (
	"fmt"
	"strings"

	"github.com/pdiddy/scholar-digest/internal/extract"
	"github.com/pdiddy/scholar-digest/pkg/types"
)

// KeyFunc returns the identity key of a record. Records with equal keys are
// the same paper; an empty key means the record has no usable identity.
type KeyFunc func(types.Record) string

// Identity strategy names accepted by ParseStrategy.
const (
	StrategyTitle = "title"
	StrategyLink  = "link"
)

// ByTitle keys records by normalized title.
func ByTitle(r types.Record) string {
	return extract.NormalizeTitle(r.Title)
}

// ByLink keys records by resolved link.
func ByLink(r types.Record) string {
	return strings.TrimSpace(r.Link)
}

// ParseStrategy maps a strategy name to its KeyFunc. The empty name selects
// title matching.
func ParseStrategy(name string) (KeyFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case StrategyTitle, "":
		return ByTitle, nil
	case StrategyLink:
		return ByLink, nil
	default:
		return nil, fmt.Errorf("unknown identity strategy %q: use %s or %s", name, StrategyTitle, StrategyLink)
	}
}

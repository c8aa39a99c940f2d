// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the scholar-digest pipeline:
// extracted records, mail threads, store partitions, and stage configuration.
package types

import (
	"strings"
	"time"
)

// RecordType classifies how a paper reached the alert inbox.
type RecordType string

const (
	TypeNewArticle      RecordType = "new_article"
	TypeCitation        RecordType = "citation"
	TypeRelatedResearch RecordType = "related_research"
)

// Priority orders types for merging: a lower number wins. Unknown types
// rank below every known type.
func (t RecordType) Priority() int {
	switch t {
	case TypeNewArticle:
		return 1
	case TypeCitation:
		return 2
	case TypeRelatedResearch:
		return 3
	default:
		return 4
	}
}

// Label returns the display form written to the Type column.
func (t RecordType) Label() string {
	switch t {
	case TypeNewArticle:
		return "New Article"
	case TypeCitation:
		return "Citation"
	case TypeRelatedResearch:
		return "Related Research"
	default:
		return ""
	}
}

// ParseRecordType accepts either the canonical name ("citation") or the
// display label ("Citation"). Anything else returns the empty type.
func ParseRecordType(s string) RecordType {
	s = strings.TrimSpace(s)
	for _, t := range []RecordType{TypeNewArticle, TypeCitation, TypeRelatedResearch} {
		if strings.EqualFold(s, string(t)) || strings.EqualFold(s, t.Label()) {
			return t
		}
	}
	return ""
}

// Record is one paper entry extracted from an alert email.
type Record struct {
	// Title is the anchor text of the paper link, cleaned of markup.
	Title string `json:"title" yaml:"title"`

	// Author is a comma-joined list of the alert owners that surfaced the paper.
	// Empty when the subject line did not name anyone.
	Author string `json:"author" yaml:"author"`

	// Link is the destination URL after unwrapping the redirect.
	Link string `json:"link" yaml:"link"`

	// Type is the alert classification.
	Type RecordType `json:"type" yaml:"type"`

	// Date is the sent date of the source message. Not part of identity.
	Date time.Time `json:"date" yaml:"date"`
}

// Header is the fixed column layout of every partition.
var Header = []string{"Type", "Title", "Author", "Link", "Date"}

// Column positions within a partition row.
const (
	ColType = iota
	ColTitle
	ColAuthor
	ColLink
	ColDate
)

// Partition is a weekly, append-only bucket of records.
type Partition struct {
	// Name is the display name, e.g. "Week of 2026-10-12".
	Name string `json:"name" yaml:"name"`

	// WeekOf is midnight UTC on the Monday the partition starts.
	WeekOf time.Time `json:"week_of" yaml:"week_of"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

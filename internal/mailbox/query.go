// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mailbox finds alert threads in a mail source. Two sources are
// provided: a local directory of RFC 5322 messages and the Gmail REST API.
// Both accept the same search expression:
//
//	from:<sender> [after:Y/M/D] [before:Y/M/D]
package mailbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/scholar-digest/pkg/types"
)

// Searcher returns the threads matching a query.
type Searcher interface {
	SearchThreads(ctx context.Context, q Query) ([]types.Thread, error)
}

// queryDateLayout is the Y/M/D layout of after: and before: terms.
const queryDateLayout = "2006/01/02"

// Query is a parsed search expression. Zero dates are unbounded.
type Query struct {
	From   string
	After  time.Time
	Before time.Time
}

// String renders the query in search-expression syntax.
func (q Query) String() string {
	var parts []string
	if q.From != "" {
		parts = append(parts, "from:"+q.From)
	}
	if !q.After.IsZero() {
		parts = append(parts, "after:"+q.After.Format(queryDateLayout))
	}
	if !q.Before.IsZero() {
		parts = append(parts, "before:"+q.Before.Format(queryDateLayout))
	}
	return strings.Join(parts, " ")
}

// ParseQuery parses a search expression. Unknown terms are rejected so a
// typo cannot silently widen the search.
func ParseQuery(s string) (Query, error) {
	var q Query
	for _, term := range strings.Fields(s) {
		key, value, ok := strings.Cut(term, ":")
		if !ok || value == "" {
			return Query{}, fmt.Errorf("invalid query term %q", term)
		}
		switch strings.ToLower(key) {
		case "from":
			q.From = value
		case "after", "before":
			t, err := time.ParseInLocation("2006/1/2", value, time.UTC)
			if err != nil {
				return Query{}, fmt.Errorf("invalid %s date %q: want Y/M/D", key, value)
			}
			if strings.EqualFold(key, "after") {
				q.After = t
			} else {
				q.Before = t
			}
		default:
			return Query{}, fmt.Errorf("unsupported query term %q", key)
		}
	}
	return q, nil
}

// Matches reports whether a message falls inside the query: the sender
// contains From (case-insensitive) and After <= sent < Before.
func (q Query) Matches(m types.Message) bool {
	if q.From != "" && !strings.Contains(strings.ToLower(m.From), strings.ToLower(q.From)) {
		return false
	}
	if !q.After.IsZero() && m.SentDate.Before(q.After) {
		return false
	}
	if !q.Before.IsZero() && !m.SentDate.Before(q.Before) {
		return false
	}
	return true
}

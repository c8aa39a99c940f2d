// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract turns Google Scholar alert emails into paper records.
// It finds paper links in the HTML body, unwraps their redirect URLs, reads
// the alert owner and alert kind from the subject line, and provides the
// title normalization used for identity matching.
package extract

import (
	"errors"
	"regexp"
	"strings"

	"github.com/pdiddy/scholar-digest/pkg/types"
)

// Errors returned by ExtractThread. The orchestrator logs them and moves on.
var (
	ErrNoMessages = errors.New("thread has no messages")
	ErrEmptyBody  = errors.New("message body is empty")
)

// anchorPattern matches <a ... href="URL" ...>TEXT</a> with either quote
// style. TEXT may not contain nested tags.
var anchorPattern = regexp.MustCompile(`(?is)<a\s[^>]*?href\s*=\s*["']([^"']+)["'][^>]*>([^<]*?)</a>`)

// Link is a paper link found in an alert body.
type Link struct {
	// Title is the cleaned anchor text.
	Title string
	// Href is the wrapped URL as it appears in the body.
	Href string
	// URL is the resolved destination.
	URL string
}

// Extractor scans alert bodies for paper links.
type Extractor struct {
	sentinel string
	marker   string
	denylist []string
}

// NewExtractor builds an Extractor, filling empty settings with defaults.
// A nil denylist selects the default; an empty non-nil one disables filtering.
func NewExtractor(cfg types.ExtractConfig) *Extractor {
	e := &Extractor{
		sentinel: cfg.Sentinel,
		marker:   cfg.DomainMarker,
		denylist: cfg.Denylist,
	}
	if e.sentinel == "" {
		e.sentinel = types.DefaultSentinel
	}
	if e.marker == "" {
		e.marker = types.DefaultDomainMarker
	}
	if e.denylist == nil {
		e.denylist = types.DefaultDenylist
	}
	return e
}

// ExtractLinks returns the paper links in body, in document order. Content
// from the first occurrence of the sentinel onward is ignored.
func (e *Extractor) ExtractLinks(body string) []Link {
	if i := strings.Index(body, e.sentinel); i >= 0 {
		body = body[:i]
	}

	var links []Link
	for _, m := range anchorPattern.FindAllStringSubmatch(body, -1) {
		href := strings.TrimSpace(m[1])
		if !e.accepts(href) {
			continue
		}
		title := cleanTitle(m[2])
		if title == "" {
			continue
		}
		links = append(links, Link{
			Title: title,
			Href:  href,
			URL:   ResolveURL(href),
		})
	}
	return links
}

// accepts applies the domain and denylist checks to the wrapped URL.
func (e *Extractor) accepts(href string) bool {
	if !strings.Contains(href, e.marker) {
		return false
	}
	for _, deny := range e.denylist {
		if deny != "" && strings.Contains(href, deny) {
			return false
		}
	}
	return true
}

// ExtractThread builds one record per paper link in the thread's last
// message. Author and type come from the thread subject and are shared by
// every record of the thread.
func (e *Extractor) ExtractThread(t types.Thread) ([]types.Record, error) {
	msg, ok := t.Last()
	if !ok {
		return nil, ErrNoMessages
	}
	if strings.TrimSpace(msg.Body) == "" {
		return nil, ErrEmptyBody
	}

	subject := t.Subject
	if subject == "" {
		subject = msg.Subject
	}
	author := ParseAuthor(subject)
	typ := ClassifySubject(subject)

	links := e.ExtractLinks(msg.Body)
	records := make([]types.Record, 0, len(links))
	for _, l := range links {
		records = append(records, types.Record{
			Title:  l.Title,
			Author: author,
			Link:   l.URL,
			Type:   typ,
			Date:   msg.SentDate,
		})
	}
	return records, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateLayout is the layout of the Date column.
const DateLayout = time.RFC3339

// hyperlinkPattern matches =HYPERLINK("url",...). Inside the string literal
// a quote is written as two quotes.
var hyperlinkPattern = regexp.MustCompile(`(?i)^=HYPERLINK\(\s*"((?:[^"]|"")*)"`)

// HyperlinkFormula renders the clickable-link formula stored alongside a link.
// LinkFromCell(HyperlinkFormula(link)) == link for every link.
func HyperlinkFormula(link string) string {
	return fmt.Sprintf(`=HYPERLINK("%s","Link")`, strings.ReplaceAll(link, `"`, `""`))
}

// LinkFromCell returns the URL held by a Link cell, which is either the raw
// URL or a hyperlink formula wrapping it.
func LinkFromCell(cell string) string {
	cell = strings.TrimSpace(cell)
	if m := hyperlinkPattern.FindStringSubmatch(cell); m != nil {
		return strings.ReplaceAll(m[1], `""`, `"`)
	}
	return cell
}

// RecordFromRow converts a partition row into a Record. Missing trailing
// columns are treated as empty; an unparseable date is left zero.
func RecordFromRow(row []string) Record {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	r := Record{
		Type:   ParseRecordType(cell(ColType)),
		Title:  cell(ColTitle),
		Author: cell(ColAuthor),
		Link:   LinkFromCell(cell(ColLink)),
	}
	if d := cell(ColDate); d != "" {
		for _, layout := range []string{DateLayout, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, d); err == nil {
				r.Date = t
				break
			}
		}
	}
	return r
}

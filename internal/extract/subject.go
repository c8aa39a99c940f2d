// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"regexp"
	"strings"

	"github.com/pdiddy/scholar-digest/pkg/types"
)

// subjectTypes is checked in order; the first phrase contained in the
// lowercased subject decides the type.
var subjectTypes = []struct {
	phrase string
	typ    types.RecordType
}{
	{"new citations to articles", types.TypeCitation},
	{"new related research", types.TypeRelatedResearch},
	{"new articles", types.TypeNewArticle},
}

// ClassifySubject maps an alert subject to a record type. Subjects that match
// no known phrase are treated as new articles.
func ClassifySubject(subject string) types.RecordType {
	s := strings.ToLower(subject)
	for _, st := range subjectTypes {
		if strings.Contains(s, st.phrase) {
			return st.typ
		}
	}
	return types.TypeNewArticle
}

// authorPatterns are tried in order; the first capture wins.
var authorPatterns = []*regexp.Regexp{
	// "5 new citations to articles by Jane Roe - see more"
	regexp.MustCompile(`(?i)^\s*\d+\s+new\s+citations?\s+to\s+articles?\s+by\s+(.+?)(?:\s+-|$)`),
	// "John Doe - new related research"
	regexp.MustCompile(`(?i)^(.+?)\s+-\s+new\s+related\s+research`),
	// "John Doe - new articles"
	regexp.MustCompile(`(?i)^(.+?)\s+-\s+new\s+articles?`),
}

// ParseAuthor extracts the alert owner's name from a subject line, or
// returns "" when no pattern matches.
func ParseAuthor(subject string) string {
	for _, re := range authorPatterns {
		if m := re.FindStringSubmatch(subject); m != nil {
			if name := strings.TrimSpace(m[1]); name != "" {
				return name
			}
		}
	}
	return ""
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// destinationParams lists the query parameters that carry the real target
// of a redirect wrapper, in lookup order. "q" is only honoured on /url
// wrappers since Scholar search links also use it for the search text.
var destinationParams = []string{"url", "q"}

// ResolveURL unwraps a redirect-wrapped tracking URL into its destination.
// The wrapper may double-encode the destination, so a second decode is
// attempted and dropped if it fails. Without a destination parameter the
// input is returned unchanged. ResolveURL never fails.
func ResolveURL(raw string) string {
	href := html.UnescapeString(strings.TrimSpace(raw))

	qi := strings.IndexByte(href, '?')
	if qi < 0 {
		return raw
	}
	path, query := href[:qi], href[qi+1:]
	if fi := strings.IndexByte(query, '#'); fi >= 0 {
		query = query[:fi]
	}

	encoded, ok := "", false
	for _, name := range destinationParams {
		if name == "q" && !strings.HasSuffix(path, "/url") {
			continue
		}
		if encoded, ok = rawParam(query, name); ok && encoded != "" {
			break
		}
	}
	if !ok || encoded == "" {
		return raw
	}

	first, err := url.PathUnescape(encoded)
	if err != nil {
		return encoded
	}
	second, err := url.PathUnescape(first)
	if err != nil {
		return first
	}
	return second
}

// rawParam returns the still-encoded value of the named query parameter.
// url.ParseQuery is not used because it decodes eagerly and rejects the
// whole query on a single bad escape.
func rawParam(query, name string) (string, bool) {
	for _, pair := range strings.Split(query, "&") {
		k, v, found := strings.Cut(pair, "=")
		if found && k == name {
			return v, true
		}
	}
	return "", false
}

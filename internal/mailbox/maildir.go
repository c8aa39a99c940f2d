// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mailbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/pdiddy/scholar-digest/pkg/types"
)

// Maildir searches a directory tree of raw messages, one message per file
// (a maildir's cur/ and new/, or a folder of exported .eml files).
type Maildir struct {
	Dir    string
	Logger *zap.Logger
}

// NewMaildir returns a Maildir rooted at dir.
func NewMaildir(dir string, logger *zap.Logger) *Maildir {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Maildir{Dir: dir, Logger: logger}
}

// replyPrefix strips any run of reply/forward markers from a subject.
var replyPrefix = regexp.MustCompile(`(?i)^((re|fwd?|aw|wg)\s*:\s*)+`)

// SearchThreads reads every message under Dir, keeps those matching q and
// groups them into threads by subject. Threads are returned newest first;
// messages within a thread oldest first. Files that cannot be parsed are
// logged and skipped.
func (m *Maildir) SearchThreads(ctx context.Context, q Query) ([]types.Thread, error) {
	if _, err := os.Stat(m.Dir); err != nil {
		return nil, fmt.Errorf("opening maildir %s: %w", m.Dir, err)
	}

	byKey := make(map[string]*types.Thread)
	var order []string

	err := filepath.WalkDir(m.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name := d.Name()
		if d.IsDir() {
			if path != m.Dir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || filepath.Dir(path) == filepath.Join(m.Dir, "tmp") {
			return nil
		}

		msg, err := readMessageFile(path)
		if err != nil {
			m.Logger.Warn("skipping unreadable message", zap.String("file", path), zap.Error(err))
			return nil
		}
		if !q.Matches(msg) {
			return nil
		}

		key := threadKey(msg.Subject)
		t, ok := byKey[key]
		if !ok {
			t = &types.Thread{ID: msg.ID, Subject: msg.Subject}
			byKey[key] = t
			order = append(order, key)
		}
		t.Messages = append(t.Messages, msg)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning maildir %s: %w", m.Dir, err)
	}

	threads := make([]types.Thread, 0, len(order))
	for _, key := range order {
		t := byKey[key]
		sort.SliceStable(t.Messages, func(i, j int) bool {
			return t.Messages[i].SentDate.Before(t.Messages[j].SentDate)
		})
		t.ID = t.Messages[0].ID
		t.Subject = t.Messages[0].Subject
		threads = append(threads, *t)
	}
	sort.SliceStable(threads, func(i, j int) bool {
		li, _ := threads[i].Last()
		lj, _ := threads[j].Last()
		return li.SentDate.After(lj.SentDate)
	})
	return threads, nil
}

func threadKey(subject string) string {
	s := replyPrefix.ReplaceAllString(strings.TrimSpace(subject), "")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func readMessageFile(path string) (types.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Message{}, err
	}
	defer f.Close()
	msg, err := ParseMessage(f)
	if err != nil {
		return types.Message{}, err
	}
	if msg.ID == "" {
		msg.ID = filepath.Base(path)
	}
	return msg, nil
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.NewReaderLabel}

// ParseMessage reads one RFC 5322 message and returns its headers and the
// best body part: text/html when present, else text/plain.
func ParseMessage(r io.Reader) (types.Message, error) {
	raw, err := mail.ReadMessage(r)
	if err != nil {
		return types.Message{}, fmt.Errorf("parsing message: %w", err)
	}

	out := types.Message{
		ID:      strings.Trim(raw.Header.Get("Message-Id"), "<> "),
		From:    decodeHeader(raw.Header.Get("From")),
		Subject: decodeHeader(raw.Header.Get("Subject")),
	}
	if d, err := raw.Header.Date(); err == nil {
		out.SentDate = d.UTC()
	}

	html, plain, err := readPart(raw.Header.Get("Content-Type"), raw.Header.Get("Content-Transfer-Encoding"), raw.Body)
	if err != nil {
		return types.Message{}, err
	}
	if html != "" {
		out.Body = html
	} else {
		out.Body = plain
	}
	return out, nil
}

func decodeHeader(v string) string {
	if d, err := wordDecoder.DecodeHeader(v); err == nil {
		return d
	}
	return v
}

// readPart walks a (possibly multipart) entity and returns the first
// text/html and text/plain bodies found.
func readPart(contentType, encoding string, body io.Reader) (html, plain string, err error) {
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", "", fmt.Errorf("parsing content type %q: %w", contentType, err)
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			p, err := mr.NextRawPart()
			if err == io.EOF {
				return html, plain, nil
			}
			if err != nil {
				return html, plain, fmt.Errorf("reading multipart body: %w", err)
			}
			h, pl, err := readPart(p.Header.Get("Content-Type"), p.Header.Get("Content-Transfer-Encoding"), p)
			if err != nil {
				return html, plain, err
			}
			if html == "" {
				html = h
			}
			if plain == "" {
				plain = pl
			}
		}
	}

	if mediaType != "text/html" && mediaType != "text/plain" {
		return "", "", nil
	}

	text, err := decodeBody(body, encoding, params["charset"])
	if err != nil {
		return "", "", err
	}
	if mediaType == "text/html" {
		return text, "", nil
	}
	return "", text, nil
}

func decodeBody(body io.Reader, encoding, cs string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		body = quotedprintable.NewReader(body)
	case "base64":
		body = base64.NewDecoder(base64.StdEncoding, &newlineStripper{r: body})
	}
	if cs != "" && !strings.EqualFold(cs, "utf-8") && !strings.EqualFold(cs, "us-ascii") {
		r, err := charset.NewReaderLabel(cs, body)
		if err != nil {
			return "", fmt.Errorf("decoding charset %q: %w", cs, err)
		}
		body = r
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(data), nil
}

// newlineStripper drops CR and LF so line-wrapped base64 decodes cleanly.
type newlineStripper struct {
	r io.Reader
}

func (n *newlineStripper) Read(p []byte) (int, error) {
	for {
		c, err := n.r.Read(p)
		kept := bytes.Map(func(r rune) rune {
			if r == '\r' || r == '\n' {
				return -1
			}
			return r
		}, p[:c])
		copy(p, kept)
		if len(kept) > 0 || err != nil {
			return len(kept), err
		}
	}
}

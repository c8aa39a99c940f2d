// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mailbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/scholar-digest/internal/httputil"
	"github.com/pdiddy/scholar-digest/pkg/types"
)

// gmailPageSize is the maxResults requested per threads.list page.
const gmailPageSize = 100

// GmailClient searches a Gmail mailbox through the REST API. The bearer
// token is obtained out of band and read from the secrets directory.
type GmailClient struct {
	BaseURL    string
	Token      string
	UserAgent  string
	MaxRetries int
	HTTP       *http.Client
	Logger     *zap.Logger
}

// NewGmailClient builds a client from mail settings.
func NewGmailClient(cfg types.MailConfig, token string, logger *zap.Logger) *GmailClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := cfg.GmailBaseURL
	if base == "" {
		base = types.DefaultGmailBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GmailClient{
		BaseURL:    strings.TrimRight(base, "/"),
		Token:      token,
		UserAgent:  cfg.UserAgent,
		MaxRetries: cfg.MaxRetries,
		HTTP:       &http.Client{Timeout: timeout},
		Logger:     logger,
	}
}

type gmailThreadList struct {
	Threads []struct {
		ID string `json:"id"`
	} `json:"threads"`
	NextPageToken string `json:"nextPageToken"`
}

type gmailThread struct {
	ID       string         `json:"id"`
	Messages []gmailMessage `json:"messages"`
}

type gmailMessage struct {
	ID           string    `json:"id"`
	InternalDate string    `json:"internalDate"`
	Payload      gmailPart `json:"payload"`
}

type gmailPart struct {
	MimeType string `json:"mimeType"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []gmailPart `json:"parts"`
}

// SearchThreads lists the threads matching q and fetches each one in full.
// A thread that fails to fetch is logged and skipped; a failed listing is
// returned as an error.
func (c *GmailClient) SearchThreads(ctx context.Context, q Query) ([]types.Thread, error) {
	ids, err := c.listThreadIDs(ctx, q.String())
	if err != nil {
		return nil, err
	}

	threads := make([]types.Thread, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return threads, err
		}
		t, err := c.getThread(ctx, id)
		if err != nil {
			c.Logger.Warn("skipping thread", zap.String("thread_id", id), zap.Error(err))
			continue
		}
		threads = append(threads, t)
	}
	return threads, nil
}

func (c *GmailClient) listThreadIDs(ctx context.Context, query string) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		params := url.Values{
			"q":          {query},
			"maxResults": {strconv.Itoa(gmailPageSize)},
		}
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}
		var list gmailThreadList
		if err := c.getJSON(ctx, "/gmail/v1/users/me/threads?"+params.Encode(), &list); err != nil {
			return nil, fmt.Errorf("listing threads: %w", err)
		}
		for _, t := range list.Threads {
			ids = append(ids, t.ID)
		}
		if list.NextPageToken == "" {
			return ids, nil
		}
		pageToken = list.NextPageToken
	}
}

func (c *GmailClient) getThread(ctx context.Context, id string) (types.Thread, error) {
	var gt gmailThread
	if err := c.getJSON(ctx, "/gmail/v1/users/me/threads/"+url.PathEscape(id)+"?format=full", &gt); err != nil {
		return types.Thread{}, err
	}

	t := types.Thread{ID: gt.ID}
	for _, gm := range gt.Messages {
		m := types.Message{
			ID:      gm.ID,
			From:    gm.Payload.header("From"),
			Subject: gm.Payload.header("Subject"),
		}
		if ms, err := strconv.ParseInt(gm.InternalDate, 10, 64); err == nil {
			m.SentDate = time.UnixMilli(ms).UTC()
		}
		html, plain := gm.Payload.bodies()
		if html != "" {
			m.Body = html
		} else {
			m.Body = plain
		}
		t.Messages = append(t.Messages, m)
	}
	if len(t.Messages) > 0 {
		t.Subject = t.Messages[0].Subject
	}
	return t, nil
}

func (c *GmailClient) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, c.HTTP, req, c.MaxRetries, c.Logger)
	if err != nil {
		return fmt.Errorf("gmail request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gmail API returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding gmail response: %w", err)
	}
	return nil
}

func (p gmailPart) header(name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// bodies returns the first decoded text/html and text/plain parts.
func (p gmailPart) bodies() (html, plain string) {
	switch {
	case strings.HasPrefix(p.MimeType, "multipart/"):
		for _, sub := range p.Parts {
			h, pl := sub.bodies()
			if html == "" {
				html = h
			}
			if plain == "" {
				plain = pl
			}
		}
	case p.MimeType == "text/html":
		html = decodeBase64URL(p.Body.Data)
	case p.MimeType == "text/plain":
		plain = decodeBase64URL(p.Body.Data)
	}
	return html, plain
}

// decodeBase64URL decodes Gmail body data, which is URL-safe base64 with or
// without padding.
func decodeBase64URL(s string) string {
	if s == "" {
		return ""
	}
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "=")); err == nil {
		return string(b)
	}
	return ""
}

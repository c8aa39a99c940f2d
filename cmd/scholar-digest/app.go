// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/pdiddy/scholar-digest/internal/extract"
	"github.com/pdiddy/scholar-digest/internal/mailbox"
	"github.com/pdiddy/scholar-digest/internal/metrics"
	"github.com/pdiddy/scholar-digest/internal/pipeline"
	"github.com/pdiddy/scholar-digest/internal/store"
	"github.com/pdiddy/scholar-digest/pkg/types"
)

// dayLayout is the layout of --from and --to.
const dayLayout = "2006-01-02"

func parseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dayLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// newSearcher builds the configured mail source.
func newSearcher(c types.Config) (mailbox.Searcher, error) {
	switch c.Mail.Source {
	case types.SourceGmail:
		token, err := loadedSecrets.Require(c.Mail.TokenSecret)
		if err != nil {
			return nil, fmt.Errorf("gmail source: %w", err)
		}
		return mailbox.NewGmailClient(c.Mail, token, logger), nil
	default:
		return mailbox.NewMaildir(c.Mail.Maildir, logger), nil
	}
}

// openPipeline opens the store and wires a pipeline around it. The caller
// closes the store.
func openPipeline(c types.Config, rec *metrics.Recorder) (*pipeline.Pipeline, *store.Store, error) {
	mail, err := newSearcher(c)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(c.Store)
	if err != nil {
		return nil, nil, err
	}
	p, err := pipeline.New(mail, st, extract.NewExtractor(c.Extract), c.Pipeline,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(rec),
		pipeline.WithSender(c.Mail.Sender),
	)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return p, st, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/pdiddy/scholar-digest/internal/dedup"
	"github.com/pdiddy/scholar-digest/internal/extract"
	"github.com/pdiddy/scholar-digest/internal/mailbox"
	"github.com/pdiddy/scholar-digest/internal/metrics"
	"github.com/pdiddy/scholar-digest/internal/store"
	"github.com/pdiddy/scholar-digest/pkg/types"
)

// fakeMail serves threads whose last message falls inside the query.
type fakeMail struct {
	mu      sync.Mutex
	threads []types.Thread
	fail    func(q mailbox.Query) error
	queries []mailbox.Query
}

func (f *fakeMail) SearchThreads(_ context.Context, q mailbox.Query) ([]types.Thread, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(q); err != nil {
			return nil, err
		}
	}
	var out []types.Thread
	for _, t := range f.threads {
		if last, ok := t.Last(); !ok || q.Matches(last) {
			out = append(out, t)
		}
	}
	return out, nil
}

// failingStore refuses every append.
type failingStore struct {
	*store.Store
}

func (failingStore) AppendRows(context.Context, string, []types.Record, func(types.Record) string) (int, error) {
	return 0, errors.New("disk full")
}

type paper struct{ title, url string }

func alert(id, subject string, sent time.Time, papers ...paper) types.Thread {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, p := range papers {
		fmt.Fprintf(&b, `<h3><a href="https://scholar.google.com/scholar_url?url=%s&amp;hl=en">%s</a></h3>`, p.url, p.title)
	}
	b.WriteString(`<a href="https://scholar.google.com/scholar_alerts?view_op=list_alerts">Manage alerts</a>`)
	b.WriteString(types.DefaultSentinel)
	b.WriteString(`<a href="https://scholar.google.com/scholar_url?url=https://example.org/footer">Footer</a>`)
	b.WriteString("</body></html>")
	return types.Thread{
		ID:      id,
		Subject: subject,
		Messages: []types.Message{{
			ID:       id + "-1",
			From:     "Google Scholar Alerts <" + types.DefaultSender + ">",
			Subject:  subject,
			Body:     b.String(),
			SentDate: sent,
		}},
	}
}

func date(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(types.StoreConfig{Path: filepath.Join(t.TempDir(), "scholar.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newPipeline(t *testing.T, mail mailbox.Searcher, st Store, cfg types.PipelineConfig, now time.Time, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return now }),
	}, opts...)
	p, err := New(mail, st, extract.NewExtractor(types.DefaultConfig().Extract), cfg, opts...)
	require.NoError(t, err)
	return p
}

func storedTitles(t *testing.T, st *store.Store) []string {
	t.Helper()
	parts, err := st.ListPartitions(context.Background())
	require.NoError(t, err)
	var titles []string
	for _, p := range parts {
		rows, err := st.Rows(context.Background(), p.Name)
		require.NoError(t, err)
		for _, row := range rows[1:] {
			titles = append(titles, row[types.ColTitle])
		}
	}
	return titles
}

func TestNew_UnknownStrategy(t *testing.T) {
	_, err := New(&fakeMail{}, nil, nil, types.PipelineConfig{Strategy: "doi"})
	assert.Error(t, err)
}

func TestRun_NoThreads(t *testing.T) {
	st := openStore(t)
	p := newPipeline(t, &fakeMail{}, st, types.PipelineConfig{}, date(2025, 1, 15, 12))

	res, err := p.RunDefault(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Threads)
	assert.Equal(t, 0, res.Written)
	assert.Empty(t, res.Partition)

	parts, err := st.ListPartitions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, parts, "an empty run must not create a partition")
}

func TestRunDefault_QueryWindow(t *testing.T) {
	mail := &fakeMail{}
	p := newPipeline(t, mail, openStore(t), types.PipelineConfig{LookbackDays: 7}, date(2025, 1, 15, 12))

	_, err := p.RunDefault(context.Background())
	require.NoError(t, err)
	require.Len(t, mail.queries, 1)
	assert.Equal(t,
		"from:scholaralerts-noreply@google.com after:2025/01/09 before:2025/01/16",
		mail.queries[0].String())
}

func TestRunRange_WritesAndIsIdempotent(t *testing.T) {
	now := date(2025, 1, 15, 12)
	mail := &fakeMail{threads: []types.Thread{
		alert("t1", "Jane Doe - new articles", date(2025, 1, 13, 8),
			paper{"Deep Learning for Cats", "https://example.org/cats"},
			paper{"Graph Methods", "https://example.org/graphs"},
		),
		alert("t2", "1 new citation to articles by Jane Doe", date(2025, 1, 14, 8),
			paper{"deep learning for cats!", "https://mirror.example.org/cats"},
		),
	}}
	st := openStore(t)
	p := newPipeline(t, mail, st, types.PipelineConfig{}, now)

	from, to := date(2025, 1, 8, 0), date(2025, 1, 16, 0)
	first, err := p.RunRange(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Threads)
	assert.Equal(t, 3, first.Extracted)
	assert.Equal(t, 0, first.Known)
	assert.Equal(t, 1, first.Duplicates)
	assert.Equal(t, 2, first.Written)
	assert.Equal(t, "Week of 2025-01-13", first.Partition)
	assert.NotEmpty(t, first.RunID)

	rows, err := st.Rows(context.Background(), first.Partition)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	cats := types.RecordFromRow(rows[1])
	assert.Equal(t, "Deep Learning for Cats", cats.Title)
	assert.Equal(t, types.TypeNewArticle, cats.Type)
	assert.Equal(t, "Jane Doe", cats.Author)
	assert.Equal(t, "https://example.org/cats", cats.Link)
	assert.Equal(t, `=HYPERLINK("https://example.org/cats","Link")`, rows[1][types.ColLink])

	second, err := p.RunRange(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Known)
	assert.Equal(t, 0, second.Written)
	assert.Len(t, storedTitles(t, st), 2)
}

func TestRun_SkipsBadThreads(t *testing.T) {
	now := date(2025, 1, 15, 12)
	empty := alert("t2", "Jane Doe - new articles", date(2025, 1, 14, 8))
	empty.Messages[0].Body = "  "
	mail := &fakeMail{threads: []types.Thread{
		{ID: "t0", Subject: "no messages"},
		alert("t1", "Jane Doe - new related research", date(2025, 1, 13, 8),
			paper{"Graph Methods", "https://example.org/graphs"}),
		empty,
	}}
	st := openStore(t)
	p := newPipeline(t, mail, st, types.PipelineConfig{}, now)

	res, err := p.Run(context.Background(), time.Time{}, time.Time{}, mustIndex(t, p))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Threads)
	assert.Equal(t, 2, res.ThreadErrors)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, []string{"Graph Methods"}, storedTitles(t, st))
}

func TestRun_AddsWrittenRecordsToIndex(t *testing.T) {
	mail := &fakeMail{threads: []types.Thread{
		alert("t1", "Jane Doe - new articles", date(2025, 1, 13, 8),
			paper{"Graph Methods", "https://example.org/graphs"}),
	}}
	p := newPipeline(t, mail, openStore(t), types.PipelineConfig{}, date(2025, 1, 15, 12))

	idx := mustIndex(t, p)
	_, err := p.Run(context.Background(), time.Time{}, time.Time{}, idx)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	assert.True(t, idx.Contains(types.Record{Title: "graph methods"}))
}

func TestRun_SearchError(t *testing.T) {
	mail := &fakeMail{fail: func(mailbox.Query) error { return errors.New("mailbox offline") }}
	p := newPipeline(t, mail, openStore(t), types.PipelineConfig{}, date(2025, 1, 15, 12))

	_, err := p.RunRange(context.Background(), date(2025, 1, 1, 0), date(2025, 1, 8, 0))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPersist))
	assert.Contains(t, err.Error(), "mailbox offline")
}

func TestRun_PersistError(t *testing.T) {
	mail := &fakeMail{threads: []types.Thread{
		alert("t1", "Jane Doe - new articles", date(2025, 1, 13, 8),
			paper{"Graph Methods", "https://example.org/graphs"}),
	}}
	p := newPipeline(t, mail, failingStore{openStore(t)}, types.PipelineConfig{}, date(2025, 1, 15, 12))

	_, err := p.RunDefault(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersist)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRun_Metrics(t *testing.T) {
	mail := &fakeMail{threads: []types.Thread{
		alert("t1", "Jane Doe - new articles", date(2025, 1, 13, 8),
			paper{"Graph Methods", "https://example.org/graphs"},
			paper{"Graph Methods", "https://example.org/graphs"}),
	}}
	rec := metrics.New()
	p := newPipeline(t, mail, openStore(t), types.PipelineConfig{}, date(2025, 1, 15, 12), WithMetrics(rec))

	_, err := p.RunDefault(context.Background())
	require.NoError(t, err)

	values := gatherValues(t, rec)
	assert.Equal(t, 1.0, values["scholar_digest_threads_total"])
	assert.Equal(t, 2.0, values["scholar_digest_records_extracted_total"])
	assert.Equal(t, 1.0, values["scholar_digest_records_written_total"])
	assert.Equal(t, float64(date(2025, 1, 15, 12).Unix()), values["scholar_digest_last_run_timestamp_seconds"])
}

func gatherValues(t *testing.T, rec *metrics.Recorder) map[string]float64 {
	t.Helper()
	values := map[string]float64{}
	mfs, err := rec.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	return values
}

func TestRun_MetricsCountInsertedRows(t *testing.T) {
	now := date(2025, 1, 15, 12)
	mail := &fakeMail{threads: []types.Thread{
		alert("t1", "Jane Doe - new articles", date(2025, 1, 13, 8),
			paper{"Graph Methods", "https://example.org/graphs"}),
	}}
	st := openStore(t)
	_, err := newPipeline(t, mail, st, types.PipelineConfig{}, now).RunDefault(context.Background())
	require.NoError(t, err)

	// An empty index lets the record through to the store, which already
	// holds it in this week's partition.
	rec := metrics.New()
	p := newPipeline(t, mail, st, types.PipelineConfig{}, now, WithMetrics(rec))
	res, err := p.Run(context.Background(), date(2025, 1, 9, 0), date(2025, 1, 16, 0), dedup.NewIndex(dedup.ByTitle))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 0.0, gatherValues(t, rec)["scholar_digest_records_written_total"])
}

func TestRunRange_LinkStrategyIdempotentAcrossWeeks(t *testing.T) {
	mail := &fakeMail{threads: []types.Thread{
		alert("t1", "Jane Doe - new articles", date(2025, 1, 3, 8),
			paper{"Irish Surnames", "https://example.org/O%27Brien-paper"},
			paper{"Quoted Path", "https://example.org/%22x%22"},
			paper{"Plain", "https://example.org/plain"},
		),
	}}
	st := openStore(t)
	cfg := types.PipelineConfig{Strategy: "link"}
	from, to := date(2025, 1, 1, 0), date(2025, 1, 8, 0)

	first, err := newPipeline(t, mail, st, cfg, date(2025, 1, 7, 12)).RunRange(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Written)
	assert.Equal(t, "Week of 2025-01-06", first.Partition)

	later := newPipeline(t, mail, st, cfg, date(2025, 1, 14, 12))
	idx := mustIndex(t, later)
	assert.True(t, idx.Contains(types.Record{Link: "https://example.org/O'Brien-paper"}))
	assert.True(t, idx.Contains(types.Record{Link: `https://example.org/"x"`}))

	second, err := later.RunRange(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Known)
	assert.Equal(t, 0, second.Written)
	assert.Len(t, storedTitles(t, st), 3)
}

func mustIndex(t *testing.T, p *Pipeline) *dedup.Index {
	t.Helper()
	idx, err := p.Index(context.Background())
	require.NoError(t, err)
	return idx
}

func TestSplitRange(t *testing.T) {
	from := date(2025, 1, 1, 0)

	chunks := SplitRange(from, from.AddDate(0, 0, 20), 6)
	require.Len(t, chunks, 4)
	var lengths []int
	for i, c := range chunks {
		lengths = append(lengths, int(c.To.Sub(c.From).Hours()/24))
		if i > 0 {
			assert.Equal(t, chunks[i-1].To, c.From, "chunks must be contiguous")
		}
	}
	assert.Equal(t, []int{6, 6, 6, 2}, lengths)
	assert.Equal(t, from, chunks[0].From)
	assert.Equal(t, from.AddDate(0, 0, 20), chunks[3].To)

	assert.Len(t, SplitRange(from, from.AddDate(0, 0, 14), 7), 2)
	assert.Len(t, SplitRange(from, from.AddDate(0, 0, 3), 0), 1)
	assert.Empty(t, SplitRange(from, from, 7))
	assert.Empty(t, SplitRange(from.AddDate(0, 0, 1), from, 7))
}

func TestBackfill_SharedIndexAcrossChunks(t *testing.T) {
	// 2025-01-01 through 2025-01-20: twenty days in 6-day chunks.
	now := date(2025, 1, 20, 10)
	mail := &fakeMail{threads: []types.Thread{
		alert("t1", "Jane Doe - new articles", date(2025, 1, 2, 8),
			paper{"Paper A", "https://example.org/a"},
			paper{"Paper B", "https://example.org/b"}),
		alert("t3", "Jane Doe - new related research", date(2025, 1, 14, 8),
			paper{"Paper A (preprint)", "https://example.org/a"},
			paper{"Paper C", "https://example.org/c"}),
	}}
	st := openStore(t)
	p := newPipeline(t, mail, st, types.PipelineConfig{Strategy: "link", ChunkDays: 6}, now)

	res, err := p.Backfill(context.Background(), date(2025, 1, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Chunks)
	assert.Equal(t, 0, res.FailedChunks)
	assert.Equal(t, 3, res.Written)
	assert.Equal(t, 1, res.Known)
	require.Len(t, mail.queries, 4)
	assert.Equal(t, "from:scholaralerts-noreply@google.com after:2025/01/13 before:2025/01/19", mail.queries[2].String())

	assert.ElementsMatch(t, []string{"Paper A", "Paper B", "Paper C"}, storedTitles(t, st))
}

func TestBackfill_SkipsFailedChunk(t *testing.T) {
	now := date(2025, 1, 20, 10)
	mail := &fakeMail{
		threads: []types.Thread{
			alert("t1", "Jane Doe - new articles", date(2025, 1, 2, 8), paper{"Paper A", "https://example.org/a"}),
			alert("t2", "Jane Doe - new articles", date(2025, 1, 8, 8), paper{"Paper B", "https://example.org/b"}),
			alert("t3", "Jane Doe - new articles", date(2025, 1, 14, 8), paper{"Paper C", "https://example.org/c"}),
		},
		fail: func(q mailbox.Query) error {
			if q.After.Equal(date(2025, 1, 7, 0)) {
				return errors.New("HTTP 500")
			}
			return nil
		},
	}
	st := openStore(t)
	p := newPipeline(t, mail, st, types.PipelineConfig{ChunkDays: 6}, now)

	res, err := p.Backfill(context.Background(), date(2025, 1, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Chunks)
	assert.Equal(t, 1, res.FailedChunks)
	assert.Equal(t, 2, res.Written)
	assert.ElementsMatch(t, []string{"Paper A", "Paper C"}, storedTitles(t, st))
}

func TestBackfill_PersistErrorAborts(t *testing.T) {
	now := date(2025, 1, 20, 10)
	mail := &fakeMail{threads: []types.Thread{
		alert("t1", "Jane Doe - new articles", date(2025, 1, 2, 8), paper{"Paper A", "https://example.org/a"}),
		alert("t3", "Jane Doe - new articles", date(2025, 1, 14, 8), paper{"Paper C", "https://example.org/c"}),
	}}
	p := newPipeline(t, mail, failingStore{openStore(t)}, types.PipelineConfig{ChunkDays: 6}, now)

	res, err := p.Backfill(context.Background(), date(2025, 1, 1, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersist)
	assert.Equal(t, 1, res.Chunks)
	assert.Len(t, mail.queries, 1)
}

func TestBackfill_ChunkDelaySpacesChunks(t *testing.T) {
	const delay = 30 * time.Millisecond
	mail := &fakeMail{}
	p := newPipeline(t, mail, openStore(t), types.PipelineConfig{ChunkDays: 6, ChunkDelay: delay}, date(2025, 1, 20, 10))

	start := time.Now()
	res, err := p.Backfill(context.Background(), date(2025, 1, 1, 0))
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Chunks)
	assert.Len(t, mail.queries, 4)
	// The first chunk starts at once; each later one waits about one delay.
	assert.GreaterOrEqual(t, elapsed, 3*delay-5*time.Millisecond)
}

func TestBackfill_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mail := &fakeMail{fail: func(mailbox.Query) error {
		time.AfterFunc(20*time.Millisecond, cancel)
		return nil
	}}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	p := newPipeline(t, mail, openStore(t), types.PipelineConfig{ChunkDays: 6}, date(2025, 1, 20, 10), WithLimiter(limiter))

	start := time.Now()
	res, err := p.Backfill(ctx, date(2025, 1, 1, 0))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Chunks)
	assert.Len(t, mail.queries, 1)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestBackfill_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newPipeline(t, &fakeMail{}, openStore(t), types.PipelineConfig{}, date(2025, 1, 20, 10))

	_, err := p.Backfill(ctx, date(2025, 1, 1, 0))
	assert.ErrorIs(t, err, context.Canceled)
}

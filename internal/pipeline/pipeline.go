// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the alert ETL: search the mailbox for a date range,
// extract records from each thread, drop records the store already holds,
// merge what remains and append it to the run week's partition.
//
// A run is idempotent: records written by an earlier run over the same
// range are found in the store index and skipped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/scholar-digest/internal/dedup"
	"github.com/pdiddy/scholar-digest/internal/extract"
	"github.com/pdiddy/scholar-digest/internal/mailbox"
	"github.com/pdiddy/scholar-digest/internal/metrics"
	"github.com/pdiddy/scholar-digest/internal/store"
	"github.com/pdiddy/scholar-digest/pkg/types"
)

// ErrPersist wraps failures writing to the store. A persistence failure
// ends the run, and a backfill, instead of being skipped.
var ErrPersist = errors.New("persisting records")

// Store is the partitioned record store the pipeline reads and appends to.
type Store interface {
	dedup.PartitionReader
	GetOrCreatePartition(ctx context.Context, weekOf time.Time) (types.Partition, error)
	AppendRows(ctx context.Context, partition string, records []types.Record, ident func(types.Record) string) (int, error)
}

// Result summarizes one range run.
type Result struct {
	RunID        string
	From, To     time.Time
	Threads      int
	ThreadErrors int
	Extracted    int
	Known        int
	Duplicates   int
	Written      int
	Partition    string
}

func (r *Result) add(o Result) {
	r.Threads += o.Threads
	r.ThreadErrors += o.ThreadErrors
	r.Extracted += o.Extracted
	r.Known += o.Known
	r.Duplicates += o.Duplicates
	r.Written += o.Written
	if o.Partition != "" {
		r.Partition = o.Partition
	}
}

// BackfillResult summarizes a chunked backfill. Result holds the totals
// across chunks.
type BackfillResult struct {
	Result
	Chunks       int
	FailedChunks int
}

// Pipeline wires the mail source, extractor, identity strategy and store.
type Pipeline struct {
	mail      mailbox.Searcher
	store     Store
	extractor *extract.Extractor
	key       dedup.KeyFunc
	cfg       types.PipelineConfig
	sender    string

	logger  *zap.Logger
	now     func() time.Time
	limiter *rate.Limiter
	metrics *metrics.Recorder
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithLimiter replaces the limiter that spaces backfill chunks.
func WithLimiter(l *rate.Limiter) Option {
	return func(p *Pipeline) { p.limiter = l }
}

// WithMetrics records run counters.
func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithSender overrides the alert sender used in the search query.
func WithSender(sender string) Option {
	return func(p *Pipeline) { p.sender = sender }
}

// New builds a Pipeline. The identity strategy comes from cfg.Strategy.
func New(mail mailbox.Searcher, st Store, ex *extract.Extractor, cfg types.PipelineConfig, opts ...Option) (*Pipeline, error) {
	key, err := dedup.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = types.DefaultLookbackDays
	}
	if cfg.ChunkDays <= 0 {
		cfg.ChunkDays = types.DefaultChunkDays
	}
	if ex == nil {
		ex = extract.NewExtractor(types.ExtractConfig{})
	}

	limit := rate.Inf
	if cfg.ChunkDelay > 0 {
		limit = rate.Every(cfg.ChunkDelay)
	}
	p := &Pipeline{
		mail:      mail,
		store:     st,
		extractor: ex,
		key:       key,
		cfg:       cfg,
		sender:    types.DefaultSender,
		logger:    zap.NewNop(),
		now:       time.Now,
		limiter:   rate.NewLimiter(limit, 1),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Index builds a fresh existing-record index from every stored partition.
func (p *Pipeline) Index(ctx context.Context) (*dedup.Index, error) {
	idx, err := dedup.BuildIndex(ctx, p.store, p.key)
	if err != nil {
		return nil, fmt.Errorf("building record index: %w", err)
	}
	return idx, nil
}

// RunDefault processes the last LookbackDays days, through the end of today
// (UTC).
func (p *Pipeline) RunDefault(ctx context.Context) (Result, error) {
	to := startOfDay(p.now()).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -p.cfg.LookbackDays)
	return p.RunRange(ctx, from, to)
}

// RunRange processes [from, to) against a fresh index.
func (p *Pipeline) RunRange(ctx context.Context, from, to time.Time) (Result, error) {
	idx, err := p.Index(ctx)
	if err != nil {
		return Result{}, err
	}
	res, err := p.Run(ctx, from, to, idx)
	p.finish()
	return res, err
}

// Run processes one range against idx. Threads that fail to extract are
// logged and skipped. Records written to the store are added to idx, so a
// caller that reuses idx across ranges never writes the same record twice.
//
// Search errors are returned. Store errors are returned wrapped in
// ErrPersist.
func (p *Pipeline) Run(ctx context.Context, from, to time.Time, idx *dedup.Index) (Result, error) {
	res := Result{RunID: uuid.NewString(), From: from, To: to}
	q := mailbox.Query{From: p.sender, After: from, Before: to}
	log := p.logger.With(
		zap.String("run_id", res.RunID),
		zap.String("query", q.String()),
	)

	threads, err := p.mail.SearchThreads(ctx, q)
	if err != nil {
		log.Error("mail search failed", zap.Error(err))
		return res, fmt.Errorf("searching mail: %w", err)
	}
	res.Threads = len(threads)
	p.metrics.Threads(len(threads))
	if len(threads) == 0 {
		log.Info("no alert threads found")
		return res, nil
	}
	log.Info("found alert threads", zap.Int("found", len(threads)))

	var records []types.Record
	for i, t := range threads {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		recs, err := p.extractor.ExtractThread(t)
		if err != nil {
			res.ThreadErrors++
			p.metrics.ThreadError()
			log.Warn("skipping thread",
				zap.Int("thread", i),
				zap.String("thread_id", t.ID),
				zap.Error(err),
			)
			continue
		}
		records = append(records, recs...)
	}
	res.Extracted = len(records)
	p.metrics.Extracted(len(records))

	fresh, known := idx.Filter(records)
	res.Known = known
	p.metrics.Known(known)

	merged, dups := dedup.MergeStats(fresh, p.key)
	res.Duplicates = dups

	if len(merged) == 0 {
		log.Info("nothing new to write",
			zap.Int("known", known),
			zap.Int("duplicates", dups),
		)
		return res, nil
	}

	part, err := p.store.GetOrCreatePartition(ctx, store.WeekStart(p.now()))
	if err != nil {
		log.Error("opening partition failed", zap.Error(err))
		return res, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	res.Partition = part.Name

	written, err := p.store.AppendRows(ctx, part.Name, merged, p.key)
	if err != nil {
		log.Error("writing records failed", zap.String("partition", part.Name), zap.Error(err))
		return res, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	res.Written = written
	p.metrics.Written(written)

	for _, r := range merged {
		idx.Add(r)
	}

	log.Info("wrote records",
		zap.String("partition", part.Name),
		zap.Int("written", written),
		zap.Int("known", known),
		zap.Int("duplicates", dups),
	)
	return res, nil
}

// Backfill processes [from, now) in ChunkDays chunks against one shared
// index, waiting on the limiter between chunks. A chunk whose search fails
// is logged and skipped; a persistence failure stops the backfill.
func (p *Pipeline) Backfill(ctx context.Context, from time.Time) (BackfillResult, error) {
	to := startOfDay(p.now()).AddDate(0, 0, 1)
	chunks := SplitRange(startOfDay(from), to, p.cfg.ChunkDays)

	out := BackfillResult{Result: Result{RunID: uuid.NewString(), From: from, To: to}}
	log := p.logger.With(zap.String("run_id", out.RunID))
	defer p.finish()

	idx, err := p.Index(ctx)
	if err != nil {
		return out, err
	}
	log.Info("starting backfill",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("chunks", len(chunks)),
		zap.Int("indexed", idx.Len()),
	)

	for _, c := range chunks {
		if err := p.limiter.Wait(ctx); err != nil {
			return out, err
		}
		out.Chunks++

		res, err := p.Run(ctx, c.From, c.To, idx)
		out.add(res)
		if err != nil {
			if errors.Is(err, ErrPersist) || ctx.Err() != nil {
				return out, err
			}
			out.FailedChunks++
			log.Warn("skipping chunk",
				zap.Time("from", c.From),
				zap.Time("to", c.To),
				zap.Error(err),
			)
		}
	}

	log.Info("backfill complete",
		zap.Int("chunks", out.Chunks),
		zap.Int("failed_chunks", out.FailedChunks),
		zap.Int("written", out.Written),
	)
	return out, nil
}

func (p *Pipeline) finish() {
	p.metrics.Finished(p.now())
}

// Chunk is a half-open date range [From, To).
type Chunk struct {
	From, To time.Time
}

// SplitRange cuts [from, to) into consecutive chunks of days days; the last
// chunk may be shorter. days <= 0 means one chunk.
func SplitRange(from, to time.Time, days int) []Chunk {
	if !from.Before(to) {
		return nil
	}
	if days <= 0 {
		return []Chunk{{From: from, To: to}}
	}
	var chunks []Chunk
	for start := from; start.Before(to); {
		end := start.AddDate(0, 0, days)
		if end.After(to) {
			end = to
		}
		chunks = append(chunks, Chunk{From: start, To: end})
		start = end
	}
	return chunks
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

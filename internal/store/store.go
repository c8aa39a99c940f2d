// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists records in weekly, append-only partitions backed
// by SQLite. Each partition reads back as a table whose first row is the
// fixed header [Type, Title, Author, Link, Date].
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/scholar-digest/pkg/types"
)

// ErrPartitionNotFound is returned when reading a partition that does not exist.
var ErrPartitionNotFound = errors.New("partition not found")

const partitionPrefix = "Week of "

// Store manages the partitioned record database.
type Store struct {
	db *sqlx.DB
}

// Open opens or creates the SQLite database at cfg.Path and ensures the
// schema exists.
func Open(cfg types.StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path is empty")
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer; the job is sequential anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS partitions (
			name TEXT PRIMARY KEY,
			week_of TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			partition_name TEXT NOT NULL REFERENCES partitions(name),
			ident TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			link TEXT NOT NULL DEFAULT '',
			link_formula TEXT NOT NULL DEFAULT '',
			date TEXT NOT NULL DEFAULT '',
			UNIQUE(partition_name, ident)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_partition ON records(partition_name)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// WeekStart returns midnight UTC on the Monday of t's week.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// PartitionName returns the partition name for the week containing t.
func PartitionName(t time.Time) string {
	return partitionPrefix + WeekStart(t).Format("2006-01-02")
}

type partitionRow struct {
	Name      string `db:"name"`
	WeekOf    string `db:"week_of"`
	CreatedAt string `db:"created_at"`
}

func (p partitionRow) toPartition() types.Partition {
	out := types.Partition{Name: p.Name}
	if t, err := time.Parse(time.RFC3339, p.WeekOf); err == nil {
		out.WeekOf = t
	}
	if t, err := time.Parse(time.RFC3339, p.CreatedAt); err == nil {
		out.CreatedAt = t
	}
	return out
}

// ListPartitions returns every partition, oldest week first.
func (s *Store) ListPartitions(ctx context.Context) ([]types.Partition, error) {
	var rows []partitionRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT name, week_of, created_at FROM partitions ORDER BY week_of, name`,
	); err != nil {
		return nil, fmt.Errorf("listing partitions: %w", err)
	}
	out := make([]types.Partition, len(rows))
	for i, r := range rows {
		out[i] = r.toPartition()
	}
	return out, nil
}

// GetOrCreatePartition returns the partition for the week containing weekOf,
// creating it if absent.
func (s *Store) GetOrCreatePartition(ctx context.Context, weekOf time.Time) (types.Partition, error) {
	week := WeekStart(weekOf)
	name := PartitionName(week)

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO partitions (name, week_of, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, week.Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return types.Partition{}, fmt.Errorf("creating partition %s: %w", name, err)
	}

	var row partitionRow
	if err := s.db.GetContext(ctx, &row,
		`SELECT name, week_of, created_at FROM partitions WHERE name = ?`, name,
	); err != nil {
		return types.Partition{}, fmt.Errorf("reading partition %s: %w", name, err)
	}
	return row.toPartition(), nil
}

type recordRow struct {
	Type   string `db:"type"`
	Title  string `db:"title"`
	Author string `db:"author"`
	Link   string `db:"link"`
	Date   string `db:"date"`
}

// Rows returns the partition as a table: the header row followed by one row
// per record in insertion order. The Link column holds the hyperlink formula
// once the formula pass has run.
func (s *Store) Rows(ctx context.Context, partition string) ([][]string, error) {
	if err := s.ensurePartition(ctx, partition); err != nil {
		return nil, err
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT type, title, author,
			CASE WHEN link_formula != '' THEN link_formula ELSE link END AS link,
			date
		 FROM records WHERE partition_name = ? ORDER BY id`, partition,
	); err != nil {
		return nil, fmt.Errorf("reading partition %s: %w", partition, err)
	}

	out := make([][]string, 0, len(rows)+1)
	out = append(out, append([]string(nil), types.Header...))
	for _, r := range rows {
		out = append(out, []string{r.Type, r.Title, r.Author, r.Link, r.Date})
	}
	return out, nil
}

// CountRows returns the number of records in a partition, header excluded.
func (s *Store) CountRows(ctx context.Context, partition string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n,
		`SELECT count(*) FROM records WHERE partition_name = ?`, partition,
	); err != nil {
		return 0, fmt.Errorf("counting partition %s: %w", partition, err)
	}
	return n, nil
}

func (s *Store) ensurePartition(ctx context.Context, partition string) error {
	var n int
	if err := s.db.GetContext(ctx, &n,
		`SELECT count(*) FROM partitions WHERE name = ?`, partition,
	); err != nil {
		return fmt.Errorf("checking partition %s: %w", partition, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrPartitionNotFound, partition)
	}
	return nil
}

// AppendRows appends records to a partition and returns how many were
// inserted. Each record is keyed by ident within the partition; a record
// whose key is already present is skipped, so repeating an append is
// harmless. A second pass fills the hyperlink formula of the inserted rows.
// The whole append is one transaction.
func (s *Store) AppendRows(ctx context.Context, partition string, records []types.Record, ident func(types.Record) string) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	insert, err := tx.PrepareContext(ctx,
		`INSERT INTO records (partition_name, ident, type, title, author, link, date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(partition_name, ident) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer insert.Close()

	type inserted struct {
		id   int64
		link string
	}
	var added []inserted

	for _, r := range records {
		key := identFor(r, ident)
		if key == "" {
			continue
		}
		date := ""
		if !r.Date.IsZero() {
			date = r.Date.UTC().Format(types.DateLayout)
		}
		res, err := insert.ExecContext(ctx,
			partition, key, r.Type.Label(), r.Title, r.Author, r.Link, date,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting %q: %w", r.Title, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("inserting %q: %w", r.Title, err)
		}
		if n == 0 {
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("inserting %q: %w", r.Title, err)
		}
		added = append(added, inserted{id: id, link: r.Link})
	}

	// Formula pass.
	for _, a := range added {
		if a.link == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE records SET link_formula = ? WHERE id = ?`,
			types.HyperlinkFormula(a.link), a.id,
		); err != nil {
			return 0, fmt.Errorf("writing link formula: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing append: %w", err)
	}
	return len(added), nil
}

// identFor returns the storage key of r: ident's key, else the link, else
// the lowercased title.
func identFor(r types.Record, ident func(types.Record) string) string {
	if ident != nil {
		if k := ident(r); k != "" {
			return k
		}
	}
	if l := strings.TrimSpace(r.Link); l != "" {
		return l
	}
	return strings.ToLower(strings.TrimSpace(r.Title))
}

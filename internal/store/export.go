// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/scholar-digest/pkg/types"
)

// ExportPartition is one partition with its records, as written by export.
type ExportPartition struct {
	Name    string         `json:"name" yaml:"name"`
	WeekOf  time.Time      `json:"week_of" yaml:"week_of"`
	Records []types.Record `json:"records" yaml:"records"`
}

// ExportYAML writes the named partition, or every partition when name is
// empty, to w as YAML.
func (s *Store) ExportYAML(ctx context.Context, w io.Writer, name string) error {
	parts, err := s.exportPartitions(ctx, name)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(parts); err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return enc.Close()
}

// ExportJSON writes the named partition, or every partition when name is
// empty, to w as indented JSON.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer, name string) error {
	parts, err := s.exportPartitions(ctx, name)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(parts); err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return nil
}

func (s *Store) exportPartitions(ctx context.Context, name string) ([]ExportPartition, error) {
	all, err := s.ListPartitions(ctx)
	if err != nil {
		return nil, err
	}

	var out []ExportPartition
	for _, p := range all {
		if name != "" && p.Name != name {
			continue
		}
		rows, err := s.Rows(ctx, p.Name)
		if err != nil {
			return nil, err
		}
		ep := ExportPartition{Name: p.Name, WeekOf: p.WeekOf, Records: []types.Record{}}
		for _, row := range rows[1:] {
			ep.Records = append(ep.Records, types.RecordFromRow(row))
		}
		out = append(out, ep)
	}
	if name != "" && len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPartitionNotFound, name)
	}
	return out, nil
}

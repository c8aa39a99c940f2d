// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics records per-run pipeline counters in a private Prometheus
// registry and writes them in the node-exporter textfile format, so a
// cron-driven run can be scraped after it exits.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "scholar_digest"

// Recorder holds the run counters. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	registry *prometheus.Registry

	threads   prometheus.Counter
	errors    prometheus.Counter
	extracted prometheus.Counter
	known     prometheus.Counter
	written   prometheus.Counter
	lastRun   prometheus.Gauge
}

// New registers the counters in a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		threads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threads_total",
			Help:      "Alert threads returned by the mail search.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thread_errors_total",
			Help:      "Threads skipped because extraction failed.",
		}),
		extracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_extracted_total",
			Help:      "Records extracted from alert bodies.",
		}),
		known: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_known_total",
			Help:      "Extracted records dropped because the store already holds them.",
		}),
		written: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Rows the store inserted.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	r.registry.MustRegister(r.threads, r.errors, r.extracted, r.known, r.written, r.lastRun)
	return r
}

// Registry exposes the underlying registry for inspection.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Threads adds n searched threads.
func (r *Recorder) Threads(n int) {
	if r != nil {
		r.threads.Add(float64(n))
	}
}

// ThreadError counts one skipped thread.
func (r *Recorder) ThreadError() {
	if r != nil {
		r.errors.Inc()
	}
}

// Extracted adds n extracted records.
func (r *Recorder) Extracted(n int) {
	if r != nil {
		r.extracted.Add(float64(n))
	}
}

// Known adds n records filtered out as already stored.
func (r *Recorder) Known(n int) {
	if r != nil {
		r.known.Add(float64(n))
	}
}

// Written adds n rows inserted by the store.
func (r *Recorder) Written(n int) {
	if r != nil {
		r.written.Add(float64(n))
	}
}

// Finished stamps the last-run gauge.
func (r *Recorder) Finished(at time.Time) {
	if r != nil {
		r.lastRun.Set(float64(at.Unix()))
	}
}

// WriteTextfile writes the registry to path atomically. An empty path is a
// no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

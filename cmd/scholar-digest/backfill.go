// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/scholar-digest/internal/metrics"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Process historical alert emails in week-sized chunks",
	Long: `Backfill walks from --from through today in chunks of chunk_days days
(default 7), pausing chunk_delay (default 2s) between chunks to stay under
mail API rate limits. A chunk that fails to search is logged and skipped;
a store failure stops the backfill. Papers found in an earlier chunk are not
written again by a later one.`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().String("from", "", "first day to process (YYYY-MM-DD)")
	backfillCmd.Flags().Int("chunk-days", 0, "days per chunk (overrides pipeline.chunk_days)")
	backfillCmd.Flags().Duration("delay", 0, "pause between chunks (overrides pipeline.chunk_delay)")
	_ = backfillCmd.MarkFlagRequired("from")

	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	fromFlag, _ := cmd.Flags().GetString("from")
	from, err := parseDay(fromFlag)
	if err != nil {
		return err
	}
	if !from.Before(startOfToday().AddDate(0, 0, 1)) {
		return fmt.Errorf("--from %s is in the future", fromFlag)
	}

	c := cfg
	if n, _ := cmd.Flags().GetInt("chunk-days"); n > 0 {
		c.Pipeline.ChunkDays = n
	}
	if d, _ := cmd.Flags().GetDuration("delay"); d > 0 {
		c.Pipeline.ChunkDelay = d
	}

	rec := metrics.New()
	p, st, err := openPipeline(c, rec)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := p.Backfill(cmd.Context(), from)
	writeMetrics(rec)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "chunks: %d (%d failed)\n", res.Chunks, res.FailedChunks)
	printResult(cmd, res.Result)
	return nil
}

func startOfToday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/scholar-digest/internal/metrics"
	"github.com/pdiddy/scholar-digest/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process alert emails from the last week or a given range",
	Long: `Run searches the mailbox for alert emails, by default over the last
lookback_days days (7) through today. With --from (and optionally --to,
inclusive) it processes that range instead. New papers are appended to the
partition for the current week; papers already stored are skipped.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("from", "", "first day to process (YYYY-MM-DD)")
	runCmd.Flags().String("to", "", "last day to process, inclusive (YYYY-MM-DD, default today)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	fromFlag, _ := cmd.Flags().GetString("from")
	toFlag, _ := cmd.Flags().GetString("to")
	if fromFlag == "" && toFlag != "" {
		return fmt.Errorf("--to requires --from")
	}

	rec := metrics.New()
	p, st, err := openPipeline(cfg, rec)
	if err != nil {
		return err
	}
	defer st.Close()

	var res pipeline.Result
	if fromFlag == "" {
		res, err = p.RunDefault(cmd.Context())
	} else {
		from, perr := parseDay(fromFlag)
		if perr != nil {
			return perr
		}
		to := startOfToday()
		if toFlag != "" {
			if to, perr = parseDay(toFlag); perr != nil {
				return perr
			}
		}
		// --to is inclusive; the pipeline range is half-open.
		res, err = p.RunRange(cmd.Context(), from, to.AddDate(0, 0, 1))
	}
	writeMetrics(rec)
	if err != nil {
		return err
	}

	printResult(cmd, res)
	return nil
}

func printResult(cmd *cobra.Command, res pipeline.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "threads: %d (%d skipped)\n", res.Threads, res.ThreadErrors)
	fmt.Fprintf(out, "records: %d extracted, %d already stored, %d duplicates\n", res.Extracted, res.Known, res.Duplicates)
	if res.Partition != "" {
		fmt.Fprintf(out, "written: %d to %q\n", res.Written, res.Partition)
	} else {
		fmt.Fprintln(out, "written: 0")
	}
}

func writeMetrics(rec *metrics.Recorder) {
	if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn("writing metrics", zap.Error(err))
	}
}

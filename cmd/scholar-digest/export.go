// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/scholar-digest/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored records as YAML or JSON",
	Long: `Export writes the records of one partition, or of every partition when
--partition is omitted, to stdout or to --output.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("partition", "", `partition name, e.g. "Week of 2025-01-13" (default all)`)
	exportCmd.Flags().String("format", "yaml", "output format: yaml or json")
	exportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	partition, _ := cmd.Flags().GetString("partition")
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")

	if format != "yaml" && format != "json" {
		return fmt.Errorf("unknown format %q: want yaml or json", format)
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	var w io.Writer = cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}

	if format == "json" {
		return st.ExportJSON(cmd.Context(), w, partition)
	}
	return st.ExportYAML(cmd.Context(), w, partition)
}

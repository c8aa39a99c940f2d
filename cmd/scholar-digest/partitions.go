// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/scholar-digest/internal/store"
)

var partitionsCmd = &cobra.Command{
	Use:   "partitions",
	Short: "List store partitions with their record counts",
	RunE:  runPartitions,
}

func init() {
	rootCmd.AddCommand(partitionsCmd)
}

func runPartitions(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	parts, err := st.ListPartitions(ctx)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no partitions")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PARTITION\tWEEK OF\tRECORDS")
	for _, p := range parts {
		n, err := st.CountRows(ctx, p.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\n", p.Name, p.WeekOf.Format(dayLayout), n)
	}
	return w.Flush()
}

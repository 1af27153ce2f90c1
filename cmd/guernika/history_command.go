package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"guernika/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent conversions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(cmd.Context(), func(store *history.Store) error {
				runs, err := store.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No conversions recorded yet.")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, historyRow(run))
				}
				headers := []string{"Job", "Started", "Model", "Compute", "Status", "Duration", "Size"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight}
				fmt.Fprintln(out, renderTable(headers, rows, aligns))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func historyRow(run history.Run) []string {
	id := run.ID
	if len(id) > 8 {
		id = id[:8]
	}
	duration := "-"
	if d := run.Duration(); d > 0 {
		duration = d.Round(time.Second).String()
	}
	size := "-"
	if run.OutputBytes > 0 {
		size = humanize.Bytes(uint64(run.OutputBytes))
	}
	return []string{id, humanize.Time(run.StartedAt), run.Model, run.ComputeUnit, run.Status, duration, size}
}

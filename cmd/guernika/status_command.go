package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"guernika/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var destination string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the converter can run on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			prober, err := ctx.prober()
			if err != nil {
				return err
			}
			if strings.TrimSpace(destination) == "" {
				store, err := ctx.prefsStore()
				if err != nil {
					return err
				}
				destination = store.Load().LastOutputFolder
			}

			results := preflight.RunAll(prober, destination)
			rows := make([][]string, 0, len(results)+2)
			for _, result := range results {
				rows = append(rows, []string{result.Name, statusLabel(result.Passed), result.Detail})
			}
			for _, dep := range preflight.CheckSystemDeps(cfg) {
				detail := dep.Detail
				if detail == "" {
					detail = dep.Description
				}
				rows = append(rows, []string{dep.Name, statusLabel(dep.Available), detail})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))

			status := prober.Status()
			if !status.CompanionApp {
				fmt.Fprintf(out, "\nGuernika is not installed. Get it from %s\n", cfg.Capabilities.CompanionAppURL)
			}
			if !status.Toolchain {
				fmt.Fprintf(out, "\n%s\n", preflight.RemediationHint)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&destination, "output", "o", "", "Output folder to check (defaults to the last used folder)")
	return cmd
}

func statusLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "missing"
}

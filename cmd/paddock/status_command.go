package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and job plan status",
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			status, err := be.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Paddock Status", colorize) {
				fmt.Fprintln(out, line)
			}
			running := "stopped"
			if status.Running {
				running = fmt.Sprintf("running (pid %d)", status.PID)
			}
			fmt.Fprintf(out, "  %-12s %s\n", "Daemon:", running)
			fmt.Fprintf(out, "  %-12s %s\n", "Database:", status.DatabasePath)

			if len(status.JobStats) > 0 {
				keys := make([]string, 0, len(status.JobStats))
				for key := range status.JobStats {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				parts := make([]string, 0, len(keys))
				for _, key := range keys {
					parts = append(parts, fmt.Sprintf("%s %d", key, status.JobStats[key]))
				}
				fmt.Fprintf(out, "  %-12s %s\n", "Jobs:", strings.Join(parts, ", "))
			}
			if status.NextJob != nil {
				fmt.Fprintf(out, "  %-12s %s %s at %s\n", "Next up:",
					displayName(status.NextJob.TriggerKind),
					status.NextJob.RaceLabel,
					displayTime(status.NextJob.ScheduledFor))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
	return cmd
}

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"paddock/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage scheduled production jobs",
	}
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsUpcomingCommand(ctx))
	cmd.AddCommand(newJobsShowCommand(ctx))
	cmd.AddCommand(newJobsTriggerCommand(ctx))
	cmd.AddCommand(newJobsCancelCommand(ctx))
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var status, kind string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			jobs, err := be.ListJobs(cmd.Context(), status, kind, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.JobListResponse{Jobs: jobs})
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs found.")
				return nil
			}

			colorize := shouldColorize(cmd.OutOrStdout())
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				race := job.RaceLabel
				if race == "" {
					race = "-"
				}
				rows = append(rows, []string{
					strconv.FormatInt(job.ID, 10),
					displayName(job.TriggerKind),
					race,
					displayTime(job.ScheduledFor),
					colorizeStatus(job.Status, colorize),
					fmt.Sprintf("%d/%d", job.RetryCount, job.MaxRetries),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Trigger", "Race", "Scheduled", "Status", "Retries"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by job status")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by trigger kind")
	cmd.Flags().IntVar(&limit, "limit", 0, "Limit the number of rows")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output jobs as JSON")
	return cmd
}

func newJobsUpcomingCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "Show the next scheduled production runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			jobs, err := be.UpcomingJobs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.JobListResponse{Jobs: jobs})
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing scheduled.")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				race := job.RaceLabel
				if race == "" {
					race = "-"
				}
				rows = append(rows, []string{
					strconv.FormatInt(job.ID, 10),
					displayName(job.TriggerKind),
					race,
					displayTime(job.ScheduledFor),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Trigger", "Race", "Scheduled"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Limit the number of rows")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output jobs as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			job, err := be.DescribeJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.JobResponse{Job: *job})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job %d\n", job.ID)
			fmt.Fprintf(out, "  %-15s %s\n", "Trigger:", displayName(job.TriggerKind))
			if job.RaceLabel != "" {
				fmt.Fprintf(out, "  %-15s %s\n", "Race:", job.RaceLabel)
			}
			fmt.Fprintf(out, "  %-15s %s\n", "Scheduled for:", displayTime(job.ScheduledFor))
			fmt.Fprintf(out, "  %-15s %s\n", "Status:", displayName(job.Status))
			fmt.Fprintf(out, "  %-15s %d/%d\n", "Retries:", job.RetryCount, job.MaxRetries)
			if job.ScrapeContext != "" {
				fmt.Fprintf(out, "  %-15s %s\n", "Scrape focus:", job.ScrapeContext)
			}
			if job.EpisodeID != nil {
				fmt.Fprintf(out, "  %-15s %d\n", "Episode:", *job.EpisodeID)
			}
			if job.ErrorMessage != "" {
				fmt.Fprintf(out, "  %-15s %s\n", "Last error:", job.ErrorMessage)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the job as JSON")
	return cmd
}

func newJobsTriggerCommand(ctx *commandContext) *cobra.Command {
	var kind, scrapeContext string
	var raceID int64

	cmd := &cobra.Command{
		Use:   "trigger [job-id]",
		Short: "Queue an immediate production run, or force an existing job to run now",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid job id %q", args[0])
				}
				job, err := be.TriggerExistingJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %d (%s) will run now\n", job.ID, displayName(job.TriggerKind))
				return nil
			}

			req := api.TriggerRequest{
				TriggerKind:   kind,
				ScrapeContext: scrapeContext,
			}
			if raceID > 0 {
				req.RaceID = &raceID
			}
			job, err := be.TriggerJob(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued job %d (%s)\n", job.ID, displayName(job.TriggerKind))
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "manual", "Trigger kind for the run")
	cmd.Flags().Int64Var(&raceID, "race", 0, "Race ID to attach the run to")
	cmd.Flags().StringVar(&scrapeContext, "context", "", "Scrape focus for the script")
	return cmd
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			if err := be.CancelJob(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled job %d\n", id)
			return nil
		},
	}
	return cmd
}

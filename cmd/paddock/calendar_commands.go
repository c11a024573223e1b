package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"paddock/internal/api"
)

func newCalendarCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Manage the race calendar and the job plan derived from it",
	}
	cmd.AddCommand(newCalendarListCommand(ctx))
	cmd.AddCommand(newCalendarAddCommand(ctx))
	cmd.AddCommand(newCalendarSyncCommand(ctx))
	return cmd
}

func newCalendarListCommand(ctx *commandContext) *cobra.Command {
	var season int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the stored race calendar for a season",
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			if season == 0 {
				season = time.Now().Year()
			}
			races, err := be.ListRaces(cmd.Context(), season)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.RaceListResponse{Races: races})
			}
			if len(races) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No races stored for %d.\n", season)
				return nil
			}

			rows := make([][]string, 0, len(races))
			for _, race := range races {
				rows = append(rows, []string{
					fmt.Sprintf("R%02d", race.Round),
					race.Name,
					race.Country,
					displayName(race.WeekendKind),
					displayTime(race.RaceStart),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Round", "Race", "Country", "Weekend", "Race Start"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&season, "season", 0, "Season to list (defaults to the current year)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output races as JSON")
	return cmd
}

func newCalendarAddCommand(ctx *commandContext) *cobra.Command {
	var req api.RaceRequest
	var round string

	cmd := &cobra.Command{
		Use:   "add <round> <name>",
		Short: "Store or update one calendar entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			round = args[0]
			parsed, err := strconv.Atoi(round)
			if err != nil {
				return fmt.Errorf("invalid round %q", round)
			}
			req.Round = parsed
			req.Name = args[1]
			if req.Season == 0 {
				req.Season = time.Now().Year()
			}

			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			race, err := be.UpsertRace(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %d R%02d %s\n", race.Season, race.Round, race.Name)
			return nil
		},
	}

	cmd.Flags().IntVar(&req.Season, "season", 0, "Season the round belongs to (defaults to the current year)")
	cmd.Flags().StringVar(&req.Circuit, "circuit", "", "Circuit name")
	cmd.Flags().StringVar(&req.Country, "country", "", "Host country")
	cmd.Flags().StringVar(&req.RaceStart, "race-start", "", "Race start (RFC3339)")
	cmd.Flags().StringVar(&req.FP1Start, "fp1-start", "", "First practice start (RFC3339)")
	cmd.Flags().StringVar(&req.FP2Start, "fp2-start", "", "Second practice start (RFC3339)")
	cmd.Flags().StringVar(&req.FP3Start, "fp3-start", "", "Third practice start (RFC3339)")
	cmd.Flags().StringVar(&req.SprintQualifyingStart, "sprint-qualifying-start", "", "Sprint qualifying start (RFC3339)")
	cmd.Flags().StringVar(&req.SprintStart, "sprint-start", "", "Sprint start (RFC3339)")
	cmd.Flags().StringVar(&req.QualifyingStart, "qualifying-start", "", "Qualifying start (RFC3339)")
	cmd.Flags().BoolVar(&req.HasSprint, "sprint", false, "Mark the weekend as a sprint weekend")
	_ = cmd.MarkFlagRequired("race-start")
	return cmd
}

func newCalendarSyncCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Re-plan trigger jobs from the stored calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			result, err := be.SyncCalendar(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Planned %d race jobs and %d recaps (%d already planned or past)\n",
				result.RaceJobs, result.Recaps, result.Skipped)
			return nil
		},
	}
	return cmd
}

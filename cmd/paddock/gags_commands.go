package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"paddock/internal/api"
)

func newGagsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gags",
		Short: "Manage the running-gag continuity library",
	}
	cmd.AddCommand(newGagsListCommand(ctx))
	cmd.AddCommand(newGagsShowCommand(ctx))
	cmd.AddCommand(newGagsAddCommand(ctx))
	cmd.AddCommand(newGagsRateCommand(ctx))
	cmd.AddCommand(newGagsRetireCommand(ctx))
	cmd.AddCommand(newGagsReviveCommand(ctx))
	return cmd
}

func newGagsListCommand(ctx *commandContext) *cobra.Command {
	var status, category, character string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List running gags",
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			list, err := be.ListGags(cmd.Context(), status, category, character)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.GagListResponse{Gags: list})
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No gags found.")
				return nil
			}

			colorize := shouldColorize(cmd.OutOrStdout())
			rows := make([][]string, 0, len(list))
			for _, gag := range list {
				uses := strconv.Itoa(gag.TimesUsed)
				if gag.MaxUses > 0 {
					uses = fmt.Sprintf("%d/%d", gag.TimesUsed, gag.MaxUses)
				}
				character := gag.Character
				if character == "" {
					character = "(universal)"
				}
				rows = append(rows, []string{
					strconv.FormatInt(gag.ID, 10),
					gag.Name,
					displayName(gag.Category),
					character,
					fmt.Sprintf("%.1f", gag.HumorRating),
					uses,
					strconv.Itoa(gag.AudienceFamiliarity),
					colorizeStatus(gag.Status, colorize),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Category", "Character", "Humor", "Uses", "Familiarity", "Status"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by gag status")
	cmd.Flags().StringVar(&category, "category", "", "Filter by gag category")
	cmd.Flags().StringVar(&character, "character", "", "Filter by character")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output gags as JSON")
	return cmd
}

func newGagsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <gag-id>",
		Short: "Show one gag in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid gag id %q", args[0])
			}
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			gag, err := be.DescribeGag(cmd.Context(), id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.GagResponse{Gag: *gag})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Gag %d: %s\n", gag.ID, gag.Name)
			if gag.Description != "" {
				fmt.Fprintf(out, "  %-15s %s\n", "Description:", gag.Description)
			}
			fmt.Fprintf(out, "  %-15s %s\n", "Category:", displayName(gag.Category))
			if gag.Character != "" {
				fmt.Fprintf(out, "  %-15s %s\n", "Character:", gag.Character)
			}
			fmt.Fprintf(out, "  %-15s %.1f\n", "Humor rating:", gag.HumorRating)
			fmt.Fprintf(out, "  %-15s %d", "Times used:", gag.TimesUsed)
			if gag.MaxUses > 0 {
				fmt.Fprintf(out, " of %d", gag.MaxUses)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  %-15s %d races\n", "Cooldown:", gag.CooldownRaces)
			if gag.LastUsedSeason != nil && gag.LastUsedRound != nil {
				fmt.Fprintf(out, "  %-15s %d R%02d\n", "Last used:", *gag.LastUsedSeason, *gag.LastUsedRound)
			}
			fmt.Fprintf(out, "  %-15s %d/10\n", "Familiarity:", gag.AudienceFamiliarity)
			fmt.Fprintf(out, "  %-15s %s\n", "Status:", displayName(gag.Status))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the gag as JSON")
	return cmd
}

func newGagsAddCommand(ctx *commandContext) *cobra.Command {
	var req api.GagRequest

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a new running gag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			req.Name = args[0]
			if !cmd.Flags().Changed("cooldown") {
				if cfg, err := ctx.ensureConfig(); err == nil && cfg != nil {
					req.CooldownRaces = cfg.Continuity.DefaultCooldownRaces
				}
			}
			gag, err := be.CreateGag(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added gag %d: %s\n", gag.ID, gag.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Category, "category", "running_joke", "Gag category")
	cmd.Flags().StringVar(&req.Character, "character", "", "Character the gag belongs to (empty for universal)")
	cmd.Flags().StringVar(&req.SecondaryCharacter, "secondary-character", "", "Second character for rivalry or relationship gags")
	cmd.Flags().StringVar(&req.Description, "description", "", "What the joke is")
	cmd.Flags().StringVar(&req.Setup, "setup", "", "Setup line of the joke")
	cmd.Flags().StringVar(&req.Punchline, "punchline", "", "Punchline of the joke")
	cmd.Flags().StringVar(&req.Origin, "origin", "", "Where the gag originated")
	cmd.Flags().StringSliceVar(&req.Tags, "tags", nil, "Free-form tags for the gag")
	cmd.Flags().Float64Var(&req.HumorRating, "humor", 5, "Humor rating from 0 to 10")
	cmd.Flags().IntVar(&req.MaxUses, "max-uses", 0, "Total use budget (0 for unlimited)")
	cmd.Flags().IntVar(&req.CooldownRaces, "cooldown", 0, "Races to rest between uses (defaults to the configured value)")
	return cmd
}

func newGagsRateCommand(ctx *commandContext) *cobra.Command {
	var episodeID int64
	var sceneIndex int

	cmd := &cobra.Command{
		Use:   "rate <gag-id> <rating>",
		Short: "Score one deployment of a gag from audience feedback",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid gag id %q", args[0])
			}
			rating, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid rating %q", args[1])
			}
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			gag, err := be.RateGag(cmd.Context(), id, episodeID, sceneIndex, rating)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Gag %d now rated %.1f\n", gag.ID, gag.HumorRating)
			return nil
		},
	}

	cmd.Flags().Int64Var(&episodeID, "episode", 0, "Episode the rated usage belongs to")
	cmd.Flags().IntVar(&sceneIndex, "scene", 0, "Scene index of the rated usage")
	_ = cmd.MarkFlagRequired("episode")
	return cmd
}

func newGagsRetireCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retire <gag-id>",
		Short: "Remove a gag from rotation permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid gag id %q", args[0])
			}
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			if err := be.RetireGag(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Retired gag %d\n", id)
			return nil
		},
	}
	return cmd
}

func newGagsReviveCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revive <gag-id>",
		Short: "Bring a retired gag back into rotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid gag id %q", args[0])
			}
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			if err := be.ReviveGag(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revived gag %d\n", id)
			return nil
		},
	}
	return cmd
}

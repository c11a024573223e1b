package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"paddock/internal/api"
)

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "Inspect produced episodes",
	}
	cmd.AddCommand(newEpisodesListCommand(ctx))
	cmd.AddCommand(newEpisodesShowCommand(ctx))
	return cmd
}

func newEpisodesListCommand(ctx *commandContext) *cobra.Command {
	var status string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List episodes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			list, err := be.ListEpisodes(cmd.Context(), status, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.EpisodeListResponse{Episodes: list})
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No episodes found.")
				return nil
			}

			colorize := shouldColorize(cmd.OutOrStdout())
			rows := make([][]string, 0, len(list))
			for _, episode := range list {
				title := episode.Title
				if title == "" {
					title = "(untitled)"
				}
				rows = append(rows, []string{
					strconv.FormatInt(episode.ID, 10),
					title,
					displayName(episode.TriggerKind),
					colorizeStatus(episode.Status, colorize),
					strconv.Itoa(episode.SceneCount),
					displayTime(episode.PublishedAt),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Trigger", "Status", "Scenes", "Published"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by episode status")
	cmd.Flags().IntVar(&limit, "limit", 0, "Limit the number of rows")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output episodes as JSON")
	return cmd
}

func newEpisodesShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <episode-id>",
		Short: "Show one episode with its scenes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid episode id %q", args[0])
			}
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer be.Close()

			episode, err := be.DescribeEpisode(cmd.Context(), id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.EpisodeResponse{Episode: *episode})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			title := episode.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Fprintf(out, "Episode %d: %s\n", episode.ID, title)
			fmt.Fprintf(out, "  %-13s %s\n", "Trigger:", displayName(episode.TriggerKind))
			fmt.Fprintf(out, "  %-13s %s\n", "Status:", displayName(episode.Status))
			if episode.Stage != "" {
				fmt.Fprintf(out, "  %-13s %s\n", "Stage:", displayName(episode.Stage))
			}
			if episode.VideoPath != "" {
				fmt.Fprintf(out, "  %-13s %s\n", "Video:", episode.VideoPath)
			}
			if episode.PublishURL != "" {
				fmt.Fprintf(out, "  %-13s %s\n", "Published:", episode.PublishURL)
			}
			if episode.ErrorMessage != "" {
				fmt.Fprintf(out, "  %-13s %s\n", "Last error:", episode.ErrorMessage)
			}

			if len(episode.Scenes) > 0 {
				rows := make([][]string, 0, len(episode.Scenes))
				for _, scene := range episode.Scenes {
					rows = append(rows, []string{
						strconv.Itoa(scene.Index),
						colorizeStatus(scene.Status, colorize),
						strconv.Itoa(scene.RetryCount),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Scene", "Status", "Retries"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight},
				))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the episode as JSON")
	return cmd
}

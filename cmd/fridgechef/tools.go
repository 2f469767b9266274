package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/fridgechef/internal/history"
	"github.com/nupi-ai/fridgechef/internal/recipeapi"
	"github.com/nupi-ai/fridgechef/internal/video"
)

var errSomeFailed = errors.New("some links have no playable video")

func newEmbedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "embed url...",
		Short: "Print the privacy-enhanced embed link for video URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := false
			for _, raw := range args {
				embed, err := video.EmbedURL(raw)
				if err != nil {
					a.logger.Warn("no embed link", "url", raw, "error", err)
					failed = true
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), embed)
			}
			if failed {
				return errSomeFailed
			}
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "List saved recipes, or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openHistory()
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("history is disabled (set history_path or FRIDGECHEF_DATA_DIR)")
			}
			defer store.Close()

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid id %q: %w", args[0], err)
				}
				e, err := store.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				renderer, err := a.renderer()
				if err != nil {
					return err
				}
				return renderer.Text(cmd.OutOrStdout(), []recipeapi.Recipe{e.Recipe})
			}

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printEntries(cmd, entries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", history.DefaultLimit, "number of recipes to list")
	return cmd
}

func printEntries(cmd *cobra.Command, entries []history.Entry) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSAVED\tTITLE\tSTEPS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", e.ID, e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Title, len(e.Steps))
	}
	return tw.Flush()
}

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/fridgechef/internal/recipeapi"
	"github.com/nupi-ai/fridgechef/internal/session"
)

type cookOptions struct {
	extras  string
	exclude []string
	html    string
	speak   int
}

func newCookCmd(a *app) *cobra.Command {
	var opts cookOptions
	cmd := &cobra.Command{
		Use:   "cook photo...",
		Short: "Identify ingredients in fridge photos and print recipes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cook(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.extras, "extra", "", "extra ingredients, comma or space separated")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "identified ingredients to leave out")
	cmd.Flags().StringVar(&opts.html, "html", "", "also write the recipes as an HTML page")
	cmd.Flags().IntVar(&opts.speak, "speak", 0, "read the steps of recipe N aloud (1-based)")
	return cmd
}

func (a *app) cook(ctx context.Context, stdout, stderr io.Writer, paths []string, opts cookOptions) error {
	images, err := recipeapi.LoadImages(ctx, paths)
	if err != nil {
		return err
	}
	store, err := a.openHistory()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	slots := max(a.cfg.Slots, len(images))
	ctrl := session.New(a.backend(), consoleNotifier{w: stderr}, a.sessionOptions(slots, store))
	for i, img := range images {
		if err := ctrl.SetSlot(i, img); err != nil {
			return err
		}
	}

	if err := ctrl.Identify(ctx); err != nil {
		return err
	}
	for _, name := range opts.exclude {
		if !ctrl.Toggle(strings.TrimSpace(name), false) {
			fmt.Fprintf(stderr, "not identified, ignoring --exclude %q\n", name)
		}
	}
	fmt.Fprintf(stdout, "食材: %s\n\n", strings.Join(ctrl.Checklist().Selected(), "、"))

	ctrl.SetExtras(opts.extras)
	if err := ctrl.Generate(ctx); err != nil {
		return err
	}

	renderer, err := a.renderer()
	if err != nil {
		return err
	}
	if err := renderer.Text(stdout, ctrl.Recipes()); err != nil {
		return err
	}
	if opts.html != "" {
		if err := renderer.WriteFile(opts.html, ctrl.Ingredients(), ctrl.Recipes()); err != nil {
			return err
		}
		a.logger.Info("results page written", "path", opts.html)
	}

	if opts.speak > 0 {
		rc, ok := ctrl.Recipe(opts.speak - 1)
		if !ok {
			return fmt.Errorf("no recipe %d, got %d recipes", opts.speak, len(ctrl.Recipes()))
		}
		return a.speakAll(ctx, rc.Steps)
	}
	return nil
}

// consoleNotifier prints alerts and progress for the terminal.
type consoleNotifier struct {
	w io.Writer
}

func (n consoleNotifier) Alert(msg string) {
	fmt.Fprintln(n.w, msg)
}

func (n consoleNotifier) Progress(msg string) {
	if msg != "" {
		fmt.Fprintln(n.w, msg)
	}
}

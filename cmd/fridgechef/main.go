package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/fridgechef/internal/appinfo"
	"github.com/nupi-ai/fridgechef/internal/config"
	"github.com/nupi-ai/fridgechef/internal/history"
	"github.com/nupi-ai/fridgechef/internal/recipeapi"
	"github.com/nupi-ai/fridgechef/internal/render"
	"github.com/nupi-ai/fridgechef/internal/session"
	"github.com/nupi-ai/fridgechef/internal/telemetry"
	"github.com/nupi-ai/fridgechef/internal/video"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// RunE functions return errors; they are reported once here.
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app carries what every subcommand shares. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	configFile string
	logLevel   string

	cfg      config.Config
	logger   *slog.Logger
	recorder *telemetry.Recorder
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           appinfo.Info.BinaryName,
		Short:         appinfo.Info.Description,
		Version:       appinfo.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "YAML config file (overrides FRIDGECHEF_CONFIG_FILE)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newServeCmd(a),
		newCookCmd(a),
		newEmbedCmd(a),
		newSpeakCmd(a),
		newVoicesCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Loader{File: a.configFile}.Load()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg
	a.logger = newLogger(cfg.LogLevel)
	a.recorder = telemetry.NewRecorder(a.logger)
	return nil
}

func (a *app) backend() *recipeapi.Client {
	return recipeapi.NewClient(a.cfg.APIURL, a.cfg.RequestTimeout,
		recipeapi.WithUserAgent(appinfo.UserAgent()),
		recipeapi.WithObserver(a.recorder),
	)
}

func (a *app) renderer() (*render.Renderer, error) {
	return render.New(video.NewNormalizer(a.logger), appinfo.Info.Name+" "+appinfo.Version())
}

// openHistory returns nil when the history is disabled.
func (a *app) openHistory() (*history.Store, error) {
	if a.cfg.HistoryPath == "" {
		return nil, nil
	}
	store, err := history.Open(a.cfg.HistoryPath)
	if err != nil {
		return nil, err
	}
	a.logger.Info("recipe history opened", "path", a.cfg.HistoryPath)
	return store, nil
}

// sessionOptions avoids handing the controller a typed nil store.
func (a *app) sessionOptions(slots int, store *history.Store) session.Options {
	opts := session.Options{Slots: slots, Logger: a.logger}
	if store != nil {
		opts.History = store
	}
	return opts
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// Skip config loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appinfo.Info.Name, appinfo.Version())
			return err
		},
	}
}

func newLogger(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

func parseLevel(value string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func logFloatPtrField(v *float64) any {
	if v == nil {
		return "default"
	}
	return *v
}

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nupi-ai/fridgechef/internal/appinfo"
	"github.com/nupi-ai/fridgechef/internal/session"
	"github.com/nupi-ai/fridgechef/internal/web"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	logger := a.logger
	logger.Info("starting",
		"app", appinfo.Info.Name,
		"version", appinfo.Version(),
		"listen_addr", a.cfg.ListenAddr,
		"api_url", a.cfg.APIURL,
		"speech_engine", a.cfg.SpeechEngine,
	)

	renderer, err := a.renderer()
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
	player, releaseEngine, err := a.newPlayer(ctx)
	if err != nil {
		return err
	}
	defer releaseEngine()

	flash := web.NewFlash(logger)
	ctrl := session.New(a.backend(), flash, a.sessionOptions(a.cfg.Slots, store))
	handler := web.New(ctx, ctrl, flash, player, renderer, web.Options{
		MaxUploadBytes: int64(a.cfg.MaxUploadMB) << 20,
		RateLimit:      a.cfg.RateLimit,
		Metrics:        a.recorder,
		Logger:         logger,
	})

	// Bind first so a bad address fails before anything else starts.
	lis, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return err
	}
	logger.Info("listener bound", "addr", lis.Addr().String())

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested, stopping HTTP server")
		if player != nil {
			player.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful stop timed out, forcing stop", "error", err)
			return srv.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("HTTP server terminated with error", "error", err)
		return err
	}
	logger.Info("stopped")
	return nil
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/altiplano/parasearch/internal/config"
	"github.com/altiplano/parasearch/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search session over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctrl := a.newController()
			ctrl.Start(ctx)
			defer ctrl.Stop()

			if a.resolvedPath != "" {
				w, err := a.watchConfig(func(cfg *config.Config) {
					ctrl.SetExamples(cfg.Search.Examples)
				})
				if err == nil {
					err = w.Start(ctx)
				}
				if err != nil {
					a.logger.Warn("config reload disabled", zap.Error(err))
				} else {
					defer w.Stop()
				}
			}

			srv := server.NewServer(ctrl, &a.cfg.Server, a.logger)
			return runUntilDone(ctx, a.logger, srv.Start, srv.Stop)
		},
	}
	cmd.Flags().StringVar(&host, "host", "localhost", "listen host (overrides config)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port (overrides config)")
	return cmd
}

// runUntilDone runs start until it fails or ctx is done, then calls stop.
func runUntilDone(ctx context.Context, logger *zap.Logger, start func() error, stop func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return stop(shutdownCtx)
	})
	return g.Wait()
}

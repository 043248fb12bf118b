package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/altiplano/parasearch/internal/backendstub"
)

func newMockBackendCmd(a *app) *cobra.Command {
	var (
		addr  string
		delay time.Duration
		fail  int
	)
	cmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Run a canned backend for local development",
		Long: `Run a backend that answers /search, /health and /models with canned data,
so the client, repl and session server can be tried without a model server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stub := backendstub.New(backendstub.WithLogger(a.logger))
			stub.SetDelay(delay)
			if fail != 0 {
				stub.FailWith(fail)
			}
			return runUntilDone(ctx, a.logger, func() error { return stub.Start(addr) }, stub.Stop)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8000", "listen address")
	cmd.Flags().DurationVar(&delay, "delay", 0, "artificial latency per search")
	cmd.Flags().IntVar(&fail, "fail", 0, "answer every search with this HTTP status")
	return cmd
}

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/altiplano/parasearch/internal/config"
	"github.com/altiplano/parasearch/internal/repl"
	"github.com/altiplano/parasearch/internal/watcher"
)

func newREPLCmd(a *app) *cobra.Command {
	var noPrompt bool
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive search session",
		Long: `Start an interactive search session. Type a question to search, or :help for
commands. Example queries and display settings follow edits to the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			ctrl := a.newController()
			ctrl.Start(ctx)
			defer ctrl.Stop()

			r := repl.New(ctrl, out,
				repl.WithLogger(a.logger),
				repl.WithPrompt(!noPrompt),
				repl.WithRenderOptions(renderOptions(a.cfg, out)))

			if a.resolvedPath != "" {
				w, err := a.watchConfig(func(cfg *config.Config) {
					ctrl.SetExamples(cfg.Search.Examples)
					opts := renderOptions(cfg, out)
					opts.BackendURL = a.cfg.Backend.BaseURL
					r.SetRenderOptions(opts)
				})
				if err != nil {
					a.logger.Warn("config reload disabled", zap.Error(err))
				} else if err := w.Start(ctx); err != nil {
					a.logger.Warn("config reload disabled", zap.Error(err))
				} else {
					defer w.Stop()
				}
			}
			return r.Run(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "do not print the input prompt")
	return cmd
}

// watchConfig returns a watcher that reloads the resolved config file and passes each
// valid reload to apply. Invalid edits are logged and ignored. The backend address is
// fixed for the life of the process.
func (a *app) watchConfig(apply func(*config.Config)) (*watcher.Watcher, error) {
	opts := []watcher.WatcherOption{}
	if a.cfg.Debug || a.debug {
		opts = append(opts, watcher.WithLogger(a.logger))
	}
	return watcher.NewWatcher([]string{a.resolvedPath}, func(path string) {
		cfg, err := config.Load(path)
		if err != nil {
			a.logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
			return
		}
		if cfg.Backend.BaseURL != a.cfg.Backend.BaseURL {
			a.logger.Warn("backend.base_url changed; restart to apply",
				zap.String("current", a.cfg.Backend.BaseURL), zap.String("new", cfg.Backend.BaseURL))
		}
		a.logger.Info("config reloaded", zap.String("path", path))
		apply(cfg)
	}, opts...)
}

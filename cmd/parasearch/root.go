package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/altiplano/parasearch/internal/cli"
	"github.com/altiplano/parasearch/internal/client"
	"github.com/altiplano/parasearch/internal/config"
	"github.com/altiplano/parasearch/internal/observability"
	"github.com/altiplano/parasearch/internal/session"
	"github.com/altiplano/parasearch/pkg/utils"
)

// errReported marks a failure already shown to the user.
var errReported = errors.New("reported")

// app carries what every subcommand needs once the root has run.
type app struct {
	configPath string
	envFile    string
	debug      bool
	backendURL string

	cfg          *config.Config
	resolvedPath string
	logger       *zap.Logger
	shutdown     observability.ShutdownFunc
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "parasearch",
		Short: "ParaSearch - search a knowledge backend with trust signals",
		Long: `parasearch submits questions to a ParaSearch knowledge-search backend and shows
the answers with their confidence, relevance and hallucination risk. It runs as a
one-shot command, an interactive session, or an HTTP session server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context(), isService(cmd))
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "config file path")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment overlay")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.backendURL, "backend", "", "backend base URL (overrides config)")

	root.AddCommand(
		newSearchCmd(a),
		newREPLCmd(a),
		newServeCmd(a),
		newHealthCmd(a),
		newModelsCmd(a),
		newMockBackendCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// isService reports whether cmd runs until interrupted, and so logs like a server.
func isService(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "serve", "mock-backend":
		return true
	}
	return false
}

func (a *app) setup(ctx context.Context, service bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}
	cfg, resolved, err := loadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.backendURL != "" {
		cfg.Backend.BaseURL = a.backendURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg
	a.resolvedPath = resolved

	debugMode := cfg.Debug || a.debug
	newLogger := utils.NewCLILogger
	if service {
		newLogger = utils.NewLogger
	}
	logger, err := newLogger(debugMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.logger = logger
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Bool("debug", debugMode))

	shutdown, err := observability.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	a.shutdown = shutdown
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	if a.shutdown != nil {
		err = a.shutdown(ctx)
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing default file yields defaults; an explicitly named file must exist.
// Returns the config and the path that was loaded ("" when defaults were used).
func loadConfig(path string) (*config.Config, string, error) {
	if path == config.DefaultPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); statErr != nil {
			cfg, err := config.LoadOrDefault(path)
			return cfg, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func (a *app) newClient() *client.Client {
	return client.New(a.cfg.Backend.BaseURL,
		client.WithTimeout(a.cfg.Backend.Timeout),
		client.WithRateLimit(a.cfg.Backend.RateLimitPerMinute),
		client.WithLogger(a.logger))
}

func (a *app) newController(opts ...session.Option) *session.Controller {
	base := []session.Option{
		session.WithLogger(a.logger),
		session.WithRequestDefaults(a.cfg.Search.NumResults, a.cfg.Search.TemperatureOrDefault()),
		session.WithExamples(a.cfg.Search.Examples),
	}
	return session.New(a.newClient(), append(base, opts...)...)
}

// renderOptions derives text rendering settings; color is dropped when w is a file
// that is not a terminal.
func renderOptions(cfg *config.Config, w io.Writer) cli.RenderOptions {
	color := cfg.Output.ColorOrDefault()
	if f, ok := w.(*os.File); ok && color {
		if fi, err := f.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
			color = false
		}
	}
	return cli.RenderOptions{
		Color:        color,
		SnippetWidth: cfg.Output.SnippetWidth,
		BackendURL:   cfg.Backend.BaseURL,
	}
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

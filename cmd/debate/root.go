package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-debate/internal/api/debates"
	"github.com/tjfontaine/polyglot-debate/internal/config"
	"github.com/tjfontaine/polyglot-debate/internal/storage"
	"github.com/tjfontaine/polyglot-debate/internal/storage/memory"
	"github.com/tjfontaine/polyglot-debate/internal/storage/sqlite"
	"github.com/tjfontaine/polyglot-debate/internal/telemetry"
)

const (
	serviceName = "polyglot-debate"
	version     = "1.0.0"
)

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg      *config.Config
	logger   *slog.Logger
	shutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "debate",
		Short: "Generate, replay and archive multi-panelist debates",
		Long: `Generate, replay and archive multi-panelist debates.

Debates are streamed from the generation backend as newline-delimited JSON
and printed as they arrive. Completed debates are kept in a local archive
that can be listed, exported or served back over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultPath, "config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newGenerateCmd(a),
		newHistoryCmd(a),
		newShowCmd(a),
		newExportCmd(a),
		newServeCmd(a),
	)

	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}

	// Logs go to stderr; stdout carries transcripts and exports.
	a.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
	slog.SetDefault(a.logger)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(serviceName, version, os.Stderr, a.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
		a.shutdown = shutdown
	}
	return nil
}

func (a *app) close() error {
	if a.shutdown == nil {
		return nil
	}
	if err := a.shutdown(context.Background()); err != nil {
		a.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
	}
	return nil
}

func (a *app) client() *debates.Client {
	api := a.cfg.API
	opts := []debates.ClientOption{
		debates.WithGenerateURL(api.GenerateURL),
		debates.WithListURL(api.ListURL),
		debates.WithGetURL(api.GetURL),
		debates.WithUserAgent(api.UserAgent),
		debates.WithRequestTimeout(api.RequestTimeout),
	}
	if api.BaseURL != "" {
		opts = append(opts, debates.WithBaseURL(api.BaseURL))
	}
	return debates.NewClient(opts...)
}

// openStore opens the configured archive. It returns nil when archiving is
// disabled.
func (a *app) openStore() (storage.ArchiveStore, error) {
	switch a.cfg.Storage.Type {
	case "sqlite":
		store, err := sqlite.New(a.cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		return store, nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, nil
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

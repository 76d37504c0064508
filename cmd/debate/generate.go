package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-debate/internal/archive"
	"github.com/tjfontaine/polyglot-debate/internal/cache"
	"github.com/tjfontaine/polyglot-debate/internal/config"
	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
	"github.com/tjfontaine/polyglot-debate/internal/session"
)

type generateOptions struct {
	panelists    []string
	panelFile    string
	noCache      bool
	offlineCache bool
}

func newGenerateCmd(a *app) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate [topic]",
		Short: "Stream a new debate, or replay a matching one from history",
		Long: `Stream a new debate for a topic and panel.

Before generating, debate history is searched for a debate with exactly the
same topic and the same set of panelists. A match is shown instead of
generating a new one unless --no-cache is given.

Examples:
  debate generate "Is free will an illusion?" -p kant="Immanuel Kant" -p hume="David Hume"
  debate generate --panel panel.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGenerate(cmd, args, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.panelists, "panelist", "p", nil, "panelist as id=Name (repeatable)")
	cmd.Flags().StringVar(&opts.panelFile, "panel", "", "YAML file with topic and panelists")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "always generate a new debate")
	cmd.Flags().BoolVar(&opts.offlineCache, "offline-cache", false, "search the local archive instead of remote history")
	return cmd
}

func (a *app) runGenerate(cmd *cobra.Command, args []string, opts *generateOptions) error {
	ctx := cmd.Context()

	topic, panelists, err := selection(args, opts)
	if err != nil {
		return err
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	client := a.client()

	if !opts.noCache {
		var source cache.HistorySource = client
		if opts.offlineCache && store != nil {
			source = cache.ArchiveSource{Store: store}
		}
		if played, err := a.playCached(ctx, cmd, source, topic, panelists); err != nil || played {
			return err
		}
	}

	s := session.New(client,
		session.WithLogger(a.logger),
		session.WithTimeout(a.cfg.API.Timeout))

	started := time.Now()
	h, err := s.Start(ctx, topic, panelists)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n\n", topic)
	printer := newLivePrinter(out, panelists)

	state, cause := session.Observe(ctx, h, session.ObserverFuncs{
		DebateID: func(id string) {
			a.logger.Info("debate persisted by backend", slog.String("debate_id", id))
		},
		Message: func(_ string, transcript []domain.TranscriptEntry) {
			printer.update(transcript)
		},
	})
	printer.finish()

	switch state {
	case domain.StateComplete:
		id, ok := archive.Record(ctx, a.logger, store, archive.FromSession(s, topic, panelists, started))
		if ok {
			fmt.Fprintf(cmd.ErrOrStderr(), "\narchived as %s\n", id)
		}
		return nil
	case domain.StateCancelled:
		return errors.New("debate cancelled")
	default:
		if domain.IsRetryable(cause) {
			return fmt.Errorf("debate failed (retryable): %w", cause)
		}
		return fmt.Errorf("debate failed: %w", cause)
	}
}

// playCached prints a matching historical debate. It reports whether one was
// found.
func (a *app) playCached(ctx context.Context, cmd *cobra.Command, source cache.HistorySource, topic string, panelists []domain.Panelist) (bool, error) {
	resolver := cache.NewResolver(source,
		cache.WithPageSize(a.cfg.History.PageSize),
		cache.WithMaxPages(a.cfg.History.MaxPages),
		cache.WithLogger(a.logger))

	hit, ok, err := resolver.Resolve(ctx, topic, panelists)
	if err != nil {
		// History is an optimisation; generation still works without it.
		a.logger.Warn("debate history unavailable", slog.String("error", err.Error()))
		return false, nil
	}
	if !ok {
		return false, nil
	}

	d, err := a.loadDebate(ctx, hit.ID, source)
	if err != nil {
		a.logger.Warn("failed to load cached debate",
			slog.String("debate_id", hit.ID),
			slog.String("error", err.Error()))
		return false, nil
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "replaying debate %s from %s\n\n", d.ID, d.CreatedAt.Local().Format(time.DateTime))
	printTranscript(cmd.OutOrStdout(), d)
	return true, nil
}

// loadDebate fetches id from the archive behind source, or from the backend.
func (a *app) loadDebate(ctx context.Context, id string, source cache.HistorySource) (*domain.Debate, error) {
	if local, ok := source.(cache.ArchiveSource); ok {
		return local.Store.GetDebate(ctx, id)
	}
	return a.client().GetDebate(ctx, id)
}

func selection(args []string, opts *generateOptions) (string, []domain.Panelist, error) {
	var topic string
	var panelists []domain.Panelist

	if opts.panelFile != "" {
		t, p, err := config.LoadPanelists(opts.panelFile)
		if err != nil {
			return "", nil, err
		}
		topic, panelists = t, p
	}
	if len(args) == 1 {
		topic = args[0]
	}
	for _, raw := range opts.panelists {
		p, err := config.ParsePanelist(raw)
		if err != nil {
			return "", nil, err
		}
		panelists = append(panelists, p)
	}

	if strings.TrimSpace(topic) == "" {
		return "", nil, errors.New("a debate topic is required")
	}
	if err := config.ValidatePanelists(panelists); err != nil {
		return "", nil, err
	}
	return topic, panelists, nil
}

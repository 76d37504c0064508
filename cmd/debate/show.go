package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
	"github.com/tjfontaine/polyglot-debate/internal/storage"
)

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <debate-id>",
		Short: "Print a past debate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.findDebate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printTranscript(cmd.OutOrStdout(), d)
			return nil
		},
	}
}

// findDebate looks in the local archive first, then asks the backend.
func (a *app) findDebate(ctx context.Context, id string) (*domain.Debate, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	if store != nil {
		defer store.Close()
		d, err := store.GetDebate(ctx, id)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			a.logger.Warn("archive lookup failed",
				slog.String("debate_id", id),
				slog.String("error", err.Error()))
		}
	}

	d, err := a.client().GetDebate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get debate: %w", err)
	}
	return d, nil
}

// Package cache decides whether a requested debate already exists and can be
// played back instead of generated.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/tjfontaine/polyglot-debate/internal/api/debates"
	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
)

// IsCacheHit reports whether historical is an exact match for the candidate
// topic and panelist set. Topics compare byte for byte with no trimming or
// case folding. Panelists compare by identifier, ignoring order.
func IsCacheHit(historical *domain.HistoricalDebate, topic string, panelists []domain.Panelist) bool {
	if historical == nil {
		return false
	}
	if historical.Topic != topic {
		return false
	}
	if len(historical.Panelists) != len(panelists) {
		return false
	}

	a := domain.PanelistIDs(historical.Panelists)
	b := domain.PanelistIDs(panelists)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// HistorySource lists persisted debates page by page. *debates.Client
// satisfies it.
type HistorySource interface {
	ListDebates(ctx context.Context, limit, offset int) (*debates.ListDebatesResponse, error)
}

const (
	defaultPageSize = 20
	defaultMaxPages = 5
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithPageSize sets how many debates are requested per page.
func WithPageSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// WithMaxPages bounds how many pages are scanned per lookup.
func WithMaxPages(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxPages = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// Resolver searches debate history for an exact match.
type Resolver struct {
	source   HistorySource
	pageSize int
	maxPages int
	logger   *slog.Logger
}

// NewResolver creates a resolver over source.
func NewResolver(source HistorySource, opts ...Option) *Resolver {
	r := &Resolver{
		source:   source,
		pageSize: defaultPageSize,
		maxPages: defaultMaxPages,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the first historical debate, newest first, that is a
// cache hit for topic and panelists.
func (r *Resolver) Resolve(ctx context.Context, topic string, panelists []domain.Panelist) (*domain.HistoricalDebate, bool, error) {
	offset := 0
	for page := 0; page < r.maxPages; page++ {
		resp, err := r.source.ListDebates(ctx, r.pageSize, offset)
		if err != nil {
			return nil, false, fmt.Errorf("list debates at offset %d: %w", offset, err)
		}

		for i := range resp.Debates {
			if IsCacheHit(&resp.Debates[i], topic, panelists) {
				hit := resp.Debates[i]
				r.logger.Info("debate cache hit",
					slog.String("debate_id", hit.ID),
					slog.Int("page", page))
				return &hit, true, nil
			}
		}

		if !resp.HasMore || len(resp.Debates) == 0 {
			break
		}
		offset += len(resp.Debates)
	}

	r.logger.Debug("debate cache miss", slog.Int("panelists", len(panelists)))
	return nil, false, nil
}

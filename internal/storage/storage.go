// Package storage defines the local archive of completed debates kept by the
// client for offline revisit, export and playback.
package storage

import (
	"context"
	"errors"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
)

// ErrNotFound is returned when no archived debate has the requested id.
var ErrNotFound = errors.New("debate not found in archive")

// ListOptions pages through the archive, newest first.
type ListOptions struct {
	Limit  int
	Offset int
}

// ArchiveStore persists completed debates.
type ArchiveStore interface {
	// SaveDebate inserts or replaces a debate and its transcript.
	SaveDebate(ctx context.Context, debate *domain.Debate) error

	// GetDebate returns a debate with its transcript.
	GetDebate(ctx context.Context, id string) (*domain.Debate, error)

	// ListDebates returns debate summaries ordered by creation time, newest
	// first.
	ListDebates(ctx context.Context, opts ListOptions) ([]domain.HistoricalDebate, error)

	// CountDebates returns the number of archived debates.
	CountDebates(ctx context.Context) (int, error)

	// FindByTopic returns the summaries of debates whose topic equals topic
	// exactly, newest first.
	FindByTopic(ctx context.Context, topic string) ([]domain.HistoricalDebate, error)

	Close() error
}

// Package archive persists completed debate attempts to the local archive.
package archive

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
	"github.com/tjfontaine/polyglot-debate/internal/storage"
)

const persistTimeout = 5 * time.Second

// Attempt is the final snapshot of one generation attempt.
type Attempt struct {
	DebateID   string
	Topic      string
	Panelists  []domain.Panelist
	State      domain.SessionState
	Transcript []domain.TranscriptEntry
	StartedAt  time.Time
}

// Record stores a completed attempt in the archive and returns the id it was
// stored under. Attempts that did not complete are not archived and report
// false. Failures are logged to logger and never returned to the caller. A
// nil logger uses slog.Default().
func Record(ctx context.Context, logger *slog.Logger, store storage.ArchiveStore, a Attempt) (string, bool) {
	if store == nil || a.State != domain.StateComplete {
		return "", false
	}

	if logger == nil {
		logger = slog.Default()
	}
	// Persistence outlives a caller that stops waiting, bounded by its own timeout.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	id := a.DebateID
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now()
	started := a.StartedAt
	if started.IsZero() {
		started = now
	}

	debate := &domain.Debate{
		ID:          id,
		Topic:       a.Topic,
		Panelists:   append([]domain.Panelist(nil), a.Panelists...),
		Transcript:  domain.CloneTranscript(a.Transcript),
		Status:      domain.DebateStatusComplete,
		CreatedAt:   started,
		CompletedAt: now,
	}

	if err := store.SaveDebate(persistCtx, debate); err != nil {
		logger.Error("failed to archive debate",
			slog.String("debate_id", id),
			slog.String("error", err.Error()),
		)
		return "", false
	}

	logger.Debug("debate archived",
		slog.String("debate_id", id),
		slog.Int("entries", len(debate.Transcript)),
	)
	return id, true
}

// FromSession snapshots the session's latest attempt.
func FromSession(s Snapshotter, topic string, panelists []domain.Panelist, started time.Time) Attempt {
	return Attempt{
		DebateID:   s.DebateID(),
		Topic:      topic,
		Panelists:  panelists,
		State:      s.State(),
		Transcript: s.Transcript(),
		StartedAt:  started,
	}
}

// Snapshotter exposes the outcome of a session. *session.Session satisfies it.
type Snapshotter interface {
	DebateID() string
	State() domain.SessionState
	Transcript() []domain.TranscriptEntry
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
	"github.com/tjfontaine/polyglot-debate/internal/storage"
)

// Store is an in-memory implementation of ArchiveStore
type Store struct {
	mu      sync.RWMutex
	debates map[string]*domain.Debate
}

var _ storage.ArchiveStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		debates: make(map[string]*domain.Debate),
	}
}

func (s *Store) SaveDebate(ctx context.Context, debate *domain.Debate) error {
	if debate.ID == "" {
		return fmt.Errorf("debate id is required")
	}
	if debate.CreatedAt.IsZero() {
		debate.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.debates[debate.ID] = cloneDebate(debate)
	return nil
}

func (s *Store) GetDebate(ctx context.Context, id string) (*domain.Debate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, exists := s.debates[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return cloneDebate(d), nil
}

func (s *Store) ListDebates(ctx context.Context, opts storage.ListOptions) ([]domain.HistoricalDebate, error) {
	all := s.sorted(func(*domain.Debate) bool { return true })

	// Simple pagination
	start := opts.Offset
	if start >= len(all) {
		return []domain.HistoricalDebate{}, nil
	}

	end := start + opts.Limit
	if opts.Limit == 0 || end > len(all) {
		end = len(all)
	}

	return all[start:end], nil
}

func (s *Store) CountDebates(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.debates), nil
}

func (s *Store) FindByTopic(ctx context.Context, topic string) ([]domain.HistoricalDebate, error) {
	return s.sorted(func(d *domain.Debate) bool { return d.Topic == topic }), nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) sorted(keep func(*domain.Debate) bool) []domain.HistoricalDebate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.HistoricalDebate
	for _, d := range s.debates {
		if keep(d) {
			result = append(result, cloneDebate(d).Summary())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func cloneDebate(d *domain.Debate) *domain.Debate {
	out := *d
	out.Panelists = append([]domain.Panelist(nil), d.Panelists...)
	out.Transcript = domain.CloneTranscript(d.Transcript)
	return &out
}

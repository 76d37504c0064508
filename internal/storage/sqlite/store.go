// Package sqlite is the SQLite-backed debate archive.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
	"github.com/tjfontaine/polyglot-debate/internal/storage"
)

// Store is a SQLite implementation of ArchiveStore
type Store struct {
	db *sqlx.DB
}

var _ storage.ArchiveStore = (*Store)(nil)

type debateRow struct {
	ID          string        `db:"id"`
	Topic       string        `db:"topic"`
	Panelists   string        `db:"panelists"`
	Status      string        `db:"status"`
	CreatedAt   int64         `db:"created_at"`
	CompletedAt sql.NullInt64 `db:"completed_at"`
}

type messageRow struct {
	Ordinal    int    `db:"ordinal"`
	PanelistID string `db:"panelist_id"`
	Text       string `db:"text"`
}

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS debates (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			panelists TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			completed_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS debate_messages (
			debate_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			panelist_id TEXT NOT NULL,
			text TEXT NOT NULL,
			PRIMARY KEY (debate_id, ordinal),
			FOREIGN KEY (debate_id) REFERENCES debates(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_debates_created ON debates(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_debates_topic ON debates(topic)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) SaveDebate(ctx context.Context, debate *domain.Debate) error {
	if debate.ID == "" {
		return fmt.Errorf("debate id is required")
	}
	if debate.CreatedAt.IsZero() {
		debate.CreatedAt = time.Now()
	}

	panelists, err := json.Marshal(debate.Panelists)
	if err != nil {
		return fmt.Errorf("failed to marshal panelists: %w", err)
	}

	var completedAt sql.NullInt64
	if !debate.CompletedAt.IsZero() {
		completedAt = sql.NullInt64{Int64: debate.CompletedAt.UnixNano(), Valid: true}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO debates (id, topic, panelists, status, created_at, completed_at)
	          VALUES (?, ?, ?, ?, ?, ?)
	          ON CONFLICT(id) DO UPDATE SET topic=excluded.topic, panelists=excluded.panelists,
	          status=excluded.status, created_at=excluded.created_at, completed_at=excluded.completed_at`,
		debate.ID, debate.Topic, string(panelists), string(debate.Status),
		debate.CreatedAt.UnixNano(), completedAt)
	if err != nil {
		return fmt.Errorf("failed to save debate: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM debate_messages WHERE debate_id = ?`, debate.ID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	for i, entry := range debate.Transcript {
		_, err := tx.ExecContext(ctx, `INSERT INTO debate_messages (debate_id, ordinal, panelist_id, text)
		          VALUES (?, ?, ?, ?)`,
			debate.ID, i, entry.SpeakerID, entry.Text)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetDebate(ctx context.Context, id string) (*domain.Debate, error) {
	var row debateRow
	err := s.db.GetContext(ctx, &row, `SELECT id, topic, panelists, status, created_at, completed_at
	          FROM debates WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get debate: %w", err)
	}

	summary, err := row.summary()
	if err != nil {
		return nil, err
	}

	var messages []messageRow
	err = s.db.SelectContext(ctx, &messages, `SELECT ordinal, panelist_id, text
	          FROM debate_messages WHERE debate_id = ?
	          ORDER BY ordinal ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	debate := &domain.Debate{
		ID:         summary.ID,
		Topic:      summary.Topic,
		Panelists:  summary.Panelists,
		Status:     domain.DebateStatus(row.Status),
		CreatedAt:  summary.CreatedAt,
		Transcript: make([]domain.TranscriptEntry, 0, len(messages)),
	}
	if row.CompletedAt.Valid {
		debate.CompletedAt = time.Unix(0, row.CompletedAt.Int64)
	}
	for _, m := range messages {
		debate.Transcript = append(debate.Transcript, domain.TranscriptEntry{
			Ordinal:   m.Ordinal,
			SpeakerID: m.PanelistID,
			Text:      m.Text,
		})
	}

	return debate, nil
}

func (s *Store) ListDebates(ctx context.Context, opts storage.ListOptions) ([]domain.HistoricalDebate, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = 100 // default limit
	}

	return s.selectSummaries(ctx, `SELECT id, topic, panelists, status, created_at, completed_at
	          FROM debates
	          ORDER BY created_at DESC, id ASC
	          LIMIT ? OFFSET ?`, limit, opts.Offset)
}

func (s *Store) CountDebates(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM debates`); err != nil {
		return 0, fmt.Errorf("failed to count debates: %w", err)
	}
	return n, nil
}

func (s *Store) FindByTopic(ctx context.Context, topic string) ([]domain.HistoricalDebate, error) {
	return s.selectSummaries(ctx, `SELECT id, topic, panelists, status, created_at, completed_at
	          FROM debates WHERE topic = ?
	          ORDER BY created_at DESC, id ASC`, topic)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) selectSummaries(ctx context.Context, query string, args ...any) ([]domain.HistoricalDebate, error) {
	var rows []debateRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query debates: %w", err)
	}

	result := make([]domain.HistoricalDebate, 0, len(rows))
	for _, row := range rows {
		h, err := row.summary()
		if err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, nil
}

func (r debateRow) summary() (domain.HistoricalDebate, error) {
	var panelists []domain.Panelist
	if err := json.Unmarshal([]byte(r.Panelists), &panelists); err != nil {
		return domain.HistoricalDebate{}, fmt.Errorf("failed to unmarshal panelists: %w", err)
	}
	return domain.HistoricalDebate{
		ID:        r.ID,
		Topic:     r.Topic,
		Panelists: panelists,
		CreatedAt: time.Unix(0, r.CreatedAt),
	}, nil
}

package domain

import "time"

// HistoricalDebate is a previously persisted debate as returned by the
// history listing. It is read-only input to cache resolution.
type HistoricalDebate struct {
	ID        string     `json:"id"`
	Topic     string     `json:"topic"`
	Panelists []Panelist `json:"panelists"`
	CreatedAt time.Time  `json:"startedAt"`
}

// DebateStatus describes how a stored debate ended.
type DebateStatus string

const (
	DebateStatusComplete DebateStatus = "complete"
	DebateStatusError    DebateStatus = "error"
)

// Debate is a complete debate with its transcript, used for playback and
// export.
type Debate struct {
	ID          string            `json:"id"`
	Topic       string            `json:"topic"`
	Panelists   []Panelist        `json:"panelists"`
	Transcript  []TranscriptEntry `json:"messages"`
	Status      DebateStatus      `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	CompletedAt time.Time         `json:"completedAt,omitempty"`
}

// Summary returns the history view of the debate.
func (d *Debate) Summary() HistoricalDebate {
	return HistoricalDebate{
		ID:        d.ID,
		Topic:     d.Topic,
		Panelists: d.Panelists,
		CreatedAt: d.CreatedAt,
	}
}

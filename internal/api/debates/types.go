package debates

import (
	"encoding/json"
	"io"
	"sort"
	"time"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
)

// DebateIDHeader carries the persisted debate identifier on a generation
// response.
const DebateIDHeader = "X-Debate-Id"

// GenerateRequest is the body of a generation request.
type GenerateRequest struct {
	Topic             string            `json:"topic"`
	SelectedPanelists []domain.Panelist `json:"selectedPanelists"`
}

// StreamResponse is an open generation stream. The caller must close Body.
type StreamResponse struct {
	Body       io.ReadCloser
	DebateID   string
	StatusCode int
}

// ErrorResponse is the JSON error body returned by the backend functions.
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	RetryAfter *int   `json:"retryAfter,omitempty"`
}

// ParseErrorResponse parses an error body. It returns nil when the body is
// not a recognisable error response.
func ParseErrorResponse(body []byte) (*ErrorResponse, error) {
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.Error == "" {
		return nil, nil
	}
	return &resp, nil
}

// ListDebatesResponse is one page of debate history.
type ListDebatesResponse struct {
	Debates []domain.HistoricalDebate `json:"debates"`
	Total   int                       `json:"total"`
	HasMore bool                      `json:"hasMore"`
}

// DebateTopic is the stored topic of a debate document.
type DebateTopic struct {
	Text string `json:"text"`
}

// DebatePanelist is a panelist as stored in a debate document. The stored
// form names the biography field differently from the request form.
type DebatePanelist struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Tagline   string `json:"tagline,omitempty"`
	Biography string `json:"biography,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Position  string `json:"position,omitempty"`
}

// DebateMessage is one stored transcript message.
type DebateMessage struct {
	PanelistID string `json:"panelistId"`
	Text       string `json:"text"`
	Sequence   int    `json:"sequence"`
}

// DebateDocument is the body returned by the get-debate endpoint.
type DebateDocument struct {
	ID          string           `json:"id"`
	Topic       DebateTopic      `json:"topic"`
	Panelists   []DebatePanelist `json:"panelists"`
	Messages    []DebateMessage  `json:"messages"`
	Status      string           `json:"status"`
	StartedAt   time.Time        `json:"startedAt"`
	CompletedAt time.Time        `json:"completedAt"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// ToDomain converts a stored document into a domain debate. Messages are
// ordered by their sequence number.
func (d *DebateDocument) ToDomain() *domain.Debate {
	out := &domain.Debate{
		ID:          d.ID,
		Topic:       d.Topic.Text,
		Status:      domain.DebateStatus(d.Status),
		CreatedAt:   d.CreatedAt,
		CompletedAt: d.CompletedAt,
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = d.StartedAt
	}
	for _, p := range d.Panelists {
		out.Panelists = append(out.Panelists, domain.Panelist{
			ID:        p.ID,
			Name:      p.Name,
			Tagline:   p.Tagline,
			Bio:       p.Biography,
			AvatarURL: p.AvatarURL,
			Position:  p.Position,
		})
	}

	msgs := make([]DebateMessage, len(d.Messages))
	copy(msgs, d.Messages)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Sequence < msgs[j].Sequence
	})
	for i, m := range msgs {
		out.Transcript = append(out.Transcript, domain.TranscriptEntry{
			Ordinal:   i,
			SpeakerID: m.PanelistID,
			Text:      m.Text,
		})
	}
	return out
}

// DocumentFromDomain converts a domain debate into the stored document form.
func DocumentFromDomain(d *domain.Debate) *DebateDocument {
	doc := &DebateDocument{
		ID:          d.ID,
		Topic:       DebateTopic{Text: d.Topic},
		Status:      string(d.Status),
		StartedAt:   d.CreatedAt,
		CompletedAt: d.CompletedAt,
		CreatedAt:   d.CreatedAt,
	}
	for _, p := range d.Panelists {
		doc.Panelists = append(doc.Panelists, DebatePanelist{
			ID:        p.ID,
			Name:      p.Name,
			Tagline:   p.Tagline,
			Biography: p.Bio,
			AvatarURL: p.AvatarURL,
			Position:  p.Position,
		})
	}
	for _, e := range d.Transcript {
		doc.Messages = append(doc.Messages, DebateMessage{
			PanelistID: e.SpeakerID,
			Text:       e.Text,
			Sequence:   e.Ordinal,
		})
	}
	return doc
}

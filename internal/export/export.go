// Package export renders an archived debate for sharing.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
	"github.com/tjfontaine/polyglot-debate/internal/transcript"
)

// Document is the JSON export shape.
type Document struct {
	ID         string            `json:"id"`
	Topic      string            `json:"topic"`
	Panelists  []domain.Panelist `json:"panelists"`
	Messages   []Message         `json:"messages"`
	Stats      transcript.Stats  `json:"stats"`
	CreatedAt  time.Time         `json:"createdAt"`
	ExportedAt time.Time         `json:"exportedAt"`
}

// Message is one attributed transcript entry.
type Message struct {
	Sequence   int    `json:"sequence"`
	PanelistID string `json:"panelistId"`
	Speaker    string `json:"speaker"`
	Text       string `json:"text"`
}

// Build attributes every entry and computes stats for d.
func Build(d *domain.Debate) (*Document, error) {
	stats, err := transcript.ComputeStats(d.Transcript, d.Panelists)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}

	idx := domain.NewPanelistIndex(d.Panelists)
	doc := &Document{
		ID:         d.ID,
		Topic:      d.Topic,
		Panelists:  d.Panelists,
		Messages:   make([]Message, 0, len(d.Transcript)),
		Stats:      stats,
		CreatedAt:  d.CreatedAt,
		ExportedAt: time.Now().UTC(),
	}
	for i, e := range d.Transcript {
		doc.Messages = append(doc.Messages, Message{
			Sequence:   i,
			PanelistID: e.SpeakerID,
			Speaker:    idx.DisplayName(e.SpeakerID),
			Text:       e.Text,
		})
	}
	return doc, nil
}

// JSON writes d as an indented JSON document.
func JSON(w io.Writer, d *domain.Debate) error {
	doc, err := Build(d)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

// Markdown writes d as a Markdown document.
func Markdown(w io.Writer, d *domain.Debate) error {
	doc, err := Build(d)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.Topic)
	if !doc.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "_Debated %s_\n\n", doc.CreatedAt.UTC().Format("January 2, 2006 15:04 MST"))
	}

	b.WriteString("## Panelists\n\n")
	for _, p := range doc.Panelists {
		if p.Tagline != "" {
			fmt.Fprintf(&b, "- **%s**: %s\n", p.Name, p.Tagline)
		} else {
			fmt.Fprintf(&b, "- **%s**\n", p.Name)
		}
	}

	b.WriteString("\n## Transcript\n\n")
	for _, m := range doc.Messages {
		fmt.Fprintf(&b, "**%s:** %s\n\n", m.Speaker, m.Text)
	}

	b.WriteString("## Statistics\n\n")
	b.WriteString("| Speaker | Turns | Words | Tokens |\n")
	b.WriteString("|---|---:|---:|---:|\n")
	for _, s := range doc.Stats.Speakers {
		fmt.Fprintf(&b, "| %s | %d | %d | %d |\n", s.Name, s.Turns, s.Words, s.Tokens)
	}
	fmt.Fprintf(&b, "| **Total** | %d | %d | %d |\n", doc.Stats.Entries, doc.Stats.Words, doc.Stats.Tokens)

	_, err = io.WriteString(w, b.String())
	return err
}

package main

import (
	"fmt"
	"io"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
)

// livePrinter writes transcript growth to w as it streams. Each new entry
// starts with a speaker heading; continuations print only the added text.
type livePrinter struct {
	w       io.Writer
	idx     *domain.PanelistIndex
	entries int
	printed int
}

func newLivePrinter(w io.Writer, panelists []domain.Panelist) *livePrinter {
	return &livePrinter{w: w, idx: domain.NewPanelistIndex(panelists)}
}

func (p *livePrinter) update(transcript []domain.TranscriptEntry) {
	for {
		if p.entries > 0 {
			if text := transcript[p.entries-1].Text; p.printed < len(text) {
				fmt.Fprint(p.w, text[p.printed:])
				p.printed = len(text)
			}
		}
		if p.entries >= len(transcript) {
			return
		}
		if p.entries > 0 {
			fmt.Fprint(p.w, "\n\n")
		}
		fmt.Fprintf(p.w, "%s:\n", p.idx.DisplayName(transcript[p.entries].SpeakerID))
		p.entries++
		p.printed = 0
	}
}

func (p *livePrinter) finish() {
	if p.entries > 0 {
		fmt.Fprintln(p.w)
	}
}

// printTranscript writes a finished transcript in the live format.
func printTranscript(w io.Writer, d *domain.Debate) {
	fmt.Fprintf(w, "%s\n\n", d.Topic)
	p := newLivePrinter(w, d.Panelists)
	p.update(d.Transcript)
	p.finish()
}

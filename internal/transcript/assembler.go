// Package transcript folds message events into an ordered, speaker-attributed
// transcript.
//
// Consecutive messages from the same speaker are a continuation of one
// utterance and are joined by direct concatenation with no separator. The
// backend is expected to carry any whitespace it wants inside the fragments,
// so "Duty " followed by "matters." yields "Duty matters.".
package transcript

import (
	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
)

// Join combines the text of an entry with a continuation fragment.
func Join(existing, fragment string) string {
	return existing + fragment
}

// Change describes the effect of applying one message event.
type Change struct {
	// Entry is the new or updated entry after the event was applied.
	Entry domain.TranscriptEntry

	// Appended is true when the event started a new entry and false when it
	// continued the newest one.
	Appended bool
}

// Fold applies a message event to entries and returns the updated slice. Only
// the newest entry may change; earlier entries are never touched. The entries
// visible through the argument are never modified.
func Fold(entries []domain.TranscriptEntry, speakerID, text string) ([]domain.TranscriptEntry, Change) {
	if n := len(entries); n > 0 && entries[n-1].SpeakerID == speakerID {
		last := entries[n-1]
		last.Text = Join(last.Text, text)
		// Full slice expression forces a new backing array.
		return append(entries[:n-1:n-1], last), Change{Entry: last}
	}

	entry := domain.TranscriptEntry{
		Ordinal:   len(entries),
		SpeakerID: speakerID,
		Text:      text,
	}
	return append(entries, entry), Change{Entry: entry, Appended: true}
}

// Assembler accumulates a transcript and tracks the speaker currently
// responding. It is not safe for concurrent use; the owning session
// serialises access.
type Assembler struct {
	entries []domain.TranscriptEntry
	speaker string
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Apply folds a message event into the transcript. Events of any other type
// are ignored and reported with ok=false.
func (a *Assembler) Apply(ev domain.StreamEvent) (Change, bool) {
	if ev.Type != domain.EventTypeMessage {
		return Change{}, false
	}
	var c Change
	a.entries, c = Fold(a.entries, ev.SpeakerID, ev.Text)
	a.speaker = ev.SpeakerID
	return c, true
}

// Entries returns a copy of the transcript.
func (a *Assembler) Entries() []domain.TranscriptEntry {
	return domain.CloneTranscript(a.entries)
}

// Len returns the number of entries.
func (a *Assembler) Len() int {
	return len(a.entries)
}

// CurrentSpeaker returns the speaker of the most recent message, or "" once
// cleared.
func (a *Assembler) CurrentSpeaker() string {
	return a.speaker
}

// ClearSpeaker clears the current speaker marker.
func (a *Assembler) ClearSpeaker() {
	a.speaker = ""
}

// Reset empties the transcript and clears the speaker.
func (a *Assembler) Reset() {
	a.entries = nil
	a.speaker = ""
}

package domain

// TranscriptEntry is one speaker-attributed utterance in a debate transcript.
// Ordinal is the zero-based insertion position; there is no other ordering.
type TranscriptEntry struct {
	Ordinal   int    `json:"ordinal"`
	SpeakerID string `json:"panelistId"`
	Text      string `json:"text"`
}

// CloneTranscript returns a copy of entries that shares no backing array
// with the input.
func CloneTranscript(entries []TranscriptEntry) []TranscriptEntry {
	if entries == nil {
		return nil
	}
	out := make([]TranscriptEntry, len(entries))
	copy(out, entries)
	return out
}

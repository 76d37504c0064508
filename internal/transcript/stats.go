package transcript

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
)

// SpeakerStats summarises one speaker's contribution to a transcript.
type SpeakerStats struct {
	SpeakerID string `json:"panelistId"`
	Name      string `json:"name"`
	Turns     int    `json:"turns"`
	Words     int    `json:"words"`
	Tokens    int    `json:"tokens"`
}

// Stats summarises a transcript.
type Stats struct {
	Entries  int            `json:"entries"`
	Words    int            `json:"words"`
	Tokens   int            `json:"tokens"`
	Speakers []SpeakerStats `json:"speakers"`
}

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
		if codecErr != nil {
			codecErr = fmt.Errorf("failed to get tokenizer encoding: %w", codecErr)
		}
	})
	return codec, codecErr
}

// CountTokens estimates the token count of text with the cl100k_base encoding.
func CountTokens(text string) (int, error) {
	c, err := getCodec()
	if err != nil {
		return 0, err
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// ComputeStats returns per-speaker turn, word and token counts, ordered by
// first appearance in the transcript.
func ComputeStats(entries []domain.TranscriptEntry, panelists []domain.Panelist) (Stats, error) {
	idx := domain.NewPanelistIndex(panelists)
	bySpeaker := make(map[string]*SpeakerStats)
	first := make(map[string]int)

	var st Stats
	for i, e := range entries {
		tokens, err := CountTokens(e.Text)
		if err != nil {
			return Stats{}, err
		}
		words := len(strings.Fields(e.Text))

		s, ok := bySpeaker[e.SpeakerID]
		if !ok {
			s = &SpeakerStats{SpeakerID: e.SpeakerID, Name: idx.DisplayName(e.SpeakerID)}
			bySpeaker[e.SpeakerID] = s
			first[e.SpeakerID] = i
		}
		s.Turns++
		s.Words += words
		s.Tokens += tokens

		st.Entries++
		st.Words += words
		st.Tokens += tokens
	}

	for _, s := range bySpeaker {
		st.Speakers = append(st.Speakers, *s)
	}
	sort.Slice(st.Speakers, func(i, j int) bool {
		return first[st.Speakers[i].SpeakerID] < first[st.Speakers[j].SpeakerID]
	})
	return st, nil
}

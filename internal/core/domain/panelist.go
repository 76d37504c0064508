package domain

// ModeratorID is the reserved speaker identifier used by the backend for the
// neutral moderator that opens and closes every debate.
const ModeratorID = "moderator"

// Panelist represents a debate participant.
type Panelist struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Tagline   string `json:"tagline,omitempty"`
	Bio       string `json:"bio,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Position  string `json:"position,omitempty"`
}

// Moderator is the statically known panelist behind ModeratorID. It is never
// part of a user's selection and never sent to the backend.
var Moderator = Panelist{
	ID:        ModeratorID,
	Name:      "Moderator",
	Tagline:   "Neutral Debate Facilitator",
	Bio:       "A neutral moderator who guides the debate and ensures all perspectives are heard.",
	AvatarURL: "/avatars/moderator-avatar.png",
}

// IsModerator reports whether id is the reserved moderator identifier.
func IsModerator(id string) bool {
	return id == ModeratorID
}

// PanelistIndex resolves speaker identifiers to panelists. The moderator is
// resolved from the reserved value rather than stored in the index.
type PanelistIndex struct {
	byID map[string]Panelist
}

// NewPanelistIndex builds an index over the given panelists. Later duplicates
// of an identifier are ignored.
func NewPanelistIndex(panelists []Panelist) *PanelistIndex {
	idx := &PanelistIndex{byID: make(map[string]Panelist, len(panelists))}
	for _, p := range panelists {
		if _, exists := idx.byID[p.ID]; exists {
			continue
		}
		idx.byID[p.ID] = p
	}
	return idx
}

// Lookup returns the panelist for id.
func (idx *PanelistIndex) Lookup(id string) (Panelist, bool) {
	if p, ok := idx.byID[id]; ok {
		return p, true
	}
	if IsModerator(id) {
		return Moderator, true
	}
	return Panelist{}, false
}

// DisplayName returns the panelist's name, or the raw identifier when the
// speaker is unknown.
func (idx *PanelistIndex) DisplayName(id string) string {
	if p, ok := idx.Lookup(id); ok && p.Name != "" {
		return p.Name
	}
	return id
}

// PanelistIDs returns the identifiers of the given panelists in order.
func PanelistIDs(panelists []Panelist) []string {
	ids := make([]string, len(panelists))
	for i, p := range panelists {
		ids[i] = p.ID
	}
	return ids
}

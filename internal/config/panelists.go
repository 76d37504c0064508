package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
)

// LoadPanelists reads a panel selection from a YAML file of the form
//
//	topic: Is free will an illusion?
//	panelists:
//	  - id: kant
//	    name: Immanuel Kant
//	    tagline: Critique of Pure Reason
//
// Field names follow the request payload.
func LoadPanelists(path string) (topic string, panelists []domain.Panelist, err error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return "", nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	if err := k.UnmarshalWithConf("panelists", &panelists, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return "", nil, fmt.Errorf("failed to decode panelists: %w", err)
	}
	if err := ValidatePanelists(panelists); err != nil {
		return "", nil, err
	}
	return k.String("topic"), panelists, nil
}

// ValidatePanelists rejects selections the backend would refuse: empty or
// duplicate identifiers and the reserved moderator.
func ValidatePanelists(panelists []domain.Panelist) error {
	if len(panelists) == 0 {
		return fmt.Errorf("at least one panelist is required")
	}
	seen := make(map[string]bool, len(panelists))
	for _, p := range panelists {
		switch {
		case strings.TrimSpace(p.ID) == "":
			return fmt.Errorf("panelist %q has no id", p.Name)
		case domain.IsModerator(p.ID):
			return fmt.Errorf("%q is reserved for the moderator", p.ID)
		case seen[p.ID]:
			return fmt.Errorf("duplicate panelist %q", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// ParsePanelist parses an "id=Display Name" flag value. The name defaults to
// the id.
func ParsePanelist(s string) (domain.Panelist, error) {
	id, name, _ := strings.Cut(s, "=")
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return domain.Panelist{}, fmt.Errorf("invalid panelist %q: want id=Name", s)
	}
	if name == "" {
		name = id
	}
	return domain.Panelist{ID: id, Name: name}, nil
}

package ledger

import (
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var defaultPresetsYAML []byte

type presetFile struct {
	Quests []QuestPreset `yaml:"quests"`
}

// DefaultPresets returns the built-in quest catalogue.
func DefaultPresets() []QuestPreset {
	quests, err := ParsePresets(defaultPresetsYAML)
	if err != nil {
		panic(fmt.Sprintf("ledger: invalid embedded presets: %v", err))
	}
	return quests
}

// LoadPresets reads a YAML quest catalogue.
func LoadPresets(r io.Reader) ([]QuestPreset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	return ParsePresets(data)
}

// ParsePresets decodes and validates a YAML quest catalogue.
func ParsePresets(data []byte) ([]QuestPreset, error) {
	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}

	seen := make(map[string]bool, len(f.Quests))
	for i := range f.Quests {
		if err := f.Quests[i].Validate(); err != nil {
			return nil, fmt.Errorf("quest %d (%q): %w", i, f.Quests[i].Title, err)
		}
		key := NameKey(f.Quests[i].Title)
		if seen[key] {
			return nil, fmt.Errorf("quest %q listed twice", f.Quests[i].Title)
		}
		seen[key] = true
	}
	return f.Quests, nil
}

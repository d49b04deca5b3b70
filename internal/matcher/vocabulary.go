package matcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Vocabulary is an ordered list of lowercase drug stems. Order only affects
// the order of the diagnostic tallies.
type Vocabulary []string

// DefaultVocabulary lists generic and brand names of oral and parenteral
// anticoagulants. "dibigatran" is spelled as in the study vocabulary;
// dabigatran is still caught through its brand name.
var DefaultVocabulary = Vocabulary{
	"heparin", "warfarin", "dibigatran", "rivaroxaban", "apixaban", "edoxaban", "betrixaban",
	"pradaxa", "xarelto", "eliquis", "savaysa", "bevyxxa",
}

// NewVocabulary lowercases and trims stems, dropping duplicates while
// keeping first-seen order.
func NewVocabulary(stems []string) (Vocabulary, error) {
	seen := make(map[string]bool, len(stems))
	v := make(Vocabulary, 0, len(stems))
	for _, s := range stems {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return nil, fmt.Errorf("empty stem in vocabulary")
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		v = append(v, s)
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("vocabulary is empty")
	}
	return v, nil
}

// LoadVocabulary reads a list of stems from a JSON array (.json) or a YAML
// sequence (.yaml, .yml).
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary file: %w", err)
	}

	var stems []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &stems)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &stems)
	default:
		return nil, fmt.Errorf("unsupported vocabulary file %q (want .json, .yaml or .yml)", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse vocabulary file: %w", err)
	}

	return NewVocabulary(stems)
}

// Stems returns the stems contained in label, compared case-insensitively.
// Overlapping stems all match.
func (v Vocabulary) Stems(label string) []string {
	lower := strings.ToLower(label)
	var hits []string
	for _, stem := range v {
		if strings.Contains(lower, stem) {
			hits = append(hits, stem)
		}
	}
	return hits
}

// Matches reports whether label contains at least one stem.
func (v Vocabulary) Matches(label string) bool {
	lower := strings.ToLower(label)
	for _, stem := range v {
		if strings.Contains(lower, stem) {
			return true
		}
	}
	return false
}

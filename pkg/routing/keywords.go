package routing

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeywordSet holds the lower-case keywords of the default policy's rules.
type KeywordSet struct {
	Write    []string `yaml:"write" json:"write"`
	Fresh    []string `yaml:"fresh" json:"fresh"`
	Analysis []string `yaml:"analysis" json:"analysis"`
}

// DefaultKeywords returns the built-in German and English keywords.
func DefaultKeywords() KeywordSet {
	return KeywordSet{
		Write: []string{
			"create", "delete", "update", "remove", "reset password", "assign",
			"erstelle", "lösche", "loesche", "ändere", "aendere", "aktualisiere", "entferne",
			"anlegen", "hinzufügen", "zuweisen",
		},
		Fresh: []string{
			"aktuell", "current", "latest", "live", "real-time", "realtime", "right now",
			"neueste", "gerade", "echtzeit", "up to date", "up-to-date",
		},
		Analysis: []string{
			"analysiere", "analyse", "analyze", "analysis", "finde", "find", "pattern", "muster",
			"duplikat", "duplicate", "statistik", "statistic", "trend", "vergleiche", "compare",
			"beziehung", "relationship", "zusammenhang", "korrelation", "correlation",
		},
	}
}

// LoadKeywords reads a YAML keyword file. Lists missing from the file keep their
// defaults; unknown keys are rejected.
func LoadKeywords(path string) (KeywordSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeywordSet{}, fmt.Errorf("failed to read keywords file: %w", err)
	}
	return ParseKeywords(data)
}

// ParseKeywords decodes a YAML keyword document.
func ParseKeywords(data []byte) (KeywordSet, error) {
	var file KeywordSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return KeywordSet{}, fmt.Errorf("failed to parse keywords: %w", err)
	}

	set := DefaultKeywords()
	if file.Write != nil {
		set.Write = file.Write
	}
	if file.Fresh != nil {
		set.Fresh = file.Fresh
	}
	if file.Analysis != nil {
		set.Analysis = file.Analysis
	}

	set = set.normalized()
	if err := set.Validate(); err != nil {
		return KeywordSet{}, err
	}
	return set, nil
}

// Validate requires at least one write keyword.
func (k KeywordSet) Validate() error {
	if len(k.Write) == 0 {
		return fmt.Errorf("keyword set has no write keywords")
	}
	return nil
}

func (k KeywordSet) normalized() KeywordSet {
	return KeywordSet{
		Write:    normalize(k.Write),
		Fresh:    normalize(k.Fresh),
		Analysis: normalize(k.Analysis),
	}
}

func normalize(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// matchKeyword returns the first keyword contained in lowered text.
func matchKeyword(lowered string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return kw, true
		}
	}
	return "", false
}

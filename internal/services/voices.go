package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Voice catalog
// Loaded from a YAML file so editors can regroup voices without a deploy.
// Separator entries ("--- Polski ---") are kept in order for UI grouping
// but must never be sent to a TTS provider.
// ---------------------------------------------------------------------------

type Voice struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	Language  string `yaml:"language,omitempty" json:"language,omitempty"`
	Separator bool   `yaml:"separator,omitempty" json:"separator,omitempty"`
}

// IsSeparator reports whether the entry is a non-selectable group header.
func (v Voice) IsSeparator() bool {
	return v.Separator || strings.HasPrefix(strings.TrimSpace(v.Name), "---")
}

type VoiceCatalog struct {
	Providers map[string][]Voice `yaml:"providers"`
}

// LoadVoiceCatalog reads the YAML catalog. A missing file yields the
// built-in defaults rather than an error.
func LoadVoiceCatalog(path string) (*VoiceCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultVoiceCatalog(), nil
		}
		return nil, fmt.Errorf("read voice catalog: %w", err)
	}
	var c VoiceCatalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse voice catalog: %w", err)
	}
	if c.Providers == nil {
		c.Providers = map[string][]Voice{}
	}
	return &c, nil
}

// DefaultVoiceCatalog covers the bundled providers when no catalog file is
// deployed.
func DefaultVoiceCatalog() *VoiceCatalog {
	return &VoiceCatalog{
		Providers: map[string][]Voice{
			"elevenlabs": {
				{Name: "--- Polski ---", Separator: true},
				{ID: "pNInz6obpgDQGcFmaJgB", Name: "Adam", Language: "pl"},
				{Name: "--- English ---", Separator: true},
				{ID: "21m00Tcm4TlvDq8ikWAM", Name: "Rachel", Language: "en"},
			},
			"openai": {
				{ID: "alloy", Name: "Alloy"},
				{ID: "nova", Name: "Nova"},
				{ID: "onyx", Name: "Onyx"},
			},
		},
	}
}

// List returns the ordered voice entries for a provider, separators
// included.
func (c *VoiceCatalog) List(provider string) []Voice {
	return c.Providers[strings.ToLower(provider)]
}

// Selectable returns only the voices that can be passed to a provider.
func (c *VoiceCatalog) Selectable(provider string) []Voice {
	var out []Voice
	for _, v := range c.List(provider) {
		if !v.IsSeparator() {
			out = append(out, v)
		}
	}
	return out
}

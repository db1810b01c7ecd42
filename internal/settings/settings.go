package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Settings is relay's persisted user state. Chains maps a chain identity
// (ordered agent names joined with "->") to per-agent saved prompt
// templates for that chain.
type Settings struct {
	Chains map[string]map[string]string `json:"chains,omitempty"`
}

// Load reads settings from path. A missing or unreadable file is never an
// error: template editing must work on a fresh install, so any load
// failure yields empty settings.
func Load(path string) *Settings {
	s := &Settings{}
	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	if err := json.Unmarshal(data, s); err != nil {
		return &Settings{}
	}
	return s
}

// SaveChain records templates for one chain identity and rewrites the
// settings file. Empty templates are dropped; saving an all-empty map
// removes the chain entry entirely.
func (s *Settings) SaveChain(path, chainID string, templates map[string]string) error {
	clean := make(map[string]string, len(templates))
	for name, t := range templates {
		if t != "" {
			clean[name] = t
		}
	}

	if len(clean) == 0 {
		delete(s.Chains, chainID)
	} else {
		if s.Chains == nil {
			s.Chains = make(map[string]map[string]string)
		}
		s.Chains[chainID] = clean
	}

	return s.write(path)
}

func (s *Settings) write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

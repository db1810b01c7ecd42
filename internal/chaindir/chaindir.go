package chaindir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service manages per-run handoff directories. Each run gets one
// directory where agents exchange files (plans, outputs, the shared
// progress log). Directories are disposable: removal is best-effort and
// aged ones are garbage collected.
type Service struct {
	base string
}

func New(base string) *Service {
	return &Service{base: base}
}

// Metadata mirrors the run a chain directory belongs to. Written as
// chain.json so agents invoked inside the directory can orient
// themselves. Position and Agent are updated as the chain advances.
type Metadata struct {
	RunID    int64    `json:"run_id"`
	Task     string   `json:"task"`
	Chain    string   `json:"chain"`
	Agents   []string `json:"agents"`
	Position int      `json:"position"`
	Agent    string   `json:"agent"`
}

// Create makes the handoff directory for a run. The name embeds the run's
// database id plus a random token, so directories never collide even
// across database resets.
func (s *Service) Create(runID int64) (string, error) {
	path := filepath.Join(s.base, fmt.Sprintf("chain-%d-%s", runID, uuid.NewString()[:8]))

	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create chain directory: %w", err)
	}

	return path, nil
}

func (s *Service) WriteMetadata(dir string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chain metadata: %w", err)
	}

	path := filepath.Join(dir, "chain.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write chain.json: %w", err)
	}

	return nil
}

// Remove deletes a chain directory. Callers treat a failure as cosmetic;
// CleanupAged catches leftovers later.
func (s *Service) Remove(dir string) error {
	return os.RemoveAll(dir)
}

// CleanupAged removes chain directories untouched for longer than maxAge.
// Per-entry failures are skipped so one stubborn directory never blocks
// the sweep. Returns the number removed.
func (s *Service) CleanupAged(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.base)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read chains dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "chain-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.base, e.Name())); err != nil {
			continue
		}
		removed++
	}

	return removed, nil
}

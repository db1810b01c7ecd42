package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsEmpty(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "settings.json"))
	if s == nil {
		t.Fatal("Load returned nil")
	}
	if len(s.Chains) != 0 {
		t.Errorf("Chains = %v, want empty", s.Chains)
	}
}

func TestLoadCorruptFileYieldsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	s := Load(path)
	if len(s.Chains) != 0 {
		t.Errorf("Chains = %v, want empty after corrupt load", s.Chains)
	}
}

func TestSaveChainRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	s := Load(path)
	err := s.SaveChain(path, "planner->coder", map[string]string{
		"planner": "Plan this: {task}",
		"coder":   "{previous}",
	})
	if err != nil {
		t.Fatalf("SaveChain returned error: %v", err)
	}

	got := Load(path)
	if got.Chains["planner->coder"]["planner"] != "Plan this: {task}" {
		t.Errorf("planner template = %q, want saved value", got.Chains["planner->coder"]["planner"])
	}
	if got.Chains["planner->coder"]["coder"] != "{previous}" {
		t.Errorf("coder template = %q, want saved value", got.Chains["planner->coder"]["coder"])
	}
}

func TestSaveChainDropsEmptyTemplates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	s := Load(path)
	if err := s.SaveChain(path, "a->b", map[string]string{"a": "X", "b": ""}); err != nil {
		t.Fatalf("SaveChain returned error: %v", err)
	}

	got := Load(path)
	if _, ok := got.Chains["a->b"]["b"]; ok {
		t.Error("empty template should not be persisted")
	}
	if got.Chains["a->b"]["a"] != "X" {
		t.Errorf("a template = %q, want %q", got.Chains["a->b"]["a"], "X")
	}
}

func TestSaveChainAllEmptyRemovesEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	s := Load(path)
	if err := s.SaveChain(path, "a->b", map[string]string{"a": "X"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveChain(path, "a->b", map[string]string{"a": ""}); err != nil {
		t.Fatal(err)
	}

	got := Load(path)
	if _, ok := got.Chains["a->b"]; ok {
		t.Error("chain entry should be removed when all templates are empty")
	}
}

func TestSaveChainPreservesOtherChains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	s := Load(path)
	if err := s.SaveChain(path, "a->b", map[string]string{"a": "one"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveChain(path, "b->a", map[string]string{"b": "two"}); err != nil {
		t.Fatal(err)
	}

	got := Load(path)
	if got.Chains["a->b"]["a"] != "one" || got.Chains["b->a"]["b"] != "two" {
		t.Errorf("Chains = %v, want both chains kept", got.Chains)
	}
}

package behavior

import (
	"strings"
	"testing"
)

func TestInstructionsEmptyWhenNothingActive(t *testing.T) {
	if got := Instructions(Resolved{}, "/tmp/chain", true); got != "" {
		t.Errorf("Instructions = %q, want empty string", got)
	}
}

func TestInstructionsOneBulletPerField(t *testing.T) {
	r := Resolved{
		Output:   "review.md",
		Reads:    []string{"plan.md", "research.md"},
		Progress: true,
	}

	got := Instructions(r, "/tmp/chain", false)
	lines := strings.Split(got, "\n")

	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), got)
	}
	for i, line := range lines {
		if !strings.HasPrefix(line, "- ") {
			t.Errorf("line %d = %q, want bullet prefix", i, line)
		}
	}
}

func TestInstructionsReadsJoinUnderChainDir(t *testing.T) {
	r := Resolved{Reads: []string{"plan.md", "notes.md"}}
	got := Instructions(r, "/tmp/chain", false)

	if !strings.Contains(got, "/tmp/chain/plan.md") || !strings.Contains(got, "/tmp/chain/notes.md") {
		t.Errorf("reads bullet missing chain-dir paths:\n%s", got)
	}
}

func TestInstructionsOutputPath(t *testing.T) {
	r := Resolved{Output: "out.md"}
	got := Instructions(r, "/tmp/chain", false)

	if !strings.Contains(got, "/tmp/chain/out.md") {
		t.Errorf("output bullet missing target path:\n%s", got)
	}
}

func TestInstructionsProgressWording(t *testing.T) {
	r := Resolved{Progress: true}

	first := Instructions(r, "/tmp/chain", true)
	if !strings.Contains(first, "Create and maintain /tmp/chain/PROGRESS.md") {
		t.Errorf("first progress step should create the log:\n%s", first)
	}

	later := Instructions(r, "/tmp/chain", false)
	if !strings.Contains(later, "update it") {
		t.Errorf("later progress steps should update the log:\n%s", later)
	}
	if strings.Contains(later, "Create and maintain") {
		t.Errorf("later progress steps must not use create wording:\n%s", later)
	}
}

package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mpataki/relay/internal/agent"
	"github.com/mpataki/relay/internal/behavior"
	"github.com/mpataki/relay/internal/settings"
)

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func press(t *testing.T, c *Clarify, msgs ...tea.Msg) *Clarify {
	t.Helper()
	var m tea.Model = c
	for _, msg := range msgs {
		m, _ = m.Update(msg)
	}
	out, ok := m.(*Clarify)
	if !ok {
		t.Fatalf("Update returned %T, want *Clarify", m)
	}
	return out
}

func testSteps(templates ...string) []ClarifyStep {
	steps := make([]ClarifyStep, len(templates))
	for i, tmpl := range templates {
		name := fmt.Sprintf("agent%d", i)
		steps[i] = ClarifyStep{Agent: name, Title: name, Template: tmpl}
	}
	return steps
}

func TestClarifyEditThenConfirm(t *testing.T) {
	c := NewClarify("a->b->c", "the task", testSteps("A", "B", "C"), nil, "", nil)

	c = press(t, c,
		key(tea.KeyDown),
		runeKey('e'),
		runeKey('X'),
		key(tea.KeyEsc),
		key(tea.KeyEnter),
	)

	if !c.Confirmed() {
		t.Error("Confirmed() = false, want true")
	}
	want := []string{"A", "BX", "C"}
	if !reflect.DeepEqual(c.Templates(), want) {
		t.Errorf("Templates() = %v, want %v", c.Templates(), want)
	}
}

func TestClarifyCancelStillYieldsTemplates(t *testing.T) {
	c := NewClarify("a->b", "t", testSteps("A", "B"), nil, "", nil)

	c = press(t, c, runeKey('q'))

	if c.Confirmed() {
		t.Error("Confirmed() = true, want false after cancel")
	}
	want := []string{"A", "B"}
	if !reflect.DeepEqual(c.Templates(), want) {
		t.Errorf("Templates() = %v, want %v", c.Templates(), want)
	}
}

func TestClarifyCommittedEditSurvivesCancel(t *testing.T) {
	c := NewClarify("a->b", "t", testSteps("A", "B"), nil, "", nil)

	c = press(t, c,
		runeKey('e'),
		runeKey('!'),
		key(tea.KeyEsc),
		key(tea.KeyEsc),
	)

	if c.Confirmed() {
		t.Error("Confirmed() = true, want false")
	}
	if got := c.Templates()[0]; got != "A!" {
		t.Errorf("Templates()[0] = %q, want %q (edits commit on leaving the editor)", got, "A!")
	}
}

func TestClarifyEditingSwallowsGlobalKeys(t *testing.T) {
	c := NewClarify("a->b", "t", testSteps("A", "B"), nil, "", nil)

	c = press(t, c, runeKey('e'))
	if c.mode != modeEditing {
		t.Fatal("mode should be editing after e")
	}

	// q and e must insert text, and arrow keys must move the cursor,
	// not the selection.
	c = press(t, c, runeKey('q'), runeKey('e'), key(tea.KeyDown), key(tea.KeyUp))

	if c.mode != modeEditing {
		t.Error("navigation keys must not leave edit mode")
	}
	if c.selected != 0 {
		t.Errorf("selected = %d, want 0 (selection frozen while editing)", c.selected)
	}

	c = press(t, c, key(tea.KeyEsc))
	if got := c.Templates()[0]; got != "Aqe" {
		t.Errorf("Templates()[0] = %q, want %q", got, "Aqe")
	}
}

func TestClarifyCtrlCSwallowedWhileEditing(t *testing.T) {
	c := NewClarify("a", "t", testSteps("A"), nil, "", nil)

	c = press(t, c, runeKey('e'), key(tea.KeyCtrlC))

	if c.mode != modeEditing {
		t.Error("ctrl+c must not leave edit mode")
	}
	if c.Confirmed() {
		t.Error("ctrl+c while editing must not resolve the session")
	}
}

func TestClarifySelectionClamps(t *testing.T) {
	c := NewClarify("a->b->c", "t", testSteps("A", "B", "C"), nil, "", nil)

	c = press(t, c, key(tea.KeyUp))
	if c.selected != 0 {
		t.Errorf("selected = %d, want 0 (clamped at top)", c.selected)
	}

	c = press(t, c, key(tea.KeyDown), key(tea.KeyDown), key(tea.KeyDown), key(tea.KeyDown))
	if c.selected != 2 {
		t.Errorf("selected = %d, want 2 (clamped at bottom)", c.selected)
	}
}

func TestClarifyEditOpensSelectedTemplate(t *testing.T) {
	c := NewClarify("a->b", "t", testSteps("first", "second\nline"), nil, "", nil)

	c = press(t, c, key(tea.KeyDown), runeKey('e'))

	if got := c.buffer.String(); got != "second\nline" {
		t.Errorf("buffer = %q, want selected step's template", got)
	}
	line, col := c.buffer.Cursor()
	if line != 1 || col != 4 {
		t.Errorf("cursor = (%d, %d), want end of last line (1, 4)", line, col)
	}
}

func TestClarifySpaceAndEnterWhileEditing(t *testing.T) {
	c := NewClarify("a", "t", testSteps("A"), nil, "", nil)

	c = press(t, c,
		runeKey('e'),
		key(tea.KeySpace),
		runeKey('B'),
		key(tea.KeyEnter),
		runeKey('C'),
		key(tea.KeyEsc),
	)

	if got := c.Templates()[0]; got != "A B\nC" {
		t.Errorf("Templates()[0] = %q, want %q", got, "A B\nC")
	}
}

func TestClarifyEmptyChain(t *testing.T) {
	c := NewClarify("", "t", nil, nil, "", nil)

	c = press(t, c, key(tea.KeyDown), runeKey('e'), key(tea.KeyEnter))

	if !c.Confirmed() {
		t.Error("empty chain should still confirm")
	}
	if len(c.Templates()) != 0 {
		t.Errorf("Templates() = %v, want empty", c.Templates())
	}
}

func TestClarifyConfirmSavesEditedChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store := settings.Load(path)

	c := NewClarify("a->b", "t", testSteps("A", "B"), store, path, nil)
	press(t, c, runeKey('e'), runeKey('X'), key(tea.KeyEsc), key(tea.KeyEnter))

	got := settings.Load(path)
	if got.Chains["a->b"]["agent0"] != "AX" {
		t.Errorf("saved chains = %v, want agent0 -> AX under a->b", got.Chains)
	}
}

func TestClarifyConfirmWithoutEditsSavesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store := settings.Load(path)

	c := NewClarify("a->b", "t", testSteps("A", "B"), store, path, nil)
	press(t, c, key(tea.KeyEnter))

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("settings file should not be written when nothing changed")
	}
}

func TestClarifyCancelSavesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store := settings.Load(path)

	c := NewClarify("a->b", "t", testSteps("A", "B"), store, path, nil)
	press(t, c, runeKey('e'), runeKey('X'), key(tea.KeyEsc), key(tea.KeyEsc))

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("settings file should not be written on cancel")
	}
}

func TestBuildSteps(t *testing.T) {
	defs := map[string]agent.Definition{
		"planner":  {Name: "planner", DisplayName: "Planner", Output: "plan.md"},
		"coder":    {Name: "coder", Reads: []string{"plan.md"}, Progress: true},
		"reviewer": {Name: "reviewer", Progress: true},
	}
	agents := []string{"planner", "coder", "reviewer"}
	ovs := []behavior.Override{
		{},
		{Template: "Implement: {task}"},
		{},
	}
	saved := map[string]map[string]string{
		"planner->coder->reviewer": {"reviewer": "Review {previous}"},
	}

	steps := BuildSteps(agents, defs, ovs, saved)

	if len(steps) != 3 {
		t.Fatalf("len(steps) = %d, want 3", len(steps))
	}

	if steps[0].Template != "{task}" {
		t.Errorf("step 0 template = %q, want positional default", steps[0].Template)
	}
	if steps[1].Template != "Implement: {task}" {
		t.Errorf("step 1 template = %q, want inline override", steps[1].Template)
	}
	if steps[2].Template != "Review {previous}" {
		t.Errorf("step 2 template = %q, want saved template", steps[2].Template)
	}

	if steps[0].Title != "Planner" {
		t.Errorf("step 0 title = %q, want display name", steps[0].Title)
	}
	if steps[0].Behavior.Output != "plan.md" {
		t.Errorf("step 0 output = %q, want plan.md", steps[0].Behavior.Output)
	}

	if steps[1].CreatesProgress != true {
		t.Error("step 1 should create the progress log")
	}
	if steps[2].CreatesProgress {
		t.Error("step 2 should update, not create, the progress log")
	}
}

func TestBuildStepsUnknownAgent(t *testing.T) {
	steps := BuildSteps([]string{"mystery"}, nil, nil, nil)

	if steps[0].Template != "{task}" {
		t.Errorf("template = %q, want positional default", steps[0].Template)
	}
	if steps[0].Behavior.Output != "" || steps[0].Behavior.Progress {
		t.Errorf("unknown agent behavior = %+v, want fully disabled", steps[0].Behavior)
	}
}

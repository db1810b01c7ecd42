package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/mpataki/relay/internal/agent"
	"github.com/mpataki/relay/internal/behavior"
	"github.com/mpataki/relay/internal/settings"
)

// ClarifyStep is one chain step as shown in the clarify view. Behavior
// is resolved before the view opens and stays read-only; only Template
// changes during the session.
type ClarifyStep struct {
	Agent           string
	Title           string
	Template        string
	Behavior        behavior.Resolved
	CreatesProgress bool
}

// BuildSteps resolves everything the clarify view needs up front: each
// step's effective template (inline override, then saved, then the
// positional default) and its effective file behavior.
func BuildSteps(agents []string, defs map[string]agent.Definition, ovs []behavior.Override, saved map[string]map[string]string) []ClarifyStep {
	inline := make([]string, len(agents))
	stepDefs := make([]agent.Definition, len(agents))
	for i, name := range agents {
		stepDefs[i] = agent.Lookup(defs, name)
		if i < len(ovs) {
			inline[i] = ovs[i].Template
		}
	}

	templates := behavior.ResolveChainTemplates(agents, inline, saved)
	firstProgress := behavior.FirstProgressIndex(stepDefs, ovs)

	steps := make([]ClarifyStep, len(agents))
	for i := range agents {
		var ov behavior.Override
		if i < len(ovs) {
			ov = ovs[i]
		}
		steps[i] = ClarifyStep{
			Agent:           agents[i],
			Title:           stepDefs[i].Title(),
			Template:        templates[i],
			Behavior:        behavior.ResolveStep(stepDefs[i], ov),
			CreatesProgress: i == firstProgress,
		}
	}
	return steps
}

type clarifyMode int

const (
	modeNavigating clarifyMode = iota
	modeEditing
)

// Clarify is the pre-run review: step through the chain's templates,
// edit any of them in place, then confirm to launch or cancel. While a
// template is being edited every key except esc belongs to the editor,
// and esc commits the buffer back into the step. Cancelling the whole
// session never discards committed edits.
type Clarify struct {
	chainID      string
	task         string
	steps        []ClarifyStep
	initial      []string
	store        *settings.Settings
	settingsPath string
	logger       *zap.Logger

	mode      clarifyMode
	selected  int
	editIndex int
	buffer    *EditBuffer
	confirmed bool

	width  int
	height int
}

func NewClarify(chainID, task string, steps []ClarifyStep, store *settings.Settings, settingsPath string, logger *zap.Logger) *Clarify {
	initial := make([]string, len(steps))
	for i, s := range steps {
		initial[i] = s.Template
	}

	return &Clarify{
		chainID:      chainID,
		task:         task,
		steps:        steps,
		initial:      initial,
		store:        store,
		settingsPath: settingsPath,
		logger:       logger,
	}
}

func (c *Clarify) Init() tea.Cmd {
	return nil
}

func (c *Clarify) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if c.mode == modeEditing {
			return c.handleEditKey(msg)
		}
		return c.handleNavKey(msg)

	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height
	}

	return c, nil
}

func (c *Clarify) handleNavKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		c.confirmed = false
		return c, tea.Quit

	case "enter":
		c.confirmed = true
		c.persist()
		return c, tea.Quit

	case "up", "k":
		if c.selected > 0 {
			c.selected--
		}

	case "down", "j":
		if c.selected < len(c.steps)-1 {
			c.selected++
		}

	case "e":
		if len(c.steps) > 0 {
			c.mode = modeEditing
			c.editIndex = c.selected
			c.buffer = NewEditBuffer(c.steps[c.selected].Template)
		}
	}

	return c, nil
}

// handleEditKey owns every key while editing. esc is the single way
// out and always commits; there is no discard path, so stray keys can
// never lose an edit.
func (c *Clarify) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		c.steps[c.editIndex].Template = c.buffer.String()
		c.buffer = nil
		c.mode = modeNavigating

	case tea.KeyEnter:
		c.buffer.Newline()

	case tea.KeyBackspace:
		c.buffer.Backspace()

	case tea.KeyLeft:
		c.buffer.MoveLeft()

	case tea.KeyRight:
		c.buffer.MoveRight()

	case tea.KeyUp:
		c.buffer.MoveUp()

	case tea.KeyDown:
		c.buffer.MoveDown()

	case tea.KeySpace:
		c.buffer.InsertRune(' ')

	case tea.KeyRunes:
		for _, r := range msg.Runes {
			c.buffer.InsertRune(r)
		}
	}

	return c, nil
}

// persist saves this chain's templates when the session changed any of
// them. Save failures are logged and swallowed; a broken settings file
// must never block a confirmed run.
func (c *Clarify) persist() {
	if c.store == nil || c.settingsPath == "" {
		return
	}

	dirty := false
	for i, s := range c.steps {
		if s.Template != c.initial[i] {
			dirty = true
			break
		}
	}
	if !dirty {
		return
	}

	saved := make(map[string]string, len(c.steps))
	for _, s := range c.steps {
		saved[s.Agent] = s.Template
	}

	if err := c.store.SaveChain(c.settingsPath, c.chainID, saved); err != nil && c.logger != nil {
		c.logger.Warn("failed to save chain templates",
			zap.String("chain", c.chainID),
			zap.Error(err))
	}
}

// Confirmed reports whether the operator confirmed the chain.
func (c *Clarify) Confirmed() bool {
	return c.confirmed
}

// Templates returns every step's committed template in chain order. The
// slice is populated on cancel too; callers ignore it then.
func (c *Clarify) Templates() []string {
	out := make([]string, len(c.steps))
	for i, s := range c.steps {
		out[i] = s.Template
	}
	return out
}

func (c *Clarify) View() string {
	s := titleStyle.Render("Clarify: "+c.chainID) + "\n"
	s += labelStyle.Render("Task: ") + c.task + "\n\n"

	if len(c.steps) == 0 {
		s += dimStyle.Render("(empty chain)") + "\n"
	}

	for i := range c.steps {
		s += c.viewStep(i)
	}

	if c.mode == modeEditing {
		s += "\n" + helpStyle.Render("[esc] done  [enter] newline  [←/→/↑/↓] move")
	} else {
		s += "\n" + helpStyle.Render("[↑/↓] select  [e] edit template  [enter] run chain  [esc] cancel")
	}

	return s
}

func (c *Clarify) viewStep(i int) string {
	st := c.steps[i]
	editing := c.mode == modeEditing && i == c.editIndex

	title := fmt.Sprintf("%d. %s", i+1, st.Title)
	marker := "  "
	switch {
	case editing:
		marker = statusRunning.Render("✎ ")
		title = stepTitleStyle.Render(title)
	case c.mode == modeNavigating && i == c.selected:
		marker = selectedStyle.Render("▶ ")
		title = stepTitleStyle.Render(title)
	}

	s := marker + title + "  " + dimStyle.Render(behaviorSummary(st)) + "\n"

	if editing {
		s += editBorderStyle.Render(c.viewBuffer()) + "\n"
	} else {
		for _, line := range strings.Split(st.Template, "\n") {
			s += "     " + highlightPlaceholders(line) + "\n"
		}
	}

	return s + "\n"
}

func (c *Clarify) viewBuffer() string {
	cursorLine, col := c.buffer.Cursor()

	lines := make([]string, len(c.buffer.Lines()))
	for i, line := range c.buffer.Lines() {
		if i == cursorLine {
			lines[i] = renderCursorLine(line, col)
		} else {
			lines[i] = highlightPlaceholders(line)
		}
	}
	return strings.Join(lines, "\n")
}

// renderCursorLine styles the rune under the cursor. Splitting the line
// around the cursor means a placeholder under the cursor loses its
// highlight; that reads as intended while editing.
func renderCursorLine(line string, col int) string {
	runes := []rune(line)
	if col >= len(runes) {
		return highlightPlaceholders(line) + cursorStyle.Render(" ")
	}

	before := highlightPlaceholders(string(runes[:col]))
	after := highlightPlaceholders(string(runes[col+1:]))
	return before + cursorStyle.Render(string(runes[col])) + after
}

func behaviorSummary(st ClarifyStep) string {
	var parts []string

	if len(st.Behavior.Reads) > 0 {
		parts = append(parts, "reads "+strings.Join(st.Behavior.Reads, ", "))
	}
	if st.Behavior.Output != "" {
		parts = append(parts, "writes "+st.Behavior.Output)
	}
	if st.Behavior.Progress {
		if st.CreatesProgress {
			parts = append(parts, "creates "+behavior.ProgressFile)
		} else {
			parts = append(parts, "updates "+behavior.ProgressFile)
		}
	}

	if len(parts) == 0 {
		return "no file behaviors"
	}
	return strings.Join(parts, "  ")
}

// RunClarify blocks until the operator confirms or cancels the chain.
func RunClarify(c *Clarify) (*Clarify, error) {
	p := tea.NewProgram(c, tea.WithAltScreen())

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("clarify UI failed: %w", err)
	}

	out, ok := final.(*Clarify)
	if !ok {
		return nil, fmt.Errorf("unexpected model type %T", final)
	}
	return out, nil
}

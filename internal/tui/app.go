package tui

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mpataki/relay/internal/models"
	"github.com/mpataki/relay/internal/runner"
)

type View int

const (
	ViewRunList View = iota
	ViewRunDetail
	ViewOutput
)

// App is the run history browser: recent runs, per-run step detail, and
// scrollable step output. Runs are started from the CLI, not from here.
type App struct {
	runner *runner.Runner

	view View
	runs []*models.Run

	table   table.Model
	spinner spinner.Model

	selectedRun     *models.Run
	steps           []*models.StepExecution
	selectedStepIdx int

	output      viewport.Model
	outputTitle string

	width  int
	height int
	err    error
}

func NewApp(r *runner.Runner) *App {
	columns := []table.Column{
		{Title: "ID", Width: 4},
		{Title: "Chain", Width: 18},
		{Title: "Status", Width: 12},
		{Title: "Age", Width: 6},
		{Title: "Task", Width: 42},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	st := table.DefaultStyles()
	st.Header = st.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		Bold(true)
	st.Selected = st.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(st)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusRunning

	return &App{
		runner:  r,
		view:    ViewRunList,
		table:   t,
		spinner: sp,
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadRuns, a.spinner.Tick, a.tickCmd())
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) hasRunningRuns() bool {
	for _, run := range a.runs {
		if run.Status == models.RunStatusRunning {
			return true
		}
	}
	return false
}

type tickMsg time.Time

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.output.Width = msg.Width
		a.output.Height = outputHeight(msg.Height)
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		if a.hasRunningRuns() {
			// Redraw rows so the spinner animates in the status column
			a.refreshTable()
		}
		return a, cmd

	case runsLoadedMsg:
		a.runs = msg.runs
		a.err = msg.err
		a.refreshTable()
		// Continue ticking if there are running runs
		if a.hasRunningRuns() {
			return a, a.tickCmd()
		}
		return a, nil

	case tickMsg:
		// Only refresh if we're on the run list view and have running runs
		if a.view == ViewRunList && a.hasRunningRuns() {
			return a, tea.Batch(a.loadRuns, a.tickCmd())
		}
		// Keep ticking to detect new running runs
		return a, a.tickCmd()

	case runDetailMsg:
		a.selectedRun = msg.run
		a.steps = msg.steps
		a.err = msg.err
		if a.err == nil {
			a.view = ViewRunDetail
		}
		return a, nil

	case runKilledMsg:
		a.err = msg.err
		// Reload runs list to show updated status
		return a, a.loadRuns

	case sessionResumedMsg:
		if msg.err != nil {
			a.err = msg.err
		}
		// Session ended, return to run list
		a.view = ViewRunList
		return a, a.loadRuns

	case runDeletedMsg:
		a.err = msg.err
		return a, a.loadRuns
	}

	return a, nil
}

func (a *App) refreshTable() {
	rows := make([]table.Row, len(a.runs))
	for i, run := range a.runs {
		rows[i] = table.Row{
			fmt.Sprintf("%d", run.ID),
			truncate(run.ChainName, 18),
			a.formatStatus(run.Status),
			formatAge(run.CreatedAt),
			truncate(run.Task, 42),
		}
	}
	a.table.SetRows(rows)
	if len(rows) > 0 && a.table.Cursor() >= len(rows) {
		a.table.SetCursor(len(rows) - 1)
	}
}

func (a *App) selectedListRun() *models.Run {
	i := a.table.Cursor()
	if i < 0 || i >= len(a.runs) {
		return nil
	}
	return a.runs[i]
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.view {
	case ViewRunList:
		return a.handleRunListKey(msg)
	case ViewRunDetail:
		return a.handleRunDetailKey(msg)
	case ViewOutput:
		return a.handleOutputKey(msg)
	}
	return a, nil
}

func (a *App) handleRunListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "enter":
		if run := a.selectedListRun(); run != nil {
			return a, a.loadRunDetail(run.ID)
		}

	case "r":
		return a, a.loadRuns

	case "x":
		if run := a.selectedListRun(); run != nil {
			return a, a.killRun(run.ID)
		}

	case "d":
		if run := a.selectedListRun(); run != nil {
			return a, a.deleteRun(run.ID)
		}

	default:
		var cmd tea.Cmd
		a.table, cmd = a.table.Update(msg)
		return a, cmd
	}

	return a, nil
}

func (a *App) handleRunDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewRunList
		a.selectedRun = nil
		a.steps = nil
		a.selectedStepIdx = 0

	case "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedStepIdx > 0 {
			a.selectedStepIdx--
		}

	case "down", "j":
		if a.selectedStepIdx < len(a.steps)-1 {
			a.selectedStepIdx++
		}

	case "enter":
		if len(a.steps) > 0 && a.selectedStepIdx < len(a.steps) {
			step := a.steps[a.selectedStepIdx]
			if step.ClaudeSessionID != "" && a.selectedRun != nil {
				return a, a.resumeSession(step.ClaudeSessionID, a.selectedRun.ChainDir)
			}
		}

	case "o":
		if len(a.steps) > 0 && a.selectedStepIdx < len(a.steps) {
			a.openOutput(a.steps[a.selectedStepIdx])
		}
	}

	return a, nil
}

func (a *App) handleOutputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewRunDetail
		a.outputTitle = ""

	case "ctrl+c":
		return a, tea.Quit

	default:
		var cmd tea.Cmd
		a.output, cmd = a.output.Update(msg)
		return a, cmd
	}

	return a, nil
}

func (a *App) openOutput(step *models.StepExecution) {
	w := a.width
	if w == 0 {
		w = 80
	}
	vp := viewport.New(w, outputHeight(a.height))
	vp.SetContent(stepOutputContent(step))

	a.output = vp
	a.outputTitle = fmt.Sprintf("Step %d: %s", step.Position+1, step.AgentName)
	a.view = ViewOutput
}

// outputHeight leaves room for the title and help lines around the viewport.
func outputHeight(total int) int {
	h := total - 5
	if h < 5 {
		h = 5
	}
	return h
}

func stepOutputContent(step *models.StepExecution) string {
	var b strings.Builder

	b.WriteString(labelStyle.Render("Prompt") + "\n")
	b.WriteString(step.Prompt + "\n\n")

	b.WriteString(labelStyle.Render("Result") + "\n")
	if step.Result == "" {
		b.WriteString("(no result yet)")
	} else {
		b.WriteString(step.Result)
	}

	return b.String()
}

func (a *App) View() string {
	switch a.view {
	case ViewRunList:
		return a.viewRunList()
	case ViewRunDetail:
		return a.viewRunDetail()
	case ViewOutput:
		return a.viewOutput()
	}
	return ""
}

func (a *App) viewRunList() string {
	s := titleStyle.Render("Relay") + "\n\n"

	if a.err != nil {
		s += fmt.Sprintf("Error: %v\n", a.err)
	}

	if len(a.runs) == 0 {
		s += "No runs yet. Start one with: relay run <chain> <task>\n"
	} else {
		s += a.table.View() + "\n"
	}

	s += "\n" + helpStyle.Render("[enter] view  [x] kill  [d] delete  [r] refresh  [q] quit")

	return s
}

func (a *App) formatStatus(status models.RunStatus) string {
	switch status {
	case models.RunStatusRunning:
		return a.spinner.View() + " running"
	case models.RunStatusComplete:
		return statusComplete.Render("✓ complete")
	case models.RunStatusFailed:
		return statusFailed.Render("✗ failed")
	case models.RunStatusCanceled:
		return statusCanceled.Render("■ canceled")
	case models.RunStatusPending:
		return statusPending.Render("○ pending")
	default:
		return string(status)
	}
}

func (a *App) viewRunDetail() string {
	if a.selectedRun == nil {
		return "No run selected"
	}

	run := a.selectedRun

	header := fmt.Sprintf("Run #%d: %s", run.ID, run.ChainName)
	s := titleStyle.Render(header) + "  " + a.formatStatus(run.Status) + "\n\n"

	s += run.Task + "\n\n"

	s += labelStyle.Render("Agents:    ") + dimStyle.Render(run.ChainID) + "\n"
	s += labelStyle.Render("Chain dir: ") + dimStyle.Render(run.ChainDir) + "\n"
	if run.Error != "" {
		s += labelStyle.Render("Error:     ") + statusFailed.Render(run.Error) + "\n"
	}
	s += "\n"

	s += "Steps\n"
	s += "─────\n"

	if len(a.steps) == 0 {
		s += "(no steps yet)\n"
	} else {
		for i, step := range a.steps {
			status := "○"
			switch step.Status {
			case models.StepStatusComplete:
				status = statusComplete.Render("✓")
			case models.StepStatusRunning:
				status = statusRunning.Render("●")
			case models.StepStatusFailed:
				status = statusFailed.Render("✗")
			}

			exitCode := ""
			if step.ExitCode != nil {
				if *step.ExitCode == 0 {
					exitCode = dimStyle.Render("exit:0")
				} else {
					exitCode = statusFailed.Render(fmt.Sprintf("exit:%d", *step.ExitCode))
				}
			}

			duration := ""
			if step.StartedAt != nil && step.CompletedAt != nil {
				d := step.CompletedAt.Sub(*step.StartedAt)
				duration = dimStyle.Render(formatDuration(d))
			} else if step.StartedAt != nil && step.Status == models.StepStatusRunning {
				d := time.Since(*step.StartedAt)
				duration = statusRunning.Render(formatDuration(d) + "...")
			}

			line := fmt.Sprintf("%d. %-12s %s", step.Position+1, step.AgentName, status)
			if exitCode != "" {
				line += "  " + exitCode
			}
			if duration != "" {
				line += "  " + fmt.Sprintf("%6s", duration)
			}

			if i == a.selectedStepIdx {
				line = selectedStyle.Render("▶ " + line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[↑/↓] select  [enter] resume  [o] output  [esc] back  [q] quit")

	return s
}

func (a *App) viewOutput() string {
	s := titleStyle.Render(a.outputTitle) + "\n\n"
	s += a.output.View() + "\n"
	s += helpStyle.Render("[↑/↓] scroll  [esc] back  [q] quit")

	return s
}

// Messages

type runsLoadedMsg struct {
	runs []*models.Run
	err  error
}

type runDetailMsg struct {
	run   *models.Run
	steps []*models.StepExecution
	err   error
}

type runKilledMsg struct {
	runID int64
	err   error
}

type sessionResumedMsg struct {
	sessionID string
	err       error
}

type runDeletedMsg struct {
	runID int64
	err   error
}

// Commands

func (a *App) loadRuns() tea.Msg {
	runs, err := a.runner.ListRuns(20)
	return runsLoadedMsg{runs: runs, err: err}
}

func (a *App) loadRunDetail(id int64) tea.Cmd {
	return func() tea.Msg {
		run, err := a.runner.GetRun(id)
		if err != nil {
			return runDetailMsg{err: err}
		}

		steps, err := a.runner.GetStepsForRun(id)
		return runDetailMsg{run: run, steps: steps, err: err}
	}
}

func (a *App) killRun(id int64) tea.Cmd {
	return func() tea.Msg {
		if err := a.runner.KillRun(id); err != nil {
			return runKilledMsg{err: err}
		}
		return runKilledMsg{runID: id}
	}
}

func (a *App) deleteRun(id int64) tea.Cmd {
	return func() tea.Msg {
		if err := a.runner.DeleteRun(id); err != nil {
			return runDeletedMsg{err: err}
		}
		return runDeletedMsg{runID: id}
	}
}

// resumeSession hands the terminal to claude so the operator can talk to
// the step's session inside its chain directory.
func (a *App) resumeSession(sessionID string, workDir string) tea.Cmd {
	cmd := exec.Command("claude", "--resume", sessionID)
	cmd.Dir = workDir
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return sessionResumedMsg{sessionID: sessionID, err: err}
	})
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		return fmt.Sprintf("%dd", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}

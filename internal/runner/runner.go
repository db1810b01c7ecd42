package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mpataki/relay/internal/agent"
	"github.com/mpataki/relay/internal/behavior"
	"github.com/mpataki/relay/internal/chaindir"
	"github.com/mpataki/relay/internal/models"
	"github.com/mpataki/relay/internal/storage"
)

// Runner executes chains: one claude invocation per step, strictly in
// order, each step's result text feeding the next step's {previous}.
type Runner struct {
	storage *storage.Storage
	dirs    *chaindir.Service
	defs    map[string]agent.Definition
	logger  *zap.Logger

	// OnStep, when set, is called after a step is created and again
	// after it finishes, so CLIs can print progress without polling.
	OnStep func(step *models.StepExecution)
}

func New(store *storage.Storage, dirs *chaindir.Service, defs map[string]agent.Definition, logger *zap.Logger) *Runner {
	return &Runner{
		storage: store,
		dirs:    dirs,
		defs:    defs,
		logger:  logger,
	}
}

// Chain is a fully clarified chain, ready to execute: ordered agents,
// their final templates, and the behavior override layers.
type Chain struct {
	Name      string
	Task      string
	Agents    []string
	Templates []string
	Overrides []behavior.Override
}

// PromptContext carries the values substituted into a step template.
type PromptContext struct {
	Task            string
	Previous        string
	ChainDir        string
	Behavior        behavior.Resolved
	CreatesProgress bool
}

// BuildPrompt renders a step's final prompt: literal placeholder
// substitution over the template, then the file-coordination block when
// any behavior field is active.
func BuildPrompt(template string, ctx PromptContext) string {
	prompt := template
	prompt = strings.ReplaceAll(prompt, "{task}", ctx.Task)
	prompt = strings.ReplaceAll(prompt, "{previous}", ctx.Previous)
	prompt = strings.ReplaceAll(prompt, "{chain_dir}", ctx.ChainDir)

	if instr := behavior.Instructions(ctx.Behavior, ctx.ChainDir, ctx.CreatesProgress); instr != "" {
		prompt += "\n\n" + instr
	}

	return prompt
}

// StartRun records the run and creates its chain directory.
func (r *Runner) StartRun(chain *Chain) (*models.Run, error) {
	run := &models.Run{
		Task:      chain.Task,
		ChainName: chain.Name,
		ChainID:   behavior.ChainID(chain.Agents),
		Status:    models.RunStatusPending,
	}
	if len(chain.Agents) > 0 {
		run.CurrentAgent = chain.Agents[0]
	}

	runID, err := r.storage.CreateRun(run)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	run.ID = runID

	dir, err := r.dirs.Create(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to create chain directory: %w", err)
	}
	run.ChainDir = dir

	if err := r.storage.UpdateRun(run); err != nil {
		return nil, fmt.Errorf("failed to update run with chain dir: %w", err)
	}

	meta := &chaindir.Metadata{
		RunID:  runID,
		Task:   chain.Task,
		Chain:  run.ChainID,
		Agents: chain.Agents,
	}
	if err := r.dirs.WriteMetadata(dir, meta); err != nil {
		return nil, fmt.Errorf("failed to write chain metadata: %w", err)
	}

	return run, nil
}

// Execute runs every step of the chain. A step failure marks the run
// failed and stops the chain; the returned error covers infrastructure
// problems only, so callers read the final verdict off run.Status.
func (r *Runner) Execute(run *models.Run, chain *Chain) error {
	run.Status = models.RunStatusRunning
	if err := r.storage.UpdateRun(run); err != nil {
		return err
	}

	stepDefs := make([]agent.Definition, len(chain.Agents))
	for i, name := range chain.Agents {
		stepDefs[i] = agent.Lookup(r.defs, name)
	}
	firstProgress := behavior.FirstProgressIndex(stepDefs, chain.Overrides)

	previous := ""
	for i, name := range chain.Agents {
		run.CurrentAgent = name
		if err := r.storage.UpdateRun(run); err != nil {
			return err
		}

		meta := &chaindir.Metadata{
			RunID:    run.ID,
			Task:     chain.Task,
			Chain:    run.ChainID,
			Agents:   chain.Agents,
			Position: i,
			Agent:    name,
		}
		if err := r.dirs.WriteMetadata(run.ChainDir, meta); err != nil {
			return err
		}

		var ov behavior.Override
		if i < len(chain.Overrides) {
			ov = chain.Overrides[i]
		}

		var template string
		if i < len(chain.Templates) {
			template = chain.Templates[i]
		}

		prompt := BuildPrompt(template, PromptContext{
			Task:            chain.Task,
			Previous:        previous,
			ChainDir:        run.ChainDir,
			Behavior:        behavior.ResolveStep(stepDefs[i], ov),
			CreatesProgress: i == firstProgress,
		})

		step := &models.StepExecution{
			RunID:     run.ID,
			Position:  i,
			AgentName: name,
			Template:  template,
			Prompt:    prompt,
			Status:    models.StepStatusPending,
		}
		stepID, err := r.storage.CreateStep(step)
		if err != nil {
			return err
		}
		step.ID = stepID

		if r.OnStep != nil {
			r.OnStep(step)
		}

		now := time.Now()
		step.StartedAt = &now
		step.Status = models.StepStatusRunning
		if err := r.storage.UpdateStep(step); err != nil {
			return err
		}

		if r.logger != nil {
			r.logger.Info("step started",
				zap.Int64("run", run.ID),
				zap.Int("position", i),
				zap.String("agent", name))
		}

		result, sessionID, exitCode, err := r.runClaude(run.ChainDir, name, prompt, stepID)
		completedAt := time.Now()
		step.CompletedAt = &completedAt
		step.ClaudeSessionID = sessionID
		step.ExitCode = &exitCode

		if err != nil || exitCode != 0 {
			step.Status = models.StepStatusFailed
			r.storage.UpdateStep(step)
			if r.OnStep != nil {
				r.OnStep(step)
			}
			reason := fmt.Sprintf("step %d (%s) exited %d", i+1, name, exitCode)
			if err != nil {
				reason = fmt.Sprintf("step %d (%s) failed: %v", i+1, name, err)
			}
			return r.failRun(run, reason)
		}

		step.Result = result
		step.Status = models.StepStatusComplete
		if err := r.storage.UpdateStep(step); err != nil {
			return err
		}
		if r.OnStep != nil {
			r.OnStep(step)
		}

		previous = result
	}

	return r.completeRun(run)
}

func (r *Runner) runClaude(workDir, agentName, prompt string, stepID int64) (result, sessionID string, exitCode int, err error) {
	args := []string{
		"-p", prompt,
		"--output-format", "json",
		"--dangerously-skip-permissions",
		"--max-turns", "30",
	}

	// Use Claude Code's agent definition if it exists
	if agentName != "" {
		args = append([]string{"--agent", agentName}, args...)
	}

	cmd := exec.Command("claude", args...)
	cmd.Dir = workDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", 0, err
	}

	if err := cmd.Start(); err != nil {
		return "", "", 0, err
	}

	// Store PID immediately so kill can reach the process group
	if cmd.Process != nil {
		r.storage.UpdateStepPID(stepID, cmd.Process.Pid)
	}

	output, _ := io.ReadAll(stdout)

	err = cmd.Wait()
	exitCode = 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", "", 0, err
		}
	}

	var parsed struct {
		Result    string `json:"result"`
		SessionID string `json:"session_id"`
	}
	if jsonErr := json.Unmarshal(output, &parsed); jsonErr == nil {
		result = parsed.Result
		sessionID = parsed.SessionID
	} else {
		result = strings.TrimSpace(string(output))
	}

	return result, sessionID, exitCode, nil
}

func (r *Runner) completeRun(run *models.Run) error {
	now := time.Now()
	run.Status = models.RunStatusComplete
	run.CompletedAt = &now
	return r.storage.UpdateRun(run)
}

func (r *Runner) failRun(run *models.Run, reason string) error {
	now := time.Now()
	run.Status = models.RunStatusFailed
	run.CompletedAt = &now
	run.Error = reason
	if r.logger != nil {
		r.logger.Error("run failed", zap.Int64("run", run.ID), zap.String("reason", reason))
	}
	return r.storage.UpdateRun(run)
}

// Read methods for TUI

func (r *Runner) ListRuns(limit int) ([]*models.Run, error) {
	return r.storage.ListRuns(limit)
}

func (r *Runner) GetRun(id int64) (*models.Run, error) {
	return r.storage.GetRun(id)
}

func (r *Runner) GetStepsForRun(runID int64) ([]*models.StepExecution, error) {
	return r.storage.GetStepsForRun(runID)
}

// KillRun stops a running chain: the running step's process group gets
// SIGKILL and the run is marked canceled.
func (r *Runner) KillRun(runID int64) error {
	run, err := r.storage.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	step, err := r.storage.GetRunningStepForRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get running step: %w", err)
	}

	if step != nil && step.PID != nil {
		// Kill the process group so child processes go down too
		syscall.Kill(-*step.PID, syscall.SIGKILL)

		now := time.Now()
		step.Status = models.StepStatusFailed
		step.CompletedAt = &now
		r.storage.UpdateStep(step)
	}

	now := time.Now()
	run.Status = models.RunStatusCanceled
	run.CompletedAt = &now
	run.Error = "killed by operator"
	return r.storage.UpdateRun(run)
}

// DeleteRun removes a run's records and its chain directory. The
// directory removal is best-effort; cleanup catches leftovers.
func (r *Runner) DeleteRun(runID int64) error {
	run, err := r.storage.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	if run.ChainDir != "" {
		if err := r.dirs.Remove(run.ChainDir); err != nil && r.logger != nil {
			r.logger.Warn("failed to remove chain dir",
				zap.String("dir", run.ChainDir),
				zap.Error(err))
		}
	}

	return r.storage.DeleteRun(runID)
}

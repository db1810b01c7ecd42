package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mpataki/relay/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetRun(t *testing.T) {
	s := newTestStorage(t)

	id, err := s.CreateRun(&models.Run{
		Task:      "add retry logic",
		ChainName: "feature",
		ChainID:   "planner->coder",
		ChainDir:  "/tmp/chains/chain-1-abc",
		Status:    models.RunStatusPending,
	})
	if err != nil {
		t.Fatalf("CreateRun returned error: %v", err)
	}

	run, err := s.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun returned error: %v", err)
	}

	if run.Task != "add retry logic" {
		t.Errorf("Task = %q, want %q", run.Task, "add retry logic")
	}
	if run.ChainID != "planner->coder" {
		t.Errorf("ChainID = %q, want %q", run.ChainID, "planner->coder")
	}
	if run.Status != models.RunStatusPending {
		t.Errorf("Status = %q, want pending", run.Status)
	}
	if run.CompletedAt != nil {
		t.Error("CompletedAt should be nil for a new run")
	}
}

func TestUpdateRun(t *testing.T) {
	s := newTestStorage(t)

	id, err := s.CreateRun(&models.Run{
		Task: "t", ChainName: "c", ChainID: "a->b", ChainDir: "/d",
		Status: models.RunStatusRunning,
	})
	if err != nil {
		t.Fatal(err)
	}

	run, err := s.GetRun(id)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	run.Status = models.RunStatusFailed
	run.CompletedAt = &now
	run.CurrentAgent = "b"
	run.Error = "step 2 exited 1"

	if err := s.UpdateRun(run); err != nil {
		t.Fatalf("UpdateRun returned error: %v", err)
	}

	got, err := s.GetRun(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.RunStatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
	if got.Error != "step 2 exited 1" {
		t.Errorf("Error = %q, want saved message", got.Error)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestStorage(t)

	for i := 0; i < 3; i++ {
		if _, err := s.CreateRun(&models.Run{
			Task: "t", ChainName: "c", ChainID: "a", ChainDir: "/d",
			Status: models.RunStatusComplete,
		}); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns returned error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].ID < runs[1].ID {
		t.Errorf("runs not newest first: ids %d, %d", runs[0].ID, runs[1].ID)
	}
}

func TestStepLifecycle(t *testing.T) {
	s := newTestStorage(t)

	runID, err := s.CreateRun(&models.Run{
		Task: "t", ChainName: "c", ChainID: "a->b", ChainDir: "/d",
		Status: models.RunStatusRunning,
	})
	if err != nil {
		t.Fatal(err)
	}

	stepID, err := s.CreateStep(&models.StepExecution{
		RunID:     runID,
		Position:  0,
		AgentName: "planner",
		Template:  "{task}",
		Status:    models.StepStatusPending,
	})
	if err != nil {
		t.Fatalf("CreateStep returned error: %v", err)
	}

	if err := s.UpdateStepPID(stepID, 4242); err != nil {
		t.Fatalf("UpdateStepPID returned error: %v", err)
	}

	started := time.Now()
	code := 0
	if err := s.UpdateStep(&models.StepExecution{
		ID:              stepID,
		Prompt:          "do the thing",
		Result:          "done",
		ClaudeSessionID: "sess-1",
		Status:          models.StepStatusComplete,
		ExitCode:        &code,
		StartedAt:       &started,
	}); err != nil {
		t.Fatalf("UpdateStep returned error: %v", err)
	}

	steps, err := s.GetStepsForRun(runID)
	if err != nil {
		t.Fatalf("GetStepsForRun returned error: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("len(steps) = %d, want 1", len(steps))
	}

	step := steps[0]
	if step.Result != "done" {
		t.Errorf("Result = %q, want %q", step.Result, "done")
	}
	if step.ClaudeSessionID != "sess-1" {
		t.Errorf("ClaudeSessionID = %q, want %q", step.ClaudeSessionID, "sess-1")
	}
	if step.ExitCode == nil || *step.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", step.ExitCode)
	}
	if step.PID == nil || *step.PID != 4242 {
		t.Errorf("PID = %v, want 4242", step.PID)
	}
}

func TestStepsOrderedByPosition(t *testing.T) {
	s := newTestStorage(t)

	runID, err := s.CreateRun(&models.Run{
		Task: "t", ChainName: "c", ChainID: "a->b", ChainDir: "/d",
		Status: models.RunStatusRunning,
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, pos := range []int{1, 0, 2} {
		if _, err := s.CreateStep(&models.StepExecution{
			RunID: runID, Position: pos, AgentName: "a", Template: "{task}",
			Status: models.StepStatusPending,
		}); err != nil {
			t.Fatal(err)
		}
	}

	steps, err := s.GetStepsForRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	for i, step := range steps {
		if step.Position != i {
			t.Errorf("steps[%d].Position = %d, want %d", i, step.Position, i)
		}
	}
}

func TestGetRunningStepForRun(t *testing.T) {
	s := newTestStorage(t)

	runID, err := s.CreateRun(&models.Run{
		Task: "t", ChainName: "c", ChainID: "a->b", ChainDir: "/d",
		Status: models.RunStatusRunning,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.CreateStep(&models.StepExecution{
		RunID: runID, Position: 0, AgentName: "a", Template: "{task}",
		Status: models.StepStatusComplete,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateStep(&models.StepExecution{
		RunID: runID, Position: 1, AgentName: "b", Template: "{previous}",
		Status: models.StepStatusRunning,
	}); err != nil {
		t.Fatal(err)
	}

	step, err := s.GetRunningStepForRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	if step == nil || step.AgentName != "b" {
		t.Errorf("running step = %+v, want agent b", step)
	}
}

func TestDeleteRunRemovesSteps(t *testing.T) {
	s := newTestStorage(t)

	runID, err := s.CreateRun(&models.Run{
		Task: "t", ChainName: "c", ChainID: "a", ChainDir: "/d",
		Status: models.RunStatusComplete,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateStep(&models.StepExecution{
		RunID: runID, Position: 0, AgentName: "a", Template: "{task}",
		Status: models.StepStatusComplete,
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteRun(runID); err != nil {
		t.Fatalf("DeleteRun returned error: %v", err)
	}

	if _, err := s.GetRun(runID); err == nil {
		t.Error("GetRun should fail after delete")
	}
	steps, err := s.GetStepsForRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 0 {
		t.Errorf("len(steps) = %d, want 0 after delete", len(steps))
	}
}

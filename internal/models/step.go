package models

import "time"

type StepStatus string

const (
	StepStatusPending  StepStatus = "pending"
	StepStatusRunning  StepStatus = "running"
	StepStatusComplete StepStatus = "complete"
	StepStatusFailed   StepStatus = "failed"
)

// StepExecution is one agent invocation within a run. Position is the
// zero-based index in the chain. Result holds the agent's response text,
// which becomes {previous} for the next step.
type StepExecution struct {
	ID              int64
	RunID           int64
	Position        int
	AgentName       string
	Template        string
	Prompt          string
	Result          string
	ClaudeSessionID string
	Status          StepStatus
	ExitCode        *int
	PID             *int
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

package models

import "time"

type RunStatus string

const (
	RunStatusPending  RunStatus = "pending"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
	RunStatusCanceled RunStatus = "canceled"
)

// Run is one execution of a chain. ChainID is the order-sensitive agent
// list joined with "->" (e.g. "planner->coder"); ChainName is the preset
// name when the run came from a preset, otherwise equal to ChainID.
type Run struct {
	ID           int64
	CreatedAt    time.Time
	CompletedAt  *time.Time
	Task         string
	ChainName    string
	ChainID      string
	ChainDir     string
	Status       RunStatus
	CurrentAgent string
	Error        string
}

package models

import "time"

// ExecutionStatus represents the lifecycle state of a test execution.
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending"
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusError   ExecutionStatus = "error"
)

// Execution is the durable record tracking one task's run.
// It is created pending before the task is dispatched and transitions
// pending -> running -> success|error exactly once.
type Execution struct {
	ID          string
	SessionID   string
	Task        string
	Tag         Mode
	Status      ExecutionStatus
	Passed      *bool  // agent verdict; nil until a verdict was recorded
	Message     string // agent verdict message
	Error       string // agent or infrastructure error text
	Screenshot  string // path/reference of the most recent screenshot
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

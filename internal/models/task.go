package models

// Task is one unit of work handed to a single agent invocation.
// Tasks are immutable; their durable counterpart is an Execution.
type Task struct {
	Description string
	Tag         Mode
	BaseURL     string
}

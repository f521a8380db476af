package types

import (
	"fmt"
	"time"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskTimeout    TaskStatus = "timeout"
)

const (
	DefaultPriority    = 5
	DefaultTaskTimeout = 300 // seconds
	MinPriority        = 1
	MaxPriority        = 10
)

// Task is a unit of work requested by one party and executed by another.
type Task struct {
	TaskID          string                 `json:"task_id"`
	TaskType        string                 `json:"task_type"`
	Payload         map[string]interface{} `json:"payload"`
	RequesterID     string                 `json:"requester_id"`
	AssignedAgentID string                 `json:"assigned_agent_id,omitempty"`
	Priority        int                    `json:"priority"`
	Timeout         int                    `json:"timeout"`
	Status          TaskStatus             `json:"status"`
	CreatedAt       time.Time              `json:"created_at"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	Result          map[string]interface{} `json:"result,omitempty"`
	Error           string                 `json:"error,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// TaskRequest is the delegation request body.
type TaskRequest struct {
	TaskID               string                 `json:"task_id,omitempty"`
	TaskType             string                 `json:"task_type"`
	Payload              map[string]interface{} `json:"payload"`
	RequesterID          string                 `json:"requester_id"`
	Priority             int                    `json:"priority,omitempty"`
	Timeout              int                    `json:"timeout,omitempty"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
	RequiredCapabilities []string               `json:"required_capabilities,omitempty"`
}

// Validate checks the request against the task schema.
func (r *TaskRequest) Validate() error {
	if r.TaskType == "" {
		return fmt.Errorf("task_type is required")
	}
	if r.Payload == nil {
		return fmt.Errorf("payload is required")
	}
	if r.RequesterID == "" {
		return fmt.Errorf("requester_id is required")
	}
	if r.Priority != 0 && (r.Priority < MinPriority || r.Priority > MaxPriority) {
		return fmt.Errorf("priority must be between %d and %d", MinPriority, MaxPriority)
	}
	if r.Timeout < 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if len(r.TaskID) > 100 {
		return fmt.Errorf("task_id must be at most 100 characters")
	}
	return nil
}

// validTransitions defines allowed status transitions. Terminal states
// have no successors; the monotonic chain is
// pending -> in_progress -> {completed, failed, timeout}.
var validTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:    {TaskInProgress, TaskFailed},
	TaskInProgress: {TaskCompleted, TaskFailed, TaskTimeout},
}

// CanTransitionTo reports whether moving to newStatus is legal.
func (t *Task) CanTransitionTo(newStatus TaskStatus) bool {
	for _, s := range validTransitions[t.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo attempts to move the task to a new status.
func (t *Task) TransitionTo(newStatus TaskStatus) error {
	if !t.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid transition from %s to %s", t.Status, newStatus)
	}
	t.Status = newStatus
	return nil
}

// IsTerminal returns true if the task is in a final state.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskCompleted, TaskFailed, TaskTimeout:
		return true
	}
	return false
}

// Deadline returns the wall-clock instant after which the task has
// exceeded its timeout.
func (t *Task) Deadline() time.Time {
	return t.CreatedAt.Add(time.Duration(t.Timeout) * time.Second)
}

// DelegationPayload is the body forwarded verbatim to the chosen
// agent's a2a endpoint.
type DelegationPayload struct {
	TaskID      string                 `json:"task_id"`
	TaskType    string                 `json:"task_type"`
	Payload     map[string]interface{} `json:"payload"`
	RequesterID string                 `json:"requester_id"`
	Priority    int                    `json:"priority"`
	Timeout     int                    `json:"timeout"`
}

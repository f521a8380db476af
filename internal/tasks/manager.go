// Package tasks operates the task lifecycle state machine. Every
// mutation is persisted before the in-memory active map is updated, so
// a crash between disk and memory leaves the store ahead, never behind.
package tasks

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/A2AHUB/internal/store"
	"github.com/A2AHUB/internal/types"
	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates an unknown task_id.
	ErrNotFound = errors.New("task not found")
	// ErrIllegalTransition indicates a mutation against the state machine.
	ErrIllegalTransition = errors.New("illegal task transition")
)

// ValidationError wraps a task schema violation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Manager owns the active-task map and drives all status transitions.
type Manager struct {
	mu     sync.RWMutex
	active map[string]*types.Task
	store  *store.Store
}

// NewManager creates a manager backed by the store.
func NewManager(st *store.Store) *Manager {
	return &Manager{
		active: make(map[string]*types.Task),
		store:  st,
	}
}

// Load rebuilds the active map from non-terminal rows in the store.
func (m *Manager) Load() error {
	open, err := m.store.ListOpenTasks()
	if err != nil {
		return fmt.Errorf("failed to load open tasks: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range open {
		m.active[task.TaskID] = task
	}
	log.Printf("[TASKS] Loaded %d open tasks", len(open))
	return nil
}

// Create validates the request, assigns a task_id when absent, persists
// the pending row, and inserts it into the active map.
func (m *Manager) Create(req *types.TaskRequest) (*types.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	task := &types.Task{
		TaskID:      req.TaskID,
		TaskType:    req.TaskType,
		Payload:     req.Payload,
		RequesterID: req.RequesterID,
		Priority:    req.Priority,
		Timeout:     req.Timeout,
		Status:      types.TaskPending,
		CreatedAt:   time.Now(),
		Metadata:    req.Metadata,
	}
	if task.TaskID == "" {
		task.TaskID = uuid.NewString()
	}
	if task.Priority == 0 {
		task.Priority = types.DefaultPriority
	}
	if task.Timeout == 0 {
		task.Timeout = types.DefaultTaskTimeout
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[task.TaskID]; exists {
		return nil, &ValidationError{Reason: fmt.Sprintf("task %s already exists", task.TaskID)}
	}
	if err := m.store.InsertTask(task); err != nil {
		return nil, fmt.Errorf("failed to persist task %s: %w", task.TaskID, err)
	}
	m.active[task.TaskID] = task
	log.Printf("[TASKS] Task %s created (type=%s requester=%s)", task.TaskID, task.TaskType, task.RequesterID)
	return cloneTask(task), nil
}

// Assign sets assigned_agent_id and transitions pending -> in_progress.
func (m *Manager) Assign(taskID, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.active[taskID]
	if !ok {
		return ErrNotFound
	}
	if task.Status != types.TaskPending {
		return fmt.Errorf("%w: cannot assign task in state %s", ErrIllegalTransition, task.Status)
	}
	if err := m.store.AssignTask(taskID, agentID); err != nil {
		return fmt.Errorf("failed to persist assignment of %s: %w", taskID, err)
	}
	task.AssignedAgentID = agentID
	task.Status = types.TaskInProgress
	log.Printf("[TASKS] Task %s assigned to agent %s", taskID, agentID)
	return nil
}

// Complete finalizes an in_progress task with its result.
func (m *Manager) Complete(taskID string, result map[string]interface{}) error {
	return m.finalize(taskID, types.TaskCompleted, result, "")
}

// Fail finalizes a task with an error. Valid from pending (dispatcher
// found no candidate) or in_progress (delegation or worker failure).
func (m *Manager) Fail(taskID, errText string) error {
	return m.finalize(taskID, types.TaskFailed, nil, errText)
}

// MarkTimeout finalizes a task whose deadline expired. Invoked only by
// the timeout sweeper.
func (m *Manager) MarkTimeout(taskID string) error {
	errText := "task exceeded its timeout"
	return m.finalize(taskID, types.TaskTimeout, nil, errText)
}

func (m *Manager) finalize(taskID string, status types.TaskStatus, result map[string]interface{}, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.active[taskID]
	if !ok {
		// Finalized tasks are evicted from the active map; repeating the
		// same terminal transition is idempotent.
		stored, err := m.store.GetTask(taskID)
		if err != nil {
			return ErrNotFound
		}
		if stored.Status == status {
			return nil
		}
		return fmt.Errorf("%w: task %s is already %s", ErrIllegalTransition, taskID, stored.Status)
	}

	if !task.CanTransitionTo(status) {
		return fmt.Errorf("%w: cannot move task from %s to %s", ErrIllegalTransition, task.Status, status)
	}

	completedAt := time.Now()
	if err := m.store.FinishTask(taskID, status, completedAt, result, errText); err != nil {
		return fmt.Errorf("failed to persist %s for task %s: %w", status, taskID, err)
	}

	task.Status = status
	task.CompletedAt = &completedAt
	task.Result = result
	task.Error = errText
	delete(m.active, taskID)
	log.Printf("[TASKS] Task %s finalized as %s", taskID, status)
	return nil
}

// Get returns the task for task_id, consulting the store for
// finalized history.
func (m *Manager) Get(taskID string) (*types.Task, error) {
	m.mu.RLock()
	task, ok := m.active[taskID]
	if ok {
		defer m.mu.RUnlock()
		return cloneTask(task), nil
	}
	m.mu.RUnlock()

	stored, err := m.store.GetTask(taskID)
	if err != nil {
		return nil, ErrNotFound
	}
	return stored, nil
}

// InProgress returns copies of all in_progress tasks, for the sweeper.
func (m *Manager) InProgress() []*types.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Task
	for _, task := range m.active {
		if task.Status == types.TaskInProgress {
			out = append(out, cloneTask(task))
		}
	}
	return out
}

// Counts returns task totals by status across all history.
func (m *Manager) Counts() (map[types.TaskStatus]int, error) {
	return m.store.TaskCounts()
}

// AverageCompletionSeconds returns the mean duration of completed tasks.
func (m *Manager) AverageCompletionSeconds() (float64, error) {
	return m.store.AverageCompletionSeconds()
}

func cloneTask(t *types.Task) *types.Task {
	clone := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		clone.CompletedAt = &at
	}
	return &clone
}

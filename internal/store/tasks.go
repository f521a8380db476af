package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/A2AHUB/internal/types"
)

// InsertTask persists a freshly created task in its pending state.
func (s *Store) InsertTask(task *types.Task) error {
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	var metadata sql.NullString
	if task.Metadata != nil {
		raw, err := json.Marshal(task.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = nullString(string(raw))
	}

	_, err = s.db.Exec(`
		INSERT INTO tasks (task_id, task_type, payload_json, requester_id, priority, timeout,
			status, created_at, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.TaskID, task.TaskType, string(payload), task.RequesterID,
		task.Priority, task.Timeout, string(task.Status), task.CreatedAt, metadata,
	)
	return err
}

// AssignTask persists the pending -> in_progress transition.
func (s *Store) AssignTask(taskID, agentID string) error {
	_, err := s.db.Exec(`
		UPDATE tasks SET assigned_agent_id = ?, status = ?
		WHERE task_id = ?
	`, agentID, string(types.TaskInProgress), taskID)
	return err
}

// FinishTask persists a terminal transition with its result or error.
func (s *Store) FinishTask(taskID string, status types.TaskStatus, completedAt time.Time, result map[string]interface{}, errText string) error {
	var resultJSON sql.NullString
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		resultJSON = nullString(string(raw))
	}

	_, err := s.db.Exec(`
		UPDATE tasks SET status = ?, completed_at = ?, result_json = ?, error = ?
		WHERE task_id = ?
	`, string(status), completedAt, resultJSON, nullString(errText), taskID)
	return err
}

// GetTask retrieves a task by id, including finalized history rows.
func (s *Store) GetTask(taskID string) (*types.Task, error) {
	row := s.db.QueryRow(`
		SELECT task_id, task_type, payload_json, requester_id, assigned_agent_id, priority,
			timeout, status, created_at, completed_at, result_json, error, metadata_json
		FROM tasks WHERE task_id = ?
	`, taskID)
	return scanTask(row)
}

// ListOpenTasks returns pending and in_progress tasks for boot-time
// cache rebuild.
func (s *Store) ListOpenTasks() ([]*types.Task, error) {
	rows, err := s.db.Query(`
		SELECT task_id, task_type, payload_json, requester_id, assigned_agent_id, priority,
			timeout, status, created_at, completed_at, result_json, error, metadata_json
		FROM tasks WHERE status IN (?, ?) ORDER BY created_at
	`, string(types.TaskPending), string(types.TaskInProgress))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// TaskCounts returns the number of tasks per status across all history.
func (s *Store) TaskCounts() (map[types.TaskStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[types.TaskStatus]int{
		types.TaskPending:    0,
		types.TaskInProgress: 0,
		types.TaskCompleted:  0,
		types.TaskFailed:     0,
		types.TaskTimeout:    0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[types.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

// AverageCompletionSeconds returns the mean wall-clock duration of
// completed tasks, or zero when none exist.
func (s *Store) AverageCompletionSeconds() (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT AVG((julianday(completed_at) - julianday(created_at)) * 86400.0)
		FROM tasks WHERE status = ? AND completed_at IS NOT NULL
	`, string(types.TaskCompleted)).Scan(&avg)
	if err != nil {
		return 0, err
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}

// scanner abstracts sql.Row and sql.Rows for task scanning.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (*types.Task, error) {
	var task types.Task
	var payload string
	var assignedAgent, resultJSON, errText, metadata sql.NullString
	var completedAt sql.NullTime
	var status string

	err := row.Scan(
		&task.TaskID, &task.TaskType, &payload, &task.RequesterID, &assignedAgent,
		&task.Priority, &task.Timeout, &status, &task.CreatedAt, &completedAt,
		&resultJSON, &errText, &metadata,
	)
	if err != nil {
		return nil, err
	}

	task.Status = types.TaskStatus(status)
	if assignedAgent.Valid {
		task.AssignedAgentID = assignedAgent.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	if errText.Valid {
		task.Error = errText.String
	}
	if err := json.Unmarshal([]byte(payload), &task.Payload); err != nil {
		return nil, fmt.Errorf("task %s: bad payload json: %w", task.TaskID, err)
	}
	if resultJSON.Valid && resultJSON.String != "" {
		if err := json.Unmarshal([]byte(resultJSON.String), &task.Result); err != nil {
			task.Result = nil
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &task.Metadata); err != nil {
			task.Metadata = nil
		}
	}
	return &task, nil
}

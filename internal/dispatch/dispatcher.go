// Package dispatch scores candidate agents, selects the best fit, and
// performs the outbound delegation call. Delegation is fire-and-forget:
// the completion endpoint is the only path to a completed task.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/A2AHUB/internal/registry"
	"github.com/A2AHUB/internal/tasks"
	"github.com/A2AHUB/internal/types"
)

// NoSuitableAgentReason is recorded on tasks that found no candidate.
const NoSuitableAgentReason = "no suitable agents"

// ErrNoSuitableAgent indicates zero scoreable online candidates.
var ErrNoSuitableAgent = errors.New(NoSuitableAgentReason)

// DelegationError wraps a failed outbound delegation. The task has
// already been marked failed; retrying on another agent is the
// requester's policy choice.
type DelegationError struct {
	AgentID string
	Reason  string
}

func (e *DelegationError) Error() string {
	return fmt.Sprintf("delegation to %s failed: %s", e.AgentID, e.Reason)
}

// Candidate is a scored online agent.
type Candidate struct {
	Card  *types.AgentCard
	Score float64
}

// Result is the success envelope of a dispatch.
type Result struct {
	Task          *types.Task
	AssignedAgent string
}

// Dispatcher routes tasks to the best-fit online agent.
type Dispatcher struct {
	registry *registry.Registry
	tasks    *tasks.Manager
	client   *http.Client

	sweepInterval time.Duration

	// onFailure is invoked for operator alerting; may be nil.
	onFailure func(taskID, agentID, reason string)
}

// New creates a dispatcher. delegateTimeout is the per-call deadline
// for outbound delegation POSTs.
func New(reg *registry.Registry, mgr *tasks.Manager, delegateTimeout, sweepInterval time.Duration) *Dispatcher {
	return &Dispatcher{
		registry:      reg,
		tasks:         mgr,
		client:        &http.Client{Timeout: delegateTimeout},
		sweepInterval: sweepInterval,
	}
}

// SetFailureHook installs a callback fired on delegation failures.
func (d *Dispatcher) SetFailureHook(hook func(taskID, agentID, reason string)) {
	d.onFailure = hook
}

// Candidates returns online agents able to serve the task, scored and
// sorted best first, truncated to limit (0 = all).
func (d *Dispatcher) Candidates(taskType string, requiredCaps []string, limit int) []Candidate {
	ids := d.registry.Discover(taskType, requiredCaps)

	var candidates []Candidate
	for _, agentID := range ids {
		card, err := d.registry.Get(agentID)
		if err != nil || card.Status != types.StatusOnline {
			continue
		}
		score, ok := scoreAgent(card, taskType, requiredCaps)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{Card: card, Score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Card.LoadScore != b.Card.LoadScore {
			return a.Card.LoadScore < b.Card.LoadScore
		}
		if !a.Card.LastHeartbeat.Equal(b.Card.LastHeartbeat) {
			return a.Card.LastHeartbeat.Before(b.Card.LastHeartbeat)
		}
		return a.Card.AgentID < b.Card.AgentID
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// scoreAgent computes the selection score for one online agent. With
// explicit required capabilities the score is the capability match
// ratio weighted by idleness; zero-match candidates are excluded. With
// type-only routing the agent must advertise the task type.
func scoreAgent(card *types.AgentCard, taskType string, requiredCaps []string) (float64, bool) {
	if len(requiredCaps) > 0 {
		matched := 0
		for _, capability := range requiredCaps {
			if card.HasCapability(capability) {
				matched++
			}
		}
		if matched == 0 {
			return 0, false
		}
		matchRatio := float64(matched) / float64(len(requiredCaps))
		return matchRatio * (1 - card.LoadScore), true
	}

	if !card.HasCapability(taskType) {
		return 0, false
	}
	return 1 - card.LoadScore, true
}

// Dispatch creates the task, selects the best candidate, and delegates
// the payload to it. The HTTP response from the agent acknowledges
// receipt only; completion arrives asynchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, req *types.TaskRequest) (*Result, error) {
	task, err := d.tasks.Create(req)
	if err != nil {
		return nil, err
	}

	candidates := d.Candidates(req.TaskType, req.RequiredCapabilities, 0)
	if len(candidates) == 0 {
		if ferr := d.tasks.Fail(task.TaskID, NoSuitableAgentReason); ferr != nil {
			log.Printf("[DISPATCH] Failed to mark task %s failed: %v", task.TaskID, ferr)
		}
		return &Result{Task: task}, ErrNoSuitableAgent
	}

	best := candidates[0].Card
	if err := d.tasks.Assign(task.TaskID, best.AgentID); err != nil {
		return nil, fmt.Errorf("failed to assign task %s: %w", task.TaskID, err)
	}
	task.AssignedAgentID = best.AgentID
	task.Status = types.TaskInProgress

	if err := d.delegate(ctx, best, task); err != nil {
		reason := err.Error()
		if ferr := d.tasks.Fail(task.TaskID, reason); ferr != nil {
			log.Printf("[DISPATCH] Failed to mark task %s failed: %v", task.TaskID, ferr)
		}
		if d.onFailure != nil {
			d.onFailure(task.TaskID, best.AgentID, reason)
		}
		return &Result{Task: task}, &DelegationError{AgentID: best.AgentID, Reason: reason}
	}

	log.Printf("[DISPATCH] Task %s delegated to agent %s", task.TaskID, best.AgentID)
	return &Result{Task: task, AssignedAgent: best.AgentID}, nil
}

// delegate POSTs the delegation payload to the agent's a2a endpoint.
func (d *Dispatcher) delegate(ctx context.Context, agent *types.AgentCard, task *types.Task) error {
	payload := types.DelegationPayload{
		TaskID:      task.TaskID,
		TaskType:    task.TaskType,
		Payload:     task.Payload,
		RequesterID: task.RequesterID,
		Priority:    task.Priority,
		Timeout:     task.Timeout,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal delegation payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, agent.Endpoints["a2a"], bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bad a2a endpoint: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("delegation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("agent returned status %d: %s", resp.StatusCode, string(text))
	}
	return nil
}

// RunSweeper scans in_progress tasks and times out any past their
// deadline. Runs until the context is cancelled.
func (d *Dispatcher) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(d.sweepInterval)
	defer ticker.Stop()

	log.Printf("[SWEEP] Timeout sweeper started (interval: %v)", d.sweepInterval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[SWEEP] Timeout sweeper stopped")
			return
		case <-ticker.C:
			d.sweepOnce(time.Now())
		}
	}
}

// sweepOnce applies the per-task deadline at the given instant.
func (d *Dispatcher) sweepOnce(now time.Time) {
	for _, task := range d.tasks.InProgress() {
		if now.After(task.Deadline()) {
			if err := d.tasks.MarkTimeout(task.TaskID); err != nil {
				log.Printf("[SWEEP] Failed to time out task %s: %v", task.TaskID, err)
				continue
			}
			log.Printf("[SWEEP] Task %s timed out after %ds", task.TaskID, task.Timeout)
		}
	}
}

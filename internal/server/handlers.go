package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/A2AHUB/internal/dispatch"
	"github.com/A2AHUB/internal/registry"
	"github.com/A2AHUB/internal/tasks"
	"github.com/A2AHUB/internal/types"
	"github.com/gorilla/mux"
)

// MaxPayloadSize caps request bodies to prevent oversized payloads.
const MaxPayloadSize = 1 << 20 // 1MB

// limitRequestSize caps the request body reader.
func limitRequestSize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxPayloadSize)
}

// writeJSON encodes a response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[SERVER] Failed to encode response: %v", err)
	}
}

// writeError emits the failure envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// handleRegisterAgent registers or updates an agent card.
// UnreachableAgent is an operation failure, not a transport failure:
// the envelope carries success=false with HTTP 200.
func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(w, r)

	var card types.AgentCard
	if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.registry.Register(r.Context(), &card)
	switch {
	case err == nil:
		s.broadcastState()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"agent_id": card.AgentID,
		})
	case errors.Is(err, registry.ErrUnreachableAgent):
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":  false,
			"agent_id": card.AgentID,
			"error":    err.Error(),
		})
	default:
		var verr *registry.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Reason)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleListAgents lists agents with an optional ?status= filter.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	status := types.AgentStatus(r.URL.Query().Get("status"))
	agents := s.registry.List(status)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"agents":  agents,
		"count":   len(agents),
	})
}

// handleGetAgent returns one agent card.
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	if agentID == "" || len(agentID) > 100 {
		writeError(w, http.StatusBadRequest, "invalid agent ID")
		return
	}

	agent, err := s.registry.Get(agentID)
	if err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"agent":   agent,
	})
}

// handleUnregisterAgent removes an agent explicitly.
func (s *Server) handleUnregisterAgent(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]

	if err := s.registry.Unregister(agentID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.broadcastState()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"agent_id": agentID,
	})
}

// handleHeartbeat refreshes liveness and records the reported load.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(w, r)
	agentID := mux.Vars(r)["id"]

	var body struct {
		LoadScore float64 `json:"load_score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.tracker.Heartbeat(r.Context(), agentID, body.LoadScore); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handleDiscover returns the top scored candidates for a task shape.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(w, r)

	var body struct {
		TaskType     string   `json:"task_type"`
		Capabilities []string `json:"capabilities"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.TaskType == "" && len(body.Capabilities) == 0 {
		writeError(w, http.StatusBadRequest, "task_type or capabilities required")
		return
	}

	candidates := s.dispatcher.Candidates(body.TaskType, body.Capabilities, 5)
	agents := make([]*types.AgentCard, 0, len(candidates))
	for _, c := range candidates {
		agents = append(agents, c.Card)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"agents":  agents,
		"count":   len(agents),
	})
}

// handleDelegate creates and dispatches a task. NoSuitableAgent and
// DelegationFailed come back as success=false envelopes; the task row
// records the failure.
func (s *Server) handleDelegate(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(w, r)

	var req types.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.dispatcher.Dispatch(r.Context(), &req)
	switch {
	case err == nil:
		s.broadcastState()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":        true,
			"task_id":        result.Task.TaskID,
			"assigned_agent": result.AssignedAgent,
			"status":         result.Task.Status,
		})
	case errors.Is(err, dispatch.ErrNoSuitableAgent):
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"task_id": result.Task.TaskID,
			"error":   dispatch.NoSuitableAgentReason,
		})
	default:
		var derr *dispatch.DelegationError
		if errors.As(err, &derr) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": false,
				"task_id": result.Task.TaskID,
				"error":   derr.Error(),
			})
			return
		}
		var verr *tasks.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Reason)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleTaskStatus returns a task snapshot.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]
	if taskID == "" || len(taskID) > 100 {
		writeError(w, http.StatusBadRequest, "invalid task ID")
		return
	}

	task, err := s.tasksMgr.Get(taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"task":    task,
	})
}

// handleTaskCompletion finalizes a task from the worker's callback.
// Repeating a terminal transition is idempotent; conflicting terminal
// states surface as success=false.
func (s *Server) handleTaskCompletion(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(w, r)
	taskID := mux.Vars(r)["id"]

	var body struct {
		Success *bool                  `json:"success"`
		Result  map[string]interface{} `json:"result"`
		Error   string                 `json:"error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	succeeded := body.Success == nil || *body.Success
	var err error
	if succeeded {
		err = s.tasksMgr.Complete(taskID, body.Result)
	} else {
		errText := body.Error
		if errText == "" {
			errText = "unknown error"
		}
		err = s.tasksMgr.Fail(taskID, errText)
	}

	switch {
	case err == nil:
		s.broadcastState()
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	case errors.Is(err, tasks.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, tasks.ErrIllegalTransition):
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleHealth reports hub health and the online-agent count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	online := len(s.registry.List(types.StatusOnline))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"service":       "A2A Hub",
		"version":       Version,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"agents_online": online,
	})
}

// handleMetrics reports counts by status plus derived rates.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	agents := s.registry.List("")
	byStatus := map[types.AgentStatus]int{
		types.StatusOnline:  0,
		types.StatusOffline: 0,
		types.StatusBusy:    0,
		types.StatusError:   0,
	}
	for _, a := range agents {
		byStatus[a.Status]++
	}

	counts, err := s.tasksMgr.Counts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	completed := counts[types.TaskCompleted]
	terminal := completed + counts[types.TaskFailed] + counts[types.TaskTimeout]
	successRate := 0.0
	if terminal > 0 {
		successRate = float64(completed) / float64(terminal)
	}
	avgSeconds, err := s.tasksMgr.AverageCompletionSeconds()
	if err != nil {
		log.Printf("[SERVER] Failed to compute average completion: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents": map[string]interface{}{
			"total":   len(agents),
			"online":  byStatus[types.StatusOnline],
			"offline": byStatus[types.StatusOffline],
			"busy":    byStatus[types.StatusBusy],
			"error":   byStatus[types.StatusError],
		},
		"tasks":                  counts,
		"success_rate":           successRate,
		"avg_completion_seconds": avgSeconds,
		"system": map[string]interface{}{
			"uptime_seconds": int(time.Since(s.startTime).Seconds()),
			"version":        Version,
		},
	})
}

package nats

import "time"

// Subject pattern constants for NATS messaging
const (
	// SubjectAgentHeartbeat is the pattern for agent heartbeat messages.
	// Use fmt.Sprintf(SubjectAgentHeartbeat, agentID) to create specific subjects.
	SubjectAgentHeartbeat = "agent.%s.heartbeat"

	// SubjectAllHeartbeats subscribes to all agent heartbeats
	SubjectAllHeartbeats = "agent.*.heartbeat"

	// SubjectHubState carries hub state snapshots for operator consumers
	SubjectHubState = "hub.state"

	// SubjectHubAlert carries operator alerts (offline flips, delegation failures)
	SubjectHubAlert = "hub.alert"
)

// HeartbeatMessage represents an agent heartbeat carried over the bus.
// Equivalent to the HTTP heartbeat body plus the sender identity.
type HeartbeatMessage struct {
	AgentID   string    `json:"agent_id"`
	LoadScore float64   `json:"load_score"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertMessage is published on hub.alert.
type AlertMessage struct {
	Type      string    `json:"type"`
	AgentID   string    `json:"agent_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

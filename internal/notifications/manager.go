// Package notifications fans operator alerts (agent offline flips,
// delegation failures) out to the configured channels.
package notifications

import (
	"log"
	"time"

	"github.com/google/uuid"
)

// Severity levels for notifications
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Notification is one operator alert.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	AgentID   string    `json:"agent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Channel delivers notifications to one destination.
type Channel interface {
	Name() string
	Send(n Notification) error
}

// Manager routes notifications to all registered channels.
type Manager struct {
	channels []Channel
}

// NewManager creates an empty notification manager.
func NewManager() *Manager {
	return &Manager{}
}

// AddChannel registers a delivery channel.
func (m *Manager) AddChannel(c Channel) {
	m.channels = append(m.channels, c)
	log.Printf("[NOTIFY] Channel %s enabled", c.Name())
}

// Channels returns the registered channels.
func (m *Manager) Channels() []Channel {
	return m.channels
}

// Notify builds and delivers a notification to every channel. Delivery
// failures are logged, never propagated: alerting must not break the
// hub's request path.
func (m *Manager) Notify(title, message, severity, agentID string) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Title:     title,
		Message:   message,
		Severity:  severity,
		AgentID:   agentID,
		CreatedAt: time.Now(),
	}
	for _, c := range m.channels {
		if err := c.Send(n); err != nil {
			log.Printf("[NOTIFY] Channel %s failed: %v", c.Name(), err)
		}
	}
	return n
}

package types

import (
	"fmt"
	"time"
)

// HubConfig loaded from hub.yaml
type HubConfig struct {
	Port   int    `yaml:"port"`
	DBPath string `yaml:"db_path"`

	LivenessWindowSeconds  int `yaml:"liveness_window_seconds"`
	ProbeIntervalSeconds   int `yaml:"probe_interval_seconds"`
	SweepIntervalSeconds   int `yaml:"sweep_interval_seconds"`
	ProbeTimeoutSeconds    int `yaml:"probe_timeout_seconds"`
	DelegateTimeoutSeconds int `yaml:"delegate_timeout_seconds"`

	NATS          NATSConfig          `yaml:"nats"`
	Notifications NotificationsConfig `yaml:"notifications"`

	// SeedAgents are cards registered through the normal Register path
	// at boot; probe failures are logged and skipped.
	SeedAgents []AgentCard `yaml:"seed_agents"`
}

// NATSConfig controls the optional heartbeat bus.
type NATSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Embedded bool   `yaml:"embedded"`
	Port     int    `yaml:"port"`
}

// NotificationsConfig controls operator alerting channels.
type NotificationsConfig struct {
	Toast bool        `yaml:"toast"`
	Slack SlackConfig `yaml:"slack"`
}

// SlackConfig for the Slack webhook channel.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
}

// DefaultHubConfig returns sensible defaults: 30 s heartbeat cadence
// with a 3x liveness window.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Port:                   8200,
		DBPath:                 "data/hub.db",
		LivenessWindowSeconds:  90,
		ProbeIntervalSeconds:   30,
		SweepIntervalSeconds:   5,
		ProbeTimeoutSeconds:    5,
		DelegateTimeoutSeconds: 30,
		NATS: NATSConfig{
			URL:  "nats://127.0.0.1:4222",
			Port: 4222,
		},
	}
}

// Validate checks that all interval values are usable.
func (c HubConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.LivenessWindowSeconds < 1 {
		return fmt.Errorf("liveness_window_seconds must be at least 1")
	}
	if c.ProbeIntervalSeconds < 1 {
		return fmt.Errorf("probe_interval_seconds must be at least 1")
	}
	if c.SweepIntervalSeconds < 1 {
		return fmt.Errorf("sweep_interval_seconds must be at least 1")
	}
	if c.ProbeTimeoutSeconds < 1 {
		return fmt.Errorf("probe_timeout_seconds must be at least 1")
	}
	if c.DelegateTimeoutSeconds < 1 {
		return fmt.Errorf("delegate_timeout_seconds must be at least 1")
	}
	return nil
}

// LivenessWindow is the maximum heartbeat age before an agent is probed.
func (c HubConfig) LivenessWindow() time.Duration {
	return time.Duration(c.LivenessWindowSeconds) * time.Second
}

// ProbeInterval is the cadence of the background liveness prober.
func (c HubConfig) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSeconds) * time.Second
}

// SweepInterval is the cadence of the task timeout sweeper.
func (c HubConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// ProbeTimeout is the per-call health probe deadline.
func (c HubConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// DelegateTimeout is the per-call outbound delegation deadline.
func (c HubConfig) DelegateTimeout() time.Duration {
	return time.Duration(c.DelegateTimeoutSeconds) * time.Second
}

// WSMessage is the envelope pushed to operator websocket clients.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// WebSocket message type constants
const (
	WSTypeStateUpdate = "state_update"
	WSTypeAlert       = "alert"
)

// HubState is the snapshot broadcast to operator clients.
type HubState struct {
	Agents    []*AgentCard       `json:"agents"`
	TaskCount map[TaskStatus]int `json:"task_counts"`
	Timestamp time.Time          `json:"timestamp"`
}

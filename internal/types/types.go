package types

import (
	"fmt"
	"net/url"
	"sort"
	"time"
)

// AgentStatus represents the current status of an agent
type AgentStatus string

const (
	StatusOnline  AgentStatus = "online"
	StatusOffline AgentStatus = "offline"
	StatusBusy    AgentStatus = "busy"
	StatusError   AgentStatus = "error"
)

// ProtocolA2A is the delegation protocol every registered agent must speak.
const ProtocolA2A = "a2a"

// BusyLoadThreshold is the advisory load score at or above which a
// heartbeat flips an agent to busy.
const BusyLoadThreshold = 0.95

// AgentCard is the self-description a worker presents at registration.
type AgentCard struct {
	AgentID       string                 `json:"agent_id" yaml:"agent_id"`
	Name          string                 `json:"name" yaml:"name"`
	Version       string                 `json:"version" yaml:"version"`
	Capabilities  []string               `json:"capabilities" yaml:"capabilities"`
	Protocols     []string               `json:"protocols" yaml:"protocols"`
	Endpoints     map[string]string      `json:"endpoints" yaml:"endpoints"`
	Metadata      map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Status        AgentStatus            `json:"status" yaml:"-"`
	LastHeartbeat time.Time              `json:"last_heartbeat" yaml:"-"`
	LoadScore     float64                `json:"load_score" yaml:"-"`
	CreatedAt     time.Time              `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time              `json:"updated_at" yaml:"-"`
}

// Validate checks the card against the agent-card schema.
func (c *AgentCard) Validate() error {
	if c.AgentID == "" {
		return fmt.Errorf("agent_id is required")
	}
	if len(c.AgentID) > 100 {
		return fmt.Errorf("agent_id must be at most 100 characters")
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if len(c.Capabilities) == 0 {
		return fmt.Errorf("at least one capability is required")
	}
	hasA2A := false
	for _, p := range c.Protocols {
		if p == ProtocolA2A {
			hasA2A = true
			break
		}
	}
	if !hasA2A {
		return fmt.Errorf("protocols must include %q", ProtocolA2A)
	}
	for _, key := range []string{"a2a", "health"} {
		endpoint, ok := c.Endpoints[key]
		if !ok || endpoint == "" {
			return fmt.Errorf("endpoints.%s is required", key)
		}
		u, err := url.Parse(endpoint)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("endpoints.%s must be an http(s) URL", key)
		}
	}
	return nil
}

// Normalize deduplicates capabilities and clamps the load score so the
// stored card always satisfies the card invariants.
func (c *AgentCard) Normalize() {
	seen := make(map[string]bool, len(c.Capabilities))
	deduped := c.Capabilities[:0]
	for _, capability := range c.Capabilities {
		if capability == "" || seen[capability] {
			continue
		}
		seen[capability] = true
		deduped = append(deduped, capability)
	}
	sort.Strings(deduped)
	c.Capabilities = deduped
	c.LoadScore = ClampLoad(c.LoadScore)
}

// HasCapability reports whether the card advertises the capability.
func (c *AgentCard) HasCapability(capability string) bool {
	for _, have := range c.Capabilities {
		if have == capability {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand outside the registry lock.
func (c *AgentCard) Clone() *AgentCard {
	clone := *c
	clone.Capabilities = append([]string(nil), c.Capabilities...)
	clone.Protocols = append([]string(nil), c.Protocols...)
	clone.Endpoints = make(map[string]string, len(c.Endpoints))
	for k, v := range c.Endpoints {
		clone.Endpoints[k] = v
	}
	if c.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(c.Metadata))
		for k, v := range c.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// ClampLoad clamps a worker-reported load score to [0, 1].
func ClampLoad(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

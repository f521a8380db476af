// Package registry holds the in-memory mirror of registered agents and
// the inverted capability index. Both live behind one writer lock so
// they can never diverge; the sqlite store is written before memory on
// every mutation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/A2AHUB/internal/probe"
	"github.com/A2AHUB/internal/store"
	"github.com/A2AHUB/internal/types"
)

var (
	// ErrNotFound indicates an unknown agent_id.
	ErrNotFound = errors.New("agent not found")
	// ErrUnreachableAgent indicates the registration health probe failed.
	ErrUnreachableAgent = errors.New("agent health check failed")
)

// ValidationError wraps a card schema violation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Registry is the guarded agent pool plus capability index.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*types.AgentCard
	index  map[string]map[string]struct{} // capability -> agent ids

	store  *store.Store
	prober probe.Prober
}

// New creates an empty registry backed by the store.
func New(st *store.Store, prober probe.Prober) *Registry {
	return &Registry{
		agents: make(map[string]*types.AgentCard),
		index:  make(map[string]map[string]struct{}),
		store:  st,
		prober: prober,
	}
}

// Load rebuilds the agent map and capability index from the store.
// Called once at boot before the server accepts traffic.
func (r *Registry) Load() error {
	cards, err := r.store.ListAgents()
	if err != nil {
		return fmt.Errorf("failed to load agents: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, card := range cards {
		card.Normalize()
		r.agents[card.AgentID] = card
		r.reindexLocked(card)
	}
	log.Printf("[REGISTRY] Loaded %d persisted agents", len(cards))
	return nil
}

// Register validates the card, probes its health endpoint, persists it,
// and mirrors it into memory. Re-registering an agent_id overwrites
// prior state but preserves created_at.
func (r *Registry) Register(ctx context.Context, card *types.AgentCard) error {
	if err := card.Validate(); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	card.Normalize()

	if err := r.prober.Probe(ctx, card.Endpoints["health"]); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachableAgent, err)
	}

	now := time.Now()
	card.Status = types.StatusOnline
	card.LastHeartbeat = now
	card.UpdatedAt = now
	card.CreatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, exists := r.agents[card.AgentID]; exists {
		card.CreatedAt = prior.CreatedAt
	}

	if err := r.store.SaveAgent(card); err != nil {
		return fmt.Errorf("failed to persist agent %s: %w", card.AgentID, err)
	}

	stored := card.Clone()
	r.agents[stored.AgentID] = stored
	r.reindexLocked(stored)
	log.Printf("[REGISTRY] Agent %s registered (%d capabilities)", stored.AgentID, len(stored.Capabilities))
	return nil
}

// Get returns a copy of the card for agent_id.
func (r *Registry) Get(agentID string) (*types.AgentCard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	card, ok := r.agents[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	return card.Clone(), nil
}

// List returns copies of all cards, optionally filtered by status,
// ordered by agent_id.
func (r *Registry) List(status types.AgentStatus) []*types.AgentCard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cards := make([]*types.AgentCard, 0, len(r.agents))
	for _, card := range r.agents {
		if status != "" && card.Status != status {
			continue
		}
		cards = append(cards, card.Clone())
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].AgentID < cards[j].AgentID })
	return cards
}

// UpdateLoad clamps and records a load score without touching the
// heartbeat stamp.
func (r *Registry) UpdateLoad(agentID string, loadScore float64) error {
	loadScore = types.ClampLoad(loadScore)

	r.mu.Lock()
	defer r.mu.Unlock()

	card, ok := r.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	if err := r.store.UpdateAgentLoad(agentID, loadScore, card.LastHeartbeat); err != nil {
		return fmt.Errorf("failed to persist load for %s: %w", agentID, err)
	}
	card.LoadScore = loadScore
	return nil
}

// Touch records a heartbeat: clamps and stores the load score and
// stamps last_heartbeat.
func (r *Registry) Touch(agentID string, loadScore float64, at time.Time) error {
	loadScore = types.ClampLoad(loadScore)

	r.mu.Lock()
	defer r.mu.Unlock()

	card, ok := r.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	if err := r.store.UpdateAgentLoad(agentID, loadScore, at); err != nil {
		return fmt.Errorf("failed to persist heartbeat for %s: %w", agentID, err)
	}
	card.LoadScore = loadScore
	card.LastHeartbeat = at
	return nil
}

// RefreshHeartbeat stamps last_heartbeat after a successful probe.
func (r *Registry) RefreshHeartbeat(agentID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	card, ok := r.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	if err := r.store.TouchAgentHeartbeat(agentID, at); err != nil {
		return fmt.Errorf("failed to persist heartbeat for %s: %w", agentID, err)
	}
	card.LastHeartbeat = at
	return nil
}

// MarkStatus transitions an agent's status.
func (r *Registry) MarkStatus(agentID string, status types.AgentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	card, ok := r.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	if card.Status == status {
		return nil
	}
	if err := r.store.UpdateAgentStatus(agentID, status); err != nil {
		return fmt.Errorf("failed to persist status for %s: %w", agentID, err)
	}
	log.Printf("[REGISTRY] Agent %s: %s -> %s", agentID, card.Status, status)
	card.Status = status
	return nil
}

// Unregister removes an agent from the store, the map, and the index.
func (r *Registry) Unregister(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	card, ok := r.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	if err := r.store.DeleteAgent(agentID); err != nil {
		return fmt.Errorf("failed to delete agent %s: %w", agentID, err)
	}
	for _, capability := range card.Capabilities {
		r.removeFromIndexLocked(capability, agentID)
	}
	delete(r.agents, agentID)
	log.Printf("[REGISTRY] Agent %s unregistered", agentID)
	return nil
}

// Discover returns the ids of agents advertising any of the required
// capabilities, or the task type when none are given. No ranking; the
// dispatcher scores.
func (r *Registry) Discover(taskType string, requiredCaps []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	lookups := requiredCaps
	if len(lookups) == 0 {
		lookups = []string{taskType}
	}
	for _, capability := range lookups {
		for agentID := range r.index[capability] {
			seen[agentID] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for agentID := range seen {
		ids = append(ids, agentID)
	}
	sort.Strings(ids)
	return ids
}

// StaleAgents returns copies of agents whose last heartbeat is older
// than the liveness window.
func (r *Registry) StaleAgents(window time.Duration, now time.Time) []*types.AgentCard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []*types.AgentCard
	for _, card := range r.agents {
		if now.Sub(card.LastHeartbeat) > window {
			stale = append(stale, card.Clone())
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].AgentID < stale[j].AgentID })
	return stale
}

// Capabilities returns a snapshot of the inverted index, for tests and
// diagnostics.
func (r *Registry) Capabilities() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string][]string, len(r.index))
	for capability, ids := range r.index {
		list := make([]string, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		sort.Strings(list)
		snapshot[capability] = list
	}
	return snapshot
}

// reindexLocked rewrites the index slice for one agent. Must hold the
// write lock.
func (r *Registry) reindexLocked(card *types.AgentCard) {
	for capability := range r.index {
		r.removeFromIndexLocked(capability, card.AgentID)
	}
	for _, capability := range card.Capabilities {
		set, ok := r.index[capability]
		if !ok {
			set = make(map[string]struct{})
			r.index[capability] = set
		}
		set[card.AgentID] = struct{}{}
	}
}

func (r *Registry) removeFromIndexLocked(capability, agentID string) {
	set, ok := r.index[capability]
	if !ok {
		return
	}
	delete(set, agentID)
	if len(set) == 0 {
		delete(r.index, capability)
	}
}

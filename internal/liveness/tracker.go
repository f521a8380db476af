// Package liveness tracks agent health through heartbeats and a
// background probe loop. Offline agents are retained in the registry
// but excluded from discovery until a probe succeeds again.
package liveness

import (
	"context"
	"log"
	"time"

	"github.com/A2AHUB/internal/probe"
	"github.com/A2AHUB/internal/registry"
	"github.com/A2AHUB/internal/types"
)

// Tracker flips agent status based on heartbeat age and probe results.
type Tracker struct {
	registry *registry.Registry
	prober   probe.Prober
	window   time.Duration
	interval time.Duration

	// onOffline is invoked for operator alerting; may be nil.
	onOffline func(agentID string)
}

// NewTracker creates a tracker. window is the liveness window (max
// heartbeat age before probing); interval is the probe loop cadence.
func NewTracker(reg *registry.Registry, prober probe.Prober, window, interval time.Duration) *Tracker {
	return &Tracker{
		registry: reg,
		prober:   prober,
		window:   window,
		interval: interval,
	}
}

// SetOfflineHook installs a callback fired when an agent flips offline.
func (t *Tracker) SetOfflineHook(hook func(agentID string)) {
	t.onOffline = hook
}

// Heartbeat processes a worker heartbeat carrying a load score. The
// heartbeat stamp and load are always recorded; an offline agent comes
// back online only after a successful health probe. Load at or above
// the busy threshold flips the advisory busy status.
func (t *Tracker) Heartbeat(ctx context.Context, agentID string, loadScore float64) error {
	card, err := t.registry.Get(agentID)
	if err != nil {
		return err
	}

	now := time.Now()
	if err := t.registry.Touch(agentID, loadScore, now); err != nil {
		return err
	}
	loadScore = types.ClampLoad(loadScore)

	switch {
	case card.Status == types.StatusOffline:
		if perr := t.prober.Probe(ctx, card.Endpoints["health"]); perr != nil {
			log.Printf("[LIVENESS] Agent %s heartbeat received but probe still failing: %v", agentID, perr)
			return nil
		}
		return t.registry.MarkStatus(agentID, types.StatusOnline)
	case loadScore >= types.BusyLoadThreshold && card.Status == types.StatusOnline:
		return t.registry.MarkStatus(agentID, types.StatusBusy)
	case loadScore < types.BusyLoadThreshold && card.Status == types.StatusBusy:
		return t.registry.MarkStatus(agentID, types.StatusOnline)
	}
	return nil
}

// Run executes the probe loop until the context is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	log.Printf("[LIVENESS] Probe loop started (window: %v, interval: %v)", t.window, t.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[LIVENESS] Probe loop stopped")
			return
		case <-ticker.C:
			t.ProbeStale(ctx, time.Now())
		}
	}
}

// ProbeStale probes every agent whose heartbeat is older than the
// liveness window. Probe failure marks the agent offline; success
// refreshes the heartbeat and restores an offline agent to online.
func (t *Tracker) ProbeStale(ctx context.Context, now time.Time) {
	for _, card := range t.registry.StaleAgents(t.window, now) {
		if err := t.prober.Probe(ctx, card.Endpoints["health"]); err != nil {
			if card.Status == types.StatusOffline {
				continue
			}
			log.Printf("[LIVENESS] Agent %s failed probe, marking offline: %v", card.AgentID, err)
			if merr := t.registry.MarkStatus(card.AgentID, types.StatusOffline); merr != nil {
				log.Printf("[LIVENESS] Failed to mark %s offline: %v", card.AgentID, merr)
				continue
			}
			if t.onOffline != nil {
				t.onOffline(card.AgentID)
			}
			continue
		}

		if err := t.registry.RefreshHeartbeat(card.AgentID, time.Now()); err != nil {
			log.Printf("[LIVENESS] Failed to refresh heartbeat for %s: %v", card.AgentID, err)
			continue
		}
		if card.Status == types.StatusOffline {
			if err := t.registry.MarkStatus(card.AgentID, types.StatusOnline); err != nil {
				log.Printf("[LIVENESS] Failed to mark %s online: %v", card.AgentID, err)
			}
		}
	}
}

package liveness

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/A2AHUB/internal/registry"
	"github.com/A2AHUB/internal/store"
	"github.com/A2AHUB/internal/types"
)

type stubProber struct {
	err   error
	calls int
}

func (p *stubProber) Probe(ctx context.Context, healthURL string) error {
	p.calls++
	return p.err
}

func newTestTracker(t *testing.T, prober *stubProber) (*Tracker, *registry.Registry) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "hub.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := registry.New(st, prober)
	return NewTracker(reg, prober, 90*time.Second, 30*time.Second), reg
}

func register(t *testing.T, reg *registry.Registry, agentID string) {
	t.Helper()
	card := &types.AgentCard{
		AgentID:      agentID,
		Name:         agentID,
		Version:      "1.0.0",
		Capabilities: []string{"summary"},
		Protocols:    []string{"a2a"},
		Endpoints: map[string]string{
			"a2a":    "http://localhost:9001/a2a",
			"health": "http://localhost:9001/health",
		},
	}
	if err := reg.Register(context.Background(), card); err != nil {
		t.Fatalf("Register(%s) failed: %v", agentID, err)
	}
}

func TestHeartbeatUpdatesLoadAndStamp(t *testing.T) {
	tracker, reg := newTestTracker(t, &stubProber{})
	register(t, reg, "a1")

	before, _ := reg.Get("a1")
	time.Sleep(10 * time.Millisecond)

	if err := tracker.Heartbeat(context.Background(), "a1", 0.4); err != nil {
		t.Fatalf("Heartbeat() failed: %v", err)
	}

	got, _ := reg.Get("a1")
	if got.LoadScore != 0.4 {
		t.Errorf("load = %v, want 0.4", got.LoadScore)
	}
	if !got.LastHeartbeat.After(before.LastHeartbeat) {
		t.Error("last_heartbeat not refreshed")
	}
}

func TestHeartbeatClampsLoad(t *testing.T) {
	tracker, reg := newTestTracker(t, &stubProber{})
	register(t, reg, "a1")

	tests := []struct {
		in   float64
		want float64
	}{
		{in: -3, want: 0},
		{in: 0.5, want: 0.5},
		{in: 7, want: 1},
	}
	for _, tt := range tests {
		if err := tracker.Heartbeat(context.Background(), "a1", tt.in); err != nil {
			t.Fatalf("Heartbeat(%v) failed: %v", tt.in, err)
		}
		got, _ := reg.Get("a1")
		if got.LoadScore != tt.want {
			t.Errorf("Heartbeat(%v) stored %v, want %v", tt.in, got.LoadScore, tt.want)
		}
	}
}

func TestHeartbeatBusyFlip(t *testing.T) {
	tracker, reg := newTestTracker(t, &stubProber{})
	register(t, reg, "a1")

	if err := tracker.Heartbeat(context.Background(), "a1", 0.97); err != nil {
		t.Fatal(err)
	}
	got, _ := reg.Get("a1")
	if got.Status != types.StatusBusy {
		t.Errorf("status = %s, want busy at load 0.97", got.Status)
	}

	if err := tracker.Heartbeat(context.Background(), "a1", 0.2); err != nil {
		t.Fatal(err)
	}
	got, _ = reg.Get("a1")
	if got.Status != types.StatusOnline {
		t.Errorf("status = %s, want online after load drop", got.Status)
	}
}

func TestHeartbeatOfflineNeedsProbe(t *testing.T) {
	prober := &stubProber{}
	tracker, reg := newTestTracker(t, prober)
	register(t, reg, "a1")
	if err := reg.MarkStatus("a1", types.StatusOffline); err != nil {
		t.Fatal(err)
	}

	// Probe failing: heartbeat recorded but agent stays offline
	prober.err = fmt.Errorf("connection refused")
	if err := tracker.Heartbeat(context.Background(), "a1", 0.3); err != nil {
		t.Fatal(err)
	}
	got, _ := reg.Get("a1")
	if got.Status != types.StatusOffline {
		t.Errorf("status = %s, offline agent must not come back without probe", got.Status)
	}
	if got.LoadScore != 0.3 {
		t.Errorf("load = %v, heartbeat data should still be recorded", got.LoadScore)
	}

	// Probe succeeding: back online
	prober.err = nil
	if err := tracker.Heartbeat(context.Background(), "a1", 0.3); err != nil {
		t.Fatal(err)
	}
	got, _ = reg.Get("a1")
	if got.Status != types.StatusOnline {
		t.Errorf("status = %s, want online after successful probe", got.Status)
	}
}

func TestHeartbeatUnknownAgent(t *testing.T) {
	tracker, _ := newTestTracker(t, &stubProber{})

	err := tracker.Heartbeat(context.Background(), "missing", 0.5)
	if !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("Heartbeat(missing) = %v, want ErrNotFound", err)
	}
}

func TestProbeStaleMarksOffline(t *testing.T) {
	prober := &stubProber{}
	tracker, reg := newTestTracker(t, prober)
	register(t, reg, "a1")

	// Fresh heartbeat: no probe
	tracker.ProbeStale(context.Background(), time.Now())
	if prober.calls != 1 { // the registration probe
		t.Errorf("fresh agent probed: %d calls", prober.calls)
	}

	// Stale heartbeat and failing probe: offline
	if err := reg.Touch("a1", 0.1, time.Now().Add(-5*time.Minute)); err != nil {
		t.Fatal(err)
	}
	prober.err = fmt.Errorf("connection refused")
	var flipped string
	tracker.SetOfflineHook(func(agentID string) { flipped = agentID })

	tracker.ProbeStale(context.Background(), time.Now())
	got, _ := reg.Get("a1")
	if got.Status != types.StatusOffline {
		t.Errorf("status = %s, want offline after failed probe", got.Status)
	}
	if flipped != "a1" {
		t.Errorf("offline hook got %q, want a1", flipped)
	}
}

func TestProbeStaleRecoversOffline(t *testing.T) {
	prober := &stubProber{}
	tracker, reg := newTestTracker(t, prober)
	register(t, reg, "a1")

	if err := reg.Touch("a1", 0.1, time.Now().Add(-5*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := reg.MarkStatus("a1", types.StatusOffline); err != nil {
		t.Fatal(err)
	}

	// Successful probe restores the agent and refreshes its heartbeat
	tracker.ProbeStale(context.Background(), time.Now())
	got, _ := reg.Get("a1")
	if got.Status != types.StatusOnline {
		t.Errorf("status = %s, want online after successful probe", got.Status)
	}
	if time.Since(got.LastHeartbeat) > time.Minute {
		t.Error("last_heartbeat not refreshed by successful probe")
	}
}

func TestProbeStaleRefreshesHealthyAgent(t *testing.T) {
	prober := &stubProber{}
	tracker, reg := newTestTracker(t, prober)
	register(t, reg, "a1")

	stale := time.Now().Add(-5 * time.Minute)
	if err := reg.Touch("a1", 0.1, stale); err != nil {
		t.Fatal(err)
	}

	tracker.ProbeStale(context.Background(), time.Now())
	got, _ := reg.Get("a1")
	if got.Status != types.StatusOnline {
		t.Errorf("status = %s, healthy agent should stay online", got.Status)
	}
	if !got.LastHeartbeat.After(stale) {
		t.Error("heartbeat not refreshed after successful probe")
	}
}

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/A2AHUB/internal/registry"
	"github.com/A2AHUB/internal/store"
	"github.com/A2AHUB/internal/tasks"
	"github.com/A2AHUB/internal/types"
)

type okProber struct{}

func (okProber) Probe(ctx context.Context, healthURL string) error { return nil }

type fixture struct {
	registry   *registry.Registry
	tasks      *tasks.Manager
	dispatcher *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "hub.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := registry.New(st, okProber{})
	mgr := tasks.NewManager(st)
	return &fixture{
		registry:   reg,
		tasks:      mgr,
		dispatcher: New(reg, mgr, 5*time.Second, time.Second),
	}
}

func (f *fixture) register(t *testing.T, agentID, a2aURL string, load float64, capabilities ...string) {
	t.Helper()
	card := &types.AgentCard{
		AgentID:      agentID,
		Name:         agentID,
		Version:      "1.0.0",
		Capabilities: capabilities,
		Protocols:    []string{"a2a"},
		Endpoints: map[string]string{
			"a2a":    a2aURL,
			"health": a2aURL + "/health",
		},
	}
	if err := f.registry.Register(context.Background(), card); err != nil {
		t.Fatalf("Register(%s) failed: %v", agentID, err)
	}
	if load > 0 {
		if err := f.registry.UpdateLoad(agentID, load); err != nil {
			t.Fatalf("UpdateLoad(%s) failed: %v", agentID, err)
		}
	}
}

func summaryRequest() *types.TaskRequest {
	return &types.TaskRequest{
		TaskType:    "summary",
		Payload:     map[string]interface{}{"text": "hi"},
		RequesterID: "r1",
	}
}

func TestDispatchHappyPath(t *testing.T) {
	f := newFixture(t)

	var received types.DelegationPayload
	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := jsonDecode(r, &received); err != nil {
			t.Errorf("bad delegation payload: %v", err)
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer agent.Close()

	f.register(t, "A1", agent.URL, 0, "summary")

	result, err := f.dispatcher.Dispatch(context.Background(), summaryRequest())
	if err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	if result.AssignedAgent != "A1" {
		t.Errorf("assigned agent = %s, want A1", result.AssignedAgent)
	}

	task, err := f.tasks.Get(result.Task.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != types.TaskInProgress {
		t.Errorf("task status = %s, want in_progress (completion is async)", task.Status)
	}
	if received.TaskID != result.Task.TaskID || received.TaskType != "summary" {
		t.Errorf("delegation payload = %+v", received)
	}
	if received.Payload["text"] != "hi" {
		t.Errorf("payload not forwarded verbatim: %v", received.Payload)
	}
}

func TestDispatchNoSuitableAgent(t *testing.T) {
	f := newFixture(t)

	req := summaryRequest()
	req.TaskType = "translate"
	result, err := f.dispatcher.Dispatch(context.Background(), req)
	if !errors.Is(err, ErrNoSuitableAgent) {
		t.Fatalf("Dispatch() error = %v, want ErrNoSuitableAgent", err)
	}

	task, gerr := f.tasks.Get(result.Task.TaskID)
	if gerr != nil {
		t.Fatal(gerr)
	}
	if task.Status != types.TaskFailed {
		t.Errorf("task status = %s, want failed", task.Status)
	}
	if task.Error != NoSuitableAgentReason {
		t.Errorf("task error = %q, want %q", task.Error, NoSuitableAgentReason)
	}
}

func TestDispatchDelegationFailure(t *testing.T) {
	f := newFixture(t)

	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "worker exploded", http.StatusInternalServerError)
	}))
	defer agent.Close()

	f.register(t, "A1", agent.URL, 0, "summary")

	result, err := f.dispatcher.Dispatch(context.Background(), summaryRequest())
	var derr *DelegationError
	if !errors.As(err, &derr) {
		t.Fatalf("Dispatch() error = %v, want DelegationError", err)
	}
	if derr.AgentID != "A1" {
		t.Errorf("DelegationError.AgentID = %s", derr.AgentID)
	}

	task, _ := f.tasks.Get(result.Task.TaskID)
	if task.Status != types.TaskFailed {
		t.Errorf("task status = %s, want failed", task.Status)
	}
	if task.AssignedAgentID != "A1" {
		t.Errorf("assigned agent = %s, assignment precedes delegation", task.AssignedAgentID)
	}
}

func TestDispatchTransportError(t *testing.T) {
	f := newFixture(t)

	// Closed server: connection refused
	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := agent.URL
	agent.Close()

	f.register(t, "A1", url, 0, "summary")

	result, err := f.dispatcher.Dispatch(context.Background(), summaryRequest())
	var derr *DelegationError
	if !errors.As(err, &derr) {
		t.Fatalf("Dispatch() error = %v, want DelegationError", err)
	}

	task, _ := f.tasks.Get(result.Task.TaskID)
	if task.Status != types.TaskFailed || task.Error == "" {
		t.Errorf("task = %+v, want failed with error text", task)
	}
}

func TestScoreAgentCapabilityRatio(t *testing.T) {
	card := &types.AgentCard{
		AgentID:      "a",
		Capabilities: []string{"a", "b"},
		LoadScore:    0,
	}

	tests := []struct {
		name     string
		caps     []string
		taskType string
		want     float64
		ok       bool
	}{
		{name: "full match", caps: []string{"a", "b"}, want: 1.0, ok: true},
		{name: "partial match", caps: []string{"a", "b", "c"}, want: 2.0 / 3.0, ok: true},
		{name: "no match excluded", caps: []string{"x"}, ok: false},
		{name: "type routing advertised", taskType: "a", want: 1.0, ok: true},
		{name: "type routing not advertised", taskType: "z", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := scoreAgent(card, tt.taskType, tt.caps)
			if ok != tt.ok {
				t.Fatalf("scoreAgent() ok = %v, want %v", ok, tt.ok)
			}
			if ok && !closeEnough(got, tt.want) {
				t.Errorf("scoreAgent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCandidatesPrefersBetterCapabilityMatch(t *testing.T) {
	f := newFixture(t)

	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": true}`))
	}))
	defer agent.Close()

	f.register(t, "A1", agent.URL, 0, "a", "b")
	f.register(t, "A2", agent.URL, 0, "a", "b", "c")

	candidates := f.dispatcher.Candidates("", []string{"a", "b", "c"}, 0)
	if len(candidates) != 2 {
		t.Fatalf("Candidates() = %d, want 2", len(candidates))
	}
	if candidates[0].Card.AgentID != "A2" {
		t.Errorf("best candidate = %s, want A2 (match ratio 1.0 vs 0.66)", candidates[0].Card.AgentID)
	}
}

func TestCandidatesPrefersIdleAgent(t *testing.T) {
	f := newFixture(t)

	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": true}`))
	}))
	defer agent.Close()

	f.register(t, "A1", agent.URL, 0.8, "summary")
	f.register(t, "A2", agent.URL, 0.1, "summary")

	candidates := f.dispatcher.Candidates("summary", nil, 0)
	if len(candidates) != 2 || candidates[0].Card.AgentID != "A2" {
		t.Errorf("load-weighted selection picked %v, want A2 first", candidates)
	}
}

func TestCandidatesExcludesOffline(t *testing.T) {
	f := newFixture(t)

	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": true}`))
	}))
	defer agent.Close()

	f.register(t, "A1", agent.URL, 0, "summary")
	f.register(t, "A2", agent.URL, 0, "summary")
	if err := f.registry.MarkStatus("A1", types.StatusOffline); err != nil {
		t.Fatal(err)
	}

	candidates := f.dispatcher.Candidates("summary", nil, 0)
	if len(candidates) != 1 || candidates[0].Card.AgentID != "A2" {
		t.Errorf("offline agent not excluded: %v", candidates)
	}
}

func TestCandidatesTieBreakDeterministic(t *testing.T) {
	f := newFixture(t)

	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": true}`))
	}))
	defer agent.Close()

	// Same capabilities and load; heartbeats pinned to force the
	// lexical tie-break after the heartbeat tie-break.
	f.register(t, "B", agent.URL, 0, "summary")
	f.register(t, "A", agent.URL, 0, "summary")
	pinned := time.Now().Add(-time.Second)
	if err := f.registry.Touch("A", 0, pinned); err != nil {
		t.Fatal(err)
	}
	if err := f.registry.Touch("B", 0, pinned); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		candidates := f.dispatcher.Candidates("summary", nil, 0)
		if len(candidates) != 2 {
			t.Fatalf("Candidates() = %d, want 2", len(candidates))
		}
		if candidates[0].Card.AgentID != "A" || candidates[1].Card.AgentID != "B" {
			t.Fatalf("tie-break not deterministic: [%s, %s]",
				candidates[0].Card.AgentID, candidates[1].Card.AgentID)
		}
	}
}

func TestCandidatesLimit(t *testing.T) {
	f := newFixture(t)

	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": true}`))
	}))
	defer agent.Close()

	for _, id := range []string{"A1", "A2", "A3", "A4", "A5", "A6", "A7"} {
		f.register(t, id, agent.URL, 0, "summary")
	}

	candidates := f.dispatcher.Candidates("summary", nil, 5)
	if len(candidates) != 5 {
		t.Errorf("Candidates(limit=5) = %d", len(candidates))
	}
}

func TestSweepOnceTimesOutExpiredTasks(t *testing.T) {
	f := newFixture(t)

	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": true}`))
	}))
	defer agent.Close()

	f.register(t, "A1", agent.URL, 0, "summary")

	req := summaryRequest()
	req.Timeout = 2
	result, err := f.dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}

	// Before the deadline nothing happens
	f.dispatcher.sweepOnce(time.Now())
	task, _ := f.tasks.Get(result.Task.TaskID)
	if task.Status != types.TaskInProgress {
		t.Fatalf("task swept before deadline: %s", task.Status)
	}

	// Past the deadline the sweeper times the task out
	f.dispatcher.sweepOnce(time.Now().Add(3 * time.Second))
	task, _ = f.tasks.Get(result.Task.TaskID)
	if task.Status != types.TaskTimeout {
		t.Errorf("task status = %s, want timeout", task.Status)
	}
	if task.Error == "" {
		t.Error("timeout should record an error string")
	}
}

func closeEnough(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}

func jsonDecode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

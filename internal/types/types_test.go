package types

import (
	"testing"
	"time"
)

func validCard() *AgentCard {
	return &AgentCard{
		AgentID:      "agent-1",
		Name:         "Test Agent",
		Version:      "1.0.0",
		Capabilities: []string{"summary"},
		Protocols:    []string{"a2a"},
		Endpoints: map[string]string{
			"a2a":    "http://localhost:9001/a2a",
			"health": "http://localhost:9001/health",
		},
	}
}

func TestAgentCardValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AgentCard)
		wantErr bool
	}{
		{name: "valid card", mutate: func(c *AgentCard) {}, wantErr: false},
		{name: "missing agent_id", mutate: func(c *AgentCard) { c.AgentID = "" }, wantErr: true},
		{name: "missing name", mutate: func(c *AgentCard) { c.Name = "" }, wantErr: true},
		{name: "missing version", mutate: func(c *AgentCard) { c.Version = "" }, wantErr: true},
		{name: "no capabilities", mutate: func(c *AgentCard) { c.Capabilities = nil }, wantErr: true},
		{name: "missing a2a protocol", mutate: func(c *AgentCard) { c.Protocols = []string{"mcp"} }, wantErr: true},
		{name: "extra protocols ok", mutate: func(c *AgentCard) { c.Protocols = []string{"mcp", "a2a"} }, wantErr: false},
		{name: "missing a2a endpoint", mutate: func(c *AgentCard) { delete(c.Endpoints, "a2a") }, wantErr: true},
		{name: "missing health endpoint", mutate: func(c *AgentCard) { delete(c.Endpoints, "health") }, wantErr: true},
		{name: "malformed endpoint", mutate: func(c *AgentCard) { c.Endpoints["health"] = "not-a-url" }, wantErr: true},
		{name: "ftp endpoint rejected", mutate: func(c *AgentCard) { c.Endpoints["a2a"] = "ftp://host/x" }, wantErr: true},
		{name: "https endpoint ok", mutate: func(c *AgentCard) { c.Endpoints["a2a"] = "https://host/a2a" }, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := validCard()
			tt.mutate(card)
			err := card.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAgentCardNormalize(t *testing.T) {
	card := validCard()
	card.Capabilities = []string{"b", "a", "b", "", "a"}
	card.LoadScore = 1.7
	card.Normalize()

	if len(card.Capabilities) != 2 || card.Capabilities[0] != "a" || card.Capabilities[1] != "b" {
		t.Errorf("Normalize() capabilities = %v, want [a b]", card.Capabilities)
	}
	if card.LoadScore != 1.0 {
		t.Errorf("Normalize() load = %v, want 1.0", card.LoadScore)
	}
}

func TestClampLoad(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: -0.5, want: 0},
		{in: 0, want: 0},
		{in: 0.42, want: 0.42},
		{in: 1, want: 1},
		{in: 3.2, want: 1},
	}
	for _, tt := range tests {
		if got := ClampLoad(tt.in); got != tt.want {
			t.Errorf("ClampLoad(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAgentCardClone(t *testing.T) {
	card := validCard()
	card.Metadata = map[string]interface{}{"specialization": "text"}
	clone := card.Clone()

	clone.Capabilities[0] = "changed"
	clone.Endpoints["a2a"] = "http://other/a2a"
	clone.Metadata["specialization"] = "changed"

	if card.Capabilities[0] != "summary" {
		t.Error("Clone() shares capabilities slice")
	}
	if card.Endpoints["a2a"] != "http://localhost:9001/a2a" {
		t.Error("Clone() shares endpoints map")
	}
	if card.Metadata["specialization"] != "text" {
		t.Error("Clone() shares metadata map")
	}
}

func TestTaskRequestValidate(t *testing.T) {
	valid := func() *TaskRequest {
		return &TaskRequest{
			TaskType:    "summary",
			Payload:     map[string]interface{}{"text": "hi"},
			RequesterID: "r1",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*TaskRequest)
		wantErr bool
	}{
		{name: "valid request", mutate: func(r *TaskRequest) {}, wantErr: false},
		{name: "missing task_type", mutate: func(r *TaskRequest) { r.TaskType = "" }, wantErr: true},
		{name: "missing payload", mutate: func(r *TaskRequest) { r.Payload = nil }, wantErr: true},
		{name: "missing requester", mutate: func(r *TaskRequest) { r.RequesterID = "" }, wantErr: true},
		{name: "priority too low", mutate: func(r *TaskRequest) { r.Priority = -1 }, wantErr: true},
		{name: "priority too high", mutate: func(r *TaskRequest) { r.Priority = 11 }, wantErr: true},
		{name: "priority in range", mutate: func(r *TaskRequest) { r.Priority = 10 }, wantErr: false},
		{name: "negative timeout", mutate: func(r *TaskRequest) { r.Timeout = -5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			err := req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTaskTransitions(t *testing.T) {
	tests := []struct {
		from    TaskStatus
		to      TaskStatus
		allowed bool
	}{
		{from: TaskPending, to: TaskInProgress, allowed: true},
		{from: TaskPending, to: TaskFailed, allowed: true},
		{from: TaskPending, to: TaskCompleted, allowed: false},
		{from: TaskPending, to: TaskTimeout, allowed: false},
		{from: TaskInProgress, to: TaskCompleted, allowed: true},
		{from: TaskInProgress, to: TaskFailed, allowed: true},
		{from: TaskInProgress, to: TaskTimeout, allowed: true},
		{from: TaskInProgress, to: TaskPending, allowed: false},
		{from: TaskCompleted, to: TaskFailed, allowed: false},
		{from: TaskCompleted, to: TaskInProgress, allowed: false},
		{from: TaskFailed, to: TaskCompleted, allowed: false},
		{from: TaskTimeout, to: TaskInProgress, allowed: false},
	}

	for _, tt := range tests {
		task := &Task{Status: tt.from}
		err := task.TransitionTo(tt.to)
		if (err == nil) != tt.allowed {
			t.Errorf("TransitionTo(%s -> %s) error = %v, allowed %v", tt.from, tt.to, err, tt.allowed)
		}
	}
}

func TestTaskIsTerminal(t *testing.T) {
	for status, terminal := range map[TaskStatus]bool{
		TaskPending:    false,
		TaskInProgress: false,
		TaskCompleted:  true,
		TaskFailed:     true,
		TaskTimeout:    true,
	} {
		task := &Task{Status: status}
		if task.IsTerminal() != terminal {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, task.IsTerminal(), terminal)
		}
	}
}

func TestTaskDeadline(t *testing.T) {
	created := time.Now()
	task := &Task{CreatedAt: created, Timeout: 120}
	want := created.Add(2 * time.Minute)
	if !task.Deadline().Equal(want) {
		t.Errorf("Deadline() = %v, want %v", task.Deadline(), want)
	}
}

func TestHubConfigValidate(t *testing.T) {
	config := DefaultHubConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	config.Port = 0
	if err := config.Validate(); err == nil {
		t.Error("expected error for port 0")
	}

	config = DefaultHubConfig()
	config.LivenessWindowSeconds = 0
	if err := config.Validate(); err == nil {
		t.Error("expected error for zero liveness window")
	}
}

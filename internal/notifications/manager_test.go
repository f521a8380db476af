package notifications

import (
	"fmt"
	"testing"
)

type recordingChannel struct {
	name string
	sent []Notification
	err  error
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(n Notification) error {
	c.sent = append(c.sent, n)
	return c.err
}

func TestNotifyFansOutToAllChannels(t *testing.T) {
	mgr := NewManager()
	first := &recordingChannel{name: "first"}
	second := &recordingChannel{name: "second"}
	mgr.AddChannel(first)
	mgr.AddChannel(second)

	n := mgr.Notify("Agent offline", "Agent a1 failed its health probe", SeverityWarning, "a1")

	if n.ID == "" {
		t.Error("notification id not generated")
	}
	if n.CreatedAt.IsZero() {
		t.Error("notification timestamp not stamped")
	}
	for _, c := range []*recordingChannel{first, second} {
		if len(c.sent) != 1 {
			t.Fatalf("channel %s received %d notifications, want 1", c.name, len(c.sent))
		}
		if c.sent[0].Title != "Agent offline" || c.sent[0].AgentID != "a1" {
			t.Errorf("channel %s got %+v", c.name, c.sent[0])
		}
	}
}

func TestNotifySurvivesChannelFailure(t *testing.T) {
	mgr := NewManager()
	failing := &recordingChannel{name: "failing", err: fmt.Errorf("webhook down")}
	working := &recordingChannel{name: "working"}
	mgr.AddChannel(failing)
	mgr.AddChannel(working)

	mgr.Notify("Delegation failed", "Task t1 to agent a1", SeverityWarning, "a1")

	if len(working.sent) != 1 {
		t.Errorf("working channel skipped after a failing one: %d sent", len(working.sent))
	}
}

func TestNotifyWithNoChannels(t *testing.T) {
	mgr := NewManager()
	n := mgr.Notify("Title", "Message", SeverityInfo, "")
	if n.Severity != SeverityInfo {
		t.Errorf("severity = %s", n.Severity)
	}
}

package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	natslib "github.com/A2AHUB/internal/nats"
	"github.com/A2AHUB/internal/types"
	nc "github.com/nats-io/nats.go"
)

// NATSBridge connects the heartbeat bus to the liveness tracker so
// agents on NATS can report load without an HTTP round trip, and
// mirrors state snapshots onto the bus for operator consumers.
type NATSBridge struct {
	server *Server
	client *natslib.Client

	heartbeatSub *nc.Subscription
}

// NewNATSBridge creates a bridge between NATS and the hub.
func NewNATSBridge(s *Server, client *natslib.Client) *NATSBridge {
	return &NATSBridge{
		server: s,
		client: client,
	}
}

// Start subscribes to agent heartbeat subjects.
func (b *NATSBridge) Start() error {
	sub, err := b.client.Subscribe(natslib.SubjectAllHeartbeats, b.handleHeartbeat)
	if err != nil {
		return err
	}
	b.heartbeatSub = sub
	log.Printf("[NATS-BRIDGE] Subscribed to %s", natslib.SubjectAllHeartbeats)
	return nil
}

// Stop terminates message processing.
func (b *NATSBridge) Stop() {
	if b.heartbeatSub != nil {
		b.heartbeatSub.Unsubscribe()
		b.heartbeatSub = nil
	}
}

// handleHeartbeat processes agent heartbeats via NATS. Subscription
// callbacks run on the NATS dispatch goroutine; errors are logged and
// never propagated back to the bus.
func (b *NATSBridge) handleHeartbeat(msg *natslib.Message) {
	var hb natslib.HeartbeatMessage
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		log.Printf("[NATS-BRIDGE] Bad heartbeat payload on %s: %v", msg.Subject, err)
		return
	}
	if hb.AgentID == "" {
		log.Printf("[NATS-BRIDGE] Heartbeat without agent_id on %s", msg.Subject)
		return
	}

	ctx, cancel := heartbeatContext()
	defer cancel()
	if err := b.server.tracker.Heartbeat(ctx, hb.AgentID, hb.LoadScore); err != nil {
		log.Printf("[NATS-BRIDGE] Heartbeat for %s failed: %v", hb.AgentID, err)
		return
	}
	b.server.broadcastState()
}

// heartbeatContext bounds the probe a heartbeat may trigger for an
// offline agent.
func heartbeatContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// PublishState mirrors a state snapshot onto the bus.
func (b *NATSBridge) PublishState(state *types.HubState) {
	if err := b.client.PublishJSON(natslib.SubjectHubState, state); err != nil {
		log.Printf("[NATS-BRIDGE] Failed to publish state: %v", err)
	}
}

// PublishAlert mirrors an operator alert onto the bus.
func (b *NATSBridge) PublishAlert(alertType, agentID, taskID, message string) {
	alert := natslib.AlertMessage{
		Type:      alertType,
		AgentID:   agentID,
		TaskID:    taskID,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err := b.client.PublishJSON(natslib.SubjectHubAlert, alert); err != nil {
		log.Printf("[NATS-BRIDGE] Failed to publish alert: %v", err)
	}
}

package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/A2AHUB/internal/dispatch"
	"github.com/A2AHUB/internal/liveness"
	natslib "github.com/A2AHUB/internal/nats"
	"github.com/A2AHUB/internal/notifications"
	"github.com/A2AHUB/internal/registry"
	"github.com/A2AHUB/internal/tasks"
	"github.com/A2AHUB/internal/types"
	"github.com/gorilla/mux"
)

// Version reported by the health endpoint.
const Version = "1.0.0"

// Server is the hub's HTTP surface: JSON plumbing over the registry,
// task manager, and dispatcher.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	hub        *Hub

	registry   *registry.Registry
	tasksMgr   *tasks.Manager
	dispatcher *dispatch.Dispatcher
	tracker    *liveness.Tracker
	notifier   *notifications.Manager

	bridge *NATSBridge

	startTime time.Time
}

// NewServer wires the components behind the HTTP surface.
func NewServer(
	reg *registry.Registry,
	mgr *tasks.Manager,
	disp *dispatch.Dispatcher,
	tracker *liveness.Tracker,
	notifier *notifications.Manager,
) *Server {
	s := &Server{
		hub:        NewHub(),
		registry:   reg,
		tasksMgr:   mgr,
		dispatcher: disp,
		tracker:    tracker,
		notifier:   notifier,
		startTime:  time.Now(),
	}

	// Operator alerting hooks
	tracker.SetOfflineHook(func(agentID string) {
		s.notifier.Notify("Agent offline", fmt.Sprintf("Agent %s failed its health probe", agentID),
			notifications.SeverityWarning, agentID)
		if s.bridge != nil {
			s.bridge.PublishAlert("agent_offline", agentID, "", "health probe failed")
		}
		s.broadcastState()
	})
	disp.SetFailureHook(func(taskID, agentID, reason string) {
		s.notifier.Notify("Delegation failed",
			fmt.Sprintf("Task %s to agent %s: %s", taskID, agentID, reason),
			notifications.SeverityWarning, agentID)
		if s.bridge != nil {
			s.bridge.PublishAlert("delegation_failed", agentID, taskID, reason)
		}
	})

	s.setupRoutes()
	return s
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	s.router.Use(SecurityHeadersMiddleware)

	// Agent management
	s.router.HandleFunc("/agents/register", s.handleRegisterAgent).Methods("POST")
	s.router.HandleFunc("/agents", s.handleListAgents).Methods("GET")
	s.router.HandleFunc("/agents/{id}", s.handleGetAgent).Methods("GET")
	s.router.HandleFunc("/agents/{id}", s.handleUnregisterAgent).Methods("DELETE")
	s.router.HandleFunc("/agents/{id}/heartbeat", s.handleHeartbeat).Methods("POST")

	// A2A protocol
	s.router.HandleFunc("/a2a/discover", s.handleDiscover).Methods("POST")
	s.router.HandleFunc("/a2a/delegate", s.handleDelegate).Methods("POST")
	s.router.HandleFunc("/a2a/task/{id}", s.handleTaskStatus).Methods("GET")
	s.router.HandleFunc("/a2a/task/{id}/complete", s.handleTaskCompletion).Methods("POST")

	// System
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	// Operator state stream
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// AttachNATS connects the heartbeat bus bridge.
func (s *Server) AttachNATS(client *natslib.Client) error {
	s.bridge = NewNATSBridge(s, client)
	return s.bridge.Start()
}

// Start runs the websocket hub and binds the HTTP listener. Blocks
// until the server stops.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("[SERVER] Listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains inbound handlers. Background loops are cancelled by
// the caller after this returns so in-flight requests still see them.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.bridge != nil {
		s.bridge.Stop()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// broadcastState pushes a fresh hub snapshot to websocket clients and
// the bus.
func (s *Server) broadcastState() {
	state := s.currentState()
	s.hub.BroadcastJSON(types.WSMessage{
		Type: types.WSTypeStateUpdate,
		Data: state,
	})
	if s.bridge != nil {
		s.bridge.PublishState(state)
	}
}

func (s *Server) currentState() *types.HubState {
	counts, err := s.tasksMgr.Counts()
	if err != nil {
		log.Printf("[SERVER] Failed to read task counts: %v", err)
		counts = map[types.TaskStatus]int{}
	}
	return &types.HubState{
		Agents:    s.registry.List(""),
		TaskCount: counts,
		Timestamp: time.Now(),
	}
}

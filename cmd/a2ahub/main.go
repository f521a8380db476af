package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/A2AHUB/internal/dispatch"
	"github.com/A2AHUB/internal/instance"
	"github.com/A2AHUB/internal/liveness"
	natslib "github.com/A2AHUB/internal/nats"
	"github.com/A2AHUB/internal/notifications"
	"github.com/A2AHUB/internal/probe"
	"github.com/A2AHUB/internal/registry"
	"github.com/A2AHUB/internal/server"
	"github.com/A2AHUB/internal/store"
	"github.com/A2AHUB/internal/tasks"
	"github.com/A2AHUB/internal/types"
	"gopkg.in/yaml.v3"
)

func main() {
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	configPath := flag.String("config", "configs/hub.yaml", "Hub configuration file")
	dbPath := flag.String("db", "", "Database path (overrides config)")
	flag.Parse()

	config, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		config.Port = *port
	}
	if *dbPath != "" {
		config.DBPath = *dbPath
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	printBanner()

	// Single-instance guard
	pidPath := filepath.Join(filepath.Dir(config.DBPath), "a2ahub.pid")
	instanceMgr := instance.NewManager(pidPath)
	if existing := instanceMgr.CheckExisting(); existing != nil {
		fmt.Fprintf(os.Stderr, "Another hub instance is running (PID %d, port %d)\n", existing.PID, existing.Port)
		os.Exit(1)
	}

	// Pre-flight port check
	if !instance.IsPortAvailable(config.Port) {
		fmt.Fprintf(os.Stderr, "Port %d is already in use\n", config.Port)
		os.Exit(1)
	}

	// Persistent store: source of truth on restart
	st, err := store.Open(config.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()
	fmt.Printf("  Store opened at %s\n", config.DBPath)

	// Components
	prober := probe.NewHTTPProber(config.ProbeTimeout())
	reg := registry.New(st, prober)
	if err := reg.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load registry: %v\n", err)
		os.Exit(1)
	}
	mgr := tasks.NewManager(st)
	if err := mgr.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load tasks: %v\n", err)
		os.Exit(1)
	}
	tracker := liveness.NewTracker(reg, prober, config.LivenessWindow(), config.ProbeInterval())
	dispatcher := dispatch.New(reg, mgr, config.DelegateTimeout(), config.SweepInterval())

	notifier := notifications.NewManager()
	notifier.AddChannel(notifications.NewTerminalNotifier())
	if config.Notifications.Toast {
		notifier.AddChannel(notifications.NewToastNotifier("A2AHUB"))
	}
	if config.Notifications.Slack.Enabled && config.Notifications.Slack.WebhookURL != "" {
		notifier.AddChannel(notifications.NewSlackNotifier(config.Notifications.Slack))
	}

	srv := server.NewServer(reg, mgr, dispatcher, tracker, notifier)
	fmt.Println("  Components initialized")

	// Optional NATS heartbeat bus
	var embeddedNATS *natslib.EmbeddedServer
	var natsClient *natslib.Client
	if config.NATS.Enabled {
		natsURL := config.NATS.URL
		if config.NATS.Embedded {
			embeddedNATS, err = natslib.NewEmbeddedServer(natslib.EmbeddedServerConfig{Port: config.NATS.Port})
			if err == nil {
				err = embeddedNATS.Start()
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: Failed to start embedded NATS: %v\n", err)
				embeddedNATS = nil
			} else {
				natsURL = embeddedNATS.URL()
			}
		}
		if natsClient, err = natslib.NewClient(natsURL); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: NATS unavailable, continuing without bus: %v\n", err)
		} else if err := srv.AttachNATS(natsClient); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to attach NATS bridge: %v\n", err)
		}
	}

	// Background loops
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tracker.Run(ctx)
	go dispatcher.RunSweeper(ctx)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(fmt.Sprintf(":%d", config.Port))
	}()

	// Wait for the server to bind, then record the PID
	ready := false
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		select {
		case err := <-serverErr:
			fmt.Fprintf(os.Stderr, "Server failed to start: %v\n", err)
			os.Exit(1)
		default:
		}
		if instance.HealthCheck(config.Port) == nil {
			ready = true
			break
		}
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "Server failed to become ready within timeout\n")
		os.Exit(1)
	}
	if err := instanceMgr.WritePIDFile(os.Getpid(), config.Port); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to write PID file: %v\n", err)
	}
	fmt.Printf("  Hub ready at http://localhost:%d\n\n", config.Port)

	// Seed agents go through the normal registration path, probe
	// included; workers that are not up yet are skipped.
	registerSeedAgents(ctx, reg, config.SeedAgents)

	select {
	case err := <-serverErr:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		}
	case <-shutdown:
		fmt.Println()
		fmt.Println("Shutting down (signal received)...")
	}

	// Drain inbound handlers before stopping the background loops
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
	}
	cancel()

	if natsClient != nil {
		natsClient.Close()
	}
	if embeddedNATS != nil {
		embeddedNATS.Shutdown()
	}

	instanceMgr.RemovePIDFile()
	fmt.Println("Goodbye!")
}

// loadConfig reads hub.yaml over the defaults. A missing file is not
// an error; defaults apply.
func loadConfig(path string) (types.HubConfig, error) {
	config := types.DefaultHubConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return config, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, err
	}
	return config, nil
}

func registerSeedAgents(ctx context.Context, reg *registry.Registry, seeds []types.AgentCard) {
	for i := range seeds {
		card := seeds[i]
		if err := reg.Register(ctx, &card); err != nil {
			fmt.Fprintf(os.Stderr, "  Seed agent %s skipped: %v\n", card.AgentID, err)
			continue
		}
		fmt.Printf("  Seed agent %s registered\n", card.AgentID)
	}
}

func printBanner() {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║                   A2A HUB v1.0.0                      ║")
	fmt.Println("  ║          Agent Registry & Task Dispatcher             ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()
}

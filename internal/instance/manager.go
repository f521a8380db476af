// Package instance guards against concurrent hub instances through a
// PID file and provides boot-time port checks.
package instance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// PIDInfo is the contents of the PID file.
type PIDInfo struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartTime time.Time `json:"start_time"`
}

// Manager owns the PID file lifecycle.
type Manager struct {
	pidPath string
}

// NewManager creates a manager for the PID file at pidPath.
func NewManager(pidPath string) *Manager {
	return &Manager{pidPath: pidPath}
}

// CheckExisting returns info about a previously recorded instance, or
// nil when no PID file exists or it is unreadable (stale files from a
// crashed hub are treated as absent).
func (m *Manager) CheckExisting() *PIDInfo {
	data, err := os.ReadFile(m.pidPath)
	if err != nil {
		return nil
	}

	var info PIDInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil
	}

	// PID liveness check: signal 0 probes without killing
	process, err := os.FindProcess(info.PID)
	if err != nil {
		return nil
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return nil
	}
	return &info
}

// WritePIDFile records this instance after the server has bound.
func (m *Manager) WritePIDFile(pid, port int) error {
	dir := filepath.Dir(m.pidPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create pid directory: %w", err)
	}

	data, err := json.MarshalIndent(PIDInfo{
		PID:       pid,
		Port:      port,
		StartTime: time.Now(),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.pidPath, data, 0644)
}

// RemovePIDFile deletes the PID file during shutdown.
func (m *Manager) RemovePIDFile() {
	os.Remove(m.pidPath)
}

package notifications

import "log"

// TerminalNotifier writes notifications to the server log. Always
// registered so alerts are visible even with no external channel
// configured.
type TerminalNotifier struct{}

// NewTerminalNotifier creates a terminal channel.
func NewTerminalNotifier() *TerminalNotifier {
	return &TerminalNotifier{}
}

// Name returns the notifier name
func (t *TerminalNotifier) Name() string {
	return "terminal"
}

// Send logs the notification.
func (t *TerminalNotifier) Send(n Notification) error {
	log.Printf("[ALERT] %s: %s (%s)", n.Title, n.Message, n.Severity)
	return nil
}

//go:build !windows

package notifications

import "fmt"

// ToastNotifier handles Windows toast notifications
type ToastNotifier struct {
	appID string
}

// NewToastNotifier creates a new toast notifier
func NewToastNotifier(appID string) *ToastNotifier {
	if appID == "" {
		appID = "A2AHUB"
	}
	return &ToastNotifier{appID: appID}
}

// Name returns the notifier name
func (t *ToastNotifier) Name() string {
	return "toast"
}

// Send displays a Windows toast notification
func (t *ToastNotifier) Send(n Notification) error {
	return fmt.Errorf("toast notifications only supported on Windows")
}

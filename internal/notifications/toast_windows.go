//go:build windows

package notifications

import (
	"github.com/go-toast/toast"
)

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
	notification := toast.Notification{
		AppID:   t.appID,
		Title:   n.Title,
		Message: n.Message,
		Audio:   toast.Default,
	}
	return notification.Push()
}

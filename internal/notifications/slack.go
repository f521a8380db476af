package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/A2AHUB/internal/types"
)

// SlackNotifier sends notifications to Slack via webhooks
type SlackNotifier struct {
	config types.SlackConfig
	client *http.Client
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(config types.SlackConfig) *SlackNotifier {
	return &SlackNotifier{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the notifier name
func (s *SlackNotifier) Name() string {
	return "slack"
}

// Send sends a notification to Slack
func (s *SlackNotifier) Send(n Notification) error {
	if s.config.WebhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	color := "good"
	switch n.Severity {
	case SeverityCritical:
		color = "danger"
	case SeverityWarning:
		color = "warning"
	}

	payload := map[string]interface{}{
		"username": s.config.Username,
		"channel":  s.config.Channel,
		"attachments": []map[string]interface{}{
			{
				"color": color,
				"title": n.Title,
				"text":  n.Message,
				"fields": []map[string]interface{}{
					{"title": "Agent", "value": n.AgentID, "short": true},
					{"title": "Severity", "value": n.Severity, "short": true},
				},
				"ts": n.CreatedAt.Unix(),
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	resp, err := s.client.Post(s.config.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to post to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

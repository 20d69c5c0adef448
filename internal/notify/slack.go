package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Slack posts unreachable-site alerts to an incoming webhook.
type Slack struct {
	Webhook string
	Client  *http.Client
}

// NewSlack returns nil when no webhook is configured so callers can skip it.
func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// alertMessage renders a monitor run's alert. sites is the comma-joined
// list of unreachable site names; each becomes one bullet.
func alertMessage(title, sites string, at time.Time) slackMessage {
	var list strings.Builder
	for _, name := range strings.Split(sites, ",") {
		if name = strings.TrimSpace(name); name != "" {
			list.WriteString("• " + name + "\n")
		}
	}
	return slackMessage{
		Text: "Site monitor: " + title + ": " + sites,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: ":rotating_light: Site monitor: " + title}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: strings.TrimSuffix(list.String(), "\n")}},
			{Type: "context", Elements: []slackText{{Type: "mrkdwn", Text: "Checked " + at.UTC().Format(time.RFC3339)}}},
		},
	}
}

func (s *Slack) Send(ctx context.Context, title, text string) error {
	if s == nil || s.Webhook == "" {
		return errors.New("slack alerts: no webhook configured")
	}
	body, err := json.Marshal(alertMessage(title, text, time.Now()))
	if err != nil {
		return fmt.Errorf("slack alert payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("slack alert send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack alert rejected: %s", resp.Status)
	}
	return nil
}

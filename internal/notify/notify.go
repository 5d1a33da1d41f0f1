// Package notify posts fit and sampling outcomes to chat or generic webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type WebhookType string

const (
	WebhookDiscord WebhookType = "discord"
	WebhookSlack   WebhookType = "slack"
	WebhookGeneric WebhookType = "generic"
)

// Session describes a finished fit or sampling run.
type Session struct {
	RunID     string
	Backend   string
	Operation string
	Err       error
	Duration  time.Duration
}

func DetectWebhookType(url string) WebhookType {
	lower := strings.ToLower(url)
	if strings.Contains(lower, "discord.com/api/webhooks") || strings.Contains(lower, "discordapp.com/api/webhooks") {
		return WebhookDiscord
	}
	if strings.Contains(lower, "hooks.slack.com") {
		return WebhookSlack
	}
	return WebhookGeneric
}

// NotifySession posts the outcome of session to url.
func NotifySession(ctx context.Context, url string, session Session, timeout time.Duration) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("webhook URL is required")
	}
	if session.Backend == "" || session.Operation == "" {
		return errors.New("session backend and operation are required")
	}
	payload, err := buildPayload(url, session, time.Now())
	if err != nil {
		return err
	}
	return SendWebhook(ctx, url, payload, timeout)
}

func SendWebhook(ctx context.Context, url string, payload []byte, timeout time.Duration) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("webhook URL is required")
	}
	if len(payload) == 0 {
		return errors.New("payload is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func buildPayload(url string, session Session, now time.Time) ([]byte, error) {
	succeeded := session.Err == nil
	title := "✅ Prophet " + session.Operation + " complete"
	color, slackColor := 5763719, "#57F287"
	status := "success"
	reason := ""
	if !succeeded {
		title = "❌ Prophet " + session.Operation + " failed"
		color, slackColor = 15548997, "#ED4245"
		status = "failure"
		reason = session.Err.Error()
	}
	duration := formatDuration(session.Duration)
	runID := defaultString(session.RunID, "unknown")
	timestamp := now.Format(time.RFC3339)

	switch DetectWebhookType(url) {
	case WebhookDiscord:
		fields := []map[string]interface{}{
			{"name": "Backend", "value": session.Backend, "inline": true},
			{"name": "Duration", "value": duration, "inline": true},
			{"name": "Run", "value": fmt.Sprintf("`%s`", runID), "inline": false},
		}
		if reason != "" {
			fields = append(fields, map[string]interface{}{"name": "Reason", "value": reason, "inline": false})
		}
		return json.Marshal(map[string]interface{}{
			"embeds": []map[string]interface{}{
				{
					"title":     title,
					"color":     color,
					"fields":    fields,
					"footer":    map[string]interface{}{"text": "Prophet CLI"},
					"timestamp": timestamp,
				},
			},
		})
	case WebhookSlack:
		fields := []map[string]interface{}{
			{"type": "mrkdwn", "text": fmt.Sprintf("*Backend:*\n%s", session.Backend)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Duration:*\n%s", duration)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Run:*\n`%s`", runID)},
		}
		if reason != "" {
			fields = append(fields, map[string]interface{}{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:*\n%s", reason)})
		}
		return json.Marshal(map[string]interface{}{
			"attachments": []map[string]interface{}{
				{
					"color": slackColor,
					"blocks": []map[string]interface{}{
						{
							"type": "header",
							"text": map[string]interface{}{"type": "plain_text", "text": title, "emoji": true},
						},
						{"type": "section", "fields": fields},
						{
							"type": "context",
							"elements": []map[string]interface{}{
								{"type": "mrkdwn", "text": fmt.Sprintf("Prophet CLI • %s", timestamp)},
							},
						},
					},
				},
			},
		})
	default:
		payload := map[string]interface{}{
			"event":     session.Operation,
			"status":    status,
			"run_id":    runID,
			"backend":   session.Backend,
			"duration":  duration,
			"timestamp": timestamp,
		}
		if reason != "" {
			payload["reason"] = reason
		}
		return json.Marshal(payload)
	}
}

func formatDuration(duration time.Duration) string {
	if duration <= 0 {
		return "unknown"
	}
	total := int(duration.Seconds())
	if total <= 0 {
		return duration.Round(time.Millisecond).String()
	}
	hours := total / 3600
	mins := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

func defaultString(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

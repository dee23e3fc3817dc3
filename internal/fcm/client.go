package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DeliveryError carries the FCM response for a rejected send.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("fcm: status %d: %s", e.StatusCode, e.Body)
}

// TokenInvalid reports whether the registration token is gone for good.
// FCM signals this with 404 (UNREGISTERED) or 400 on a malformed token.
func (e *DeliveryError) TokenInvalid() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusBadRequest
}

// Client sends notification messages through the FCM v1 API.
type Client struct {
	tokens    *TokenSource
	projectID string
	host      string
	channelID string
	http      *http.Client
	logger    *slog.Logger
}

func NewClient(tokens *TokenSource, projectID, host, channelID string, timeout time.Duration, logger *slog.Logger) *Client {
	if channelID == "" {
		channelID = "default"
	}
	return &Client{
		tokens:    tokens,
		projectID: projectID,
		host:      host,
		channelID: channelID,
		http:      &http.Client{Timeout: timeout},
		logger:    logger.With("component", "fcm"),
	}
}

// Send delivers one data+alert message to a registration token.
func (c *Client) Send(ctx context.Context, deviceToken, title, body string, data map[string]string) error {
	bearer, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	message := map[string]any{
		"message": map[string]any{
			"token": deviceToken,
			"notification": map[string]string{
				"title": title,
				"body":  body,
			},
			"data": data,
			"android": map[string]any{
				"priority": "high",
				"notification": map[string]string{
					"channel_id": c.channelID,
					"sound":      "default",
				},
			},
		},
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("fcm: marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", c.host, c.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fcm: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	c.logger.Warn("send rejected", "status", resp.StatusCode)
	return &DeliveryError{StatusCode: resp.StatusCode, Body: string(respBody)}
}

package apns

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Reasons APNs returns for destinations that will never receive a push.
// Callers should clear the stored token instead of retrying.
var deadTokenReasons = map[string]bool{
	"BadDeviceToken":         true,
	"Unregistered":           true,
	"ExpiredToken":           true,
	"DeviceTokenNotForTopic": true,
}

// DeliveryError carries the APNs status and reason for a rejected push.
type DeliveryError struct {
	StatusCode int
	Reason     string
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("apns: status %d reason %q: %s", e.StatusCode, e.Reason, e.Body)
}

// TokenInvalid reports whether the stored device token should be discarded.
func (e *DeliveryError) TokenInvalid() bool {
	return deadTokenReasons[e.Reason]
}

// Client posts alert and VoIP pushes over the APNs HTTP API. Each call is a
// pure function of its inputs plus the current time; the only shared state
// is the signer's token cache.
type Client struct {
	signer   *Signer
	bundleID string
	host     string
	http     *http.Client
	logger   *slog.Logger
}

func NewClient(signer *Signer, bundleID, host string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		signer:   signer,
		bundleID: bundleID,
		host:     host,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.With("component", "apns"),
	}
}

// SendAlert delivers a regular data+alert push to one device token. The
// topic is the bare bundle id and the push type is "alert"; swapping either
// with the VoIP variants silently breaks delivery.
func (c *Client) SendAlert(ctx context.Context, deviceToken, title, body string, data map[string]string) error {
	payload := map[string]any{
		"aps": map[string]any{
			"alert":           map[string]string{"title": title, "body": body},
			"sound":           "default",
			"badge":           1,
			"mutable-content": 1,
		},
	}
	for k, v := range data {
		payload[k] = v
	}
	return c.post(ctx, deviceToken, payload, c.bundleID, "alert")
}

// CallPayload is the VoIP push body. It deliberately has no duration field:
// including one makes the OS auto-terminate the call UI.
type CallPayload struct {
	Aps           map[string]int `json:"aps"`
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Media         string         `json:"media"`
	EventID       string         `json:"eventId"`
	EventTitle    string         `json:"eventTitle"`
	EventTime     string         `json:"eventTime,omitempty"`
	EventLocation string         `json:"eventLocation,omitempty"`
	EventEmoji    string         `json:"eventEmoji,omitempty"`
}

// SendVoIP delivers an incoming-call push. The topic must be the ".voip"
// suffixed bundle id and the push type must be "voip"; the regular alert
// topic does not trigger the call UI.
func (c *Client) SendVoIP(ctx context.Context, voipToken string, p CallPayload) error {
	p.Aps = map[string]int{"content-available": 1}
	p.Media = "audio"
	return c.post(ctx, voipToken, p, c.bundleID+".voip", "voip")
}

func (c *Client) post(ctx context.Context, deviceToken string, payload any, topic, pushType string) error {
	bearer, err := c.signer.Bearer()
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("apns: marshal payload: %w", err)
	}

	url := c.host + "/3/device/" + deviceToken
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("authorization", "bearer "+bearer)
	req.Header.Set("apns-topic", topic)
	req.Header.Set("apns-push-type", pushType)
	req.Header.Set("apns-priority", "10")
	req.Header.Set("apns-expiration", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
	req.Header.Set("content-type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apns: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	var parsed struct {
		Reason string `json:"reason"`
	}
	_ = json.Unmarshal(respBody, &parsed)

	c.logger.Warn("push rejected", "status", resp.StatusCode, "reason", parsed.Reason, "push_type", pushType)
	return &DeliveryError{StatusCode: resp.StatusCode, Reason: parsed.Reason, Body: string(respBody)}
}

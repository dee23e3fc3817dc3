package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"callme/internal/models"
)

// WebDeliveryError carries the push service response for a rejected web
// push.
type WebDeliveryError struct {
	StatusCode int
	Body       string
}

func (e *WebDeliveryError) Error() string {
	return fmt.Sprintf("webpush: status %d: %s", e.StatusCode, e.Body)
}

// TokenInvalid reports whether the subscription is expired or gone.
func (e *WebDeliveryError) TokenInvalid() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// webPayload matches what the service worker displays.
type webPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// WebPushClient delivers notifications to browser subscriptions using
// VAPID-signed web push.
type WebPushClient struct {
	options *webpush.Options
	logger  *slog.Logger
}

func NewWebPushClient(subject, publicKey, privateKey string, logger *slog.Logger) *WebPushClient {
	return &WebPushClient{
		options: &webpush.Options{
			Subscriber:      subject,
			VAPIDPublicKey:  publicKey,
			VAPIDPrivateKey: privateKey,
			TTL:             30,
		},
		logger: logger.With("component", "webpush"),
	}
}

// Send delivers one notification to a serialized browser subscription.
func (c *WebPushClient) Send(ctx context.Context, subscriptionJSON, title, body string, data map[string]string) error {
	var sub models.WebPushSubscription
	if err := json.Unmarshal([]byte(subscriptionJSON), &sub); err != nil {
		return fmt.Errorf("webpush: bad subscription: %w", err)
	}

	payload, err := json.Marshal(webPayload{Title: title, Body: body, Data: data})
	if err != nil {
		return fmt.Errorf("webpush: marshal payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, c.options)
	if err != nil {
		return fmt.Errorf("webpush: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	c.logger.Warn("push service rejected notification", "status", resp.StatusCode)
	return &WebDeliveryError{StatusCode: resp.StatusCode, Body: string(respBody)}
}

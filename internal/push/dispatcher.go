// Package push delivers one-shot notifications to a registered device,
// choosing the provider protocol by the recorded platform.
package push

import (
	"context"
	"errors"
	"log/slog"

	"callme/internal/apns"
	"callme/internal/fcm"
	"callme/internal/models"
)

// ErrNotConfigured means the provider credentials for the destination's
// platform were never injected. It short-circuits before any network
// attempt so operators can tell "not configured" from "provider rejected".
var ErrNotConfigured = errors.New("push: provider not configured")

type Outcome string

const (
	OutcomeSent Outcome = "sent"
	// OutcomeSkipped means there was no destination to deliver to. Not an
	// error; the user simply has not enabled push.
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Result is a structured per-send outcome so batch callers can make
// per-item decisions without exception-driven control flow.
type Result struct {
	Outcome Outcome
	// TokenInvalid signals that the stored destination is dead and should
	// be cleared rather than retried.
	TokenInvalid bool
	Err          error
}

func sent() Result            { return Result{Outcome: OutcomeSent} }
func skipped() Result         { return Result{Outcome: OutcomeSkipped} }
func failed(err error) Result { return Result{Outcome: OutcomeFailed, Err: err} }

// AlertSender is the APNs surface the dispatcher uses. Narrow interface so
// tests can stub the provider.
type AlertSender interface {
	SendAlert(ctx context.Context, deviceToken, title, body string, data map[string]string) error
}

// MessageSender is the FCM surface the dispatcher uses.
type MessageSender interface {
	Send(ctx context.Context, deviceToken, title, body string, data map[string]string) error
}

// SubscriptionSender is the web-push surface the dispatcher uses.
type SubscriptionSender interface {
	Send(ctx context.Context, subscriptionJSON, title, body string, data map[string]string) error
}

// Dispatcher routes a send to the protocol the destination registered
// with. Providers left nil are treated as unconfigured.
type Dispatcher struct {
	apns   AlertSender
	fcm    MessageSender
	web    SubscriptionSender
	logger *slog.Logger
}

func NewDispatcher(apnsClient AlertSender, fcmClient MessageSender, webClient SubscriptionSender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		apns:   apnsClient,
		fcm:    fcmClient,
		web:    webClient,
		logger: logger.With("component", "push"),
	}
}

// Send delivers one data+alert push. A missing token is a skip, a missing
// provider configuration is a failure with ErrNotConfigured, and provider
// rejections are failures carrying the provider's response.
func (d *Dispatcher) Send(ctx context.Context, reg models.DeviceRegistration, title, body string, data map[string]string) Result {
	if reg.Token == "" {
		return skipped()
	}

	var err error
	switch reg.Platform {
	case models.PlatformIOS:
		if d.apns == nil {
			return failed(ErrNotConfigured)
		}
		err = d.apns.SendAlert(ctx, reg.Token, title, body, data)
	case models.PlatformAndroid:
		if d.fcm == nil {
			return failed(ErrNotConfigured)
		}
		err = d.fcm.Send(ctx, reg.Token, title, body, data)
	case models.PlatformWeb:
		if d.web == nil {
			return failed(ErrNotConfigured)
		}
		err = d.web.Send(ctx, reg.Token, title, body, data)
	default:
		return failed(errors.New("push: unknown platform " + string(reg.Platform)))
	}

	if err != nil {
		res := failed(err)
		res.TokenInvalid = tokenInvalid(err)
		d.logger.Warn("delivery failed", "platform", reg.Platform, "user_id", reg.UserID,
			"token_invalid", res.TokenInvalid, "error", err)
		return res
	}
	return sent()
}

func tokenInvalid(err error) bool {
	var apnsErr *apns.DeliveryError
	if errors.As(err, &apnsErr) {
		return apnsErr.TokenInvalid()
	}
	var fcmErr *fcm.DeliveryError
	if errors.As(err, &fcmErr) {
		return fcmErr.TokenInvalid()
	}
	var webErr *WebDeliveryError
	if errors.As(err, &webErr) {
		return webErr.TokenInvalid()
	}
	return false
}

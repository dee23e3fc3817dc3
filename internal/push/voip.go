package push

import (
	"context"
	"log/slog"
	"strings"

	"callme/internal/apns"
	"callme/internal/models"
)

// CallSender is the APNs VoIP surface the call dispatcher uses.
type CallSender interface {
	SendVoIP(ctx context.Context, voipToken string, p apns.CallPayload) error
}

// VoIPDispatcher triggers the OS incoming-call UI through an APNs VoIP
// push, which wakes the app even from a killed state. VoIP opt-in is
// optional, so a missing token is a skip, not an error.
type VoIPDispatcher struct {
	apns   CallSender
	logger *slog.Logger
}

func NewVoIPDispatcher(apnsClient CallSender, logger *slog.Logger) *VoIPDispatcher {
	return &VoIPDispatcher{apns: apnsClient, logger: logger.With("component", "voip")}
}

// SendCall pushes the incoming-call payload for an event.
func (d *VoIPDispatcher) SendCall(ctx context.Context, voipToken string, ev models.Event) Result {
	if voipToken == "" {
		return skipped()
	}
	if d.apns == nil {
		return failed(ErrNotConfigured)
	}

	payload := apns.CallPayload{
		ID:            ev.ID,
		Name:          strings.TrimSpace(ev.Emoji + " " + ev.Title),
		EventID:       ev.ID,
		EventTitle:    ev.Title,
		EventTime:     ev.Time,
		EventLocation: ev.Location,
		EventEmoji:    ev.Emoji,
	}

	if err := d.apns.SendVoIP(ctx, voipToken, payload); err != nil {
		res := failed(err)
		res.TokenInvalid = tokenInvalid(err)
		d.logger.Warn("call push failed", "event_id", ev.ID, "token_invalid", res.TokenInvalid, "error", err)
		return res
	}
	return sent()
}

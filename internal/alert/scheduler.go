// Package alert decides when a "call me" reminder fires and registers it
// with a scheduling backend. It performs no network calls; the only
// mutations are backend registrations and cancellations.
package alert

import (
	"fmt"
	"log/slog"
	"time"

	"callme/internal/models"
)

const (
	// Timed events ring one hour before they start.
	leadTime = 60 * time.Minute
	// All-day events ring at this local hour on the event date.
	allDayHour = 9
	// SnoozeDelay is the fixed product delay between a snoozed call and its
	// replacement alert.
	SnoozeDelay = 10 * time.Minute
)

// Payload is what the delivery channel shows when the alert fires.
type Payload struct {
	EventID string
	UserID  int
	Title   string
	Body    string
}

// Backend registers delivery intents. Two variants exist: StoreBackend
// (durable rows swept by a worker, survives restarts) and MemoryBackend
// (in-process timers, lost on exit). The variant is picked once at startup.
type Backend interface {
	// Schedule replaces any prior registration with the same id.
	Schedule(id int32, firesAt time.Time, p Payload) error
	// Cancel is a no-op for ids with no active registration.
	Cancel(id int32) error
}

type Outcome string

const (
	OutcomeScheduled Outcome = "scheduled"
	// OutcomeSkipped means the computed fire time was not in the future.
	// It is a result, not an error.
	OutcomeSkipped Outcome = "skipped"
)

type Scheduler struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
}

func NewScheduler(backend Backend, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		backend: backend,
		logger:  logger.With("component", "alert"),
		now:     time.Now,
	}
}

// FireTime computes the instant an event's reminder should ring, in the
// given location. Timed events fire exactly one hour before start; all-day
// events fire at 09:00 local on the event date.
func FireTime(ev models.Event, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", ev.Date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("alert: bad event date %q: %w", ev.Date, err)
	}

	if ev.AllDay() {
		return time.Date(day.Year(), day.Month(), day.Day(), allDayHour, 0, 0, 0, loc), nil
	}

	clock, err := time.Parse("15:04", ev.Time)
	if err != nil {
		return time.Time{}, fmt.Errorf("alert: bad event time %q: %w", ev.Time, err)
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	return start.Add(-leadTime), nil
}

// Schedule registers the reminder for an event. Fire times at or before now
// are skipped, and any stale registration for the same event is cleared so
// a reschedule into the past does not leave the old alert behind.
func (s *Scheduler) Schedule(ev models.Event, loc *time.Location) (Outcome, error) {
	firesAt, err := FireTime(ev, loc)
	if err != nil {
		return "", err
	}

	id := DeriveNotificationID(ev.ID)
	if !firesAt.After(s.now()) {
		if err := s.backend.Cancel(id); err != nil {
			s.logger.Warn("cancel stale registration", "event_id", ev.ID, "error", err)
		}
		s.logger.Debug("fire time in the past, skipped", "event_id", ev.ID, "fires_at", firesAt)
		return OutcomeSkipped, nil
	}

	if err := s.backend.Schedule(id, firesAt, buildPayload(ev)); err != nil {
		return "", err
	}
	s.logger.Info("alert scheduled", "event_id", ev.ID, "notification_id", id, "fires_at", firesAt)
	return OutcomeScheduled, nil
}

// Snooze re-registers an event's alert a fixed delay from now. It reuses
// the same derived id; the original alert has already fired, so nothing is
// replaced.
func (s *Scheduler) Snooze(ev models.Event) (Outcome, error) {
	id := DeriveNotificationID(ev.ID)
	if err := s.backend.Schedule(id, s.now().Add(SnoozeDelay), buildPayload(ev)); err != nil {
		return "", err
	}
	return OutcomeScheduled, nil
}

// Cancel clears any registration for the event. Safe to call for an id
// with no active registration, and safe to race a pending fire: a "fired
// anyway" outcome is accepted, cancellation is best effort.
func (s *Scheduler) Cancel(eventID string) error {
	return s.backend.Cancel(DeriveNotificationID(eventID))
}

func buildPayload(ev models.Event) Payload {
	title := ev.Title
	if ev.Emoji != "" {
		title = ev.Emoji + " " + ev.Title
	}

	var body string
	if ev.AllDay() {
		body = "You have an event today"
	} else {
		body = fmt.Sprintf("Starts at %s", ev.Time)
	}
	if ev.Location != "" {
		body += " · " + ev.Location
	}

	return Payload{EventID: ev.ID, UserID: ev.UserID, Title: title, Body: body}
}

// Package batch implements the server-side notification sweeps: single-pass
// jobs over all eligible users, invoked periodically by an external
// trigger. All cross-invocation state lives in the store.
package batch

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"callme/internal/models"
	"callme/internal/push"
)

// TextGenerator composes message content. Optional; every job carries a
// deterministic fallback template so an unavailable generator never fails
// the sweep.
type TextGenerator interface {
	Compose(ctx context.Context, prompt string) (string, error)
}

// Job parametrizes one sweep: who is eligible, at which user-local moment
// to send, and how to build the message. Compose returning an empty string
// skips the user without error.
type Job struct {
	Name       string
	TargetHour int
	// Weekday restricts the job to one day of the user's local week.
	// Nil means every day.
	Weekday  *time.Weekday
	Eligible func(u models.User) bool
	Compose  func(ctx context.Context, r *Runner, u models.User, now time.Time) (string, error)
}

// Summary is the aggregate result of one sweep.
type Summary struct {
	Processed int
	Sent      int
	Skipped   int
	Errored   int
}

func (s Summary) String() string {
	return fmt.Sprintf("processed=%d sent=%d skipped=%d errored=%d", s.Processed, s.Sent, s.Skipped, s.Errored)
}

type Runner struct {
	db     *sql.DB
	push   *push.Dispatcher
	gen    TextGenerator
	logger *slog.Logger
	now    func() time.Time
}

func NewRunner(db *sql.DB, dispatcher *push.Dispatcher, gen TextGenerator, logger *slog.Logger) *Runner {
	return &Runner{
		db:     db,
		push:   dispatcher,
		gen:    gen,
		logger: logger.With("component", "batch"),
		now:    time.Now,
	}
}

// Run executes one single-pass sweep of the job over all users. One user's
// failure never aborts the batch; errors are counted and the sweep
// continues.
func (r *Runner) Run(ctx context.Context, job Job) Summary {
	var summary Summary

	users, err := r.listUsers()
	if err != nil {
		r.logger.Error("list users", "job", job.Name, "error", err)
		summary.Errored++
		return summary
	}

	for _, u := range users {
		if !job.Eligible(u) {
			continue
		}
		summary.Processed++

		delivered, err := r.processUser(ctx, job, u)
		if err != nil {
			r.logger.Warn("user sweep failed", "job", job.Name, "user_id", u.ID, "error", err)
			summary.Errored++
			continue
		}
		if delivered {
			summary.Sent++
		} else {
			summary.Skipped++
		}
	}

	r.logger.Info("sweep finished", "job", job.Name, "summary", summary.String())
	return summary
}

func (r *Runner) processUser(ctx context.Context, job Job, u models.User) (bool, error) {
	loc := userLocation(u)
	now := r.now().In(loc)

	// Send only at the user's local target moment.
	if now.Hour() != job.TargetHour {
		return false, nil
	}
	if job.Weekday != nil && now.Weekday() != *job.Weekday {
		return false, nil
	}

	// Duplicate-send guard, compared in the user's local calendar day.
	lastSent, err := r.lastSentAt(u.ID, job.Name)
	if err != nil {
		return false, err
	}
	if lastSent != nil && sameLocalDay(lastSent.In(loc), now) {
		return false, nil
	}

	content, err := job.Compose(ctx, r, u, now)
	if err != nil {
		return false, err
	}
	if content == "" {
		return false, nil
	}

	if err := r.insertChatMessage(u.ID, content); err != nil {
		return false, err
	}

	r.sendPush(ctx, u, job.Name, content)

	// Only after successful persistence, so a failure above does not
	// suppress retry on the next tick.
	if err := r.markSent(u.ID, job.Name); err != nil {
		return false, err
	}
	return true, nil
}

// composeWithFallback asks the text generator and falls back to the
// deterministic template when it is absent or failing.
func (r *Runner) composeWithFallback(ctx context.Context, prompt, fallback string) string {
	if r.gen == nil {
		return fallback
	}
	text, err := r.gen.Compose(ctx, prompt)
	if err != nil || text == "" {
		r.logger.Warn("text generator unavailable, using template", "error", err)
		return fallback
	}
	return text
}

// sendPush fans the message out to every registered destination. A failed
// push is silent toward the user; dead tokens are cleared.
func (r *Runner) sendPush(ctx context.Context, u models.User, jobName, content string) {
	regs, err := r.deviceRegistrations(u.ID)
	if err != nil {
		r.logger.Warn("load device registrations", "user_id", u.ID, "error", err)
		return
	}
	for _, reg := range regs {
		res := r.push.Send(ctx, reg, pushTitle(u.Language, jobName), content, map[string]string{"job": jobName})
		if res.TokenInvalid {
			r.clearRegistration(reg)
		}
	}
}

func userLocation(u models.User) *time.Location {
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func sameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

package batch

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"callme/internal/apns"
	"callme/internal/database"
	"callme/internal/models"
	"callme/internal/push"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Initialize(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertUser(t *testing.T, db *sql.DB, id int, tz, lang string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO users (id, timezone, language, daily_overview, weekly_report, weather_forecast, missed_event_check)
		VALUES (?, ?, ?, 1, 1, 1, 1)`,
		id, tz, lang,
	)
	if err != nil {
		t.Fatal(err)
	}
}

func insertEvent(t *testing.T, db *sql.DB, id string, userID int, title, date, clock string) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO events (id, user_id, title, date, time) VALUES (?, ?, ?, ?, ?)",
		id, userID, title, date, clock,
	)
	if err != nil {
		t.Fatal(err)
	}
}

func countMessages(t *testing.T, db *sql.DB, userID int) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM chat_messages WHERE user_id = ?", userID).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func newTestRunner(t *testing.T, db *sql.DB, gen TextGenerator, now time.Time) *Runner {
	t.Helper()
	r := NewRunner(db, push.NewDispatcher(nil, nil, nil, testLogger()), gen, testLogger())
	r.now = func() time.Time { return now }
	return r
}

func TestRunMatchesUserLocalHour(t *testing.T) {
	db := setupDB(t)
	insertUser(t, db, 1, "UTC", "en")
	insertUser(t, db, 2, "Asia/Tokyo", "en")

	// 08:00 UTC is 17:00 in Tokyo: only the UTC user is at the target hour.
	now := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)
	r := newTestRunner(t, db, nil, now)

	summary := r.Run(context.Background(), DailyOverviewJob(8))
	if summary.Sent != 1 {
		t.Fatalf("summary = %+v, want exactly one send", summary)
	}
	if countMessages(t, db, 1) != 1 {
		t.Fatal("UTC user did not receive a message")
	}
	if countMessages(t, db, 2) != 0 {
		t.Fatal("Tokyo user received a message outside the target hour")
	}
}

func TestRunNoDuplicateWithinLocalDay(t *testing.T) {
	db := setupDB(t)
	insertUser(t, db, 1, "UTC", "en")

	now := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)
	r := newTestRunner(t, db, nil, now)
	job := DailyOverviewJob(8)

	if s := r.Run(context.Background(), job); s.Sent != 1 {
		t.Fatalf("first run summary = %+v", s)
	}
	// Second tick in the same hour must not double-send.
	r.now = func() time.Time { return now.Add(20 * time.Minute) }
	if s := r.Run(context.Background(), job); s.Sent != 0 {
		t.Fatalf("second run summary = %+v, want no sends", s)
	}
	if got := countMessages(t, db, 1); got != 1 {
		t.Fatalf("got %d messages, want 1", got)
	}

	// The next local day sends again.
	r.now = func() time.Time { return now.AddDate(0, 0, 1) }
	if s := r.Run(context.Background(), job); s.Sent != 1 {
		t.Fatalf("next day summary = %+v", s)
	}
}

type failingGenerator struct{}

func (failingGenerator) Compose(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("model unavailable")
}

func TestRunFallsBackWhenGeneratorUnavailable(t *testing.T) {
	db := setupDB(t)
	insertUser(t, db, 1, "UTC", "en")
	insertEvent(t, db, "e1", 1, "Dentist", "2025-06-16", "14:00")

	now := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)
	r := newTestRunner(t, db, failingGenerator{}, now)

	if s := r.Run(context.Background(), DailyOverviewJob(8)); s.Sent != 1 || s.Errored != 0 {
		t.Fatalf("summary = %+v, want one send and no errors", s)
	}

	var content string
	if err := db.QueryRow("SELECT content FROM chat_messages WHERE user_id = 1").Scan(&content); err != nil {
		t.Fatal(err)
	}
	want := "You have 1 events today: Dentist at 14:00"
	if content != want {
		t.Fatalf("content = %q, want deterministic template %q", content, want)
	}
}

func TestRunOneUserFailureDoesNotAbort(t *testing.T) {
	db := setupDB(t)
	insertUser(t, db, 1, "UTC", "en")
	insertUser(t, db, 2, "UTC", "en")

	now := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)
	r := newTestRunner(t, db, nil, now)

	job := Job{
		Name:       "flaky",
		TargetHour: 8,
		Eligible:   func(models.User) bool { return true },
		Compose: func(ctx context.Context, r *Runner, u models.User, now time.Time) (string, error) {
			if u.ID == 1 {
				return "", errors.New("boom")
			}
			return "hello", nil
		},
	}

	summary := r.Run(context.Background(), job)
	if summary.Errored != 1 || summary.Sent != 1 {
		t.Fatalf("summary = %+v, want errored=1 sent=1", summary)
	}
	if countMessages(t, db, 2) != 1 {
		t.Fatal("healthy user was not processed after the failing one")
	}
	// The failed user keeps no last-sent marker, so the next tick retries.
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM job_runs WHERE user_id = 1").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatal("failure must not record a last-sent timestamp")
	}
}

func TestWeeklyReportHonorsWeekday(t *testing.T) {
	db := setupDB(t)
	insertUser(t, db, 1, "UTC", "en")

	// 2025-06-16 is a Monday.
	monday := time.Date(2025, 6, 16, 18, 0, 0, 0, time.UTC)
	r := newTestRunner(t, db, nil, monday)

	if s := r.Run(context.Background(), WeeklyReportJob(18, time.Sunday)); s.Sent != 0 {
		t.Fatalf("summary = %+v, want no sends on the wrong weekday", s)
	}
	if s := r.Run(context.Background(), WeeklyReportJob(18, time.Monday)); s.Sent != 1 {
		t.Fatalf("summary = %+v, want one send on the matching weekday", s)
	}
}

func TestMissedEventCheckSkipsQuietDays(t *testing.T) {
	db := setupDB(t)
	insertUser(t, db, 1, "UTC", "en")
	insertUser(t, db, 2, "UTC", "en")
	insertEvent(t, db, "e1", 2, "Dentist", "2025-06-15", "14:00")

	now := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)
	r := newTestRunner(t, db, nil, now)

	summary := r.Run(context.Background(), MissedEventCheckJob(8))
	if summary.Sent != 1 {
		t.Fatalf("summary = %+v, want one send", summary)
	}
	if countMessages(t, db, 1) != 0 {
		t.Fatal("user with no events yesterday should be skipped")
	}
	if countMessages(t, db, 2) != 1 {
		t.Fatal("user with events yesterday should be messaged")
	}
}

func TestWeatherForecastWithoutProviderSkips(t *testing.T) {
	db := setupDB(t)
	insertUser(t, db, 1, "UTC", "en")

	now := time.Date(2025, 6, 16, 7, 0, 0, 0, time.UTC)
	r := newTestRunner(t, db, nil, now)

	summary := r.Run(context.Background(), WeatherForecastJob(7, nil))
	if summary.Sent != 0 || summary.Errored != 0 {
		t.Fatalf("summary = %+v, want silent skip without a provider", summary)
	}
}

type deadTokenSender struct{}

func (deadTokenSender) SendAlert(ctx context.Context, deviceToken, title, body string, data map[string]string) error {
	return &apns.DeliveryError{StatusCode: 410, Reason: "Unregistered"}
}

func TestRunClearsDeadRegistrations(t *testing.T) {
	db := setupDB(t)
	insertUser(t, db, 1, "UTC", "en")
	if _, err := db.Exec(
		"INSERT INTO device_registrations (user_id, platform, token) VALUES (1, 'ios', 'deadtoken')",
	); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)
	r := NewRunner(db, push.NewDispatcher(deadTokenSender{}, nil, nil, testLogger()), nil, testLogger())
	r.now = func() time.Time { return now }

	// Message persistence succeeds even though the push destination is dead.
	if s := r.Run(context.Background(), DailyOverviewJob(8)); s.Sent != 1 {
		t.Fatalf("summary = %+v", s)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM device_registrations WHERE user_id = 1").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatal("dead registration was not cleared")
	}
}

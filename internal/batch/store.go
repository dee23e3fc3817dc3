package batch

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"callme/internal/models"
)

func (r *Runner) listUsers() ([]models.User, error) {
	rows, err := r.db.Query(
		`SELECT id, timezone, language, plan, daily_overview, weekly_report,
		weather_forecast, missed_event_check FROM users`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Timezone, &u.Language, &u.Plan,
			&u.DailyOverview, &u.WeeklyReport, &u.WeatherForecast, &u.MissedEventCheck); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *Runner) lastSentAt(userID int, job string) (*time.Time, error) {
	var t time.Time
	err := r.db.QueryRow(
		"SELECT last_sent_at FROM job_runs WHERE user_id = ? AND job = ?",
		userID, job,
	).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Runner) markSent(userID int, job string) error {
	_, err := r.db.Exec(
		`INSERT INTO job_runs (user_id, job, last_sent_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id, job) DO UPDATE SET last_sent_at = excluded.last_sent_at`,
		userID, job, r.now().UTC(),
	)
	return err
}

func (r *Runner) insertChatMessage(userID int, content string) error {
	_, err := r.db.Exec(
		"INSERT INTO chat_messages (id, user_id, role, content) VALUES (?, ?, 'assistant', ?)",
		uuid.NewString(), userID, content,
	)
	return err
}

func (r *Runner) deviceRegistrations(userID int) ([]models.DeviceRegistration, error) {
	rows, err := r.db.Query(
		"SELECT user_id, platform, token FROM device_registrations WHERE user_id = ?",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []models.DeviceRegistration
	for rows.Next() {
		var reg models.DeviceRegistration
		if err := rows.Scan(&reg.UserID, &reg.Platform, &reg.Token); err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func (r *Runner) clearRegistration(reg models.DeviceRegistration) {
	_, _ = r.db.Exec(
		"DELETE FROM device_registrations WHERE user_id = ? AND platform = ?",
		reg.UserID, reg.Platform,
	)
	r.logger.Info("removed dead device registration", "user_id", reg.UserID, "platform", reg.Platform)
}

// eventsOn returns the user's events on a local calendar date.
func (r *Runner) eventsOn(userID int, date string) ([]models.Event, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, title, date, COALESCE(time, ''), COALESCE(location, ''), COALESCE(emoji, '')
		FROM events WHERE user_id = ? AND date = ? ORDER BY time`,
		userID, date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Title, &ev.Date, &ev.Time, &ev.Location, &ev.Emoji); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// countEventsBetween counts the user's events in a local date range,
// inclusive on both ends.
func (r *Runner) countEventsBetween(userID int, from, to string) (int, error) {
	var n int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM events WHERE user_id = ? AND date >= ? AND date <= ?",
		userID, from, to,
	).Scan(&n)
	return n, err
}

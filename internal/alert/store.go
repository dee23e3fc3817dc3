package alert

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// StoreBackend keeps registrations as rows in the scheduled_alerts table
// and relies on the periodic sweep to deliver them. Unlike MemoryBackend,
// registrations survive process restarts.
type StoreBackend struct {
	db *sql.DB
}

func NewStoreBackend(db *sql.DB) *StoreBackend {
	return &StoreBackend{db: db}
}

func (b *StoreBackend) Schedule(id int32, firesAt time.Time, p Payload) error {
	_, err := b.db.Exec(
		`INSERT OR REPLACE INTO scheduled_alerts
		(notification_id, event_id, user_id, fires_at, title, body, status)
		VALUES (?, ?, ?, ?, ?, ?, 'pending')`,
		id, p.EventID, p.UserID, firesAt.UTC(), p.Title, p.Body,
	)
	return err
}

func (b *StoreBackend) Cancel(id int32) error {
	_, err := b.db.Exec("DELETE FROM scheduled_alerts WHERE notification_id = ?", id)
	return err
}

// DueAlert is a pending registration whose fire time has passed.
type DueAlert struct {
	NotificationID int32
	Payload        Payload
	FiresAt        time.Time
}

// DeliverFunc hands a due alert to a delivery channel.
type DeliverFunc func(ctx context.Context, a DueAlert) error

// Sweep claims due pending rows and delivers them, marking each row sent or
// failed. One alert's failure does not abort the sweep.
func (b *StoreBackend) Sweep(ctx context.Context, now time.Time, deliver DeliverFunc, logger *slog.Logger) (sent, failed int, err error) {
	rows, err := b.db.Query(
		`SELECT notification_id, event_id, user_id, fires_at, title, body
		FROM scheduled_alerts
		WHERE status = 'pending' AND fires_at <= ?
		ORDER BY fires_at`,
		now.UTC(),
	)
	if err != nil {
		return 0, 0, fmt.Errorf("alert: query due: %w", err)
	}
	defer rows.Close()

	var due []DueAlert
	for rows.Next() {
		var a DueAlert
		if err := rows.Scan(&a.NotificationID, &a.Payload.EventID, &a.Payload.UserID, &a.FiresAt, &a.Payload.Title, &a.Payload.Body); err != nil {
			return 0, 0, fmt.Errorf("alert: scan due: %w", err)
		}
		due = append(due, a)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	for _, a := range due {
		if err := deliver(ctx, a); err != nil {
			logger.Warn("alert delivery failed", "notification_id", a.NotificationID, "error", err)
			b.mark(a.NotificationID, "failed")
			failed++
			continue
		}
		b.mark(a.NotificationID, "sent")
		sent++
	}
	return sent, failed, nil
}

func (b *StoreBackend) mark(id int32, status string) {
	_, _ = b.db.Exec("UPDATE scheduled_alerts SET status = ? WHERE notification_id = ?", status, id)
}

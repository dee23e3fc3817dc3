package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"callme/internal/database"
)

func TestStoreBackendScheduleReplaceCancel(t *testing.T) {
	db, err := database.Initialize(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec("INSERT INTO users (id) VALUES (1)"); err != nil {
		t.Fatal(err)
	}

	b := NewStoreBackend(db)
	firesAt := time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC)

	if err := b.Schedule(99, firesAt, Payload{EventID: "e1", UserID: 1, Title: "A", Body: "b"}); err != nil {
		t.Fatal(err)
	}
	// Re-scheduling the same id replaces the row.
	if err := b.Schedule(99, firesAt.Add(time.Hour), Payload{EventID: "e1", UserID: 1, Title: "B", Body: "b"}); err != nil {
		t.Fatal(err)
	}

	var count int
	var title string
	if err := db.QueryRow("SELECT COUNT(*) FROM scheduled_alerts").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row after replace, got %d", count)
	}
	if err := db.QueryRow("SELECT title FROM scheduled_alerts WHERE notification_id = 99").Scan(&title); err != nil {
		t.Fatal(err)
	}
	if title != "B" {
		t.Fatalf("title = %q, want replacement %q", title, "B")
	}

	if err := b.Cancel(99); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM scheduled_alerts").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("expected 0 rows after cancel, got %d", count)
	}
	// Cancelling an absent id is a no-op.
	if err := b.Cancel(99); err != nil {
		t.Fatal(err)
	}
}

func TestStoreBackendSweep(t *testing.T) {
	db, err := database.Initialize(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec("INSERT INTO users (id) VALUES (1)"); err != nil {
		t.Fatal(err)
	}

	b := NewStoreBackend(db)
	now := time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC)

	if err := b.Schedule(1, now.Add(-time.Minute), Payload{EventID: "due", UserID: 1, Title: "Due", Body: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Schedule(2, now.Add(time.Hour), Payload{EventID: "later", UserID: 1, Title: "Later", Body: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Schedule(3, now.Add(-time.Minute), Payload{EventID: "broken", UserID: 1, Title: "Broken", Body: "b"}); err != nil {
		t.Fatal(err)
	}

	var delivered []string
	deliver := func(ctx context.Context, a DueAlert) error {
		if a.Payload.EventID == "broken" {
			return errors.New("channel down")
		}
		delivered = append(delivered, a.Payload.EventID)
		return nil
	}

	sent, failed, err := b.Sweep(context.Background(), now, deliver, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if sent != 1 || failed != 1 {
		t.Fatalf("sweep sent=%d failed=%d, want 1/1", sent, failed)
	}
	if len(delivered) != 1 || delivered[0] != "due" {
		t.Fatalf("delivered %v, want only %q", delivered, "due")
	}

	var status string
	if err := db.QueryRow("SELECT status FROM scheduled_alerts WHERE notification_id = 1").Scan(&status); err != nil {
		t.Fatal(err)
	}
	if status != "sent" {
		t.Fatalf("due alert status = %q, want sent", status)
	}
	if err := db.QueryRow("SELECT status FROM scheduled_alerts WHERE notification_id = 2").Scan(&status); err != nil {
		t.Fatal(err)
	}
	if status != "pending" {
		t.Fatalf("future alert status = %q, want pending", status)
	}
	if err := db.QueryRow("SELECT status FROM scheduled_alerts WHERE notification_id = 3").Scan(&status); err != nil {
		t.Fatal(err)
	}
	if status != "failed" {
		t.Fatalf("broken alert status = %q, want failed", status)
	}
}

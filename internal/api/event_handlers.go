package api

import (
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"

	"callme/internal/models"
)

// UpsertEventHandler saves an event and (re)schedules its reminder. A fire
// time already in the past is reported as skipped, never as an error, and
// a failed schedule attempt is logged without blocking the save.
func UpsertEventHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.UpsertEventRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if req.ID == "" || req.UserID == 0 || req.Title == "" || req.Date == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Missing event fields")
		}

		_, err := deps.DB.Exec(
			`INSERT INTO events (id, user_id, title, date, time, location, emoji)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			date = excluded.date,
			time = excluded.time,
			location = excluded.location,
			emoji = excluded.emoji`,
			req.ID, req.UserID, req.Title, req.Date, req.Time, req.Location, req.Emoji,
		)
		if err != nil {
			return err
		}

		ev := models.Event{
			ID: req.ID, UserID: req.UserID, Title: req.Title,
			Date: req.Date, Time: req.Time, Location: req.Location, Emoji: req.Emoji,
		}

		outcome, err := deps.Scheduler.Schedule(ev, userLocation(deps.DB, req.UserID))
		if err != nil {
			deps.Logger.Warn("schedule failed", "event_id", ev.ID, "error", err)
			outcome = "unscheduled"
		}

		return c.JSON(fiber.Map{"success": true, "alert": outcome})
	}
}

// DeleteEventHandler removes an event and cancels its pending alert.
// Cancelling an id with no registration is a no-op.
func DeleteEventHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		eventID := c.Params("id")

		result, err := deps.DB.Exec("DELETE FROM events WHERE id = ?", eventID)
		if err != nil {
			return err
		}

		if err := deps.Scheduler.Cancel(eventID); err != nil {
			deps.Logger.Warn("cancel failed", "event_id", eventID, "error", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Event not found")
		}
		return c.JSON(fiber.Map{"success": true})
	}
}

func userLocation(db *sql.DB, userID int) *time.Location {
	var tz string
	if err := db.QueryRow("SELECT timezone FROM users WHERE id = ?", userID).Scan(&tz); err != nil {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

package api

import (
	"github.com/gofiber/fiber/v2"

	"callme/internal/models"
)

// RunJobHandler triggers one batch sweep by name. Per-user failures are
// collected inside the runner; the handler always reports the aggregate.
func RunJobHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := c.Params("job")
		for _, job := range deps.Jobs {
			if job.Name != name {
				continue
			}
			summary := deps.Runner.Run(c.Context(), job)
			return c.JSON(fiber.Map{
				"job":       name,
				"processed": summary.Processed,
				"sent":      summary.Sent,
				"skipped":   summary.Skipped,
				"errored":   summary.Errored,
			})
		}
		return fiber.NewError(fiber.StatusNotFound, "Unknown job")
	}
}

// TestPushHandler sends a test notification to all of a user's registered
// destinations.
func TestPushHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			UserID int `json:"user_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if req.UserID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Missing user_id")
		}

		rows, err := deps.DB.Query(
			"SELECT user_id, platform, token FROM device_registrations WHERE user_id = ?",
			req.UserID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		var regs []models.DeviceRegistration
		for rows.Next() {
			var reg models.DeviceRegistration
			if err := rows.Scan(&reg.UserID, &reg.Platform, &reg.Token); err != nil {
				return err
			}
			regs = append(regs, reg)
		}
		if len(regs) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "No registered devices")
		}

		sent, failed := 0, 0
		for _, reg := range regs {
			res := deps.Push.Send(c.Context(), reg, "Test notification", "This is a test notification", nil)
			if res.Err != nil {
				failed++
			} else {
				sent++
			}
		}

		return c.JSON(fiber.Map{"success": failed == 0, "sent": sent, "failed": failed})
	}
}

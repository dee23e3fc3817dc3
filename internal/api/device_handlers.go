package api

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"callme/internal/models"
)

// RegisterDeviceHandler upserts a user's push destination. One token per
// (user, platform); re-registration overwrites.
func RegisterDeviceHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.RegisterDeviceRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if req.UserID == 0 || req.Token == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Missing user_id or token")
		}
		if !req.Platform.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "Unknown platform")
		}

		_, err := deps.DB.Exec(
			`INSERT INTO device_registrations (user_id, platform, token, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(user_id, platform) DO UPDATE SET
			token = excluded.token,
			updated_at = CURRENT_TIMESTAMP`,
			req.UserID, req.Platform, req.Token,
		)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{"success": true})
	}
}

// RegisterVoipTokenHandler stores the APNs VoIP token separately from the
// regular alert token; VoIP opt-in is optional.
func RegisterVoipTokenHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.RegisterVoipTokenRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if req.UserID == 0 || req.Token == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Missing user_id or token")
		}

		_, err := deps.DB.Exec(
			`INSERT INTO voip_tokens (user_id, token, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(user_id) DO UPDATE SET
			token = excluded.token,
			updated_at = CURRENT_TIMESTAMP`,
			req.UserID, req.Token,
		)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{"success": true})
	}
}

type subscribeRequest struct {
	UserID       int                        `json:"user_id"`
	Subscription models.WebPushSubscription `json:"subscription"`
}

// SubscribeWebPushHandler stores a browser subscription as the user's
// `web` platform registration, serialized to a single token string.
func SubscribeWebPushHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req subscribeRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if req.UserID == 0 || req.Subscription.Endpoint == "" ||
			req.Subscription.Keys.P256dh == "" || req.Subscription.Keys.Auth == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Missing subscription fields")
		}

		serialized, err := json.Marshal(req.Subscription)
		if err != nil {
			return err
		}

		_, err = deps.DB.Exec(
			`INSERT INTO device_registrations (user_id, platform, token, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(user_id, platform) DO UPDATE SET
			token = excluded.token,
			updated_at = CURRENT_TIMESTAMP`,
			req.UserID, models.PlatformWeb, string(serialized),
		)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{"success": true})
	}
}

func UnsubscribeWebPushHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			UserID int `json:"user_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		_, err := deps.DB.Exec(
			"DELETE FROM device_registrations WHERE user_id = ? AND platform = ?",
			req.UserID, models.PlatformWeb,
		)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{"success": true})
	}
}

// VapidPublicKeyHandler returns the VAPID public key for client
// subscription.
func VapidPublicKeyHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.VapidPublicKey == "" {
			return fiber.NewError(fiber.StatusServiceUnavailable, "Web push not configured")
		}
		return c.JSON(fiber.Map{"publicKey": deps.VapidPublicKey})
	}
}

package api

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CronAuthMiddleware guards the cron trigger endpoints with a shared
// secret. The real authentication layer is an external collaborator; this
// only keeps the sweep triggers from being publicly invokable.
func CronAuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return fiber.NewError(fiber.StatusServiceUnavailable, "Cron endpoints not configured. Set CRON_SECRET.")
		}

		authHeader := c.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid authorization header format")
		}
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(secret)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid cron secret")
		}
		return c.Next()
	}
}

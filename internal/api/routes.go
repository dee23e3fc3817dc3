package api

import (
	"database/sql"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"callme/internal/alert"
	"callme/internal/batch"
	"callme/internal/push"
)

// Deps carries everything the edge handlers need. Handlers close over it
// instead of reaching for globals.
type Deps struct {
	DB             *sql.DB
	Scheduler      *alert.Scheduler
	Runner         *batch.Runner
	Push           *push.Dispatcher
	VoIP           *push.VoIPDispatcher
	Jobs           []batch.Job
	CronSecret     string
	VapidPublicKey string
	Logger         *slog.Logger
}

func SetupRoutes(app *fiber.App, deps Deps) {
	api := app.Group("/api")

	// Public endpoints
	api.Get("/push/vapid-public-key", VapidPublicKeyHandler(deps))

	// Device registration
	devices := api.Group("/devices")
	devices.Post("/", RegisterDeviceHandler(deps))
	devices.Post("/voip", RegisterVoipTokenHandler(deps))

	// Web push subscription
	pushGroup := api.Group("/push")
	pushGroup.Post("/subscribe", SubscribeWebPushHandler(deps))
	pushGroup.Delete("/unsubscribe", UnsubscribeWebPushHandler(deps))
	pushGroup.Post("/test", TestPushHandler(deps))

	// Event glue: the CRUD layer calls these so saves and deletes keep the
	// alert registrations in sync.
	events := api.Group("/events")
	events.Post("/", UpsertEventHandler(deps))
	events.Delete("/:id", DeleteEventHandler(deps))

	// Cron triggers, invoked by an external time-based trigger.
	cron := api.Group("/cron", CronAuthMiddleware(deps.CronSecret))
	cron.Post("/:job", RunJobHandler(deps))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

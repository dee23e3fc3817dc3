package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/robfig/cron/v3"

	"callme/internal/alert"
	"callme/internal/api"
	"callme/internal/apns"
	"callme/internal/batch"
	"callme/internal/config"
	"callme/internal/database"
	"callme/internal/fcm"
	"callme/internal/models"
	"callme/internal/push"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	db, err := database.Initialize(cfg.DBPath)
	if err != nil {
		logger.Error("initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Providers are optional; a missing configuration degrades that channel
	// to a distinct "not configured" failure instead of crashing at send.
	var apnsClient *apns.Client
	if cfg.ApnsConfigured() {
		signer, err := apns.NewSigner(cfg.ApnsTeamID, cfg.ApnsKeyID, cfg.ApnsPrivateKey)
		if err != nil {
			logger.Error("apns credentials", "error", err)
			os.Exit(1)
		}
		apnsClient = apns.NewClient(signer, cfg.BundleID, cfg.ApnsHost, cfg.PushTimeout, logger)
	} else {
		logger.Warn("APNs not configured, ios and voip channels disabled")
	}

	var fcmClient *fcm.Client
	if cfg.FCMConfigured() {
		sa, key, err := fcm.ParseServiceAccount([]byte(cfg.FCMServiceAccount))
		if err != nil {
			logger.Error("fcm credentials", "error", err)
			os.Exit(1)
		}
		tokens := fcm.NewTokenSource(sa, key, cfg.PushTimeout)
		fcmClient = fcm.NewClient(tokens, sa.ProjectID, cfg.FCMHost, "default", cfg.PushTimeout, logger)
	} else {
		logger.Warn("FCM not configured, android channel disabled")
	}

	var webClient *push.WebPushClient
	if cfg.WebPushConfigured() {
		webClient = push.NewWebPushClient(cfg.VapidSubject, cfg.VapidPublicKey, cfg.VapidPrivateKey, logger)
	} else {
		logger.Warn("VAPID keys not configured, web channel disabled")
	}

	// Typed nils must not leak into the interface fields.
	var alertSender push.AlertSender
	var callSender push.CallSender
	if apnsClient != nil {
		alertSender = apnsClient
		callSender = apnsClient
	}
	var messageSender push.MessageSender
	if fcmClient != nil {
		messageSender = fcmClient
	}
	var subscriptionSender push.SubscriptionSender
	if webClient != nil {
		subscriptionSender = webClient
	}

	dispatcher := push.NewDispatcher(alertSender, messageSender, subscriptionSender, logger)
	voip := push.NewVoIPDispatcher(callSender, logger)

	store := alert.NewStoreBackend(db)
	scheduler := alert.NewScheduler(store, logger)
	runner := batch.NewRunner(db, dispatcher, nil, logger)

	jobs := []batch.Job{
		batch.DailyOverviewJob(cfg.DailyOverviewHour),
		batch.WeeklyReportJob(cfg.WeeklyReportHour, cfg.WeeklyReportDay),
		batch.MissedEventCheckJob(cfg.DailyOverviewHour),
		batch.WeatherForecastJob(cfg.WeatherHour, nil),
	}

	deliver := dueAlertDeliverer(db, voip, dispatcher, logger)

	// Background workers: due-alert sweep every minute, batch jobs hourly.
	// The cron endpoints remain available for externally triggered runs.
	enableWorkers := os.Getenv("ENABLE_WORKERS")
	if enableWorkers == "" || enableWorkers == "true" {
		c := cron.New()
		c.AddFunc("@every 1m", func() {
			sent, failed, err := store.Sweep(context.Background(), time.Now(), deliver, logger)
			if err != nil {
				logger.Error("alert sweep", "error", err)
			} else if sent+failed > 0 {
				logger.Info("alert sweep", "sent", sent, "failed", failed)
			}
		})
		for _, job := range jobs {
			job := job
			c.AddFunc("@hourly", func() {
				runner.Run(context.Background(), job)
			})
		}
		c.Start()
		defer c.Stop()
		logger.Info("background workers started")
	} else {
		logger.Info("background workers disabled")
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: envOr("ALLOWED_ORIGINS", "http://localhost:5173"),
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	api.SetupRoutes(app, api.Deps{
		DB:             db,
		Scheduler:      scheduler,
		Runner:         runner,
		Push:           dispatcher,
		VoIP:           voip,
		Jobs:           jobs,
		CronSecret:     cfg.CronSecret,
		VapidPublicKey: cfg.VapidPublicKey,
		Logger:         logger,
	})

	logger.Info("server starting", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// dueAlertDeliverer resolves the channel for a fired alert: the VoIP call
// push when the user opted in, otherwise a regular push to every
// registered destination.
func dueAlertDeliverer(db *sql.DB, voip *push.VoIPDispatcher, dispatcher *push.Dispatcher, logger *slog.Logger) alert.DeliverFunc {
	return func(ctx context.Context, a alert.DueAlert) error {
		if ev, ok := loadEvent(db, a.Payload.EventID); ok {
			var voipToken string
			err := db.QueryRow("SELECT token FROM voip_tokens WHERE user_id = ?", a.Payload.UserID).Scan(&voipToken)
			if err == nil && voipToken != "" {
				res := voip.SendCall(ctx, voipToken, ev)
				if res.Outcome == push.OutcomeSent {
					return nil
				}
				if res.Err != nil {
					logger.Warn("call push failed, falling back to alert push",
						"event_id", ev.ID, "error", res.Err)
				}
				if res.TokenInvalid {
					_, _ = db.Exec("DELETE FROM voip_tokens WHERE user_id = ?", a.Payload.UserID)
				}
			}
		}

		rows, err := db.Query(
			"SELECT user_id, platform, token FROM device_registrations WHERE user_id = ?",
			a.Payload.UserID,
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
			// No destination is a skip, not a failure.
			return nil
		}

		delivered := 0
		var lastErr error
		for _, reg := range regs {
			res := dispatcher.Send(ctx, reg, a.Payload.Title, a.Payload.Body,
				map[string]string{"eventId": a.Payload.EventID})
			if res.TokenInvalid {
				_, _ = db.Exec("DELETE FROM device_registrations WHERE user_id = ? AND platform = ?",
					reg.UserID, reg.Platform)
			}
			switch res.Outcome {
			case push.OutcomeSent:
				delivered++
			case push.OutcomeFailed:
				lastErr = res.Err
			}
		}
		if delivered == 0 && lastErr != nil {
			return fmt.Errorf("all destinations failed: %w", lastErr)
		}
		return nil
	}
}

func loadEvent(db *sql.DB, eventID string) (models.Event, bool) {
	var ev models.Event
	err := db.QueryRow(
		`SELECT id, user_id, title, date, COALESCE(time, ''), COALESCE(location, ''), COALESCE(emoji, '')
		FROM events WHERE id = ?`,
		eventID,
	).Scan(&ev.ID, &ev.UserID, &ev.Title, &ev.Date, &ev.Time, &ev.Location, &ev.Emoji)
	if err != nil {
		return models.Event{}, false
	}
	return ev, true
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

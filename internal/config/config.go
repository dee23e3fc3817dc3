// Package config provides centralized configuration loaded from environment
// variables. All provider secrets are injected, never embedded.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port       string
	CronSecret string

	// Database
	DBPath string

	// APNs (token-based auth)
	ApnsTeamID     string
	ApnsKeyID      string
	ApnsPrivateKey string // PEM, PKCS8 EC P-256
	ApnsHost       string
	BundleID       string

	// FCM
	FCMServiceAccount string // raw service-account JSON
	FCMHost           string

	// Web push
	VapidSubject    string
	VapidPublicKey  string
	VapidPrivateKey string

	// Batch jobs
	DailyOverviewHour int
	WeeklyReportHour  int
	WeeklyReportDay   time.Weekday
	WeatherHour       int
	PushTimeout       time.Duration
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file is honored when present (local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              envOr("PORT", "3000"),
		CronSecret:        os.Getenv("CRON_SECRET"),
		DBPath:            envOr("DB_PATH", "./data/callme.db"),
		ApnsTeamID:        os.Getenv("APNS_TEAM_ID"),
		ApnsKeyID:         os.Getenv("APNS_KEY_ID"),
		ApnsPrivateKey:    os.Getenv("APNS_PRIVATE_KEY"),
		ApnsHost:          envOr("APNS_HOST", "https://api.push.apple.com"),
		BundleID:          os.Getenv("APP_BUNDLE_ID"),
		FCMServiceAccount: os.Getenv("FCM_SERVICE_ACCOUNT_JSON"),
		FCMHost:           envOr("FCM_HOST", "https://fcm.googleapis.com"),
		VapidSubject:      os.Getenv("VAPID_SUBJECT"),
		VapidPublicKey:    os.Getenv("VAPID_PUBLIC_KEY"),
		VapidPrivateKey:   os.Getenv("VAPID_PRIVATE_KEY"),
		DailyOverviewHour: envIntOr("DAILY_OVERVIEW_HOUR", 8),
		WeeklyReportHour:  envIntOr("WEEKLY_REPORT_HOUR", 18),
		WeatherHour:       envIntOr("WEATHER_HOUR", 7),
		PushTimeout:       time.Duration(envIntOr("PUSH_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	day := envIntOr("WEEKLY_REPORT_DAY", int(time.Sunday))
	if day < 0 || day > 6 {
		return nil, fmt.Errorf("WEEKLY_REPORT_DAY must be 0..6, got %d", day)
	}
	cfg.WeeklyReportDay = time.Weekday(day)

	return cfg, nil
}

// ApnsConfigured reports whether the APNs credentials are present. Dispatch
// paths check this before any network attempt so operators can tell "not
// configured" from "provider rejected".
func (c *Config) ApnsConfigured() bool {
	return c.ApnsTeamID != "" && c.ApnsKeyID != "" && c.ApnsPrivateKey != "" && c.BundleID != ""
}

func (c *Config) FCMConfigured() bool {
	return c.FCMServiceAccount != ""
}

func (c *Config) WebPushConfigured() bool {
	return c.VapidSubject != "" && c.VapidPublicKey != "" && c.VapidPrivateKey != ""
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

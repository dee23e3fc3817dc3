package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"callme/internal/models"
)

// WeatherProvider fetches a short forecast line for the user's location.
// Fetching itself is an external collaborator; only the port lives here.
type WeatherProvider interface {
	Forecast(ctx context.Context, u models.User) (string, error)
}

// DailyOverviewJob messages each opted-in user a summary of today's events
// at the configured local hour.
func DailyOverviewJob(hour int) Job {
	return Job{
		Name:       "daily_overview",
		TargetHour: hour,
		Eligible:   func(u models.User) bool { return u.DailyOverview },
		Compose: func(ctx context.Context, r *Runner, u models.User, now time.Time) (string, error) {
			events, err := r.eventsOn(u.ID, now.Format("2006-01-02"))
			if err != nil {
				return "", err
			}
			fallback := overviewTemplate(u.Language, events)
			if len(events) == 0 {
				return fallback, nil
			}
			prompt := fmt.Sprintf(
				"Write a short friendly morning overview of these calendar events: %s",
				eventList(events),
			)
			return r.composeWithFallback(ctx, prompt, fallback), nil
		},
	}
}

// WeeklyReportJob messages a recap of the past week on one local weekday.
func WeeklyReportJob(hour int, day time.Weekday) Job {
	return Job{
		Name:       "weekly_report",
		TargetHour: hour,
		Weekday:    &day,
		Eligible:   func(u models.User) bool { return u.WeeklyReport },
		Compose: func(ctx context.Context, r *Runner, u models.User, now time.Time) (string, error) {
			from := now.AddDate(0, 0, -7).Format("2006-01-02")
			to := now.Format("2006-01-02")
			count, err := r.countEventsBetween(u.ID, from, to)
			if err != nil {
				return "", err
			}
			fallback := weeklyTemplate(u.Language, count)
			prompt := fmt.Sprintf(
				"Write a short encouraging weekly recap for a user who had %d calendar events this week.",
				count,
			)
			return r.composeWithFallback(ctx, prompt, fallback), nil
		},
	}
}

// MissedEventCheckJob reminds users about yesterday's events so nothing
// slips. Users with no events yesterday are skipped silently.
func MissedEventCheckJob(hour int) Job {
	return Job{
		Name:       "missed_event_check",
		TargetHour: hour,
		Eligible:   func(u models.User) bool { return u.MissedEventCheck },
		Compose: func(ctx context.Context, r *Runner, u models.User, now time.Time) (string, error) {
			yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
			events, err := r.eventsOn(u.ID, yesterday)
			if err != nil {
				return "", err
			}
			if len(events) == 0 {
				return "", nil
			}
			fallback := missedTemplate(u.Language, events)
			prompt := fmt.Sprintf(
				"Gently ask whether the user got to these events from yesterday: %s",
				eventList(events),
			)
			return r.composeWithFallback(ctx, prompt, fallback), nil
		},
	}
}

// WeatherForecastJob messages a morning forecast. With no provider wired
// the job skips every user rather than failing.
func WeatherForecastJob(hour int, provider WeatherProvider) Job {
	return Job{
		Name:       "weather_forecast",
		TargetHour: hour,
		Eligible:   func(u models.User) bool { return u.WeatherForecast },
		Compose: func(ctx context.Context, r *Runner, u models.User, now time.Time) (string, error) {
			if provider == nil {
				return "", nil
			}
			forecast, err := provider.Forecast(ctx, u)
			if err != nil {
				return "", err
			}
			return weatherTemplate(u.Language, forecast), nil
		},
	}
}

func eventList(events []models.Event) string {
	parts := make([]string, len(events))
	for i, ev := range events {
		if ev.AllDay() {
			parts[i] = ev.Title
		} else {
			parts[i] = fmt.Sprintf("%s at %s", ev.Title, ev.Time)
		}
	}
	return strings.Join(parts, ", ")
}

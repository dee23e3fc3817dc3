package batch

import (
	"fmt"

	"callme/internal/models"
)

// Deterministic message templates per supported language. These back every
// job when the text generator is unavailable, so a sweep never fails
// outright on a collaborator outage. Unknown languages fall back to English.

func pushTitle(lang, job string) string {
	titles := map[string]map[string]string{
		"en": {
			"daily_overview":     "Your day ahead",
			"weekly_report":      "Your week in review",
			"missed_event_check": "Quick check-in",
			"weather_forecast":   "Today's weather",
		},
		"pl": {
			"daily_overview":     "Twój plan na dziś",
			"weekly_report":      "Twój tydzień",
			"missed_event_check": "Krótkie przypomnienie",
			"weather_forecast":   "Dzisiejsza pogoda",
		},
		"es": {
			"daily_overview":     "Tu día",
			"weekly_report":      "Tu semana",
			"missed_event_check": "Un recordatorio",
			"weather_forecast":   "El tiempo de hoy",
		},
	}
	if m, ok := titles[lang]; ok {
		if t, ok := m[job]; ok {
			return t
		}
	}
	return titles["en"][job]
}

func overviewTemplate(lang string, events []models.Event) string {
	if len(events) == 0 {
		switch lang {
		case "pl":
			return "Dziś nie masz żadnych wydarzeń. Miłego dnia!"
		case "es":
			return "Hoy no tienes eventos. ¡Que tengas un buen día!"
		default:
			return "You have no events today. Enjoy your day!"
		}
	}
	list := eventList(events)
	switch lang {
	case "pl":
		return fmt.Sprintf("Dziś masz %d wydarzeń: %s", len(events), list)
	case "es":
		return fmt.Sprintf("Hoy tienes %d eventos: %s", len(events), list)
	default:
		return fmt.Sprintf("You have %d events today: %s", len(events), list)
	}
}

func weeklyTemplate(lang string, count int) string {
	switch lang {
	case "pl":
		return fmt.Sprintf("W tym tygodniu miałeś %d wydarzeń. Tak trzymaj!", count)
	case "es":
		return fmt.Sprintf("Esta semana tuviste %d eventos. ¡Sigue así!", count)
	default:
		return fmt.Sprintf("You had %d events this week. Keep it up!", count)
	}
}

func missedTemplate(lang string, events []models.Event) string {
	list := eventList(events)
	switch lang {
	case "pl":
		return fmt.Sprintf("Czy udało Ci się wczoraj: %s?", list)
	case "es":
		return fmt.Sprintf("¿Pudiste con lo de ayer: %s?", list)
	default:
		return fmt.Sprintf("Did you get to yesterday's events: %s?", list)
	}
}

func weatherTemplate(lang, forecast string) string {
	switch lang {
	case "pl":
		return fmt.Sprintf("Pogoda na dziś: %s", forecast)
	case "es":
		return fmt.Sprintf("El tiempo para hoy: %s", forecast)
	default:
		return fmt.Sprintf("Today's forecast: %s", forecast)
	}
}

package models

import "time"

// Platform identifies which delivery protocol a registered device uses.
// A registration's platform is fixed at write time; the dispatcher never
// mixes protocols for a single destination.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

func (p Platform) Valid() bool {
	return p == PlatformIOS || p == PlatformAndroid || p == PlatformWeb
}

type User struct {
	ID               int       `json:"id"`
	Timezone         string    `json:"timezone"` // IANA name, e.g. "Europe/Warsaw"
	Language         string    `json:"language"`
	Plan             string    `json:"plan"`
	DailyOverview    bool      `json:"daily_overview"`
	WeeklyReport     bool      `json:"weekly_report"`
	WeatherForecast  bool      `json:"weather_forecast"`
	MissedEventCheck bool      `json:"missed_event_check"`
	CreatedAt        time.Time `json:"created_at"`
}

// Event is a calendar entry eligible for a "call me" reminder. ID is the
// stable external identifier and the sole seed for derived notification ids.
type Event struct {
	ID       string `json:"id"`
	UserID   int    `json:"user_id"`
	Title    string `json:"title"`
	Date     string `json:"date"`           // YYYY-MM-DD
	Time     string `json:"time,omitempty"` // HH:MM, empty means all-day
	Location string `json:"location,omitempty"`
	Emoji    string `json:"emoji,omitempty"`
}

// AllDay reports whether the event has no clock time.
func (e Event) AllDay() bool { return e.Time == "" }

// DeviceRegistration is a user's push destination. One token per
// (user, platform), last write wins.
type DeviceRegistration struct {
	UserID    int       `json:"user_id"`
	Token     string    `json:"token"`
	Platform  Platform  `json:"platform"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WebPushSubscription is the browser push subscription as sent by the web
// client. It is stored serialized as the `web` platform token.
type WebPushSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    int       `json:"user_id"`
	Role      string    `json:"role"` // "assistant" for generated notifications
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type RegisterDeviceRequest struct {
	UserID   int      `json:"user_id"`
	Token    string   `json:"token"`
	Platform Platform `json:"platform"`
}

type RegisterVoipTokenRequest struct {
	UserID int    `json:"user_id"`
	Token  string `json:"token"`
}

type UpsertEventRequest struct {
	ID       string `json:"id"`
	UserID   int    `json:"user_id"`
	Title    string `json:"title"`
	Date     string `json:"date"`
	Time     string `json:"time,omitempty"`
	Location string `json:"location,omitempty"`
	Emoji    string `json:"emoji,omitempty"`
}

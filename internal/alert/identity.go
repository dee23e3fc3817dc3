package alert

import (
	"math"
	"unicode/utf16"
)

// DeriveNotificationID maps an event id to a stable non-negative 32-bit
// integer used as the scheduling handle for cancel/replace. The hash is a
// polynomial roll over UTF-16 code units, so the same event id yields the
// same handle across processes and restarts with no lookup table.
// Collisions between unrelated event ids are accepted (see DESIGN.md).
func DeriveNotificationID(eventID string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(eventID)) {
		h = h*31 + int32(u)
	}
	if h == math.MinInt32 {
		return 0
	}
	if h < 0 {
		return -h
	}
	return h
}

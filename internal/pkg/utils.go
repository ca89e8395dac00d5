package pkg

import (
	"time"
)

// GetFirstTimeOfCurrentWeek returns Monday 00:00 UTC of the week containing now.
func GetFirstTimeOfCurrentWeek(now time.Time) time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// Sunday is 0
	offset := (int(today.Weekday()) + 6) % 7
	return today.AddDate(0, 0, -offset)
}

package pkg

import (
	"testing"
	"time"
)

func TestGetFirstTimeOfCurrentWeek(t *testing.T) {
	monday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	cases := map[string]time.Time{
		"monday midnight": monday,
		"wednesday":       time.Date(2024, 3, 6, 13, 45, 0, 0, time.UTC),
		"sunday night":    time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC),
		"other zone":      time.Date(2024, 3, 11, 1, 0, 0, 0, time.FixedZone("UTC+2", 2*60*60)),
	}
	for name, now := range cases {
		t.Run(name, func(t *testing.T) {
			if got := GetFirstTimeOfCurrentWeek(now); !got.Equal(monday) {
				t.Fatalf("got %v, want %v", got, monday)
			}
		})
	}

	if got := GetFirstTimeOfCurrentWeek(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)); !got.Equal(monday.AddDate(0, 0, 7)) {
		t.Fatalf("next monday = %v", got)
	}
}

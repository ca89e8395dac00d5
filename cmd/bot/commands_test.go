package main

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"guildhall/internal/models"
)

func TestFormatQuests(t *testing.T) {
	now := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	soon := now.Add(3 * 24 * time.Hour)
	late := now.Add(-time.Hour)

	got := formatQuests([]*models.UserQuest{
		{
			QuestID:  uuid.New(),
			Status:   models.UserQuestInProgress,
			Deadline: &soon,
			Quest:    &models.Quest{Title: "Rats <in> the cellar"},
			Objectives: []*models.UserObjective{
				{Status: models.UserObjectiveApproved},
				{Status: models.UserObjectiveSubmitted},
			},
		},
		{
			QuestID:  uuid.New(),
			Status:   models.UserQuestAccepted,
			Deadline: &late,
			Quest:    &models.Quest{Title: "Deliver the letter"},
		},
	}, now)

	for _, want := range []string{
		"Rats &lt;in&gt; the cellar (in_progress) 1/2, due in 3 days",
		"Deliver the letter (accepted) 0/0, overdue",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in\n%s", want, got)
		}
	}

	if formatQuests(nil, now) == "" {
		t.Error("empty list should still answer")
	}
}

func TestFormatLeaderboard(t *testing.T) {
	got := formatLeaderboard("This week", []*models.LeaderboardItem{
		{DisplayName: "Ada", Score: 300},
		{Score: 120},
	})
	if !strings.Contains(got, "1. Ada - 300") || !strings.Contains(got, "2. adventurer - 120") {
		t.Fatalf("got\n%s", got)
	}
}

func TestHumanDuration(t *testing.T) {
	cases := map[time.Duration]string{
		72 * time.Hour:   "3 days",
		5 * time.Hour:    "5h",
		90 * time.Second: "2m",
	}
	for d, want := range cases {
		if got := humanDuration(d); got != want {
			t.Errorf("humanDuration(%s) = %q, want %q", d, got, want)
		}
	}
}

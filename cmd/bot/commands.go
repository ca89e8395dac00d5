package main

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"guildhall/internal/datastore/redis_store"
	"guildhall/internal/models"
)

const botLeaderboardSize = 10

var openStatuses = []models.UserQuestStatus{
	models.UserQuestAccepted,
	models.UserQuestInProgress,
	models.UserQuestReadyToClaim,
	models.UserQuestAwaitingFinalApproval,
}

func commandStart(c tele.Context) error {
	return c.Send(textStart)
}

// principalFromArgs reads the access token passed after the command. The
// message is removed afterwards so the token does not stay in the chat.
func principalFromArgs(c tele.Context) (*models.Principal, error) {
	args := c.Args()
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: %s &lt;access token&gt;", c.Text()[:strings.IndexByte(c.Text()+" ", ' ')])
	}

	authentication, err := getContextAuthentication(c)
	if err != nil {
		return nil, err
	}

	//nolint:errcheck
	c.Delete()

	principal, err := authentication.Validate(args[0])
	if err != nil {
		return nil, fmt.Errorf("token rejected, copy a fresh one from your profile page")
	}
	return principal, nil
}

func commandLink(c tele.Context) error {
	principal, err := principalFromArgs(c)
	if err != nil {
		return c.Send(err.Error())
	}

	serviceNotification, err := getContextServiceNotification(c)
	if err != nil {
		return err
	}

	if err := serviceNotification.LinkChat(context.Background(), principal, c.Chat().ID); err != nil {
		return c.Send(fmt.Sprintf("error %s", html.EscapeString(err.Error())))
	}
	return c.Send("Linked. Quest updates will arrive in this chat.")
}

func commandUnlink(c tele.Context) error {
	principal, err := principalFromArgs(c)
	if err != nil {
		return c.Send(err.Error())
	}

	serviceNotification, err := getContextServiceNotification(c)
	if err != nil {
		return err
	}

	if err := serviceNotification.LinkChat(context.Background(), principal, 0); err != nil {
		return c.Send(fmt.Sprintf("error %s", html.EscapeString(err.Error())))
	}
	return c.Send("Unlinked.")
}

func commandQuests(c tele.Context) error {
	principal, err := principalFromArgs(c)
	if err != nil {
		return c.Send(err.Error())
	}

	serviceProgression, err := getContextServiceProgression(c)
	if err != nil {
		return err
	}

	userQuests, err := serviceProgression.ListMyQuests(context.Background(), principal, openStatuses)
	if err != nil {
		return c.Send(fmt.Sprintf("error %s", html.EscapeString(err.Error())))
	}
	return c.Send(formatQuests(userQuests, time.Now().UTC()))
}

func commandLeaderboard(c tele.Context) error {
	serviceLeaderboard, err := getContextServiceLeaderboard(c)
	if err != nil {
		return err
	}

	board, title := redis_store.LeaderboardOverall, "Overall leaderboard"
	if strings.HasPrefix(c.Text(), "/week") {
		board, title = redis_store.LeaderboardWeekly, "This week"
	}

	items, err := serviceLeaderboard.GetTop(context.Background(), board, botLeaderboardSize)
	if err != nil {
		return c.Send(fmt.Sprintf("error %s", html.EscapeString(err.Error())))
	}
	return c.Send(formatLeaderboard(title, items))
}

func formatQuests(userQuests []*models.UserQuest, now time.Time) string {
	if len(userQuests) == 0 {
		return "No open quests. Visit the quest board to accept one."
	}

	var sb strings.Builder
	sb.WriteString("<b>Your quests</b>\n")
	for _, uq := range userQuests {
		title := uq.QuestID.String()
		if uq.Quest != nil {
			title = uq.Quest.Title
		}

		done := 0
		for _, uo := range uq.Objectives {
			if uo.Status == models.UserObjectiveApproved {
				done++
			}
		}

		fmt.Fprintf(&sb, "\n• %s (%s) %d/%d", html.EscapeString(title), uq.Status, done, len(uq.Objectives))
		if uq.Deadline != nil {
			left := uq.Deadline.Sub(now)
			if left <= 0 {
				sb.WriteString(", overdue")
			} else {
				fmt.Fprintf(&sb, ", due in %s", humanDuration(left))
			}
		}
	}
	return sb.String()
}

func formatLeaderboard(title string, items []*models.LeaderboardItem) string {
	var sb strings.Builder
	sb.WriteString("<b>" + title + "</b>\n")
	if len(items) == 0 {
		sb.WriteString("\nNobody has scored yet.")
		return sb.String()
	}

	for i, item := range items {
		name := item.DisplayName
		if name == "" {
			name = "adventurer"
		}
		fmt.Fprintf(&sb, "\n%d. %s - %d", i+1, html.EscapeString(name), int64(item.Score))
	}
	return sb.String()
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dm", int(d.Minutes())+1)
	}
}

package main

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"guildhall/internal/services"
)

// LeaderboardJob resets the weekly board when the week turns. Both boards are
// rebuilt from postgres on start so redis never drifts from the ledger for long.
type LeaderboardJob struct {
	serviceConfig      *services.ServiceConfig
	serviceLeaderboard *services.ServiceLeaderboard
}

func NewLeaderboardJob(serviceConfig *services.ServiceConfig, serviceLeaderboard *services.ServiceLeaderboard) *LeaderboardJob {
	return &LeaderboardJob{serviceConfig, serviceLeaderboard}
}

func (j *LeaderboardJob) Start(cronRunner *cron.Cron) error {
	ctx := context.Background()
	timeline, err := j.serviceConfig.GetStringConfig(ctx, services.CONFIG_CRONJOB_TIME_LEADERBOARD, services.DEFAULT_CRONJOB_TIME_LEADERBOARD)
	if err != nil {
		return err
	}

	_, err = cronRunner.AddFunc(timeline, j.runScheduledTask)
	if err != nil {
		return err
	}
	log.Println("Leaderboard cronjob start at:", time.Now().Format("2006-01-02 15:04:05"), "cron:", timeline)

	j.initLeaderboard(ctx)
	return nil
}

func (j *LeaderboardJob) runScheduledTask() {
	log.Println("Start resetting weekly leaderboard ...")
	n, err := j.serviceLeaderboard.RebuildWeekly(context.Background(), time.Now().UTC())
	if err != nil {
		log.Println("weekly leaderboard:", err)
		return
	}
	log.Println("Weekly leaderboard reset,", n, "entries carried over")
}

func (j *LeaderboardJob) initLeaderboard(ctx context.Context) {
	if _, err := j.serviceLeaderboard.RebuildOverall(ctx); err != nil {
		log.Println("overall leaderboard:", err)
	}
	if _, err := j.serviceLeaderboard.RebuildWeekly(ctx, time.Now().UTC()); err != nil {
		log.Println("weekly leaderboard:", err)
	}
}

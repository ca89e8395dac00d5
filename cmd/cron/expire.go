package main

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"guildhall/internal/services"
)

// ExpireJob moves attempts past their deadline to expired.
type ExpireJob struct {
	serviceConfig      *services.ServiceConfig
	serviceProgression *services.ServiceProgression
}

func NewExpireJob(serviceConfig *services.ServiceConfig, serviceProgression *services.ServiceProgression) *ExpireJob {
	return &ExpireJob{serviceConfig, serviceProgression}
}

func (j *ExpireJob) Start(cronRunner *cron.Cron) error {
	timeline, err := j.serviceConfig.GetStringConfig(context.Background(), services.CONFIG_CRONJOB_TIME_EXPIRE, services.DEFAULT_CRONJOB_TIME_EXPIRE)
	if err != nil {
		return err
	}

	_, err = cronRunner.AddFunc(timeline, j.runScheduledTask)
	if err != nil {
		return err
	}
	log.Println("Expire cronjob start at:", time.Now().Format("2006-01-02 15:04:05"), "cron:", timeline)
	return nil
}

func (j *ExpireJob) runScheduledTask() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	n, err := j.serviceProgression.ExpireOverdue(ctx)
	if err != nil {
		log.Println("expire sweep:", err)
		return
	}
	if n > 0 {
		log.Println("Expired", n, "overdue quests")
	}
}

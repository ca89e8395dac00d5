package main

import (
	"log"
	"os"

	"github.com/hiendaovinh/toolkit/pkg/env"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/samber/do"
	"github.com/urfave/cli/v2"

	"guildhall/internal/container"
	"guildhall/internal/services"
)

func init() {
	// for development
	//nolint:errcheck
	godotenv.Load("../../.env")

	// for production
	//nolint:errcheck
	godotenv.Load("./.env")
}

type CronJob interface {
	Start(cronRunner *cron.Cron) error
}

func main() {
	app := &cli.App{
		Name: "cronjob",
		Commands: []*cli.Command{
			commandCronjob(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func commandCronjob() *cli.Command {
	return &cli.Command{
		Name: "cron",
		Action: func(c *cli.Context) error {
			vs, err := env.EnvsRequired(
				"JWT_SECRET",
				"DB_DSN",
			)
			if err != nil {
				return err
			}
			injector := container.New(vs)

			serviceConfig, err := do.Invoke[*services.ServiceConfig](injector)
			if err != nil {
				return err
			}
			serviceLeaderboard, err := do.Invoke[*services.ServiceLeaderboard](injector)
			if err != nil {
				return err
			}
			serviceProgression, err := do.Invoke[*services.ServiceProgression](injector)
			if err != nil {
				return err
			}

			cronRunner := cron.New()

			jobs := []CronJob{
				NewLeaderboardJob(serviceConfig, serviceLeaderboard),
				NewExpireJob(serviceConfig, serviceProgression),
			}
			for _, job := range jobs {
				if err := job.Start(cronRunner); err != nil {
					return err
				}
			}

			log.Println("Start cronjob")
			cronRunner.Run()
			return nil
		},
	}
}

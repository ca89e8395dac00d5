package main

import (
	"log"
	"os"
	"time"

	"github.com/hiendaovinh/toolkit/pkg/env"
	"github.com/joho/godotenv"
	"github.com/samber/do"
	"github.com/urfave/cli/v2"
	tele "gopkg.in/telebot.v3"

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

const (
	textStart = `<b>Guild Hall</b>

Link this chat to your adventurer profile to get quest reviews, deadline warnings and rewards here.

/link &lt;access token&gt; - receive notifications in this chat
/unlink &lt;access token&gt; - stop notifications
/quests &lt;access token&gt; - list your open quests
/top - overall leaderboard
/week - weekly leaderboard`

	contextAuthentication      = "context-authentication"
	contextServiceNotification = "context-service-notification"
	contextServiceProgression  = "context-service-progression"
	contextServiceLeaderboard  = "context-service-leaderboard"
)

func main() {
	app := &cli.App{
		Name: "bot-telegram",
		Commands: []*cli.Command{
			commandBot(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func commandBot() *cli.Command {
	return &cli.Command{
		Name:   "server",
		Action: action,
	}
}

func action(c *cli.Context) error {
	vs, err := env.EnvsRequired(
		"TELEGRAM_BOT_TOKEN",
		"JWT_SECRET",
		"DB_DSN",
	)
	if err != nil {
		return err
	}

	injector := container.New(vs)

	authentication, err := do.Invoke[*services.Authentication](injector)
	if err != nil {
		return err
	}
	serviceNotification, err := do.Invoke[*services.ServiceNotification](injector)
	if err != nil {
		return err
	}
	serviceProgression, err := do.Invoke[*services.ServiceProgression](injector)
	if err != nil {
		return err
	}
	serviceLeaderboard, err := do.Invoke[*services.ServiceLeaderboard](injector)
	if err != nil {
		return err
	}

	pref := tele.Settings{
		Token:     vs["TELEGRAM_BOT_TOKEN"],
		Poller:    &tele.LongPoller{Timeout: 10 * time.Second},
		ParseMode: tele.ModeHTML,
		OnError: func(err error, c tele.Context) {
			log.Printf("bot: %v\n", err)
		},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return err
	}

	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Callback() != nil {
				defer c.Respond()
			}

			c.Set(contextAuthentication, authentication)
			c.Set(contextServiceNotification, serviceNotification)
			c.Set(contextServiceProgression, serviceProgression)
			c.Set(contextServiceLeaderboard, serviceLeaderboard)

			return next(c)
		}
	})

	b.Handle("/start", commandStart)
	b.Handle("/help", commandStart)
	b.Handle("/link", commandLink)
	b.Handle("/unlink", commandUnlink)
	b.Handle("/quests", commandQuests)
	b.Handle("/top", commandLeaderboard)
	b.Handle("/week", commandLeaderboard)

	log.Println("Start bot")
	b.Start()
	return nil
}

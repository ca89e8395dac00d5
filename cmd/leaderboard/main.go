package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hiendaovinh/toolkit/pkg/env"
	"github.com/joho/godotenv"
	"github.com/samber/do"
	"github.com/urfave/cli/v2"

	"guildhall/internal/container"
	"guildhall/internal/datastore/redis_store"
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

func main() {
	app := &cli.App{
		Name: "leaderboard",
		Commands: []*cli.Command{
			commandRebuild(),
			commandShow(),
			commandClear(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func boardFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "board",
		Value: "all",
		Usage: "overall, weekly or all",
	}
}

func boards(name string) ([]string, error) {
	switch name {
	case "all":
		return []string{redis_store.LeaderboardOverall, redis_store.LeaderboardWeekly}, nil
	case redis_store.LeaderboardOverall, redis_store.LeaderboardWeekly:
		return []string{name}, nil
	}
	return nil, fmt.Errorf("unknown board %q", name)
}

func getServiceLeaderboard() (*services.ServiceLeaderboard, error) {
	vs, err := env.EnvsRequired(
		"JWT_SECRET",
		"DB_DSN",
	)
	if err != nil {
		return nil, err
	}

	return do.Invoke[*services.ServiceLeaderboard](container.New(vs))
}

func commandRebuild() *cli.Command {
	return &cli.Command{
		Name:        "rebuild",
		Description: "Replace redis boards with totals computed from postgres",
		Flags:       []cli.Flag{boardFlag()},
		Action: func(c *cli.Context) error {
			names, err := boards(c.String("board"))
			if err != nil {
				return err
			}

			serviceLeaderboard, err := getServiceLeaderboard()
			if err != nil {
				return err
			}

			ctx := context.Background()
			for _, name := range names {
				var count int
				if name == redis_store.LeaderboardOverall {
					count, err = serviceLeaderboard.RebuildOverall(ctx)
				} else {
					count, err = serviceLeaderboard.RebuildWeekly(ctx, time.Now().UTC())
				}
				if err != nil {
					return fmt.Errorf("rebuild %s: %w", name, err)
				}
				log.Printf("%s: %d entries\n", name, count)
			}
			return nil
		},
	}
}

func commandClear() *cli.Command {
	return &cli.Command{
		Name:        "clear",
		Description: "Empty boards, run rebuild afterwards to refill them",
		Flags:       []cli.Flag{boardFlag()},
		Action: func(c *cli.Context) error {
			names, err := boards(c.String("board"))
			if err != nil {
				return err
			}

			serviceLeaderboard, err := getServiceLeaderboard()
			if err != nil {
				return err
			}

			for _, name := range names {
				if err := serviceLeaderboard.ClearBoard(context.Background(), name); err != nil {
					return fmt.Errorf("clear %s: %w", name, err)
				}
				log.Printf("%s cleared\n", name)
			}
			return nil
		},
	}
}

func commandShow() *cli.Command {
	return &cli.Command{
		Name:        "show",
		Description: "Print the top of a board",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "board", Value: redis_store.LeaderboardOverall},
			&cli.IntFlag{Name: "limit", Value: 20},
		},
		Action: func(c *cli.Context) error {
			names, err := boards(c.String("board"))
			if err != nil {
				return err
			}

			serviceLeaderboard, err := getServiceLeaderboard()
			if err != nil {
				return err
			}

			for _, name := range names {
				items, err := serviceLeaderboard.GetTop(context.Background(), name, c.Int("limit"))
				if err != nil {
					return err
				}

				fmt.Printf("== %s ==\n", name)
				for i, item := range items {
					fmt.Printf("%3d  %-36s  %-24s  %.0f\n", i+1, item.UserID, item.DisplayName, item.Score)
				}
			}
			return nil
		},
	}
}

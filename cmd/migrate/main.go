package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/urfave/cli/v2"

	"guildhall/internal/datastore"
	"guildhall/internal/models"
	"guildhall/internal/seed"
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
		Name: "migrate",
		Commands: []*cli.Command{
			commandMigration(),
			commandSeed(),
			commandGrantRole(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func commandMigration() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Description: "Create tables and insert default configs",
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			db, err := getDb()
			if err != nil {
				return err
			}

			// parents before children, foreign keys point backwards
			steps := []struct {
				name string
				fn   func(context.Context, *bun.DB) error
			}{
				{"config", datastore.CreateTableConfig},
				{"profile", datastore.CreateTableProfile},
				{"user_role", datastore.CreateTableUserRole},
				{"quest", datastore.CreateTableQuest},
				{"objective", datastore.CreateTableObjective},
				{"user_quest", datastore.CreateTableUserQuest},
				{"user_objective", datastore.CreateTableUserObjective},
				{"point_award", datastore.CreateTablePointAward},
			}
			for _, step := range steps {
				if err := step.fn(ctx, db); err != nil {
					return fmt.Errorf("create %s: %w", step.name, err)
				}
			}

			configs := []models.Config{
				{Key: services.CONFIG_SERVER_MODE, Value: services.SERVER_MODE_PRODUCTION},
				{Key: services.CONFIG_OVERALL_LEADERBOARD_LIMIT, Value: strconv.Itoa(services.OVERALL_LEADERBOARD_DEFAULT_LIMIT)},
				{Key: services.CONFIG_CRONJOB_TIME_EXPIRE, Value: services.DEFAULT_CRONJOB_TIME_EXPIRE},
				{Key: services.CONFIG_CRONJOB_TIME_LEADERBOARD, Value: services.DEFAULT_CRONJOB_TIME_LEADERBOARD},
				{Key: services.CONFIG_SUBMIT_RATE_LIMIT_PER_MINUTE, Value: strconv.Itoa(services.SUBMIT_RATE_LIMIT_PER_MINUTE)},
				{Key: services.CONFIG_EXPIRE_BATCH_SIZE, Value: strconv.Itoa(services.DEFAULT_EXPIRE_BATCH_SIZE)},
			}
			for i := range configs {
				if err := datastore.InsertConfigIfNotExists(ctx, db, &configs[i]); err != nil {
					log.Println(err)
				}
			}

			log.Println("Migration success")
			return nil
		},
	}
}

func commandSeed() *cli.Command {
	return &cli.Command{
		Name:        "seed",
		Description: "Load quests from a TOML file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Required: true,
				Usage:    "path to the quest file",
			},
			&cli.StringFlag{
				Name:  "author",
				Usage: "profile id recorded as the quests' creator",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := context.Background()

			author := uuid.Nil
			if s := c.String("author"); s != "" {
				id, err := uuid.Parse(s)
				if err != nil {
					return fmt.Errorf("author: %w", err)
				}
				author = id
			}

			f, err := os.Open(c.String("file"))
			if err != nil {
				return err
			}
			defer f.Close()

			quests, err := seed.Decode(f, author, time.Now().UTC())
			if err != nil {
				return err
			}

			db, err := getDb()
			if err != nil {
				return err
			}

			for _, quest := range quests {
				if err := datastore.InsertQuest(ctx, db, quest); err != nil {
					return fmt.Errorf("insert %q: %w", quest.Title, err)
				}
				log.Printf("seeded quest %s %q (%s, %d objectives)\n", quest.ID, quest.Title, quest.Status, len(quest.Objectives))
			}
			return nil
		},
	}
}

func commandGrantRole() *cli.Command {
	return &cli.Command{
		Name:        "grant-role",
		Description: "Give a profile the gm or admin role",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Required: true},
			&cli.StringFlag{Name: "role", Value: models.RoleGameMaster},
			&cli.BoolFlag{Name: "revoke"},
		},
		Action: func(c *cli.Context) error {
			ctx := context.Background()

			role := c.String("role")
			if role != models.RoleGameMaster && role != models.RoleAdmin {
				return fmt.Errorf("unknown role %q", role)
			}

			db, err := getDb()
			if err != nil {
				return err
			}

			// --user takes a profile id or the email the profile signed in with
			userID, err := uuid.Parse(c.String("user"))
			if err != nil {
				profile, err := datastore.FindProfileByEmail(ctx, db, c.String("user"))
				if err != nil {
					return fmt.Errorf("user %q: %w", c.String("user"), err)
				}
				userID = profile.ID
			}

			if c.Bool("revoke") {
				err = datastore.DeleteUserRole(ctx, db, userID, role)
			} else {
				err = datastore.InsertUserRole(ctx, db, &models.UserRole{UserID: userID, Role: role, CreatedAt: time.Now().UTC()})
			}
			if err != nil {
				return err
			}

			log.Printf("role %s updated for %s\n", role, userID)
			return nil
		},
	}
}

func getDb() (*bun.DB, error) {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("DB_DSN is not set")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithPassword(os.Getenv("DB_PASSWORD")),
	))

	db := bun.NewDB(sqldb, pgdialect.New())
	return db, nil
}

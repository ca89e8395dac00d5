package main

import (
	"context"
	"log"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hiendaovinh/toolkit/pkg/env"
	"github.com/joho/godotenv"
	"github.com/samber/do"
	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"

	"guildhall/internal/container"
	"guildhall/internal/datastore"
	"guildhall/internal/models"
	"guildhall/internal/services"
)

const reconcilePage = 1000

func init() {
	// for development
	//nolint:errcheck
	godotenv.Load("../../.env")

	// for production
	//nolint:errcheck
	godotenv.Load("./.env")
}

// drift is a profile whose balance disagrees with its award ledger.
type drift struct {
	UserID  uuid.UUID
	Balance int
	Ledger  int
}

func main() {
	app := &cli.App{
		Name: "reconcile",
		Commands: []*cli.Command{
			commandPoints(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func commandPoints() *cli.Command {
	return &cli.Command{
		Name:        "points",
		Description: "Compare profile balances with the award ledger",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "fix",
				Usage: "set drifted balances to the ledger sum and rebuild the overall board",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := context.Background()

			vs, err := env.EnvsRequired(
				"JWT_SECRET",
				"DB_DSN",
			)
			if err != nil {
				return err
			}
			injector := container.New(vs)

			db, err := do.Invoke[*bun.DB](injector)
			if err != nil {
				return err
			}

			var ledger []*models.TotalPoints
			for offset := 0; ; offset += reconcilePage {
				page, err := datastore.GetTotalPointsListFromTime(ctx, db, time.Time{}, reconcilePage, offset)
				if err != nil {
					return err
				}
				ledger = append(ledger, page...)
				if len(page) < reconcilePage {
					break
				}
			}

			var profiles []*models.Profile
			for offset := 0; ; offset += reconcilePage {
				page, err := datastore.GetProfilesSortedByPoints(ctx, db, reconcilePage, offset)
				if err != nil {
					return err
				}
				profiles = append(profiles, page...)
				if len(page) < reconcilePage {
					break
				}
			}

			drifts := findDrift(ledger, profiles)
			for _, d := range drifts {
				log.Printf("%s balance=%d ledger=%d\n", d.UserID, d.Balance, d.Ledger)
			}
			log.Printf("%d ledger users, %d ranked profiles, %d drifted\n", len(ledger), len(profiles), len(drifts))

			if !c.Bool("fix") || len(drifts) == 0 {
				return nil
			}

			for _, d := range drifts {
				if err := datastore.SetProfilePoints(ctx, db, d.UserID, d.Ledger); err != nil {
					return err
				}
			}

			serviceLeaderboard, err := do.Invoke[*services.ServiceLeaderboard](injector)
			if err != nil {
				return err
			}
			if _, err := serviceLeaderboard.RebuildOverall(ctx); err != nil {
				return err
			}

			log.Printf("fixed %d balances\n", len(drifts))
			return nil
		},
	}
}

// findDrift pairs ledger sums with balances. Profiles at zero points are not
// listed by the ranking query, so a ledger user without a profile row counts as
// a zero balance.
func findDrift(ledger []*models.TotalPoints, profiles []*models.Profile) []drift {
	balances := make(map[uuid.UUID]int, len(profiles))
	for _, p := range profiles {
		balances[p.ID] = p.Points
	}

	seen := make(map[uuid.UUID]bool, len(ledger))
	var drifts []drift
	for _, t := range ledger {
		seen[t.UserID] = true
		if balances[t.UserID] != t.TotalPoints {
			drifts = append(drifts, drift{t.UserID, balances[t.UserID], t.TotalPoints})
		}
	}
	for _, p := range profiles {
		if !seen[p.ID] && p.Points != 0 {
			drifts = append(drifts, drift{p.ID, p.Points, 0})
		}
	}

	sort.Slice(drifts, func(i, j int) bool {
		return drifts[i].UserID.String() < drifts[j].UserID.String()
	})
	return drifts
}

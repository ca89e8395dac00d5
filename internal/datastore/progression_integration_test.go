//go:build integration

package datastore_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"guildhall/internal/datastore"
	"guildhall/internal/models"
	"guildhall/internal/progression"
	"guildhall/internal/services"
)

type nobodyIsGM struct{}

func (nobodyIsGM) IsGameMaster(ctx context.Context, userID uuid.UUID) (bool, error) {
	return false, nil
}

func openTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is not set")
	}

	db := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), pgdialect.New())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, create := range []func(context.Context, *bun.DB) error{
		datastore.CreateTableConfig,
		datastore.CreateTableProfile,
		datastore.CreateTableUserRole,
		datastore.CreateTableQuest,
		datastore.CreateTableObjective,
		datastore.CreateTableUserQuest,
		datastore.CreateTableUserObjective,
		datastore.CreateTablePointAward,
	} {
		if err := create(ctx, db); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	return db
}

func TestClaimAgainstPostgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	quest, err := services.BuildQuest(&services.QuestInput{
		Title:  "Integration " + uuid.NewString()[:8],
		Points: 40,
		Status: string(models.QuestStatusPublished),
		Objectives: []services.ObjectiveInput{
			{Ref: "first", Title: "Sign the guild book"},
			{Title: "Report to the steward", DependsOn: "first"},
		},
	}, uuid.New(), now)
	if err != nil {
		t.Fatal(err)
	}
	if err := datastore.InsertQuest(ctx, db, quest); err != nil {
		t.Fatal(err)
	}

	engine := progression.New(datastore.NewProgressionStore(db), nobodyIsGM{})
	user := &models.Principal{ID: uuid.New(), Email: "integration@guild.test"}

	out, err := engine.AcceptQuest(ctx, user, quest.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	uq := out.UserQuest

	// second objective opens only after the first is approved
	for _, def := range quest.Objectives {
		var target *models.UserObjective
		for _, uo := range uq.Objectives {
			if uo.ObjectiveID == def.ID {
				target = uo
			}
		}
		if target == nil {
			t.Fatalf("no progress row for %s", def.Title)
		}
		if _, err := engine.MarkComplete(ctx, user, target.ID); err != nil {
			t.Fatalf("complete %s: %v", def.Title, err)
		}
	}

	const attempts = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.ClaimQuestReward(ctx, user, uq.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, progression.ErrAlreadyClaimed):
			default:
				t.Errorf("claim: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("successful claims = %d, want 1", success)
	}

	profile, err := datastore.FindProfileByID(ctx, db, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if profile.Points != 40 {
		t.Fatalf("points = %d, want 40", profile.Points)
	}

	awards, err := datastore.ListPointAwardsByUser(ctx, db, user.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(awards) != 1 || awards[0].Action != models.ActionQuestReward(uq.ID) {
		t.Fatalf("awards = %+v", awards)
	}

	weekly, err := datastore.GetUserTotalPointsFromTime(ctx, db, user.ID, now.Add(-time.Hour))
	if err != nil || weekly != 40 {
		t.Fatalf("weekly = %d, %v", weekly, err)
	}
}

func TestAcceptWaitsForObjectiveSwap(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	quest, err := services.BuildQuest(&services.QuestInput{
		Title:      "Swap " + uuid.NewString()[:8],
		Points:     10,
		Status:     string(models.QuestStatusPublished),
		Objectives: []services.ObjectiveInput{{Title: "Old errand"}},
	}, uuid.New(), now)
	if err != nil {
		t.Fatal(err)
	}
	if err := datastore.InsertQuest(ctx, db, quest); err != nil {
		t.Fatal(err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := datastore.LockQuest(ctx, tx, quest.ID); err != nil {
		t.Fatal(err)
	}
	replacement := &models.Objective{
		ID:           uuid.New(),
		QuestID:      quest.ID,
		Title:        "New errand",
		DisplayOrder: 1,
		EvidenceType: models.EvidenceNone,
		CreatedAt:    now,
	}
	quest.Objectives = []*models.Objective{replacement}
	if err := datastore.ReplaceQuestObjectives(ctx, tx, quest); err != nil {
		t.Fatal(err)
	}

	engine := progression.New(datastore.NewProgressionStore(db), nobodyIsGM{})
	user := &models.Principal{ID: uuid.New(), Email: "swap@guild.test"}

	type result struct {
		out *progression.Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := engine.AcceptQuest(ctx, user, quest.ID, nil)
		done <- result{out, err}
	}()

	select {
	case <-done:
		t.Fatal("accept finished while the quest was being edited")
	case <-time.After(300 * time.Millisecond):
	}

	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	res := <-done
	if res.err != nil {
		t.Fatal(res.err)
	}
	progress := res.out.UserQuest.Objectives
	if len(progress) != 1 || progress[0].ObjectiveID != replacement.ID {
		t.Fatalf("progress = %+v, want one row for the new objective", progress)
	}
}

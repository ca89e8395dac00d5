package progression

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"guildhall/internal/models"
)

type staticRoles map[uuid.UUID]bool

func (r staticRoles) IsGameMaster(ctx context.Context, userID uuid.UUID) (bool, error) {
	return r[userID], nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store  *memStore
	engine *Engine
	clock  *testClock
	user   *models.Principal
	other  *models.Principal
	gm     *models.Principal
	quest  *models.Quest
	o1, o2 *models.Objective
}

// newFixture publishes quest Q worth 100 points: O1 takes text evidence, O2
// takes a link and depends on O1.
func newFixture(t *testing.T, mutate ...func(q *models.Quest)) *fixture {
	t.Helper()

	store := newMemStore()
	clock := &testClock{t: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)}
	f := &fixture{
		store: store,
		clock: clock,
		user:  &models.Principal{ID: uuid.New(), Email: "adventurer@example.com"},
		other: &models.Principal{ID: uuid.New(), Email: "rival@example.com"},
		gm:    &models.Principal{ID: uuid.New(), Email: "gm@example.com"},
	}
	f.engine = New(store, staticRoles{f.gm.ID: true}, WithClock(clock.now))

	days := 7
	f.quest = &models.Quest{
		ID:             uuid.New(),
		Title:          "Clear the cellar",
		Points:         100,
		Status:         models.QuestStatusPublished,
		CompletionDays: &days,
	}
	for _, m := range mutate {
		m(f.quest)
	}

	f.o1 = &models.Objective{
		ID:               uuid.New(),
		QuestID:          f.quest.ID,
		Title:            "Find the key",
		Points:           50,
		DisplayOrder:     1,
		EvidenceRequired: true,
		EvidenceType:     models.EvidenceText,
	}
	f.o2 = &models.Objective{
		ID:               uuid.New(),
		QuestID:          f.quest.ID,
		Title:            "Open the door",
		Points:           50,
		DisplayOrder:     2,
		DependsOnID:      &f.o1.ID,
		EvidenceRequired: true,
		EvidenceType:     models.EvidenceLink,
	}
	store.addQuest(f.quest, f.o1, f.o2)
	return f
}

func (f *fixture) accept(t *testing.T) *models.UserQuest {
	t.Helper()
	out, err := f.engine.AcceptQuest(context.Background(), f.user, f.quest.ID, nil)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return out.UserQuest
}

func progressFor(t *testing.T, uq *models.UserQuest, objectiveID uuid.UUID) *models.UserObjective {
	t.Helper()
	for _, uo := range uq.Objectives {
		if uo.ObjectiveID == objectiveID {
			return uo
		}
	}
	t.Fatalf("no progress row for objective %s", objectiveID)
	return nil
}

func (f *fixture) completeBoth(t *testing.T, uq *models.UserQuest) {
	t.Helper()
	ctx := context.Background()
	uo1 := progressFor(t, uq, f.o1.ID)
	uo2 := progressFor(t, uq, f.o2.ID)

	steps := []func() (*Outcome, error){
		func() (*Outcome, error) {
			return f.engine.SubmitEvidence(ctx, f.user, uo1.ID, Evidence{Text: "The key was under the mat."})
		},
		func() (*Outcome, error) { return f.engine.ReviewSubmission(ctx, f.gm, uo1.ID, DecisionApprove, nil) },
		func() (*Outcome, error) {
			return f.engine.SubmitEvidence(ctx, f.user, uo2.ID, Evidence{URL: "https://example.com/door.jpg"})
		},
		func() (*Outcome, error) { return f.engine.ReviewSubmission(ctx, f.gm, uo2.ID, DecisionApprove, nil) },
	}
	for i, step := range steps {
		if _, err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

func TestTwoObjectiveChainClaimsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	uq := f.accept(t)
	if uq.Status != models.UserQuestAccepted {
		t.Fatalf("status = %s, want accepted", uq.Status)
	}
	if uq.Deadline == nil || !uq.Deadline.Equal(f.clock.now().AddDate(0, 0, 7)) {
		t.Fatalf("deadline = %v, want accepted_at + 7 days", uq.Deadline)
	}

	uo1 := progressFor(t, uq, f.o1.ID)
	uo2 := progressFor(t, uq, f.o2.ID)
	if uo1.Status != models.UserObjectiveAvailable || uo2.Status != models.UserObjectiveLocked {
		t.Fatalf("initial statuses = %s/%s, want available/locked", uo1.Status, uo2.Status)
	}

	out, err := f.engine.SubmitEvidence(ctx, f.user, uo1.ID, Evidence{Text: "The key was under the mat."})
	if err != nil {
		t.Fatalf("submit O1: %v", err)
	}
	if out.UserObjective.Status != models.UserObjectiveSubmitted {
		t.Fatalf("O1 = %s, want submitted", out.UserObjective.Status)
	}
	if out.UserQuest.Status != models.UserQuestInProgress || out.UserQuest.StartedAt == nil {
		t.Fatalf("quest = %s, want in_progress with started_at", out.UserQuest.Status)
	}

	out, err = f.engine.ReviewSubmission(ctx, f.gm, uo1.ID, DecisionApprove, nil)
	if err != nil {
		t.Fatalf("approve O1: %v", err)
	}
	if len(out.Unlocked) != 1 || out.Unlocked[0].ID != uo2.ID {
		t.Fatalf("unlocked = %v, want O2", out.Unlocked)
	}
	if got := f.store.userObjective(uo2.ID).Status; got != models.UserObjectiveAvailable {
		t.Fatalf("O2 = %s, want available", got)
	}

	if _, err := f.engine.SubmitEvidence(ctx, f.user, uo2.ID, Evidence{URL: "https://example.com/door.jpg"}); err != nil {
		t.Fatalf("submit O2: %v", err)
	}
	out, err = f.engine.ReviewSubmission(ctx, f.gm, uo2.ID, DecisionApprove, nil)
	if err != nil {
		t.Fatalf("approve O2: %v", err)
	}
	if out.UserQuest.Status != models.UserQuestReadyToClaim || out.UserQuest.ReadyToClaimAt == nil {
		t.Fatalf("quest = %s, want ready_to_claim", out.UserQuest.Status)
	}

	out, err = f.engine.ClaimQuestReward(ctx, f.user, uq.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if out.UserQuest.Status != models.UserQuestCompleted || out.UserQuest.CompletedAt == nil {
		t.Fatalf("quest = %s, want completed", out.UserQuest.Status)
	}
	if out.Awarded != 100 {
		t.Fatalf("awarded = %d, want 100", out.Awarded)
	}
	if got := f.store.pointsOf(f.user.ID); got != 100 {
		t.Fatalf("points = %d, want 100", got)
	}

	_, err = f.engine.ClaimQuestReward(ctx, f.user, uq.ID)
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claim err = %v, want ErrAlreadyClaimed", err)
	}
	if got := f.store.pointsOf(f.user.ID); got != 100 {
		t.Fatalf("points after second claim = %d, want 100", got)
	}
}

func TestConcurrentClaimsAwardOnce(t *testing.T) {
	f := newFixture(t)
	uq := f.accept(t)
	f.completeBoth(t, uq)

	const attempts = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		claimed int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.ClaimQuestReward(context.Background(), f.user, uq.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrAlreadyClaimed):
				claimed++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 || claimed != attempts-1 {
		t.Fatalf("success = %d, already claimed = %d", success, claimed)
	}
	if got := f.store.pointsOf(f.user.ID); got != 100 {
		t.Fatalf("points = %d, want 100", got)
	}
	if got := f.store.awardCount(); got != 1 {
		t.Fatalf("ledger entries = %d, want 1", got)
	}
}

func TestUnlockNeverRelocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uq := f.accept(t)
	uo1 := progressFor(t, uq, f.o1.ID)
	uo2 := progressFor(t, uq, f.o2.ID)

	if _, err := f.engine.SubmitEvidence(ctx, f.user, uo1.ID, Evidence{Text: "The key was under the mat."}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.ReviewSubmission(ctx, f.gm, uo1.ID, DecisionApprove, nil); err != nil {
		t.Fatal(err)
	}

	feedback := "That was the wrong key, try again."
	if _, err := f.engine.ReviewSubmission(ctx, f.gm, uo1.ID, DecisionReject, &feedback); err != nil {
		t.Fatalf("reject approved O1: %v", err)
	}
	if got := f.store.userObjective(uo1.ID).Status; got != models.UserObjectiveAvailable {
		t.Fatalf("O1 = %s, want available", got)
	}
	if got := f.store.userObjective(uo2.ID).Status; got != models.UserObjectiveAvailable {
		t.Fatalf("O2 = %s after O1 rejection, want available", got)
	}

	if _, err := f.engine.SubmitEvidence(ctx, f.user, uo1.ID, Evidence{Text: "Found the right key this time."}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.ReviewSubmission(ctx, f.gm, uo1.ID, DecisionApprove, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.UncheckObjective(ctx, f.user, uo1.ID); err != nil {
		t.Fatalf("uncheck O1: %v", err)
	}
	if got := f.store.userObjective(uo2.ID).Status; got != models.UserObjectiveAvailable {
		t.Fatalf("O2 = %s after O1 uncheck, want available", got)
	}
}

func TestAcceptReusesTerminalAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uq := f.accept(t)

	_, err := f.engine.AcceptQuest(ctx, f.user, f.quest.ID, nil)
	if !errors.Is(err, ErrAlreadyAccepted) {
		t.Fatalf("second accept err = %v, want ErrAlreadyAccepted", err)
	}

	uo1 := progressFor(t, uq, f.o1.ID)
	if _, err := f.engine.SubmitEvidence(ctx, f.user, uo1.ID, Evidence{Text: "The key was under the mat."}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.AbandonQuest(ctx, f.user, uq.ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if got := f.store.userQuest(uq.ID); got.Status != models.UserQuestAbandoned || got.AbandonedAt == nil {
		t.Fatalf("quest = %s, want abandoned", got.Status)
	}

	f.clock.advance(time.Hour)
	out, err := f.engine.AcceptQuest(ctx, f.user, f.quest.ID, nil)
	if err != nil {
		t.Fatalf("re-accept: %v", err)
	}
	again := out.UserQuest
	if again.ID != uq.ID {
		t.Fatalf("re-accept created row %s, want reuse of %s", again.ID, uq.ID)
	}
	if again.Status != models.UserQuestAccepted || again.AbandonedAt != nil || again.StartedAt != nil {
		t.Fatalf("re-accepted row not reset: %+v", again)
	}
	if !again.AcceptedAt.Equal(f.clock.now()) {
		t.Fatalf("accepted_at = %v, want %v", again.AcceptedAt, f.clock.now())
	}

	reset := progressFor(t, again, f.o1.ID)
	if reset.ID != uo1.ID {
		t.Fatalf("progress row %s, want reuse of %s", reset.ID, uo1.ID)
	}
	if reset.Status != models.UserObjectiveAvailable || reset.EvidenceText != nil {
		t.Fatalf("O1 not reset: status %s", reset.Status)
	}
	if got := progressFor(t, again, f.o2.ID).Status; got != models.UserObjectiveLocked {
		t.Fatalf("O2 = %s, want locked after reset", got)
	}
}

func TestAcceptGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("draft quest", func(t *testing.T) {
		f := newFixture(t, func(q *models.Quest) { q.Status = models.QuestStatusDraft })
		_, err := f.engine.AcceptQuest(ctx, f.user, f.quest.ID, nil)
		if !errors.Is(err, ErrQuestNotAvailable) {
			t.Fatalf("err = %v, want ErrQuestNotAvailable", err)
		}
	})

	t.Run("unknown quest", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.AcceptQuest(ctx, f.user, uuid.New(), nil)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("anonymous", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.AcceptQuest(ctx, nil, f.quest.ID, nil)
		if !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("err = %v, want ErrNotAuthenticated", err)
		}
	})

	t.Run("exclusive code", func(t *testing.T) {
		code := "OWLBEAR"
		f := newFixture(t, func(q *models.Quest) {
			q.IsExclusive = true
			q.ExclusiveCode = &code
		})

		_, err := f.engine.AcceptQuest(ctx, f.user, f.quest.ID, nil)
		if !errors.Is(err, ErrExclusiveCodeRequired) {
			t.Fatalf("missing code err = %v", err)
		}

		wrong := "GRIFFON"
		_, err = f.engine.AcceptQuest(ctx, f.user, f.quest.ID, &wrong)
		if !errors.Is(err, ErrInvalidCode) || !errors.Is(err, ErrValidation) {
			t.Fatalf("wrong code err = %v", err)
		}

		padded := " OWLBEAR "
		if _, err := f.engine.AcceptQuest(ctx, f.user, f.quest.ID, &padded); err != nil {
			t.Fatalf("right code: %v", err)
		}
	})

	t.Run("completed quest", func(t *testing.T) {
		f := newFixture(t)
		uq := f.accept(t)
		f.completeBoth(t, uq)
		if _, err := f.engine.ClaimQuestReward(ctx, f.user, uq.ID); err != nil {
			t.Fatal(err)
		}
		_, err := f.engine.AcceptQuest(ctx, f.user, f.quest.ID, nil)
		if !errors.Is(err, ErrAlreadyCompleted) {
			t.Fatalf("err = %v, want ErrAlreadyCompleted", err)
		}
	})
}

func TestRejectionReturnsObjectiveForResubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uq := f.accept(t)
	uo1 := progressFor(t, uq, f.o1.ID)

	if _, err := f.engine.SubmitEvidence(ctx, f.user, uo1.ID, Evidence{Text: "The key was under the mat."}); err != nil {
		t.Fatal(err)
	}

	short := "nope"
	_, err := f.engine.ReviewSubmission(ctx, f.gm, uo1.ID, DecisionReject, &short)
	if !errors.Is(err, ErrFeedbackRequired) {
		t.Fatalf("short feedback err = %v, want ErrFeedbackRequired", err)
	}
	_, err = f.engine.ReviewSubmission(ctx, f.gm, uo1.ID, DecisionReject, nil)
	if !errors.Is(err, ErrFeedbackRequired) {
		t.Fatalf("missing feedback err = %v, want ErrFeedbackRequired", err)
	}
	if got := f.store.userObjective(uo1.ID).Status; got != models.UserObjectiveSubmitted {
		t.Fatalf("O1 = %s after failed review, want submitted", got)
	}

	feedback := "Please describe where exactly you found it."
	out, err := f.engine.ReviewSubmission(ctx, f.gm, uo1.ID, DecisionReject, &feedback)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	got := out.UserObjective
	if got.Status != models.UserObjectiveAvailable {
		t.Fatalf("O1 = %s, want available", got.Status)
	}
	if got.EvidenceText != nil || got.SubmittedAt != nil {
		t.Fatal("evidence not cleared on rejection")
	}
	if got.Feedback == nil || *got.Feedback != feedback || got.ReviewedBy == nil || *got.ReviewedBy != f.gm.ID {
		t.Fatal("feedback or reviewer not recorded")
	}

	if _, err := f.engine.SubmitEvidence(ctx, f.user, uo1.ID, Evidence{Text: "Under the mat by the back door."}); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
}

func TestSubmitEvidenceGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uq := f.accept(t)
	uo1 := progressFor(t, uq, f.o1.ID)
	uo2 := progressFor(t, uq, f.o2.ID)

	cases := []struct {
		name string
		who  *models.Principal
		id   uuid.UUID
		ev   Evidence
		want error
	}{
		{"locked", f.user, uo2.ID, Evidence{URL: "https://example.com/door.jpg"}, ErrNotAvailable},
		{"not owner", f.other, uo1.ID, Evidence{Text: "The key was under the mat."}, ErrNotAuthorized},
		{"unknown", f.user, uuid.New(), Evidence{Text: "The key was under the mat."}, ErrNotFound},
		{"empty", f.user, uo1.ID, Evidence{}, ErrEvidenceMissing},
		{"link for text objective", f.user, uo1.ID, Evidence{URL: "https://example.com"}, ErrEvidenceType},
		{"too short", f.user, uo1.ID, Evidence{Text: "short"}, ErrEvidenceLength},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.SubmitEvidence(ctx, tc.who, tc.id, tc.ev)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if _, err := f.engine.SubmitEvidence(ctx, f.user, uo1.ID, Evidence{Text: "The key was under the mat."}); err != nil {
		t.Fatal(err)
	}
	_, err := f.engine.SubmitEvidence(ctx, f.user, uo1.ID, Evidence{Text: "The key was under the mat."})
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("resubmit err = %v, want ErrAlreadySubmitted", err)
	}
	if _, err := f.engine.ReviewSubmission(ctx, f.gm, uo1.ID, DecisionApprove, nil); err != nil {
		t.Fatal(err)
	}
	_, err = f.engine.SubmitEvidence(ctx, f.user, uo1.ID, Evidence{Text: "The key was under the mat."})
	if !errors.Is(err, ErrAlreadyApproved) {
		t.Fatalf("submit approved err = %v, want ErrAlreadyApproved", err)
	}
}

func TestMarkCompleteAutoApproves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	checkIn := &models.Objective{
		ID:           uuid.New(),
		QuestID:      f.quest.ID,
		Title:        "Check in at the hall",
		DisplayOrder: 0,
		EvidenceType: models.EvidenceNone,
	}
	f.store.addQuest(f.quest, checkIn)

	uq := f.accept(t)
	uo := progressFor(t, uq, checkIn.ID)
	uo1 := progressFor(t, uq, f.o1.ID)

	_, err := f.engine.SubmitEvidence(ctx, f.user, uo.ID, Evidence{Text: "I am at the hall now."})
	if !errors.Is(err, ErrEvidenceNotRequired) {
		t.Fatalf("submit err = %v, want ErrEvidenceNotRequired", err)
	}
	_, err = f.engine.MarkComplete(ctx, f.user, uo1.ID)
	if !errors.Is(err, ErrEvidenceRequired) {
		t.Fatalf("mark complete err = %v, want ErrEvidenceRequired", err)
	}

	out, err := f.engine.MarkComplete(ctx, f.user, uo.ID)
	if err != nil {
		t.Fatalf("mark complete: %v", err)
	}
	if out.UserObjective.Status != models.UserObjectiveApproved || out.UserObjective.ApprovedAt == nil {
		t.Fatalf("status = %s, want approved", out.UserObjective.Status)
	}
	if out.UserQuest.Status != models.UserQuestInProgress {
		t.Fatalf("quest = %s, want in_progress", out.UserQuest.Status)
	}
}

func TestUncheckDemotesReadyQuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uq := f.accept(t)
	uo2 := progressFor(t, uq, f.o2.ID)

	_, err := f.engine.UncheckObjective(ctx, f.user, uo2.ID)
	if !errors.Is(err, ErrCannotUnlock) {
		t.Fatalf("uncheck locked err = %v, want ErrCannotUnlock", err)
	}

	f.completeBoth(t, uq)
	if got := f.store.userQuest(uq.ID).Status; got != models.UserQuestReadyToClaim {
		t.Fatalf("quest = %s, want ready_to_claim", got)
	}

	out, err := f.engine.UncheckObjective(ctx, f.user, uo2.ID)
	if err != nil {
		t.Fatalf("uncheck: %v", err)
	}
	if out.UserObjective.Status != models.UserObjectiveAvailable || out.UserObjective.EvidenceURL != nil {
		t.Fatal("objective not reset")
	}
	if out.UserQuest.Status != models.UserQuestInProgress || out.UserQuest.ReadyToClaimAt != nil {
		t.Fatalf("quest = %s, want in_progress without ready_to_claim_at", out.UserQuest.Status)
	}

	_, err = f.engine.ClaimQuestReward(ctx, f.user, uq.ID)
	if !errors.Is(err, ErrObjectivesIncomplete) {
		t.Fatalf("claim err = %v, want ErrObjectivesIncomplete", err)
	}
	if got := f.store.pointsOf(f.user.ID); got != 0 {
		t.Fatalf("points = %d, want 0", got)
	}
}

func TestInactiveQuestRejectsObjectiveWork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uq := f.accept(t)
	uo1 := progressFor(t, uq, f.o1.ID)

	if _, err := f.engine.AbandonQuest(ctx, f.user, uq.ID); err != nil {
		t.Fatal(err)
	}

	_, err := f.engine.SubmitEvidence(ctx, f.user, uo1.ID, Evidence{Text: "The key was under the mat."})
	if !errors.Is(err, ErrQuestInactive) {
		t.Fatalf("submit err = %v, want ErrQuestInactive", err)
	}
	_, err = f.engine.UncheckObjective(ctx, f.user, uo1.ID)
	if !errors.Is(err, ErrQuestInactive) {
		t.Fatalf("uncheck err = %v, want ErrQuestInactive", err)
	}
	_, err = f.engine.ClaimQuestReward(ctx, f.user, uq.ID)
	if !errors.Is(err, ErrQuestInactive) {
		t.Fatalf("claim err = %v, want ErrQuestInactive", err)
	}
	_, err = f.engine.AbandonQuest(ctx, f.user, uq.ID)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("abandon twice err = %v, want invalid state", err)
	}
}

func TestRolesGateReviews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uq := f.accept(t)
	uo1 := progressFor(t, uq, f.o1.ID)

	if _, err := f.engine.SubmitEvidence(ctx, f.user, uo1.ID, Evidence{Text: "The key was under the mat."}); err != nil {
		t.Fatal(err)
	}
	_, err := f.engine.ReviewSubmission(ctx, f.user, uo1.ID, DecisionApprove, nil)
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("self review err = %v, want ErrNotAuthorized", err)
	}
	_, err = f.engine.ReviewSubmission(ctx, f.gm, uo1.ID, Decision("maybe"), nil)
	if !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("bad decision err = %v, want ErrInvalidDecision", err)
	}
	_, err = f.engine.ReviewQuestCompletion(ctx, f.user, uq.ID, true, nil)
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("final review err = %v, want ErrNotAuthorized", err)
	}
	later := f.clock.now().Add(48 * time.Hour)
	_, err = f.engine.DecideExtension(ctx, f.other, uq.ID, true, &later)
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("decide extension err = %v, want ErrNotAuthorized", err)
	}
	_, err = f.engine.ClaimQuestReward(ctx, f.other, uq.ID)
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("foreign claim err = %v, want ErrNotAuthorized", err)
	}
}

func TestFinalApprovalGate(t *testing.T) {
	f := newFixture(t, func(q *models.Quest) { q.RequiresFinalApproval = true })
	ctx := context.Background()
	uq := f.accept(t)
	f.completeBoth(t, uq)

	out, err := f.engine.ClaimQuestReward(ctx, f.user, uq.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if out.UserQuest.Status != models.UserQuestAwaitingFinalApproval || out.Awarded != 0 {
		t.Fatalf("quest = %s awarded %d, want awaiting approval and nothing awarded", out.UserQuest.Status, out.Awarded)
	}
	if got := f.store.pointsOf(f.user.ID); got != 0 {
		t.Fatalf("points = %d, want 0", got)
	}

	_, err = f.engine.ClaimQuestReward(ctx, f.user, uq.ID)
	if !errors.Is(err, ErrAwaitingApproval) {
		t.Fatalf("claim while awaiting err = %v", err)
	}

	note := "Photo is blurry, retake it."
	out, err = f.engine.ReviewQuestCompletion(ctx, f.gm, uq.ID, false, &note)
	if err != nil {
		t.Fatalf("final reject: %v", err)
	}
	if out.UserQuest.Status != models.UserQuestInProgress || out.UserQuest.ReadyToClaimAt != nil {
		t.Fatalf("quest = %s, want in_progress", out.UserQuest.Status)
	}
	if out.UserQuest.FinalFeedback == nil || *out.UserQuest.FinalFeedback != note {
		t.Fatal("final feedback not recorded")
	}

	_, err = f.engine.ReviewQuestCompletion(ctx, f.gm, uq.ID, true, nil)
	if !errors.Is(err, ErrNotAwaitingApproval) {
		t.Fatalf("review while in progress err = %v", err)
	}

	if _, err := f.engine.ClaimQuestReward(ctx, f.user, uq.ID); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	out, err = f.engine.ReviewQuestCompletion(ctx, f.gm, uq.ID, true, nil)
	if err != nil {
		t.Fatalf("final approve: %v", err)
	}
	if out.UserQuest.Status != models.UserQuestCompleted || out.Awarded != 100 {
		t.Fatalf("quest = %s awarded %d", out.UserQuest.Status, out.Awarded)
	}
	if got := f.store.pointsOf(f.user.ID); got != 100 {
		t.Fatalf("points = %d, want 100", got)
	}

	_, err = f.engine.ReviewQuestCompletion(ctx, f.gm, uq.ID, true, nil)
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second approval err = %v, want ErrAlreadyClaimed", err)
	}
	if got := f.store.pointsOf(f.user.ID); got != 100 {
		t.Fatalf("points = %d, want 100", got)
	}
}

func TestExtensionRequestReasonLength(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uq := f.accept(t)

	_, err := f.engine.RequestExtension(ctx, f.user, uq.ID, "too busy")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("8 char reason err = %v, want validation", err)
	}
	if f.store.userQuest(uq.ID).ExtensionRequested {
		t.Fatal("failed request changed the row")
	}

	out, err := f.engine.RequestExtension(ctx, f.user, uq.ID, "sick today")
	if err != nil {
		t.Fatalf("10 char reason: %v", err)
	}
	if !out.UserQuest.ExtensionRequested || out.UserQuest.ExtensionGranted != nil || out.UserQuest.ExtensionRequestedAt == nil {
		t.Fatalf("extension fields = %v/%v", out.UserQuest.ExtensionRequested, out.UserQuest.ExtensionGranted)
	}

	_, err = f.engine.RequestExtension(ctx, f.user, uq.ID, "still sick today")
	if !errors.Is(err, ErrAlreadyRequested) {
		t.Fatalf("second request err = %v, want ErrAlreadyRequested", err)
	}
}

func TestExtensionRequiresDeadline(t *testing.T) {
	f := newFixture(t, func(q *models.Quest) { q.CompletionDays = nil })
	uq := f.accept(t)
	if uq.Deadline != nil {
		t.Fatal("quest without completion window got a deadline")
	}
	_, err := f.engine.RequestExtension(context.Background(), f.user, uq.ID, "need more time please")
	if !errors.Is(err, ErrNoDeadline) {
		t.Fatalf("err = %v, want ErrNoDeadline", err)
	}
}

func TestDecideExtension(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uq := f.accept(t)

	later := f.clock.now().AddDate(0, 0, 14)
	_, err := f.engine.DecideExtension(ctx, f.gm, uq.ID, true, &later)
	if !errors.Is(err, ErrNoPendingExtension) {
		t.Fatalf("decide without request err = %v", err)
	}

	if _, err := f.engine.RequestExtension(ctx, f.user, uq.ID, "travelling this week"); err != nil {
		t.Fatal(err)
	}

	past := f.clock.now().Add(-time.Minute)
	_, err = f.engine.DecideExtension(ctx, f.gm, uq.ID, true, &past)
	if !errors.Is(err, ErrDeadlineNotInFuture) {
		t.Fatalf("past deadline err = %v", err)
	}
	_, err = f.engine.DecideExtension(ctx, f.gm, uq.ID, true, nil)
	if !errors.Is(err, ErrDeadlineNotInFuture) {
		t.Fatalf("missing deadline err = %v", err)
	}

	out, err := f.engine.DecideExtension(ctx, f.gm, uq.ID, true, &later)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	got := out.UserQuest
	if got.ExtensionGranted == nil || !*got.ExtensionGranted {
		t.Fatal("extension not granted")
	}
	if !got.Deadline.Equal(later) || !got.ExtendedDeadline.Equal(later) {
		t.Fatalf("deadline = %v, want %v", got.Deadline, later)
	}
	if got.ExtensionDecidedBy == nil || *got.ExtensionDecidedBy != f.gm.ID {
		t.Fatal("decider not recorded")
	}

	_, err = f.engine.DecideExtension(ctx, f.gm, uq.ID, false, nil)
	if !errors.Is(err, ErrNoPendingExtension) {
		t.Fatalf("second decision err = %v", err)
	}
}

func TestDenyExtensionKeepsDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uq := f.accept(t)
	deadline := *uq.Deadline

	if _, err := f.engine.RequestExtension(ctx, f.user, uq.ID, "travelling this week"); err != nil {
		t.Fatal(err)
	}
	out, err := f.engine.DecideExtension(ctx, f.gm, uq.ID, false, nil)
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	if out.UserQuest.ExtensionGranted == nil || *out.UserQuest.ExtensionGranted {
		t.Fatal("extension not denied")
	}
	if !out.UserQuest.Deadline.Equal(deadline) || out.UserQuest.ExtendedDeadline != nil {
		t.Fatal("deadline changed on denial")
	}
}

func TestExpiryAndRevival(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uq := f.accept(t)

	if _, err := f.engine.RequestExtension(ctx, f.user, uq.ID, "travelling this week"); err != nil {
		t.Fatal(err)
	}

	expired, err := f.engine.ExpireOverdue(ctx, 100)
	if err != nil || len(expired) != 0 {
		t.Fatalf("expired %d before deadline, err %v", len(expired), err)
	}

	f.clock.advance(8 * 24 * time.Hour)
	expired, err = f.engine.ExpireOverdue(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 1 || expired[0].ID != uq.ID {
		t.Fatalf("expired = %v, want the attempt", expired)
	}
	if got := f.store.userQuest(uq.ID); got.Status != models.UserQuestExpired || got.ExpiredAt == nil {
		t.Fatalf("quest = %s, want expired", got.Status)
	}

	later := f.clock.now().AddDate(0, 0, 3)
	out, err := f.engine.DecideExtension(ctx, f.gm, uq.ID, true, &later)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if out.UserQuest.Status != models.UserQuestAccepted || out.UserQuest.ExpiredAt != nil {
		t.Fatalf("quest = %s, want revived to accepted", out.UserQuest.Status)
	}
}

func TestExpiredAttemptCanBeReaccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uq := f.accept(t)

	f.clock.advance(8 * 24 * time.Hour)
	if _, err := f.engine.ExpireOverdue(ctx, 100); err != nil {
		t.Fatal(err)
	}

	_, err := f.engine.RequestExtension(ctx, f.user, uq.ID, "travelling this week")
	if err != nil {
		t.Fatalf("request on expired attempt: %v", err)
	}

	out, err := f.engine.AcceptQuest(ctx, f.user, f.quest.ID, nil)
	if err != nil {
		t.Fatalf("re-accept: %v", err)
	}
	if out.UserQuest.ID != uq.ID || out.UserQuest.ExpiredAt != nil || out.UserQuest.ExtensionRequested {
		t.Fatal("expired attempt not reset on re-accept")
	}
	if !out.UserQuest.Deadline.Equal(f.clock.now().AddDate(0, 0, 7)) {
		t.Fatalf("deadline = %v, want a fresh window", out.UserQuest.Deadline)
	}
}

func TestErrorFamilies(t *testing.T) {
	if !errors.Is(ErrAlreadyClaimed, ErrInvalidState) {
		t.Fatal("ErrAlreadyClaimed should be an invalid state error")
	}
	if !errors.Is(ErrReasonLength, ErrValidation) {
		t.Fatal("ErrReasonLength should be a validation error")
	}
	if errors.Is(ErrAlreadyClaimed, ErrAlreadyAccepted) {
		t.Fatal("distinct codes must not match")
	}
	if errors.Is(ErrInvalidCode, ErrInvalidState) {
		t.Fatal("kinds must not cross")
	}
	if !errors.Is(ErrCannotAbandon.WithMessage("custom"), ErrCannotAbandon) {
		t.Fatal("reworded error must keep its identity")
	}
}

func TestClaimNeedsProgressForEveryObjective(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uq := f.accept(t)

	f.store.swapObjectives(f.quest.ID, &models.Objective{
		ID:           uuid.New(),
		QuestID:      f.quest.ID,
		Title:        "Light the torches",
		DisplayOrder: 1,
		EvidenceType: models.EvidenceNone,
	})

	_, err := f.engine.ClaimQuestReward(ctx, f.user, uq.ID)
	if !errors.Is(err, ErrObjectivesIncomplete) {
		t.Fatalf("claim err = %v, want ErrObjectivesIncomplete", err)
	}
	if got := f.store.pointsOf(f.user.ID); got != 0 {
		t.Fatalf("points = %d, want 0", got)
	}
	if got := f.store.userQuest(uq.ID).Status; got != models.UserQuestAccepted {
		t.Fatalf("quest = %s, want accepted", got)
	}
}

func TestFinalApprovalNeedsProgressForEveryObjective(t *testing.T) {
	f := newFixture(t, func(q *models.Quest) { q.RequiresFinalApproval = true })
	ctx := context.Background()
	uq := f.accept(t)
	f.completeBoth(t, uq)

	if _, err := f.engine.ClaimQuestReward(ctx, f.user, uq.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	extra := &models.Objective{ID: uuid.New(), QuestID: f.quest.ID, Title: "Report back", DisplayOrder: 3}
	f.store.addQuest(f.quest, extra)

	_, err := f.engine.ReviewQuestCompletion(ctx, f.gm, uq.ID, true, nil)
	if !errors.Is(err, ErrObjectivesIncomplete) {
		t.Fatalf("final approve err = %v, want ErrObjectivesIncomplete", err)
	}
	if got := f.store.pointsOf(f.user.ID); got != 0 {
		t.Fatalf("points = %d, want 0", got)
	}
}

func TestExpireRejectsEmptyBatch(t *testing.T) {
	f := newFixture(t)
	uq := f.accept(t)
	f.clock.advance(8 * 24 * time.Hour)

	for _, limit := range []int{0, -5} {
		expired, err := f.engine.ExpireOverdue(context.Background(), limit)
		var perr *Error
		if !errors.As(err, &perr) || perr.Kind != KindValidation || expired != nil {
			t.Fatalf("limit %d: expired=%v err=%v, want a validation error", limit, expired, err)
		}
	}
	if got := f.store.userQuest(uq.ID).Status; got != models.UserQuestAccepted {
		t.Fatalf("quest = %s, want untouched", got)
	}
}

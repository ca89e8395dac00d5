package progression

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"guildhall/internal/models"
)

// Outcome is what a successful operation changed.
type Outcome struct {
	Quest         *models.Quest
	UserQuest     *models.UserQuest
	UserObjective *models.UserObjective
	// objectives opened by this call
	Unlocked []*models.UserObjective
	// points credited by this call
	Awarded int
}

// Engine owns every user quest and user objective transition. Each operation
// runs in one store transaction and either applies fully or not at all.
type Engine struct {
	repo  Repository
	roles RoleChecker
	now   func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func New(repo Repository, roles RoleChecker, opts ...Option) *Engine {
	e := &Engine{
		repo:  repo,
		roles: roles,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type attempt struct {
	quest      *models.Quest
	userQuest  *models.UserQuest
	objectives map[uuid.UUID]*models.Objective
	progress   []*models.UserObjective
	awarded    int
}

func (a *attempt) find(userObjectiveID uuid.UUID) *models.UserObjective {
	for _, uo := range a.progress {
		if uo.ID == userObjectiveID {
			return uo
		}
	}
	return nil
}

func (a *attempt) outcome(uo *models.UserObjective, unlocked []*models.UserObjective) *Outcome {
	a.userQuest.Objectives = a.progress
	return &Outcome{
		Quest:         a.quest,
		UserQuest:     a.userQuest,
		UserObjective: uo,
		Unlocked:      unlocked,
		Awarded:       a.awarded,
	}
}

func loadAttempt(ctx context.Context, tx Tx, userQuestID uuid.UUID) (*attempt, error) {
	uq, err := tx.GetUserQuest(ctx, userQuestID)
	if err != nil {
		return nil, NotFound(err, "user_quest")
	}

	quest, err := tx.GetQuest(ctx, uq.QuestID)
	if err != nil {
		return nil, NotFound(err, "quest")
	}

	defs, err := tx.ListObjectives(ctx, quest.ID)
	if err != nil {
		return nil, err
	}

	progress, err := tx.ListUserObjectives(ctx, uq.ID)
	if err != nil {
		return nil, err
	}

	quest.Objectives = defs
	objectives := make(map[uuid.UUID]*models.Objective, len(defs))
	for _, o := range defs {
		objectives[o.ID] = o
	}

	return &attempt{quest: quest, userQuest: uq, objectives: objectives, progress: progress}, nil
}

func (e *Engine) requireGameMaster(ctx context.Context, p *models.Principal) error {
	if p == nil {
		return ErrNotAuthenticated
	}
	ok, err := e.roles.IsGameMaster(ctx, p.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

func requireOwner(p *models.Principal, uq *models.UserQuest) error {
	if uq.UserID != p.ID {
		return ErrNotAuthorized
	}
	return nil
}

func requireActive(uq *models.UserQuest) error {
	if uq.Status.IsTerminal() {
		return ErrQuestInactive
	}
	return nil
}

// withObjective loads the attempt owning a user objective, applies fn, then
// settles unlocks and quest readiness and persists everything fn touched.
func (e *Engine) withObjective(ctx context.Context, userObjectiveID uuid.UUID, fn func(a *attempt, uo *models.UserObjective, now time.Time) error) (*Outcome, error) {
	var out *Outcome
	err := e.repo.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		ref, err := tx.GetUserObjective(ctx, userObjectiveID)
		if err != nil {
			return NotFound(err, "user_objective")
		}

		a, err := loadAttempt(ctx, tx, ref.UserQuestID)
		if err != nil {
			return err
		}

		uo := a.find(userObjectiveID)
		if uo == nil {
			return NotFound(sql.ErrNoRows, "user_objective")
		}

		now := e.now()
		if err := fn(a, uo, now); err != nil {
			return err
		}
		uo.UpdatedAt = now

		unlocked := settle(a, now)
		if err := tx.UpdateUserObjectives(ctx, append([]*models.UserObjective{uo}, unlocked...)...); err != nil {
			return err
		}
		if err := tx.UpdateUserQuest(ctx, a.userQuest); err != nil {
			return err
		}

		out = a.outcome(uo, unlocked)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) withQuest(ctx context.Context, userQuestID uuid.UUID, fn func(ctx context.Context, tx Tx, a *attempt, now time.Time) error) (*Outcome, error) {
	var out *Outcome
	err := e.repo.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		a, err := loadAttempt(ctx, tx, userQuestID)
		if err != nil {
			return err
		}

		now := e.now()
		if err := fn(ctx, tx, a, now); err != nil {
			return err
		}
		a.userQuest.UpdatedAt = now

		if err := tx.UpdateUserQuest(ctx, a.userQuest); err != nil {
			return err
		}

		out = a.outcome(nil, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// settle opens objectives whose predecessor is approved and moves the quest in
// or out of ready_to_claim to match its objectives.
func settle(a *attempt, now time.Time) []*models.UserObjective {
	unlocked := SyncLocks(a.progress)
	for _, uo := range unlocked {
		uo.UpdatedAt = now
	}

	uq := a.userQuest
	complete := allApproved(a.objectives, a.progress)
	switch {
	case complete && canFire(uq, questReady):
		//nolint:errcheck
		transitionQuest(uq, questReady)
		uq.ReadyToClaimAt = &now
	case !complete && canFire(uq, questRegress):
		//nolint:errcheck
		transitionQuest(uq, questRegress)
		uq.ReadyToClaimAt = nil
	}
	uq.UpdatedAt = now

	return unlocked
}

func start(uq *models.UserQuest, now time.Time) {
	if canFire(uq, questStart) {
		//nolint:errcheck
		transitionQuest(uq, questStart)
		uq.StartedAt = &now
	}
}

func (e *Engine) award(ctx context.Context, tx Tx, a *attempt, now time.Time) error {
	uq := a.userQuest
	uq.CompletedAt = &now

	ok, err := tx.AwardPoints(ctx, &models.PointAward{
		UserID:    uq.UserID,
		Points:    a.quest.Points,
		Action:    models.ActionQuestReward(uq.ID),
		CreatedAt: now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyClaimed
	}

	a.awarded = a.quest.Points
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// AcceptQuest starts an attempt at a published quest. A previous abandoned or
// expired attempt is reused in place so a user never holds two rows for one quest.
func (e *Engine) AcceptQuest(ctx context.Context, p *models.Principal, questID uuid.UUID, exclusiveCode *string) (*Outcome, error) {
	if p == nil {
		return nil, ErrNotAuthenticated
	}

	var out *Outcome
	err := e.repo.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		quest, err := tx.GetQuest(ctx, questID)
		if err != nil {
			return NotFound(err, "quest")
		}
		if quest.Status != models.QuestStatusPublished {
			return ErrQuestNotAvailable
		}
		if err := checkExclusiveCode(quest, exclusiveCode); err != nil {
			return err
		}

		defs, err := tx.ListObjectives(ctx, quest.ID)
		if err != nil {
			return err
		}

		now := e.now()
		var previous []*models.UserObjective

		uq, err := tx.FindUserQuest(ctx, p.ID, quest.ID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			uq = &models.UserQuest{
				ID:        uuid.New(),
				UserID:    p.ID,
				QuestID:   quest.ID,
				Status:    models.UserQuestAccepted,
				CreatedAt: now,
			}
			resetAttempt(uq, quest, now)
			if err := tx.InsertUserQuest(ctx, uq); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := transitionQuest(uq, questReaccept); err != nil {
				return err
			}
			previous, err = tx.ListUserObjectives(ctx, uq.ID)
			if err != nil {
				return err
			}
			resetAttempt(uq, quest, now)
			if err := tx.UpdateUserQuest(ctx, uq); err != nil {
				return err
			}
		}

		progress := seedProgress(uq, defs, previous, now)
		if err := tx.ReplaceUserObjectives(ctx, uq.ID, progress); err != nil {
			return err
		}

		uq.Objectives = progress
		out = &Outcome{Quest: quest, UserQuest: uq}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func resetAttempt(uq *models.UserQuest, quest *models.Quest, now time.Time) {
	uq.Status = models.UserQuestAccepted
	uq.AcceptedAt = now
	uq.UpdatedAt = now
	uq.StartedAt = nil
	uq.CompletedAt = nil
	uq.AbandonedAt = nil
	uq.ExpiredAt = nil
	uq.ReadyToClaimAt = nil

	uq.Deadline = nil
	if quest.CompletionDays != nil && *quest.CompletionDays > 0 {
		deadline := now.AddDate(0, 0, *quest.CompletionDays)
		uq.Deadline = &deadline
	}

	uq.ExtensionRequested = false
	uq.ExtensionReason = nil
	uq.ExtensionRequestedAt = nil
	uq.ExtensionGranted = nil
	uq.ExtendedDeadline = nil
	uq.ExtensionDecidedBy = nil
	uq.ExtensionDecidedAt = nil

	uq.FinalReviewedBy = nil
	uq.FinalReviewedAt = nil
	uq.FinalFeedback = nil
}

// seedProgress builds one fresh row per objective, keeping the ids of rows a
// previous attempt left behind.
func seedProgress(uq *models.UserQuest, defs []*models.Objective, previous []*models.UserObjective, now time.Time) []*models.UserObjective {
	reuse := make(map[uuid.UUID]uuid.UUID, len(previous))
	for _, uo := range previous {
		reuse[uo.ObjectiveID] = uo.ID
	}

	progress := make([]*models.UserObjective, 0, len(defs))
	for _, def := range defs {
		id, ok := reuse[def.ID]
		if !ok {
			id = uuid.New()
		}

		status := models.UserObjectiveAvailable
		if def.DependsOnID != nil {
			status = models.UserObjectiveLocked
		}

		progress = append(progress, &models.UserObjective{
			ID:                   id,
			UserQuestID:          uq.ID,
			ObjectiveID:          def.ID,
			UserID:               uq.UserID,
			DependsOnObjectiveID: def.DependsOnID,
			Status:               status,
			CreatedAt:            now,
			UpdatedAt:            now,
		})
	}
	return progress
}

// SubmitEvidence hands an objective's evidence to the GM review queue.
func (e *Engine) SubmitEvidence(ctx context.Context, p *models.Principal, userObjectiveID uuid.UUID, ev Evidence) (*Outcome, error) {
	if p == nil {
		return nil, ErrNotAuthenticated
	}

	return e.withObjective(ctx, userObjectiveID, func(a *attempt, uo *models.UserObjective, now time.Time) error {
		if err := requireOwner(p, a.userQuest); err != nil {
			return err
		}
		if err := requireActive(a.userQuest); err != nil {
			return err
		}

		def := a.objectives[uo.ObjectiveID]
		if def == nil || !def.EvidenceRequired {
			return ErrEvidenceNotRequired
		}
		if err := userObjectiveRules[objectiveSubmit].check(uo.Status); err != nil {
			return err
		}

		ev, err := CheckEvidence(def.EvidenceType, ev)
		if err != nil {
			return err
		}

		//nolint:errcheck
		transitionObjective(uo, objectiveSubmit)
		uo.EvidenceText = optional(ev.Text)
		uo.EvidenceURL = optional(ev.URL)
		uo.SubmittedAt = &now
		start(a.userQuest, now)
		return nil
	})
}

// MarkComplete approves an objective that takes no evidence.
func (e *Engine) MarkComplete(ctx context.Context, p *models.Principal, userObjectiveID uuid.UUID) (*Outcome, error) {
	if p == nil {
		return nil, ErrNotAuthenticated
	}

	return e.withObjective(ctx, userObjectiveID, func(a *attempt, uo *models.UserObjective, now time.Time) error {
		if err := requireOwner(p, a.userQuest); err != nil {
			return err
		}
		if err := requireActive(a.userQuest); err != nil {
			return err
		}

		def := a.objectives[uo.ObjectiveID]
		if def != nil && def.EvidenceRequired {
			return ErrEvidenceRequired
		}
		if err := transitionObjective(uo, objectiveMarkComplete); err != nil {
			return err
		}

		uo.SubmittedAt = &now
		uo.ApprovedAt = &now
		start(a.userQuest, now)
		return nil
	})
}

// ReviewSubmission records a GM decision on a submitted objective. Rejection
// returns the objective to the user with feedback; it can be resubmitted.
func (e *Engine) ReviewSubmission(ctx context.Context, p *models.Principal, userObjectiveID uuid.UUID, decision Decision, feedback *string) (*Outcome, error) {
	if err := e.requireGameMaster(ctx, p); err != nil {
		return nil, err
	}

	var (
		note *string
		err  error
	)
	switch decision {
	case DecisionApprove:
		note, err = CheckFeedback(feedback, false)
	case DecisionReject:
		note, err = CheckFeedback(feedback, true)
	default:
		return nil, ErrInvalidDecision
	}
	if err != nil {
		return nil, err
	}

	reviewer := p.ID
	return e.withObjective(ctx, userObjectiveID, func(a *attempt, uo *models.UserObjective, now time.Time) error {
		if err := requireActive(a.userQuest); err != nil {
			return err
		}

		if decision == DecisionApprove {
			if err := transitionObjective(uo, objectiveApprove); err != nil {
				return err
			}
			uo.ApprovedAt = &now
		} else {
			if err := transitionObjective(uo, objectiveReject); err != nil {
				return err
			}
			uo.EvidenceText = nil
			uo.EvidenceURL = nil
			uo.SubmittedAt = nil
			uo.ApprovedAt = nil
		}

		uo.ReviewedBy = &reviewer
		uo.ReviewedAt = &now
		uo.Feedback = note
		return nil
	})
}

// UncheckObjective resets an objective the user wants to redo. Objectives that
// depend on it stay open.
func (e *Engine) UncheckObjective(ctx context.Context, p *models.Principal, userObjectiveID uuid.UUID) (*Outcome, error) {
	if p == nil {
		return nil, ErrNotAuthenticated
	}

	return e.withObjective(ctx, userObjectiveID, func(a *attempt, uo *models.UserObjective, now time.Time) error {
		if err := requireOwner(p, a.userQuest); err != nil {
			return err
		}
		if err := requireActive(a.userQuest); err != nil {
			return err
		}
		if err := transitionObjective(uo, objectiveUncheck); err != nil {
			return err
		}

		uo.EvidenceText = nil
		uo.EvidenceURL = nil
		uo.SubmittedAt = nil
		uo.ReviewedBy = nil
		uo.ReviewedAt = nil
		uo.Feedback = nil
		uo.ApprovedAt = nil
		return nil
	})
}

// ClaimQuestReward finishes an attempt whose objectives are all approved. Quests
// gated on a final review wait for a GM; the rest complete and pay out here.
func (e *Engine) ClaimQuestReward(ctx context.Context, p *models.Principal, userQuestID uuid.UUID) (*Outcome, error) {
	if p == nil {
		return nil, ErrNotAuthenticated
	}

	return e.withQuest(ctx, userQuestID, func(ctx context.Context, tx Tx, a *attempt, now time.Time) error {
		uq := a.userQuest
		if err := requireOwner(p, uq); err != nil {
			return err
		}

		ev := questComplete
		if a.quest.RequiresFinalApproval {
			ev = questAwaitApproval
		}
		if err := userQuestRules[ev].check(uq.Status); err != nil {
			return err
		}
		if !allApproved(a.objectives, a.progress) {
			return ErrObjectivesIncomplete
		}

		//nolint:errcheck
		transitionQuest(uq, ev)
		if ev == questAwaitApproval {
			uq.ReadyToClaimAt = &now
			return nil
		}
		return e.award(ctx, tx, a, now)
	})
}

// ReviewQuestCompletion is the GM's final word on a quest awaiting approval.
// Approval completes and pays out; rejection sends the attempt back to work.
func (e *Engine) ReviewQuestCompletion(ctx context.Context, p *models.Principal, userQuestID uuid.UUID, approved bool, feedback *string) (*Outcome, error) {
	if err := e.requireGameMaster(ctx, p); err != nil {
		return nil, err
	}

	note, err := CheckFeedback(feedback, false)
	if err != nil {
		return nil, err
	}

	reviewer := p.ID
	return e.withQuest(ctx, userQuestID, func(ctx context.Context, tx Tx, a *attempt, now time.Time) error {
		uq := a.userQuest

		ev := questFinalReject
		if approved {
			ev = questFinalApprove
		}
		if err := transitionQuest(uq, ev); err != nil {
			return err
		}

		uq.FinalReviewedBy = &reviewer
		uq.FinalReviewedAt = &now
		uq.FinalFeedback = note

		if !approved {
			uq.ReadyToClaimAt = nil
			return nil
		}
		if !allApproved(a.objectives, a.progress) {
			return ErrObjectivesIncomplete
		}
		return e.award(ctx, tx, a, now)
	})
}

// AbandonQuest gives up an attempt that has not been finished.
func (e *Engine) AbandonQuest(ctx context.Context, p *models.Principal, userQuestID uuid.UUID) (*Outcome, error) {
	if p == nil {
		return nil, ErrNotAuthenticated
	}

	return e.withQuest(ctx, userQuestID, func(ctx context.Context, tx Tx, a *attempt, now time.Time) error {
		if err := requireOwner(p, a.userQuest); err != nil {
			return err
		}
		if err := transitionQuest(a.userQuest, questAbandon); err != nil {
			return err
		}
		a.userQuest.AbandonedAt = &now
		return nil
	})
}

// RequestExtension asks a GM for more time. Only one request per attempt.
func (e *Engine) RequestExtension(ctx context.Context, p *models.Principal, userQuestID uuid.UUID, reason string) (*Outcome, error) {
	if p == nil {
		return nil, ErrNotAuthenticated
	}

	reason, err := CheckReason(reason)
	if err != nil {
		return nil, err
	}

	return e.withQuest(ctx, userQuestID, func(ctx context.Context, tx Tx, a *attempt, now time.Time) error {
		uq := a.userQuest
		if err := requireOwner(p, uq); err != nil {
			return err
		}
		if uq.ExtensionRequested {
			return ErrAlreadyRequested
		}
		if uq.Deadline == nil {
			return ErrNoDeadline
		}
		if uq.Status == models.UserQuestCompleted || uq.Status == models.UserQuestAbandoned {
			return ErrQuestInactive
		}

		uq.ExtensionRequested = true
		uq.ExtensionReason = &reason
		uq.ExtensionRequestedAt = &now
		uq.ExtensionGranted = nil
		return nil
	})
}

// DecideExtension settles a pending extension request. Granting one moves the
// deadline and revives an attempt that expired while the request was pending.
func (e *Engine) DecideExtension(ctx context.Context, p *models.Principal, userQuestID uuid.UUID, approved bool, newDeadline *time.Time) (*Outcome, error) {
	if err := e.requireGameMaster(ctx, p); err != nil {
		return nil, err
	}
	if approved && (newDeadline == nil || !newDeadline.After(e.now())) {
		return nil, ErrDeadlineNotInFuture
	}

	decider := p.ID
	return e.withQuest(ctx, userQuestID, func(ctx context.Context, tx Tx, a *attempt, now time.Time) error {
		uq := a.userQuest
		if !uq.ExtensionPending() {
			return ErrNoPendingExtension
		}

		granted := approved
		uq.ExtensionGranted = &granted
		uq.ExtensionDecidedBy = &decider
		uq.ExtensionDecidedAt = &now

		if !approved {
			return nil
		}

		deadline := newDeadline.UTC()
		uq.Deadline = &deadline
		uq.ExtendedDeadline = &deadline

		if uq.Status == models.UserQuestExpired {
			ev := questRevive
			if uq.StartedAt == nil {
				ev = questReviveIdle
			}
			if err := transitionQuest(uq, ev); err != nil {
				return err
			}
			uq.ExpiredAt = nil
		}
		return nil
	})
}

// ExpireOverdue moves attempts past their deadline to expired and returns them.
func (e *Engine) ExpireOverdue(ctx context.Context, limit int) ([]*models.UserQuest, error) {
	if limit <= 0 {
		return nil, Invalid("invalid_limit", "expiry batch size must be positive, got %d", limit)
	}

	var expired []*models.UserQuest
	err := e.repo.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		expired = nil
		now := e.now()

		overdue, err := tx.ListOverdueUserQuests(ctx, now, limit)
		if err != nil {
			return err
		}

		for _, uq := range overdue {
			if uq.Deadline == nil || !uq.Deadline.Before(now) {
				continue
			}
			if transitionQuest(uq, questExpire) != nil {
				continue
			}
			uq.ExpiredAt = &now
			uq.UpdatedAt = now

			if err := tx.UpdateUserQuest(ctx, uq); err != nil {
				return err
			}
			expired = append(expired, uq)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

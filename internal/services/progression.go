package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/go-redsync/redsync/v4"
	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/uptrace/bun"

	"guildhall/internal/datastore"
	"guildhall/internal/interfaces"
	"guildhall/internal/models"
	"guildhall/internal/progression"
)

// ServiceProgression puts the progression engine behind rate limits and
// per-attempt locks, and fans out what changed to leaderboards and inboxes.
type ServiceProgression struct {
	container          *do.Injector
	readonlyPostgresDB *bun.DB
	rs                 *redsync.Redsync
	limiter            interfaces.Limiter
	engine             *progression.Engine

	serviceIdentity     *ServiceIdentity
	serviceConfig       *ServiceConfig
	serviceLeaderboard  *ServiceLeaderboard
	serviceNotification *ServiceNotification
}

func NewServiceProgression(container *do.Injector) (*ServiceProgression, error) {
	postgresDB, err := do.Invoke[*bun.DB](container)
	if err != nil {
		return nil, err
	}

	readonlyPostgresDB, err := do.InvokeNamed[*bun.DB](container, "db-readonly")
	if err != nil {
		return nil, err
	}

	rs, err := do.Invoke[*redsync.Redsync](container)
	if err != nil {
		return nil, err
	}

	limiter, err := do.Invoke[interfaces.Limiter](container)
	if err != nil {
		return nil, err
	}

	serviceIdentity, err := do.Invoke[*ServiceIdentity](container)
	if err != nil {
		return nil, err
	}

	serviceConfig, err := do.Invoke[*ServiceConfig](container)
	if err != nil {
		return nil, err
	}

	serviceLeaderboard, err := do.Invoke[*ServiceLeaderboard](container)
	if err != nil {
		return nil, err
	}

	serviceNotification, err := do.Invoke[*ServiceNotification](container)
	if err != nil {
		return nil, err
	}

	engine := progression.New(datastore.NewProgressionStore(postgresDB), serviceIdentity)

	return &ServiceProgression{
		container,
		readonlyPostgresDB,
		rs,
		limiter,
		engine,
		serviceIdentity,
		serviceConfig,
		serviceLeaderboard,
		serviceNotification,
	}, nil
}

// allow returns limiter.ErrRateLimited once key has spent its budget.
func (service *ServiceProgression) allow(ctx context.Context, key string, perMinute int) error {
	return service.limiter.Allow(ctx, key, redis_rate.PerMinute(perMinute))
}

// allowSubmit is the shared budget of evidence submissions and completions.
func (service *ServiceProgression) allowSubmit(ctx context.Context, userID uuid.UUID) error {
	perMinute := service.serviceConfig.GetPositiveIntConfig(ctx, CONFIG_SUBMIT_RATE_LIMIT_PER_MINUTE, SUBMIT_RATE_LIMIT_PER_MINUTE)
	return service.allow(ctx, LimitKeyUserSubmit(userID), perMinute)
}

// lockAttempt serialises claim and final review on one attempt across api
// instances. The row lock inside the transaction still decides the winner.
func (service *ServiceProgression) lockAttempt(ctx context.Context, userQuestID uuid.UUID) (func(), error) {
	mutex := service.rs.NewMutex(LockKeyUserQuest(userQuestID), redsync.WithExpiry(LOCK_EXPIRY), redsync.WithTries(1))
	if err := mutex.TryLockContext(ctx); err != nil {
		return nil, ErrUserQuestLock
	}
	return func() {
		//nolint:errcheck
		mutex.UnlockContext(context.Background())
	}, nil
}

func objectiveTitle(quest *models.Quest, objectiveID uuid.UUID) string {
	if quest == nil {
		return ""
	}
	for _, o := range quest.Objectives {
		if o.ID == objectiveID {
			return o.Title
		}
	}
	return ""
}

func userQuestLink(userQuestID uuid.UUID) string {
	return fmt.Sprintf("/user-quests/%s", userQuestID)
}

// afterAward keeps the boards in step with the ledger. The ledger is the
// source of truth, so a failure here is only logged.
func (service *ServiceProgression) afterAward(ctx context.Context, out *progression.Outcome) {
	if out.Awarded == 0 {
		return
	}

	uq := out.UserQuest
	if err := service.serviceLeaderboard.RecordAward(ctx, uq.UserID, out.Awarded); err != nil {
		log.Printf("progression: leaderboard update for %s: %v\n", uq.UserID, err)
	}
	service.serviceIdentity.forgetProfile(ctx, uq.UserID)

	service.serviceNotification.Notify(ctx, uq.UserID, models.NotificationQuestCompleted,
		"Quest completed",
		fmt.Sprintf("%s is complete. You earned %d points.", out.Quest.Title, out.Awarded),
		userQuestLink(uq.ID))
}

func (service *ServiceProgression) AcceptQuest(ctx context.Context, principal *models.Principal, questID uuid.UUID, exclusiveCode *string) (*models.UserQuest, error) {
	if principal == nil {
		return nil, progression.ErrNotAuthenticated
	}
	if err := service.allow(ctx, LimitKeyUserAccept(principal.ID), ACCEPT_RATE_LIMIT_PER_MINUTE); err != nil {
		return nil, err
	}

	// the reward credits the profile, make sure it exists first
	if _, err := service.serviceIdentity.FindOrCreateProfile(ctx, principal); err != nil {
		return nil, err
	}

	out, err := service.engine.AcceptQuest(ctx, principal, questID, exclusiveCode)
	if err != nil {
		return nil, err
	}

	out.UserQuest.Quest = out.Quest
	return out.UserQuest, nil
}

func (service *ServiceProgression) SubmitEvidence(ctx context.Context, principal *models.Principal, userObjectiveID uuid.UUID, evidence progression.Evidence) (*models.UserObjective, error) {
	if principal == nil {
		return nil, progression.ErrNotAuthenticated
	}

	if err := service.allowSubmit(ctx, principal.ID); err != nil {
		return nil, err
	}

	out, err := service.engine.SubmitEvidence(ctx, principal, userObjectiveID, evidence)
	if err != nil {
		return nil, err
	}

	service.serviceNotification.AlertGameMasters(
		"New submission",
		fmt.Sprintf("%s / %s", out.Quest.Title, objectiveTitle(out.Quest, out.UserObjective.ObjectiveID)),
		userQuestLink(out.UserQuest.ID))

	return out.UserObjective, nil
}

func (service *ServiceProgression) MarkComplete(ctx context.Context, principal *models.Principal, userObjectiveID uuid.UUID) (*models.UserQuest, error) {
	if principal == nil {
		return nil, progression.ErrNotAuthenticated
	}
	if err := service.allowSubmit(ctx, principal.ID); err != nil {
		return nil, err
	}

	out, err := service.engine.MarkComplete(ctx, principal, userObjectiveID)
	if err != nil {
		return nil, err
	}
	return out.UserQuest, nil
}

func (service *ServiceProgression) UncheckObjective(ctx context.Context, principal *models.Principal, userObjectiveID uuid.UUID) (*models.UserQuest, error) {
	out, err := service.engine.UncheckObjective(ctx, principal, userObjectiveID)
	if err != nil {
		return nil, err
	}
	return out.UserQuest, nil
}

func (service *ServiceProgression) ReviewSubmission(ctx context.Context, principal *models.Principal, userObjectiveID uuid.UUID, decision progression.Decision, feedback *string) (*models.UserObjective, error) {
	out, err := service.engine.ReviewSubmission(ctx, principal, userObjectiveID, decision, feedback)
	if err != nil {
		return nil, err
	}

	uo := out.UserObjective
	title := objectiveTitle(out.Quest, uo.ObjectiveID)
	switch decision {
	case progression.DecisionApprove:
		body := fmt.Sprintf("%s was approved.", title)
		if len(out.Unlocked) > 0 {
			body += fmt.Sprintf(" %d new objective(s) unlocked.", len(out.Unlocked))
		}
		service.serviceNotification.Notify(ctx, uo.UserID, models.NotificationObjectiveApproved, "Objective approved", body, userQuestLink(uo.UserQuestID))
	default:
		body := fmt.Sprintf("%s needs another look.", title)
		if uo.Feedback != nil {
			body += " " + *uo.Feedback
		}
		service.serviceNotification.Notify(ctx, uo.UserID, models.NotificationObjectiveRejected, "Objective returned", body, userQuestLink(uo.UserQuestID))
	}

	return uo, nil
}

// ClaimQuestReward finishes the caller's attempt. Quests gated on a final
// review are handed to the GMs instead of paying out.
func (service *ServiceProgression) ClaimQuestReward(ctx context.Context, principal *models.Principal, userQuestID uuid.UUID) (*models.UserQuest, error) {
	if principal == nil {
		return nil, progression.ErrNotAuthenticated
	}

	unlock, err := service.lockAttempt(ctx, userQuestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	out, err := service.engine.ClaimQuestReward(ctx, principal, userQuestID)
	if err != nil {
		return nil, err
	}

	if out.UserQuest.Status == models.UserQuestAwaitingFinalApproval {
		service.serviceNotification.AlertGameMasters("Quest awaiting final approval", out.Quest.Title, userQuestLink(userQuestID))
	}
	service.afterAward(ctx, out)

	out.UserQuest.Quest = out.Quest
	return out.UserQuest, nil
}

func (service *ServiceProgression) ReviewQuestCompletion(ctx context.Context, principal *models.Principal, userQuestID uuid.UUID, approved bool, feedback *string) (*models.UserQuest, error) {
	unlock, err := service.lockAttempt(ctx, userQuestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	out, err := service.engine.ReviewQuestCompletion(ctx, principal, userQuestID, approved, feedback)
	if err != nil {
		return nil, err
	}

	if approved {
		service.afterAward(ctx, out)
	} else {
		body := fmt.Sprintf("%s was sent back for more work.", out.Quest.Title)
		if out.UserQuest.FinalFeedback != nil {
			body += " " + *out.UserQuest.FinalFeedback
		}
		service.serviceNotification.Notify(ctx, out.UserQuest.UserID, models.NotificationQuestReturned, "Quest returned", body, userQuestLink(userQuestID))
	}

	out.UserQuest.Quest = out.Quest
	return out.UserQuest, nil
}

func (service *ServiceProgression) AbandonQuest(ctx context.Context, principal *models.Principal, userQuestID uuid.UUID) (*models.UserQuest, error) {
	out, err := service.engine.AbandonQuest(ctx, principal, userQuestID)
	if err != nil {
		return nil, err
	}
	return out.UserQuest, nil
}

func (service *ServiceProgression) RequestExtension(ctx context.Context, principal *models.Principal, userQuestID uuid.UUID, reason string) (*models.UserQuest, error) {
	if principal == nil {
		return nil, progression.ErrNotAuthenticated
	}
	if err := service.allow(ctx, LimitKeyUserExtension(principal.ID), EXTENSION_RATE_LIMIT_PER_MINUTE); err != nil {
		return nil, err
	}

	out, err := service.engine.RequestExtension(ctx, principal, userQuestID, reason)
	if err != nil {
		return nil, err
	}

	service.serviceNotification.AlertGameMasters("Extension requested", fmt.Sprintf("%s: %s", out.Quest.Title, *out.UserQuest.ExtensionReason), userQuestLink(userQuestID))
	return out.UserQuest, nil
}

func (service *ServiceProgression) DecideExtension(ctx context.Context, principal *models.Principal, userQuestID uuid.UUID, approved bool, newDeadline *time.Time) (*models.UserQuest, error) {
	out, err := service.engine.DecideExtension(ctx, principal, userQuestID, approved, newDeadline)
	if err != nil {
		return nil, err
	}

	uq := out.UserQuest
	body := fmt.Sprintf("Your extension for %s was denied.", out.Quest.Title)
	if approved {
		body = fmt.Sprintf("Your extension for %s was granted. New deadline %s.", out.Quest.Title, uq.Deadline.Format(time.RFC1123))
	}
	service.serviceNotification.Notify(ctx, uq.UserID, models.NotificationExtensionDecided, "Extension decided", body, userQuestLink(userQuestID))

	return uq, nil
}

// ExpireOverdue runs one sweep. Only one instance sweeps at a time.
func (service *ServiceProgression) ExpireOverdue(ctx context.Context) (int, error) {
	mutex := service.rs.NewMutex(LockKeyExpireSweep(), redsync.WithExpiry(time.Minute), redsync.WithTries(1))
	if err := mutex.TryLockContext(ctx); err != nil {
		return 0, nil
	}
	//nolint:errcheck
	defer mutex.UnlockContext(ctx)

	limit := service.serviceConfig.GetPositiveIntConfig(ctx, CONFIG_EXPIRE_BATCH_SIZE, DEFAULT_EXPIRE_BATCH_SIZE)
	return drainExpired(ctx, limit, service.engine.ExpireOverdue, func(uq *models.UserQuest) {
		service.serviceNotification.Notify(ctx, uq.UserID, models.NotificationQuestExpired,
			"Quest expired",
			"The deadline passed before the quest was finished. Request an extension or accept it again.",
			userQuestLink(uq.ID))
	})
}

// drainExpired runs batches until one comes back short.
func drainExpired(ctx context.Context, limit int, batch func(context.Context, int) ([]*models.UserQuest, error), each func(*models.UserQuest)) (int, error) {
	limit = positiveOr(limit, DEFAULT_EXPIRE_BATCH_SIZE)

	total := 0
	for {
		expired, err := batch(ctx, limit)
		if err != nil {
			return total, err
		}

		for _, uq := range expired {
			each(uq)
		}

		total += len(expired)
		if len(expired) < limit {
			return total, nil
		}
	}
}

// attach groups progress rows under their attempts and recomputes the locks
// for display.
func attach(userQuests []*models.UserQuest, progress []*models.UserObjective) {
	byQuest := make(map[uuid.UUID][]*models.UserObjective, len(userQuests))
	for _, uo := range progress {
		byQuest[uo.UserQuestID] = append(byQuest[uo.UserQuestID], uo)
	}
	for _, uq := range userQuests {
		uq.Objectives = byQuest[uq.ID]
		progression.SyncLocks(uq.Objectives)
	}
}

func (service *ServiceProgression) ListMyQuests(ctx context.Context, principal *models.Principal, statuses []models.UserQuestStatus) ([]*models.UserQuest, error) {
	if principal == nil {
		return nil, progression.ErrNotAuthenticated
	}

	userQuests, err := datastore.ListUserQuestsByUser(ctx, service.readonlyPostgresDB, principal.ID, statuses)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(userQuests))
	for i, uq := range userQuests {
		ids[i] = uq.ID
	}

	progress, err := datastore.ListUserObjectivesByUserQuests(ctx, service.readonlyPostgresDB, ids)
	if err != nil {
		return nil, err
	}

	attach(userQuests, progress)
	return userQuests, nil
}

// GetUserQuest returns one attempt with its objectives. Owners and GMs may read it.
func (service *ServiceProgression) GetUserQuest(ctx context.Context, principal *models.Principal, userQuestID uuid.UUID) (*models.UserQuest, error) {
	if principal == nil {
		return nil, progression.ErrNotAuthenticated
	}

	uq, err := datastore.GetUserQuestByID(ctx, service.readonlyPostgresDB, userQuestID)
	if err != nil {
		return nil, progression.NotFound(err, "user_quest")
	}

	if uq.UserID != principal.ID {
		if err := service.serviceIdentity.RequireGameMaster(ctx, principal); err != nil {
			return nil, err
		}
	}

	progress, err := datastore.ListUserObjectivesByUserQuests(ctx, service.readonlyPostgresDB, []uuid.UUID{uq.ID})
	if err != nil {
		return nil, err
	}

	attach([]*models.UserQuest{uq}, progress)
	return uq, nil
}

func (service *ServiceProgression) ListSubmissions(ctx context.Context, principal *models.Principal, limit, offset int) ([]*models.UserObjective, error) {
	if err := service.serviceIdentity.RequireGameMaster(ctx, principal); err != nil {
		return nil, err
	}
	return datastore.ListSubmittedUserObjectives(ctx, service.readonlyPostgresDB, pageLimit(limit), offset)
}

func (service *ServiceProgression) ListCompletions(ctx context.Context, principal *models.Principal, limit, offset int) ([]*models.UserQuest, error) {
	if err := service.serviceIdentity.RequireGameMaster(ctx, principal); err != nil {
		return nil, err
	}
	return datastore.ListUserQuestsByStatus(ctx, service.readonlyPostgresDB, models.UserQuestAwaitingFinalApproval, pageLimit(limit), offset)
}

func (service *ServiceProgression) ListExtensions(ctx context.Context, principal *models.Principal, limit, offset int) ([]*models.UserQuest, error) {
	if err := service.serviceIdentity.RequireGameMaster(ctx, principal); err != nil {
		return nil, err
	}
	return datastore.ListPendingExtensions(ctx, service.readonlyPostgresDB, pageLimit(limit), offset)
}

func pageLimit(limit int) int {
	if limit <= 0 || limit > GM_QUEUE_DEFAULT_LIMIT {
		return GM_QUEUE_DEFAULT_LIMIT
	}
	return limit
}

package progression

import (
	"context"
	"time"

	"github.com/google/uuid"

	"guildhall/internal/models"
)

// Repository runs a unit of work atomically. When fn returns an error nothing it
// wrote is kept.
type Repository interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the store surface the engine works through. Lookups that miss return
// sql.ErrNoRows. GetUserQuest, FindUserQuest and ListUserObjectives lock the
// rows they return until the transaction ends, always parent first. GetQuest
// holds the quest's objective set steady for the rest of the transaction.
type Tx interface {
	GetQuest(ctx context.Context, id uuid.UUID) (*models.Quest, error)
	ListObjectives(ctx context.Context, questID uuid.UUID) ([]*models.Objective, error)

	GetUserQuest(ctx context.Context, id uuid.UUID) (*models.UserQuest, error)
	FindUserQuest(ctx context.Context, userID, questID uuid.UUID) (*models.UserQuest, error)
	InsertUserQuest(ctx context.Context, uq *models.UserQuest) error
	UpdateUserQuest(ctx context.Context, uq *models.UserQuest) error
	ListOverdueUserQuests(ctx context.Context, now time.Time, limit int) ([]*models.UserQuest, error)

	GetUserObjective(ctx context.Context, id uuid.UUID) (*models.UserObjective, error)
	ListUserObjectives(ctx context.Context, userQuestID uuid.UUID) ([]*models.UserObjective, error)
	// ReplaceUserObjectives makes progress the complete set of rows for the attempt.
	ReplaceUserObjectives(ctx context.Context, userQuestID uuid.UUID, progress []*models.UserObjective) error
	UpdateUserObjectives(ctx context.Context, progress ...*models.UserObjective) error

	// AwardPoints writes the ledger entry and credits the profile. It reports
	// false, and credits nothing, when the entry already exists.
	AwardPoints(ctx context.Context, award *models.PointAward) (bool, error)
}

// RoleChecker answers whether a principal may act as a Game Master.
type RoleChecker interface {
	IsGameMaster(ctx context.Context, userID uuid.UUID) (bool, error)
}

package datastore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"guildhall/internal/models"
	"guildhall/internal/progression"
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == pgUniqueViolation
}

// ProgressionStore backs the progression engine with postgres. Every engine
// operation runs in one transaction; attempt rows are locked with SELECT ... FOR UPDATE.
type ProgressionStore struct {
	db *bun.DB
}

func NewProgressionStore(db *bun.DB) *ProgressionStore {
	return &ProgressionStore{db: db}
}

func (s *ProgressionStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx progression.Tx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &progressionTx{db: tx})
	})
}

type progressionTx struct {
	db bun.IDB
}

// GetQuest share-locks the quest so UpdateQuest cannot swap its objectives
// while an attempt is being accepted or settled.
func (tx *progressionTx) GetQuest(ctx context.Context, id uuid.UUID) (*models.Quest, error) {
	var quest models.Quest
	err := tx.db.NewSelect().Model(&quest).Where("id = ?", id).For("SHARE").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &quest, nil
}

func (tx *progressionTx) ListObjectives(ctx context.Context, questID uuid.UUID) ([]*models.Objective, error) {
	var objectives []*models.Objective
	err := tx.db.NewSelect().Model(&objectives).Where("quest_id = ?", questID).Order("display_order ASC", "created_at ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return objectives, nil
}

func (tx *progressionTx) GetUserQuest(ctx context.Context, id uuid.UUID) (*models.UserQuest, error) {
	var uq models.UserQuest
	err := tx.db.NewSelect().Model(&uq).Where("id = ?", id).For("UPDATE").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &uq, nil
}

func (tx *progressionTx) FindUserQuest(ctx context.Context, userID, questID uuid.UUID) (*models.UserQuest, error) {
	var uq models.UserQuest
	err := tx.db.NewSelect().Model(&uq).
		Where("user_id = ?", userID).
		Where("quest_id = ?", questID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &uq, nil
}

func (tx *progressionTx) InsertUserQuest(ctx context.Context, uq *models.UserQuest) error {
	_, err := tx.db.NewInsert().Model(uq).Exec(ctx)
	if isUniqueViolation(err) {
		return progression.ErrAlreadyAccepted
	}
	return err
}

func (tx *progressionTx) UpdateUserQuest(ctx context.Context, uq *models.UserQuest) error {
	_, err := tx.db.NewUpdate().Model(uq).ExcludeColumn("created_at").WherePK().Exec(ctx)
	return err
}

func (tx *progressionTx) ListOverdueUserQuests(ctx context.Context, now time.Time, limit int) ([]*models.UserQuest, error) {
	var list []*models.UserQuest
	err := tx.db.NewSelect().Model(&list).
		Where("status IN (?)", bun.In([]models.UserQuestStatus{models.UserQuestAccepted, models.UserQuestInProgress})).
		Where("deadline < ?", now).
		Order("deadline ASC").
		Limit(limit).
		For("UPDATE SKIP LOCKED").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return list, nil
}

// GetUserObjective does not lock. Callers lock the parent attempt first and
// then the objectives through ListUserObjectives.
func (tx *progressionTx) GetUserObjective(ctx context.Context, id uuid.UUID) (*models.UserObjective, error) {
	var uo models.UserObjective
	err := tx.db.NewSelect().Model(&uo).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &uo, nil
}

func (tx *progressionTx) ListUserObjectives(ctx context.Context, userQuestID uuid.UUID) ([]*models.UserObjective, error) {
	var list []*models.UserObjective
	err := tx.db.NewSelect().Model(&list).
		Join("JOIN objective AS o ON o.id = user_objective.objective_id").
		Where("user_objective.user_quest_id = ?", userQuestID).
		OrderExpr("o.display_order ASC, user_objective.created_at ASC").
		For("UPDATE OF user_objective").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (tx *progressionTx) ReplaceUserObjectives(ctx context.Context, userQuestID uuid.UUID, progress []*models.UserObjective) error {
	del := tx.db.NewDelete().Model((*models.UserObjective)(nil)).Where("user_quest_id = ?", userQuestID)
	if len(progress) > 0 {
		ids := make([]uuid.UUID, len(progress))
		for i, uo := range progress {
			ids[i] = uo.ID
		}
		del = del.Where("id NOT IN (?)", bun.In(ids))
	}
	if _, err := del.Exec(ctx); err != nil {
		return err
	}

	if len(progress) == 0 {
		return nil
	}

	_, err := tx.db.NewInsert().Model(&progress).
		On("CONFLICT (id) DO UPDATE").
		Set("objective_id = EXCLUDED.objective_id").
		Set("depends_on_objective_id = EXCLUDED.depends_on_objective_id").
		Set("status = EXCLUDED.status").
		Set("evidence_text = EXCLUDED.evidence_text").
		Set("evidence_url = EXCLUDED.evidence_url").
		Set("submitted_at = EXCLUDED.submitted_at").
		Set("reviewed_by = EXCLUDED.reviewed_by").
		Set("reviewed_at = EXCLUDED.reviewed_at").
		Set("feedback = EXCLUDED.feedback").
		Set("approved_at = EXCLUDED.approved_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (tx *progressionTx) UpdateUserObjectives(ctx context.Context, progress ...*models.UserObjective) error {
	for _, uo := range progress {
		_, err := tx.db.NewUpdate().Model(uo).ExcludeColumn("created_at").WherePK().Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func (tx *progressionTx) AwardPoints(ctx context.Context, award *models.PointAward) (bool, error) {
	inserted, err := insertPointAward(ctx, tx.db, award)
	if err != nil || !inserted {
		return false, err
	}

	profile := &models.Profile{ID: award.UserID, Points: award.Points, UpdatedAt: award.CreatedAt}
	_, err = tx.db.NewInsert().Model(profile).
		On("CONFLICT (id) DO UPDATE").
		Set("points = profile.points + EXCLUDED.points").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return true, nil
}

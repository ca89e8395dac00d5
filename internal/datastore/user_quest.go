package datastore

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"guildhall/internal/models"
)

func CreateTableUserQuest(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.UserQuest)(nil)).IfNotExists().
		ForeignKey(`("quest_id") REFERENCES "quest" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.UserQuest)(nil)).Index("index_user_quest_user_id_quest_id").IfNotExists().Unique().Column("user_id", "quest_id").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.UserQuest)(nil)).Index("index_user_quest_status_deadline").IfNotExists().Column("status", "deadline").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.UserQuest)(nil)).Index("index_user_quest_pending_extension").IfNotExists().
		Column("extension_requested_at").
		Where("extension_requested AND extension_granted IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func CreateTableUserObjective(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.UserObjective)(nil)).IfNotExists().
		ForeignKey(`("user_quest_id") REFERENCES "user_quest" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.UserObjective)(nil)).Index("index_user_objective_user_quest_id_objective_id").IfNotExists().Unique().Column("user_quest_id", "objective_id").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.UserObjective)(nil)).Index("index_user_objective_status_submitted_at").IfNotExists().Column("status", "submitted_at").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func GetUserQuestByID(ctx context.Context, db *bun.DB, id uuid.UUID) (*models.UserQuest, error) {
	var uq models.UserQuest
	err := db.NewSelect().Model(&uq).Relation("Quest").Where("user_quest.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &uq, nil
}

func ListUserQuestsByUser(ctx context.Context, db *bun.DB, userID uuid.UUID, statuses []models.UserQuestStatus) ([]*models.UserQuest, error) {
	var list []*models.UserQuest
	q := db.NewSelect().Model(&list).Relation("Quest").Where("user_quest.user_id = ?", userID)
	if len(statuses) > 0 {
		q = q.Where("user_quest.status IN (?)", bun.In(statuses))
	}
	err := q.Order("user_quest.accepted_at DESC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return list, nil
}

// ListUserObjectivesByUserQuests loads progress rows with their objective
// definitions, in display order.
func ListUserObjectivesByUserQuests(ctx context.Context, db *bun.DB, userQuestIDs []uuid.UUID) ([]*models.UserObjective, error) {
	var list []*models.UserObjective
	if len(userQuestIDs) == 0 {
		return list, nil
	}

	err := db.NewSelect().Model(&list).
		Relation("Objective").
		Where("user_objective.user_quest_id IN (?)", bun.In(userQuestIDs)).
		OrderExpr("objective.display_order ASC, user_objective.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return list, nil
}

// ListSubmittedUserObjectives is the GM review queue, oldest submission first.
func ListSubmittedUserObjectives(ctx context.Context, db *bun.DB, limit, offset int) ([]*models.UserObjective, error) {
	var list []*models.UserObjective
	err := db.NewSelect().Model(&list).
		Relation("Objective").
		Relation("UserQuest").
		Where("user_objective.status = ?", models.UserObjectiveSubmitted).
		OrderExpr("user_objective.submitted_at ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func ListUserQuestsByStatus(ctx context.Context, db *bun.DB, status models.UserQuestStatus, limit, offset int) ([]*models.UserQuest, error) {
	var list []*models.UserQuest
	err := db.NewSelect().Model(&list).
		Relation("Quest").
		Where("user_quest.status = ?", status).
		OrderExpr("user_quest.ready_to_claim_at ASC NULLS LAST").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func ListPendingExtensions(ctx context.Context, db *bun.DB, limit, offset int) ([]*models.UserQuest, error) {
	var list []*models.UserQuest
	err := db.NewSelect().Model(&list).
		Relation("Quest").
		Where("user_quest.extension_requested").
		Where("user_quest.extension_granted IS NULL").
		OrderExpr("user_quest.extension_requested_at ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return list, nil
}

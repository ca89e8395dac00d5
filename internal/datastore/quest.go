package datastore

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"guildhall/internal/models"
)

func CreateTableQuest(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.Quest)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.Quest)(nil)).Index("index_quest_status").IfNotExists().Column("status").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func CreateTableObjective(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.Objective)(nil)).IfNotExists().
		ForeignKey(`("quest_id") REFERENCES "quest" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.Objective)(nil)).Index("index_objective_quest_id").IfNotExists().Column("quest_id", "display_order").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func orderObjectives(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Order("display_order ASC", "created_at ASC")
}

func GetQuestByID(ctx context.Context, db bun.IDB, id uuid.UUID) (*models.Quest, error) {
	var quest models.Quest
	err := db.NewSelect().Model(&quest).Relation("Objectives", orderObjectives).Where("quest.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &quest, nil
}

// ListQuests returns quests in the given statuses, newest first. No statuses means all.
func ListQuests(ctx context.Context, db *bun.DB, statuses []models.QuestStatus, limit, offset int) ([]*models.Quest, error) {
	var quests []*models.Quest
	q := db.NewSelect().Model(&quests).Relation("Objectives", orderObjectives)
	if len(statuses) > 0 {
		q = q.Where("quest.status IN (?)", bun.In(statuses))
	}
	err := q.Order("quest.created_at DESC").Limit(limit).Offset(offset).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return quests, nil
}

// InsertQuest stores a quest together with its objectives.
func InsertQuest(ctx context.Context, db *bun.DB, quest *models.Quest) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(quest).Exec(ctx); err != nil {
			return err
		}
		if len(quest.Objectives) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&quest.Objectives).Exec(ctx)
		return err
	})
}

// EditQuest writes the listed columns only.
func EditQuest(ctx context.Context, db bun.IDB, quest *models.Quest, columns ...string) (*models.Quest, error) {
	_, err := db.NewUpdate().Model(quest).Column(columns...).WherePK().Exec(ctx)
	if err != nil {
		return nil, err
	}
	return quest, nil
}

// LockQuest takes the quest row FOR UPDATE. Accepting or settling an attempt
// share-locks the same row, so both wait for an edit holding this lock.
func LockQuest(ctx context.Context, db bun.IDB, id uuid.UUID) error {
	var quest models.Quest
	return db.NewSelect().Model(&quest).Column("id").Where("id = ?", id).For("UPDATE").Scan(ctx)
}

// ReplaceQuestObjectives swaps the whole objective set of a quest and writes the
// listed quest columns. Run it inside the transaction that holds LockQuest.
func ReplaceQuestObjectives(ctx context.Context, db bun.IDB, quest *models.Quest, columns ...string) error {
	if len(columns) > 0 {
		if _, err := db.NewUpdate().Model(quest).Column(columns...).WherePK().Exec(ctx); err != nil {
			return err
		}
	}

	_, err := db.NewDelete().Model((*models.Objective)(nil)).Where("quest_id = ?", quest.ID).Exec(ctx)
	if err != nil {
		return err
	}
	if len(quest.Objectives) == 0 {
		return nil
	}
	_, err = db.NewInsert().Model(&quest.Objectives).Exec(ctx)
	return err
}

// CountOpenAttempts counts attempts at a quest that are still being worked on.
func CountOpenAttempts(ctx context.Context, db bun.IDB, questID uuid.UUID) (int, error) {
	count, err := db.NewSelect().Model((*models.UserQuest)(nil)).
		Where("quest_id = ?", questID).
		Where("status NOT IN (?)", bun.In([]models.UserQuestStatus{
			models.UserQuestCompleted,
			models.UserQuestAbandoned,
			models.UserQuestExpired,
		})).
		Count(ctx)
	if err != nil {
		return 0, err
	}
	return count, nil
}

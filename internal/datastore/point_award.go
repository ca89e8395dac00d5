package datastore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"guildhall/internal/models"
)

func CreateTablePointAward(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.PointAward)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.PointAward)(nil)).Index("index_point_award_user_id").IfNotExists().Column("user_id").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.PointAward)(nil)).Index("index_point_award_user_id_action").IfNotExists().Unique().Column("user_id", "action").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.PointAward)(nil)).Index("index_point_award_created_at").IfNotExists().Column("created_at").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

// insertPointAward reports whether the entry was new. A repeated (user, action)
// pair is dropped by the unique index.
func insertPointAward(ctx context.Context, db bun.IDB, award *models.PointAward) (bool, error) {
	res, err := db.NewInsert().Model(award).
		On("CONFLICT (user_id, action) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func GetUserTotalPointsFromTime(ctx context.Context, db *bun.DB, userID uuid.UUID, from time.Time) (int, error) {
	var total models.TotalPoints
	err := db.NewSelect().
		ColumnExpr("COALESCE(SUM(points), 0) as total_points").
		ColumnExpr("user_id").
		TableExpr("point_award").
		Where("user_id = ?", userID).
		Where("created_at >= ?", from).
		GroupExpr("user_id").
		Scan(ctx, &total)
	if err != nil {
		return 0, err
	}

	return total.TotalPoints, nil
}

func GetTotalPointsListFromTime(ctx context.Context, db *bun.DB, from time.Time, limit, offset int) ([]*models.TotalPoints, error) {
	var totals []*models.TotalPoints
	err := db.NewSelect().
		ColumnExpr("SUM(points) as total_points").
		ColumnExpr("user_id").
		TableExpr("point_award").
		Where("created_at >= ?", from).
		GroupExpr("user_id").
		OrderExpr("total_points DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx, &totals)
	if err != nil {
		return nil, err
	}

	return totals, nil
}

func ListPointAwardsByUser(ctx context.Context, db *bun.DB, userID uuid.UUID, limit, offset int) ([]*models.PointAward, error) {
	var awards []*models.PointAward
	err := db.NewSelect().Model(&awards).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return awards, nil
}

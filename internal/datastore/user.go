package datastore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"guildhall/internal/models"
)

func CreateTableProfile(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.Profile)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.Profile)(nil)).Index("index_profile_points").IfNotExists().Column("points").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.Profile)(nil)).Index("index_profile_email").IfNotExists().ColumnExpr("lower(email)").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func CreateTableUserRole(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.UserRole)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.UserRole)(nil)).Index("index_user_role_role").IfNotExists().Column("role").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func FindProfileByID(ctx context.Context, db *bun.DB, userID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	err := db.NewSelect().Model(&profile).Where("id = ?", userID).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func FindProfilesByIDs(ctx context.Context, db *bun.DB, ids []uuid.UUID) ([]*models.Profile, error) {
	var profiles []*models.Profile
	if len(ids) == 0 {
		return profiles, nil
	}

	err := db.NewSelect().Model(&profiles).Where("id IN (?)", bun.In(ids)).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

func FindProfileByEmail(ctx context.Context, db *bun.DB, email string) (*models.Profile, error) {
	var profile models.Profile
	err := db.NewSelect().Model(&profile).Where("lower(email) = lower(?)", email).Limit(1).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// CreateProfileIfNotExists keeps an existing profile untouched.
func CreateProfileIfNotExists(ctx context.Context, db *bun.DB, profile *models.Profile) (*models.Profile, error) {
	_, err := db.NewInsert().Model(profile).On("CONFLICT (id) DO NOTHING").Returning("NULL").Exec(ctx)
	if err != nil {
		return nil, err
	}

	return FindProfileByID(ctx, db, profile.ID)
}

func EditProfile(ctx context.Context, db *bun.DB, profile *models.Profile) (*models.Profile, error) {
	profile.UpdatedAt = time.Now().UTC()
	_, err := db.NewUpdate().Model(profile).Column("display_name", "avatar_url", "updated_at").WherePK().Exec(ctx)
	if err != nil {
		return nil, err
	}

	return profile, nil
}

// SetProfilePoints overwrites a balance. Only reconciliation uses it, awards go
// through the ledger.
func SetProfilePoints(ctx context.Context, db *bun.DB, userID uuid.UUID, points int) error {
	_, err := db.NewUpdate().Model((*models.Profile)(nil)).
		Set("points = ?", points).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", userID).
		Exec(ctx)
	return err
}

func GetProfilesSortedByPoints(ctx context.Context, db *bun.DB, limit, offset int) ([]*models.Profile, error) {
	var profiles []*models.Profile
	err := db.NewSelect().Model(&profiles).
		Where("points > 0").
		Order("points DESC", "created_at ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return profiles, nil
}

func GetRolesByUserID(ctx context.Context, db *bun.DB, userID uuid.UUID) ([]string, error) {
	var roles []string
	err := db.NewSelect().Model((*models.UserRole)(nil)).Column("role").Where("user_id = ?", userID).Order("role ASC").Scan(ctx, &roles)
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func InsertUserRole(ctx context.Context, db *bun.DB, role *models.UserRole) error {
	_, err := db.NewInsert().Model(role).On("CONFLICT (user_id, role) DO NOTHING").Exec(ctx)
	if err != nil {
		return err
	}
	return nil
}

func DeleteUserRole(ctx context.Context, db *bun.DB, userID uuid.UUID, role string) error {
	_, err := db.NewDelete().Model((*models.UserRole)(nil)).Where("user_id = ?", userID).Where("role = ?", role).Exec(ctx)
	return err
}

package services

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/uptrace/bun"

	"guildhall/internal/datastore"
	"guildhall/internal/models"
	"guildhall/internal/pkg/caching"
	"guildhall/internal/progression"
)

// ServiceIdentity owns profiles and roles. It is the engine's RoleChecker.
type ServiceIdentity struct {
	container          *do.Injector
	postgresDB         *bun.DB
	readonlyPostgresDB *bun.DB
	cache              caching.Cache
	readonlyCache      caching.ReadOnlyCache
}

func NewServiceIdentity(container *do.Injector) (*ServiceIdentity, error) {
	postgresDB, err := do.Invoke[*bun.DB](container)
	if err != nil {
		return nil, err
	}

	readonlyPostgresDB, err := do.InvokeNamed[*bun.DB](container, "db-readonly")
	if err != nil {
		return nil, err
	}

	cache, err := do.Invoke[caching.Cache](container)
	if err != nil {
		return nil, err
	}

	readonlyCache, err := do.Invoke[caching.ReadOnlyCache](container)
	if err != nil {
		return nil, err
	}

	return &ServiceIdentity{container, postgresDB, readonlyPostgresDB, cache, readonlyCache}, nil
}

func defaultDisplayName(email string) string {
	name, _, _ := strings.Cut(email, "@")
	if name == "" {
		return "adventurer"
	}
	return name
}

// FindOrCreateProfile returns the caller's profile, creating it on first sight.
func (service *ServiceIdentity) FindOrCreateProfile(ctx context.Context, principal *models.Principal) (*models.Profile, error) {
	if principal == nil {
		return nil, progression.ErrNotAuthenticated
	}

	callback := func() (*models.Profile, error) {
		now := time.Now().UTC()
		return datastore.CreateProfileIfNotExists(ctx, service.postgresDB, &models.Profile{
			ID:          principal.ID,
			Email:       principal.Email,
			DisplayName: defaultDisplayName(principal.Email),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	profile, err := caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyProfile(principal.ID), CACHE_TTL_15_SECONDS, callback)
	if err != nil {
		return nil, err
	}

	roles, err := service.GetRoles(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	profile.Roles = roles

	return profile, nil
}

func (service *ServiceIdentity) UpdateProfile(ctx context.Context, principal *models.Principal, displayName string, avatarURL *string) (*models.Profile, error) {
	profile, err := service.FindOrCreateProfile(ctx, principal)
	if err != nil {
		return nil, err
	}

	displayName = strings.TrimSpace(displayName)
	if err := validate.Var(displayName, "min=2,max=50"); err != nil {
		return nil, progression.Invalid("display_name_length", "display name must be between 2 and 50 characters")
	}
	if avatarURL != nil {
		if err := validate.Var(*avatarURL, "url"); err != nil {
			return nil, progression.Invalid("invalid_url", "avatar must be a valid URL")
		}
	}

	profile.DisplayName = displayName
	profile.AvatarURL = avatarURL
	profile, err = datastore.EditProfile(ctx, service.postgresDB, profile)
	if err != nil {
		return nil, err
	}

	//nolint:errcheck
	service.cache.Delete(ctx, DBKeyProfile(principal.ID))
	return profile, nil
}

func (service *ServiceIdentity) GetRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	callback := func() ([]string, error) {
		roles, err := datastore.GetRolesByUserID(ctx, service.readonlyPostgresDB, userID)
		if err != nil {
			return nil, err
		}
		if roles == nil {
			roles = []string{}
		}
		return roles, nil
	}

	return caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyRoles(userID), CACHE_TTL_15_SECONDS, callback)
}

func (service *ServiceIdentity) IsGameMaster(ctx context.Context, userID uuid.UUID) (bool, error) {
	roles, err := service.GetRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	return slices.Contains(roles, models.RoleGameMaster) || slices.Contains(roles, models.RoleAdmin), nil
}

// RequireGameMaster is the guard for GM-only reads outside the engine.
func (service *ServiceIdentity) RequireGameMaster(ctx context.Context, principal *models.Principal) error {
	if principal == nil {
		return progression.ErrNotAuthenticated
	}
	ok, err := service.IsGameMaster(ctx, principal.ID)
	if err != nil {
		return err
	}
	if !ok {
		return progression.ErrNotAuthorized
	}
	return nil
}

// RequireAdmin guards role and config management.
func (service *ServiceIdentity) RequireAdmin(ctx context.Context, principal *models.Principal) error {
	if principal == nil {
		return progression.ErrNotAuthenticated
	}
	roles, err := service.GetRoles(ctx, principal.ID)
	if err != nil {
		return err
	}
	if !slices.Contains(roles, models.RoleAdmin) {
		return progression.ErrNotAuthorized
	}
	return nil
}

// SetRole grants or revokes a role on behalf of an admin.
func (service *ServiceIdentity) SetRole(ctx context.Context, principal *models.Principal, userID uuid.UUID, role string, revoke bool) ([]string, error) {
	if err := service.RequireAdmin(ctx, principal); err != nil {
		return nil, err
	}
	if userID == uuid.Nil {
		return nil, progression.Invalid("invalid_id", "user_id is required")
	}
	if revoke && userID == principal.ID && role == models.RoleAdmin {
		return nil, progression.Invalid("invalid_role", "admins cannot revoke their own admin role")
	}

	var err error
	if revoke {
		err = service.RevokeRole(ctx, userID, role)
	} else {
		err = service.GrantRole(ctx, userID, role)
	}
	if err != nil {
		return nil, err
	}
	return service.GetRoles(ctx, userID)
}

func (service *ServiceIdentity) GrantRole(ctx context.Context, userID uuid.UUID, role string) error {
	if role != models.RoleGameMaster && role != models.RoleAdmin {
		return progression.Invalid("invalid_role", "unknown role %q", role)
	}

	err := datastore.InsertUserRole(ctx, service.postgresDB, &models.UserRole{UserID: userID, Role: role, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	//nolint:errcheck
	service.cache.Delete(ctx, DBKeyRoles(userID))
	return nil
}

func (service *ServiceIdentity) RevokeRole(ctx context.Context, userID uuid.UUID, role string) error {
	if err := datastore.DeleteUserRole(ctx, service.postgresDB, userID, role); err != nil {
		return err
	}

	//nolint:errcheck
	service.cache.Delete(ctx, DBKeyRoles(userID))
	return nil
}

// FindProfiles returns the profiles it can find keyed by id; unknown ids are skipped.
func (service *ServiceIdentity) FindProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Profile, error) {
	profiles, err := datastore.FindProfilesByIDs(ctx, service.readonlyPostgresDB, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*models.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}
	return byID, nil
}

// forgetProfile drops the cached profile so the next read shows the new balance.
func (service *ServiceIdentity) forgetProfile(ctx context.Context, userID uuid.UUID) {
	//nolint:errcheck
	service.cache.Delete(ctx, DBKeyProfile(userID))
}

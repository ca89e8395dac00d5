package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/uptrace/bun"

	"guildhall/internal/datastore"
	"guildhall/internal/datastore/redis_store"
	"guildhall/internal/models"
	"guildhall/internal/pkg"
	"guildhall/internal/pkg/caching"
	"guildhall/internal/progression"
)

const leaderboardRebuildPage = 1000

type ServiceLeaderboard struct {
	container          *do.Injector
	redisDB            redis.UniversalClient
	redisDBCache       redis.UniversalClient
	rs                 *redsync.Redsync
	readonlyPostgresDB *bun.DB
	cache              caching.Cache
	readonlyCache      caching.ReadOnlyCache

	serviceIdentity *ServiceIdentity
	serviceConfig   *ServiceConfig
}

func NewServiceLeaderboard(container *do.Injector) (*ServiceLeaderboard, error) {
	db, err := do.InvokeNamed[redis.UniversalClient](container, "redis-db")
	if err != nil {
		return nil, err
	}

	dbRedisCache, err := do.InvokeNamed[redis.UniversalClient](container, "redis-cache")
	if err != nil {
		return nil, err
	}

	rs, err := do.Invoke[*redsync.Redsync](container)
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

	serviceIdentity, err := do.Invoke[*ServiceIdentity](container)
	if err != nil {
		return nil, err
	}

	serviceConfig, err := do.Invoke[*ServiceConfig](container)
	if err != nil {
		return nil, err
	}

	return &ServiceLeaderboard{container, db, dbRedisCache, rs, readonlyPostgresDB, cache, readonlyCache, serviceIdentity, serviceConfig}, nil
}

func (service *ServiceLeaderboard) GetOverallLeaderboard(ctx context.Context, principal *models.Principal) (*models.LeaderboardResponse, error) {
	limit := service.serviceConfig.GetPositiveIntConfig(ctx, CONFIG_OVERALL_LEADERBOARD_LIMIT, OVERALL_LEADERBOARD_DEFAULT_LIMIT)
	return service.getLeaderboard(ctx, principal, redis_store.LeaderboardOverall, limit)
}

func (service *ServiceLeaderboard) GetWeeklyLeaderboard(ctx context.Context, principal *models.Principal) (*models.LeaderboardResponse, error) {
	limit := service.serviceConfig.GetPositiveIntConfig(ctx, CONFIG_OVERALL_LEADERBOARD_LIMIT, OVERALL_LEADERBOARD_DEFAULT_LIMIT)
	return service.getLeaderboard(ctx, principal, redis_store.LeaderboardWeekly, limit)
}

// GetTop returns the first entries of a board without the caller's own rank.
func (service *ServiceLeaderboard) GetTop(ctx context.Context, board string, limit int) ([]*models.LeaderboardItem, error) {
	if board != redis_store.LeaderboardOverall && board != redis_store.LeaderboardWeekly {
		return nil, fmt.Errorf("unknown leaderboard %q", board)
	}

	callback := func() ([]*models.LeaderboardItem, error) {
		leaderboard, err := redis_store.GetLeaderboard(ctx, service.redisDB, board, limit)
		if err != nil {
			return nil, err
		}
		return leaderboard, service.fillNames(ctx, leaderboard)
	}

	return caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyLeaderboardTop(board, limit), CACHE_TTL_15_SECONDS, callback)
}

func (service *ServiceLeaderboard) fillNames(ctx context.Context, items []*models.LeaderboardItem) error {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if id, err := uuid.Parse(item.UserID); err == nil {
			ids = append(ids, id)
		}
	}

	profiles, err := service.serviceIdentity.FindProfiles(ctx, ids)
	if err != nil {
		return err
	}

	for _, item := range items {
		id, _ := uuid.Parse(item.UserID)
		if p := profiles[id]; p != nil {
			item.DisplayName = p.DisplayName
			item.Avatar = p.AvatarURL
		}
	}
	return nil
}

func (service *ServiceLeaderboard) ClearLeaderboardCache(ctx context.Context, board string) error {
	return caching.DeleteKeys(ctx, service.redisDBCache, fmt.Sprintf("leaderboard_by_user:%s*", board))
}

// RecordAward moves the user on both boards after points were credited.
func (service *ServiceLeaderboard) RecordAward(ctx context.Context, userID uuid.UUID, points int) error {
	member := userID.String()
	if _, err := redis_store.IncrLeaderboard(ctx, service.redisDB, redis_store.LeaderboardOverall, member, float64(points)); err != nil {
		return err
	}
	if _, err := redis_store.IncrLeaderboard(ctx, service.redisDB, redis_store.LeaderboardWeekly, member, float64(points)); err != nil {
		return err
	}

	//nolint:errcheck
	service.ClearLeaderboardCache(ctx, redis_store.LeaderboardOverall)
	//nolint:errcheck
	service.ClearLeaderboardCache(ctx, redis_store.LeaderboardWeekly)
	return nil
}

// ClearBoard empties a board. The next rebuild fills it again.
func (service *ServiceLeaderboard) ClearBoard(ctx context.Context, board string) error {
	if err := redis_store.ClearLeaderboard(ctx, service.redisDB, board); err != nil {
		return err
	}
	return service.ClearLeaderboardCache(ctx, board)
}

// GetPointHistory lists the caller's ledger, newest first, with this week's total.
func (service *ServiceLeaderboard) GetPointHistory(ctx context.Context, principal *models.Principal, limit, offset int) (*models.PointHistory, error) {
	if principal == nil {
		return nil, progression.ErrNotAuthenticated
	}

	weekly, err := datastore.GetUserTotalPointsFromTime(ctx, service.readonlyPostgresDB, principal.ID, pkg.GetFirstTimeOfCurrentWeek(time.Now()))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	awards, err := datastore.ListPointAwardsByUser(ctx, service.readonlyPostgresDB, principal.ID, limit, offset)
	if err != nil {
		return nil, err
	}

	return &models.PointHistory{WeeklyPoints: weekly, Awards: awards}, nil
}

// RebuildOverall replaces the overall board with profile totals from postgres.
func (service *ServiceLeaderboard) RebuildOverall(ctx context.Context) (int, error) {
	return service.rebuild(ctx, redis_store.LeaderboardOverall, func(offset int) ([]*models.LeaderboardItem, error) {
		profiles, err := datastore.GetProfilesSortedByPoints(ctx, service.readonlyPostgresDB, leaderboardRebuildPage, offset)
		if err != nil {
			return nil, err
		}
		items := make([]*models.LeaderboardItem, len(profiles))
		for i, p := range profiles {
			items[i] = &models.LeaderboardItem{UserID: p.ID.String(), Score: float64(p.Points)}
		}
		return items, nil
	})
}

// RebuildWeekly replaces the weekly board with ledger totals since Monday.
// Run right after the week turns it empties the board.
func (service *ServiceLeaderboard) RebuildWeekly(ctx context.Context, now time.Time) (int, error) {
	from := pkg.GetFirstTimeOfCurrentWeek(now)
	return service.rebuild(ctx, redis_store.LeaderboardWeekly, func(offset int) ([]*models.LeaderboardItem, error) {
		totals, err := datastore.GetTotalPointsListFromTime(ctx, service.readonlyPostgresDB, from, leaderboardRebuildPage, offset)
		if err != nil {
			return nil, err
		}
		items := make([]*models.LeaderboardItem, len(totals))
		for i, t := range totals {
			items[i] = &models.LeaderboardItem{UserID: t.UserID.String(), Score: float64(t.TotalPoints)}
		}
		return items, nil
	})
}

func (service *ServiceLeaderboard) rebuild(ctx context.Context, board string, page func(offset int) ([]*models.LeaderboardItem, error)) (int, error) {
	mutex := service.rs.NewMutex(LockKeyLeaderboardRebuild(board), redsync.WithExpiry(time.Minute))
	if err := mutex.TryLockContext(ctx); err != nil {
		return 0, ErrLeaderboardLock
	}
	//nolint:errcheck
	defer mutex.UnlockContext(ctx)

	var all []*models.LeaderboardItem
	for offset := 0; ; offset += leaderboardRebuildPage {
		items, err := page(offset)
		if err != nil {
			return 0, err
		}
		all = append(all, items...)
		if len(items) < leaderboardRebuildPage {
			break
		}
	}

	if err := redis_store.ReplaceLeaderboard(ctx, service.redisDB, board, all); err != nil {
		return 0, err
	}

	//nolint:errcheck
	service.ClearLeaderboardCache(ctx, board)
	log.Printf("leaderboard %s rebuilt with %d entries\n", board, len(all))
	return len(all), nil
}

func (service *ServiceLeaderboard) getLeaderboard(ctx context.Context, principal *models.Principal, board string, limit int) (*models.LeaderboardResponse, error) {
	callback := func() (*models.LeaderboardResponse, error) {
		leaderboard, err := redis_store.GetLeaderboard(ctx, service.redisDB, board, limit)
		if err != nil {
			return nil, err
		}

		me := &models.LeaderboardItem{UserID: principal.ID.String()}
		rank, err := redis_store.GetRankWithScore(ctx, service.redisDB, board, me.UserID)
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return nil, err
		default:
			me.Rank = int(rank.Rank + 1)
			me.Score = rank.Score
		}

		participants, err := redis_store.GetLeaderboardParticipantsCount(ctx, service.redisDB, board)
		if err != nil {
			return nil, err
		}

		if err := service.fillNames(ctx, append(leaderboard, me)); err != nil {
			return nil, err
		}

		return &models.LeaderboardResponse{Leaderboard: leaderboard, Me: me, Participants: participants}, nil
	}

	return caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyLeaderboardByUser(board, principal.ID, limit), CACHE_TTL_15_SECONDS, callback)
}

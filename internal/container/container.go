package container

import (
	"context"
	"database/sql"
	"os"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/hiendaovinh/toolkit/pkg/db"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"guildhall/internal/interfaces"
	"guildhall/internal/pkg/caching"
	"guildhall/internal/pkg/limiter"
	"guildhall/internal/pkg/storage"
	"guildhall/internal/services"
)

// optional settings copied into envs when present
var optionalEnvs = []string{
	"API_MODE",
	"API_ORIGINS",
	"TELEGRAM_BOT_TOKEN",
	"GM_CHAT_ID",
	"S3_ENDPOINT",
	"S3_REGION",
	"S3_BUCKET",
	"S3_ACCESS_KEY",
	"S3_SECRET_KEY",
	"S3_PUBLIC_BASE_URL",
}

func openDB(dsn, password string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithPassword(password),
	))
	return bun.NewDB(sqldb, pgdialect.New())
}

// redisFromEnv prefers a cluster url and falls back to a single node.
func redisFromEnv(clusterKey, key string, readOnly bool) (redis.UniversalClient, error) {
	if clusterURL := os.Getenv(clusterKey); clusterURL != "" {
		clusterOpts, err := redis.ParseClusterURL(clusterURL)
		if err != nil {
			return nil, err
		}
		clusterOpts.ReadOnly = readOnly
		return redis.NewClusterClient(clusterOpts), nil
	}

	return db.InitRedis(&db.RedisConfig{
		URL: os.Getenv(key),
	})
}

func New(vs map[string]string) *do.Injector {
	injector := do.New()
	for _, key := range optionalEnvs {
		vs[key] = os.Getenv(key)
	}

	if vs["API_MODE"] == "" {
		vs["API_MODE"] = "production"
	}
	if vs["API_ORIGINS"] == "" {
		vs["API_ORIGINS"] = "*"
	}

	do.ProvideNamedValue(injector, "envs", vs)

	do.Provide(injector, func(i *do.Injector) (*bun.DB, error) {
		return openDB(vs["DB_DSN"], os.Getenv("DB_PASSWORD")), nil
	})

	do.ProvideNamed(injector, "db-readonly", func(i *do.Injector) (*bun.DB, error) {
		dsn := os.Getenv("DB_DSN_READONLY")
		if dsn == "" {
			// no replica, read from the primary
			return do.Invoke[*bun.DB](i)
		}
		return openDB(dsn, os.Getenv("DB_PASSWORD_READONLY")), nil
	})

	do.ProvideNamed(injector, "redis-db", func(i *do.Injector) (redis.UniversalClient, error) {
		return redisFromEnv("CLUSTER_REDIS_DB", "REDIS_DB", false)
	})

	do.ProvideNamed(injector, "redis-cache", func(i *do.Injector) (redis.UniversalClient, error) {
		return redisFromEnv("CLUSTER_REDIS_CACHE", "REDIS_CACHE", false)
	})

	do.ProvideNamed(injector, "redis-cache-readonly", func(i *do.Injector) (redis.UniversalClient, error) {
		if os.Getenv("CLUSTER_REDIS_CACHE_READONLY") != "" {
			return redisFromEnv("CLUSTER_REDIS_CACHE_READONLY", "", true)
		}
		if os.Getenv("CLUSTER_REDIS_CACHE") != "" {
			return redisFromEnv("CLUSTER_REDIS_CACHE", "", true)
		}
		if os.Getenv("REDIS_CACHE_READONLY") == "" {
			return do.InvokeNamed[redis.UniversalClient](i, "redis-cache")
		}
		return redisFromEnv("", "REDIS_CACHE_READONLY", true)
	})

	do.ProvideNamed(injector, "redis-limiter", func(i *do.Injector) (redis.UniversalClient, error) {
		return redisFromEnv("CLUSTER_REDIS_LIMITER", "REDIS_LIMITER", false)
	})

	do.ProvideNamed(injector, "redis-mutex", func(i *do.Injector) (redis.UniversalClient, error) {
		return redisFromEnv("CLUSTER_REDIS_MUTEX", "REDIS_MUTEX", false)
	})

	do.Provide(injector, func(i *do.Injector) (caching.Cache, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-cache")
		if err != nil {
			return nil, err
		}

		return caching.NewCacheRedis(dbRedis, false)
	})

	do.Provide(injector, func(i *do.Injector) (caching.ReadOnlyCache, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-cache-readonly")
		if err != nil {
			return nil, err
		}

		return caching.NewCacheRedis(dbRedis, false)
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.Limiter, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-limiter")
		if err != nil {
			return nil, err
		}

		return limiter.NewLimiter(dbRedis)
	})

	do.Provide(injector, func(i *do.Injector) (*redsync.Redsync, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-mutex")
		if err != nil {
			return nil, err
		}

		pool := goredis.NewPool(dbRedis)
		rs := redsync.New(pool)
		return rs, nil
	})

	// Telegram alerts and badge storage are only wired when configured.
	if vs["TELEGRAM_BOT_TOKEN"] != "" {
		do.Provide(injector, func(i *do.Injector) (*services.Bot, error) {
			return services.NewBot(vs["TELEGRAM_BOT_TOKEN"])
		})
	}

	if vs["S3_BUCKET"] != "" {
		do.Provide(injector, func(i *do.Injector) (storage.Uploader, error) {
			return storage.NewS3(context.Background(), &storage.Config{
				Endpoint:      vs["S3_ENDPOINT"],
				Region:        vs["S3_REGION"],
				Bucket:        vs["S3_BUCKET"],
				AccessKey:     vs["S3_ACCESS_KEY"],
				SecretKey:     vs["S3_SECRET_KEY"],
				PublicBaseURL: vs["S3_PUBLIC_BASE_URL"],
			})
		})
	}

	do.Provide(injector, func(i *do.Injector) (*services.Authentication, error) {
		return services.NewAuthentication(vs["JWT_SECRET"])
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceConfig, error) {
		return services.NewServiceConfig(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceIdentity, error) {
		return services.NewServiceIdentity(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceQuest, error) {
		return services.NewServiceQuest(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceNotification, error) {
		return services.NewServiceNotification(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceLeaderboard, error) {
		return services.NewServiceLeaderboard(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceProgression, error) {
		return services.NewServiceProgression(injector)
	})

	return injector
}

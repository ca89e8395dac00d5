package services

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/robfig/cron/v3"
	"github.com/samber/do"
	"github.com/uptrace/bun"

	"guildhall/internal/datastore"
	"guildhall/internal/models"
	"guildhall/internal/pkg/caching"
	"guildhall/internal/progression"
)

type intRange struct{ min, max int }

// intConfigs are the numeric knobs and the values they accept.
var intConfigs = map[string]intRange{
	CONFIG_OVERALL_LEADERBOARD_LIMIT:    {1, 500},
	CONFIG_SUBMIT_RATE_LIMIT_PER_MINUTE: {1, 1000},
	CONFIG_EXPIRE_BATCH_SIZE:            {1, 10000},
}

// CheckConfigValue rejects values the reader of key could not use.
// Unknown keys are stored as given.
func CheckConfigValue(key, value string) error {
	if r, ok := intConfigs[key]; ok {
		n, err := strconv.Atoi(value)
		if err != nil || n < r.min || n > r.max {
			return progression.Invalid("invalid_config_value", "%s must be a whole number from %d to %d", key, r.min, r.max)
		}
		return nil
	}

	switch key {
	case CONFIG_SERVER_MODE:
		switch value {
		case SERVER_MODE_DEVELOPMENT, SERVER_MODE_STAGING, SERVER_MODE_PRODUCTION:
			return nil
		}
		return progression.Invalid("invalid_config_value", "%s must be development, staging or production", key)
	case CONFIG_CRONJOB_TIME_EXPIRE, CONFIG_CRONJOB_TIME_LEADERBOARD:
		if _, err := cron.ParseStandard(value); err != nil {
			return progression.Invalid("invalid_config_value", "%s is not a cron schedule: %s", key, err.Error())
		}
	}
	return nil
}

// positiveOr guards readers against rows written before values were checked.
func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

type ServiceConfig struct {
	container          *do.Injector
	postgresDB         *bun.DB
	readonlyPostgresDB *bun.DB
	cache              caching.Cache
	readonlyCache      caching.ReadOnlyCache
}

func NewServiceConfig(container *do.Injector) (*ServiceConfig, error) {
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

	readOnlyCache, err := do.Invoke[caching.ReadOnlyCache](container)
	if err != nil {
		return nil, err
	}

	return &ServiceConfig{container, postgresDB, readonlyPostgresDB, cache, readOnlyCache}, nil
}

func (service *ServiceConfig) GetStringConfig(ctx context.Context, key string, defaultValue string) (string, error) {
	callback := func() (string, error) {
		config, err := datastore.GetConfigByKey(ctx, service.readonlyPostgresDB, key)
		if errors.Is(err, sql.ErrNoRows) {
			return defaultValue, nil
		}
		if err != nil {
			return defaultValue, err
		}
		return config.Value, nil
	}

	value, err := caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyConfig(key), CACHE_TTL_5_MINS, callback)
	if err != nil {
		return defaultValue, err
	}

	return value, nil
}

func (service *ServiceConfig) GetIntConfig(ctx context.Context, key string, defaultValue int) (int, error) {
	callback := func() (int, error) {
		config, err := datastore.GetConfigByKey(ctx, service.readonlyPostgresDB, key)
		if errors.Is(err, sql.ErrNoRows) {
			return defaultValue, nil
		}
		if err != nil {
			return defaultValue, err
		}

		intValue, err := strconv.Atoi(config.Value)
		if err != nil {
			return defaultValue, err
		}

		return intValue, nil
	}

	value, err := caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyConfig(key), CACHE_TTL_5_MINS, callback)
	if err != nil {
		return defaultValue, err
	}

	return value, nil
}

// GetPositiveIntConfig is GetIntConfig for sizes and rates, where zero or less
// falls back to defaultValue.
func (service *ServiceConfig) GetPositiveIntConfig(ctx context.Context, key string, defaultValue int) int {
	value, err := service.GetIntConfig(ctx, key, defaultValue)
	if err != nil {
		return defaultValue
	}
	return positiveOr(value, defaultValue)
}

func (service *ServiceConfig) ListConfigs(ctx context.Context) ([]*models.Config, error) {
	return datastore.ListConfigs(ctx, service.readonlyPostgresDB)
}

// SetConfig writes through to postgres and drops the cached value.
func (service *ServiceConfig) SetConfig(ctx context.Context, key string, value string) (*models.Config, error) {
	if err := CheckConfigValue(key, value); err != nil {
		return nil, err
	}

	config := &models.Config{Key: key, Value: value}
	if err := datastore.UpsertConfig(ctx, service.postgresDB, config); err != nil {
		return nil, err
	}

	//nolint:errcheck
	service.cache.Delete(ctx, DBKeyConfig(key))
	return config, nil
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/go-redis/redis_rate/v10"
	"github.com/google/uuid"

	"guildhall/internal/models"
	"guildhall/internal/pkg/limiter"
	"guildhall/internal/progression"
)

// configCache serves stored int config values and misses on anything else.
type configCache map[string]int

func (c configCache) Get(ctx context.Context, key string, target any) error {
	v, ok := c[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	*target.(*int) = v
	return nil
}

func (c configCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return nil
}

func (c configCache) Delete(ctx context.Context, key string) error {
	return nil
}

// refusingLimiter records each limit it is asked about and refuses all of them.
type refusingLimiter struct {
	seen []redis_rate.Limit
}

func (l *refusingLimiter) Allow(ctx context.Context, key string, limit redis_rate.Limit) error {
	l.seen = append(l.seen, limit)
	return limiter.ErrRateLimited
}

func TestSubmitAndCompleteShareConfiguredBudget(t *testing.T) {
	cases := []struct {
		name   string
		stored int
		want   int
	}{
		{"configured", 7, 7},
		{"zero falls back", 0, SUBMIT_RATE_LIMIT_PER_MINUTE},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			configs := configCache{DBKeyConfig(CONFIG_SUBMIT_RATE_LIMIT_PER_MINUTE): tc.stored}
			rl := &refusingLimiter{}
			service := &ServiceProgression{
				limiter:       rl,
				serviceConfig: &ServiceConfig{cache: configs, readonlyCache: configs},
			}

			ctx := context.Background()
			user := &models.Principal{ID: uuid.New()}

			_, err := service.SubmitEvidence(ctx, user, uuid.New(), progression.Evidence{Text: "found it under the mat"})
			if !errors.Is(err, limiter.ErrRateLimited) {
				t.Fatalf("submit err = %v", err)
			}
			_, err = service.MarkComplete(ctx, user, uuid.New())
			if !errors.Is(err, limiter.ErrRateLimited) {
				t.Fatalf("complete err = %v", err)
			}

			want := redis_rate.PerMinute(tc.want)
			if len(rl.seen) != 2 || rl.seen[0] != want || rl.seen[1] != want {
				t.Fatalf("limits = %+v, want two of %+v", rl.seen, want)
			}
		})
	}
}

package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrUserQuestLock = errors.New("user quest locked")
var ErrLeaderboardLock = errors.New("leaderboard rebuild locked")
var ErrStorageDisabled = errors.New("object storage is not configured")

const (
	CONFIG_SERVER_MODE                  = "SERVER_MODE"
	CONFIG_OVERALL_LEADERBOARD_LIMIT    = "OVERALL_LEADERBOARD_LIMIT"
	CONFIG_CRONJOB_TIME_EXPIRE          = "CRONJOB_TIME_EXPIRE"
	CONFIG_CRONJOB_TIME_LEADERBOARD     = "CRONJOB_TIME_LEADERBOARD"
	CONFIG_SUBMIT_RATE_LIMIT_PER_MINUTE = "SUBMIT_RATE_LIMIT_PER_MINUTE"
	CONFIG_EXPIRE_BATCH_SIZE            = "EXPIRE_BATCH_SIZE"

	SERVER_MODE_DEVELOPMENT = "development"
	SERVER_MODE_STAGING     = "staging"
	SERVER_MODE_PRODUCTION  = "production"

	OVERALL_LEADERBOARD_DEFAULT_LIMIT = 20
	GM_QUEUE_DEFAULT_LIMIT            = 50
	QUEST_LIST_DEFAULT_LIMIT          = 50
	NOTIFICATION_DEFAULT_LIMIT        = 20

	DEFAULT_CRONJOB_TIME_EXPIRE      = "@every 5m"
	DEFAULT_CRONJOB_TIME_LEADERBOARD = "0 0 * * 1"
	DEFAULT_EXPIRE_BATCH_SIZE        = 200

	CACHE_TTL_5_SECONDS  = 5 * time.Second
	CACHE_TTL_15_SECONDS = 15 * time.Second
	CACHE_TTL_1_MIN      = 1 * time.Minute
	CACHE_TTL_5_MINS     = 5 * time.Minute
	CACHE_TTL_15_MINS    = 15 * time.Minute
	CACHE_TTL_1_HOUR     = 1 * time.Hour

	SUBMIT_RATE_LIMIT_PER_MINUTE    = 20
	ACCEPT_RATE_LIMIT_PER_MINUTE    = 10
	EXTENSION_RATE_LIMIT_PER_MINUTE = 5

	BADGE_MAX_BYTES = 1 << 20

	LOCK_EXPIRY = 10 * time.Second
)

func LockKeyUserQuest(userQuestID uuid.UUID) string {
	return fmt.Sprintf("lock:user-quest:%s", userQuestID)
}

func LockKeyLeaderboardRebuild(board string) string {
	return fmt.Sprintf("lock:leaderboard-rebuild:%s", board)
}

func LockKeyExpireSweep() string {
	return "lock:expire-sweep"
}

// db
func DBKeyConfig(key string) string {
	return fmt.Sprintf("config:%s", strings.ToLower(key))
}

func DBKeyQuest(questID uuid.UUID) string {
	return fmt.Sprintf("quest:%s", questID)
}

func DBKeyPublishedQuests() string {
	return "quests:published"
}

func DBKeyProfile(userID uuid.UUID) string {
	return fmt.Sprintf("profile:%s", userID)
}

func DBKeyRoles(userID uuid.UUID) string {
	return fmt.Sprintf("roles:%s", userID)
}

func DBKeyLeaderboardByUser(name string, userID uuid.UUID, limit int) string {
	return fmt.Sprintf("leaderboard_by_user:%s:%s:%d", strings.ToLower(name), userID, limit)
}

func DBKeyLeaderboardTop(name string, limit int) string {
	return fmt.Sprintf("leaderboard_by_user:%s:top:%d", strings.ToLower(name), limit)
}

func LimitKeyUserSubmit(userID uuid.UUID) string {
	return fmt.Sprintf("limit:submit:%s", userID)
}

func LimitKeyUserAccept(userID uuid.UUID) string {
	return fmt.Sprintf("limit:accept:%s", userID)
}

func LimitKeyUserExtension(userID uuid.UUID) string {
	return fmt.Sprintf("limit:extension:%s", userID)
}

package redis_store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"guildhall/internal/models"
)

const (
	LeaderboardOverall = "overall"
	LeaderboardWeekly  = "weekly"

	NOTIFICATION_INBOX_SIZE = 100
	NOTIFICATION_INBOX_TTL  = 30 * 24 * time.Hour
)

func dbKeyLeaderboard(board string) string {
	return fmt.Sprintf("leaderboard:%s", board)
}

func dbKeyNotifications(userID string) string {
	return fmt.Sprintf("user:%s:notifications", userID)
}

func dbKeyNotifyChat(userID string) string {
	return fmt.Sprintf("user:%s:notify_chat", userID)
}

func IncrLeaderboard(ctx context.Context, cmd redis.Cmdable, board string, userID string, delta float64) (float64, error) {
	return cmd.ZIncrBy(ctx, dbKeyLeaderboard(board), delta, userID).Result()
}

func ClearLeaderboard(ctx context.Context, cmd redis.Cmdable, board string) error {
	err := cmd.Del(ctx, dbKeyLeaderboard(board)).Err()
	if err != nil {
		return err
	}

	return nil
}

// ReplaceLeaderboard rebuilds a board atomically from a full snapshot.
func ReplaceLeaderboard(ctx context.Context, cmd redis.Cmdable, board string, items []*models.LeaderboardItem) error {
	key := dbKeyLeaderboard(board)
	_, err := cmd.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(items) == 0 {
			return nil
		}
		members := make([]redis.Z, len(items))
		for i, item := range items {
			members[i] = redis.Z{Score: item.Score, Member: item.UserID}
		}
		pipe.ZAdd(ctx, key, members...)
		return nil
	})
	return err
}

func GetLeaderboard(ctx context.Context, cmd redis.Cmdable, board string, num int) ([]*models.LeaderboardItem, error) {
	// num always greater than 0
	items, err := cmd.ZRevRangeWithScores(ctx, dbKeyLeaderboard(board), 0, int64(num-1)).Result()
	if err != nil {
		return nil, err
	}

	results := make([]*models.LeaderboardItem, 0, len(items))
	for i, item := range items {
		id, _ := item.Member.(string)
		results = append(results, &models.LeaderboardItem{
			UserID: id,
			Score:  item.Score,
			Rank:   i + 1,
		})
	}

	return results, nil
}

// GetRankWithScore returns a zero-based rank. A user missing from the board
// yields redis.Nil.
func GetRankWithScore(ctx context.Context, cmd redis.Cmdable, board string, userID string) (redis.RankScore, error) {
	rank, err := cmd.ZRevRankWithScore(ctx, dbKeyLeaderboard(board), userID).Result()
	if err != nil {
		return redis.RankScore{}, err
	}

	return rank, nil
}

func GetLeaderboardParticipantsCount(ctx context.Context, cmd redis.Cmdable, board string) (int64, error) {
	count, err := cmd.ZCard(ctx, dbKeyLeaderboard(board)).Result()
	if err != nil {
		return 0, err
	}

	return count, nil
}

// PushNotification prepends to the user's inbox and keeps only the newest entries.
func PushNotification(ctx context.Context, cmd redis.Cmdable, v *models.Notification) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}

	key := dbKeyNotifications(v.UserID)
	_, err = cmd.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, b)
		pipe.LTrim(ctx, key, 0, NOTIFICATION_INBOX_SIZE-1)
		pipe.Expire(ctx, key, NOTIFICATION_INBOX_TTL)
		return nil
	})
	return err
}

func GetNotifications(ctx context.Context, cmd redis.Cmdable, userID string, num int) ([]*models.Notification, error) {
	raw, err := cmd.LRange(ctx, dbKeyNotifications(userID), 0, int64(num-1)).Result()
	if err != nil {
		return nil, err
	}

	results := make([]*models.Notification, 0, len(raw))
	for _, s := range raw {
		var v models.Notification
		if err := msgpack.Unmarshal([]byte(s), &v); err != nil {
			// skip entries written by an older layout
			continue
		}
		results = append(results, &v)
	}

	return results, nil
}

func ClearNotifications(ctx context.Context, cmd redis.Cmdable, userID string) error {
	return cmd.Del(ctx, dbKeyNotifications(userID)).Err()
}

func SetNotifyChat(ctx context.Context, cmd redis.Cmdable, userID string, chatID int64) error {
	return cmd.Set(ctx, dbKeyNotifyChat(userID), chatID, 0).Err()
}

// GetNotifyChat returns redis.Nil when the user has not linked a chat.
func GetNotifyChat(ctx context.Context, cmd redis.Cmdable, userID string) (int64, error) {
	return cmd.Get(ctx, dbKeyNotifyChat(userID)).Int64()
}

func DeleteNotifyChat(ctx context.Context, cmd redis.Cmdable, userID string) error {
	return cmd.Del(ctx, dbKeyNotifyChat(userID)).Err()
}

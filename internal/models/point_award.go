package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type PointAward struct {
	bun.BaseModel `bun:"table:point_award"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID        uuid.UUID `bun:"user_id,type:uuid,notnull" json:"user_id"`
	Points        int       `bun:"points,notnull" json:"points"`
	Action        string    `bun:"action,notnull" json:"action"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type TotalPoints struct {
	UserID      uuid.UUID `json:"user_id"`
	TotalPoints int       `json:"total_points"`
}

type PointHistory struct {
	WeeklyPoints int           `json:"weekly_points"`
	Awards       []*PointAward `json:"awards"`
}

// ActionQuestReward is the ledger key of a quest attempt's reward. One attempt pays out once.
func ActionQuestReward(userQuestID uuid.UUID) string {
	return fmt.Sprintf("quest:%s", userQuestID)
}

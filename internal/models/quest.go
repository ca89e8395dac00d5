package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type QuestStatus string

const (
	QuestStatusDraft     QuestStatus = "draft"
	QuestStatusPublished QuestStatus = "published"
	QuestStatusArchived  QuestStatus = "archived"
)

type EvidenceType string

const (
	EvidenceNone       EvidenceType = "none"
	EvidenceText       EvidenceType = "text"
	EvidenceLink       EvidenceType = "link"
	EvidenceTextOrLink EvidenceType = "text_or_link"
)

type Quest struct {
	bun.BaseModel         `bun:"table:quest"`
	ID                    uuid.UUID   `bun:"id,pk,type:uuid" json:"id"`
	Title                 string      `bun:"title,notnull" json:"title"`
	Description           string      `bun:"description,notnull,default:''" json:"description"`
	Points                int         `bun:"points,notnull" json:"points"`
	Status                QuestStatus `bun:"status,notnull,default:'draft'" json:"status"`
	CompletionDays        *int        `bun:"completion_days" json:"completion_days"`
	IsExclusive           bool        `bun:"is_exclusive,notnull,default:false" json:"is_exclusive"`
	ExclusiveCode         *string     `bun:"exclusive_code" json:"-"`
	BadgeURL              *string     `bun:"badge_url" json:"badge_url"`
	RequiresFinalApproval bool        `bun:"requires_final_approval,notnull,default:false" json:"requires_final_approval"`
	CreatedBy             uuid.UUID   `bun:"created_by,type:uuid" json:"created_by"`
	CreatedAt             time.Time   `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt             time.Time   `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	Objectives []*Objective `bun:"rel:has-many,join:id=quest_id" json:"objectives,omitempty"`
}

type Objective struct {
	bun.BaseModel    `bun:"table:objective"`
	ID               uuid.UUID    `bun:"id,pk,type:uuid" json:"id"`
	QuestID          uuid.UUID    `bun:"quest_id,type:uuid,notnull" json:"quest_id"`
	Title            string       `bun:"title,notnull" json:"title"`
	Description      string       `bun:"description,notnull,default:''" json:"description"`
	Points           int          `bun:"points,notnull,default:0" json:"points"`
	DisplayOrder     int          `bun:"display_order,notnull,default:0" json:"display_order"`
	DependsOnID      *uuid.UUID   `bun:"depends_on_id,type:uuid" json:"depends_on_id"`
	EvidenceRequired bool         `bun:"evidence_required,notnull,default:false" json:"evidence_required"`
	EvidenceType     EvidenceType `bun:"evidence_type,notnull,default:'none'" json:"evidence_type"`
	CreatedAt        time.Time    `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type UserQuestStatus string

const (
	UserQuestAccepted              UserQuestStatus = "accepted"
	UserQuestInProgress            UserQuestStatus = "in_progress"
	UserQuestReadyToClaim          UserQuestStatus = "ready_to_claim"
	UserQuestAwaitingFinalApproval UserQuestStatus = "awaiting_final_approval"
	UserQuestCompleted             UserQuestStatus = "completed"
	UserQuestAbandoned             UserQuestStatus = "abandoned"
	UserQuestExpired               UserQuestStatus = "expired"
)

// IsTerminal reports whether the attempt is finished for good or until re-accepted.
func (s UserQuestStatus) IsTerminal() bool {
	return s == UserQuestCompleted || s == UserQuestAbandoned || s == UserQuestExpired
}

type UserObjectiveStatus string

const (
	UserObjectiveLocked    UserObjectiveStatus = "locked"
	UserObjectiveAvailable UserObjectiveStatus = "available"
	UserObjectiveSubmitted UserObjectiveStatus = "submitted"
	UserObjectiveApproved  UserObjectiveStatus = "approved"
	UserObjectiveRejected  UserObjectiveStatus = "rejected"
)

type UserQuest struct {
	bun.BaseModel        `bun:"table:user_quest"`
	ID                   uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	UserID               uuid.UUID       `bun:"user_id,type:uuid,notnull" json:"user_id"`
	QuestID              uuid.UUID       `bun:"quest_id,type:uuid,notnull" json:"quest_id"`
	Status               UserQuestStatus `bun:"status,notnull" json:"status"`
	AcceptedAt           time.Time       `bun:"accepted_at,notnull" json:"accepted_at"`
	StartedAt            *time.Time      `bun:"started_at" json:"started_at"`
	CompletedAt          *time.Time      `bun:"completed_at" json:"completed_at"`
	AbandonedAt          *time.Time      `bun:"abandoned_at" json:"abandoned_at"`
	ExpiredAt            *time.Time      `bun:"expired_at" json:"expired_at"`
	Deadline             *time.Time      `bun:"deadline" json:"deadline"`
	ExtensionRequested   bool            `bun:"extension_requested,notnull,default:false" json:"extension_requested"`
	ExtensionReason      *string         `bun:"extension_reason" json:"extension_reason"`
	ExtensionRequestedAt *time.Time      `bun:"extension_requested_at" json:"extension_requested_at"`
	ExtensionGranted     *bool           `bun:"extension_granted" json:"extension_granted"`
	ExtendedDeadline     *time.Time      `bun:"extended_deadline" json:"extended_deadline"`
	ExtensionDecidedBy   *uuid.UUID      `bun:"extension_decided_by,type:uuid" json:"extension_decided_by"`
	ExtensionDecidedAt   *time.Time      `bun:"extension_decided_at" json:"extension_decided_at"`
	ReadyToClaimAt       *time.Time      `bun:"ready_to_claim_at" json:"ready_to_claim_at"`
	FinalReviewedBy      *uuid.UUID      `bun:"final_reviewed_by,type:uuid" json:"final_reviewed_by"`
	FinalReviewedAt      *time.Time      `bun:"final_reviewed_at" json:"final_reviewed_at"`
	FinalFeedback        *string         `bun:"final_feedback" json:"final_feedback"`
	CreatedAt            time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt            time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	Quest      *Quest           `bun:"rel:belongs-to,join:quest_id=id" json:"quest,omitempty"`
	Objectives []*UserObjective `bun:"rel:has-many,join:id=user_quest_id" json:"objectives,omitempty"`
}

// ExtensionPending reports a request that no GM has decided yet.
func (uq *UserQuest) ExtensionPending() bool {
	return uq.ExtensionRequested && uq.ExtensionGranted == nil
}

type UserObjective struct {
	bun.BaseModel `bun:"table:user_objective"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	UserQuestID   uuid.UUID `bun:"user_quest_id,type:uuid,notnull" json:"user_quest_id"`
	ObjectiveID   uuid.UUID `bun:"objective_id,type:uuid,notnull" json:"objective_id"`
	UserID        uuid.UUID `bun:"user_id,type:uuid,notnull" json:"user_id"`
	// snapshot of the objective's predecessor at acceptance time
	DependsOnObjectiveID *uuid.UUID          `bun:"depends_on_objective_id,type:uuid" json:"depends_on_objective_id"`
	Status               UserObjectiveStatus `bun:"status,notnull" json:"status"`
	EvidenceText         *string             `bun:"evidence_text" json:"evidence_text"`
	EvidenceURL          *string             `bun:"evidence_url" json:"evidence_url"`
	SubmittedAt          *time.Time          `bun:"submitted_at" json:"submitted_at"`
	ReviewedBy           *uuid.UUID          `bun:"reviewed_by,type:uuid" json:"reviewed_by"`
	ReviewedAt           *time.Time          `bun:"reviewed_at" json:"reviewed_at"`
	Feedback             *string             `bun:"feedback" json:"feedback"`
	ApprovedAt           *time.Time          `bun:"approved_at" json:"approved_at"`
	CreatedAt            time.Time           `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt            time.Time           `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	Objective *Objective `bun:"rel:belongs-to,join:objective_id=id" json:"objective,omitempty"`
	UserQuest *UserQuest `bun:"rel:belongs-to,join:user_quest_id=id" json:"user_quest,omitempty"`
}

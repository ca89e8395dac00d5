package api

import (
	"time"

	"github.com/google/uuid"
)

// Request bodies accepted by the HTTP handlers.

type AcceptQuestPayload struct {
	ExclusiveCode *string `json:"exclusive_code"`
}

type EvidencePayload struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type ExtensionRequestPayload struct {
	Reason string `json:"reason"`
}

type ReviewSubmissionPayload struct {
	Decision string  `json:"decision"`
	Feedback *string `json:"feedback"`
}

type ReviewCompletionPayload struct {
	Approved *bool   `json:"approved"`
	Feedback *string `json:"feedback"`
}

type DecideExtensionPayload struct {
	Approved    *bool      `json:"approved"`
	NewDeadline *time.Time `json:"new_deadline"`
}

type QuestStatusPayload struct {
	Status string `json:"status"`
}

type UpdateProfilePayload struct {
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

type SetConfigPayload struct {
	Value string `json:"value"`
}

type SetRolePayload struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
	Revoke bool      `json:"revoke"`
}

type LinkTelegramPayload struct {
	ChatID int64 `json:"chat_id"`
}

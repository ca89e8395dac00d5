package models

import "time"

const (
	NotificationObjectiveApproved = "objective_approved"
	NotificationObjectiveRejected = "objective_rejected"
	NotificationQuestCompleted    = "quest_completed"
	NotificationQuestReturned     = "quest_returned"
	NotificationQuestExpired      = "quest_expired"
	NotificationExtensionDecided  = "extension_decided"
)

type Notification struct {
	ID        string    `msgpack:"id" json:"id"`
	UserID    string    `msgpack:"user_id" json:"user_id"`
	Kind      string    `msgpack:"kind" json:"kind"`
	Title     string    `msgpack:"title" json:"title"`
	Body      string    `msgpack:"body" json:"body"`
	Link      string    `msgpack:"link" json:"link,omitempty"`
	CreatedAt time.Time `msgpack:"created_at" json:"created_at"`
}

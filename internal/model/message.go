// internal/model/message.go
package model

import (
	"fmt"
	"time"
)

const (
	MessageStatusQueued = "QUEUED"
	MessageStatusSent   = "SENT"
	MessageStatusFailed = "FAILED"
)

// Event types recorded in the append-only events table.
const (
	EventTypeSent   = "SENT"
	EventTypeFailed = "FAILED"
)

// TemplateVersion is part of the idempotency key. Campaign templates are
// immutable, so every message of a campaign shares version 1.
const TemplateVersion = 1

type Message struct {
	ID             int       `db:"id" json:"id"`
	CampaignID     int       `db:"campaign_id" json:"campaign_id"`
	UserID         int       `db:"user_id" json:"user_id"`
	Status         string    `db:"status" json:"status"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// MessageWithRecipient is a message joined with the user it is addressed to.
type MessageWithRecipient struct {
	Message
	User User `json:"user"`
}

// MessageOutcome is one message's status and, once sent, the time in
// milliseconds between its creation and its first SENT event.
type MessageOutcome struct {
	MessageID int
	Status    string
	LatencyMs *float64
}

// IdempotencyKey derives the dedup key for a (campaign, user) pair.
func IdempotencyKey(campaignID, userID int) string {
	return fmt.Sprintf("%d:%d:v%d", campaignID, userID, TemplateVersion)
}

// internal/model/campaign.go
package model

import "time"

// Campaign statuses. A campaign moves to SENDING on its first send.
const (
	CampaignStatusDraft   = "DRAFT"
	CampaignStatusSending = "SENDING"
)

type Campaign struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Template    string    `db:"template" json:"template"`
	SegmentRule string    `db:"segment_rule" json:"segment_rule"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CampaignStats is the aggregate delivery view of one campaign.
// Queued counts every message that is not SENT, so Total == Queued + Sent.
// Failed is the subset of Queued that exhausted its delivery attempts.
type CampaignStats struct {
	Total  int      `json:"total"`
	Queued int      `json:"queued"`
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	P50Ms  *float64 `json:"p50_ms"`
	P95Ms  *float64 `json:"p95_ms"`
}

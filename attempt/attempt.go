package attempt

import (
	"time"

	"outreachflow/outreach"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Attempt is one recorded delivery try. Rows are append-only: the ledger
// never updates or deletes them, which is what keeps concurrent rate-limit
// counting race-safe without a global lock.
type Attempt struct {
	ID         int64
	LeadID     string
	CampaignID string
	Channel    outreach.Channel
	Step       int
	Status     Status
	Reason     string
	CreatedAt  time.Time
}

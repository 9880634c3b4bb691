package prospect

import "time"

// LeadStatus represents the lead lifecycle.
type LeadStatus string

const (
	// StatusNew is the intake state; only NEW leads are scheduled for a
	// first touch.
	StatusNew LeadStatus = "new"
	// StatusContacted is set after the first SENT attempt.
	StatusContacted LeadStatus = "contacted"
	// StatusReplied is set by reply detection.
	StatusReplied LeadStatus = "replied"
	// StatusQualified marks a replied lead that has been handed off to
	// the project pipeline; qualified leads are not escalated again.
	StatusQualified LeadStatus = "qualified"
	// StatusLost is terminal and reachable from any non-terminal state.
	StatusLost LeadStatus = "lost"
)

// CanTransition reports whether a status change is legal. Transitions are
// validated in code rather than dispatched on raw strings so illegal
// moves fail fast.
func CanTransition(from, to LeadStatus) bool {
	if from == to {
		return true
	}
	if to == StatusLost {
		return from != StatusLost
	}
	switch from {
	case StatusNew:
		return to == StatusContacted
	case StatusContacted:
		return to == StatusReplied || to == StatusQualified
	case StatusReplied:
		return to == StatusQualified
	default:
		return false
	}
}

// Lead is one prospective client inside a campaign. Leads are never
// deleted; the lifecycle is soft-tracked via Status.
type Lead struct {
	ID             string
	CampaignID     string
	Name           string
	Company        string
	Role           string
	Email          string
	SocialHandle   string
	ContactFormURL string
	Status         LeadStatus
	Score          float64
	Tags           []string
	SequenceStep   int
	LastOutreachAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Campaign groups leads under one prospecting effort. Read-mostly after
// creation.
type Campaign struct {
	ID        string
	Name      string
	Niche     string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

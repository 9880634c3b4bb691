package outreach

import (
	"context"
	"errors"
	"time"
)

// Message is one generated outreach draft: a single touch for a single
// lead on a single channel. Values are immutable once produced by the
// generator.
type Message struct {
	LeadID     string
	CampaignID string
	Channel    Channel
	Step       int
	Subject    string
	Body       string
}

// SequenceConfig describes the multi-touch sequence a generator should
// produce messages for.
type SequenceConfig struct {
	// Steps is the total number of touches in the sequence.
	Steps int
	// Interval is the minimum gap between consecutive touches to the
	// same lead.
	Interval time.Duration
	// Channels is the fallback order tried for each touch.
	Channels []Channel
}

var (
	// ErrEmptySequence signals a sequence config without steps or channels.
	ErrEmptySequence = errors.New("outreach: sequence has no steps or channels")
	// ErrLeadUnresolvable signals the generator could not resolve the
	// lead or campaign it was asked to write for.
	ErrLeadUnresolvable = errors.New("outreach: lead or campaign unresolvable")
)

// Validate checks the sequence config before a cycle starts.
func (c SequenceConfig) Validate() error {
	if c.Steps <= 0 || len(c.Channels) == 0 {
		return ErrEmptySequence
	}
	for _, ch := range c.Channels {
		if !ch.Valid() {
			return ErrUnknownChannel
		}
	}
	return nil
}

// LeadContext carries the fields a generator needs to draft copy. It is
// a projection: the generator never sees lead status or safety state.
type LeadContext struct {
	LeadID         string
	Name           string
	Company        string
	Role           string
	Email          string
	SocialHandle   string
	ContactFormURL string
	Tags           []string
}

// CampaignContext is the campaign projection handed to the generator.
type CampaignContext struct {
	CampaignID string
	Name       string
	Niche      string
}

// Generator turns a lead plus campaign context into draft messages, one
// per step of the sequence. Implementations live outside this module;
// they must be deterministic with respect to their inputs and return an
// error wrapping ErrLeadUnresolvable when the inputs cannot be resolved.
type Generator interface {
	Generate(ctx context.Context, lead LeadContext, campaign CampaignContext, seq SequenceConfig) ([]Message, error)
}

package sequence

import (
	"context"
	"fmt"
	"time"

	"outreachflow/attempt"
	"outreachflow/gateway"
	"outreachflow/outreach"
	"outreachflow/prospect"
)

// SafetyChecker is the admission gate consulted before every delivery.
type SafetyChecker interface {
	CanSendNow(ctx context.Context, ch outreach.Channel, now time.Time) (bool, error)
}

// ContactPolicy decides whether a lead/address may be contacted at all.
type ContactPolicy interface {
	IsContactAllowed(leadID, address string) bool
}

// Result is the outcome of one fallback run: whether any channel
// delivered, which one, and every attempt recorded along the way.
type Result struct {
	Success     bool
	ChannelUsed outreach.Channel
	Attempts    []attempt.Attempt
}

// Sequencer walks an ordered channel list for one message, delivering
// through the first channel that works. Every evaluated channel leaves
// exactly one attempt in the ledger; channels without a recipient
// address are passed over without a record.
type Sequencer struct {
	engine         SafetyChecker
	policy         ContactPolicy
	ledger         attempt.Ledger
	registry       *gateway.Registry
	gatewayTimeout time.Duration
	now            func() time.Time
}

func NewSequencer(engine SafetyChecker, policy ContactPolicy, ledger attempt.Ledger, registry *gateway.Registry) *Sequencer {
	return &Sequencer{
		engine:         engine,
		policy:         policy,
		ledger:         ledger,
		registry:       registry,
		gatewayTimeout: 30 * time.Second,
		now:            time.Now,
	}
}

func (s *Sequencer) WithGatewayTimeout(d time.Duration) *Sequencer {
	s.gatewayTimeout = d
	return s
}

func (s *Sequencer) WithClock(now func() time.Time) *Sequencer {
	s.now = now
	return s
}

// Run tries the channels in order until one delivers msg. The order is
// validated up front: an unknown or unregistered channel fails the run
// before any attempt is made. Ledger append failures abort the run with
// the partial result, since an unrecorded attempt would break the audit
// trail.
func (s *Sequencer) Run(ctx context.Context, lead prospect.Lead, msg outreach.Message, order []outreach.Channel) (Result, error) {
	if len(order) == 0 {
		return Result{}, outreach.ErrEmptySequence
	}
	for _, ch := range order {
		if _, err := s.registry.Lookup(ch); err != nil {
			return Result{}, fmt.Errorf("sequence: validate order: %w", err)
		}
	}

	var result Result
	for _, ch := range order {
		address := AddressFor(lead, ch)
		if address == "" {
			continue
		}

		if reason := s.admit(ctx, lead, ch, address); reason != "" {
			if err := s.record(ctx, &result, msg, ch, attempt.StatusSkipped, reason); err != nil {
				return result, err
			}
			continue
		}

		gw, err := s.registry.Lookup(ch)
		if err != nil {
			return result, fmt.Errorf("sequence: lookup gateway: %w", err)
		}

		delivery, err := s.deliver(ctx, gw, msg, ch)
		if err != nil || delivery.Status != gateway.StatusSuccess {
			reason := delivery.ErrorMessage
			if err != nil {
				reason = err.Error()
			}
			if reason == "" {
				reason = "delivery failed"
			}
			if err := s.record(ctx, &result, msg, ch, attempt.StatusFailed, reason); err != nil {
				return result, err
			}
			continue
		}

		if err := s.record(ctx, &result, msg, ch, attempt.StatusSent, ""); err != nil {
			return result, err
		}
		result.Success = true
		result.ChannelUsed = ch
		return result, nil
	}

	return result, nil
}

// admit runs the two send gates in order and returns the skip reason, or
// empty when the channel may send. A failing safety check reads as "not
// safe to send".
func (s *Sequencer) admit(ctx context.Context, lead prospect.Lead, ch outreach.Channel, address string) string {
	ok, err := s.engine.CanSendNow(ctx, ch, s.now())
	if err != nil {
		return fmt.Sprintf("safety check failed: %v", err)
	}
	if !ok {
		return "rate limited or outside send window"
	}
	if !s.policy.IsContactAllowed(lead.ID, address) {
		return "blocked by contact policy"
	}
	return ""
}

// deliver invokes the gateway under its own deadline, detached from the
// caller's cancellation so an in-flight call always runs to completion.
func (s *Sequencer) deliver(ctx context.Context, gw gateway.Gateway, msg outreach.Message, ch outreach.Channel) (gateway.Result, error) {
	msg.Channel = ch
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.gatewayTimeout)
	defer cancel()
	return gw.Deliver(callCtx, msg)
}

func (s *Sequencer) record(ctx context.Context, result *Result, msg outreach.Message, ch outreach.Channel, status attempt.Status, reason string) error {
	a := attempt.Attempt{
		LeadID:     msg.LeadID,
		CampaignID: msg.CampaignID,
		Channel:    ch,
		Step:       msg.Step,
		Status:     status,
		Reason:     reason,
		CreatedAt:  s.now(),
	}
	id, err := s.ledger.RecordAttempt(ctx, a)
	if err != nil {
		return fmt.Errorf("sequence: record attempt: %w", err)
	}
	a.ID = id
	result.Attempts = append(result.Attempts, a)
	return nil
}

// AddressFor resolves the recipient address a channel delivers to.
func AddressFor(lead prospect.Lead, ch outreach.Channel) string {
	switch ch {
	case outreach.ChannelEmail:
		return lead.Email
	case outreach.ChannelLinkedIn, outreach.ChannelTwitter:
		return lead.SocialHandle
	case outreach.ChannelContactForm:
		return lead.ContactFormURL
	default:
		return ""
	}
}

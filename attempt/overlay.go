package attempt

import (
	"context"
	"time"

	"outreachflow/outreach"
)

// OverlayLedger records into an in-memory overlay while counting against
// the base ledger plus the overlay. Dry-run cycles wrap the real ledger
// with it: admission decisions see the true quota state and the run's
// own would-be sends, yet nothing reaches storage.
type OverlayLedger struct {
	base    Ledger
	overlay *DiscardLedger
}

func NewOverlayLedger(base Ledger) *OverlayLedger {
	return &OverlayLedger{base: base, overlay: NewDiscardLedger()}
}

func (l *OverlayLedger) RecordAttempt(ctx context.Context, a Attempt) (int64, error) {
	return l.overlay.RecordAttempt(ctx, a)
}

func (l *OverlayLedger) CountSent(ctx context.Context, ch outreach.Channel, since time.Time) (int, error) {
	persisted, err := l.base.CountSent(ctx, ch, since)
	if err != nil {
		return 0, err
	}
	pending, err := l.overlay.CountSent(ctx, ch, since)
	if err != nil {
		return 0, err
	}
	return persisted + pending, nil
}

func (l *OverlayLedger) FirstAttemptAt(ctx context.Context, ch outreach.Channel) (*time.Time, error) {
	persisted, err := l.base.FirstAttemptAt(ctx, ch)
	if err != nil {
		return nil, err
	}
	pending, err := l.overlay.FirstAttemptAt(ctx, ch)
	if err != nil {
		return nil, err
	}
	switch {
	case persisted == nil:
		return pending, nil
	case pending == nil:
		return persisted, nil
	case pending.Before(*persisted):
		return pending, nil
	default:
		return persisted, nil
	}
}

func (l *OverlayLedger) ListForLead(ctx context.Context, leadID string) ([]Attempt, error) {
	persisted, err := l.base.ListForLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	pending, err := l.overlay.ListForLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return append(persisted, pending...), nil
}

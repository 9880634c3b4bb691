package safety

import (
	"context"
	"time"

	"outreachflow/attempt"
	"outreachflow/outreach"
)

// Engine answers the two admission questions every send goes through:
// what is the channel's limit today, and may it send right now. It only
// reads, never writes; ledger errors propagate so callers fail closed.
type Engine struct {
	settings Settings
	ledger   attempt.Ledger
}

func NewEngine(settings Settings, ledger attempt.Ledger) *Engine {
	return &Engine{settings: settings, ledger: ledger}
}

// DailyLimit computes the channel's limit for the day containing now.
// Without warmup it is MaxPerDay. With warmup the limit ramps linearly
// from the date of the first attempt ever recorded on the channel:
// day 1 sends Warmup.Start, each following calendar day adds
// Warmup.Increment, capped at Warmup.Max. Unconfigured channels have a
// zero limit.
func (e *Engine) DailyLimit(ctx context.Context, ch outreach.Channel, now time.Time) (int, error) {
	limit, ok := e.settings.Limit(ch)
	if !ok {
		return 0, nil
	}
	if limit.Warmup == nil {
		return limit.MaxPerDay, nil
	}
	w := limit.Warmup

	first, err := e.ledger.FirstAttemptAt(ctx, ch)
	if err != nil {
		return 0, err
	}
	if first == nil {
		return min(w.Start, w.Max), nil
	}

	daysElapsed := wholeDaysBetween(*first, now) + 1
	if daysElapsed < 1 {
		daysElapsed = 1
	}
	ramped := w.Start + (daysElapsed-1)*w.Increment
	return min(ramped, w.Max), nil
}

// CanSendNow reports whether the channel may deliver one more message at
// the given instant: the send window must be open and the count of SENT
// attempts today must be below today's limit.
func (e *Engine) CanSendNow(ctx context.Context, ch outreach.Channel, now time.Time) (bool, error) {
	open, err := e.settings.SendWindow.Contains(now)
	if err != nil {
		return false, err
	}
	if !open {
		return false, nil
	}

	limit, err := e.DailyLimit(ctx, ch, now)
	if err != nil {
		return false, err
	}
	if limit <= 0 {
		return false, nil
	}

	sent, err := e.ledger.CountSent(ctx, ch, startOfUTCDay(now))
	if err != nil {
		return false, err
	}
	return sent < limit, nil
}

// Remaining returns today's unspent quota for the channel, ignoring the
// send window. Used for report snapshots.
func (e *Engine) Remaining(ctx context.Context, ch outreach.Channel, now time.Time) (int, error) {
	limit, err := e.DailyLimit(ctx, ch, now)
	if err != nil {
		return 0, err
	}
	sent, err := e.ledger.CountSent(ctx, ch, startOfUTCDay(now))
	if err != nil {
		return 0, err
	}
	if sent >= limit {
		return 0, nil
	}
	return limit - sent, nil
}

func startOfUTCDay(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// wholeDaysBetween counts calendar-day boundaries crossed between the two
// instants in UTC, so an attempt at 23:59 followed by a check at 00:01 is
// one day apart.
func wholeDaysBetween(from, to time.Time) int {
	return int(startOfUTCDay(to).Sub(startOfUTCDay(from)) / (24 * time.Hour))
}

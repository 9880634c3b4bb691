package attempt

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"outreachflow/outreach"
)

// Ledger is the append-only attempt store. RecordAttempt and CountSent
// are the two operations the safety checks are built on; FirstAttemptAt
// anchors the warmup ramp and ListForLead serves audit reads.
type Ledger interface {
	RecordAttempt(ctx context.Context, a Attempt) (int64, error)
	CountSent(ctx context.Context, ch outreach.Channel, since time.Time) (int, error)
	FirstAttemptAt(ctx context.Context, ch outreach.Channel) (*time.Time, error)
	ListForLead(ctx context.Context, leadID string) ([]Attempt, error)
}

// PGLedger persists attempts in Postgres.
type PGLedger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

func (l *PGLedger) RecordAttempt(ctx context.Context, a Attempt) (int64, error) {
	const query = `
		INSERT INTO attempts (lead_id, campaign_id, channel, step, status, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var id int64
	err := l.pool.QueryRow(ctx, query,
		a.LeadID, a.CampaignID, a.Channel, a.Step, a.Status, a.Reason,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("attempt: record: %w", err)
	}
	return id, nil
}

func (l *PGLedger) CountSent(ctx context.Context, ch outreach.Channel, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(*) FROM attempts
		WHERE channel = $1 AND status = $2 AND created_at >= $3
	`
	var count int
	if err := l.pool.QueryRow(ctx, query, ch, StatusSent, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("attempt: count sent: %w", err)
	}
	return count, nil
}

// FirstAttemptAt returns the creation time of the earliest attempt on the
// channel regardless of status, or nil when the channel has never been
// tried.
func (l *PGLedger) FirstAttemptAt(ctx context.Context, ch outreach.Channel) (*time.Time, error) {
	const query = `SELECT MIN(created_at) FROM attempts WHERE channel = $1`
	var first *time.Time
	if err := l.pool.QueryRow(ctx, query, ch).Scan(&first); err != nil {
		return nil, fmt.Errorf("attempt: first attempt: %w", err)
	}
	return first, nil
}

func (l *PGLedger) ListForLead(ctx context.Context, leadID string) ([]Attempt, error) {
	const query = `
		SELECT id, lead_id, campaign_id, channel, step, status, reason, created_at
		FROM attempts
		WHERE lead_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := l.pool.Query(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("attempt: list for lead: %w", err)
	}
	defer rows.Close()

	attempts := make([]Attempt, 0, 8)
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.LeadID, &a.CampaignID, &a.Channel, &a.Step, &a.Status, &a.Reason, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("attempt: scan: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("attempt: iterate: %w", err)
	}
	return attempts, nil
}

// DiscardLedger keeps attempts in memory and forgets them when the run
// ends. It stands alone in tests and backs the overlay dry-run cycles
// count against.
type DiscardLedger struct {
	mu       sync.Mutex
	nextID   int64
	attempts []Attempt
	now      func() time.Time
}

func NewDiscardLedger() *DiscardLedger {
	return &DiscardLedger{now: time.Now}
}

func (l *DiscardLedger) WithClock(now func() time.Time) *DiscardLedger {
	l.now = now
	return l
}

func (l *DiscardLedger) RecordAttempt(ctx context.Context, a Attempt) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	a.ID = l.nextID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = l.now()
	}
	l.attempts = append(l.attempts, a)
	return a.ID, nil
}

func (l *DiscardLedger) CountSent(ctx context.Context, ch outreach.Channel, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, a := range l.attempts {
		if a.Channel == ch && a.Status == StatusSent && !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (l *DiscardLedger) FirstAttemptAt(ctx context.Context, ch outreach.Channel) (*time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var first *time.Time
	for _, a := range l.attempts {
		if a.Channel != ch {
			continue
		}
		if first == nil || a.CreatedAt.Before(*first) {
			at := a.CreatedAt
			first = &at
		}
	}
	return first, nil
}

func (l *DiscardLedger) ListForLead(ctx context.Context, leadID string) ([]Attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Attempt, 0, 4)
	for _, a := range l.attempts {
		if a.LeadID == leadID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

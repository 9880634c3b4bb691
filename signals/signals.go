package signals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"outreachflow/outreach"
)

// ErrInvalidSignal signals a reply event with nothing to match on.
var ErrInvalidSignal = errors.New("signals: signal needs an address or a lead id")

// Signal is one inbound reply event, usually posted by a mailbox or
// social bridge webhook. CampaignID and LeadID are optional hints; the
// reply-detection phase matches the rest by address.
type Signal struct {
	ID            int64
	CampaignID    string
	LeadID        string
	Channel       outreach.Channel
	Address       string
	Subject       string
	Body          string
	ReceivedAt    time.Time
	Processed     bool
	MatchedLeadID string
}

// Store is the signal inbox: webhooks insert, the reply-detection phase
// drains.
type Store interface {
	Insert(ctx context.Context, s Signal) (Signal, error)
	ListUnprocessed(ctx context.Context, limit int) ([]Signal, error)
	MarkProcessed(ctx context.Context, id int64, matchedLeadID string) error
}

// PGStore persists signals in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const signalColumns = `id, campaign_id, lead_id, channel, address, subject, body, received_at, processed, matched_lead_id`

func (s *PGStore) Insert(ctx context.Context, sig Signal) (Signal, error) {
	if sig.Address == "" && sig.LeadID == "" {
		return Signal{}, ErrInvalidSignal
	}
	if sig.Channel != "" && !sig.Channel.Valid() {
		return Signal{}, fmt.Errorf("%w: %q", outreach.ErrUnknownChannel, string(sig.Channel))
	}
	const query = `
		INSERT INTO reply_signals (campaign_id, lead_id, channel, address, subject, body)
		VALUES (NULLIF($1, ''), NULLIF($2, ''), $3, $4, $5, $6)
		RETURNING ` + signalColumns
	created, err := s.scan(s.pool.QueryRow(ctx, query,
		sig.CampaignID, sig.LeadID, sig.Channel, strings.ToLower(strings.TrimSpace(sig.Address)), sig.Subject, sig.Body,
	))
	if err != nil {
		return Signal{}, fmt.Errorf("signals: insert: %w", err)
	}
	return created, nil
}

func (s *PGStore) ListUnprocessed(ctx context.Context, limit int) ([]Signal, error) {
	const query = `
		SELECT ` + signalColumns + `
		FROM reply_signals
		WHERE NOT processed
		ORDER BY received_at ASC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("signals: list unprocessed: %w", err)
	}
	defer rows.Close()

	out := make([]Signal, 0, 16)
	for rows.Next() {
		sig, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("signals: scan: %w", err)
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("signals: iterate: %w", err)
	}
	return out, nil
}

func (s *PGStore) MarkProcessed(ctx context.Context, id int64, matchedLeadID string) error {
	const query = `
		UPDATE reply_signals
		SET processed = true, matched_lead_id = NULLIF($2, '')
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, id, matchedLeadID); err != nil {
		return fmt.Errorf("signals: mark processed: %w", err)
	}
	return nil
}

type row interface {
	Scan(dest ...any) error
}

func (s *PGStore) scan(r row) (Signal, error) {
	var (
		sig        Signal
		campaignID *string
		leadID     *string
		matchedID  *string
	)
	err := r.Scan(&sig.ID, &campaignID, &leadID, &sig.Channel, &sig.Address,
		&sig.Subject, &sig.Body, &sig.ReceivedAt, &sig.Processed, &matchedID)
	if err != nil {
		return Signal{}, err
	}
	if campaignID != nil {
		sig.CampaignID = *campaignID
	}
	if leadID != nil {
		sig.LeadID = *leadID
	}
	if matchedID != nil {
		sig.MatchedLeadID = *matchedID
	}
	return sig, nil
}

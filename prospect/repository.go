package prospect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"outreachflow/outreach"
)

var (
	// ErrCampaignNotFound signals an unknown campaign id or name.
	ErrCampaignNotFound = errors.New("prospect: campaign not found")
	// ErrLeadNotFound signals an unknown lead id.
	ErrLeadNotFound = errors.New("prospect: lead not found")
	// ErrDuplicateLead signals a lead already imported into the campaign.
	ErrDuplicateLead = errors.New("prospect: lead already exists in campaign")
	// ErrDuplicateCampaign signals a campaign name collision.
	ErrDuplicateCampaign = errors.New("prospect: campaign name already exists")
	// ErrInvalidTransition signals an illegal lead status change.
	ErrInvalidTransition = errors.New("prospect: invalid lead status transition")
)

// CampaignRepository handles campaign persistence.
type CampaignRepository interface {
	Create(ctx context.Context, c Campaign) (Campaign, error)
	GetByID(ctx context.Context, id string) (Campaign, error)
	GetByName(ctx context.Context, name string) (Campaign, error)
	ListActive(ctx context.Context) ([]Campaign, error)
}

// LeadRepository handles lead persistence and the status-filtered reads
// the cycle phases run on.
type LeadRepository interface {
	Create(ctx context.Context, l Lead) (Lead, error)
	GetByID(ctx context.Context, id string) (Lead, error)
	ListEligible(ctx context.Context, campaignID string, minScore float64, limit int) ([]Lead, error)
	ListFollowupDue(ctx context.Context, campaignID string, before time.Time, maxStep, limit int) ([]Lead, error)
	ListByStatus(ctx context.Context, campaignID string, status LeadStatus, limit int) ([]Lead, error)
	FindByAddress(ctx context.Context, campaignID string, ch outreach.Channel, address string) (Lead, error)
	MarkContacted(ctx context.Context, leadID string, step int, at time.Time) (Lead, error)
	UpdateStatus(ctx context.Context, leadID string, status LeadStatus) (Lead, error)
}

const leadColumns = `id, campaign_id, name, company, role, email, social_handle, contact_form_url,
	status, score, tags, sequence_step, last_outreach_at, created_at, updated_at`

// PGCampaignRepository implements CampaignRepository over pgxpool.
type PGCampaignRepository struct {
	pool *pgxpool.Pool
}

func NewCampaignRepository(pool *pgxpool.Pool) *PGCampaignRepository {
	return &PGCampaignRepository{pool: pool}
}

func (r *PGCampaignRepository) Create(ctx context.Context, c Campaign) (Campaign, error) {
	const query = `
		INSERT INTO campaigns (id, name, niche, active)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4)
		RETURNING id, name, niche, active, created_at, updated_at
	`
	created, err := scanCampaign(r.pool.QueryRow(ctx, query, c.ID, c.Name, c.Niche, c.Active))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Campaign{}, ErrDuplicateCampaign
		}
		return Campaign{}, fmt.Errorf("prospect: create campaign: %w", err)
	}
	return created, nil
}

func (r *PGCampaignRepository) GetByID(ctx context.Context, id string) (Campaign, error) {
	const query = `SELECT id, name, niche, active, created_at, updated_at FROM campaigns WHERE id = $1`
	c, err := scanCampaign(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, ErrCampaignNotFound
		}
		return Campaign{}, fmt.Errorf("prospect: get campaign: %w", err)
	}
	return c, nil
}

func (r *PGCampaignRepository) GetByName(ctx context.Context, name string) (Campaign, error) {
	const query = `SELECT id, name, niche, active, created_at, updated_at FROM campaigns WHERE name = $1`
	c, err := scanCampaign(r.pool.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, ErrCampaignNotFound
		}
		return Campaign{}, fmt.Errorf("prospect: get campaign by name: %w", err)
	}
	return c, nil
}

func (r *PGCampaignRepository) ListActive(ctx context.Context) ([]Campaign, error) {
	const query = `
		SELECT id, name, niche, active, created_at, updated_at
		FROM campaigns
		WHERE active
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prospect: list active campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := make([]Campaign, 0, 8)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("prospect: scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("prospect: iterate campaigns: %w", err)
	}
	return campaigns, nil
}

// PGLeadRepository implements LeadRepository over pgxpool.
type PGLeadRepository struct {
	pool *pgxpool.Pool
}

func NewLeadRepository(pool *pgxpool.Pool) *PGLeadRepository {
	return &PGLeadRepository{pool: pool}
}

func (r *PGLeadRepository) Create(ctx context.Context, l Lead) (Lead, error) {
	if l.Status == "" {
		l.Status = StatusNew
	}
	if l.Tags == nil {
		l.Tags = []string{}
	}
	const query = `
		INSERT INTO leads (id, campaign_id, name, company, role, email, social_handle,
			contact_form_url, status, score, tags, sequence_step)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + leadColumns
	created, err := scanLead(r.pool.QueryRow(ctx, query,
		l.ID,
		l.CampaignID,
		l.Name,
		l.Company,
		l.Role,
		l.Email,
		l.SocialHandle,
		l.ContactFormURL,
		l.Status,
		l.Score,
		l.Tags,
		l.SequenceStep,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Lead{}, ErrDuplicateLead
		}
		return Lead{}, fmt.Errorf("prospect: create lead: %w", err)
	}
	return created, nil
}

func (r *PGLeadRepository) GetByID(ctx context.Context, id string) (Lead, error) {
	const query = `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	l, err := scanLead(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrLeadNotFound
		}
		return Lead{}, fmt.Errorf("prospect: get lead: %w", err)
	}
	return l, nil
}

// ListEligible returns NEW leads at or above the score threshold, best
// scores first so the daily cap spends on the strongest prospects.
func (r *PGLeadRepository) ListEligible(ctx context.Context, campaignID string, minScore float64, limit int) ([]Lead, error) {
	const query = `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE campaign_id = $1 AND status = $2 AND score >= $3
		ORDER BY score DESC, created_at ASC
		LIMIT $4
	`
	return r.queryLeads(ctx, "list eligible", query, campaignID, StatusNew, minScore, limit)
}

// ListFollowupDue returns CONTACTED leads whose last touch is older than
// the cutoff and who still have sequence steps left.
func (r *PGLeadRepository) ListFollowupDue(ctx context.Context, campaignID string, before time.Time, maxStep, limit int) ([]Lead, error) {
	const query = `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE campaign_id = $1 AND status = $2
		  AND last_outreach_at IS NOT NULL AND last_outreach_at < $3
		  AND sequence_step < $4
		ORDER BY last_outreach_at ASC
		LIMIT $5
	`
	return r.queryLeads(ctx, "list followup due", query, campaignID, StatusContacted, before, maxStep, limit)
}

func (r *PGLeadRepository) ListByStatus(ctx context.Context, campaignID string, status LeadStatus, limit int) ([]Lead, error) {
	const query = `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE campaign_id = $1 AND status = $2
		ORDER BY updated_at ASC
		LIMIT $3
	`
	return r.queryLeads(ctx, "list by status", query, campaignID, status, limit)
}

// FindByAddress matches a reply address back to a lead. Email addresses
// match the email column, social handles match social_handle; both
// case-insensitively.
func (r *PGLeadRepository) FindByAddress(ctx context.Context, campaignID string, ch outreach.Channel, address string) (Lead, error) {
	column := "email"
	switch ch {
	case outreach.ChannelLinkedIn, outreach.ChannelTwitter:
		column = "social_handle"
	}
	query := `SELECT ` + leadColumns + ` FROM leads WHERE campaign_id = $1 AND lower(` + column + `) = lower($2)`
	l, err := scanLead(r.pool.QueryRow(ctx, query, campaignID, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrLeadNotFound
		}
		return Lead{}, fmt.Errorf("prospect: find lead by address: %w", err)
	}
	return l, nil
}

// MarkContacted records a successful touch: bumps the sequence step,
// stamps last_outreach_at, and moves NEW leads to CONTACTED. Follow-up
// touches keep the CONTACTED status.
func (r *PGLeadRepository) MarkContacted(ctx context.Context, leadID string, step int, at time.Time) (Lead, error) {
	const query = `
		UPDATE leads
		SET status = $2,
		    sequence_step = GREATEST(sequence_step, $3),
		    last_outreach_at = $4,
		    updated_at = now()
		WHERE id = $1 AND status IN ($5, $2)
		RETURNING ` + leadColumns
	l, err := scanLead(r.pool.QueryRow(ctx, query, leadID, StatusContacted, step, at, StatusNew))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrInvalidTransition
		}
		return Lead{}, fmt.Errorf("prospect: mark contacted: %w", err)
	}
	return l, nil
}

func (r *PGLeadRepository) UpdateStatus(ctx context.Context, leadID string, status LeadStatus) (Lead, error) {
	current, err := r.GetByID(ctx, leadID)
	if err != nil {
		return Lead{}, err
	}
	if !CanTransition(current.Status, status) {
		return Lead{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}
	const query = `
		UPDATE leads
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + leadColumns
	l, err := scanLead(r.pool.QueryRow(ctx, query, leadID, status))
	if err != nil {
		return Lead{}, fmt.Errorf("prospect: update lead status: %w", err)
	}
	return l, nil
}

func (r *PGLeadRepository) queryLeads(ctx context.Context, op, query string, args ...any) ([]Lead, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("prospect: %s: %w", op, err)
	}
	defer rows.Close()

	leads := make([]Lead, 0, 16)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("prospect: scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("prospect: iterate leads: %w", err)
	}
	return leads, nil
}

func scanCampaign(row pgx.Row) (Campaign, error) {
	var c Campaign
	return c, row.Scan(&c.ID, &c.Name, &c.Niche, &c.Active, &c.CreatedAt, &c.UpdatedAt)
}

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	return l, row.Scan(
		&l.ID,
		&l.CampaignID,
		&l.Name,
		&l.Company,
		&l.Role,
		&l.Email,
		&l.SocialHandle,
		&l.ContactFormURL,
		&l.Status,
		&l.Score,
		&l.Tags,
		&l.SequenceStep,
		&l.LastOutreachAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
}

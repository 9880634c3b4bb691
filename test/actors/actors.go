package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Importer races duplicate prospect inserts against the per-campaign email
// uniqueness. The address pool is small so collisions are constant.
func Importer(ctx context.Context, pool *pgxpool.Pool, campaignID string, stop <-chan struct{}) error {
	formats := []string{"prospect%02d@example.com", "Prospect%02d@example.com"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		email := fmt.Sprintf(formats[rand.Intn(len(formats))], rand.Intn(40))
		_, err := pool.Exec(ctx, `INSERT INTO leads (campaign_id, name, email, score)
                                   VALUES ($1,$2,$3,random())`, campaignID, "Stress Prospect", email)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique constraint
				// expected under contention
			} else if ctx.Err() != nil {
				return ctx.Err()
			}
			// anything else is a connection killed by the chaos goroutine
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Sender delivers the first outreach step to one eligible lead per pass.
// The advisory lock serializes count-then-append admission per channel, so
// the daily cap stays exact no matter how many senders run.
func Sender(ctx context.Context, pool *pgxpool.Pool, campaignID, channel string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		sendOnce(ctx, pool, campaignID, channel)
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

const countSentToday = `SELECT COUNT(*) FROM attempts
    WHERE channel = $1 AND status = 'sent'
      AND created_at >= date_trunc('day', now() AT TIME ZONE 'utc') AT TIME ZONE 'utc'`

func sendOnce(ctx context.Context, pool *pgxpool.Pool, campaignID, channel string) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('outreach:' || $1))`, channel); err != nil {
		return
	}

	var capacity, sent int
	if err := tx.QueryRow(ctx, `SELECT COALESCE((payload->'channels'->$1->>'max_per_day')::int, 0)
                                 FROM safety_settings WHERE id = 1`, channel).Scan(&capacity); err != nil {
		return
	}
	if err := tx.QueryRow(ctx, countSentToday, channel).Scan(&sent); err != nil {
		return
	}
	if sent >= capacity {
		return
	}

	// Lock the lead before touching it so an opt-out cannot land between
	// the pick and the send. OptOutWriter takes the same lock first.
	var leadID string
	var step int
	err = tx.QueryRow(ctx, `
        SELECT l.id::text, l.sequence_step FROM leads l
        WHERE l.campaign_id = $1 AND l.status = 'new'
          AND NOT EXISTS (
              SELECT 1 FROM safety_settings s
              WHERE s.id = 1 AND s.payload->'dnc_lead_ids' ? l.id::text)
        ORDER BY l.score DESC
        LIMIT 1
        FOR UPDATE OF l SKIP LOCKED`, campaignID).Scan(&leadID, &step)
	if err != nil {
		return
	}

	if _, err := tx.Exec(ctx, `INSERT INTO attempts (lead_id, campaign_id, channel, step, status)
                                VALUES ($1,$2,$3,$4,'sent')`, leadID, campaignID, channel, step+1); err != nil {
		return
	}
	if _, err := tx.Exec(ctx, `UPDATE leads SET status='contacted', sequence_step=$2,
                                last_outreach_at=now(), updated_at=now() WHERE id=$1`, leadID, step+1); err != nil {
		return
	}
	_ = tx.Commit(ctx)
}

// FollowupSender advances contacted leads through later sequence steps,
// competing with Replier for the same rows and drawing on the same daily cap.
func FollowupSender(ctx context.Context, pool *pgxpool.Pool, campaignID, channel string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		followupOnce(ctx, pool, campaignID, channel)
		time.Sleep(time.Duration(25+rand.Intn(50)) * time.Millisecond)
	}
}

func followupOnce(ctx context.Context, pool *pgxpool.Pool, campaignID, channel string) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('outreach:' || $1))`, channel); err != nil {
		return
	}

	var capacity, sent int
	if err := tx.QueryRow(ctx, `SELECT COALESCE((payload->'channels'->$1->>'max_per_day')::int, 0)
                                 FROM safety_settings WHERE id = 1`, channel).Scan(&capacity); err != nil {
		return
	}
	if err := tx.QueryRow(ctx, countSentToday, channel).Scan(&sent); err != nil {
		return
	}
	if sent >= capacity {
		return
	}

	var leadID string
	var step int
	err = tx.QueryRow(ctx, `
        SELECT l.id::text, l.sequence_step FROM leads l
        WHERE l.campaign_id = $1 AND l.status = 'contacted' AND l.sequence_step < 3
          AND NOT EXISTS (
              SELECT 1 FROM safety_settings s
              WHERE s.id = 1 AND s.payload->'dnc_lead_ids' ? l.id::text)
        ORDER BY l.last_outreach_at ASC NULLS FIRST
        LIMIT 1
        FOR UPDATE OF l SKIP LOCKED`, campaignID).Scan(&leadID, &step)
	if err != nil {
		return
	}

	if _, err := tx.Exec(ctx, `INSERT INTO attempts (lead_id, campaign_id, channel, step, status)
                                VALUES ($1,$2,$3,$4,'sent')`, leadID, campaignID, channel, step+1); err != nil {
		return
	}
	if _, err := tx.Exec(ctx, `UPDATE leads SET sequence_step=$2, last_outreach_at=now(),
                                updated_at=now() WHERE id=$1`, leadID, step+1); err != nil {
		return
	}
	_ = tx.Commit(ctx)
}

// Replier records an inbound reply for a contacted lead and flips it to
// replied in the same transaction, the way the reply-detection phase does.
func Replier(ctx context.Context, pool *pgxpool.Pool, campaignID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		replyOnce(ctx, pool, campaignID)
		time.Sleep(time.Duration(30+rand.Intn(60)) * time.Millisecond)
	}
}

func replyOnce(ctx context.Context, pool *pgxpool.Pool, campaignID string) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return
	}
	defer tx.Rollback(ctx)

	var leadID, email string
	err = tx.QueryRow(ctx, `SELECT id::text, email FROM leads
                             WHERE campaign_id = $1 AND status = 'contacted'
                             LIMIT 1 FOR UPDATE SKIP LOCKED`, campaignID).Scan(&leadID, &email)
	if err != nil {
		return
	}

	if _, err := tx.Exec(ctx, `INSERT INTO reply_signals (campaign_id, lead_id, channel, address, body, processed, matched_lead_id)
                                VALUES ($1,$2,'email',$3,'sounds interesting, tell me more',true,$2)`, campaignID, leadID, email); err != nil {
		return
	}
	if _, err := tx.Exec(ctx, `UPDATE leads SET status='replied', updated_at=now() WHERE id=$1`, leadID); err != nil {
		return
	}
	_ = tx.Commit(ctx)
}

// Escalator hands replied leads off and marks them qualified.
func Escalator(ctx context.Context, pool *pgxpool.Pool, campaignID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		escalateOnce(ctx, pool, campaignID)
		time.Sleep(time.Duration(40+rand.Intn(80)) * time.Millisecond)
	}
}

func escalateOnce(ctx context.Context, pool *pgxpool.Pool, campaignID string) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return
	}
	defer tx.Rollback(ctx)

	var leadID string
	err = tx.QueryRow(ctx, `SELECT id::text FROM leads
                             WHERE campaign_id = $1 AND status = 'replied'
                             LIMIT 1 FOR UPDATE SKIP LOCKED`, campaignID).Scan(&leadID)
	if err != nil {
		return
	}
	if _, err := tx.Exec(ctx, `UPDATE leads SET status='qualified', updated_at=now() WHERE id=$1`, leadID); err != nil {
		return
	}
	_ = tx.Commit(ctx)
}

// OptOutWriter opts a fresh lead out: it locks the lead row first, then the
// settings row, appends the lead to the do-not-contact list and marks it
// lost in one transaction. Taking the lead lock before the settings lock is
// what makes the no-send guarantee hold against Sender.
func OptOutWriter(ctx context.Context, pool *pgxpool.Pool, campaignID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		optOutOnce(ctx, pool, campaignID)
		time.Sleep(time.Duration(200+rand.Intn(100)) * time.Millisecond)
	}
}

func optOutOnce(ctx context.Context, pool *pgxpool.Pool, campaignID string) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return
	}
	defer tx.Rollback(ctx)

	// Highest score first so it fights Sender for the same row.
	var leadID string
	err = tx.QueryRow(ctx, `SELECT id::text FROM leads
                             WHERE campaign_id = $1 AND status = 'new'
                             ORDER BY score DESC
                             LIMIT 1 FOR UPDATE SKIP LOCKED`, campaignID).Scan(&leadID)
	if err != nil {
		return
	}

	if _, err := tx.Exec(ctx, `SELECT 1 FROM safety_settings WHERE id = 1 FOR UPDATE`); err != nil {
		return
	}
	if _, err := tx.Exec(ctx, `UPDATE safety_settings
                                SET payload = jsonb_set(payload, '{dnc_lead_ids}',
                                    COALESCE(payload->'dnc_lead_ids', '[]'::jsonb) || to_jsonb($1::text)),
                                    updated_at = now()
                                WHERE id = 1`, leadID); err != nil {
		return
	}
	if _, err := tx.Exec(ctx, `UPDATE leads SET status='lost', updated_at=now() WHERE id=$1`, leadID); err != nil {
		return
	}
	_ = tx.Commit(ctx)
}

package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_channel_daily_cap",
			SQL: `SELECT a.channel, date_trunc('day', a.created_at AT TIME ZONE 'utc') AS day, COUNT(*)
                  FROM attempts a
                  WHERE a.status = 'sent'
                  GROUP BY 1, 2
                  HAVING COUNT(*) > (
                      SELECT COALESCE((s.payload->'channels'->a.channel->>'max_per_day')::int, 0)
                      FROM safety_settings s WHERE s.id = 1)`,
		},
		{
			Name: "O2_dnc_never_sent",
			SQL: `SELECT a.lead_id, a.channel, a.created_at FROM attempts a
                  WHERE a.status = 'sent'
                    AND EXISTS (
                        SELECT 1 FROM safety_settings s
                        WHERE s.id = 1 AND s.payload->'dnc_lead_ids' ? a.lead_id::text)`,
		},
		{
			Name: "O3_contacted_has_sent_attempt",
			SQL: `SELECT l.id, l.status FROM leads l
                  WHERE l.status IN ('contacted','replied','qualified')
                    AND NOT EXISTS (
                        SELECT 1 FROM attempts a
                        WHERE a.lead_id = l.id AND a.status = 'sent')`,
		},
		{
			Name: "O4_replied_has_signal",
			SQL: `SELECT l.id, l.status FROM leads l
                  WHERE l.status IN ('replied','qualified')
                    AND NOT EXISTS (
                        SELECT 1 FROM reply_signals r
                        WHERE r.matched_lead_id = l.id::text AND r.processed)`,
		},
		{
			Name: "O5_email_unique_per_campaign",
			SQL: `SELECT campaign_id, LOWER(email), COUNT(*) FROM leads
                  WHERE email <> ''
                  GROUP BY 1, 2 HAVING COUNT(*) > 1`,
		},
		{
			Name: "O6_step_bounds",
			SQL: `SELECT id::text, 'attempt_step' AS what FROM attempts WHERE step < 1 OR step > 3
                  UNION ALL
                  SELECT id::text, 'lead_step' AS what FROM leads WHERE sequence_step < 0 OR sequence_step > 3`,
		},
		{
			Name: "O7_ledger_append_only_guard",
			SQL: `SELECT 'missing_no_update_trigger' AS detail
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname='no_update_attempts')
                  UNION ALL
                  SELECT 'missing_no_delete_trigger' AS detail
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname='no_delete_attempts')`,
		},
		{
			Name: "O8_settings_singleton",
			SQL:  `SELECT COUNT(*) FROM safety_settings HAVING COUNT(*) <> 1`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}

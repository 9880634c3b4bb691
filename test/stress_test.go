package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"outreachflow/test/actors"
	"outreachflow/test/chaos"
	"outreachflow/test/infra"
	"outreachflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestOutreachConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv(infra.EnvStressDSN) != "":
		dsn = os.Getenv(infra.EnvStressDSN)
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	// migrations
	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	// seed one campaign, the settings singleton and a batch of fresh leads
	seedData := mustSeed(t, ctx, pool)

	// run actors
	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// senders and importers battling over the same leads and caps
	channels := []string{"email", "linkedin"}
	for i := 0; i < *flConcurrency; i++ {
		ch := channels[i%len(channels)]
		g.Go(func() error { return actors.Sender(ctx2, pool, seedData.campaignID, ch, stop) })
		g.Go(func() error { return actors.Importer(ctx2, pool, seedData.campaignID, stop) })
	}

	// followups drawing on the email cap
	g.Go(func() error { return actors.FollowupSender(ctx2, pool, seedData.campaignID, "email", stop) })
	// inbound replies
	g.Go(func() error { return actors.Replier(ctx2, pool, seedData.campaignID, stop) })
	// handoff of replied leads
	g.Go(func() error { return actors.Escalator(ctx2, pool, seedData.campaignID, stop) })
	// opt-outs racing the senders
	g.Go(func() error { return actors.OptOutWriter(ctx2, pool, seedData.campaignID, stop) })
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	// schedule oracle checks until duration reached
	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	campaignID string
}

const seedSettings = `{
  "channels": {
    "email":        {"max_per_day": 25},
    "linkedin":     {"max_per_day": 10},
    "contact_form": {"max_per_day": 5}
  },
  "send_window":     {"start": "", "end": ""},
  "blocked_domains": [],
  "dnc_emails":      [],
  "dnc_lead_ids":    []
}`

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	var s seedIDs
	// campaign
	if err := pool.QueryRow(ctx, `INSERT INTO campaigns (name, niche) VALUES ($1,'web design') RETURNING id::text`,
		fmt.Sprintf("stress-%d", rand.Int63())).Scan(&s.campaignID); err != nil {
		t.Fatalf("seed campaign: %v", err)
	}
	// settings singleton with caps low enough to hit during the run
	if _, err := pool.Exec(ctx, `INSERT INTO safety_settings (id, payload) VALUES (1, $1::jsonb)
                                  ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
		seedSettings); err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	// fresh leads for the senders to fight over
	for i := 0; i < 40; i++ {
		if _, err := pool.Exec(ctx, `INSERT INTO leads (campaign_id, name, email, score)
                                      VALUES ($1,$2,$3,$4)`,
			s.campaignID, fmt.Sprintf("Seed Lead %02d", i),
			fmt.Sprintf("seed%02d.%d@example.com", i, rand.Int63()), float64(i)*0.02); err != nil {
			t.Fatalf("seed lead %d: %v", i, err)
		}
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"attempts", `SELECT id, lead_id, channel, step, status, created_at FROM attempts ORDER BY id DESC LIMIT 50`},
		{"leads", `SELECT status, COUNT(*) FROM leads GROUP BY status ORDER BY status`},
		{"reply_signals", `SELECT id, lead_id, matched_lead_id, processed, received_at FROM reply_signals ORDER BY id DESC LIMIT 50`},
		{"safety_settings", `SELECT id, payload, updated_at FROM safety_settings`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			// compact print
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}

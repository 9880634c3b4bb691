package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"outreachflow/attempt"
	"outreachflow/config"
	"outreachflow/cycle"
	"outreachflow/db"
	"outreachflow/escalate"
	"outreachflow/gateway"
	"outreachflow/httpapi"
	"outreachflow/outreach"
	"outreachflow/prospect"
	"outreachflow/safety"
	"outreachflow/signals"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	deps, cleanup, err := buildDeps(pool, cfg)
	if err != nil {
		log.Fatalf("build dependencies: %v", err)
	}
	defer cleanup()

	var issuer *safety.OptOutIssuer
	if cfg.OptOutSecret != "" {
		issuer = safety.NewOptOutIssuer(cfg.OptOutSecret)
	}
	api := httpapi.NewServer(deps.Settings, deps.Signals, issuer, cfg.WebhookKeyHash)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: api}

	opts := cycle.Options{GatewayTimeout: cfg.GatewayTimeout}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return runCycles(gctx, deps, opts, cfg.CycleInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("outreachd: %v", err)
	}
}

// runCycles runs one round for every active campaign immediately, then
// again on each tick until the context ends.
func runCycles(ctx context.Context, deps cycle.Deps, opts cycle.Options, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		runAllCampaigns(ctx, deps, opts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runAllCampaigns fans active campaigns out on a bounded group. Cycle
// failures are logged, never fatal; the daemon keeps its schedule.
func runAllCampaigns(ctx context.Context, deps cycle.Deps, opts cycle.Options) {
	campaigns, err := deps.Campaigns.ListActive(ctx)
	if err != nil {
		log.Printf("list active campaigns: %v", err)
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(4)
	for _, c := range campaigns {
		g.Go(func() error {
			report, err := cycle.NewOrchestrator(deps, opts).Run(ctx, c.Name)
			if err != nil {
				log.Printf("cycle %s: %v", c.Name, err)
				return nil
			}
			log.Printf("cycle %s: created=%d sent=%d followups=%d hot=%d errors=%d",
				c.Name, report.LeadsCreated, report.OutreachSent, report.FollowupsSent,
				report.HotLeadsDetected, len(report.Errors))
			for _, line := range report.Errors {
				log.Printf("cycle %s: %s", c.Name, line)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// buildDeps assembles the cycle collaborators from configuration. The
// handoff publisher is optional; without AMQP_URL escalation no-ops.
func buildDeps(pool *pgxpool.Pool, cfg config.Config) (cycle.Deps, func(), error) {
	registry := gateway.NewRegistry()
	for ch, ep := range cfg.GatewayEndpoints() {
		if err := registry.Register(ch, gateway.NewHTTPGateway(ep.URL, ep.APIKey, nil)); err != nil {
			return cycle.Deps{}, nil, err
		}
	}

	generator, err := outreach.NewTemplateGenerator(outreach.DefaultStepTemplates())
	if err != nil {
		return cycle.Deps{}, nil, err
	}

	deps := cycle.Deps{
		Campaigns: prospect.NewCampaignRepository(pool),
		Leads:     prospect.NewLeadRepository(pool),
		Ledger:    attempt.NewLedger(pool),
		Settings:  safety.NewStore(pool),
		Generator: generator,
		Gateways:  registry,
		Signals:   signals.NewStore(pool),
	}

	cleanup := func() {}
	if cfg.AMQPURL != "" {
		publisher, err := escalate.Dial(cfg.AMQPURL, cfg.HandoffQueue)
		if err != nil {
			return cycle.Deps{}, nil, fmt.Errorf("connect handoff queue: %w", err)
		}
		deps.Publisher = publisher
		cleanup = func() { _ = publisher.Close() }
	}
	return deps, cleanup, nil
}

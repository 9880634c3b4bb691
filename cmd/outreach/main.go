package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"outreachflow/attempt"
	"outreachflow/config"
	"outreachflow/cycle"
	"outreachflow/db"
	"outreachflow/escalate"
	"outreachflow/gateway"
	"outreachflow/outreach"
	"outreachflow/prospect"
	"outreachflow/safety"
	"outreachflow/signals"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "import-csv":
		err = runImportCSV(ctx, os.Args[2:])
	case "run-once":
		err = runOnce(ctx, os.Args[2:])
	case "hash-key":
		err = runHashKey(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("outreach %s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: outreach <command> [flags]

commands:
  import-csv   import leads from a CSV file into a campaign
  run-once     run one outreach cycle for a campaign
  hash-key     print the bcrypt hash of a webhook key`)
}

func runImportCSV(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import-csv", flag.ExitOnError)
	path := fs.String("path", "", "CSV file with one lead per row")
	campaign := fs.String("campaign-name", "", "campaign to import into")
	niche := fs.String("niche", "", "niche recorded when the campaign is first created")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" || *campaign == "" {
		return fmt.Errorf("--path and --campaign-name are required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	importer := prospect.NewImporter(prospect.NewCampaignRepository(pool), prospect.NewLeadRepository(pool))
	result, err := importer.Import(ctx, prospect.ImportParams{
		Path:         *path,
		CampaignName: *campaign,
		Niche:        *niche,
	})
	if err != nil {
		return err
	}

	for _, line := range result.Errors {
		fmt.Fprintln(os.Stderr, line)
	}
	log.Printf("imported %d of %d leads into %q (%d skipped)", result.Imported, result.Total, *campaign, result.Skipped)
	return nil
}

func runOnce(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run-once", flag.ExitOnError)
	campaign := fs.String("campaign-name", "", "campaign to run")
	channel := fs.String("channel", "", "restrict outreach to a single channel")
	batch := fs.Int("batch-size", 0, "max leads contacted this run (0 = default)")
	steps := fs.Int("steps", 0, "max sequence steps per lead (0 = default)")
	minScore := fs.Float64("min-score", 0, "minimum lead score to contact")
	dryRun := fs.Bool("dry-run", false, "evaluate every decision without sending or persisting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *campaign == "" {
		return fmt.Errorf("--campaign-name is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	opts := cycle.Options{
		MaxOutreachPerDay: *batch,
		MaxSteps:          *steps,
		MinScore:          *minScore,
		GatewayTimeout:    cfg.GatewayTimeout,
		DryRun:            *dryRun,
	}
	if *channel != "" {
		opts.ChannelOrder = []outreach.Channel{outreach.Channel(*channel)}
	}

	deps, cleanup, err := buildDeps(pool, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := cycle.NewOrchestrator(deps, opts).Run(ctx, *campaign)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	for _, line := range report.Errors {
		fmt.Fprintln(os.Stderr, "error:", line)
	}
	return nil
}

func runHashKey(args []string) error {
	fs := flag.NewFlagSet("hash-key", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	key := fs.Arg(0)
	if key == "" {
		return fmt.Errorf("usage: outreach hash-key <key>")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	fmt.Println(string(hash))
	return nil
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

package cycle

import (
	"context"
	"fmt"
	"time"

	"outreachflow/attempt"
	"outreachflow/escalate"
	"outreachflow/gateway"
	"outreachflow/outreach"
	"outreachflow/prospect"
	"outreachflow/safety"
	"outreachflow/sequence"
	"outreachflow/signals"
)

// LeadSource feeds the intake phase with new leads. Deployments without
// one simply skip intake.
type LeadSource interface {
	FetchLeads(ctx context.Context, campaign prospect.Campaign, limit int) ([]prospect.Lead, error)
}

// Deps are the collaborators a cycle runs against. Publisher and Source
// are optional; their phases no-op when absent.
type Deps struct {
	Campaigns prospect.CampaignRepository
	Leads     prospect.LeadRepository
	Ledger    attempt.Ledger
	Settings  safety.Store
	Generator outreach.Generator
	Gateways  *gateway.Registry
	Signals   signals.Store
	Publisher escalate.Publisher
	Source    LeadSource
}

// Options tune one cycle invocation.
type Options struct {
	MaxNewLeadsPerDay int
	MaxOutreachPerDay int
	MinScore          float64
	MaxSteps          int
	FollowupInterval  time.Duration
	ChannelOrder      []outreach.Channel
	Concurrency       int
	SignalBatch       int
	GatewayTimeout    time.Duration
	DryRun            bool
}

func (opts Options) withDefaults() Options {
	if opts.MaxNewLeadsPerDay <= 0 {
		opts.MaxNewLeadsPerDay = 25
	}
	if opts.MaxOutreachPerDay <= 0 {
		opts.MaxOutreachPerDay = 50
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 3
	}
	if opts.FollowupInterval <= 0 {
		opts.FollowupInterval = 72 * time.Hour
	}
	if len(opts.ChannelOrder) == 0 {
		opts.ChannelOrder = []outreach.Channel{
			outreach.ChannelEmail,
			outreach.ChannelLinkedIn,
			outreach.ChannelContactForm,
		}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.SignalBatch <= 0 {
		opts.SignalBatch = 100
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 30 * time.Second
	}
	return opts
}

// Report is what a cycle always returns, partial failures included.
type Report struct {
	CampaignID       string    `json:"campaign_id"`
	DryRun           bool      `json:"dry_run"`
	LeadsCreated     int       `json:"leads_created"`
	OutreachSent     int       `json:"outreach_sent"`
	FollowupsSent    int       `json:"followups_sent"`
	HotLeadsDetected int       `json:"hot_leads_detected"`
	Errors           []string  `json:"errors,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// Orchestrator runs the five-phase daily cycle: intake, scheduling,
// sending, reply detection, escalation. Phases recover independently; a
// failing phase lands in Report.Errors and the rest still run.
type Orchestrator struct {
	deps Deps
	opts Options
	now  func() time.Time
}

func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	return &Orchestrator{
		deps: deps,
		opts: opts.withDefaults(),
		now:  time.Now,
	}
}

func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Run executes one cycle for the named campaign. It returns an error
// only for invalid input or an unreachable campaign store; everything
// that goes wrong inside a phase is reported, not raised.
func (o *Orchestrator) Run(ctx context.Context, campaignName string) (Report, error) {
	if campaignName == "" {
		return Report{}, fmt.Errorf("cycle: missing campaign name")
	}
	for _, ch := range o.opts.ChannelOrder {
		if !ch.Valid() {
			return Report{}, fmt.Errorf("%w: %q", outreach.ErrUnknownChannel, string(ch))
		}
	}

	campaign, err := o.deps.Campaigns.GetByName(ctx, campaignName)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		CampaignID: campaign.ID,
		DryRun:     o.opts.DryRun,
		StartedAt:  o.now(),
	}

	settings, err := o.deps.Settings.Load(ctx)
	if err != nil {
		// Without settings no safety decision is possible; report and
		// stop rather than guess.
		report.Errors = append(report.Errors, fmt.Sprintf("load settings: %v", err))
		report.FinishedAt = o.now()
		return report, nil
	}

	run := o.newRun(campaign, settings)

	created, err := o.runIntake(ctx, run)
	report.LeadsCreated = created
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("phase intake: %v", err))
	}

	batch, err := o.runScheduling(ctx, run)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("phase scheduling: %v", err))
	}

	sent, followups, sendErrs := o.runSending(ctx, run, batch)
	report.OutreachSent = sent
	report.FollowupsSent = followups
	for _, e := range sendErrs {
		report.Errors = append(report.Errors, fmt.Sprintf("phase sending: %s", e))
	}

	hot, err := o.runReplyDetection(ctx, run)
	report.HotLeadsDetected = hot
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("phase reply detection: %v", err))
	}

	if err := o.runEscalation(ctx, run); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("phase escalation: %v", err))
	}

	report.FinishedAt = o.now()
	return report, nil
}

// run bundles the per-invocation state: settings are loaded once, and
// dry-run swaps in an overlay ledger plus no-op gateways so decisions
// still see real quota state while nothing persists or leaves the
// process.
type run struct {
	campaign  prospect.Campaign
	settings  safety.Settings
	sequencer *sequence.Sequencer
}

func (o *Orchestrator) newRun(campaign prospect.Campaign, settings safety.Settings) *run {
	ledger := o.deps.Ledger
	registry := o.deps.Gateways
	if o.opts.DryRun {
		ledger = attempt.NewOverlayLedger(o.deps.Ledger)
		registry = gateway.NoopRegistry()
	}
	engine := safety.NewEngine(settings, ledger)
	policy := safety.NewPolicy(settings)
	sequencer := sequence.NewSequencer(engine, policy, ledger, registry).
		WithGatewayTimeout(o.opts.GatewayTimeout).
		WithClock(o.now)
	return &run{
		campaign:  campaign,
		settings:  settings,
		sequencer: sequencer,
	}
}

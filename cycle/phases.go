package cycle

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"outreachflow/escalate"
	"outreachflow/outreach"
	"outreachflow/prospect"
	"outreachflow/signals"
)

// runIntake pulls new leads from the configured source, capped at
// MaxNewLeadsPerDay. Duplicates are skipped quietly; dry-run counts the
// candidates without creating anything.
func (o *Orchestrator) runIntake(ctx context.Context, run *run) (int, error) {
	if o.deps.Source == nil {
		return 0, nil
	}
	candidates, err := o.deps.Source.FetchLeads(ctx, run.campaign, o.opts.MaxNewLeadsPerDay)
	if err != nil {
		return 0, fmt.Errorf("fetch leads: %w", err)
	}
	if len(candidates) > o.opts.MaxNewLeadsPerDay {
		candidates = candidates[:o.opts.MaxNewLeadsPerDay]
	}

	created := 0
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		candidate.CampaignID = run.campaign.ID
		candidate.Status = prospect.StatusNew
		if o.opts.DryRun {
			created++
			continue
		}
		if _, err := o.deps.Leads.Create(ctx, candidate); err != nil {
			if errors.Is(err, prospect.ErrDuplicateLead) {
				continue
			}
			return created, fmt.Errorf("create lead: %w", err)
		}
		created++
	}
	return created, nil
}

// sendItem is one lead picked by the scheduling phase, flagged when it
// is a follow-up touch rather than a first contact.
type sendItem struct {
	lead     prospect.Lead
	followup bool
}

// runScheduling picks the day's send batch: NEW leads at or above the
// score threshold first, then follow-up-due CONTACTED leads filling
// whatever headroom MaxOutreachPerDay leaves.
func (o *Orchestrator) runScheduling(ctx context.Context, run *run) ([]sendItem, error) {
	fresh, err := o.deps.Leads.ListEligible(ctx, run.campaign.ID, o.opts.MinScore, o.opts.MaxOutreachPerDay)
	if err != nil {
		return nil, fmt.Errorf("list eligible: %w", err)
	}
	items := make([]sendItem, 0, len(fresh))
	for _, lead := range fresh {
		items = append(items, sendItem{lead: lead})
	}

	headroom := o.opts.MaxOutreachPerDay - len(items)
	if headroom <= 0 || o.opts.MaxSteps <= 1 {
		return items, nil
	}
	cutoff := o.now().Add(-o.opts.FollowupInterval)
	due, err := o.deps.Leads.ListFollowupDue(ctx, run.campaign.ID, cutoff, o.opts.MaxSteps, headroom)
	if err != nil {
		// Keep the fresh batch; follow-ups wait for the next cycle.
		return items, fmt.Errorf("list followups: %w", err)
	}
	for _, lead := range due {
		items = append(items, sendItem{lead: lead, followup: true})
	}
	return items, nil
}

type sendOutcome struct {
	sent     bool
	followup bool
	err      error
}

// runSending fans the batch out over a bounded worker group. Leads fail
// independently; a lead error never stops the batch. Cancellation is
// honored between leads, never mid-delivery.
func (o *Orchestrator) runSending(ctx context.Context, run *run, batch []sendItem) (sent, followups int, errs []string) {
	if len(batch) == 0 {
		return 0, 0, nil
	}

	outcomes := make([]sendOutcome, len(batch))
	g := new(errgroup.Group)
	g.SetLimit(o.opts.Concurrency)
	for i, item := range batch {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcomes[i] = o.sendToLead(ctx, run, item)
			return nil
		})
	}
	g.Wait()

	for _, out := range outcomes {
		if out.sent {
			if out.followup {
				followups++
			} else {
				sent++
			}
		}
		if out.err != nil {
			errs = append(errs, out.err.Error())
		}
	}
	return sent, followups, errs
}

func (o *Orchestrator) sendToLead(ctx context.Context, run *run, item sendItem) sendOutcome {
	lead := item.lead
	step := lead.SequenceStep + 1
	if step > o.opts.MaxSteps {
		return sendOutcome{}
	}

	cfg := outreach.SequenceConfig{
		Steps:    o.opts.MaxSteps,
		Interval: o.opts.FollowupInterval,
		Channels: o.opts.ChannelOrder,
	}
	messages, err := o.deps.Generator.Generate(ctx, leadContext(lead), campaignContext(run.campaign), cfg)
	if err != nil {
		return sendOutcome{err: fmt.Errorf("lead %s: generate: %w", lead.ID, err)}
	}

	var msg *outreach.Message
	for i := range messages {
		if messages[i].Step == step {
			msg = &messages[i]
			break
		}
	}
	if msg == nil {
		return sendOutcome{err: fmt.Errorf("lead %s: generator produced no message for step %d", lead.ID, step)}
	}

	result, err := run.sequencer.Run(ctx, lead, *msg, o.opts.ChannelOrder)
	if err != nil {
		return sendOutcome{err: fmt.Errorf("lead %s: %w", lead.ID, err)}
	}
	if !result.Success {
		return sendOutcome{}
	}

	if !o.opts.DryRun {
		if _, err := o.deps.Leads.MarkContacted(ctx, lead.ID, step, o.now()); err != nil {
			// The send happened; count it and surface the bookkeeping
			// failure alongside.
			return sendOutcome{sent: true, followup: item.followup, err: fmt.Errorf("lead %s: mark contacted: %w", lead.ID, err)}
		}
	}
	return sendOutcome{sent: true, followup: item.followup}
}

// runReplyDetection drains the signal inbox and flips matched CONTACTED
// leads to REPLIED. Signals scoped to this campaign that match nothing
// are retired; unscoped unmatched ones stay for other campaigns' cycles.
func (o *Orchestrator) runReplyDetection(ctx context.Context, run *run) (int, error) {
	sigs, err := o.deps.Signals.ListUnprocessed(ctx, o.opts.SignalBatch)
	if err != nil {
		return 0, fmt.Errorf("list signals: %w", err)
	}

	hot := 0
	for _, sig := range sigs {
		if err := ctx.Err(); err != nil {
			return hot, err
		}
		if sig.CampaignID != "" && sig.CampaignID != run.campaign.ID {
			continue
		}

		lead, matched, err := o.matchSignal(ctx, run.campaign, sig)
		if err != nil {
			return hot, err
		}
		if !matched {
			if sig.CampaignID == run.campaign.ID && !o.opts.DryRun {
				if err := o.deps.Signals.MarkProcessed(ctx, sig.ID, ""); err != nil {
					return hot, err
				}
			}
			continue
		}

		if lead.Status == prospect.StatusContacted {
			hot++
			if !o.opts.DryRun {
				if _, err := o.deps.Leads.UpdateStatus(ctx, lead.ID, prospect.StatusReplied); err != nil {
					return hot, fmt.Errorf("lead %s: mark replied: %w", lead.ID, err)
				}
			}
		}
		if !o.opts.DryRun {
			if err := o.deps.Signals.MarkProcessed(ctx, sig.ID, lead.ID); err != nil {
				return hot, err
			}
		}
	}
	return hot, nil
}

func (o *Orchestrator) matchSignal(ctx context.Context, campaign prospect.Campaign, sig signals.Signal) (prospect.Lead, bool, error) {
	if sig.LeadID != "" {
		lead, err := o.deps.Leads.GetByID(ctx, sig.LeadID)
		if errors.Is(err, prospect.ErrLeadNotFound) {
			return prospect.Lead{}, false, nil
		}
		if err != nil {
			return prospect.Lead{}, false, err
		}
		if lead.CampaignID != campaign.ID {
			return prospect.Lead{}, false, nil
		}
		return lead, true, nil
	}
	if sig.Address == "" {
		return prospect.Lead{}, false, nil
	}
	lead, err := o.deps.Leads.FindByAddress(ctx, campaign.ID, sig.Channel, sig.Address)
	if errors.Is(err, prospect.ErrLeadNotFound) {
		return prospect.Lead{}, false, nil
	}
	if err != nil {
		return prospect.Lead{}, false, err
	}
	return lead, true, nil
}

// runEscalation hands REPLIED leads to the project pipeline and marks
// them QUALIFIED on a successful publish, so a re-run never escalates
// the same lead twice.
func (o *Orchestrator) runEscalation(ctx context.Context, run *run) error {
	if o.deps.Publisher == nil {
		return nil
	}
	replied, err := o.deps.Leads.ListByStatus(ctx, run.campaign.ID, prospect.StatusReplied, o.opts.SignalBatch)
	if err != nil {
		return fmt.Errorf("list replied: %w", err)
	}
	for _, lead := range replied {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.opts.DryRun {
			continue
		}
		handoff := escalate.Handoff{
			LeadID:      lead.ID,
			CampaignID:  lead.CampaignID,
			Name:        lead.Name,
			Company:     lead.Company,
			Email:       lead.Email,
			Status:      string(lead.Status),
			EscalatedAt: o.now(),
		}
		if err := o.deps.Publisher.PublishHandoff(ctx, handoff); err != nil {
			return fmt.Errorf("lead %s: publish handoff: %w", lead.ID, err)
		}
		if _, err := o.deps.Leads.UpdateStatus(ctx, lead.ID, prospect.StatusQualified); err != nil {
			return fmt.Errorf("lead %s: mark qualified: %w", lead.ID, err)
		}
	}
	return nil
}

func leadContext(lead prospect.Lead) outreach.LeadContext {
	return outreach.LeadContext{
		LeadID:         lead.ID,
		Name:           lead.Name,
		Company:        lead.Company,
		Role:           lead.Role,
		Email:          lead.Email,
		SocialHandle:   lead.SocialHandle,
		ContactFormURL: lead.ContactFormURL,
		Tags:           lead.Tags,
	}
}

func campaignContext(c prospect.Campaign) outreach.CampaignContext {
	return outreach.CampaignContext{
		CampaignID: c.ID,
		Name:       c.Name,
		Niche:      c.Niche,
	}
}

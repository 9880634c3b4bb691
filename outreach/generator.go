package outreach

import (
	"context"
	"fmt"
	"strings"
	"text/template"
)

// StepTemplate is the subject/body pair for one touch in a sequence.
// Both are text/template sources rendered against a generator context
// holding Lead, Campaign and Step.
type StepTemplate struct {
	Subject string
	Body    string
}

// TemplateGenerator renders sequences from static step templates. It is
// the stand-in wiring for deployments without an external content
// service; the scheduler only depends on the Generator interface.
type TemplateGenerator struct {
	steps []*renderedStep
}

type renderedStep struct {
	subject *template.Template
	body    *template.Template
}

type templateContext struct {
	Lead     LeadContext
	Campaign CampaignContext
	Step     int
}

func NewTemplateGenerator(steps []StepTemplate) (*TemplateGenerator, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("outreach: template generator needs at least one step")
	}
	g := &TemplateGenerator{steps: make([]*renderedStep, 0, len(steps))}
	for i, step := range steps {
		subject, err := template.New(fmt.Sprintf("subject-%d", i+1)).Parse(step.Subject)
		if err != nil {
			return nil, fmt.Errorf("outreach: parse step %d subject: %w", i+1, err)
		}
		body, err := template.New(fmt.Sprintf("body-%d", i+1)).Parse(step.Body)
		if err != nil {
			return nil, fmt.Errorf("outreach: parse step %d body: %w", i+1, err)
		}
		g.steps = append(g.steps, &renderedStep{subject: subject, body: body})
	}
	return g, nil
}

// Generate renders one message per sequence step, up to cfg.Steps or the
// number of templates, whichever is smaller.
func (g *TemplateGenerator) Generate(ctx context.Context, lead LeadContext, campaign CampaignContext, cfg SequenceConfig) ([]Message, error) {
	if lead.LeadID == "" || campaign.CampaignID == "" {
		return nil, ErrLeadUnresolvable
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	count := cfg.Steps
	if count > len(g.steps) {
		count = len(g.steps)
	}

	messages := make([]Message, 0, count)
	for i := 0; i < count; i++ {
		tctx := templateContext{Lead: lead, Campaign: campaign, Step: i + 1}
		subject, err := render(g.steps[i].subject, tctx)
		if err != nil {
			return nil, fmt.Errorf("outreach: render step %d subject: %w", i+1, err)
		}
		body, err := render(g.steps[i].body, tctx)
		if err != nil {
			return nil, fmt.Errorf("outreach: render step %d body: %w", i+1, err)
		}
		messages = append(messages, Message{
			LeadID:     lead.LeadID,
			CampaignID: campaign.CampaignID,
			Step:       i + 1,
			Subject:    subject,
			Body:       body,
		})
	}
	return messages, nil
}

func render(t *template.Template, ctx templateContext) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, ctx); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// DefaultStepTemplates is the three-touch sequence the binaries fall
// back to when no templates are configured.
func DefaultStepTemplates() []StepTemplate {
	return []StepTemplate{
		{
			Subject: "Quick question about {{.Lead.Company}}",
			Body:    "Hi {{.Lead.Name}},\n\nWe help {{.Campaign.Niche}} teams with their client pipeline. Would a short call next week make sense?\n",
		},
		{
			Subject: "Re: Quick question about {{.Lead.Company}}",
			Body:    "Hi {{.Lead.Name}},\n\nFollowing up on my earlier note in case it got buried. Happy to share how we work with {{.Campaign.Niche}} companies.\n",
		},
		{
			Subject: "Last note for {{.Lead.Company}}",
			Body:    "Hi {{.Lead.Name}},\n\nClosing the loop on this thread. If the timing is wrong, no worries at all.\n",
		},
	}
}

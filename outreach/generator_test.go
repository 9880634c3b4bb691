package outreach

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func sequenceConfig(steps int) SequenceConfig {
	return SequenceConfig{
		Steps:    steps,
		Interval: 72 * time.Hour,
		Channels: []Channel{ChannelEmail},
	}
}

func TestTemplateGenerator_RendersEachStep(t *testing.T) {
	gen, err := NewTemplateGenerator(DefaultStepTemplates())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	lead := LeadContext{LeadID: "lead-1", Name: "Ada", Company: "Analytical Ltd"}
	campaign := CampaignContext{CampaignID: "camp-1", Name: "webdesign", Niche: "web design"}

	messages, err := gen.Generate(context.Background(), lead, campaign, sequenceConfig(3))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, msg := range messages {
		if msg.Step != i+1 {
			t.Errorf("message %d: expected step %d, got %d", i, i+1, msg.Step)
		}
		if msg.LeadID != "lead-1" || msg.CampaignID != "camp-1" {
			t.Errorf("message %d: wrong references: %+v", i, msg)
		}
	}
	if !strings.Contains(messages[0].Subject, "Analytical Ltd") {
		t.Errorf("expected company in first subject, got %q", messages[0].Subject)
	}
	if !strings.Contains(messages[0].Body, "Ada") {
		t.Errorf("expected lead name in first body, got %q", messages[0].Body)
	}
	if !strings.Contains(messages[1].Body, "web design") {
		t.Errorf("expected niche in follow-up body, got %q", messages[1].Body)
	}
}

func TestTemplateGenerator_CapsAtConfiguredSteps(t *testing.T) {
	gen, err := NewTemplateGenerator(DefaultStepTemplates())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	messages, err := gen.Generate(context.Background(),
		LeadContext{LeadID: "lead-1"}, CampaignContext{CampaignID: "camp-1"}, sequenceConfig(2))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(messages) != 2 {
		t.Errorf("expected 2 messages for a 2-step config, got %d", len(messages))
	}
}

func TestTemplateGenerator_UnresolvableLead(t *testing.T) {
	gen, err := NewTemplateGenerator(DefaultStepTemplates())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if _, err := gen.Generate(context.Background(), LeadContext{}, CampaignContext{CampaignID: "camp-1"}, sequenceConfig(1)); !errors.Is(err, ErrLeadUnresolvable) {
		t.Errorf("expected ErrLeadUnresolvable for missing lead id, got %v", err)
	}
	if _, err := gen.Generate(context.Background(), LeadContext{LeadID: "lead-1"}, CampaignContext{}, sequenceConfig(1)); !errors.Is(err, ErrLeadUnresolvable) {
		t.Errorf("expected ErrLeadUnresolvable for missing campaign id, got %v", err)
	}
}

func TestNewTemplateGenerator_RejectsBadTemplate(t *testing.T) {
	_, err := NewTemplateGenerator([]StepTemplate{{Subject: "{{.Broken", Body: "x"}})
	if err == nil {
		t.Fatalf("expected parse error for malformed template")
	}
}

package attempt

import (
	"context"
	"testing"
	"time"

	"outreachflow/outreach"
)

func TestOverlayLedger_CountsBaseAndOverlay(t *testing.T) {
	base := NewDiscardLedger()
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	if _, err := base.RecordAttempt(context.Background(), Attempt{Channel: outreach.ChannelEmail, Status: StatusSent, CreatedAt: at}); err != nil {
		t.Fatalf("seed base: %v", err)
	}

	overlay := NewOverlayLedger(base)
	if _, err := overlay.RecordAttempt(context.Background(), Attempt{Channel: outreach.ChannelEmail, Status: StatusSent, CreatedAt: at.Add(time.Minute)}); err != nil {
		t.Fatalf("record overlay: %v", err)
	}

	count, err := overlay.CountSent(context.Background(), outreach.ChannelEmail, at)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("expected base+overlay count 2, got %d", count)
	}

	// The base ledger never saw the overlay write.
	baseCount, err := base.CountSent(context.Background(), outreach.ChannelEmail, at)
	if err != nil {
		t.Fatalf("base count: %v", err)
	}
	if baseCount != 1 {
		t.Errorf("expected base untouched at 1, got %d", baseCount)
	}
}

func TestOverlayLedger_FirstAttemptPrefersEarliest(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	base := NewDiscardLedger()
	if _, err := base.RecordAttempt(context.Background(), Attempt{Channel: outreach.ChannelEmail, Status: StatusSent, CreatedAt: at}); err != nil {
		t.Fatalf("seed base: %v", err)
	}
	overlay := NewOverlayLedger(base)

	first, err := overlay.FirstAttemptAt(context.Background(), outreach.ChannelEmail)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first == nil || !first.Equal(at) {
		t.Errorf("expected base first attempt %v, got %v", at, first)
	}

	// A channel only the overlay touched anchors to the overlay write.
	if _, err := overlay.RecordAttempt(context.Background(), Attempt{Channel: outreach.ChannelLinkedIn, Status: StatusSkipped, CreatedAt: at.Add(time.Hour)}); err != nil {
		t.Fatalf("record overlay: %v", err)
	}
	first, err = overlay.FirstAttemptAt(context.Background(), outreach.ChannelLinkedIn)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first == nil || !first.Equal(at.Add(time.Hour)) {
		t.Errorf("expected overlay first attempt, got %v", first)
	}
}

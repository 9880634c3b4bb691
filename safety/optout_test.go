package safety

import (
	"errors"
	"testing"
	"time"
)

func TestOptOutIssuer_RoundTrip(t *testing.T) {
	issuer := NewOptOutIssuer("test-secret")

	token, err := issuer.Issue("lead-42", "ada@example.com")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if claims.LeadID != "lead-42" {
		t.Errorf("expected lead-42, got %q", claims.LeadID)
	}
	if claims.Email != "ada@example.com" {
		t.Errorf("expected ada@example.com, got %q", claims.Email)
	}
}

func TestOptOutIssuer_RejectsExpiredToken(t *testing.T) {
	issued := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	issuer := NewOptOutIssuer("test-secret").
		WithTTL(time.Hour).
		WithClock(func() time.Time { return issued })

	token, err := issuer.Issue("lead-42", "ada@example.com")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	issuer.WithClock(func() time.Time { return issued.Add(2 * time.Hour) })
	if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidOptOutToken) {
		t.Fatalf("expected ErrInvalidOptOutToken for expired token, got %v", err)
	}
}

func TestOptOutIssuer_RejectsForeignSignature(t *testing.T) {
	token, err := NewOptOutIssuer("their-secret").Issue("lead-42", "ada@example.com")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if _, err := NewOptOutIssuer("our-secret").Verify(token); !errors.Is(err, ErrInvalidOptOutToken) {
		t.Fatalf("expected ErrInvalidOptOutToken for foreign signature, got %v", err)
	}
}

func TestOptOutIssuer_RejectsGarbage(t *testing.T) {
	if _, err := NewOptOutIssuer("secret").Verify("not-a-token"); !errors.Is(err, ErrInvalidOptOutToken) {
		t.Fatalf("expected ErrInvalidOptOutToken, got %v", err)
	}
}

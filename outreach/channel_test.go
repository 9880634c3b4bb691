package outreach

import (
	"errors"
	"testing"
	"time"
)

func TestParseChannel(t *testing.T) {
	cases := []struct {
		raw  string
		want Channel
	}{
		{"email", ChannelEmail},
		{"EMAIL", ChannelEmail},
		{"  LinkedIn ", ChannelLinkedIn},
		{"twitter", ChannelTwitter},
		{"contact_form", ChannelContactForm},
	}
	for _, tc := range cases {
		got, err := ParseChannel(tc.raw)
		if err != nil {
			t.Fatalf("ParseChannel(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Errorf("ParseChannel(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestParseChannelUnknown(t *testing.T) {
	if _, err := ParseChannel("carrier_pigeon"); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
	if _, err := ParseChannel(""); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel for empty input, got %v", err)
	}
}

func TestSequenceConfigValidate(t *testing.T) {
	valid := SequenceConfig{
		Steps:    3,
		Interval: 72 * time.Hour,
		Channels: []Channel{ChannelEmail, ChannelLinkedIn, ChannelContactForm},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	if err := (SequenceConfig{Steps: 0, Channels: valid.Channels}).Validate(); !errors.Is(err, ErrEmptySequence) {
		t.Errorf("expected ErrEmptySequence for zero steps, got %v", err)
	}
	if err := (SequenceConfig{Steps: 1}).Validate(); !errors.Is(err, ErrEmptySequence) {
		t.Errorf("expected ErrEmptySequence for no channels, got %v", err)
	}
	bad := SequenceConfig{Steps: 1, Channels: []Channel{Channel("fax")}}
	if err := bad.Validate(); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("expected ErrUnknownChannel, got %v", err)
	}
}

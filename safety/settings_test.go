package safety

import (
	"errors"
	"testing"
	"time"

	"outreachflow/outreach"
)

func TestSendWindowContains(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
	}

	cases := []struct {
		name   string
		window SendWindow
		at     time.Time
		want   bool
	}{
		{"empty window always open", SendWindow{}, at(23, 30), true},
		{"inside", SendWindow{Start: "09:00", End: "18:00"}, at(12, 0), true},
		{"start bound inclusive", SendWindow{Start: "09:00", End: "18:00"}, at(9, 0), true},
		{"end bound inclusive", SendWindow{Start: "09:00", End: "18:00"}, at(18, 0), true},
		{"before start", SendWindow{Start: "09:00", End: "18:00"}, at(8, 59), false},
		{"after end", SendWindow{Start: "09:00", End: "18:00"}, at(20, 0), false},
		{"wrap late evening", SendWindow{Start: "22:00", End: "06:00"}, at(23, 0), true},
		{"wrap early morning", SendWindow{Start: "22:00", End: "06:00"}, at(5, 0), true},
		{"wrap midday closed", SendWindow{Start: "22:00", End: "06:00"}, at(12, 0), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.window.Contains(tc.at)
			if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if got != tc.want {
				t.Errorf("Contains(%v) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestSendWindowContains_MalformedWindow(t *testing.T) {
	for _, window := range []SendWindow{
		{Start: "nine", End: "18:00"},
		{Start: "09:00", End: "25:00"},
		{Start: "09:60", End: "18:00"},
		{Start: "09:00", End: ""},
	} {
		if _, err := window.Contains(time.Now()); !errors.Is(err, ErrBadWindow) {
			t.Errorf("window %+v: expected ErrBadWindow, got %v", window, err)
		}
	}
}

func TestSettingsValidate(t *testing.T) {
	good := DefaultSettings()
	if err := good.Validate(); err != nil {
		t.Fatalf("expected default settings to validate, got %v", err)
	}

	unknownChannel := Settings{Channels: map[outreach.Channel]ChannelLimit{"pigeon": {MaxPerDay: 1}}}
	if err := unknownChannel.Validate(); !errors.Is(err, outreach.ErrUnknownChannel) {
		t.Errorf("expected ErrUnknownChannel, got %v", err)
	}

	negative := Settings{Channels: map[outreach.Channel]ChannelLimit{outreach.ChannelEmail: {MaxPerDay: -1}}}
	if err := negative.Validate(); err == nil {
		t.Errorf("expected error for negative max_per_day")
	}

	badRamp := Settings{Channels: map[outreach.Channel]ChannelLimit{
		outreach.ChannelEmail: {MaxPerDay: 20, Warmup: &WarmupRamp{Start: 10, Increment: 5, Max: 5}},
	}}
	if err := badRamp.Validate(); err == nil {
		t.Errorf("expected error for warmup max below start")
	}

	badWindow := Settings{SendWindow: SendWindow{Start: "late", End: "later"}}
	if err := badWindow.Validate(); !errors.Is(err, ErrBadWindow) {
		t.Errorf("expected ErrBadWindow, got %v", err)
	}
}

package safety

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"outreachflow/outreach"
)

var (
	// ErrBadWindow signals a send window that is not HH:MM formatted.
	ErrBadWindow = errors.New("safety: malformed send window")
)

// WarmupRamp configures the linear daily-limit ramp for a freshly used
// channel. The ramp anchors to the first attempt ever recorded on the
// channel, so idle days advance it like active ones.
type WarmupRamp struct {
	Start     int `json:"start"`
	Increment int `json:"increment"`
	Max       int `json:"max"`
}

// ChannelLimit is the per-channel send budget. A nil Warmup means the
// channel runs at MaxPerDay from day one.
type ChannelLimit struct {
	MaxPerDay int         `json:"max_per_day"`
	Warmup    *WarmupRamp `json:"warmup,omitempty"`
}

// SendWindow is the daily time-of-day range during which sends are
// allowed, in UTC "HH:MM". Both fields empty means always open. Start
// after End means the window wraps midnight.
type SendWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Contains reports whether t's UTC time-of-day falls inside the window,
// bounds included.
func (w SendWindow) Contains(t time.Time) (bool, error) {
	if w.Start == "" && w.End == "" {
		return true, nil
	}
	start, err := parseClock(w.Start)
	if err != nil {
		return false, err
	}
	end, err := parseClock(w.End)
	if err != nil {
		return false, err
	}
	utc := t.UTC()
	cur := utc.Hour()*60 + utc.Minute()
	if start <= end {
		return cur >= start && cur <= end, nil
	}
	// Overnight window, e.g. 22:00-06:00.
	return cur >= start || cur <= end, nil
}

func parseClock(raw string) (int, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrBadWindow, raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: %q", ErrBadWindow, raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrBadWindow, raw)
	}
	return hour*60 + minute, nil
}

// Settings is the safety configuration read at the start of every cycle
// and threaded explicitly through each check. There is no process-wide
// instance; callers load one from the store and pass it down.
type Settings struct {
	Channels       map[outreach.Channel]ChannelLimit `json:"channels"`
	SendWindow     SendWindow                        `json:"send_window"`
	BlockedDomains []string                          `json:"blocked_domains"`
	DNCEmails      []string                          `json:"dnc_emails"`
	DNCLeadIDs     []string                          `json:"dnc_lead_ids"`
}

// Limit returns the configured budget for a channel. Channels without
// configuration have no budget and must not send.
func (s Settings) Limit(ch outreach.Channel) (ChannelLimit, bool) {
	limit, ok := s.Channels[ch]
	return limit, ok
}

// Validate checks the window format, the channel keys and the warmup
// numbers so a broken admin edit is rejected before it reaches a cycle.
func (s Settings) Validate() error {
	if _, err := s.SendWindow.Contains(time.Now()); err != nil {
		return err
	}
	for ch, limit := range s.Channels {
		if !ch.Valid() {
			return fmt.Errorf("%w: %q", outreach.ErrUnknownChannel, string(ch))
		}
		if limit.MaxPerDay < 0 {
			return fmt.Errorf("safety: negative max_per_day for %s", ch)
		}
		if w := limit.Warmup; w != nil {
			if w.Start <= 0 || w.Increment < 0 || w.Max < w.Start {
				return fmt.Errorf("safety: invalid warmup ramp for %s", ch)
			}
		}
	}
	return nil
}

// DefaultSettings is the configuration used until an admin saves one:
// email-only, conservative warmup, business-hours window.
func DefaultSettings() Settings {
	return Settings{
		Channels: map[outreach.Channel]ChannelLimit{
			outreach.ChannelEmail: {
				MaxPerDay: 20,
				Warmup:    &WarmupRamp{Start: 5, Increment: 5, Max: 20},
			},
			outreach.ChannelLinkedIn:    {MaxPerDay: 10},
			outreach.ChannelContactForm: {MaxPerDay: 10},
		},
		SendWindow: SendWindow{Start: "09:00", End: "18:00"},
	}
}

package outreach

import (
	"errors"
	"fmt"
	"strings"
)

// Channel identifies one delivery medium. The set is closed: gateway
// lookup, rate limits, and attempt records all key on it, and unknown
// values are rejected at the edges instead of being dispatched by name.
type Channel string

const (
	ChannelEmail       Channel = "email"
	ChannelLinkedIn    Channel = "linkedin"
	ChannelTwitter     Channel = "twitter"
	ChannelContactForm Channel = "contact_form"
)

// ErrUnknownChannel signals a channel value outside the closed set.
var ErrUnknownChannel = errors.New("outreach: unknown channel")

// Channels lists every known channel in declaration order.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelLinkedIn, ChannelTwitter, ChannelContactForm}
}

// ParseChannel normalizes raw input into a Channel.
func ParseChannel(raw string) (Channel, error) {
	ch := Channel(strings.ToLower(strings.TrimSpace(raw)))
	if !ch.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, raw)
	}
	return ch, nil
}

// Valid reports whether the channel belongs to the closed set.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelLinkedIn, ChannelTwitter, ChannelContactForm:
		return true
	default:
		return false
	}
}

func (c Channel) String() string { return string(c) }

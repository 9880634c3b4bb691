package gateway

import (
	"context"
	"errors"
	"fmt"

	"outreachflow/outreach"
)

type DeliveryStatus string

const (
	StatusSuccess DeliveryStatus = "success"
	StatusFailed  DeliveryStatus = "failed"
)

// Result is one gateway's answer for one delivery try. A FAILED result
// is an expected outcome, not an error; errors are reserved for
// transport-level problems and both are treated the same by callers.
type Result struct {
	Status            DeliveryStatus `json:"status"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
}

// Gateway delivers one message over one channel. Implementations must be
// safe for concurrent use; the scheduler never retries within a cycle.
type Gateway interface {
	Deliver(ctx context.Context, msg outreach.Message) (Result, error)
}

// ErrNoGateway signals a channel without a registered gateway.
var ErrNoGateway = errors.New("gateway: no gateway registered for channel")

// Registry maps channels to their gateways. Lookups on channels nobody
// registered fail loudly instead of silently doing nothing.
type Registry struct {
	gateways map[outreach.Channel]Gateway
}

func NewRegistry() *Registry {
	return &Registry{gateways: make(map[outreach.Channel]Gateway)}
}

func (r *Registry) Register(ch outreach.Channel, gw Gateway) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %q", outreach.ErrUnknownChannel, string(ch))
	}
	if gw == nil {
		return fmt.Errorf("gateway: nil gateway for %s", ch)
	}
	r.gateways[ch] = gw
	return nil
}

func (r *Registry) Lookup(ch outreach.Channel) (Gateway, error) {
	if !ch.Valid() {
		return nil, fmt.Errorf("%w: %q", outreach.ErrUnknownChannel, string(ch))
	}
	gw, ok := r.gateways[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGateway, ch)
	}
	return gw, nil
}

// NoopRegistry returns a registry where every known channel "delivers"
// successfully without contacting anyone. Dry-run cycles swap it in so
// the sequencer's branching still runs end to end.
func NoopRegistry() *Registry {
	r := NewRegistry()
	for _, ch := range outreach.Channels() {
		r.gateways[ch] = NoopGateway{}
	}
	return r
}

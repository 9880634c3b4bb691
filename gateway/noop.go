package gateway

import (
	"context"

	"outreachflow/outreach"
)

// NoopGateway succeeds without delivering anything.
type NoopGateway struct{}

func (NoopGateway) Deliver(ctx context.Context, msg outreach.Message) (Result, error) {
	return Result{Status: StatusSuccess, ProviderMessageID: "noop"}, nil
}

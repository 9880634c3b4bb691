package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"outreachflow/outreach"
)

// HTTPGateway bridges one channel to an external delivery service over
// HTTP: the message is POSTed as JSON and the response body carries the
// delivery result. One instance per channel, each with its own URL.
type HTTPGateway struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPGateway creates a gateway that POSTs deliveries to url. A nil
// client falls back to http.DefaultClient; callers control deadlines via
// the request context.
func NewHTTPGateway(url, apiKey string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPGateway{url: url, apiKey: apiKey, client: client}
}

type deliverRequest struct {
	LeadID     string `json:"lead_id"`
	CampaignID string `json:"campaign_id"`
	Channel    string `json:"channel"`
	Step       int    `json:"step"`
	Subject    string `json:"subject,omitempty"`
	Body       string `json:"body"`
}

func (g *HTTPGateway) Deliver(ctx context.Context, msg outreach.Message) (Result, error) {
	payload, err := json.Marshal(deliverRequest{
		LeadID:     msg.LeadID,
		CampaignID: msg.CampaignID,
		Channel:    string(msg.Channel),
		Step:       msg.Step,
		Subject:    msg.Subject,
		Body:       msg.Body,
	})
	if err != nil {
		return Result{}, fmt.Errorf("gateway: encode delivery: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("gateway: build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("gateway: delivery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{
			Status:       StatusFailed,
			ErrorMessage: fmt.Sprintf("gateway returned %s", resp.Status),
		}, nil
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("gateway: decode delivery response: %w", err)
	}
	if result.Status == "" {
		result.Status = StatusFailed
		result.ErrorMessage = "gateway response missing status"
	}
	return result, nil
}

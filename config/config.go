package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"outreachflow/outreach"
)

// Config carries everything the binaries read from the environment.
// Safety limits are not here; they live in the database so operators can
// tighten them without a redeploy.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`

	AMQPURL      string `env:"AMQP_URL"`
	HandoffQueue string `env:"HANDOFF_QUEUE" envDefault:"project.handoff"`

	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":8080"`
	OptOutSecret   string `env:"OPTOUT_SECRET"`
	WebhookKeyHash string `env:"WEBHOOK_KEY_HASH"`

	CycleInterval  time.Duration `env:"CYCLE_INTERVAL" envDefault:"1h"`
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"30s"`

	EmailGatewayURL       string `env:"EMAIL_GATEWAY_URL"`
	EmailGatewayKey       string `env:"EMAIL_GATEWAY_KEY"`
	LinkedInGatewayURL    string `env:"LINKEDIN_GATEWAY_URL"`
	LinkedInGatewayKey    string `env:"LINKEDIN_GATEWAY_KEY"`
	ContactFormGatewayURL string `env:"CONTACT_FORM_GATEWAY_URL"`
	ContactFormGatewayKey string `env:"CONTACT_FORM_GATEWAY_KEY"`
	TwitterGatewayURL     string `env:"TWITTER_GATEWAY_URL"`
	TwitterGatewayKey     string `env:"TWITTER_GATEWAY_KEY"`
}

// Load reads a .env file when one is present, then the process
// environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}

// GatewayEndpoint is one channel's delivery bridge.
type GatewayEndpoint struct {
	URL    string
	APIKey string
}

// GatewayEndpoints returns the configured bridges keyed by channel.
// Channels without a URL are absent from the map.
func (c Config) GatewayEndpoints() map[outreach.Channel]GatewayEndpoint {
	out := make(map[outreach.Channel]GatewayEndpoint, 4)
	add := func(ch outreach.Channel, url, key string) {
		if url != "" {
			out[ch] = GatewayEndpoint{URL: url, APIKey: key}
		}
	}
	add(outreach.ChannelEmail, c.EmailGatewayURL, c.EmailGatewayKey)
	add(outreach.ChannelLinkedIn, c.LinkedInGatewayURL, c.LinkedInGatewayKey)
	add(outreach.ChannelContactForm, c.ContactFormGatewayURL, c.ContactFormGatewayKey)
	add(outreach.ChannelTwitter, c.TwitterGatewayURL, c.TwitterGatewayKey)
	return out
}

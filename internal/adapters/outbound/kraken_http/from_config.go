package kraken_http

import (
	"errors"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/jakobbotsch/krakengo/internal/adapters/kraken_auth"
	"github.com/jakobbotsch/krakengo/internal/config"
	"github.com/jakobbotsch/krakengo/internal/ratelimit"
)

// NewFromConfig builds a client with the gates, limiter and credentials
// described by cfg. Missing credentials produce a public-only client.
func NewFromConfig(cfg *config.Config) (*Client, error) {
	signer, err := kraken_auth.NewSigner(cfg.KrakenAPIKey, cfg.KrakenAPISecret, kraken_auth.NewNonceSource(nil))
	if err != nil {
		return nil, err
	}

	privateGate, err := ratelimit.NewOptionalGate("private", cfg.PrivateGateOccurrences, cfg.PrivateGatePeriod)
	if err != nil {
		return nil, errors.Join(errors.New("private gate"), err)
	}
	orderGate, err := ratelimit.NewOptionalGate("order", cfg.OrderGateOccurrences, cfg.OrderGatePeriod)
	if err != nil {
		return nil, errors.Join(errors.New("order gate"), err)
	}

	var publicLimiter *rate.Limiter
	if cfg.PublicRatePerSec > 0 {
		publicLimiter = rate.NewLimiter(rate.Limit(cfg.PublicRatePerSec), 1)
	}

	return NewClient(cfg.KrakenBaseURL, Options{
		HTTPClient:     &http.Client{Timeout: cfg.HTTPTimeout},
		Signer:         signer,
		OTP:            kraken_auth.OTPFromConfig(cfg.KrakenOTP, cfg.KrakenTOTP),
		PrivateGate:    privateGate,
		OrderGate:      orderGate,
		PublicLimiter:  publicLimiter,
		IgnoreWarnings: cfg.IgnoreWarnings,
	})
}

// HasCredentials reports whether private endpoints are usable.
func (c *Client) HasCredentials() bool {
	return c.signer.Enabled()
}

package kraken_http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/jakobbotsch/krakengo/internal/adapters/kraken_auth"
	"github.com/jakobbotsch/krakengo/internal/ratelimit"
	"github.com/jakobbotsch/krakengo/internal/telemetry"
)

const DefaultBaseURL = "https://api.kraken.com/0/"

// Options configures a Client. Zero values mean "not used": no signer
// restricts the client to public calls, nil gates skip that wait.
type Options struct {
	HTTPClient     *http.Client
	Signer         *kraken_auth.Signer
	OTP            kraken_auth.OTPProvider
	PrivateGate    *ratelimit.Gate
	OrderGate      *ratelimit.Gate
	PublicLimiter  *rate.Limiter
	IgnoreWarnings bool
}

// Client issues public and signed private calls against the REST API and
// unwraps the {error, result} envelope every endpoint returns.
type Client struct {
	base           *url.URL
	httpClient     *http.Client
	signer         *kraken_auth.Signer
	otp            kraken_auth.OTPProvider
	privateGate    *ratelimit.Gate
	orderGate      *ratelimit.Gate
	publicLimiter  *rate.Limiter
	ignoreWarnings bool

	books singleflight.Group
}

func NewClient(baseURL string, opts Options) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		base:           base,
		httpClient:     hc,
		signer:         opts.Signer,
		otp:            opts.OTP,
		privateGate:    opts.PrivateGate,
		orderGate:      opts.OrderGate,
		publicLimiter:  opts.PublicLimiter,
		ignoreWarnings: opts.IgnoreWarnings,
	}, nil
}

type envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// PublicCall GETs public/<endpoint>?params and decodes the result into
// result (which may be nil).
func (c *Client) PublicCall(ctx context.Context, endpoint string, params *Params, result any) error {
	if c.publicLimiter != nil {
		if err := c.publicLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("public rate limit wait: %w", err)
		}
	}

	u := c.base.JoinPath("public", endpoint)
	u.RawQuery = params.QueryEncode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &TransportError{Op: "new request", Endpoint: endpoint, Err: err}
	}

	telemetry.Metrics.PublicCalls.Inc()
	return c.do(req, endpoint, result)
}

// PrivateCall POSTs a signed request to private/<endpoint>. Before anything
// is sent it takes privateCost units from the private gate and orderCost
// units from the order gate.
func (c *Client) PrivateCall(ctx context.Context, endpoint string, privateCost, orderCost int, params *Params, result any) error {
	if !c.signer.Enabled() {
		return fmt.Errorf("%s: %w", endpoint, ErrNoCredentials)
	}

	if err := c.privateGate.Acquire(ctx, privateCost); err != nil {
		return err
	}
	if err := c.orderGate.Acquire(ctx, orderCost); err != nil {
		return err
	}

	form := params.Clone()
	nonce := c.signer.NextNonce()
	form.Set("nonce", nonce)
	if c.otp != nil {
		otp, err := c.otp.OTP(ctx)
		if err != nil {
			return fmt.Errorf("%s: otp: %w", endpoint, err)
		}
		form.Set("otp", otp)
	}
	body := form.FormEncode()

	u := c.base.JoinPath("private", endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(body))
	if err != nil {
		return &TransportError{Op: "new request", Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.signer.SignRequest(req, nonce, body)

	telemetry.Metrics.PrivateCalls.Inc()
	return c.do(req, endpoint, result)
}

func (c *Client) do(req *http.Request, endpoint string, result any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.Metrics.TransportErrors.Inc()
		return &TransportError{Op: "http do", Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		telemetry.Metrics.TransportErrors.Inc()
		return &TransportError{Op: "read response", Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	elapsed := time.Since(start)
	telemetry.Metrics.CallLatency.Record(elapsed)
	telemetry.Debugf("kraken_http: %s %s -> %d (%s)", req.Method, req.URL.Path, resp.StatusCode, elapsed)

	err = c.readEnvelope(endpoint, resp.StatusCode, raw, result)
	if err != nil {
		if IsResponseError(err) {
			telemetry.Metrics.ResponseErrors.Inc()
		} else {
			telemetry.Metrics.TransportErrors.Inc()
		}
	}
	return err
}

func (c *Client) readEnvelope(endpoint string, status int, raw []byte, result any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if status < 200 || status >= 300 {
			return &TransportError{Op: "status", Endpoint: endpoint, StatusCode: status, Err: fmt.Errorf("body=%.200s", raw)}
		}
		return &TransportError{Op: "decode envelope", Endpoint: endpoint, StatusCode: status, Err: err}
	}

	if len(env.Error) > 0 {
		diags := make([]Diagnostic, len(env.Error))
		for i, s := range env.Error {
			diags[i] = ParseDiagnostic(s)
		}
		if !c.ignoreWarnings || hasErrorSeverity(diags) {
			return &ResponseError{Endpoint: endpoint, Diagnostics: diags}
		}
		for _, d := range diags {
			telemetry.Warnf("kraken_http: %s: ignoring %s", endpoint, d)
		}
	}

	if status < 200 || status >= 300 {
		return &TransportError{Op: "status", Endpoint: endpoint, StatusCode: status, Err: fmt.Errorf("body=%.200s", raw)}
	}

	if result == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, result); err != nil {
		return &TransportError{Op: "decode result", Endpoint: endpoint, StatusCode: status, Err: err}
	}
	return nil
}

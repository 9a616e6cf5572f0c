package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed default_policy.yaml
var defaultPolicyData []byte

// Policy tunes the order execution engine.
type Policy struct {
	AllowAbove       decimal.Decimal
	Tick             decimal.Decimal
	HoldDelay        time.Duration
	RetryDelay       time.Duration
	SettleDelay      time.Duration
	BookDepth        int
	MaxCancelRetries int
}

type policyFile struct {
	AllowAbove       string `yaml:"allow_above"`
	Tick             string `yaml:"tick"`
	HoldDelayMs      *int   `yaml:"hold_delay_ms"`
	RetryDelayMs     *int   `yaml:"retry_delay_ms"`
	SettleDelayMs    *int   `yaml:"settle_delay_ms"`
	BookDepth        *int   `yaml:"book_depth"`
	MaxCancelRetries *int   `yaml:"max_cancel_retries"`
}

// DefaultPolicy returns the embedded policy.
func DefaultPolicy() Policy {
	p, err := parsePolicy(defaultPolicyData, Policy{})
	if err != nil {
		panic(fmt.Sprintf("embedded default policy: %v", err))
	}
	return p
}

// LoadPolicy reads a policy file on top of the defaults. An empty path
// returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	def := DefaultPolicy()
	if path == "" {
		return def, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	return parsePolicy(data, def)
}

func parsePolicy(data []byte, base Policy) (Policy, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}

	p := base
	if f.AllowAbove != "" {
		d, err := decimal.NewFromString(f.AllowAbove)
		if err != nil {
			return Policy{}, fmt.Errorf("policy allow_above: %w", err)
		}
		p.AllowAbove = d
	}
	if f.Tick != "" {
		d, err := decimal.NewFromString(f.Tick)
		if err != nil {
			return Policy{}, fmt.Errorf("policy tick: %w", err)
		}
		p.Tick = d
	}
	if f.HoldDelayMs != nil {
		p.HoldDelay = time.Duration(*f.HoldDelayMs) * time.Millisecond
	}
	if f.RetryDelayMs != nil {
		p.RetryDelay = time.Duration(*f.RetryDelayMs) * time.Millisecond
	}
	if f.SettleDelayMs != nil {
		p.SettleDelay = time.Duration(*f.SettleDelayMs) * time.Millisecond
	}
	if f.BookDepth != nil {
		p.BookDepth = *f.BookDepth
	}
	if f.MaxCancelRetries != nil {
		p.MaxCancelRetries = *f.MaxCancelRetries
	}

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	if p.AllowAbove.IsNegative() {
		return fmt.Errorf("policy allow_above must be >= 0, got %s", p.AllowAbove)
	}
	if !p.Tick.IsPositive() {
		return fmt.Errorf("policy tick must be > 0, got %s", p.Tick)
	}
	if p.HoldDelay < 0 || p.RetryDelay < 0 || p.SettleDelay < 0 {
		return fmt.Errorf("policy delays must be >= 0")
	}
	if p.BookDepth < 0 || p.MaxCancelRetries < 0 {
		return fmt.Errorf("policy book_depth and max_cancel_retries must be >= 0")
	}
	return nil
}

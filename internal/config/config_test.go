package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if !p.AllowAbove.Equal(decimal.RequireFromString("0.15")) || !p.Tick.Equal(decimal.RequireFromString("0.00001")) {
		t.Errorf("allow_above=%s tick=%s", p.AllowAbove, p.Tick)
	}
	if p.HoldDelay != 2*time.Second || p.RetryDelay != 2*time.Second || p.SettleDelay != 4*time.Second {
		t.Errorf("delays = %s %s %s", p.HoldDelay, p.RetryDelay, p.SettleDelay)
	}
	if p.MaxCancelRetries != 0 {
		t.Errorf("max_cancel_retries = %d", p.MaxCancelRetries)
	}
}

func TestLoadPolicyOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("tick: 0.01\nhold_delay_ms: 0\nmax_cancel_retries: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Tick.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("tick = %s", p.Tick)
	}
	if p.HoldDelay != 0 {
		t.Errorf("hold delay = %s, want explicit zero", p.HoldDelay)
	}
	if p.SettleDelay != 4*time.Second || p.MaxCancelRetries != 5 {
		t.Errorf("settle=%s retries=%d", p.SettleDelay, p.MaxCancelRetries)
	}
}

func TestLoadPolicyRejectsBadValues(t *testing.T) {
	for _, body := range []string{"tick: 0\n", "allow_above: abc\n", "retry_delay_ms: -1\n", "tick: [1, 2\n"} {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		os.WriteFile(path, []byte(body), 0o644)
		if _, err := LoadPolicy(path); err == nil {
			t.Errorf("LoadPolicy(%q) succeeded", body)
		}
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PRIVATE_GATE_OCCURRENCES", "20")
	t.Setenv("PUBLIC_RATE_PER_SEC", "1.5")
	t.Setenv("KRAKEN_IGNORE_WARNINGS", "true")
	t.Setenv("HTTP_TIMEOUT_SEC", "not-a-number")

	c := Load()
	if c.PrivateGateOccurrences != 20 || c.PublicRatePerSec != 1.5 || !c.IgnoreWarnings {
		t.Errorf("config = %+v", c)
	}
	if c.HTTPTimeout != 10*time.Second {
		t.Errorf("timeout fallback = %s", c.HTTPTimeout)
	}
	if c.PrivateGatePeriod != 45*time.Second {
		t.Errorf("private period = %s", c.PrivateGatePeriod)
	}
}

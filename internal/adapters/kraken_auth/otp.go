package kraken_auth

import (
	"context"
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
)

// OTPProvider supplies the two-factor password added to each private call
// when the API key is configured to require one.
type OTPProvider interface {
	OTP(ctx context.Context) (string, error)
}

// StaticOTP is a fixed API-key password.
type StaticOTP string

func (s StaticOTP) OTP(context.Context) (string, error) { return string(s), nil }

// TOTP derives a time-based code from a base32 seed.
type TOTP struct {
	secret string
	now    func() time.Time
}

func NewTOTP(secret string, now func() time.Time) *TOTP {
	if now == nil {
		now = time.Now
	}
	return &TOTP{secret: secret, now: now}
}

func (t *TOTP) OTP(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	code, err := totp.GenerateCode(t.secret, t.now())
	if err != nil {
		return "", fmt.Errorf("generate totp: %w", err)
	}
	return code, nil
}

// OTPFromConfig picks a provider from the configured values. A static
// password wins over a TOTP seed; both empty means no OTP.
func OTPFromConfig(static, totpSecret string) OTPProvider {
	switch {
	case static != "":
		return StaticOTP(static)
	case totpSecret != "":
		return NewTOTP(totpSecret, nil)
	}
	return nil
}

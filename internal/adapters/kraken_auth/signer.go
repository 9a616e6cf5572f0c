package kraken_auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
)

const (
	HeaderAPIKey  = "API-Key"
	HeaderAPISign = "API-Sign"
)

// Signer implements Kraken private request signing:
//
//	API-Sign = base64(HMAC-SHA512(secret, path + SHA256(nonce + body)))
//
// where path is the absolute request path (e.g. /0/private/AddOrder) and
// body is the exact form-encoded payload sent, nonce field included.
type Signer struct {
	apiKey string
	secret []byte
	nonces *NonceSource
}

// NewSigner decodes the base64 API secret. Returns (nil, nil) when either
// credential is empty so callers can run public-only.
func NewSigner(apiKey, apiSecret string, nonces *NonceSource) (*Signer, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, nil
	}

	secret, err := base64.StdEncoding.DecodeString(apiSecret)
	if err != nil {
		return nil, fmt.Errorf("decode api secret: %w", err)
	}
	if nonces == nil {
		nonces = NewNonceSource(nil)
	}

	return &Signer{apiKey: apiKey, secret: secret, nonces: nonces}, nil
}

// Enabled reports whether this signer has credentials loaded.
func (s *Signer) Enabled() bool {
	return s != nil && s.apiKey != ""
}

// NextNonce returns the next nonce as the decimal string placed in the body.
func (s *Signer) NextNonce() string {
	return strconv.FormatInt(s.nonces.Next(), 10)
}

// Sign computes the API-Sign value for one request.
func (s *Signer) Sign(path, nonce, body string) string {
	inner := sha256.Sum256([]byte(nonce + body))

	mac := hmac.New(sha512.New, s.secret)
	mac.Write([]byte(path))
	mac.Write(inner[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignRequest sets API-Key and API-Sign on req. No-op when s is nil.
func (s *Signer) SignRequest(req *http.Request, nonce, body string) {
	if s == nil {
		return
	}
	req.Header.Set(HeaderAPIKey, s.apiKey)
	req.Header.Set(HeaderAPISign, s.Sign(req.URL.Path, nonce, body))
}

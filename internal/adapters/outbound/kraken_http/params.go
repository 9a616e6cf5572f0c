package kraken_http

import (
	"net/url"
	"strings"
)

// Params is an insertion-ordered parameter map. The signed body must be
// byte-identical to what is sent, so keys are never reordered
// (url.Values.Encode sorts them).
type Params struct {
	keys []string
	vals map[string]string
}

func NewParams() *Params {
	return &Params{vals: make(map[string]string)}
}

// Set adds k or replaces its value in place.
func (p *Params) Set(k, v string) *Params {
	if _, ok := p.vals[k]; !ok {
		p.keys = append(p.keys, k)
	}
	p.vals[k] = v
	return p
}

func (p *Params) Get(k string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p.vals[k]
	return v, ok
}

func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

func (p *Params) Clone() *Params {
	c := NewParams()
	if p == nil {
		return c
	}
	for _, k := range p.keys {
		c.Set(k, p.vals[k])
	}
	return c
}

// FormEncode renders application/x-www-form-urlencoded (spaces as '+').
func (p *Params) FormEncode() string {
	return p.encode(url.QueryEscape)
}

// QueryEncode renders a query string with spaces as %20.
func (p *Params) QueryEncode() string {
	return p.encode(func(s string) string {
		return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
	})
}

func (p *Params) encode(esc func(string) string) string {
	if p.Len() == 0 {
		return ""
	}
	var b strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(esc(k))
		b.WriteByte('=')
		b.WriteString(esc(p.vals[k]))
	}
	return b.String()
}

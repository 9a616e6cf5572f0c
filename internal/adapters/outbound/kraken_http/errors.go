package kraken_http

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNoCredentials = errors.New("private call requires api credentials")

type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "Error"
	}
	return "Warning"
}

// Diagnostic is one entry of a response's error list, e.g.
// "EOrder:Insufficient funds" or "WGeneral:rate limit:retry later".
type Diagnostic struct {
	Severity Severity
	Category string
	Type     string
	Extra    string
}

// ParseDiagnostic splits <S><Category>:<Type>[:<Extra>]. Anything after the
// second colon stays in Extra. A leading letter other than 'W' is treated
// as an error.
func ParseDiagnostic(s string) Diagnostic {
	parts := strings.SplitN(s, ":", 3)

	var d Diagnostic
	head := parts[0]
	d.Severity = SeverityError
	if head != "" {
		if head[0] == 'W' {
			d.Severity = SeverityWarning
		}
		d.Category = head[1:]
	}
	if len(parts) > 1 {
		d.Type = parts[1]
	}
	if len(parts) > 2 {
		d.Extra = parts[2]
	}
	return d
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("[%s] %s: %s", d.Category, d.Severity, d.Type)
	if strings.TrimSpace(d.Extra) != "" {
		s += fmt.Sprintf(" (%s)", d.Extra)
	}
	return s
}

// ResponseError is returned when the venue answered with diagnostics that
// are not ignorable.
type ResponseError struct {
	Endpoint    string
	Diagnostics []Diagnostic
}

func (e *ResponseError) Error() string {
	if len(e.Diagnostics) == 1 {
		return fmt.Sprintf("%s: %s", e.Endpoint, e.Diagnostics[0])
	}

	var nErr, nWarn int
	for _, d := range e.Diagnostics {
		if d.Severity == SeverityError {
			nErr++
		} else {
			nWarn++
		}
	}

	var b strings.Builder
	b.WriteString(e.Endpoint)
	b.WriteString(": ")
	switch {
	case nErr > 0 && nWarn > 0:
		fmt.Fprintf(&b, "%d errors and %d warnings", nErr, nWarn)
	case nErr > 0:
		fmt.Fprintf(&b, "%d errors", nErr)
	default:
		fmt.Fprintf(&b, "%d warnings", nWarn)
	}
	for _, d := range e.Diagnostics {
		b.WriteString("\n  ")
		b.WriteString(d.String())
	}
	return b.String()
}

// HasErrors reports whether any diagnostic has error severity.
func (e *ResponseError) HasErrors() bool {
	return hasErrorSeverity(e.Diagnostics)
}

func hasErrorSeverity(ds []Diagnostic) bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// TransportError covers everything between us and a decodable response:
// network failures, unexpected HTTP statuses and malformed bodies.
type TransportError struct {
	Op         string
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status=%d: %v", e.Op, e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsResponseError reports whether err carries venue diagnostics.
func IsResponseError(err error) bool {
	var re *ResponseError
	return errors.As(err, &re)
}

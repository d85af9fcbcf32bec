// Package sql audits values bound into generated statements.
package sql

import (
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/audit"
)

// InjectionMode selects what happens when a bound value looks like SQL injection.
type InjectionMode string

const (
	InjectionOff    InjectionMode = "off"
	InjectionWarn   InjectionMode = "warn"
	InjectionReject InjectionMode = "reject"
)

// InjectionFinding describes one suspicious value.
type InjectionFinding struct {
	Field       string // Column or parameter the value was bound to
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckValue uses libinjection to detect SQL injection patterns in a value
// bound to field. Only strings are checked; nil is returned for clean values.
//
// Values are always sent as bind parameters, so a finding is never
// exploitable here. It flags clients probing the API.
func CheckValue(field string, value any) *InjectionFinding {
	s, ok := value.(string)
	if !ok || s == "" {
		return nil
	}

	if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
		return &InjectionFinding{Field: field, Fingerprint: string(fingerprint)}
	}
	return nil
}

// CheckValues checks every value and returns the findings ordered by field.
func CheckValues(values map[string]any) []InjectionFinding {
	var findings []InjectionFinding
	for field, value := range values {
		if f := CheckValue(field, value); f != nil {
			findings = append(findings, *f)
		}
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].Field < findings[j].Field })
	return findings
}

// InjectionAuditor applies an InjectionMode to request values.
type InjectionAuditor struct {
	mode     InjectionMode
	security *audit.SecurityAuditor
}

// NewInjectionAuditor creates an auditor. Unknown modes behave like warn.
func NewInjectionAuditor(mode string, logger *zap.Logger) *InjectionAuditor {
	m := InjectionMode(mode)
	switch m {
	case InjectionOff, InjectionWarn, InjectionReject:
	default:
		m = InjectionWarn
	}
	return &InjectionAuditor{mode: m, security: audit.NewSecurityAuditor(logger)}
}

// Mode returns the effective mode.
func (a *InjectionAuditor) Mode() InjectionMode {
	return a.mode
}

// Audit checks values headed for table. Every finding is recorded as a
// security event; in reject mode the first one also becomes a validation
// error. Values themselves are never logged.
func (a *InjectionAuditor) Audit(table string, values map[string]any) error {
	if a == nil || a.mode == InjectionOff {
		return nil
	}

	findings := CheckValues(values)
	if len(findings) == 0 {
		return nil
	}

	for _, f := range findings {
		a.security.LogInjectionAttempt(audit.InjectionDetails{
			Table:       table,
			Field:       f.Field,
			Fingerprint: f.Fingerprint,
			Mode:        string(a.mode),
			Rejected:    a.mode == InjectionReject,
		})
	}

	if a.mode == InjectionReject {
		f := findings[0]
		return apperrors.NewValidationError(f.Field, "Value for %q was rejected by the injection check", f.Field)
	}
	return nil
}

// Package audit logs security-relevant events in a structured form that log
// pipelines can filter on.
package audit

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventInjectionAttempt is logged when libinjection flags a value bound to a column.
	EventInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventLoginFailure is logged when admin credentials are rejected.
	EventLoginFailure SecurityEventType = "login_failure"
	// EventLoginSuccess is logged when an admin session is issued.
	EventLoginSuccess SecurityEventType = "login_success"
)

// Severity levels attached to events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// SecurityEvent is the serialized form of an audited event.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	Username  string            `json:"username,omitempty"`
	Details   any               `json:"details,omitempty"`
	Severity  string            `json:"severity"`
}

// InjectionDetails describes a flagged value. The value itself is never recorded.
type InjectionDetails struct {
	Table       string `json:"table"`
	Field       string `json:"field"`
	Fingerprint string `json:"fingerprint"`
	Mode        string `json:"mode"`
	Rejected    bool   `json:"rejected"`
}

// SecurityAuditor writes security events to a "security_audit" logger.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit"), now: time.Now}
}

// LogInjectionAttempt records a suspicious value. Rejected values are logged
// at ERROR with critical severity, warned ones at WARN.
func (a *SecurityAuditor) LogInjectionAttempt(details InjectionDetails) {
	severity := SeverityWarning
	if details.Rejected {
		severity = SeverityCritical
	}

	fields := []zap.Field{
		zap.String("table", details.Table),
		zap.String("field", details.Field),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("mode", details.Mode),
	}
	a.log(EventInjectionAttempt, "", details, severity, "Possible SQL injection in request value", fields...)
}

// LogLoginFailure records rejected admin credentials.
func (a *SecurityAuditor) LogLoginFailure(username string) {
	a.log(EventLoginFailure, username, nil, SeverityWarning, "Rejected login")
}

// LogLoginSuccess records an issued admin session.
func (a *SecurityAuditor) LogLoginSuccess(username string) {
	a.log(EventLoginSuccess, username, nil, SeverityInfo, "Admin logged in")
}

func (a *SecurityAuditor) log(eventType SecurityEventType, username string, details any, severity, msg string, extra ...zap.Field) {
	if a == nil {
		return
	}

	event := SecurityEvent{
		Timestamp: a.now().UTC(),
		EventType: eventType,
		Username:  username,
		Details:   details,
		Severity:  severity,
	}
	// Marshaling these types cannot fail.
	eventJSON, _ := json.Marshal(event)

	fields := append([]zap.Field{
		zap.String("event_type", string(eventType)),
		zap.String("severity", severity),
		zap.String("event_json", string(eventJSON)),
	}, extra...)
	if username != "" {
		fields = append(fields, zap.String("username", username))
	}

	switch severity {
	case SeverityCritical:
		a.logger.Error(msg, fields...)
	case SeverityWarning:
		a.logger.Warn(msg, fields...)
	default:
		a.logger.Info(msg, fields...)
	}
}

package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// setupTestAuditor creates an auditor with an observer to capture log entries.
func setupTestAuditor(t *testing.T) (*SecurityAuditor, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	auditor := NewSecurityAuditor(zap.New(core))
	auditor.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return auditor, recorded
}

func decodeEvent(t *testing.T, entry observer.LoggedEntry) SecurityEvent {
	t.Helper()
	raw, ok := entry.ContextMap()["event_json"].(string)
	require.True(t, ok, "event_json field missing")

	var event SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	return event
}

func TestLogInjectionAttempt(t *testing.T) {
	tests := []struct {
		name         string
		rejected     bool
		wantLevel    zapcore.Level
		wantSeverity string
	}{
		{name: "warned", rejected: false, wantLevel: zapcore.WarnLevel, wantSeverity: SeverityWarning},
		{name: "rejected", rejected: true, wantLevel: zapcore.ErrorLevel, wantSeverity: SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor, recorded := setupTestAuditor(t)

			auditor.LogInjectionAttempt(InjectionDetails{
				Table:       "users",
				Field:       "name",
				Fingerprint: "s&sos",
				Mode:        "warn",
				Rejected:    tt.rejected,
			})

			require.Equal(t, 1, recorded.Len())
			entry := recorded.All()[0]
			assert.Equal(t, tt.wantLevel, entry.Level)
			assert.Equal(t, "security_audit", entry.LoggerName)

			fields := entry.ContextMap()
			assert.Equal(t, "users", fields["table"])
			assert.Equal(t, "name", fields["field"])
			assert.Equal(t, "s&sos", fields["fingerprint"])
			assert.Equal(t, tt.wantSeverity, fields["severity"])

			event := decodeEvent(t, entry)
			assert.Equal(t, EventInjectionAttempt, event.EventType)
			assert.Equal(t, tt.wantSeverity, event.Severity)
			assert.Equal(t, 2025, event.Timestamp.Year())
		})
	}
}

func TestLogLoginEvents(t *testing.T) {
	auditor, recorded := setupTestAuditor(t)

	auditor.LogLoginFailure("mallory")
	auditor.LogLoginSuccess("admin")

	require.Equal(t, 2, recorded.Len())

	failure := recorded.All()[0]
	assert.Equal(t, zapcore.WarnLevel, failure.Level)
	assert.Equal(t, "mallory", failure.ContextMap()["username"])
	assert.Equal(t, EventLoginFailure, decodeEvent(t, failure).EventType)

	success := recorded.All()[1]
	assert.Equal(t, zapcore.InfoLevel, success.Level)
	event := decodeEvent(t, success)
	assert.Equal(t, EventLoginSuccess, event.EventType)
	assert.Equal(t, "admin", event.Username)
	assert.Nil(t, event.Details)
}

func TestNilAuditorIsNoOp(t *testing.T) {
	var auditor *SecurityAuditor
	assert.NotPanics(t, func() {
		auditor.LogLoginFailure("admin")
		auditor.LogInjectionAttempt(InjectionDetails{Table: "users"})
	})
}

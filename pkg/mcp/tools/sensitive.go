package tools

import (
	"regexp"

	"github.com/ekaya-inc/ekaya-studio/pkg/logging"
	"github.com/ekaya-inc/ekaya-studio/pkg/models"
)

// SensitiveDetector finds columns whose values should not reach an MCP client,
// such as password hashes and API tokens.
type SensitiveDetector struct {
	columnPatterns []*regexp.Regexp
}

// defaultColumnPatterns returns case-insensitive patterns for sensitive column names.
func defaultColumnPatterns() []*regexp.Regexp {
	patterns := []string{
		`(?i)(api[_-]?key|apikey)`,
		`(?i)(api[_-]?secret|apisecret)`,
		`(?i)(password|passwd|pwd)`,
		`(?i)(secret[_-]?key|secretkey)`,
		`(?i)(access[_-]?token|accesstoken)`,
		`(?i)(refresh[_-]?token|refreshtoken)`,
		`(?i)(auth[_-]?token|authtoken)`,
		`(?i)(private[_-]?key|privatekey)`,
		`(?i)credential`,
		`(?i)(client[_-]?secret)`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// NewSensitiveDetector creates a detector with the default column patterns.
func NewSensitiveDetector() *SensitiveDetector {
	return &SensitiveDetector{columnPatterns: defaultColumnPatterns()}
}

// NewSensitiveDetectorWithPatterns creates a detector with custom patterns.
// Nil patterns fall back to the defaults.
func NewSensitiveDetectorWithPatterns(columnPatterns []*regexp.Regexp) *SensitiveDetector {
	if columnPatterns == nil {
		columnPatterns = defaultColumnPatterns()
	}
	return &SensitiveDetector{columnPatterns: columnPatterns}
}

// IsSensitiveColumn checks if a column name matches any sensitive pattern.
func (d *SensitiveDetector) IsSensitiveColumn(columnName string) bool {
	for _, pattern := range d.columnPatterns {
		if pattern.MatchString(columnName) {
			return true
		}
	}
	return false
}

// RedactRecord returns a copy of record with sensitive non-null values
// replaced by [REDACTED]. Embedded related records are redacted too.
// A nil detector returns record unchanged.
func (d *SensitiveDetector) RedactRecord(record models.Record) models.Record {
	if d == nil || record == nil {
		return record
	}

	out := make(models.Record, len(record))
	for key, value := range record {
		switch v := value.(type) {
		case models.Record:
			out[key] = d.RedactRecord(v)
		case []models.Record:
			out[key] = d.RedactRecords(v)
		default:
			if value != nil && d.IsSensitiveColumn(key) {
				out[key] = logging.RedactedText
				continue
			}
			out[key] = value
		}
	}
	return out
}

// RedactRecords applies RedactRecord to every row.
func (d *SensitiveDetector) RedactRecords(records []models.Record) []models.Record {
	if d == nil || records == nil {
		return records
	}
	out := make([]models.Record, len(records))
	for i, r := range records {
		out[i] = d.RedactRecord(r)
	}
	return out
}

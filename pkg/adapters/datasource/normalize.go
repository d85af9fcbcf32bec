package datasource

import (
	"encoding/base64"
	"unicode/utf8"

	"github.com/google/uuid"
)

// NormalizeValue converts driver values into JSON-friendly forms.
// Text and blobs read through database/sql arrive as []byte, and pgx returns
// uuid columns as [16]byte. Bytes that are not valid UTF-8 are base64
// encoded, matching how encoding/json renders []byte.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		if utf8.Valid(val) {
			return string(val)
		}
		return base64.StdEncoding.EncodeToString(val)
	case [16]byte:
		return uuid.UUID(val).String()
	default:
		return v
	}
}

// NormalizeRow applies NormalizeValue to every value of a row in place.
func NormalizeRow(row map[string]any) map[string]any {
	for k, v := range row {
		row[k] = NormalizeValue(v)
	}
	return row
}

package sqldb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertValue(t *testing.T) {
	tests := []struct {
		name   string
		dbType string
		in     any
		want   any
	}{
		{"mysql int text", "INT", []byte("42"), int64(42)},
		{"mysql unsigned bigint", "UNSIGNED BIGINT", []byte("18446744073709551615"), uint64(18446744073709551615)},
		{"mysql count", "BIGINT", []byte("7"), int64(7)},
		{"mysql double", "DOUBLE", []byte("2.5"), 2.5},
		{"decimal stays text", "DECIMAL", []byte("10.10"), "10.10"},
		{"varchar", "VARCHAR", []byte("hello"), "hello"},
		{"binary blob", "BLOB", []byte{0xff, 0x00, 0xfe}, "/wD+"},
		{"point is not an int", "POINT", []byte("abc"), "abc"},
		{"typed int passes through", "INTEGER", int64(3), int64(3)},
		{"nil", "TEXT", nil, nil},
		{"blob", "BLOB", []byte{0x61, 0x62}, "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConvertValue(tt.dbType, tt.in))
		})
	}
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, "`users`", QuoteBacktick("users"))
	assert.Equal(t, "`we``ird`", QuoteBacktick("we`ird"))
	assert.Equal(t, `"users"`, QuoteDouble("users"))
	assert.Equal(t, `"we""ird"`, QuoteDouble(`we"ird`))
}

package tools

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWith(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestTrimString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"whitespace only", "   ", ""},
		{"both sides whitespace", "  test  ", "test"},
		{"mixed whitespace", " \t\ntest\n\t ", "test"},
		{"no whitespace", "test", "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, trimString(tt.input))
		})
	}
}

func TestGetOptionalInt(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		want    int
		present bool
		wantErr bool
	}{
		{"absent", map[string]any{}, 0, false, false},
		{"null", map[string]any{"page": nil}, 0, false, false},
		{"number", map[string]any{"page": float64(3)}, 3, true, false},
		{"numeric string", map[string]any{"page": " 4 "}, 4, true, false},
		{"fraction", map[string]any{"page": 2.5}, 0, false, true},
		{"word", map[string]any{"page": "two"}, 0, false, true},
		{"bool", map[string]any{"page": true}, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := getOptionalInt(requestWith(tt.args), "page")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.present, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequireID(t *testing.T) {
	id, ok := requireID(requestWith(map[string]any{"id": float64(12)}))
	assert.True(t, ok)
	assert.Equal(t, "12", id)

	id, ok = requireID(requestWith(map[string]any{"id": " go "}))
	assert.True(t, ok)
	assert.Equal(t, "go", id)

	_, ok = requireID(requestWith(map[string]any{}))
	assert.False(t, ok)
}

func TestConnectionFor(t *testing.T) {
	ctx := WithConnection(context.Background(), "file:/tmp/saved.db")

	assert.Equal(t, "file:/tmp/explicit.db", connectionFor(ctx, requestWith(map[string]any{"url": "file:/tmp/explicit.db"})))
	assert.Equal(t, "file:/tmp/saved.db", connectionFor(ctx, requestWith(map[string]any{"url": "  "})))
	assert.Equal(t, "", connectionFor(context.Background(), requestWith(nil)))
	assert.Equal(t, context.Background(), WithConnection(context.Background(), ""))
}

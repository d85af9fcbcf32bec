package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpectedDatabase(t *testing.T) {
	assert.Equal(t, "shop", expectedDatabase("postgres://u:p@localhost:5432/shop?sslmode=disable"))
	assert.Equal(t, "my db", expectedDatabase("postgresql://u@h/my%20db"))
	assert.Equal(t, "", expectedDatabase("postgres://u@h"))
}

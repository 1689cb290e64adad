package idempotency

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyRejectsEmpty(t *testing.T) {
	_, err := ParseKey("")
	assert.Error(t, err)
}

func TestParseKeyRejectsOverLength(t *testing.T) {
	_, err := ParseKey(strings.Repeat("x", 50))
	assert.Error(t, err)
}

func TestParseKeyAcceptsMaxLength(t *testing.T) {
	raw := strings.Repeat("x", 49)
	key, err := ParseKey(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, key.String())
}

func TestParseKeyAcceptsTypicalToken(t *testing.T) {
	key, err := ParseKey("3f2c-publish-retry-01")
	require.NoError(t, err)
	assert.Equal(t, "3f2c-publish-retry-01", key.String())
}

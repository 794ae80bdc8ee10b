package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRawKey(t *testing.T) {
	rawKey, prefix, err := GenerateRawKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rawKey, "mb_"))
	assert.Len(t, prefix, 8)
	assert.Contains(t, rawKey, prefix)

	// Keys must be unique across generations.
	rawKey2, _, err := GenerateRawKey()
	require.NoError(t, err)
	assert.NotEqual(t, rawKey, rawKey2)
}

func TestParseRawKey(t *testing.T) {
	rawKey, prefix, err := GenerateRawKey()
	require.NoError(t, err)

	parsed, err := ParseRawKey(rawKey)
	require.NoError(t, err)
	assert.Equal(t, prefix, parsed)

	_, err = ParseRawKey("ak_wrong_prefix")
	assert.Error(t, err)

	_, err = ParseRawKey("mb_noseparator")
	assert.Error(t, err)

	_, err = ParseRawKey("mb_trailing_")
	assert.Error(t, err)
}

func TestRoleRank(t *testing.T) {
	assert.Greater(t, RoleRank(RoleAdmin), RoleRank(RoleAgent))
	assert.Greater(t, RoleRank(RoleAgent), RoleRank(RoleReader))
	assert.Greater(t, RoleRank(RoleReader), RoleRank(KeyRole("bogus")))

	assert.True(t, ValidKeyRole(RoleReader))
	assert.False(t, ValidKeyRole(KeyRole("bogus")))
}

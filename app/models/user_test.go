package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAPIToken(t *testing.T) {
	u := &User{}
	raw, err := u.IssueAPIToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, "stk_"))
	assert.Equal(t, raw[:16], u.APITokenPrefix)
	assert.Equal(t, HashAPIToken(raw), u.APITokenHash)
	assert.NotNil(t, u.TokenIssuedAt)
	assert.Nil(t, u.TokenLastUsedAt)
	assert.True(t, u.HasActiveAPIToken())

	// Re-issuing rotates the secret.
	second, err := u.IssueAPIToken()
	require.NoError(t, err)
	assert.NotEqual(t, raw, second)
	assert.Equal(t, HashAPIToken(second), u.APITokenHash)
}

func TestRevokeAPIToken(t *testing.T) {
	u := &User{}
	_, err := u.IssueAPIToken()
	require.NoError(t, err)

	u.RevokeAPIToken()
	assert.False(t, u.HasActiveAPIToken())
	assert.Empty(t, u.APITokenPrefix)
	assert.Nil(t, u.TokenIssuedAt)
}

func TestHashAPITokenTrimsWhitespace(t *testing.T) {
	assert.Equal(t, HashAPIToken("stk_abc"), HashAPIToken("  stk_abc \n"))
	assert.NotEqual(t, HashAPIToken("stk_abc"), HashAPIToken("stk_abd"))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("s3cret-pass", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}

func TestCreateUserValidates(t *testing.T) {
	u, err := CreateUser(1, "Amina Rahman", "amina@example.com", "s3cret-pass", ROLE_OWNER)
	require.NoError(t, err)
	assert.Equal(t, uint(1), u.FactoryID)
	assert.True(t, u.IsFactoryAdmin())

	_, err = CreateUser(1, "X", "not-an-email", "s3cret-pass", ROLE_OWNER)
	assert.Error(t, err)
}

func TestIsFactoryAdmin(t *testing.T) {
	assert.True(t, (&User{Role: ROLE_OWNER}).IsFactoryAdmin())
	assert.True(t, (&User{Role: ROLE_ADMIN}).IsFactoryAdmin())
	assert.False(t, (&User{Role: ROLE_SUPERVISOR}).IsFactoryAdmin())
	assert.False(t, (&User{Role: ROLE_BUYER}).IsFactoryAdmin())
}

package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordRejectsOverlongBytes(t *testing.T) {
	PasswordCost = bcrypt.MinCost
	_, err := HashPassword(strings.Repeat("界", 25))
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	_, err = HashPassword(strings.Repeat("a", MaxPasswordBytes))
	assert.NoError(t, err)
}

func TestPasswordRoundTrip(t *testing.T) {
	PasswordCost = bcrypt.MinCost
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)
	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))
}

func TestIssuerIssueAndParse(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	iss := Issuer{Secret: []byte("secret"), TTL: time.Hour, Now: func() time.Time { return now }}

	token, exp, err := iss.Issue("user-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	claims, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "alice", claims.Username)

	other := Issuer{Secret: []byte("other"), TTL: time.Hour, Now: iss.Now}
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	later := Issuer{Secret: iss.Secret, Now: func() time.Time { return now.Add(2 * time.Hour) }}
	_, err = later.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuerRequiresSecret(t *testing.T) {
	_, _, err := Issuer{TTL: time.Hour}.Issue("u", "n")
	assert.Error(t, err)
}

func TestAPIKeys(t *testing.T) {
	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, apiKeyPrefix)
	assert.Equal(t, HashAPIKey(a), HashAPIKey(" "+a+" "))
	assert.Len(t, HashAPIKey(a), 64)
}

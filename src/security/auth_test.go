package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService(t *testing.T) {
	svc := NewAuthService("test-secret")

	t.Run("round trips a token", func(t *testing.T) {
		token, err := svc.GenerateToken("reporting-job", "read", time.Hour)
		require.NoError(t, err)

		claims, err := svc.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "reporting-job", claims.Subject)
		assert.Equal(t, "read", claims.Scope)
	})

	t.Run("rejects expired tokens", func(t *testing.T) {
		token, err := svc.GenerateToken("x", "", -time.Minute)
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects tokens signed with another secret", func(t *testing.T) {
		token, err := NewAuthService("other").GenerateToken("x", "", time.Hour)
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("is disabled without a secret", func(t *testing.T) {
		disabled := NewAuthService("")
		assert.False(t, disabled.Enabled())
		_, err := disabled.GenerateToken("x", "", time.Hour)
		assert.ErrorIs(t, err, ErrAuthDisabled)
	})
}

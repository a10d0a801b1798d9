package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyToken(t *testing.T) {
	token, err := SignToken("u-1", "ops@example.com", "segreto", time.Hour)
	require.NoError(t, err)

	claims, err := VerifyToken(token, "segreto")
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "ops@example.com", claims.Email)
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	token, err := SignToken("u-1", "ops@example.com", "segreto", time.Hour)
	require.NoError(t, err)

	_, err = VerifyToken(token, "altro-segreto")
	assert.Error(t, err)
}

func TestVerifyTokenExpired(t *testing.T) {
	token, err := SignToken("u-1", "ops@example.com", "segreto", -time.Minute)
	require.NoError(t, err)

	_, err = VerifyToken(token, "segreto")
	assert.Error(t, err)
}

func TestVerifyTokenGarbage(t *testing.T) {
	_, err := VerifyToken("non-un-token", "segreto")
	assert.Error(t, err)
}

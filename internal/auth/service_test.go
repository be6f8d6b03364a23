package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParseRoundTrip(t *testing.T) {
	svc := NewService("tradesim", []byte("secret"), time.Hour)
	token, err := svc.SignToken("u1")
	require.NoError(t, err)
	userID, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestParseRejectsForeignIssuerAndSecret(t *testing.T) {
	svc := NewService("tradesim", []byte("secret"), time.Hour)

	other := NewService("elsewhere", []byte("secret"), time.Hour)
	token, err := other.SignToken("u1")
	require.NoError(t, err)
	_, err = svc.ParseToken(token)
	assert.EqualError(t, err, "invalid issuer")

	forged := NewService("tradesim", []byte("wrong"), time.Hour)
	token, err = forged.SignToken("u1")
	require.NoError(t, err)
	_, err = svc.ParseToken(token)
	assert.Error(t, err)
}

func TestSignRequiresUser(t *testing.T) {
	_, err := NewService("x", []byte("y"), 0).SignToken("")
	assert.Error(t, err)
}

package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundtrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateToken("ingest-pipeline", ScopeIngest, secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, "ingest-pipeline", claims.Service)
	require.Equal(t, ScopeIngest, claims.Scope)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("svc", ScopeQuery, []byte("secret-a"), time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, []byte("secret-b"))
	require.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateToken("svc", ScopeQuery, secret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, secret)
	require.Error(t, err)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	_, err := ParseToken("not.a.token", []byte("test-secret"))
	require.Error(t, err)
}

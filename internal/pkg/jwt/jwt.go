package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// ScopeIngest authorizes document mutation and cache invalidation;
// ScopeQuery only allows asking questions.
const (
	ScopeIngest = "ingest"
	ScopeQuery  = "query"
)

type Claims struct {
	Service string `json:"service"`
	Scope   string `json:"scope"`
	jwtlib.RegisteredClaims
}

func GenerateToken(service, scope string, secret []byte, ttl time.Duration) (string, error) {
	claims := Claims{
		Service: service,
		Scope:   scope,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(time.Now()),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenString, &Claims{}, func(token *jwtlib.Token) (interface{}, error) {
		if token.Method.Alg() != jwtlib.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

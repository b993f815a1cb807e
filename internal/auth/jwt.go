// Package auth mints and checks the HS256 service tokens that callers of
// the gRPC API present in the access_token metadata key.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/authmaker/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims identifies the calling operator or service.
type Claims struct {
	jwt.RegisteredClaims
	Operator string `json:"operator"`
}

const issuer = "authmaker"

// GenerateToken signs a token for operator valid for validityDuration. Each
// token carries a fresh ID.
func GenerateToken(operator string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Operator: operator,
	})

	return token.SignedString(secretKey)
}

// GetOperatorFromToken validates tokenString and returns the operator it
// was issued to. Expired tokens yield common.ErrTokenExpired, anything else
// that fails validation yields common.ErrInvalidToken.
func GetOperatorFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.Operator == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Operator, nil
}

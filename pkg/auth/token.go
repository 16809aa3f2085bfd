package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/receipt-generator/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// OperatorClaims identify a helpdesk operator.
type OperatorClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// MintOperatorToken issues a signed token for operator, valid for cfg.TokenTTL.
func MintOperatorToken(cfg config.AuthConfig, now time.Time, operator string) (string, error) {
	if cfg.JWTSecret == "" {
		return "", errors.New("jwt secret is required")
	}
	if cfg.TokenTTL <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return "", errors.New("operator is required")
	}

	claims := OperatorClaims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.JWTIssuer,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseOperatorToken validates signature, issuer and expiry.
func ParseOperatorToken(cfg config.AuthConfig, tokenString string) (*OperatorClaims, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}

	claims := &OperatorClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.JWTIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Operator) == "" {
		return nil, errors.New("operator claim is required")
	}
	return claims, nil
}

// Package token validates the bearer tokens the substrate gateway issues to
// callers. Tokens carry the caller's stable account identifier; the core
// performs no session or password handling of its own.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
)

// Claims are the JWT claims expected on substrate-issued tokens.
type Claims struct {
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

// Service validates (and, for local development, mints) account tokens.
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey, issuer string) *Service {
	return &Service{signingKey: []byte(signingKey), issuer: issuer}
}

// ValidateToken parses and verifies a token and returns the bound account id.
func (s *Service) ValidateToken(tokenString string) (id.AccountID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	account, err := id.ParseAccountID(claims.AccountID)
	if err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "token carries no account id")
	}
	return account, nil
}

// GenerateToken mints a development token for an account. Production tokens
// come from the substrate gateway, not from this process.
func (s *Service) GenerateToken(account id.AccountID, expiresIn time.Duration) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AccountID: account.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
		},
	})
	return t.SignedString(s.signingKey)
}

// Package session verifies the signed session tokens issued by the CRM
// dashboard's login flow.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"crmdash/pkg/platform/sentinel"
)

// Claims is the session token payload. Only userId and companyId are used
// for admission control.
type Claims struct {
	UserID    string `json:"userId"`
	CompanyID string `json:"companyId"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies HMAC session tokens with a shared secret.
type TokenService struct {
	signingKey []byte
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{signingKey: []byte(secret)}
}

// Configured reports whether a signing secret is present.
func (s *TokenService) Configured() bool {
	return len(s.signingKey) > 0
}

// Verify checks the token's HMAC signature and expiry. It returns
// sentinel.ErrMisconfigured when no secret is set and sentinel.ErrInvalidToken
// for anything else that fails.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	if !s.Configured() {
		return nil, fmt.Errorf("%w: session secret not set", sentinel.ErrMisconfigured)
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token has expired", sentinel.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %w", sentinel.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", sentinel.ErrInvalidToken)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid token claims", sentinel.ErrInvalidToken)
	}
	return claims, nil
}

// Issue signs a token for a user of a company. Production tokens come from
// the login service; this is used by tests and the server's -dev-token flag.
func (s *TokenService) Issue(userID, companyID string, expiresIn time.Duration) (string, error) {
	if !s.Configured() {
		return "", fmt.Errorf("%w: session secret not set", sentinel.ErrMisconfigured)
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:    userID,
		CompanyID: companyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

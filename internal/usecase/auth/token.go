package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// TokenUseCase verifies bearer tokens issued by the identity service. The subject
// claim carries the user id; the older numeric "user_id" claim is accepted too.
type TokenUseCase struct {
	jwtSecret string
}

func NewTokenUseCase(jwtSecret string) *TokenUseCase {
	return &TokenUseCase{jwtSecret: jwtSecret}
}

// IssueToken signs a token for userID. Used by local tooling and tests.
func (uc *TokenUseCase) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
	})
	return token.SignedString([]byte(uc.jwtSecret))
}

// VerifyToken verifies the token and returns the user id it was issued for
func (uc *TokenUseCase) VerifyToken(ctx context.Context, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return []byte(uc.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return "", domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", domain.ErrInvalidToken
	}

	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	switch v := claims["user_id"].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return strconv.FormatInt(int64(v), 10), nil
	}
	return "", fmt.Errorf("%w: no subject", domain.ErrInvalidToken)
}

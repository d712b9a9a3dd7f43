package auth

import (
	"errors"
	"fmt"
	"time"

	"git.0xdad.com/tblyler/mymed/apperr"
	"git.0xdad.com/tblyler/mymed/db"
	"github.com/golang-jwt/jwt/v4"
)

const issuer = "mymed"

// Claims of a session token
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Tokens issues and validates HS256 session tokens
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

// NewTokens signing with secret
func NewTokens(secret []byte, ttl time.Duration) *Tokens {
	return &Tokens{secret: secret, ttl: ttl}
}

// Issue a token for user valid from now
func (t *Tokens) Issue(user *db.User, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(t.ttl)

	claims := &Claims{
		UserID:   user.ID.String(),
		Username: user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("could not sign token: %w", err)
	}

	return token, expiresAt, nil
}

// Validate a token and return its claims
func (t *Tokens) Validate(token string) (*Claims, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		return t.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		switch {
		case errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorMalformed != 0:
			return nil, fmt.Errorf("%w: token is malformed", apperr.ErrPermission)
		case errors.As(err, &ve) && ve.Errors&(jwt.ValidationErrorExpired|jwt.ValidationErrorNotValidYet) != 0:
			return nil, fmt.Errorf("%w: token is expired or not active yet", apperr.ErrPermission)
		default:
			return nil, fmt.Errorf("%w: couldn't handle this token: %v", apperr.ErrPermission, err)
		}
	}

	if !parsed.Valid {
		return nil, fmt.Errorf("%w: token is invalid", apperr.ErrPermission)
	}

	return claims, nil
}

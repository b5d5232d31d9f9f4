package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Staff identifies an authenticated restaurant staff member. Identity itself
// lives in the restaurant back office; this service only verifies the tokens
// it issues.
type Staff struct {
	ID   string
	Name string
	Role string
}

// Claims carried by the staff access token.
type Claims struct {
	StaffID string `json:"staff_id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier validates staff access tokens.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// VerifyToken validates an HS256 staff token and returns its claims.
func (v *TokenVerifier) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// GenerateToken issues a staff token, used by the seeder and by tests.
func (v *TokenVerifier) GenerateToken(staffID, name, role string, ttl time.Duration) (string, error) {
	claims := &Claims{
		StaffID: staffID,
		Name:    name,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   staffID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

type contextKey string

const staffContextKey contextKey = "staff"

// StaffToContext stores the authenticated staff member on the context.
func StaffToContext(ctx context.Context, staff *Staff) context.Context {
	return context.WithValue(ctx, staffContextKey, staff)
}

// StaffFromContext retrieves the authenticated staff member.
func StaffFromContext(ctx context.Context) (*Staff, bool) {
	staff, ok := ctx.Value(staffContextKey).(*Staff)
	return staff, ok
}

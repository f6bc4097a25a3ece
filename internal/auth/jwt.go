// Package auth verifies opaque identity tokens for the HTTP layer
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMissingToken means the request carried no bearer token
	ErrMissingToken = errors.New("missing authorization token")
	// ErrInvalidToken means the token failed verification
	ErrInvalidToken = errors.New("invalid authorization token")
)

// Identity is the caller established by an Authenticator
type Identity struct {
	Subject string
	TokenID string
}

// Authenticator turns an Authorization header into an Identity. Handlers
// only see the Identity, never the token.
type Authenticator interface {
	Authenticate(ctx context.Context, authHeader string) (*Identity, error)
}

// Claims are the JWT claims issued by this service
type Claims struct {
	jwt.RegisteredClaims
}

// JWTAuthenticator validates and issues HS256 tokens
type JWTAuthenticator struct {
	secretKey []byte
	issuer    string
	ttl       time.Duration
}

// NewJWTAuthenticator creates a new JWT authenticator
func NewJWTAuthenticator(secretKey []byte, issuer string, ttl time.Duration) *JWTAuthenticator {
	return &JWTAuthenticator{
		secretKey: secretKey,
		issuer:    issuer,
		ttl:       ttl,
	}
}

// Authenticate validates a "Bearer <token>" header
func (a *JWTAuthenticator) Authenticate(ctx context.Context, authHeader string) (*Identity, error) {
	tokenString, err := extractBearerToken(authHeader)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Identity{Subject: claims.Subject, TokenID: claims.ID}, nil
}

// GenerateToken issues a token for subject valid for the configured TTL
func (a *JWTAuthenticator) GenerateToken(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secretKey)
}

// extractBearerToken extracts the token from a "Bearer <token>" header
func extractBearerToken(authHeader string) (string, error) {
	if strings.TrimSpace(authHeader) == "" {
		return "", ErrMissingToken
	}
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", fmt.Errorf("%w: expected Bearer scheme", ErrInvalidToken)
	}
	return parts[1], nil
}

package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Host is the stable identity the external identity provider vouches for.
type Host struct {
	ID          uuid.UUID
	DisplayName string
}

// Provider verifies a host credential into a stable user identifier.
// Participants join anonymously and never pass through here.
type Provider interface {
	Verify(token string) (Host, error)
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims carried by host tokens.
type Claims struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	jwt.RegisteredClaims
}

// TokenConfig holds verification configuration.
type TokenConfig struct {
	Secret []byte
	Issuer string
}

// TokenVerifier is a JWT-backed Provider.
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier creates a verifier for HS256 host tokens.
func NewTokenVerifier(cfg TokenConfig) *TokenVerifier {
	return &TokenVerifier{secret: cfg.Secret, issuer: cfg.Issuer}
}

// Verify parses and validates a host token.
func (v *TokenVerifier) Verify(token string) (Host, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Host{}, ErrExpiredToken
		}
		return Host{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Host{}, ErrInvalidToken
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return Host{}, fmt.Errorf("%w: wrong issuer", ErrInvalidToken)
	}
	if claims.UserID == uuid.Nil {
		return Host{}, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return Host{ID: claims.UserID, DisplayName: claims.DisplayName}, nil
}

// Issue signs a host token. Exposed for tests and local tooling; production
// tokens come from the identity provider that owns the shared secret.
func (v *TokenVerifier) Issue(host Host, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := Claims{
		UserID:      host.ID,
		DisplayName: host.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   host.ID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Package auth issues and inspects the domain-scoped tokens handed to
// user code.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/andrescamacho/takaro-connector/internal/domain/execution"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// DomainClaims is the claim set of a domain token
type DomainClaims struct {
	DomainID string `json:"domainId"`
	jwt.RegisteredClaims
}

// LocalIssuer signs HS256 domain tokens itself, for deployments without a
// platform token endpoint.
type LocalIssuer struct {
	key    []byte
	ttl    time.Duration
	issuer string
	clock  shared.Clock
}

func NewLocalIssuer(signingKey string, ttl time.Duration, issuer string, clock shared.Clock) (*LocalIssuer, error) {
	if signingKey == "" {
		return nil, shared.NewValidationError("auth.signing_key", "required in local mode")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if issuer == "" {
		issuer = "takaro-connector"
	}
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &LocalIssuer{key: []byte(signingKey), ttl: ttl, issuer: issuer, clock: clock}, nil
}

// Token implements execution.TokenSource
func (i *LocalIssuer) Token(ctx context.Context, domainID string) (string, error) {
	now := i.clock.Now()
	claims := DomainClaims{
		DomainID: domainID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "connector",
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of a token this issuer signed
func (i *LocalIssuer) Verify(token string) (*DomainClaims, error) {
	claims := &DomainClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.clock.Now))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

// ReadClaims decodes a token's claims without checking its signature.
// Platform tokens are signed with keys the connector never sees.
func ReadClaims(token string) (*DomainClaims, error) {
	claims := &DomainClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("malformed token: %w", err)
	}
	return claims, nil
}

// CheckDomain returns a ValidationError unless token names domainID
func CheckDomain(token, domainID string) error {
	claims, err := ReadClaims(token)
	if err != nil {
		return shared.NewValidationError("token", err.Error())
	}
	if claims.DomainID != domainID {
		return shared.NewValidationError("token", fmt.Sprintf("scoped to domain %q, not %q", claims.DomainID, domainID))
	}
	return nil
}

// ExpiresWithin reports whether token is unreadable or expires before now+margin
func ExpiresWithin(token string, now time.Time, margin time.Duration) bool {
	claims, err := ReadClaims(token)
	if err != nil || claims.ExpiresAt == nil {
		return err != nil
	}
	return !claims.ExpiresAt.Time.After(now.Add(margin))
}

// CachingSource reuses a domain's token until it is about to expire
type CachingSource struct {
	source execution.TokenSource
	clock  shared.Clock
	margin time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

func NewCachingSource(source execution.TokenSource, margin time.Duration, clock shared.Clock) *CachingSource {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &CachingSource{source: source, clock: clock, margin: margin, tokens: make(map[string]string)}
}

func (c *CachingSource) Token(ctx context.Context, domainID string) (string, error) {
	c.mu.Lock()
	cached, ok := c.tokens[domainID]
	c.mu.Unlock()
	if ok && !ExpiresWithin(cached, c.clock.Now(), c.margin) {
		return cached, nil
	}

	token, err := c.source.Token(ctx, domainID)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errors.New("token source returned an empty token")
	}

	c.mu.Lock()
	c.tokens[domainID] = token
	c.mu.Unlock()
	return token, nil
}

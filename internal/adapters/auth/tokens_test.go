package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

func TestLocalIssuer_TokenCarriesDomainClaim(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Now())
	issuer, err := NewLocalIssuer("secret", time.Minute, "", clock)
	require.NoError(t, err)

	// Act
	token, err := issuer.Token(context.Background(), "dom-1")
	require.NoError(t, err)
	claims, err := issuer.Verify(token)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "dom-1", claims.DomainID)
	assert.Equal(t, "takaro-connector", claims.Issuer)
	assert.NoError(t, CheckDomain(token, "dom-1"))
}

func TestLocalIssuer_VerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	clock := shared.NewMockClock(time.Now())
	issuer, err := NewLocalIssuer("secret", time.Minute, "", clock)
	require.NoError(t, err)
	other, err := NewLocalIssuer("other-secret", time.Minute, "", clock)
	require.NoError(t, err)

	token, err := issuer.Token(context.Background(), "dom-1")
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.Error(t, err, "wrong key")

	clock.Advance(2 * time.Minute)
	_, err = issuer.Verify(token)
	assert.Error(t, err, "expired")
}

func TestCheckDomain_Mismatch(t *testing.T) {
	issuer, err := NewLocalIssuer("secret", time.Minute, "", nil)
	require.NoError(t, err)
	token, err := issuer.Token(context.Background(), "dom-1")
	require.NoError(t, err)

	err = CheckDomain(token, "dom-2")

	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "token", verr.Field)
	assert.Error(t, CheckDomain("not-a-jwt", "dom-1"))
}

type countingSource struct {
	issuer *LocalIssuer
	calls  int
}

func (c *countingSource) Token(ctx context.Context, domainID string) (string, error) {
	c.calls++
	return c.issuer.Token(ctx, domainID)
}

func TestCachingSource_RefreshesNearExpiry(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Now())
	issuer, err := NewLocalIssuer("secret", 10*time.Minute, "", clock)
	require.NoError(t, err)
	src := &countingSource{issuer: issuer}
	cache := NewCachingSource(src, time.Minute, clock)
	ctx := context.Background()

	// Act
	first, err := cache.Token(ctx, "dom-1")
	require.NoError(t, err)
	second, err := cache.Token(ctx, "dom-1")
	require.NoError(t, err)
	clock.Advance(9*time.Minute + 30*time.Second)
	_, err = cache.Token(ctx, "dom-1")
	require.NoError(t, err)

	// Assert
	assert.Equal(t, first, second)
	assert.Equal(t, 2, src.calls)
}

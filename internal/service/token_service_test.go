package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sentinel/internal/model"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

func newTestTokenService(t *testing.T) (*TokenService, *memLedgerStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	ledger := newMemLedgerStore(clock)
	svc := NewTokenService(ledger, []byte(testSigningKey), "Sentinel", time.Hour, 7*24*time.Hour, zap.NewNop())
	return svc, ledger, clock
}

func TestTokenRoundTrip(t *testing.T) {
	svc, _, _ := newTestTokenService(t)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "user-1", model.TokenTypeAccess)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, model.TokenTypeAccess, claims.TokenType)
	assert.Equal(t, "Sentinel", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenRevokeThenValidate(t *testing.T) {
	svc, _, _ := newTestTokenService(t)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "user-1", model.TokenTypeAccess)
	require.NoError(t, err)

	revoked, err := svc.Revoke(ctx, token)
	require.NoError(t, err)
	assert.True(t, revoked)

	_, err = svc.Validate(ctx, token)
	assert.ErrorIs(t, err, model.ErrTokenRevoked)
}

func TestTokenRevokeIdempotent(t *testing.T) {
	svc, _, _ := newTestTokenService(t)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "user-1", model.TokenTypeRefresh)
	require.NoError(t, err)

	first, err := svc.Revoke(ctx, token)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := svc.Revoke(ctx, token)
	require.NoError(t, err)
	assert.True(t, second)
}

func TestTokenMalformed(t *testing.T) {
	svc, _, _ := newTestTokenService(t)
	ctx := context.Background()

	_, err := svc.Validate(ctx, "not-a-token")
	assert.ErrorIs(t, err, model.ErrTokenMalformed)

	revoked, err := svc.Revoke(ctx, "not-a-token")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestTokenWrongKeyRejected(t *testing.T) {
	svc, ledger, _ := newTestTokenService(t)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "user-1", model.TokenTypeAccess)
	require.NoError(t, err)

	other := NewTokenService(ledger, []byte("ffffffffffffffffffffffffffffffff"), "Sentinel", time.Hour, 7*24*time.Hour, zap.NewNop())
	_, err = other.Validate(ctx, token)
	assert.ErrorIs(t, err, model.ErrTokenMalformed)
}

func TestTokenExpired(t *testing.T) {
	svc, _, _ := newTestTokenService(t)
	ctx := context.Background()

	// Backdate issuance so the token arrives already expired.
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := svc.Issue(ctx, "user-1", model.TokenTypeAccess)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, token)
	assert.ErrorIs(t, err, model.ErrTokenExpired)
}

func TestTokenMissingLedgerEntryMeansRevoked(t *testing.T) {
	svc, ledger, _ := newTestTokenService(t)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "user-1", model.TokenTypeAccess)
	require.NoError(t, err)

	// Simulate the crash-between-sign-and-write case: ledger entry gone
	// while the signature is still valid.
	for jti := range ledger.entries {
		require.NoError(t, ledger.Delete(ctx, jti))
	}
	_, err = svc.Validate(ctx, token)
	assert.ErrorIs(t, err, model.ErrTokenRevoked)
}

func TestTokenValidateFailsClosedWhenLedgerDown(t *testing.T) {
	svc, ledger, _ := newTestTokenService(t)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "user-1", model.TokenTypeAccess)
	require.NoError(t, err)

	ledger.failing = true
	_, err = svc.Validate(ctx, token)
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
}

func TestTokenRefreshTTLLongerThanAccess(t *testing.T) {
	svc, _, clock := newTestTokenService(t)
	ctx := context.Background()

	access, err := svc.Issue(ctx, "user-1", model.TokenTypeAccess)
	require.NoError(t, err)
	refresh, err := svc.Issue(ctx, "user-1", model.TokenTypeRefresh)
	require.NoError(t, err)

	// Past the access TTL, the access ledger entry has lapsed while the
	// refresh entry survives.
	clock.Advance(time.Hour + time.Minute)

	_, err = svc.Validate(ctx, access)
	assert.Error(t, err)

	claims, err := svc.Validate(ctx, refresh)
	require.NoError(t, err)
	assert.Equal(t, model.TokenTypeRefresh, claims.TokenType)
}

package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sentinel/internal/client"
	"sentinel/internal/util"
)

const ledgerPrefix = "jwt:"

// TokenLedgerCache is the server-side revocation ledger. An entry exists for
// exactly as long as its token could still be accepted; deleting the entry
// revokes the token, and natural expiry needs no cleanup.
type TokenLedgerCache struct {
	client *client.RedisClient
}

func NewTokenLedgerCache(client *client.RedisClient) *TokenLedgerCache {
	return &TokenLedgerCache{client: client}
}

func (c *TokenLedgerCache) Put(ctx context.Context, jti string, payload []byte, ttl time.Duration) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, ledgerPrefix+jti, payload, ttl); err != nil {
		util.Error("Failed to write revocation ledger entry",
			zap.String("jti", jti),
			zap.Error(err))
		return fmt.Errorf("failed to write ledger entry: %w", err)
	}
	return nil
}

func (c *TokenLedgerCache) Get(ctx context.Context, jti string) (string, bool, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	val, found, err := c.client.Get(ctx, ledgerPrefix+jti)
	if err != nil {
		return "", false, fmt.Errorf("failed to read ledger entry: %w", err)
	}
	return val, found, nil
}

// Delete removes a ledger entry. Deleting an absent entry is not an error;
// revocation is idempotent.
func (c *TokenLedgerCache) Delete(ctx context.Context, jti string) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	if _, err := c.client.Del(ctx, ledgerPrefix+jti); err != nil {
		return fmt.Errorf("failed to delete ledger entry: %w", err)
	}
	return nil
}

package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sentinel/internal/client"
	"sentinel/internal/util"
)

const (
	mfaSetupPrefix  = "mfa_setup:"
	mfaSecretPrefix = "mfa_secret:"
)

// MFACache stages encrypted TOTP secrets during enrollment and holds the
// active secret once enrollment is confirmed. The staged entry carries a
// short TTL; an unconfirmed enrollment simply evaporates.
type MFACache struct {
	client *client.RedisClient
}

func NewMFACache(client *client.RedisClient) *MFACache {
	return &MFACache{client: client}
}

func (c *MFACache) StageSecret(ctx context.Context, userID, encryptedSecret string, ttl time.Duration) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, mfaSetupPrefix+userID, encryptedSecret, ttl); err != nil {
		util.Error("Failed to stage MFA secret",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to stage mfa secret: %w", err)
	}
	return nil
}

func (c *MFACache) StagedSecret(ctx context.Context, userID string) (string, bool, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	val, found, err := c.client.Get(ctx, mfaSetupPrefix+userID)
	if err != nil {
		return "", false, fmt.Errorf("failed to read staged mfa secret: %w", err)
	}
	return val, found, nil
}

func (c *MFACache) DeleteStaged(ctx context.Context, userID string) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	if _, err := c.client.Del(ctx, mfaSetupPrefix+userID); err != nil {
		return fmt.Errorf("failed to delete staged mfa secret: %w", err)
	}
	return nil
}

// ActivateSecret promotes a confirmed secret to the user's long-lived
// factor. No TTL: the active factor lives until explicitly replaced.
func (c *MFACache) ActivateSecret(ctx context.Context, userID, encryptedSecret string) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, mfaSecretPrefix+userID, encryptedSecret, 0); err != nil {
		util.Error("Failed to activate MFA secret",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to activate mfa secret: %w", err)
	}
	return nil
}

func (c *MFACache) ActiveSecret(ctx context.Context, userID string) (string, bool, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	val, found, err := c.client.Get(ctx, mfaSecretPrefix+userID)
	if err != nil {
		return "", false, fmt.Errorf("failed to read mfa secret: %w", err)
	}
	return val, found, nil
}

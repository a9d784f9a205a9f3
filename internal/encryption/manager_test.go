package encryption

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/config"
)

func newTestManager() *Manager {
	cfg := &config.Config{}
	cfg.Security.SecretKey = "unit-test-secret-key-0123456789abcdef"
	return NewManager(cfg, nil)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	a := DeriveKey("some-operator-secret")
	b := DeriveKey("some-operator-secret")
	c := DeriveKey("another-operator-secret")

	assert.Len(t, a, 32)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestEncryptDecryptField(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	envelope, err := m.EncryptField(ctx, "JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.NotEmpty(t, envelope.EncryptedValue)
	assert.NotEmpty(t, envelope.EncryptedDEK)
	assert.Equal(t, "v1", envelope.Version)

	plaintext, err := m.DecryptField(ctx, envelope)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", plaintext)
}

func TestDecryptFieldWithoutCachedDEK(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	envelope, err := m.EncryptField(ctx, "sensitive value")
	require.NoError(t, err)

	// Drop the unwrapped DEK so decryption must unwrap through the master key.
	m.ClearCache()

	plaintext, err := m.DecryptField(ctx, envelope)
	require.NoError(t, err)
	assert.Equal(t, "sensitive value", plaintext)
}

func TestEncryptFieldProducesUniqueCiphertexts(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	first, err := m.EncryptField(ctx, "same plaintext")
	require.NoError(t, err)
	second, err := m.EncryptField(ctx, "same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first.EncryptedValue, second.EncryptedValue)
	assert.NotEqual(t, first.EncryptedDEK, second.EncryptedDEK)
}

func TestEncryptDecryptSensitive(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	token, err := m.EncryptSensitive(ctx, "JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.NotContains(t, token, "JBSWY3DPEHPK3PXP")

	plaintext, err := m.DecryptSensitive(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", plaintext)
}

func TestDecryptSensitiveRejectsGarbage(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	_, err := m.DecryptSensitive(ctx, "%%% not base64 %%%")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = m.DecryptSensitive(ctx, "bm90LWFuLWVudmVsb3Bl")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptAcrossManagersWithSameSecret(t *testing.T) {
	ctx := context.Background()
	first := newTestManager()

	token, err := first.EncryptSensitive(ctx, "shared secret material")
	require.NoError(t, err)

	// A fresh process deriving the same master key can open the envelope.
	second := newTestManager()
	plaintext, err := second.DecryptSensitive(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "shared secret material", plaintext)
}

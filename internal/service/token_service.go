package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sentinel/internal/model"
)

// LedgerStore holds one entry per live token, keyed by jti, expiring with
// the token. Presence in the ledger is what makes a signed token valid.
type LedgerStore interface {
	Put(ctx context.Context, jti string, payload []byte, ttl time.Duration) error
	Get(ctx context.Context, jti string) (string, bool, error)
	Delete(ctx context.Context, jti string) error
}

// TokenService issues and validates HMAC-signed bearer tokens with
// server-side revocation. Validation fails closed: if the ledger cannot be
// reached, no token is accepted.
type TokenService struct {
	ledger     LedgerStore
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewTokenService(ledger LedgerStore, signingKey []byte, issuer string, accessTTL, refreshTTL time.Duration, logger *zap.Logger) *TokenService {
	return &TokenService{
		ledger:     ledger,
		signingKey: signingKey,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *TokenService) ttlFor(tokenType model.TokenType) time.Duration {
	if tokenType == model.TokenTypeRefresh {
		return s.refreshTTL
	}
	return s.accessTTL
}

// Issue mints a signed token and registers its ledger entry. The ledger
// write happens before the token is returned; an unregistered token is
// never handed out.
func (s *TokenService) Issue(ctx context.Context, userID string, tokenType model.TokenType) (string, error) {
	issuedAt := s.now().UTC()
	ttl := s.ttlFor(tokenType)
	jti := uuid.NewString()

	claims := model.TokenClaims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	entry, err := json.Marshal(model.LedgerEntry{Subject: userID, TokenType: tokenType})
	if err != nil {
		return "", fmt.Errorf("failed to encode ledger entry: %w", err)
	}
	if err := s.ledger.Put(ctx, jti, entry, ttl); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}

	s.logger.Info("Token issued",
		zap.String("user_id", userID),
		zap.String("token_type", string(tokenType)),
		zap.String("jti", jti),
	)
	return signed, nil
}

// Validate verifies signature, expiry, and ledger presence, in that order.
// A well-formed unexpired token whose ledger entry is gone was revoked.
func (s *TokenService) Validate(ctx context.Context, tokenString string) (*model.TokenClaims, error) {
	claims := &model.TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", model.ErrTokenMalformed, err)
	}

	jti := claims.ID
	if jti == "" {
		return nil, model.ErrTokenMalformed
	}

	_, found, err := s.ledger.Get(ctx, jti)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	if !found {
		return nil, model.ErrTokenRevoked
	}
	return claims, nil
}

// Revoke invalidates a token by deleting its ledger entry. A malformed
// token revokes nothing and reports false; revoking twice succeeds.
func (s *TokenService) Revoke(ctx context.Context, tokenString string) (bool, error) {
	claims := &model.TokenClaims{}
	// Expired tokens can still be revoked early relative to a clock-skewed
	// verifier, so claim validation is skipped here.
	_, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || claims.ID == "" {
		return false, nil
	}

	if err := s.ledger.Delete(ctx, claims.ID); err != nil {
		return false, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}

	s.logger.Info("Token revoked",
		zap.String("user_id", claims.Subject),
		zap.String("jti", claims.ID),
	)
	return true, nil
}

func (s *TokenService) keyFunc(_ *jwt.Token) (any, error) {
	return s.signingKey, nil
}

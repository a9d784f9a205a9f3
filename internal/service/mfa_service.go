package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"sentinel/internal/model"
)

// MFASecretStore keeps TOTP secrets in two slots: a short-lived staged slot
// for the enrollment handshake and a durable active slot.
type MFASecretStore interface {
	StageSecret(ctx context.Context, userID, encryptedSecret string, ttl time.Duration) error
	StagedSecret(ctx context.Context, userID string) (string, bool, error)
	DeleteStaged(ctx context.Context, userID string) error
	ActivateSecret(ctx context.Context, userID, encryptedSecret string) error
	ActiveSecret(ctx context.Context, userID string) (string, bool, error)
}

// SecretCipher seals secrets before they touch the store.
type SecretCipher interface {
	EncryptSensitive(ctx context.Context, plaintext string) (string, error)
	DecryptSensitive(ctx context.Context, token string) (string, error)
}

const (
	totpSecretSize = 32
	totpPeriod     = 30
	totpSkew       = 1
	qrCodeSize     = 256
)

// MFAService runs TOTP enrollment and verification. Verification attempts
// are throttled, and throttle trips are recorded as brute-force events
// rather than generic abuse.
type MFAService struct {
	secrets         MFASecretStore
	cipher          SecretCipher
	limiter         *RateLimiter
	events          *EventLog
	issuer          string
	setupTTL        time.Duration
	backupCodeCount int
	logger          *zap.Logger
	now             func() time.Time
}

func NewMFAService(secrets MFASecretStore, cipher SecretCipher, limiter *RateLimiter, events *EventLog, issuer string, setupTTL time.Duration, backupCodeCount int, logger *zap.Logger) *MFAService {
	return &MFAService{
		secrets:         secrets,
		cipher:          cipher,
		limiter:         limiter,
		events:          events,
		issuer:          issuer,
		setupTTL:        setupTTL,
		backupCodeCount: backupCodeCount,
		logger:          logger,
		now:             time.Now,
	}
}

// Enroll starts the enrollment handshake for the requested method. TOTP is
// the fully supported factor; SMS and email acknowledge the request without
// provisioning, and hardware keys are rejected outright.
func (s *MFAService) Enroll(ctx context.Context, userID, accountName string, method model.MFAMethod) (*model.MFAEnrollment, error) {
	switch method {
	case model.MFAMethodTOTP:
		return s.enrollTOTP(ctx, userID, accountName)
	case model.MFAMethodSMS:
		return &model.MFAEnrollment{
			Method:         method,
			Message:        "SMS MFA will be configured with your phone number",
			SetupExpiresIn: int(s.setupTTL.Seconds()),
		}, nil
	case model.MFAMethodEmail:
		return &model.MFAEnrollment{
			Method:         method,
			Message:        "Email MFA will be configured with your email address",
			SetupExpiresIn: int(s.setupTTL.Seconds()),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", model.ErrMFAMethodNotSupported, method)
	}
}

func (s *MFAService) enrollTOTP(ctx context.Context, userID, accountName string) (*model.MFAEnrollment, error) {
	if accountName == "" {
		accountName = userID
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
		SecretSize:  totpSecretSize,
		Period:      totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp key: %w", err)
	}

	encrypted, err := s.cipher.EncryptSensitive(ctx, key.Secret())
	if err != nil {
		return nil, fmt.Errorf("failed to protect totp secret: %w", err)
	}
	if err := s.secrets.StageSecret(ctx, userID, encrypted, s.setupTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}

	backupCodes, err := generateBackupCodes(s.backupCodeCount)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, qrCodeSize)
	if err != nil {
		// The provisioning URI alone is enough to enroll manually.
		s.logger.Warn("Failed to render enrollment QR code",
			zap.String("user_id", userID),
			zap.Error(err))
		png = nil
	}

	enrollment := &model.MFAEnrollment{
		Method:          model.MFAMethodTOTP,
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		BackupCodes:     backupCodes,
		SetupExpiresIn:  int(s.setupTTL.Seconds()),
	}
	if png != nil {
		enrollment.QRCodePNG = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	}

	s.logger.Info("MFA enrollment staged",
		zap.String("user_id", userID),
		zap.String("method", string(model.MFAMethodTOTP)),
	)
	return enrollment, nil
}

// ConfirmEnrollment promotes a staged secret to the active factor once the
// user proves possession with a valid code. The staged slot is consumed
// either way the handshake ends.
func (s *MFAService) ConfirmEnrollment(ctx context.Context, userID, code string) error {
	encrypted, found, err := s.secrets.StagedSecret(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	if !found {
		return model.ErrMFASetupExpired
	}

	secret, err := s.cipher.DecryptSensitive(ctx, encrypted)
	if err != nil {
		return fmt.Errorf("failed to recover staged totp secret: %w", err)
	}

	if !s.verifyCode(code, secret) {
		return model.ErrMFARejected
	}

	if err := s.secrets.ActivateSecret(ctx, userID, encrypted); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	if err := s.secrets.DeleteStaged(ctx, userID); err != nil {
		s.logger.Warn("Failed to clear staged MFA secret after activation",
			zap.String("user_id", userID),
			zap.Error(err))
	}

	s.logger.Info("MFA enrollment confirmed", zap.String("user_id", userID))
	return nil
}

// Validate checks a code against the user's active factor. Wrong codes,
// unsupported methods, and missing enrollment all report (false, nil); only
// infrastructure failures are errors. Attempts are throttled per user and
// IP, and a throttle trip is logged as brute force.
func (s *MFAService) Validate(ctx context.Context, userID, code string, method model.MFAMethod, reqCtx model.RequestContext) (bool, error) {
	ids := model.Identifiers{
		IPAddress: reqCtx.IPAddress,
		UserID:    userID,
		UserAgent: reqCtx.UserAgent,
	}

	// Every attempt spends quota, whatever the method; a flood of bogus
	// SMS validations is still a brute-force signal.
	if err := s.limiter.check(ctx, ActionMFAAttempt, ids); err != nil {
		if _, throttled := asRateLimited(err); throttled {
			s.logBruteForce(ctx, userID, reqCtx)
			return false, nil
		}
		return false, err
	}
	if err := s.limiter.Record(ctx, ActionMFAAttempt, ids); err != nil {
		return false, err
	}

	if method != model.MFAMethodTOTP {
		return false, nil
	}

	encrypted, found, err := s.secrets.ActiveSecret(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	if !found {
		return false, nil
	}

	secret, err := s.cipher.DecryptSensitive(ctx, encrypted)
	if err != nil {
		return false, fmt.Errorf("failed to recover totp secret: %w", err)
	}

	return s.verifyCode(code, secret), nil
}

func (s *MFAService) verifyCode(code, secret string) bool {
	valid, err := totp.ValidateCustom(strings.TrimSpace(code), secret, s.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}

func (s *MFAService) logBruteForce(ctx context.Context, userID string, reqCtx model.RequestContext) {
	event := newSecurityEvent(
		userID,
		model.ThreatBruteForce,
		model.SeverityHigh,
		reqCtx,
		map[string]any{
			"action":          ActionMFAAttempt,
			"mfa_brute_force": true,
		},
		0.8,
	)
	if err := s.events.Append(ctx, event); err != nil {
		s.logger.Error("Failed to log MFA brute force event",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// generateBackupCodes mints single-use recovery codes: short uppercase hex,
// easy to read back over a support call.
func generateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	buf := make([]byte, 4)
	for i := 0; i < n; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate backup codes: %w", err)
		}
		codes = append(codes, strings.ToUpper(hex.EncodeToString(buf)))
	}
	return codes, nil
}

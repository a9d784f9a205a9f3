package service

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"sentinel/internal/model"
)

const (
	specialCharset = "!@#$%^&*()_+-=[]{}|;:,.<>?"

	minPasswordLength = 12
	maxPasswordLength = 128
	minEntropyBits    = 50.0
	suggestionCutoff  = 80

	// Crack-time model: a single modern GPU rig, average case.
	guessesPerSecond = 1e9

	baselineHashCost = 10
	maxProbedCost    = 15
	cappedHashCost   = 12
	targetHashTime   = 250 * time.Millisecond
)

var commonPasswords = []string{"password123", "admin123", "sentinel123"}

var passwordSuggestions = []string{
	"Use a passphrase with multiple words",
	"Include numbers and special characters",
	"Make it at least 16 characters long",
	"Avoid predictable patterns",
}

// CredentialPolicy scores password strength and owns the adaptive bcrypt
// cost. Policy verdicts are returned, never logged as security events;
// a weak password is the user's problem, not a threat signal.
type CredentialPolicy struct {
	logger *zap.Logger

	mu       sync.Mutex
	hashCost int
}

func NewCredentialPolicy(logger *zap.Logger) *CredentialPolicy {
	return &CredentialPolicy{
		logger:   logger,
		hashCost: cappedHashCost,
	}
}

// Validate applies every rule and reports all failures at once, so the
// caller can show the user the full list instead of one issue per attempt.
func (p *CredentialPolicy) Validate(password string, userCtx model.UserContext) *model.PasswordValidation {
	result := &model.PasswordValidation{
		Issues:            []string{},
		Suggestions:       []string{},
		CrackTimeEstimate: "unknown",
	}

	length := utf8.RuneCountInString(password)
	if length < minPasswordLength {
		result.Issues = append(result.Issues, "Password must be at least 12 characters long")
	}
	if length > maxPasswordLength {
		result.Issues = append(result.Issues, "Password is too long (max 128 characters)")
	}

	hasUpper, hasLower, hasDigit, hasSpecial := characterClasses(password)

	score := 0
	if hasUpper {
		score += 25
	}
	if hasLower {
		score += 25
	}
	if hasDigit {
		score += 25
	}
	if hasSpecial {
		score += 25
	}

	if !hasUpper {
		result.Issues = append(result.Issues, "Add uppercase letters")
	}
	if !hasLower {
		result.Issues = append(result.Issues, "Add lowercase letters")
	}
	if !hasDigit {
		result.Issues = append(result.Issues, "Add numbers")
	}
	if !hasSpecial {
		result.Issues = append(result.Issues, "Add special characters")
	}

	lowered := strings.ToLower(password)
	for _, common := range commonPasswords {
		if lowered == common {
			result.Issues = append(result.Issues, "Password is too common")
			score -= 50
			break
		}
	}

	if name := strings.ToLower(userCtx.Name); name != "" && strings.Contains(lowered, name) {
		result.Issues = append(result.Issues, "Password should not contain your name")
		score -= 30
	}
	if local := emailLocalPart(userCtx.Email); local != "" && strings.Contains(lowered, local) {
		result.Issues = append(result.Issues, "Password should not contain your email")
		score -= 30
	}

	entropy := passwordEntropy(password)
	if entropy < minEntropyBits {
		result.Issues = append(result.Issues, "Password has low entropy")
	}
	result.CrackTimeEstimate = estimateCrackTime(entropy)

	result.StrengthScore = clampScore(score)
	result.Valid = len(result.Issues) == 0

	if result.StrengthScore < suggestionCutoff {
		result.Suggestions = append(result.Suggestions, passwordSuggestions...)
	}

	return result
}

// HashPassword hashes at the calibrated cost.
func (p *CredentialPolicy) HashPassword(password string) (string, error) {
	p.mu.Lock()
	cost := p.hashCost
	p.mu.Unlock()

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func (p *CredentialPolicy) VerifyPassword(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}

// CalibrateHashCost benchmarks bcrypt on this host and fixes the cost used
// for the life of the process. CPU-bound; run it from startup, never from a
// request path.
func (p *CredentialPolicy) CalibrateHashCost() int {
	const probe = "calibration_probe_password"

	cost := baselineHashCost
	for cost < maxProbedCost {
		start := time.Now()
		if _, err := bcrypt.GenerateFromPassword([]byte(probe), cost); err != nil {
			p.logger.Warn("Hash cost calibration aborted",
				zap.Int("cost", cost),
				zap.Error(err))
			break
		}
		if time.Since(start) >= targetHashTime {
			break
		}
		cost++
	}
	if cost > cappedHashCost {
		cost = cappedHashCost
	}

	p.mu.Lock()
	p.hashCost = cost
	p.mu.Unlock()

	p.logger.Info("Password hash cost calibrated", zap.Int("cost", cost))
	return cost
}

func characterClasses(password string) (hasUpper, hasLower, hasDigit, hasSpecial bool) {
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specialCharset, r):
			hasSpecial = true
		}
	}
	return
}

// passwordEntropy is the Shannon-style estimate over the character classes
// actually present: length * log2(total class size).
func passwordEntropy(password string) float64 {
	hasUpper, hasLower, hasDigit, hasSpecial := characterClasses(password)

	charsetSize := 0
	if hasLower {
		charsetSize += 26
	}
	if hasUpper {
		charsetSize += 26
	}
	if hasDigit {
		charsetSize += 10
	}
	if hasSpecial {
		charsetSize += 32
	}
	if charsetSize == 0 {
		return 0
	}
	return float64(utf8.RuneCountInString(password)) * math.Log2(float64(charsetSize))
}

// emailLocalPart returns the lowercased part of the address before the "@",
// or "" when no email is known.
func emailLocalPart(email string) string {
	local, _, _ := strings.Cut(strings.ToLower(email), "@")
	return local
}

func estimateCrackTime(entropy float64) string {
	seconds := math.Pow(2, entropy) / (2 * guessesPerSecond)

	switch {
	case seconds < 60:
		return "Less than 1 minute"
	case seconds < 3600:
		return fmt.Sprintf("%d minutes", int(seconds/60))
	case seconds < 86400:
		return fmt.Sprintf("%d hours", int(seconds/3600))
	case seconds < 31536000:
		return fmt.Sprintf("%d days", int(seconds/86400))
	default:
		return fmt.Sprintf("%.0f years", seconds/31536000)
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

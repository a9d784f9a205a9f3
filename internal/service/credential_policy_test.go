package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"sentinel/internal/model"
)

func newTestPolicy() *CredentialPolicy {
	policy := NewCredentialPolicy(zap.NewNop())
	// Keep test hashing fast.
	policy.hashCost = bcrypt.MinCost
	return policy
}

func TestValidateReportsMissingCharacterClasses(t *testing.T) {
	policy := newTestPolicy()

	cases := []struct {
		name     string
		password string
		issue    string
	}{
		{"missing uppercase", "longpassword123!!", "Add uppercase letters"},
		{"missing lowercase", "LONGPASSWORD123!!", "Add lowercase letters"},
		{"missing digits", "LongPasswordABC!!", "Add numbers"},
		{"missing special", "LongPassword12345", "Add special characters"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := policy.Validate(tc.password, model.UserContext{})
			assert.Contains(t, result.Issues, tc.issue)
			assert.False(t, result.Valid)
			assert.Equal(t, 75, result.StrengthScore)
		})
	}
}

func TestValidateStrongPassword(t *testing.T) {
	policy := newTestPolicy()

	result := policy.Validate("Tr4vels&Maps!Window9", model.UserContext{Name: "Alice", Email: "alice.w@example.com"})
	assert.True(t, result.Valid)
	assert.Equal(t, 100, result.StrengthScore)
	assert.Empty(t, result.Issues)
	assert.Empty(t, result.Suggestions)
	assert.Contains(t, result.CrackTimeEstimate, "years")
}

func TestValidateLengthBounds(t *testing.T) {
	policy := newTestPolicy()

	short := policy.Validate("Ab1!", model.UserContext{})
	assert.Contains(t, short.Issues, "Password must be at least 12 characters long")

	long := make([]byte, 130)
	for i := range long {
		long[i] = 'a'
	}
	oversized := policy.Validate(string(long), model.UserContext{})
	assert.Contains(t, oversized.Issues, "Password is too long (max 128 characters)")
}

func TestValidateCommonPasswordPenalty(t *testing.T) {
	policy := newTestPolicy()

	result := policy.Validate("Password123", model.UserContext{})
	assert.Contains(t, result.Issues, "Password is too common")
	assert.False(t, result.Valid)
	// upper+lower+digit = 75, minus the denylist penalty.
	assert.Equal(t, 25, result.StrengthScore)
	assert.NotEmpty(t, result.Suggestions)
}

func TestValidatePersonalInformation(t *testing.T) {
	policy := newTestPolicy()
	userCtx := model.UserContext{Name: "Marisol", Email: "mgarcia@example.com"}

	withName := policy.Validate("Marisol#Spring2025", userCtx)
	assert.Contains(t, withName.Issues, "Password should not contain your name")

	withEmail := policy.Validate("Mgarcia#Spring2025", userCtx)
	assert.Contains(t, withEmail.Issues, "Password should not contain your email")
	// All four classes = 100, minus the personal-info penalty.
	assert.Equal(t, 70, withEmail.StrengthScore)

	// Only the local part matters; the domain never matches.
	withDomain := policy.Validate("Example#Spring2025", userCtx)
	assert.NotContains(t, withDomain.Issues, "Password should not contain your email")

	// An unknown email must not match every password.
	noEmail := policy.Validate("Tr4vels&Maps!Window9", model.UserContext{})
	assert.NotContains(t, noEmail.Issues, "Password should not contain your email")
}

func TestValidateCountsCharactersNotBytes(t *testing.T) {
	policy := newTestPolicy()

	// Six characters, twelve bytes: still far below the minimum length.
	result := policy.Validate("Пароль", model.UserContext{})
	assert.Contains(t, result.Issues, "Password must be at least 12 characters long")

	// Entropy scales with characters, not encoded size.
	assert.InDelta(t, 12*math.Log2(52), passwordEntropy("ÄäÄäÄäÄäÄäÄä"), 0.0001)
}

func TestEntropyNonNegativeAndCrackTimeMonotone(t *testing.T) {
	passwords := []string{
		"",
		"aaaa",
		"aaaaaaaaaaaa",
		"aAaAaAaAaAaA",
		"aA1aA1aA1aA1",
		"aA1!aA1!aA1!aA1!",
		"aA1!aA1!aA1!aA1!aA1!aA1!aA1!",
	}

	crackTimeRank := map[string]int{
		"Less than 1 minute": 0,
		"minutes":            1,
		"hours":              2,
		"days":               3,
		"years":              4,
	}
	rankOf := func(estimate string) int {
		for suffix, rank := range crackTimeRank {
			if len(estimate) >= len(suffix) && estimate[len(estimate)-len(suffix):] == suffix {
				return rank
			}
		}
		t.Fatalf("unexpected crack time estimate %q", estimate)
		return -1
	}

	prevEntropy := -1.0
	prevRank := -1
	for _, password := range passwords {
		entropy := passwordEntropy(password)
		require.GreaterOrEqual(t, entropy, 0.0)
		require.GreaterOrEqual(t, entropy, prevEntropy, "entropy must not decrease for %q", password)

		rank := rankOf(estimateCrackTime(entropy))
		assert.GreaterOrEqual(t, rank, prevRank, "crack time must not decrease for %q", password)

		prevEntropy = entropy
		prevRank = rank
	}
}

func TestLowEntropyFlagged(t *testing.T) {
	policy := newTestPolicy()

	// 12 lowercase chars: 12 * log2(26) ≈ 56 bits, above the floor.
	ok := policy.Validate("abcdefghijkl", model.UserContext{})
	assert.NotContains(t, ok.Issues, "Password has low entropy")

	weak := policy.Validate("abcdefghij", model.UserContext{})
	assert.Contains(t, weak.Issues, "Password has low entropy")
}

func TestHashAndVerifyPassword(t *testing.T) {
	policy := newTestPolicy()

	hashed, err := policy.HashPassword("Tr4vels&Maps!Window9")
	require.NoError(t, err)
	assert.NotEqual(t, "Tr4vels&Maps!Window9", hashed)

	assert.True(t, policy.VerifyPassword(hashed, "Tr4vels&Maps!Window9"))
	assert.False(t, policy.VerifyPassword(hashed, "wrong-password"))
}

func TestCalibrateHashCostBounds(t *testing.T) {
	if testing.Short() {
		t.Skip("bcrypt calibration is slow")
	}
	policy := NewCredentialPolicy(zap.NewNop())

	cost := policy.CalibrateHashCost()
	assert.GreaterOrEqual(t, cost, baselineHashCost)
	assert.LessOrEqual(t, cost, cappedHashCost)
}

package security

import (
	"encoding/base32"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 6238 appendix B secret, "12345678901234567890" in ASCII
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestTOTPCodeMatchesRFCVectors(t *testing.T) {
	// RFC 6238 lists 8-digit SHA1 codes, ours are the low 6 digits
	assert.Equal(t, "287082", TOTPCode(rfcSecret, 59))
	assert.Equal(t, "081804", TOTPCode(rfcSecret, 1111111109))
	assert.Equal(t, "050471", TOTPCode(rfcSecret, 1111111111))
	assert.Equal(t, "005924", TOTPCode(rfcSecret, 1234567890))
}

func TestVerifyTOTPSkewWindow(t *testing.T) {
	secret, err := GenerateTOTPSecret()
	require.NoError(t, err)

	// Aligned to a step boundary so the offsets below stay inside
	// predictable steps
	now := int64(56666666) * 30

	code := TOTPCode(secret, now)
	require.Len(t, code, 6)

	assert.True(t, VerifyTOTP(secret, code, now))
	assert.True(t, VerifyTOTP(secret, code, now+29))
	assert.True(t, VerifyTOTP(secret, code, now-29))
	assert.False(t, VerifyTOTP(secret, code, now+61))
	assert.False(t, VerifyTOTP(secret, code, now-61))
}

func TestVerifyTOTPRejectsWrongLength(t *testing.T) {
	secret, err := GenerateTOTPSecret()
	require.NoError(t, err)

	now := int64(1_700_000_010)
	code := TOTPCode(secret, now)

	assert.False(t, VerifyTOTP(secret, code[:5], now))
	assert.False(t, VerifyTOTP(secret, code+"0", now))
	assert.False(t, VerifyTOTP(secret, "", now))
}

func TestVerifyTOTPMalformedSecret(t *testing.T) {
	now := int64(1_700_000_010)

	// Characters entirely outside the base32 alphabet decode to no key at
	// all. Verification must fail without panicking
	assert.False(t, VerifyTOTP("0189!!", "123456", now))
	assert.False(t, VerifyTOTP("", "123456", now))
}

func TestVerifyTOTPDiscardsInvalidSymbols(t *testing.T) {
	secret, err := GenerateTOTPSecret()
	require.NoError(t, err)

	now := int64(1_700_000_010)
	code := TOTPCode(secret, now)

	// Spaces and dashes, as pasted from an authenticator app, are ignored
	spaced := strings.Join(strings.Split(secret, ""), " ")
	assert.True(t, VerifyTOTP(spaced, code, now))
	assert.True(t, VerifyTOTP(strings.ToLower(secret)+"--", code, now))
}

func TestGenerateTOTPSecret(t *testing.T) {
	seen := map[string]bool{}

	for i := 0; i < 8; i++ {
		secret, err := GenerateTOTPSecret()
		require.NoError(t, err)
		require.False(t, seen[secret], "secrets must not repeat")
		seen[secret] = true

		raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
		require.NoError(t, err)
		assert.Len(t, raw, 20)
	}
}

func TestProvisioningURI(t *testing.T) {
	uri := ProvisioningURI(rfcSecret, "admin@arcline.test", "Arcline Admin")

	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/"))
	assert.Contains(t, uri, "secret="+rfcSecret)
	assert.Contains(t, uri, "issuer=Arcline+Admin")
	assert.Contains(t, uri, "digits=6")
	assert.Contains(t, uri, "period=30")
}

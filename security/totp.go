package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
)

const (
	// RFC 6238 policy constants. Fixed, not negotiated with clients
	totpDigits = 6
	totpPeriod = 30

	// Steps accepted on either side of the current one to tolerate clock skew
	totpSkewSteps = 1

	totpSecretBytes = 20
)

const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// GenerateTOTPSecret returns a fresh shared secret as unpadded base32,
// ready to be shown to an authenticator app
func GenerateTOTPSecret() (string, error) {
	b := make([]byte, totpSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b), nil
}

// ProvisioningURI builds the otpauth:// URI that authenticator apps consume
// via QR code
func ProvisioningURI(secret, account, issuer string) string {
	q := url.Values{}
	q.Set("secret", secret)
	q.Set("issuer", issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", fmt.Sprint(totpDigits))
	q.Set("period", fmt.Sprint(totpPeriod))

	return fmt.Sprintf("otpauth://totp/%s:%s?%s", url.PathEscape(issuer), url.PathEscape(account), q.Encode())
}

// VerifyTOTP reports whether code is valid for secret at the given unix time.
// The current step and one step on either side are accepted. A malformed
// secret never panics, it just fails verification.
func VerifyTOTP(secret, code string, now int64) bool {
	if len(code) != totpDigits {
		return false
	}

	key := decodeBase32(secret)
	if len(key) == 0 {
		return false
	}

	counter := now / totpPeriod

	ok := false
	for d := int64(-totpSkewSteps); d <= totpSkewSteps; d++ {
		candidate := hotp(key, uint64(counter+d))
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
			ok = true
		}
	}

	return ok
}

// TOTPCode returns the code for the step containing now. Verification should
// go through VerifyTOTP, this exists for flows that need to display a code
func TOTPCode(secret string, now int64) string {
	key := decodeBase32(secret)
	if len(key) == 0 {
		return ""
	}

	return hotp(key, uint64(now/totpPeriod))
}

// decodeBase32 unpacks 5 bits per symbol and silently discards anything
// outside the RFC 4648 alphabet, so secrets copied with spaces or dashes
// still decode
func decodeBase32(s string) []byte {
	s = strings.ToUpper(s)

	var (
		buf  uint32
		bits uint
		out  []byte
	)

	for _, r := range s {
		idx := strings.IndexRune(base32Alphabet, r)
		if idx < 0 {
			continue
		}

		buf = buf<<5 | uint32(idx)
		bits += 5

		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buf>>bits))
		}
	}

	return out
}

// hotp implements RFC 4226 dynamic truncation over HMAC-SHA1
func hotp(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%0*d", totpDigits, code%1_000_000)
}

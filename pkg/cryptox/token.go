package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"strings"
)

// Token sizes in bytes of entropy before encoding.
const (
	TokenSize128 = 16
	TokenSize256 = 32
	TokenSize512 = 64

	backupCodeSize = 10 // 80 bits
)

var backupEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateToken returns size random bytes as unpadded base64url.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", size)
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken is the storage form of an opaque bearer secret: the
// unpadded base64url SHA-256 of the raw value (43 chars). High-entropy tokens
// do not need a slow hash, and a deterministic digest allows indexed lookup.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateBackupCode returns an 80-bit code grouped for humans,
// e.g. "k3vq-7m2a-pd4x-n6tb".
func GenerateBackupCode() (string, error) {
	buf := make([]byte, backupCodeSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: read random: %w", err)
	}
	raw := strings.ToLower(backupEncoding.EncodeToString(buf))

	var b strings.Builder
	for i := 0; i < len(raw); i += 4 {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(raw[i:min(i+4, len(raw))])
	}
	return b.String(), nil
}

// NormalizeBackupCode strips separators and case so codes typed by hand
// fingerprint the same as the generated form.
func NormalizeBackupCode(code string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '-' || r == ' ':
			return -1
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return r
	}, strings.TrimSpace(code))
}

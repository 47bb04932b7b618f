package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"

	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
	"github.com/tjdeveng/KeepTower-sub010/internal/vault"
)

// History hashes only guard against password reuse, never key material, so
// a lighter argon2id profile than the slot KDF is fine.
const (
	historyMemory  = 64 * 1024
	historyTime    = 3
	historyThreads = 2
	historySaltLen = 16
	historyKeyLen  = 32
)

const maxUsernameLen = 64

// HashPassword produces a self-describing PHC-format argon2id hash for the
// password history.
func HashPassword(password string) (string, error) {
	salt := make([]byte, historySaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: salt generation: %w: %v", kterrors.ErrCryptoError, err)
	}
	key := argon2.IDKey([]byte(password), salt, historyTime, historyMemory, historyThreads, historyKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, historyMemory, historyTime, historyThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// VerifyPassword checks a password against a PHC-format hash in constant
// time with respect to the derived key.
func VerifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, fmt.Errorf("auth: malformed password hash: %w", kterrors.ErrValidationFailed)
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, fmt.Errorf("auth: unsupported hash version: %w", kterrors.ErrValidationFailed)
	}
	var m, t uint32
	var p uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false, fmt.Errorf("auth: malformed hash parameters: %w", kterrors.ErrValidationFailed)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("auth: malformed hash salt: %w", kterrors.ErrValidationFailed)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("auth: malformed hash key: %w", kterrors.ErrValidationFailed)
	}
	got := argon2.IDKey([]byte(password), salt, t, m, p, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// CheckPasswordStrength enforces the vault's security policy on a candidate
// password.
func CheckPasswordStrength(password string, policy vault.SecurityPolicy) error {
	if len(password) < policy.MinPasswordLength {
		return fmt.Errorf("auth: password shorter than %d characters: %w",
			policy.MinPasswordLength, kterrors.ErrWeakPassword)
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("auth: blank password: %w", kterrors.ErrWeakPassword)
	}
	return nil
}

// ValidateUsername rejects names that would be ambiguous in slot lookups or
// undisplayable in logs and listings.
func ValidateUsername(name string) error {
	if name == "" || len(name) > maxUsernameLen {
		return fmt.Errorf("auth: username must be 1-%d characters: %w", maxUsernameLen, kterrors.ErrInvalidUsername)
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("auth: username has leading or trailing spaces: %w", kterrors.ErrInvalidUsername)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("auth: username contains control characters: %w", kterrors.ErrInvalidUsername)
		}
	}
	return nil
}

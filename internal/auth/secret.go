package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const minAdminTokenLength = 16

// ValidateAdminToken checks minimal admin token requirements.
func ValidateAdminToken(token string) error {
	if len(token) < minAdminTokenLength {
		return fmt.Errorf("admin token must be at least %d characters", minAdminTokenLength)
	}
	if strings.TrimSpace(token) != token {
		return fmt.Errorf("admin token must not have surrounding whitespace")
	}
	return nil
}

// HashAdminToken hashes one plaintext admin token for the config file.
func HashAdminToken(token string) (string, error) {
	if err := ValidateAdminToken(token); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyAdminToken verifies a plaintext admin token against a bcrypt hash.
func VerifyAdminToken(tokenHash, candidate string) bool {
	if strings.TrimSpace(tokenHash) == "" || candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(candidate)) == nil
}

// GenerateSecret returns a random URL-safe secret of n bytes of entropy.
func GenerateSecret(n int) (string, error) {
	if n <= 0 {
		n = 32
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

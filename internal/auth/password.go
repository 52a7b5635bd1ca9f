package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	argonMemory      = 64 * 1024
	argonIterations  = 2
	argonParallelism = 1
	argonKeyLength   = 32
	saltLength       = 16
	minPasswordLen   = 8
)

// HashPassword derives an argon2id hash of password with a fresh random salt.
// Both values are base64 encoded for storage.
func HashPassword(password string) (hash, salt string, err error) {
	if password == "" {
		return "", "", errors.New("password is empty")
	}
	raw := make([]byte, saltLength)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), raw, argonIterations, argonMemory, argonParallelism, argonKeyLength)
	return base64.RawStdEncoding.EncodeToString(key), base64.RawStdEncoding.EncodeToString(raw), nil
}

// VerifyPassword compares password with a stored hash and salt in constant time.
func VerifyPassword(hash, salt, password string) bool {
	if hash == "" || salt == "" {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(hash)
	if err != nil {
		return false
	}
	rawSalt, err := base64.RawStdEncoding.DecodeString(salt)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), rawSalt, argonIterations, argonMemory, argonParallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	return nil
}

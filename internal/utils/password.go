package utils

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost controls the bcrypt hashing cost when none is configured.
const DefaultCost = 12

// HashSecret hashes a one-time code with bcrypt. A cost outside bcrypt's
// range falls back to DefaultCost.
func HashSecret(secret string, cost int) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("secret cannot be empty")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hashedBytes), nil
}

// CheckSecretHash reports whether secret matches the given bcrypt hash.
func CheckSecretHash(secret, hash string) bool {
	if len(secret) == 0 || len(hash) == 0 {
		return false
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	return err == nil
}

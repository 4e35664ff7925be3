// Package auth provides the password-hashing primitive used by the classic (non-directory)
// login path.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the default bcrypt cost factor.
	BcryptCost = 12

	MinPasswordLength = 12
	MaxPasswordLength = 128
)

var (
	ErrPasswordTooWeak = errors.New("password does not meet security requirements")
)

// PasswordHasher provides secure password hashing functionality using bcrypt.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher creates a new password hasher with the specified bcrypt cost.
// If cost is 0, uses the default BcryptCost value.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost == 0 {
		cost = BcryptCost
	}
	return &PasswordHasher{cost: cost}
}

// HashPassword creates a bcrypt hash from a plaintext password.
func (ph *PasswordHasher) HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: minimum length %d characters", ErrPasswordTooWeak, MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return "", fmt.Errorf("%w: maximum length %d characters", ErrPasswordTooWeak, MaxPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), ph.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password against a bcrypt hash in constant time.
func (ph *PasswordHasher) VerifyPassword(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("password verification failed: %w", err)
	}
	return true, nil
}

// GetHashCost extracts the cost factor from a bcrypt hash.
func (ph *PasswordHasher) GetHashCost(hash string) (int, error) {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0, fmt.Errorf("failed to extract hash cost: %w", err)
	}
	return cost, nil
}

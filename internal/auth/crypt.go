package auth

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordNoLetter = errors.New("password must contain at least one letter")
	ErrPasswordNoDigit  = errors.New("password must contain at least one digit")
)

// ValidatePassword checks a new password against the minimum policy.
// GetAuth/HandleLogin never re-validate an existing hash, and /setup
// hashes its generated password without calling this.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		if unicode.IsLetter(r) {
			hasLetter = true
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
	}
	if !hasLetter {
		return ErrPasswordNoLetter
	}
	if !hasDigit {
		return ErrPasswordNoDigit
	}
	return nil
}

// HashPassword returns a salted hash of password, standing in for the
// crypt_rn(3)-with-generated-salt call of the source implementation.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ConstantTimeEqual reports whether a and b are byte-identical without
// branching on the position of the first differing byte. Unequal lengths
// are rejected up front (the source's crypt_rn output is fixed-length per
// scheme, so a length mismatch there always indicates corruption, not a
// secret-dependent branch); the byte comparison itself accumulates an
// OR of all XOR differences and folds it to 0/1 the same way:
// a zero accumulator wraps to all-ones on subtracting one, surviving the
// shift-and-mask as 1; any non-zero accumulator stays below 256 and is
// zeroed out by the shift.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var sum uint32
	for i := range a {
		sum |= uint32(a[i] ^ b[i])
	}
	return ((sum-1)>>8)&1 != 0
}

package auth

import (
	"sync"
	"unicode/utf8"

	"github.com/example/ewaste-exchange/internal/apperr"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost        = 12
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

var (
	ErrPasswordTooShort = apperr.New(apperr.CodeValidation, "password must be at least 8 characters")
	ErrPasswordTooLong  = apperr.New(apperr.CodeValidation, "password must be at most 72 bytes")
)

// ValidatePassword applies the length rules without hashing.
func ValidatePassword(password string) error {
	switch {
	case utf8.RuneCountInString(password) < minPasswordLength:
		return ErrPasswordTooShort
	case len(password) > maxPasswordBytes:
		return ErrPasswordTooLong
	}
	return nil
}

func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, err, "hash password")
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var (
	decoyOnce sync.Once
	decoyHash []byte
)

// BurnPasswordCheck spends the same bcrypt work as CheckPassword. Login
// calls it for unknown emails so response time does not reveal which
// addresses are registered.
func BurnPasswordCheck(password string) {
	decoyOnce.Do(func() {
		decoyHash, _ = bcrypt.GenerateFromPassword([]byte("decoy-password"), bcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(decoyHash, []byte(password))
}

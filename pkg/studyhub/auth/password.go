package auth

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mikepea/studyhub/pkg/studyhub/apperrors"
	"golang.org/x/crypto/bcrypt"
)

const (
	MaxUsernameLength = 150
	MinPasswordLength = 8
)

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)

// HashPassword creates a bcrypt hash of the password
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a password with a hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// ValidateUsername checks length and allowed characters
func ValidateUsername(username string) error {
	if username == "" {
		return apperrors.Invalid("username", "This field is required.")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return apperrors.Invalid("username", "Ensure this value has at most 150 characters.")
	}
	if !usernamePattern.MatchString(username) {
		return apperrors.Invalid("username", "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
	}
	return nil
}

// ValidatePassword applies the password policy to a new password and its confirmation
func ValidatePassword(username, password, confirm string) error {
	if password == "" {
		return apperrors.Invalid("password1", "This field is required.")
	}
	if password != confirm {
		return apperrors.Invalid("password2", "The two password fields didn't match.")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return apperrors.Invalid("password2", "This password is too short. It must contain at least 8 characters.")
	}
	if isNumeric(password) {
		return apperrors.Invalid("password2", "This password is entirely numeric.")
	}
	if strings.EqualFold(password, username) {
		return apperrors.Invalid("password2", "The password is too similar to the username.")
	}
	return nil
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

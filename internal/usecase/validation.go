package usecase

import (
	"strings"
	"unicode/utf8"

	"github.com/example/account-service/internal/domain"
)

const (
	minUsernameLength = 3
	minPasswordLength = 6
	maxEmailLength    = 255
)

// NormalizeUsername lowercases raw input and drops everything outside [a-z0-9_],
// the same filter the sign-up form applies while the user types.
func NormalizeUsername(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validateUsername(username string) error {
	if utf8.RuneCountInString(username) < minUsernameLength {
		return domain.Validation("Username must be at least 3 characters!")
	}
	if NormalizeUsername(username) != username {
		return domain.Validation("Username may only contain lowercase letters, digits and underscores")
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return domain.Validation("Password must be at least 6 characters!")
	}
	return nil
}

func validateEmail(email string) error {
	if !strings.Contains(email, "@") || utf8.RuneCountInString(email) > maxEmailLength {
		return domain.Validation("invalid email")
	}
	return nil
}

// ValidatePasswordConfirmation is the check the forms run before calling
// SignUp or UpdatePassword.
func ValidatePasswordConfirmation(password, confirm string) error {
	if password != confirm {
		return domain.Validation("Passwords do not match!")
	}
	return validatePassword(password)
}

// PasswordStrength scores a password from 0 to 5: one point each for a length
// of at least 8 characters, at least 12, mixed case, a digit and a symbol.
func PasswordStrength(password string) int {
	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}
	score := 0
	n := utf8.RuneCountInString(password)
	if n >= 8 {
		score++
	}
	if n >= 12 {
		score++
	}
	if lower && upper {
		score++
	}
	if digit {
		score++
	}
	if symbol {
		score++
	}
	return score
}

func StrengthLabel(score int) string {
	switch {
	case score <= 1:
		return "weak"
	case score <= 3:
		return "medium"
	default:
		return "strong"
	}
}

package services

import (
	"regexp"
	"strings"

	apperrors "github.com/davitran/hubsync/pkg/errors"
)

// passwordSymbols is the fixed punctuation set a password must draw its
// special character from.
const passwordSymbols = `!@#$%^&*()_+-=[]{};:'"\|,.<>/?`

// PasswordPolicyMessage is returned for every password policy violation so
// the rule reads the same at registration, reset, and change.
const PasswordPolicyMessage = "Password must be at least 8 characters long, contain at least one letter, one number, and one special character."

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidatePassword enforces the password policy: length >= 8, at least one
// letter, one digit, and one symbol from the fixed set.
func ValidatePassword(plain string) error {
	if len(plain) < 8 {
		return apperrors.NewBadRequest(PasswordPolicyMessage)
	}

	var hasLetter, hasDigit, hasSymbol bool
	for _, r := range plain {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}

	if !hasLetter || !hasDigit || !hasSymbol {
		return apperrors.NewBadRequest(PasswordPolicyMessage)
	}
	return nil
}

// ValidateUsernameFormat restricts usernames to letters, digits, and
// underscores, with at least one letter.
func ValidateUsernameFormat(candidate string) error {
	if !usernamePattern.MatchString(candidate) || !containsLetter(candidate) {
		return apperrors.NewBadRequest("Username must only contain letters, digits and underscores, with at least one letter.")
	}
	return nil
}

// ValidateEmailDomain accepts an address only when its domain is on the
// allow-list. The comparison is case-insensitive on the domain portion.
func ValidateEmailDomain(email string, allowed []string) error {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return apperrors.NewBadRequest("Enter a valid email address.")
	}

	domain := strings.ToLower(email[at+1:])
	for _, candidate := range allowed {
		if strings.ToLower(strings.TrimSpace(candidate)) == domain {
			return nil
		}
	}
	return apperrors.NewBadRequest("Enter a valid email address.")
}

// PasswordsMatch reports whether the password and its confirmation agree.
func PasswordsMatch(a, b string) bool {
	return a == b
}

func containsLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

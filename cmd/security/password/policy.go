package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate applies the password policy without touching the hasher.
// Length limits count runes so multi-byte input is not penalized.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)

	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}

	if c.Policy.RejectVeryWeak && isTrivial(password) {
		return ErrWeakPassword
	}

	return nil
}

// isTrivial catches only the throwaway passwords people type into payroll
// onboarding forms. Real strength estimation stays client-side (non-goal).
func isTrivial(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}

	uniq := map[rune]struct{}{}
	digitsOnly := true
	for _, r := range s {
		uniq[r] = struct{}{}
		if !unicode.IsDigit(r) {
			digitsOnly = false
		}
	}

	// A single repeated rune, however long, carries no entropy.
	if len(uniq) == 1 {
		return true
	}

	// PIN-style numeric passwords belong on phone locks, not payroll accounts.
	if digitsOnly && utf8.RuneCountInString(s) < 12 {
		return true
	}

	switch strings.ToLower(s) {
	case "password", "password123", "passw0rd",
		"123456", "123456789", "qwerty", "qwerty123",
		"letmein", "welcome1",
		"paydesk", "paydesk123", "payroll", "payroll123":
		return true
	}

	return false
}

package security

import (
	"fmt"
	"strings"
	"unicode"
)

// PasswordPolicy validates new passwords before hashing. Violations are
// collected so the caller can report all of them at once.
type PasswordPolicy struct {
	MinLength           int
	RequireUppercase    bool
	RequireLowercase    bool
	RequireNumbers      bool
	RequireSpecialChars bool
	ForbiddenPasswords  []string
}

// DefaultPasswordPolicy returns the platform policy.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:           12,
		RequireUppercase:    true,
		RequireLowercase:    true,
		RequireNumbers:      true,
		RequireSpecialChars: true,
		ForbiddenPasswords: []string{
			"password", "123456", "password123", "admin", "qwerty", "letmein",
		},
	}
}

// Validate returns every policy violation for the candidate password, or
// nil when it passes.
func (p PasswordPolicy) Validate(password string) []string {
	var violations []string

	if len(password) < p.MinLength {
		violations = append(violations, fmt.Sprintf("password must be at least %d characters long", p.MinLength))
	}
	if p.RequireUppercase && !containsClass(password, unicode.IsUpper) {
		violations = append(violations, "password must contain at least one uppercase letter")
	}
	if p.RequireLowercase && !containsClass(password, unicode.IsLower) {
		violations = append(violations, "password must contain at least one lowercase letter")
	}
	if p.RequireNumbers && !containsClass(password, unicode.IsDigit) {
		violations = append(violations, "password must contain at least one number")
	}
	if p.RequireSpecialChars && !containsClass(password, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		violations = append(violations, "password must contain at least one special character")
	}

	lowered := strings.ToLower(password)
	for _, forbidden := range p.ForbiddenPasswords {
		if strings.Contains(lowered, strings.ToLower(forbidden)) {
			violations = append(violations, "password contains common or forbidden words")
			break
		}
	}

	return violations
}

func containsClass(s string, class func(rune) bool) bool {
	for _, r := range s {
		if class(r) {
			return true
		}
	}
	return false
}

package password

import (
	"fmt"
	"strings"
	"unicode"
)

// weakPatterns are rejected as case-insensitive substrings.
var weakPatterns = []string{
	"password",
	"123456",
	"qwerty",
	"admin",
	"letmein",
	"welcome",
	"monkey",
	"dragon",
}

const (
	scoreLength       = 20
	scoreCharClass    = 15
	scoreLongBonus    = 10
	scoreSequenceCost = 10
	longLength        = 12
	veryLongLength    = 16
)

// Policy lists the composition requirements a password must meet.
type Policy struct {
	MinLength           int
	RequireUppercase    bool
	RequireLowercase    bool
	RequireNumbers      bool
	RequireSpecialChars bool
}

// DefaultPolicy requires eight characters drawn from all four classes.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:           8,
		RequireUppercase:    true,
		RequireLowercase:    true,
		RequireNumbers:      true,
		RequireSpecialChars: true,
	}
}

// StrengthResult is the outcome of ValidateStrength. IsValid depends only on
// Errors; Score is advisory.
type StrengthResult struct {
	IsValid     bool
	Score       int
	Errors      []string
	Suggestions []string
}

type charClasses struct {
	upper, lower, digit, special bool
}

func classify(password string) charClasses {
	var c charClasses
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsDigit(r):
			c.digit = true
		case !unicode.IsSpace(r) && !unicode.IsLetter(r):
			c.special = true
		}
	}
	return c
}

// ValidateStrength scores password against p.
//
// Each satisfied requirement adds to the score, lengths of 12 and 16 earn a
// bonus and an ascending run of three digits costs points. A password that
// is one repeated character or that contains a weak pattern scores zero and
// is invalid regardless of anything else.
func (p Policy) ValidateStrength(password string) StrengthResult {
	res := StrengthResult{}
	length := len([]rune(password))
	classes := classify(password)

	if length >= p.MinLength {
		res.Score += scoreLength
	} else {
		res.Errors = append(res.Errors, fmt.Sprintf("Password must be at least %d characters long", p.MinLength))
	}

	checks := []struct {
		present  bool
		required bool
		missing  string
		suggest  string
	}{
		{classes.upper, p.RequireUppercase, "Password must contain at least one uppercase letter", "Add uppercase letters"},
		{classes.lower, p.RequireLowercase, "Password must contain at least one lowercase letter", "Add lowercase letters"},
		{classes.digit, p.RequireNumbers, "Password must contain at least one number", "Add numbers"},
		{classes.special, p.RequireSpecialChars, "Password must contain at least one special character", "Add special characters"},
	}
	for _, c := range checks {
		switch {
		case c.present:
			res.Score += scoreCharClass
		case c.required:
			res.Errors = append(res.Errors, c.missing)
		default:
			res.Suggestions = append(res.Suggestions, c.suggest)
		}
	}

	if length >= longLength {
		res.Score += scoreLongBonus
	} else {
		res.Suggestions = append(res.Suggestions, "Use at least 12 characters for a stronger password")
	}
	if length >= veryLongLength {
		res.Score += scoreLongBonus
	}

	if hasAscendingDigits(password) {
		res.Score -= scoreSequenceCost
		res.Suggestions = append(res.Suggestions, "Avoid sequential numbers")
	}

	if isRepeatedChar(password) {
		res.Score = 0
		res.Errors = append(res.Errors, "Password cannot be a single repeated character")
	}
	if containsWeakPattern(password) {
		res.Score = 0
		res.Errors = append(res.Errors, "Password contains a common weak pattern")
	}

	res.Score = max(0, min(100, res.Score))
	res.IsValid = len(res.Errors) == 0
	return res
}

// IsCompromised is a heuristic stand-in for a breach-corpus lookup: it only
// matches the weak-pattern list and single-character passwords. A false
// result does not mean the password has never been leaked.
func IsCompromised(password string) bool {
	return containsWeakPattern(password) || isRepeatedChar(password)
}

func containsWeakPattern(password string) bool {
	lower := strings.ToLower(password)
	for _, pattern := range weakPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func isRepeatedChar(password string) bool {
	runes := []rune(password)
	if len(runes) == 0 {
		return false
	}
	for _, r := range runes[1:] {
		if r != runes[0] {
			return false
		}
	}
	return true
}

// hasAscendingDigits reports a run like "123" or "789".
func hasAscendingDigits(password string) bool {
	run := 1
	var prev byte
	for i := 0; i < len(password); i++ {
		c := password[i]
		if c >= '0' && c <= '9' && i > 0 && prev >= '0' && prev <= '9' && c == prev+1 {
			run++
			if run >= 3 {
				return true
			}
		} else {
			run = 1
		}
		prev = c
	}
	return false
}

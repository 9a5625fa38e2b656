package password

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	upperAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerAlphabet   = "abcdefghijklmnopqrstuvwxyz"
	digitAlphabet   = "0123456789"
	specialAlphabet = "!@#$%^&*()-_=+[]{}<>?"

	minGeneratedLength = 12
	maxGenerateTries   = 32
)

// GenerateSecurePassword returns a random password of at least length
// characters that passes p.ValidateStrength. Lengths below p.MinLength or 12
// are raised to that floor.
func GenerateSecurePassword(length int, p Policy) (string, error) {
	length = max(length, p.MinLength, minGeneratedLength)

	required := make([]string, 0, 4)
	if p.RequireUppercase {
		required = append(required, upperAlphabet)
	}
	if p.RequireLowercase {
		required = append(required, lowerAlphabet)
	}
	if p.RequireNumbers {
		required = append(required, digitAlphabet)
	}
	if p.RequireSpecialChars {
		required = append(required, specialAlphabet)
	}
	all := upperAlphabet + lowerAlphabet + digitAlphabet + specialAlphabet

	// Random fill can land on a weak pattern; draw again when it does.
	for range maxGenerateTries {
		candidate, err := generateOnce(length, required, all)
		if err != nil {
			return "", err
		}
		if p.ValidateStrength(candidate).IsValid {
			return candidate, nil
		}
	}
	return "", errors.New("could not generate a password satisfying the policy")
}

func generateOnce(length int, required []string, all string) (string, error) {
	out := make([]byte, 0, length)
	for _, alphabet := range required {
		c, err := pick(alphabet)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	for i := len(out) - 1; i > 0; i-- {
		j, err := randIndex(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

func pick(alphabet string) (byte, error) {
	i, err := randIndex(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func randIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

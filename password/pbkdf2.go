package password

import (
	"context"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultIterations = 100_000
	DefaultSaltLength = 16
	DefaultKeyLength  = 64

	minSaltLength = 16
	minKeyLength  = 32
	separator     = ":"
)

// Config controls PBKDF2 cost and the hashing worker budget.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Iterations    int
	SaltLength    int
	KeyLength     int
	MaxConcurrent int
}

// DefaultConfig returns 100,000 iterations, a 16-byte salt, a 64-byte key and
// one hashing slot per CPU.
func DefaultConfig() Config {
	return Config{
		Iterations:    DefaultIterations,
		SaltLength:    DefaultSaltLength,
		KeyLength:     DefaultKeyLength,
		MaxConcurrent: runtime.NumCPU(),
	}
}

// Hasher derives and verifies PBKDF2-HMAC-SHA512 password hashes.
//
// Hasher is safe for concurrent use.
type Hasher struct {
	config Config
	slots  *semaphore.Weighted
}

// NewHasher describes the newhasher operation and its observable behavior.
//
// NewHasher may return an error when the iteration count, salt length, key length or
// concurrency budget is out of range.
func NewHasher(cfg Config) (*Hasher, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Hasher{
		config: cfg,
		slots:  semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}, nil
}

// Hash describes the hash operation and its observable behavior.
//
// Hash draws a fresh salt on every call, so hashing the same password twice never yields
// the same output. Hash may return an error when ctx ends before a hashing slot frees up
// or when the system random source fails.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	digest := pbkdf2.Key([]byte(password), salt, h.config.Iterations, h.config.KeyLength, sha512.New)
	h.slots.Release(1)

	return hex.EncodeToString(salt) + separator + hex.EncodeToString(digest), nil
}

// Verify describes the verify operation and its observable behavior.
//
// Verify reports false for a wrong password and for any stored value that is not a
// well-formed hash; it never panics on malformed input. The only error it returns is
// ctx's, when ctx ends before a hashing slot frees up.
func (h *Hasher) Verify(ctx context.Context, password, stored string) (bool, error) {
	salt, expected, ok := parseStored(stored)
	if !ok {
		return false, nil
	}

	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	computed := pbkdf2.Key([]byte(password), salt, h.config.Iterations, len(expected), sha512.New)
	h.slots.Release(1)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func parseStored(stored string) (salt, digest []byte, ok bool) {
	saltHex, digestHex, found := strings.Cut(stored, separator)
	if !found || saltHex == "" || digestHex == "" {
		return nil, nil, false
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, nil, false
	}
	digest, err = hex.DecodeString(digestHex)
	if err != nil || len(digest) == 0 {
		return nil, nil, false
	}

	return salt, digest, true
}

func validateConfig(cfg Config) error {
	if cfg.Iterations < 1 {
		return errors.New("pbkdf2 iterations must be positive")
	}
	if cfg.SaltLength < minSaltLength {
		return fmt.Errorf("salt length must be >= %d bytes", minSaltLength)
	}
	if cfg.KeyLength < minKeyLength {
		return fmt.Errorf("key length must be >= %d bytes", minKeyLength)
	}
	if cfg.MaxConcurrent < 1 {
		return errors.New("max concurrent hashes must be >= 1")
	}
	return nil
}

package password

import (
	"context"
	"errors"
	"regexp"
	"testing"
)

func testConfig() Config {
	return Config{
		Iterations:    1_000,
		SaltLength:    16,
		KeyLength:     64,
		MaxConcurrent: 2,
	}
}

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	return h
}

var storedFormat = regexp.MustCompile(`^[0-9a-f]{32}:[0-9a-f]{128}$`)

func TestHashAndVerify(t *testing.T) {
	h := newTestHasher(t)
	ctx := context.Background()

	hash, err := h.Hash(ctx, "Str0ng!Pass")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !storedFormat.MatchString(hash) {
		t.Fatalf("unexpected stored format: %s", hash)
	}

	ok, err := h.Verify(ctx, "Str0ng!Pass", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected password verification to succeed")
	}

	ok, err = h.Verify(ctx, "Str0ng!Pasz", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestHashIsSalted(t *testing.T) {
	h := newTestHasher(t)
	ctx := context.Background()

	a, err := h.Hash(ctx, "same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := h.Hash(ctx, "same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct hashes for the same password")
	}
}

func TestVerifyMalformedStoredValues(t *testing.T) {
	h := newTestHasher(t)
	cases := []string{
		"",
		":",
		"nocolon",
		"zz:00",
		"00:zz",
		"0011:",
		":0011",
	}
	for _, stored := range cases {
		ok, err := h.Verify(context.Background(), "anything", stored)
		if err != nil {
			t.Fatalf("Verify(%q) returned error: %v", stored, err)
		}
		if ok {
			t.Fatalf("Verify(%q) unexpectedly succeeded", stored)
		}
	}
}

func TestVerifyHonorsContextWhileWaiting(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	h, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	hash, err := h.Hash(context.Background(), "pw")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if err := h.slots.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h.slots.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Verify(ctx, "pw", hash); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := h.Hash(ctx, "pw"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewHasherRejectsWeakConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"iterations":  func(c *Config) { c.Iterations = 0 },
		"salt":        func(c *Config) { c.SaltLength = 8 },
		"key":         func(c *Config) { c.KeyLength = 16 },
		"concurrency": func(c *Config) { c.MaxConcurrent = 0 },
	}
	for name, mutate := range cases {
		cfg := testConfig()
		mutate(&cfg)
		if _, err := NewHasher(cfg); err == nil {
			t.Fatalf("%s: expected config error", name)
		}
	}
}

package store

import (
	"context"
	"sync"
	"time"
)

// MemoryUserStore is a process-local UserStore.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]*UserRecord
	byEmail map[string]string
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]*UserRecord),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryUserStore) CreateUser(_ context.Context, user *UserRecord) error {
	email := NormalizeEmail(user.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return ErrDuplicateEmail
	}
	rec := user.Clone()
	rec.Email = email
	s.byID[rec.ID] = rec
	s.byEmail[email] = rec.ID
	return nil
}

func (s *MemoryUserStore) GetUserByID(_ context.Context, id string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryUserStore) GetUserByEmail(_ context.Context, email string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryUserStore) UpdateUser(_ context.Context, user *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[user.ID]
	if !ok {
		return ErrNotFound
	}
	email := NormalizeEmail(user.Email)
	if email != current.Email {
		if _, taken := s.byEmail[email]; taken {
			return ErrDuplicateEmail
		}
		delete(s.byEmail, current.Email)
		s.byEmail[email] = user.ID
	}
	rec := user.Clone()
	rec.Email = email
	s.byID[user.ID] = rec
	return nil
}

// MemoryResetTokenStore is a process-local ResetTokenStore.
type MemoryResetTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*ResetToken
}

func NewMemoryResetTokenStore() *MemoryResetTokenStore {
	return &MemoryResetTokenStore{tokens: make(map[string]*ResetToken)}
}

func (s *MemoryResetTokenStore) SaveResetToken(_ context.Context, token *ResetToken) error {
	s.mu.Lock()
	s.tokens[token.ID] = token.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryResetTokenStore) ListActiveResetTokens(_ context.Context, now time.Time) ([]*ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*ResetToken, 0, len(s.tokens))
	for id, tok := range s.tokens {
		if tok.Usable(now) {
			out = append(out, tok.Clone())
			continue
		}
		if !now.Before(tok.ExpiresAt) {
			delete(s.tokens, id)
		}
	}
	return out, nil
}

func (s *MemoryResetTokenStore) MarkResetTokenUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[id]
	if !ok {
		return ErrNotFound
	}
	if tok.Used {
		return ErrResetTokenUsed
	}
	tok.Used = true
	return nil
}

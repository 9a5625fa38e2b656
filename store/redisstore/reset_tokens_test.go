package redisstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authcore/store"
)

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*ResetTokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewResetTokenStore(client, "test", time.Hour), mr
}

func token(id, user string) *store.ResetToken {
	return &store.ResetToken{
		ID:        id,
		UserID:    user,
		TokenHash: "hash-" + id,
		ExpiresAt: epoch.Add(time.Hour),
		CreatedAt: epoch,
	}
}

func TestResetTokenRoundTrip(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveResetToken(ctx, token("t1", "u1")))
	require.NoError(t, s.SaveResetToken(ctx, token("t2", "u2")))
	assert.Equal(t, 2*time.Hour, mr.TTL("test:t:t1"))

	active, err := s.ListActiveResetTokens(ctx, epoch)
	require.NoError(t, err)
	require.Len(t, active, 2)
	for _, tok := range active {
		assert.Equal(t, "hash-"+tok.ID, tok.TokenHash)
		assert.True(t, tok.ExpiresAt.Equal(epoch.Add(time.Hour)))
	}
}

func TestListActiveResetTokensSkipsExpired(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveResetToken(ctx, token("t1", "u1")))

	active, err := s.ListActiveResetTokens(ctx, epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, active)

	members, err := mr.Members("test:idx")
	if err == nil {
		assert.Empty(t, members)
	}
}

func TestMarkResetTokenUsedOnce(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveResetToken(ctx, token("t1", "u1")))

	require.NoError(t, s.MarkResetTokenUsed(ctx, "t1"))
	require.ErrorIs(t, s.MarkResetTokenUsed(ctx, "t1"), store.ErrResetTokenUsed)
	require.ErrorIs(t, s.MarkResetTokenUsed(ctx, "missing"), store.ErrNotFound)

	active, err := s.ListActiveResetTokens(ctx, epoch)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestMarkResetTokenUsedConcurrent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveResetToken(ctx, token("t1", "u1")))

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.MarkResetTokenUsed(ctx, "t1") == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := decodeResetToken([]byte{9, 1, 2})
	require.ErrorIs(t, err, ErrInvalidRecord)

	data, err := encodeResetToken(token("t1", "u1"))
	require.NoError(t, err)
	_, err = decodeResetToken(append(data, 0))
	require.ErrorIs(t, err, ErrInvalidRecord)
}

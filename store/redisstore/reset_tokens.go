package redisstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/store"
)

const (
	resetRecordVersionV1 = 1
	defaultPrefix        = "art"
	defaultRetention     = time.Hour
	maxTxRetries         = 4
)

var (
	ErrRedisUnavailable = errors.New("reset token redis unavailable")
	ErrInvalidRecord    = errors.New("invalid reset token record")
)

// ResetTokenStore is a Redis-backed store.ResetTokenStore.
//
// Keys under prefix:
//
//	<prefix>:t:<tokenID>   encoded token
//	<prefix>:idx           set of token IDs that may still be active
//
// A token key lives retention past its expiry so that a late redemption
// reports the token as used rather than unknown.
type ResetTokenStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

var _ store.ResetTokenStore = (*ResetTokenStore)(nil)

// NewResetTokenStore creates a ResetTokenStore. An empty prefix defaults to
// "art" and a non-positive retention to one hour.
func NewResetTokenStore(client redis.UniversalClient, prefix string, retention time.Duration) *ResetTokenStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	return &ResetTokenStore{
		redis:     client,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *ResetTokenStore) key(id string) string {
	return s.prefix + ":t:" + id
}

func (s *ResetTokenStore) indexKey() string {
	return s.prefix + ":idx"
}

func (s *ResetTokenStore) ttlFor(t *store.ResetToken) time.Duration {
	ttl := t.ExpiresAt.Sub(t.CreatedAt) + s.retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// SaveResetToken writes the token and adds it to the index.
func (s *ResetTokenStore) SaveResetToken(ctx context.Context, t *store.ResetToken) error {
	encoded, err := encodeResetToken(t)
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(t.ID), encoded, s.ttlFor(t))
		pipe.SAdd(ctx, s.indexKey(), t.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ListActiveResetTokens returns usable tokens and prunes index members that
// are gone, used or expired.
func (s *ResetTokenStore) ListActiveResetTokens(ctx context.Context, now time.Time) ([]*store.ResetToken, error) {
	ids, err := s.redis.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var (
		active []*store.ResetToken
		stale  []any
	)
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				stale = append(stale, ids[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		t, err := decodeResetToken(data)
		if err != nil {
			return nil, err
		}
		if !t.Usable(now) {
			stale = append(stale, ids[i])
			continue
		}
		active = append(active, t)
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return active, nil
}

// MarkResetTokenUsed flips Used under WATCH. A caller that loses the race
// retries, observes Used and gets store.ErrResetTokenUsed.
func (s *ResetTokenStore) MarkResetTokenUsed(ctx context.Context, id string) error {
	key := s.key(id)

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			t, err := decodeResetToken(data)
			if err != nil {
				return err
			}
			if t.Used {
				return store.ErrResetTokenUsed
			}
			t.Used = true
			updated, err := encodeResetToken(t)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				pipe.SRem(ctx, s.indexKey(), id)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.Nil):
			return store.ErrNotFound
		case errors.Is(err, store.ErrResetTokenUsed), errors.Is(err, ErrInvalidRecord):
			return err
		default:
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return fmt.Errorf("%w: too much contention on %s", ErrRedisUnavailable, id)
}

func encodeResetToken(t *store.ResetToken) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(resetRecordVersionV1)
	for _, s := range []string{t.ID, t.UserID, t.TokenHash} {
		if len(s) > 255 {
			return nil, fmt.Errorf("%w: field too long", ErrInvalidRecord)
		}
		buf.WriteByte(byte(len(s)))
		buf.WriteString(s)
	}
	if t.Used {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	for _, ts := range []int64{t.ExpiresAt.UnixNano(), t.CreatedAt.UnixNano()} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeResetToken(data []byte) (*store.ResetToken, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if version != resetRecordVersionV1 {
		return nil, fmt.Errorf("%w: version %d", ErrInvalidRecord, version)
	}

	var fields [3]string
	for i := range fields {
		n, err := reader.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(reader, b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		fields[i] = string(b)
	}
	used, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	var expires, created int64
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if reader.Len() != 0 {
		return nil, fmt.Errorf("%w: trailing bytes", ErrInvalidRecord)
	}

	return &store.ResetToken{
		ID:        fields[0],
		UserID:    fields[1],
		TokenHash: fields[2],
		Used:      used == 1,
		ExpiresAt: time.Unix(0, expires).UTC(),
		CreatedAt: time.Unix(0, created).UTC(),
	}, nil
}

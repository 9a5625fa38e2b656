package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "as"
	defaultRetention   = time.Hour
	minSessionKeyTTL   = time.Second
	scanBatchSize      = 500
)

const deleteSessionScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if redis.call("GET", KEYS[3]) == ARGV[1] then
  redis.call("DEL", KEYS[3])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Drops a refresh index entry only while it still names ARGV[1].
const unbindRefreshScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var unbindRefreshLua = redis.NewScript(unbindRefreshScript)

// RedisStore is a Redis-backed Store.
//
// Keys under prefix:
//
//	<prefix>:s:<sessionID>   encoded session
//	<prefix>:u:<userID>      set of session IDs
//	<prefix>:r:<hex hash>    session ID bound to a refresh-token hash
//
// Session and index keys expire retention after the session's ExpiresAt,
// leaving the sweeper time to classify them as expired rather than
// missing.
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisStore creates a RedisStore. An empty prefix defaults to "as" and a
// non-positive retention to one hour.
func NewRedisStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	return &RedisStore{
		redis:     client,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *RedisStore) refreshKey(hash [32]byte) string {
	return s.prefix + ":r:" + hex.EncodeToString(hash[:])
}

func (s *RedisStore) ttlFor(sess *Session) time.Duration {
	ttl := sess.ExpiresAt.Sub(sess.LastActivity) + s.retention
	if ttl < minSessionKeyTTL {
		ttl = minSessionKeyTTL
	}
	return ttl
}

// Save persists sess and its indexes in one MULTI block.
//
//	Performance: 1 GET, one transaction of 3 commands, plus 1 EVALSHA on rebind.
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	prev, err := s.Get(ctx, sess.ID)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}

	ttl := s.ttlFor(sess)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		pipe.Set(ctx, s.refreshKey(sess.RefreshHash), sess.ID, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if prev != nil && prev.RefreshHash != sess.RefreshHash {
		err := unbindRefreshLua.Run(ctx, s.redis, []string{s.refreshKey(prev.RefreshHash)}, sess.ID).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

// Get returns the decoded session stored under id.
//
//	Performance: 1 Redis GET.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = id
	return sess, nil
}

// GetByRefreshHash resolves the index key, then the session. A stale index
// entry that points at a session bound to another token is reported as not
// found.
//
//	Performance: 2 Redis GETs.
func (s *RedisStore) GetByRefreshHash(ctx context.Context, hash [32]byte) (*Session, error) {
	id, err := s.redis.Get(ctx, s.refreshKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.RefreshHash != hash {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Touch rewrites the blob with a new LastActivity and keeps the key's TTL.
func (s *RedisStore) Touch(ctx context.Context, id string, at time.Time) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.LastActivity = at

	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(id), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete removes a session and its index entries. Deleting a missing
// session is a no-op.
//
//	Performance: 1 GET plus 1 script call.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.delete(ctx, id)
	return err
}

func (s *RedisStore) delete(ctx context.Context, id string) (bool, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}

	keys := []string{s.key(id), s.userKey(sess.UserID), s.refreshKey(sess.RefreshHash)}
	existed, err := deleteSessionLua.Run(ctx, s.redis, keys, id).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return existed == 1, nil
}

// DeleteByUser removes every session in the user's index.
//
// ATOMICITY NOTE: the index is read once and members are deleted one by
// one. Callers that need a consistent cut must hold the user's lock, as the
// Manager does.
func (s *RedisStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	n := 0
	for _, id := range ids {
		deleted, err := s.delete(ctx, id)
		if err != nil {
			return n, err
		}
		if deleted {
			n++
		}
	}

	if err := s.redis.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return n, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// ListByUser fetches the user's sessions in one pipeline and prunes index
// members whose session key is gone.
func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions, missing, err := s.getMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		members := make([]interface{}, len(missing))
		for i, id := range missing {
			members[i] = id
		}
		if err := s.redis.SRem(ctx, s.userKey(userID), members...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return sessions, nil
}

// List scans every session key. This is an O(n) maintenance operation and
// must not be used in request hot paths.
func (s *RedisStore) List(ctx context.Context) ([]*Session, error) {
	pattern := s.key("*")
	keyPrefixLen := len(s.key(""))

	var (
		cursor uint64
		out    []*Session
	)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		ids := make([]string, len(keys))
		for i, k := range keys {
			ids[i] = k[keyPrefixLen:]
		}
		batch, _, err := s.getMany(ctx, ids)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *RedisStore) getMany(ctx context.Context, ids []string) ([]*Session, []string, error) {
	if len(ids) == 0 {
		return []*Session{}, nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions := make([]*Session, 0, len(ids))
	var missing []string
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				missing = append(missing, ids[i])
				continue
			}
			return nil, nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		sess, err := Decode(data)
		if err != nil {
			return nil, nil, err
		}
		sess.ID = ids[i]
		sessions = append(sessions, sess)
	}
	return sessions, missing, nil
}

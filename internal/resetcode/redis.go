package resetcode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "reset_code:"

// redeemScript deletes the entry only when the code matches and it has not expired.
// Expired entries are removed as a side effect. A mismatch bumps the attempts
// field, which shares the key's TTL, and burns the entry at ARGV[3] misses.
var redeemScript = redis.NewScript(`
local code = redis.call('HGET', KEYS[1], 'code')
if not code then
  return false
end
local exp = tonumber(redis.call('HGET', KEYS[1], 'expiresAt'))
if exp and exp < tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
  return false
end
if code ~= ARGV[1] then
  local n = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
  if n >= tonumber(ARGV[3]) then
    redis.call('DEL', KEYS[1])
  end
  return false
end
local uid = redis.call('HGET', KEYS[1], 'userId')
redis.call('DEL', KEYS[1])
return uid or ''
`)

// RedisBackend stores each entry as a hash under reset_code:<email> with a native TTL.
type RedisBackend struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisBackend(client redis.UniversalClient) (*RedisBackend, error) {
	if client == nil {
		return nil, errors.New("resetcode: redis client is required")
	}
	return &RedisBackend{client: client, now: time.Now}, nil
}

func redisKey(email string) string { return keyPrefix + email }

func (r *RedisBackend) Load(ctx context.Context, email string) (Entry, bool, error) {
	fields, err := r.client.HGetAll(ctx, redisKey(email)).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("load reset code: %w", err)
	}
	code, ok := fields["code"]
	if !ok {
		return Entry{}, false, nil
	}
	ms, err := strconv.ParseInt(fields["expiresAt"], 10, 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("decode reset code expiry: %w", err)
	}
	attempts := 0
	if raw, ok := fields["attempts"]; ok {
		if attempts, err = strconv.Atoi(raw); err != nil {
			return Entry{}, false, fmt.Errorf("decode reset code attempts: %w", err)
		}
	}
	return Entry{
		Email:     email,
		Code:      code,
		UserID:    fields["userId"],
		ExpiresAt: time.UnixMilli(ms).UTC(),
		Attempts:  attempts,
	}, true, nil
}

func (r *RedisBackend) Save(ctx context.Context, e Entry) error {
	k := redisKey(e.Email)
	ttl := e.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, k)
		p.HSet(ctx, k,
			"code", e.Code,
			"userId", e.UserID,
			"expiresAt", strconv.FormatInt(e.ExpiresAt.UnixMilli(), 10),
			"attempts", e.Attempts,
		)
		// keep the key a little past expiresAt so lazy expiry stays observable
		p.PExpire(ctx, k, ttl+time.Minute)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save reset code: %w", err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, email string) error {
	if err := r.client.Del(ctx, redisKey(email)).Err(); err != nil {
		return fmt.Errorf("delete reset code: %w", err)
	}
	return nil
}

// Redeem runs the compare-and-delete server side.
func (r *RedisBackend) Redeem(ctx context.Context, email, code string, now time.Time, maxAttempts int) (string, bool, error) {
	uid, err := redeemScript.Run(ctx, r.client, []string{redisKey(email)}, code, now.UnixMilli(), maxAttempts).Text()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redeem reset code: %w", err)
	}
	return uid, true, nil
}

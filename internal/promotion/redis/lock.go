package redis

import (
	"context"
	"fmt"
	"time"

	"ms-promotion/internal/logger"

	"github.com/go-redis/redis/v8"
)

const defaultLockTTL = 30 * time.Second

// unlockScript deletes the key only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis serialises checkout initiation per event across service replicas.
type Redis struct {
	Client redis.Cmdable
	TTL    time.Duration
	Logger *logger.Logger
}

func NewRedis(client redis.Cmdable, ttl time.Duration, log *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if log == nil {
		log = logger.New(nil)
	}
	return &Redis{Client: client, TTL: ttl, Logger: log}
}

func lockKey(eventID string) string {
	return "promotion_lock:" + eventID
}

// LockEvent takes the event's checkout lock for token. It reports false if another checkout
// holds it. The lock expires after TTL so a crashed holder cannot block the event.
func (r *Redis) LockEvent(ctx context.Context, eventID, token string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, lockKey(eventID), token, r.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("lock event %s: %w", eventID, err)
	}
	if !ok {
		r.Logger.Debug("REDIS", fmt.Sprintf("Event %s is locked by another checkout", eventID))
	}
	return ok, nil
}

// UnlockEvent releases the lock if token still owns it. A lock that expired or was taken over
// is left alone.
func (r *Redis) UnlockEvent(ctx context.Context, eventID, token string) error {
	n, err := unlockScript.Run(ctx, r.Client, []string{lockKey(eventID)}, token).Int64()
	if err != nil {
		return fmt.Errorf("unlock event %s: %w", eventID, err)
	}
	if n == 0 {
		r.Logger.Debug("REDIS", fmt.Sprintf("Lock for event %s was no longer held by %s", eventID, token))
	}
	return nil
}

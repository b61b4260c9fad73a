package sequence

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"raffle/internal/checked"
)

const DefaultRedisKey = "raffle:counter"

// nextScript refuses to create the key implicitly, which a bare INCR would do.
var nextScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return redis.error_reply('NOTINIT counter not initialised')
end
return redis.call('INCR', KEYS[1])
`)

// Redis shares the counter between several service instances. INCR runs
// atomically on the server, so concurrent creators never observe the same id.
type Redis struct {
	rdb *redis.Client
	key string
}

// NewRedis returns an Allocator on a single redis key.
func NewRedis(rdb *redis.Client, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{rdb: rdb, key: key}
}

// Init creates the key at zero with SETNX. ErrAlreadyInitialised if it exists.
func (r *Redis) Init(ctx context.Context) error {
	ok, err := r.rdb.SetNX(ctx, r.key, 0, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyInitialised
	}
	return nil
}

// Next increments the key atomically and returns the value before the increment.
func (r *Redis) Next(ctx context.Context) (uint64, error) {
	v, err := nextScript.Run(ctx, r.rdb, []string{r.key}).Int64()
	if err != nil {
		return 0, mapRedisError(err)
	}
	if v <= 0 {
		return 0, checked.ErrUnderflow
	}
	return uint64(v - 1), nil
}

func mapRedisError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NOTINIT"):
		return ErrNotInitialised
	case strings.Contains(msg, "overflow"):
		return errors.Join(checked.ErrOverflow, err)
	}
	return err
}

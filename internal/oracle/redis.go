package oracle

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "oracle:"

// RedisFeed reads randomness that an off-chain publisher writes into a hash
// per account: HSET oracle:<ref> value <n> updated_at <unix>.
type RedisFeed struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisFeed reads feed hashes stored under prefix+ref. An empty prefix
// means DefaultKeyPrefix.
func NewRedisFeed(rdb *redis.Client, prefix string) *RedisFeed {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisFeed{rdb: rdb, prefix: prefix}
}

// Read loads the hash for ref and parses it with ParseFields. A missing key
// is ErrInvalidAccount.
func (f *RedisFeed) Read(ctx context.Context, ref string) (Randomness, error) {
	fields, err := f.rdb.HGetAll(ctx, f.prefix+ref).Result()
	if err != nil {
		return Randomness{}, err
	}
	if len(fields) == 0 {
		return Randomness{}, fmt.Errorf("%w: unknown account %q", ErrInvalidAccount, ref)
	}
	return ParseFields(fields)
}

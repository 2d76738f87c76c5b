package invitation

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Ledger remembers redeemed invitation ids until the invitation would have
// expired anyway.
type Ledger interface {
	// Consume marks id as used. It returns false if id was already used.
	Consume(ctx context.Context, id string, until time.Time) (bool, error)
	// Release forgets id after a redemption that did not go through.
	Release(ctx context.Context, id string) error
}

const ledgerPrefix = "invitation:used:"

// RedisLedger implements Ledger with SETNX keys that expire with the token.
type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (l *RedisLedger) Consume(ctx context.Context, id string, until time.Time) (bool, error) {
	ttl := time.Until(until)
	if ttl < time.Second {
		ttl = time.Second
	}
	return l.client.SetNX(ctx, ledgerPrefix+id, 1, ttl).Result()
}

func (l *RedisLedger) Release(ctx context.Context, id string) error {
	return l.client.Del(ctx, ledgerPrefix+id).Err()
}

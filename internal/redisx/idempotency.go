package redisx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrIdempotencyInFlight is returned when another request holding the same
// key has not finished yet.
var ErrIdempotencyInFlight = errors.New("idempotency: request with this key is still in progress")

// Idempotency remembers which order an Idempotency-Key produced, per user.
//
// A claim lives for pendingTTL only; Complete extends it to TTLIdempotency.
// A claim orphaned by a crash or a failed Complete therefore blocks retries
// for pendingTTL, not for a day.
type Idempotency struct {
	rdb        redis.Cmdable
	pendingTTL time.Duration
}

// NewIdempotency uses TTLIdempotencyPending when pendingTTL is not positive.
// pendingTTL should outlast the longest order creation.
func NewIdempotency(rdb redis.Cmdable, pendingTTL time.Duration) *Idempotency {
	if pendingTTL <= 0 {
		pendingTTL = TTLIdempotencyPending
	}
	return &Idempotency{rdb: rdb, pendingTTL: pendingTTL}
}

// Claim reserves key for userID. It returns claimed=true when the caller
// should create the order, or the id of the order an earlier request with
// the same key created.
func (i *Idempotency) Claim(ctx context.Context, userID int64, key string) (orderID int64, claimed bool, err error) {
	k := fmt.Sprintf(KeyIdemOrderCreate, userID, key)
	ok, err := i.rdb.SetNX(ctx, k, idemPending, i.pendingTTL).Result()
	if err != nil {
		return 0, false, err
	}
	if ok {
		return 0, true, nil
	}

	v, err := i.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Released between SETNX and GET; let this request take it.
		return i.Claim(ctx, userID, key)
	}
	if err != nil {
		return 0, false, err
	}
	if v == idemPending {
		return 0, false, ErrIdempotencyInFlight
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("idempotency key %s holds %q: %w", k, v, err)
	}
	return id, false, nil
}

// Complete records the created order under a claimed key and keeps it for
// TTLIdempotency.
func (i *Idempotency) Complete(ctx context.Context, userID int64, key string, orderID int64) error {
	return i.rdb.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, userID, key), strconv.FormatInt(orderID, 10), TTLIdempotency).Err()
}

// Release drops a claim whose order was not created, so the client can retry
// with the same key.
func (i *Idempotency) Release(ctx context.Context, userID int64, key string) error {
	return i.rdb.Del(ctx, fmt.Sprintf(KeyIdemOrderCreate, userID, key)).Err()
}

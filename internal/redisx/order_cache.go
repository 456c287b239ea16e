package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

// setIfNewer writes the order hash unless the cached version (UpdatedAt in
// microseconds, exact in a Lua number) is later than the incoming one.
//
// KEYS[1] order view key; ARGV[1] version; ARGV[2] body; ARGV[3] ttl ms.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'body', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// OrderCache implements orders.OrderCache. Each entry is a hash holding the
// order JSON and its version. Redis errors are logged and reported as
// misses; the store stays the source of truth.
type OrderCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewOrderCache(rdb redis.Cmdable, logger *zap.Logger) *OrderCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderCache{rdb: rdb, ttl: TTLOrderView, logger: logger}
}

func (c *OrderCache) GetOrder(ctx context.Context, id int64) (orders.Order, bool) {
	b, err := c.rdb.HGet(ctx, fmt.Sprintf(KeyOrderView, id), "body").Bytes()
	if errors.Is(err, redis.Nil) {
		return orders.Order{}, false
	}
	if err != nil {
		c.logger.Warn("order cache get", zap.Int64("order_id", id), zap.Error(err))
		return orders.Order{}, false
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil {
		c.logger.Warn("order cache decode", zap.Int64("order_id", id), zap.Error(err))
		return orders.Order{}, false
	}
	return o, true
}

// SetOrder stores o unless the cache already holds a later version of it.
func (c *OrderCache) SetOrder(ctx context.Context, o orders.Order) {
	b, err := json.Marshal(o)
	if err != nil {
		c.logger.Warn("order cache encode", zap.Int64("order_id", o.ID), zap.Error(err))
		return
	}
	key := fmt.Sprintf(KeyOrderView, o.ID)
	written, err := setIfNewer.Run(ctx, c.rdb, []string{key}, o.UpdatedAt.UnixMicro(), b, c.ttl.Milliseconds()).Int()
	if err != nil {
		c.logger.Warn("order cache set", zap.Int64("order_id", o.ID), zap.Error(err))
		return
	}
	if written == 0 {
		c.logger.Debug("order cache kept newer entry", zap.Int64("order_id", o.ID))
	}
}

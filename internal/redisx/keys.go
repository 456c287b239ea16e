package redisx

import "time"

const (
	// Idempotent create: idem:order:create:{user_id}:{idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%d:%s"

	// Order cache: order_view:{order_id} -> hash {v: updated_at micros, body: order JSON}
	KeyOrderView = "order_view:%d"
)

// idemPending marks a key whose order is still being created.
const idemPending = "pending"

var (
	TTLIdempotency        = 24 * time.Hour
	TTLIdempotencyPending = 30 * time.Second
	TTLOrderView          = 5 * time.Minute
)

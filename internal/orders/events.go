package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const EventOrderCreated = "OrderCreated"

// Envelope is the wire format of every event on the order topics.
type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // EventOrderCreated
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	StatusID    int             `json:"status_id"`
	Items       []ItemQty       `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

func NewOrderCreatedPayload(o Order) OrderCreatedPayload {
	items := make([]ItemQty, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, ItemQty{ProductID: FormatID(l.ProductID), Qty: l.Quantity})
	}
	return OrderCreatedPayload{
		OrderID:     FormatID(o.ID),
		UserID:      FormatID(o.UserID),
		StatusID:    o.StatusID,
		Items:       items,
		TotalAmount: o.Total,
	}
}

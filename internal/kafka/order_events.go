package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

const eventVersion = 1

type publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

// OrderEvents implements orders.EventPublisher on top of a Producer bound to
// orders.TopicOrderCreated.
type OrderEvents struct {
	pub      publisher
	producer string
	now      func() time.Time
}

func NewOrderEvents(pub publisher, producerName string) *OrderEvents {
	return &OrderEvents{pub: pub, producer: producerName, now: func() time.Time { return time.Now().UTC() }}
}

func (e *OrderEvents) PublishOrderCreated(ctx context.Context, o orders.Order) error {
	payload, err := json.Marshal(orders.NewOrderCreatedPayload(o))
	if err != nil {
		return err
	}
	orderID := strconv.FormatInt(o.ID, 10)
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  eventVersion,
		OccurredAt:    e.now(),
		Producer:      e.producer,
		CorrelationID: orderID,
		Payload:       payload,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return e.pub.Publish(ctx, orders.PartitionKey(o.ID), b,
		kafka.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(eventVersion))},
	)
}

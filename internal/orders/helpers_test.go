package orders_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-lifecycle/internal/memstore"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

var (
	alice = orders.Requester{UserID: 10}
	bob   = orders.Requester{UserID: 20}
	admin = orders.Requester{UserID: 1, IsAdmin: true}
)

type countingRecorder struct {
	mu           sync.Mutex
	reservations map[string]int
	transitions  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{reservations: map[string]int{}, transitions: map[string]int{}}
}

func (r *countingRecorder) ObserveReservation(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reservations[outcome]++
}

func (r *countingRecorder) ObserveTransition(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[outcome]++
}

func (r *countingRecorder) reservation(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reservations[outcome]
}

func (r *countingRecorder) transition(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitions[outcome]
}

func product(id int64, name, price string, stock int) orders.Product {
	return orders.Product{
		ID:       id,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Category: orders.Category{ID: 1, Name: "ELECTRONICS"},
	}
}

func newService(t *testing.T, store *memstore.Store, rec orders.Recorder) *orders.Service {
	t.Helper()
	svc, err := orders.NewService(context.Background(), orders.ServiceDeps{Store: store, Recorder: rec})
	require.NoError(t, err)
	return svc
}

func graphFor(t *testing.T, store *memstore.Store) func() *orders.StatusGraph {
	t.Helper()
	statuses, err := store.ListStatuses(context.Background())
	require.NoError(t, err)
	g, err := orders.NewStatusGraph(statuses)
	require.NoError(t, err)
	return func() *orders.StatusGraph { return g }
}

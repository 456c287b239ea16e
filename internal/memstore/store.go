// Package memstore is an in-process implementation of orders.Store.
//
// Transactions hold the store mutex from begin to end, so they are fully
// serialized, and every write records an undo step that is replayed when the
// transaction function fails. Readers take the same mutex and never observe
// a partially applied transaction.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

type orderRow struct {
	order orders.Order // header + lines, without joins
}

type Store struct {
	mu         sync.Mutex
	products   map[int64]orders.Product
	statuses   map[int]orders.Status
	orders     map[int64]*orderRow
	nextOrder  int64
	nextLine   int64
	now        func() time.Time
	failCommit error // test hook: returned instead of committing
}

func New() *Store {
	return &Store{
		products: make(map[int64]orders.Product),
		statuses: make(map[int]orders.Status),
		orders:   make(map[int64]*orderRow),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailCommits makes every following transaction roll back with err. A nil
// err restores normal behaviour.
func (s *Store) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommit = err
}

func (s *Store) PutProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) PutStatus(st orders.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[st.ID] = copyStatus(st)
}

// Stock returns the current stock of a product, or -1 when it does not exist.
func (s *Store) Stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return -1
	}
	return p.Stock
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) FindProducts(_ context.Context, ids []int64) ([]orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListStatuses(_ context.Context) ([]orders.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listStatuses(), nil
}

func (s *Store) FindOrder(_ context.Context, id int64) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: %d", orders.ErrOrderNotFound, id)
	}
	return s.joined(row), nil
}

func (s *Store) ListOrders(_ context.Context, f orders.OrderFilter) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.orders))
	for id, row := range s.orders {
		if f.UserID != nil && row.order.UserID != *f.UserID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]orders.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.joined(s.orders[id]))
	}
	return out, nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	err := fn(ctx, tx)
	if err == nil {
		err = s.failCommit
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *Store) listStatuses() []orders.Status {
	out := make([]orders.Status, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, copyStatus(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// joined copies a stored order and attaches status, products and categories
// the way the Postgres store's joins do.
func (s *Store) joined(row *orderRow) orders.Order {
	o := row.order
	o.Status = copyStatus(s.statuses[o.StatusID])
	o.Lines = make([]orders.OrderLine, len(row.order.Lines))
	for i, l := range row.order.Lines {
		l.Product = s.products[l.ProductID]
		o.Lines[i] = l
	}
	return o
}

func copyStatus(st orders.Status) orders.Status {
	if st.NextStatusID != nil {
		next := *st.NextStatusID
		st.NextStatusID = &next
	}
	return st
}

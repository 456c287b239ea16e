package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

// memTx runs with Store.mu held.
type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) LockProducts(_ context.Context, ids []int64) (map[int64]orders.Product, error) {
	out := make(map[int64]orders.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID int64, qty int) (bool, error) {
	p, ok := t.s.products[productID]
	if !ok {
		return false, &orders.ProductNotFoundError{ProductID: productID}
	}
	if p.Stock < qty {
		return false, nil
	}
	t.setStock(productID, p.Stock-qty)
	return true, nil
}

func (t *memTx) IncrementStock(_ context.Context, productID int64, qty int) error {
	p, ok := t.s.products[productID]
	if !ok {
		return &orders.ProductNotFoundError{ProductID: productID}
	}
	t.setStock(productID, p.Stock+qty)
	return nil
}

func (t *memTx) setStock(productID int64, stock int) {
	prev := t.s.products[productID]
	next := prev
	next.Stock = stock
	t.s.products[productID] = next
	t.undo = append(t.undo, func() { t.s.products[productID] = prev })
}

func (t *memTx) CreateOrder(_ context.Context, o orders.NewOrder) (orders.Order, error) {
	if _, ok := t.s.statuses[o.StatusID]; !ok {
		return orders.Order{}, fmt.Errorf("%w: %d", orders.ErrStatusNotFound, o.StatusID)
	}
	prevOrder, prevLine := t.s.nextOrder, t.s.nextLine

	t.s.nextOrder++
	now := t.s.now()
	created := orders.Order{
		ID:        t.s.nextOrder,
		UserID:    o.UserID,
		StatusID:  o.StatusID,
		Total:     o.Total,
		CreatedAt: now,
		UpdatedAt: now,
		Lines:     make([]orders.OrderLine, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		if _, ok := t.s.products[l.ProductID]; !ok {
			t.s.nextOrder, t.s.nextLine = prevOrder, prevLine
			return orders.Order{}, &orders.ProductNotFoundError{ProductID: l.ProductID}
		}
		t.s.nextLine++
		created.Lines = append(created.Lines, orders.OrderLine{ID: t.s.nextLine, ProductID: l.ProductID, Quantity: l.Quantity})
	}

	stored := created
	stored.Lines = append([]orders.OrderLine(nil), created.Lines...)
	t.s.orders[created.ID] = &orderRow{order: stored}
	t.undo = append(t.undo, func() {
		delete(t.s.orders, created.ID)
		t.s.nextOrder, t.s.nextLine = prevOrder, prevLine
	})
	return created, nil
}

func (t *memTx) LockOrder(_ context.Context, id int64) (orders.Order, error) {
	row, ok := t.s.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: %d", orders.ErrOrderNotFound, id)
	}
	o := row.order
	o.Lines = append([]orders.OrderLine(nil), row.order.Lines...)
	return o, nil
}

func (t *memTx) UpdateOrderStatus(_ context.Context, id int64, statusID int) error {
	row, ok := t.s.orders[id]
	if !ok {
		return fmt.Errorf("%w: %d", orders.ErrOrderNotFound, id)
	}
	prevStatus, prevUpdated := row.order.StatusID, row.order.UpdatedAt
	row.order.StatusID = statusID
	row.order.UpdatedAt = t.s.now()
	// Keep UpdatedAt strictly increasing per order even if the wall clock
	// stalls or steps back.
	if !row.order.UpdatedAt.After(prevUpdated) {
		row.order.UpdatedAt = prevUpdated.Add(time.Microsecond)
	}
	t.undo = append(t.undo, func() {
		row.order.StatusID, row.order.UpdatedAt = prevStatus, prevUpdated
	})
	return nil
}

func (t *memTx) ListStatuses(_ context.Context) ([]orders.Status, error) {
	return t.s.listStatuses(), nil
}

func (t *memTx) UpdateStatus(_ context.Context, id int, patch orders.StatusPatch) error {
	prev, ok := t.s.statuses[id]
	if !ok {
		return fmt.Errorf("%w: %d", orders.ErrStatusNotFound, id)
	}
	next := copyStatus(prev)
	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.IsFinal != nil {
		next.IsFinal = *patch.IsFinal
	}
	if patch.NextStatusID.Set {
		if patch.NextStatusID.Value == nil {
			next.NextStatusID = nil
		} else {
			target := *patch.NextStatusID.Value
			if _, ok := t.s.statuses[target]; !ok {
				return fmt.Errorf("%w: next status does not exist", orders.ErrInvalidStatusGraph)
			}
			next.NextStatusID = &target
		}
	}
	t.s.statuses[id] = next
	t.undo = append(t.undo, func() { t.s.statuses[id] = prev })
	return nil
}

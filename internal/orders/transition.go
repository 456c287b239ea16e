package orders

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Transitioner moves orders along the status graph.
type Transitioner struct {
	orders   OrderStore
	uow      UnitOfWork
	graph    func() *StatusGraph
	logger   *zap.Logger
	recorder Recorder
}

func NewTransitioner(orders OrderStore, uow UnitOfWork, graph func() *StatusGraph, logger *zap.Logger, rec Recorder) *Transitioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Transitioner{orders: orders, uow: uow, graph: graph, logger: logger, recorder: rec}
}

// Guard inspects the locked order before it is changed. A non-nil error
// aborts the transition.
type Guard func(Order) error

// Advance moves the order exactly one step along the chain. The order row is
// locked for the read-then-write, so concurrent advances of one order
// serialize and never both start from the same status.
func (t *Transitioner) Advance(ctx context.Context, orderID int64, guard Guard) (Order, error) {
	graph := t.graph()
	var from, to Status
	err := t.uow.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(o); err != nil {
				return err
			}
		}
		from, _ = graph.Status(o.StatusID)
		next, ok := graph.Successor(o.StatusID)
		if !ok {
			return &NoFurtherStatusError{OrderID: orderID, StatusID: o.StatusID, StatusName: from.Name}
		}
		to = next
		return tx.UpdateOrderStatus(ctx, orderID, next.ID)
	})
	t.recorder.ObserveTransition(transitionOutcome(err))
	if err != nil {
		return Order{}, err
	}
	t.logger.Info("order advanced",
		zap.Int64("order_id", orderID),
		zap.String("from", from.Name),
		zap.String("to", to.Name),
	)
	return t.reload(ctx, orderID)
}

// Cancel moves a non-final order to the CANCELED side-exit and puts its
// reserved units back in stock, in one transaction.
func (t *Transitioner) Cancel(ctx context.Context, orderID int64) (Order, error) {
	graph := t.graph()
	canceled, ok := graph.ByName(StatusCanceled)
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrStatusNotFound, StatusCanceled)
	}
	err := t.uow.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if graph.IsFinal(o.StatusID) {
			cur, _ := graph.Status(o.StatusID)
			return fmt.Errorf("%w: order %d is %s", ErrNotCancellable, orderID, cur.Name)
		}
		for _, l := range o.Lines {
			if err := tx.IncrementStock(ctx, l.ProductID, l.Quantity); err != nil {
				return fmt.Errorf("restock product %d: %w", l.ProductID, err)
			}
		}
		return tx.UpdateOrderStatus(ctx, orderID, canceled.ID)
	})
	if err != nil {
		t.recorder.ObserveTransition(transitionOutcome(err))
		return Order{}, err
	}
	t.recorder.ObserveTransition("canceled")
	t.logger.Info("order canceled", zap.Int64("order_id", orderID))
	return t.reload(ctx, orderID)
}

func (t *Transitioner) reload(ctx context.Context, orderID int64) (Order, error) {
	o, err := t.orders.FindOrder(ctx, orderID)
	if err != nil {
		return Order{}, fmt.Errorf("reload order %d: %w", orderID, err)
	}
	return o, nil
}

func transitionOutcome(err error) string {
	switch {
	case err == nil:
		return "advanced"
	case errors.Is(err, ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, ErrNoFurtherStatus):
		return "final"
	case errors.Is(err, ErrNotCancellable):
		return "not_cancellable"
	default:
		return "error"
	}
}

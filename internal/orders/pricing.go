package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reserver prices an order request and commits the stock reservation
// together with the order it belongs to.
type Reserver struct {
	catalog  Catalog
	uow      UnitOfWork
	graph    func() *StatusGraph
	logger   *zap.Logger
	recorder Recorder
}

func NewReserver(catalog Catalog, uow UnitOfWork, graph func() *StatusGraph, logger *zap.Logger, rec Recorder) *Reserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Reserver{catalog: catalog, uow: uow, graph: graph, logger: logger, recorder: rec}
}

// ReserveAndPrice validates lines against the catalog, then, in one
// transaction, re-checks stock under row locks, decrements it and creates the
// order in the initial status. Nothing is written unless every line passes.
func (r *Reserver) ReserveAndPrice(ctx context.Context, ownerID int64, lines []Line) (Order, error) {
	order, err := r.reserve(ctx, ownerID, lines)
	r.recorder.ObserveReservation(reservationOutcome(err))
	if err != nil {
		r.logger.Warn("reservation rejected", zap.Int64("user_id", ownerID), zap.Int("lines", len(lines)), zap.Error(err))
		return Order{}, err
	}
	r.logger.Info("reservation committed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", ownerID),
		zap.String("total", order.Total.StringFixed(2)),
	)
	return order, nil
}

func (r *Reserver) reserve(ctx context.Context, ownerID int64, lines []Line) (Order, error) {
	ids, err := productIDs(lines)
	if err != nil {
		return Order{}, err
	}

	found, err := r.catalog.FindProducts(ctx, ids)
	if err != nil {
		return Order{}, fmt.Errorf("find products: %w", err)
	}
	byID := make(map[int64]Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	if _, err := priceLines(lines, byID); err != nil {
		return Order{}, err
	}

	graph := r.graph()
	initial := graph.Initial()

	var created Order
	err = r.uow.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := tx.LockProducts(ctx, sortedIDs(ids))
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}
		// Prices and stock may have moved since the pre-check; the order
		// is priced from what is actually being reserved.
		total, err := priceLines(lines, locked)
		if err != nil {
			return err
		}
		demand := demandByProduct(lines)
		for _, id := range sortedIDs(ids) {
			ok, err := tx.DecrementStock(ctx, id, demand[id])
			if err != nil {
				return fmt.Errorf("decrement stock for product %d: %w", id, err)
			}
			if !ok {
				p := locked[id]
				return &InsufficientStockError{ProductID: id, ProductName: p.Name, Available: p.Stock, Requested: demand[id]}
			}
		}
		created, err = tx.CreateOrder(ctx, NewOrder{
			UserID:   ownerID,
			StatusID: initial.ID,
			Total:    total,
			Lines:    lines,
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		for i := range created.Lines {
			created.Lines[i].Product = locked[created.Lines[i].ProductID]
			created.Lines[i].Product.Stock -= demand[created.Lines[i].ProductID]
		}
		return nil
	})
	if errors.Is(err, ErrTxConflict) {
		return Order{}, fmt.Errorf("%w: reservation aborted by a concurrent order: %v", ErrInsufficientStock, err)
	}
	if err != nil {
		return Order{}, err
	}
	created.Status = initial
	return created, nil
}

// priceLines walks lines in input order, failing on the first missing
// product or on the first line whose cumulative demand exceeds stock, and
// returns the total rounded once to cents.
func priceLines(lines []Line, products map[int64]Product) (decimal.Decimal, error) {
	for _, l := range lines {
		if _, ok := products[l.ProductID]; !ok {
			return decimal.Zero, &ProductNotFoundError{ProductID: l.ProductID}
		}
	}
	total := decimal.Zero
	demand := make(map[int64]int, len(lines))
	for _, l := range lines {
		p := products[l.ProductID]
		demand[l.ProductID] += l.Quantity
		if p.Stock < demand[l.ProductID] {
			return decimal.Zero, &InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Available:   p.Stock,
				Requested:   demand[l.ProductID],
			}
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return RoundTotal(total), nil
}

// RoundTotal rounds half-up to two decimal places. decimal.Round rounds half
// away from zero, which is half-up for the non-negative amounts used here.
func RoundTotal(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// productIDs validates lines and returns the distinct product ids in input
// order.
func productIDs(lines []Line) ([]int64, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one product", ErrInvalidInput)
	}
	seen := make(map[int64]bool, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if l.ProductID <= 0 {
			return nil, fmt.Errorf("%w: invalid product id %d", ErrInvalidInput, l.ProductID)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for product %d must be positive, got %d", ErrInvalidInput, l.ProductID, l.Quantity)
		}
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}
	return ids, nil
}

func demandByProduct(lines []Line) map[int64]int {
	out := make(map[int64]int, len(lines))
	for _, l := range lines {
		out[l.ProductID] += l.Quantity
	}
	return out
}

// sortedIDs returns a sorted copy; rows are always locked in ascending id
// order so concurrent reservations cannot deadlock on each other.
func sortedIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func reservationOutcome(err error) string {
	switch {
	case err == nil:
		return "reserved"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	default:
		return "error"
	}
}

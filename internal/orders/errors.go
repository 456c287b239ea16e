package orders

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("order: invalid input")
	ErrOrderNotFound      = errors.New("order: not found")
	ErrProductNotFound    = errors.New("order: product not found")
	ErrStatusNotFound     = errors.New("order: status not found")
	ErrInsufficientStock  = errors.New("order: insufficient stock")
	ErrNoFurtherStatus    = errors.New("order: already in its final status")
	ErrNotCancellable     = errors.New("order: not cancellable")
	ErrForbidden          = errors.New("order: forbidden")
	ErrInvalidStatusGraph = errors.New("order: invalid status graph")

	// ErrTxConflict is returned by stores when the database aborted a
	// transaction because of a concurrent writer (serialization failure,
	// deadlock).
	ErrTxConflict = errors.New("order: transaction conflict")
)

type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %d", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (%s): available %d, requested %d",
		e.ProductID, e.ProductName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type NoFurtherStatusError struct {
	OrderID    int64
	StatusID   int
	StatusName string
}

func (e *NoFurtherStatusError) Error() string {
	return fmt.Sprintf("order %d is already in its final status %s (%d)", e.OrderID, e.StatusName, e.StatusID)
}

func (e *NoFurtherStatusError) Is(target error) bool { return target == ErrNoFurtherStatus }

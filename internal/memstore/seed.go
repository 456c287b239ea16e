package memstore

import (
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

// Status ids of the default chain. They match migrations/001_init.sql.
const (
	StatusPending    = 1
	StatusProcessing = 2
	StatusShipped    = 3
	StatusDelivered  = 4
	StatusCompleted  = 5
	StatusCanceled   = 6
	StatusRefunded   = 7
)

var (
	electronics = orders.Category{ID: 1, Name: "ELECTRONICS"}
	clothing    = orders.Category{ID: 2, Name: "CLOTHING"}
	books       = orders.Category{ID: 3, Name: "BOOKS"}
)

// DefaultStatuses is PENDING -> PROCESSING -> SHIPPED -> DELIVERED ->
// COMPLETED, plus the CANCELED and REFUNDED side-exits.
func DefaultStatuses() []orders.Status {
	next := func(id int) *int { return &id }
	return []orders.Status{
		{ID: StatusPending, Name: "PENDING", Description: "Order has been created but not processed", NextStatusID: next(StatusProcessing)},
		{ID: StatusProcessing, Name: "PROCESSING", Description: "Order is being processed", NextStatusID: next(StatusShipped)},
		{ID: StatusShipped, Name: "SHIPPED", Description: "Order has been shipped", NextStatusID: next(StatusDelivered)},
		{ID: StatusDelivered, Name: "DELIVERED", Description: "Order has been delivered", NextStatusID: next(StatusCompleted)},
		{ID: StatusCompleted, Name: "COMPLETED", Description: "Order has been completed", IsFinal: true},
		{ID: StatusCanceled, Name: "CANCELED", Description: "Order has been canceled", IsFinal: true},
		{ID: StatusRefunded, Name: "REFUNDED", Description: "Order has been refunded", IsFinal: true},
	}
}

func DefaultProducts() []orders.Product {
	return []orders.Product{
		{ID: 1, Name: "Smartphone X", Description: "Latest smartphone with amazing features", Price: decimal.RequireFromString("999.99"), Stock: 50, Category: electronics},
		{ID: 2, Name: "Cotton T-Shirt", Description: "Comfortable cotton t-shirt", Price: decimal.RequireFromString("29.99"), Stock: 100, Category: clothing},
		{ID: 3, Name: "Programming Guide", Description: "Comprehensive programming guide", Price: decimal.RequireFromString("45.50"), Stock: 75, Category: books},
	}
}

// Seeded returns a store holding the default catalog and status chain.
func Seeded() *Store {
	s := New()
	for _, st := range DefaultStatuses() {
		s.PutStatus(st)
	}
	for _, p := range DefaultProducts() {
		s.PutProduct(p)
	}
	return s
}

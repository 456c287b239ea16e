package orders

import "context"

// Catalog reads current product price and stock.
type Catalog interface {
	FindProducts(ctx context.Context, ids []int64) ([]Product, error)
}

// StatusStore returns the status topology the StatusGraph is built from.
type StatusStore interface {
	ListStatuses(ctx context.Context) ([]Status, error)
}

// OrderStore reads orders with status, lines, products and categories joined.
type OrderStore interface {
	FindOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, error)
}

// UnitOfWork runs fn inside one transaction. The transaction commits only if
// fn returns nil and is rolled back on every other exit path.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of writes (and locking reads) available inside a unit of work.
type Tx interface {
	// LockProducts reads the products and holds a write lock on them until
	// the transaction ends. Missing ids are absent from the map.
	LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
	// DecrementStock returns false, without changing anything, when the
	// product has less than qty units left.
	DecrementStock(ctx context.Context, productID int64, qty int) (bool, error)
	IncrementStock(ctx context.Context, productID int64, qty int) error
	CreateOrder(ctx context.Context, o NewOrder) (Order, error)

	// LockOrder reads the order header and lines (without joins) and holds a
	// write lock on the order row. Returns ErrOrderNotFound when absent.
	LockOrder(ctx context.Context, id int64) (Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, statusID int) error

	ListStatuses(ctx context.Context) ([]Status, error)
	UpdateStatus(ctx context.Context, id int, patch StatusPatch) error
}

// Store is everything the facade needs from persistence.
type Store interface {
	Catalog
	StatusStore
	OrderStore
	UnitOfWork
}

// OrderCache caches stored orders by id. Implementations must be safe for
// concurrent use; failures are treated as misses.
//
// SetOrder must keep an entry whose UpdatedAt is later than o.UpdatedAt, so
// a read that raced a transition cannot put an older status back.
type OrderCache interface {
	GetOrder(ctx context.Context, id int64) (Order, bool)
	SetOrder(ctx context.Context, o Order)
}

// EventPublisher is notified once per committed reservation.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, o Order) error
}

// Recorder receives engine outcomes for metrics.
type Recorder interface {
	ObserveReservation(outcome string)
	ObserveTransition(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveReservation(string) {}
func (nopRecorder) ObserveTransition(string)  {}

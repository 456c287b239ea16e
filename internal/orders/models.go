package orders

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID   int64
	Name string
}

type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    Category
}

type Status struct {
	ID           int
	Name         string
	Description  string
	IsFinal      bool
	NextStatusID *int // nil on terminal nodes
}

type Order struct {
	ID        int64
	UserID    int64
	StatusID  int
	Status    Status // joined on read
	Total     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
	Lines     []OrderLine // creation order, immutable
}

type OrderLine struct {
	ID        int64
	ProductID int64
	Quantity  int
	Product   Product // joined on read, zero when the store did not join it
}

// Line is a parsed order request line.
type Line struct {
	ProductID int64
	Quantity  int
}

// LineRequest is a request line as it arrives from the API boundary.
type LineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Requester is the authenticated caller of a facade operation.
type Requester struct {
	UserID  int64
	IsAdmin bool
}

// owns reports whether r may read or advance an order owned by ownerID.
func (r Requester) owns(ownerID int64) bool {
	return r.IsAdmin || r.UserID == ownerID
}

type NewOrder struct {
	UserID   int64
	StatusID int
	Total    decimal.Decimal
	Lines    []Line
}

type OrderFilter struct {
	UserID *int64 // nil lists every order
}

// Optional distinguishes an absent field (Set=false) from an explicit null
// (Set=true, Value=nil) in partial updates.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func Some[T any](v T) Optional[T] { return Optional[T]{Set: true, Value: &v} }

func Null[T any]() Optional[T] { return Optional[T]{Set: true} }

// UnmarshalJSON only runs when the key is present, which is what marks the
// field as set.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// StatusPatch is a partial update of a status node. Nil pointers leave the
// column unchanged.
type StatusPatch struct {
	Name         *string       `json:"name"`
	Description  *string       `json:"description"`
	IsFinal      *bool         `json:"isFinal"`
	NextStatusID Optional[int] `json:"nextStatusId"`
}

func (p StatusPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.IsFinal == nil && !p.NextStatusID.Set
}

package orders

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// View is the transport shape of an order. 64-bit identifiers are rendered
// as decimal text so they survive JSON clients with float64 numbers.
type View struct {
	ID            string          `json:"id"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	StatusID      int             `json:"statusId"`
	UserID        string          `json:"userId"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Status        StatusView      `json:"status"`
	OrderProducts []LineView      `json:"orderProducts"`
}

type StatusView struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	IsFinal      bool   `json:"isFinal"`
	NextStatusID *int   `json:"nextStatusId"`
}

// StatusDetailView is a status with its chain neighbours joined.
type StatusDetailView struct {
	StatusView
	NextStatus     *StatusView `json:"nextStatus"`
	PreviousStatus *StatusView `json:"previousStatus"`
}

type LineView struct {
	ID        string      `json:"id"`
	ProductID string      `json:"productId"`
	Quantity  int         `json:"quantity"`
	Product   ProductView `json:"product"`
}

// ProductView flattens the category onto the product.
type ProductView struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
	CategoryID    int64           `json:"categoryId"`
	CategoryName  string          `json:"categoryName"`
}

// NewView shapes a stored order. It is a pure function of its input.
func NewView(o Order) View {
	v := View{
		ID:            FormatID(o.ID),
		TotalAmount:   o.Total,
		StatusID:      o.StatusID,
		UserID:        FormatID(o.UserID),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		Status:        NewStatusView(o.Status),
		OrderProducts: make([]LineView, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		v.OrderProducts = append(v.OrderProducts, LineView{
			ID:        FormatID(l.ID),
			ProductID: FormatID(l.ProductID),
			Quantity:  l.Quantity,
			Product: ProductView{
				ID:            FormatID(l.ProductID),
				Name:          l.Product.Name,
				Description:   l.Product.Description,
				Price:         l.Product.Price,
				StockQuantity: l.Product.Stock,
				CategoryID:    l.Product.Category.ID,
				CategoryName:  l.Product.Category.Name,
			},
		})
	}
	return v
}

func NewStatusView(s Status) StatusView {
	v := StatusView{ID: s.ID, Name: s.Name, Description: s.Description, IsFinal: s.IsFinal}
	if s.NextStatusID != nil {
		next := *s.NextStatusID
		v.NextStatusID = &next
	}
	return v
}

func NewStatusViews(statuses []Status) []StatusView {
	out := make([]StatusView, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, NewStatusView(s))
	}
	return out
}

func FormatID(id int64) string { return strconv.FormatInt(id, 10) }

// ParseID parses a decimal-text identifier.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", ErrInvalidInput, s)
	}
	return id, nil
}

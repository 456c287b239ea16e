package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repo is the Postgres implementation of Store. Numerics cross the wire as
// text and are parsed with decimal to avoid float rounding.
type Repo struct{ DB *pgxpool.Pool }

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const productColumns = `p.id, p.name, COALESCE(p.description, ''), p.price::text, p.stock_quantity, c.id, c.name`

const statusColumns = `s.id, s.name, COALESCE(s.description, ''), s.is_final, s.next_status_id`

func (r *Repo) FindProducts(ctx context.Context, ids []int64) ([]Product, error) {
	return queryProducts(ctx, r.DB, `SELECT `+productColumns+`
		FROM products p JOIN categories c ON c.id = p.category_id
		WHERE p.id = ANY($1) ORDER BY p.id`, ids)
}

func (r *Repo) ListStatuses(ctx context.Context) ([]Status, error) {
	return queryStatuses(ctx, r.DB, `SELECT `+statusColumns+` FROM statuses s ORDER BY s.id`)
}

func (r *Repo) FindOrder(ctx context.Context, id int64) (Order, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT o.id, o.user_id, o.status_id, o.total_amount::text, o.created_at, o.updated_at, `+statusColumns+`
		FROM orders o JOIN statuses s ON s.id = o.status_id
		WHERE o.id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	if err != nil {
		return Order{}, err
	}
	lines, err := loadLines(ctx, r.DB, []int64{id})
	if err != nil {
		return Order{}, err
	}
	o.Lines = lines[id]
	return o, nil
}

func (r *Repo) ListOrders(ctx context.Context, f OrderFilter) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT o.id, o.user_id, o.status_id, o.total_amount::text, o.created_at, o.updated_at, `+statusColumns+`
		FROM orders o JOIN statuses s ON s.id = o.status_id
		WHERE ($1::bigint IS NULL OR o.user_id = $1)
		ORDER BY o.id`, f.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	var ids []int64
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	lines, err := loadLines(ctx, r.DB, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, nil
}

// WithinTx runs fn in a read-committed transaction. Row locks taken inside fn
// provide the serialization the engines rely on.
func (r *Repo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return classifyTxError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classifyTxError(err)
	}
	return nil
}

// classifyTxError maps Postgres aborts caused by concurrent writers to
// ErrTxConflict.
func classifyTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", ErrTxConflict, pgErr.Message)
		}
	}
	return err
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o     Order
		total string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.StatusID, &total, &o.CreatedAt, &o.UpdatedAt,
		&o.Status.ID, &o.Status.Name, &o.Status.Description, &o.Status.IsFinal, &o.Status.NextStatusID)
	if err != nil {
		return Order{}, err
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return Order{}, fmt.Errorf("order %d total %q: %w", o.ID, total, err)
	}
	return o, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p     Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.Category.ID, &p.Category.Name); err != nil {
		return Product{}, err
	}
	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return Product{}, fmt.Errorf("product %d price %q: %w", p.ID, price, err)
	}
	return p, nil
}

func queryProducts(ctx context.Context, q querier, sql string, args ...any) ([]Product, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func queryStatuses(ctx context.Context, q querier, sql string) ([]Status, error) {
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Status
	for rows.Next() {
		var s Status
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.IsFinal, &s.NextStatusID); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// loadLines returns the lines of the given orders, joined with product and
// category, in creation order.
func loadLines(ctx context.Context, q querier, orderIDs []int64) (map[int64][]OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT ol.order_id, ol.id, ol.quantity, `+productColumns+`
		FROM order_lines ol
		JOIN products p ON p.id = ol.product_id
		JOIN categories c ON c.id = p.category_id
		WHERE ol.order_id = ANY($1)
		ORDER BY ol.order_id, ol.id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]OrderLine, len(orderIDs))
	for rows.Next() {
		var (
			orderID int64
			l       OrderLine
			price   string
		)
		p := &l.Product
		if err := rows.Scan(&orderID, &l.ID, &l.Quantity,
			&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.Category.ID, &p.Category.Name); err != nil {
			return nil, err
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("product %d price %q: %w", p.ID, price, err)
		}
		l.ProductID = p.ID
		out[orderID] = append(out[orderID], l)
	}
	return out, rows.Err()
}

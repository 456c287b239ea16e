package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// pgTx implements Tx on an open pgx transaction.
type pgTx struct{ tx pgx.Tx }

// LockProducts: SELECT ... FOR UPDATE in ascending id order. Concurrent
// reservations of the same product queue here until the holder commits.
func (t *pgTx) LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	list, err := queryProducts(ctx, t.tx, `SELECT `+productColumns+`
		FROM products p JOIN categories c ON c.id = p.category_id
		WHERE p.id = ANY($1) ORDER BY p.id FOR UPDATE OF p`, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Product, len(list))
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

// DecrementStock is guarded by stock_quantity >= qty, so stock cannot go
// negative even if the caller skipped the locked re-check.
func (t *pgTx) DecrementStock(ctx context.Context, productID int64, qty int) (bool, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND stock_quantity >= $2`, productID, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *pgTx) IncrementStock(ctx context.Context, productID int64, qty int) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return &ProductNotFoundError{ProductID: productID}
	}
	return nil
}

func (t *pgTx) CreateOrder(ctx context.Context, o NewOrder) (Order, error) {
	created := Order{UserID: o.UserID, StatusID: o.StatusID, Total: o.Total}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders(user_id, status_id, total_amount)
		VALUES ($1, $2, $3::text::numeric)
		RETURNING id, created_at, updated_at`,
		o.UserID, o.StatusID, o.Total.StringFixed(2),
	).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return Order{}, err
	}

	created.Lines = make([]OrderLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		line := OrderLine{ProductID: l.ProductID, Quantity: l.Quantity}
		if err := t.tx.QueryRow(ctx, `
			INSERT INTO order_lines(order_id, product_id, quantity)
			VALUES ($1, $2, $3) RETURNING id`,
			created.ID, l.ProductID, l.Quantity,
		).Scan(&line.ID); err != nil {
			return Order{}, err
		}
		created.Lines = append(created.Lines, line)
	}
	return created, nil
}

func (t *pgTx) LockOrder(ctx context.Context, id int64) (Order, error) {
	o := Order{ID: id}
	var total string
	err := t.tx.QueryRow(ctx, `
		SELECT user_id, status_id, total_amount::text, created_at, updated_at
		FROM orders WHERE id = $1 FOR UPDATE`, id,
	).Scan(&o.UserID, &o.StatusID, &total, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	if err != nil {
		return Order{}, err
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return Order{}, fmt.Errorf("order %d total: %w", id, err)
	}

	rows, err := t.tx.Query(ctx, `SELECT id, product_id, quantity FROM order_lines WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.ProductID, &l.Quantity); err != nil {
			return Order{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

// UpdateOrderStatus stamps clock_timestamp() rather than now(): the row lock
// is held by then, so successive transitions of one order get increasing
// UpdatedAt values, which the order cache orders entries by.
func (t *pgTx) UpdateOrderStatus(ctx context.Context, id int64, statusID int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET status_id = $2, updated_at = clock_timestamp() WHERE id = $1`, id, statusID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	return nil
}

// ListStatuses locks the status rows so concurrent patches of the chain are
// validated one at a time.
func (t *pgTx) ListStatuses(ctx context.Context) ([]Status, error) {
	return queryStatuses(ctx, t.tx, `SELECT `+statusColumns+` FROM statuses s ORDER BY s.id FOR UPDATE`)
}

func (t *pgTx) UpdateStatus(ctx context.Context, id int, patch StatusPatch) error {
	var (
		sets []string
		args = []any{id}
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.IsFinal != nil {
		set("is_final", *patch.IsFinal)
	}
	if patch.NextStatusID.Set {
		set("next_status_id", patch.NextStatusID.Value) // nil pointer writes NULL
	}
	if len(sets) == 0 {
		return fmt.Errorf("%w: empty status patch", ErrInvalidInput)
	}

	ct, err := t.tx.Exec(ctx, `UPDATE statuses SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			return fmt.Errorf("%w: next status does not exist", ErrInvalidStatusGraph)
		}
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %d", ErrStatusNotFound, id)
	}
	return nil
}

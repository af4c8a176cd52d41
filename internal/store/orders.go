package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/safar/trade-credit/internal/database"
	"github.com/safar/trade-credit/internal/models"
)

const orderColumns = `id, business_id, idempotency_key, total_cents, status, ordered_at, due_at, settled_at`

func scanOrder(row scanner, order *models.Order) error {
	var settledAt sql.NullTime
	err := row.Scan(
		&order.ID,
		&order.BusinessID,
		&order.IdempotencyKey,
		&order.TotalCents,
		&order.Status,
		&order.OrderedAt,
		&order.DueAt,
		&settledAt,
	)
	if err != nil {
		return err
	}
	if settledAt.Valid {
		t := settledAt.Time
		order.SettledAt = &t
	}
	return nil
}

// InsertOrder writes order and its lines. Line totals must already be
// computed; the order total is stored as given.
func InsertOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, business_id, idempotency_key, total_cents, status, ordered_at, due_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		order.ID, order.BusinessID, order.IdempotencyKey, order.TotalCents, order.Status, order.OrderedAt, order.DueAt)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID

		err := tx.QueryRowContext(ctx,
			`INSERT INTO order_lines (order_id, product_id, quantity, unit_price_cents, line_total_cents)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			order.ID, line.ProductID, line.Quantity, line.UnitPriceCents, line.LineTotalCents).Scan(&line.ID)
		if err != nil {
			return fmt.Errorf("create order line: %w", err)
		}
	}

	return nil
}

// GetOrder loads an order of businessID with its lines. An order owned by
// another business is reported as not found.
func GetOrder(ctx context.Context, q Querier, businessID, id uuid.UUID) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND business_id = $2`

	if err := scanOrder(q.QueryRowContext(ctx, query, id, businessID), order); err != nil {
		if err == sql.ErrNoRows {
			return nil, &database.NotFoundError{Kind: "order", ID: id}
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	linesQuery := `
		SELECT id, order_id, product_id, quantity, unit_price_cents, line_total_cents
		FROM order_lines
		WHERE order_id = $1
		ORDER BY id`

	rows, err := q.QueryContext(ctx, linesQuery, id)
	if err != nil {
		return nil, fmt.Errorf("get order lines: %w", err)
	}
	defer rows.Close()

	var lines []models.OrderLine
	for rows.Next() {
		var line models.OrderLine
		err := rows.Scan(
			&line.ID,
			&line.OrderID,
			&line.ProductID,
			&line.Quantity,
			&line.UnitPriceCents,
			&line.LineTotalCents,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	order.Lines = lines

	return order, nil
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, businessID uuid.UUID, cursor string, limit int) (*CursorPage, error) {
	if limit < 1 || limit > MaxPageSize {
		return nil, database.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", MaxPageSize))
	}

	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, database.NewValidationError("cursor", "is malformed")
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE business_id = $1
		  AND (ordered_at, id) < ($2, $3)
		ORDER BY ordered_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, businessID, cursorData.OrderedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			OrderedAt: lastOrder.OrderedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// SettleOrder closes an open order and releases its total from the
// business's balance. The account is locked first, matching the purchase
// lock order.
func SettleOrder(ctx context.Context, db *sql.DB, businessID, orderID uuid.UUID, at time.Time) (*models.Order, error) {
	order := &models.Order{}

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if _, err := LockCreditAccount(ctx, tx, businessID); err != nil {
			return err
		}

		query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND business_id = $2 FOR UPDATE`
		if err := scanOrder(tx.QueryRowContext(ctx, query, orderID, businessID), order); err != nil {
			if err == sql.ErrNoRows {
				return &database.NotFoundError{Kind: "order", ID: orderID}
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if order.Status != models.OrderStatusOpen {
			return database.ErrOrderNotOpen
		}

		_, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, settled_at = $2 WHERE id = $3`,
			models.OrderStatusSettled, at, orderID)
		if err != nil {
			return fmt.Errorf("settle order: %w", err)
		}

		if err := AdjustBalance(ctx, tx, businessID, -order.TotalCents); err != nil {
			return err
		}

		order.Status = models.OrderStatusSettled
		settled := at
		order.SettledAt = &settled
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

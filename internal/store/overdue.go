package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/safar/trade-credit/internal/database"
	"github.com/safar/trade-credit/internal/models"
	"github.com/shopspring/decimal"
)

// OverdueFilter narrows the overdue listing to orders whose due date lies in
// [DueAfter, DueBefore). Nil bounds are open. AsOf is the instant that
// decides whether an open order is overdue.
type OverdueFilter struct {
	DueBefore *time.Time
	DueAfter  *time.Time
	AsOf      time.Time
}

// daysBetween counts whole days from due to asOf, never negative.
func daysBetween(due, asOf time.Time) int {
	if !asOf.After(due) {
		return 0
	}
	return int(asOf.Sub(due) / (24 * time.Hour))
}

// GetOverdueSummary aggregates the open orders of one business. It returns
// nil without error when the business has no open orders.
func GetOverdueSummary(ctx context.Context, db *sql.DB, businessID uuid.UUID, asOf time.Time) (*models.OverdueSummary, error) {
	var summary *models.OverdueSummary

	err := database.WithTransaction(ctx, db, database.ReadOnlySnapshot(), func(tx *sql.Tx) error {
		account, err := GetCreditAccount(ctx, tx, businessID)
		if err != nil {
			return err
		}

		var (
			outstanding, overdue int64
			openCount, overdueN  int
			oldestDue            sql.NullTime
		)

		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(total_cents), 0),
			        COALESCE(SUM(total_cents) FILTER (WHERE due_at < $2), 0),
			        COUNT(*),
			        COUNT(*) FILTER (WHERE due_at < $2),
			        MIN(due_at)
			 FROM orders
			 WHERE business_id = $1
			   AND status = $3`,
			businessID, asOf, models.OrderStatusOpen).Scan(
			&outstanding,
			&overdue,
			&openCount,
			&overdueN,
			&oldestDue,
		)
		if err != nil {
			return fmt.Errorf("summarise open orders: %w", err)
		}

		if openCount == 0 {
			return nil
		}

		summary = &models.OverdueSummary{
			BusinessID:        businessID,
			OutstandingCents:  outstanding,
			OverdueCents:      overdue,
			OpenOrderCount:    openCount,
			OverdueOrderCount: overdueN,
			CreditLimitCents:  account.CreditLimitCents,
			BalanceCents:      account.BalanceCents,
			CreditUtilization: Utilization(account.BalanceCents, account.CreditLimitCents),
		}
		if oldestDue.Valid {
			due := oldestDue.Time
			summary.OldestDueDate = &due
			summary.DaysOverdue = daysBetween(due, asOf)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return summary, nil
}

// Utilization is balance/limit rounded to four places. A zero limit with a
// zero balance is 0.
func Utilization(balanceCents, limitCents int64) decimal.Decimal {
	if limitCents == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(balanceCents).
		DivRound(decimal.NewFromInt(limitCents), 4)
}

const overdueOrdersPredicate = `
	o.status = $1
	AND o.due_at < $2
	AND ($3::timestamptz IS NULL OR o.due_at < $3)
	AND ($4::timestamptz IS NULL OR o.due_at >= $4)`

// ListOverdueBusinesses returns one row per business with at least one
// overdue order matching filter. The page and the total are read from the
// same snapshot, so total does not depend on which page was asked for.
func ListOverdueBusinesses(ctx context.Context, db *sql.DB, filter OverdueFilter, page, pageSize int) (*OffsetPage, error) {
	if err := CheckPage(page, pageSize); err != nil {
		return nil, err
	}

	var total int64
	items := []models.OverdueBusiness{}

	args := []any{models.OrderStatusOpen, filter.AsOf, filter.DueBefore, filter.DueAfter}

	err := database.WithTransaction(ctx, db, database.ReadOnlySnapshot(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(DISTINCT o.business_id) FROM orders o WHERE`+overdueOrdersPredicate,
			args...).Scan(&total)
		if err != nil {
			return fmt.Errorf("count overdue businesses: %w", err)
		}

		if total == 0 {
			return nil
		}

		query := `
			WITH overdue AS (
				SELECT o.business_id,
				       SUM(o.total_cents) AS overdue_cents,
				       COUNT(*)           AS overdue_orders,
				       MIN(o.due_at)      AS oldest_due
				FROM orders o
				WHERE` + overdueOrdersPredicate + `
				GROUP BY o.business_id
			)
			SELECT b.id, b.name, ov.overdue_cents, ov.overdue_orders, ov.oldest_due,
			       ca.balance_cents, ca.credit_limit_cents
			FROM overdue ov
			JOIN businesses b ON b.id = ov.business_id
			JOIN credit_accounts ca ON ca.business_id = ov.business_id
			ORDER BY ov.overdue_cents DESC, b.id
			LIMIT $5 OFFSET $6`

		offset := (page - 1) * pageSize
		rows, err := tx.QueryContext(ctx, query, append(args, pageSize, offset)...)
		if err != nil {
			return fmt.Errorf("list overdue businesses: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var item models.OverdueBusiness
			err := rows.Scan(
				&item.BusinessID,
				&item.BusinessName,
				&item.OverdueCents,
				&item.OverdueOrderCount,
				&item.OldestDueDate,
				&item.BalanceCents,
				&item.CreditLimitCents,
			)
			if err != nil {
				return fmt.Errorf("scan overdue business: %w", err)
			}
			item.DaysOverdue = daysBetween(item.OldestDueDate, filter.AsOf)
			items = append(items, item)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return newOffsetPage(items, total, page, pageSize), nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/safar/trade-credit/internal/database"
	"github.com/safar/trade-credit/internal/models"
	"github.com/safar/trade-credit/internal/validation"
)

type CreateBusinessRequest struct {
	Name             string `json:"name" validate:"required,max=200"`
	CreditLimitCents int64  `json:"creditLimitCents" validate:"gte=0"`
}

// CreateBusiness inserts the business and its credit account in one
// transaction, so a failed account insert leaves no business behind.
func CreateBusiness(ctx context.Context, db *sql.DB, req CreateBusinessRequest) (*models.Business, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	business := &models.Business{}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO businesses (id, name, created_at, updated_at)
			 VALUES ($1, $2, NOW(), NOW())
			 RETURNING id, name, created_at, updated_at`,
			uuid.New(), req.Name).Scan(
			&business.ID,
			&business.Name,
			&business.CreatedAt,
			&business.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("create business: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO credit_accounts (business_id, credit_limit_cents, balance_cents, updated_at)
			 VALUES ($1, $2, 0, NOW())`,
			business.ID, req.CreditLimitCents)
		if err != nil {
			return fmt.Errorf("create credit account: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return business, nil
}

func GetBusiness(ctx context.Context, q Querier, id uuid.UUID) (*models.Business, error) {
	business := &models.Business{}

	query := `
		SELECT id, name, created_at, updated_at
		FROM businesses
		WHERE id = $1`

	err := q.QueryRowContext(ctx, query, id).Scan(
		&business.ID,
		&business.Name,
		&business.CreatedAt,
		&business.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &database.NotFoundError{Kind: "business", ID: id}
		}
		return nil, fmt.Errorf("get business: %w", err)
	}

	return business, nil
}

func GetCreditAccount(ctx context.Context, q Querier, businessID uuid.UUID) (*models.CreditAccount, error) {
	return scanCreditAccount(ctx, q, businessID, `
		SELECT business_id, credit_limit_cents, balance_cents, updated_at
		FROM credit_accounts
		WHERE business_id = $1`)
}

// LockCreditAccount takes the row lock every purchase for the business
// queues behind.
func LockCreditAccount(ctx context.Context, tx *sql.Tx, businessID uuid.UUID) (*models.CreditAccount, error) {
	return scanCreditAccount(ctx, tx, businessID, `
		SELECT business_id, credit_limit_cents, balance_cents, updated_at
		FROM credit_accounts
		WHERE business_id = $1
		FOR UPDATE`)
}

func scanCreditAccount(ctx context.Context, q Querier, businessID uuid.UUID, query string) (*models.CreditAccount, error) {
	account := &models.CreditAccount{}

	err := q.QueryRowContext(ctx, query, businessID).Scan(
		&account.BusinessID,
		&account.CreditLimitCents,
		&account.BalanceCents,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &database.NotFoundError{Kind: "business", ID: businessID}
		}
		return nil, fmt.Errorf("get credit account: %w", err)
	}

	return account, nil
}

// AdjustBalance adds deltaCents (which may be negative) to the balance. The
// guard re-checks the limit and the floor in the same statement.
func AdjustBalance(ctx context.Context, tx *sql.Tx, businessID uuid.UUID, deltaCents int64) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE credit_accounts
		 SET balance_cents = balance_cents + $1,
		     updated_at = NOW()
		 WHERE business_id = $2
		   AND balance_cents + $1 BETWEEN 0 AND credit_limit_cents`,
		deltaCents, businessID)
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		account, err := GetCreditAccount(ctx, tx, businessID)
		if err != nil {
			return err
		}
		return &database.CreditLimitExceededError{
			LimitCents:      account.CreditLimitCents,
			BalanceCents:    account.BalanceCents,
			OrderTotalCents: deltaCents,
		}
	}

	return nil
}

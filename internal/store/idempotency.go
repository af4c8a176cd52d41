package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/safar/trade-credit/internal/models"
)

// GetIdempotencyRecord reads the record for (businessID, key). Records never
// change once written, so the read takes no lock. found is false when no
// request with this key has completed.
func GetIdempotencyRecord(ctx context.Context, q Querier, businessID, key uuid.UUID) (*models.IdempotencyRecord, bool, error) {
	record := &models.IdempotencyRecord{}

	var orderID uuid.NullUUID
	var errorCode sql.NullString
	var errorDetail []byte

	err := q.QueryRowContext(ctx,
		`SELECT business_id, idempotency_key, request_hash, outcome, order_id, error_code, error_detail, created_at
		 FROM idempotency_records
		 WHERE business_id = $1 AND idempotency_key = $2`,
		businessID, key).Scan(
		&record.BusinessID,
		&record.IdempotencyKey,
		&record.RequestHash,
		&record.Outcome,
		&orderID,
		&errorCode,
		&errorDetail,
		&record.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get idempotency record: %w", err)
	}

	if orderID.Valid {
		id := orderID.UUID
		record.OrderID = &id
	}
	record.ErrorCode = errorCode.String
	record.ErrorDetail = errorDetail

	return record, true, nil
}

// InsertIdempotencyRecord writes the record. Losing a race against a
// concurrent request with the same key surfaces as a unique violation on
// idempotency_records_pkey, which the retry loop treats as "found".
func InsertIdempotencyRecord(ctx context.Context, tx *sql.Tx, record *models.IdempotencyRecord) error {
	var orderID uuid.NullUUID
	if record.OrderID != nil {
		orderID = uuid.NullUUID{UUID: *record.OrderID, Valid: true}
	}

	var errorCode sql.NullString
	if record.ErrorCode != "" {
		errorCode = sql.NullString{String: record.ErrorCode, Valid: true}
	}

	var errorDetail any
	if len(record.ErrorDetail) > 0 {
		errorDetail = string(record.ErrorDetail)
	}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO idempotency_records
		     (business_id, idempotency_key, request_hash, outcome, order_id, error_code, error_detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, NOW())
		 RETURNING created_at`,
		record.BusinessID, record.IdempotencyKey, record.RequestHash, record.Outcome,
		orderID, errorCode, errorDetail).Scan(&record.CreatedAt)
	if err != nil {
		return fmt.Errorf("create idempotency record: %w", err)
	}

	return nil
}

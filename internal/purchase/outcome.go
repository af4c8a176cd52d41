package purchase

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/safar/trade-credit/internal/database"
	"github.com/safar/trade-credit/internal/models"
)

// Error codes persisted with failed idempotency records.
const (
	CodeProductNotFound     = "product_not_found"
	CodeInsufficientStock   = "insufficient_stock"
	CodeCreditLimitExceeded = "credit_limit_exceeded"
)

// encodeFailure turns a business-rule error into the code and detail stored
// on the idempotency record. ok is false for errors that must not be
// recorded (transient or unexpected failures).
func encodeFailure(err error) (code string, detail []byte, ok bool) {
	var (
		notFound *database.NotFoundError
		stock    *database.InsufficientStockError
		credit   *database.CreditLimitExceededError
		payload  any
	)

	switch {
	case errors.As(err, &notFound) && notFound.Kind == "product":
		code, payload = CodeProductNotFound, notFound
	case errors.As(err, &stock):
		code, payload = CodeInsufficientStock, stock
	case errors.As(err, &credit):
		code, payload = CodeCreditLimitExceeded, credit
	default:
		return "", nil, false
	}

	detail, mErr := json.Marshal(payload)
	if mErr != nil {
		return "", nil, false
	}
	return code, detail, true
}

func decodeFailure(code string, detail []byte) error {
	var target error

	switch code {
	case CodeProductNotFound:
		target = &database.NotFoundError{}
	case CodeInsufficientStock:
		target = &database.InsufficientStockError{}
	case CodeCreditLimitExceeded:
		target = &database.CreditLimitExceededError{}
	default:
		return fmt.Errorf("unknown recorded failure %q", code)
	}

	if len(detail) > 0 {
		if err := json.Unmarshal(detail, target); err != nil {
			return fmt.Errorf("decode recorded failure %q: %w", code, err)
		}
	}
	return target
}

// result converts a stored record into what Purchase returns.
func result(record *models.IdempotencyRecord) (uuid.UUID, error) {
	switch record.Outcome {
	case models.OutcomeSucceeded:
		if record.OrderID == nil {
			return uuid.Nil, errors.New("succeeded idempotency record without order id")
		}
		return *record.OrderID, nil
	case models.OutcomeFailed:
		return uuid.Nil, decodeFailure(record.ErrorCode, record.ErrorDetail)
	}
	return uuid.Nil, fmt.Errorf("unknown idempotency outcome %q", record.Outcome)
}

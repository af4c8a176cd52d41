package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
	// ErrorClassDuplicateKey marks a lost race on the idempotency registry's
	// primary key. Retrying re-reads the winner's record.
	ErrorClassDuplicateKey
)

const (
	IdempotencyKeyConstraint = "idempotency_records_pkey"
	ProductSKUConstraint     = "products_business_sku_key"
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03", "57014":
			return ErrorClassTransient
		case "23505":
			if pqErr.Constraint == IdempotencyKeyConstraint {
				return ErrorClassDuplicateKey
			}
			return ErrorClassPermanent
		case "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization ||
		class == ErrorClassDuplicateKey
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == constraint
}

// IsDuplicateSKU reports whether err is the per-business SKU uniqueness violation.
func IsDuplicateSKU(err error) bool {
	return isUniqueViolation(err, ProductSKUConstraint)
}

var (
	ErrValidation          = errors.New("validation failed")
	ErrBusinessNotFound    = errors.New("business not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
	ErrOrderNotOpen        = errors.New("order is not open")
	ErrNoFieldsToUpdate    = errors.New("no fields to update")
	ErrDuplicateSKU        = errors.New("sku already exists for business")
	ErrTransient           = errors.New("transient storage failure")
)

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError names the missing entity. Kind is "business", "product" or
// "order"; cross-tenant references are reported the same way as missing ones.
type NotFoundError struct {
	Kind string    `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	switch e.Kind {
	case "business":
		return ErrBusinessNotFound
	case "product":
		return ErrProductNotFound
	case "order":
		return ErrOrderNotFound
	}
	return nil
}

type InsufficientStockError struct {
	ProductID uuid.UUID `json:"productId"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

type CreditLimitExceededError struct {
	LimitCents      int64 `json:"creditLimitCents"`
	BalanceCents    int64 `json:"balanceCents"`
	OrderTotalCents int64 `json:"orderTotalCents"`
}

func (e *CreditLimitExceededError) Error() string {
	return fmt.Sprintf("credit limit exceeded: limit %d, balance %d, order total %d",
		e.LimitCents, e.BalanceCents, e.OrderTotalCents)
}

func (e *CreditLimitExceededError) Unwrap() error {
	return ErrCreditLimitExceeded
}

// TransientError is returned once the retry budget is spent. The identical
// request may be resubmitted.
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() []error {
	return []error{ErrTransient, e.Err}
}

func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrCreditLimitExceeded) ||
		errors.Is(err, ErrNoFieldsToUpdate) ||
		errors.Is(err, ErrDuplicateSKU) ||
		errors.Is(err, ErrOrderNotOpen)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrBusinessNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrOrderNotFound)
}

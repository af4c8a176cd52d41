package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassPermanent},
		{"serialization", &pq.Error{Code: "40001"}, ErrorClassSerialization},
		{"deadlock", &pq.Error{Code: "40P01"}, ErrorClassDeadlock},
		{"lock not available", &pq.Error{Code: "55P03"}, ErrorClassTransient},
		{"wrapped lock not available", fmt.Errorf("lock product: %w", &pq.Error{Code: "55P03"}), ErrorClassTransient},
		{"statement timeout", &pq.Error{Code: "57014"}, ErrorClassTransient},
		{"idempotency race", &pq.Error{Code: "23505", Constraint: IdempotencyKeyConstraint}, ErrorClassDuplicateKey},
		{"duplicate sku", &pq.Error{Code: "23505", Constraint: ProductSKUConstraint}, ErrorClassPermanent},
		{"check violation", &pq.Error{Code: "23514"}, ErrorClassPermanent},
		{"no rows", sql.ErrNoRows, ErrorClassPermanent},
		{"canceled", context.Canceled, ErrorClassPermanent},
		{"business rule", ErrInsufficientStock, ErrorClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pq.Error{Code: "40001"}))
	assert.True(t, IsRetryable(&pq.Error{Code: "23505", Constraint: IdempotencyKeyConstraint}))
	assert.False(t, IsRetryable(&pq.Error{Code: "23505", Constraint: ProductSKUConstraint}))
	assert.False(t, IsRetryable(&CreditLimitExceededError{}))
}

func TestStructuredErrorsUnwrapToSentinels(t *testing.T) {
	id := uuid.New()

	assert.ErrorIs(t, &InsufficientStockError{ProductID: id, Requested: 200, Available: 50}, ErrInsufficientStock)
	assert.ErrorIs(t, &CreditLimitExceededError{LimitCents: 500000, OrderTotalCents: 600000}, ErrCreditLimitExceeded)
	assert.ErrorIs(t, NewValidationError("items", "must not be empty"), ErrValidation)
	assert.ErrorIs(t, &NotFoundError{Kind: "business", ID: id}, ErrBusinessNotFound)
	assert.ErrorIs(t, &NotFoundError{Kind: "product", ID: id}, ErrProductNotFound)
	assert.ErrorIs(t, &NotFoundError{Kind: "order", ID: id}, ErrOrderNotFound)

	transient := &TransientError{Attempts: 4, Err: &pq.Error{Code: "40P01"}}
	assert.ErrorIs(t, transient, ErrTransient)
	var pqErr *pq.Error
	assert.True(t, errors.As(transient, &pqErr))
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsClientError(&InsufficientStockError{}))
	assert.True(t, IsClientError(NewValidationError("page", "must be positive")))
	assert.False(t, IsClientError(ErrTransient))

	assert.True(t, IsNotFound(&NotFoundError{Kind: "product"}))
	assert.False(t, IsNotFound(ErrInsufficientStock))
}

func TestInsufficientStockMessageNamesProduct(t *testing.T) {
	id := uuid.MustParse("3e5a9b2c-1d4f-4b7a-8c9d-1e2f3a4b5c6d")
	err := &InsufficientStockError{ProductID: id, Requested: 200, Available: 50}
	assert.Contains(t, err.Error(), id.String())
	assert.Contains(t, err.Error(), "requested 200, available 50")
}

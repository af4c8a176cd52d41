package purchase

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/trade-credit/internal/database"
	"github.com/safar/trade-credit/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureCodecRoundTrip(t *testing.T) {
	productID := uuid.New()

	tests := []struct {
		name     string
		err      error
		code     string
		sentinel error
	}{
		{"stock", &database.InsufficientStockError{ProductID: productID, Requested: 200, Available: 50}, CodeInsufficientStock, database.ErrInsufficientStock},
		{"credit", &database.CreditLimitExceededError{LimitCents: 500000, BalanceCents: 0, OrderTotalCents: 600000}, CodeCreditLimitExceeded, database.ErrCreditLimitExceeded},
		{"product", &database.NotFoundError{Kind: "product", ID: productID}, CodeProductNotFound, database.ErrProductNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, detail, ok := encodeFailure(tt.err)
			require.True(t, ok)
			assert.Equal(t, tt.code, code)

			decoded := decodeFailure(code, detail)
			assert.ErrorIs(t, decoded, tt.sentinel)
			assert.Equal(t, tt.err.Error(), decoded.Error())
		})
	}
}

func TestEncodeFailureSkipsUnrecordableErrors(t *testing.T) {
	for _, err := range []error{
		&database.NotFoundError{Kind: "business", ID: uuid.New()},
		&database.TransientError{Attempts: 4, Err: &pq.Error{Code: "40P01"}},
		errors.New("boom"),
	} {
		_, _, ok := encodeFailure(err)
		assert.False(t, ok, err.Error())
	}
}

func TestResult(t *testing.T) {
	orderID := uuid.New()

	got, err := result(&models.IdempotencyRecord{Outcome: models.OutcomeSucceeded, OrderID: &orderID})
	require.NoError(t, err)
	assert.Equal(t, orderID, got)

	_, err = result(&models.IdempotencyRecord{Outcome: models.OutcomeFailed, ErrorCode: CodeInsufficientStock, ErrorDetail: []byte(`{"productId":"` + orderID.String() + `","requested":3,"available":1}`)})
	var stock *database.InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, 3, stock.Requested)
	assert.Equal(t, 1, stock.Available)

	_, err = result(&models.IdempotencyRecord{Outcome: models.OutcomeFailed, ErrorCode: "mystery"})
	assert.Error(t, err)
}

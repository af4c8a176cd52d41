package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/safar/trade-credit/internal/models"
)

// Ledger binds the store functions to one database for callers that want a
// value rather than free functions.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

func (l *Ledger) CreateBusiness(ctx context.Context, req CreateBusinessRequest) (*models.Business, error) {
	return CreateBusiness(ctx, l.db, req)
}

func (l *Ledger) CreateProduct(ctx context.Context, req CreateProductRequest) (*models.Product, error) {
	return CreateProduct(ctx, l.db, req)
}

func (l *Ledger) UpdateProduct(ctx context.Context, productID, businessID uuid.UUID, update models.ProductUpdate) (*models.Product, error) {
	return UpdateProduct(ctx, l.db, productID, businessID, update)
}

func (l *Ledger) ListProducts(ctx context.Context, businessID uuid.UUID, page, pageSize int) (*OffsetPage, error) {
	return ListProducts(ctx, l.db, businessID, page, pageSize)
}

func (l *Ledger) GetOrder(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error) {
	return GetOrder(ctx, l.db, businessID, orderID)
}

func (l *Ledger) ListOrders(ctx context.Context, businessID uuid.UUID, cursor string, limit int) (*CursorPage, error) {
	return ListOrdersCursor(ctx, l.db, businessID, cursor, limit)
}

func (l *Ledger) SettleOrder(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error) {
	return SettleOrder(ctx, l.db, businessID, orderID, l.now().UTC())
}

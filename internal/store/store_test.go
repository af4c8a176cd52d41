package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/safar/trade-credit/internal/database"
	"github.com/safar/trade-credit/internal/models"
)

func createBusiness(t *testing.T, db *sql.DB, name string, limit int64) *models.Business {
	t.Helper()
	business, err := CreateBusiness(context.Background(), db, CreateBusinessRequest{Name: name, CreditLimitCents: limit})
	if err != nil {
		t.Fatalf("Create business: %v", err)
	}
	return business
}

func createProduct(t *testing.T, db *sql.DB, businessID uuid.UUID, sku string, stock int, price int64) *models.Product {
	t.Helper()
	product, err := CreateProduct(context.Background(), db, CreateProductRequest{
		BusinessID: businessID,
		SKU:        sku,
		Name:       "Product " + sku,
		Stock:      stock,
		PriceCents: price,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	return product
}

// placeOrder writes an open order with a single line directly, charging the
// account the way a purchase would. orderedAt lets tests back-date orders.
func placeOrder(t *testing.T, db *sql.DB, product *models.Product, qty int, orderedAt, dueAt time.Time) *models.Order {
	t.Helper()
	ctx := context.Background()

	total := int64(qty) * product.PriceCents
	order := &models.Order{
		ID:             uuid.New(),
		BusinessID:     product.BusinessID,
		IdempotencyKey: uuid.New(),
		TotalCents:     total,
		Status:         models.OrderStatusOpen,
		OrderedAt:      orderedAt,
		DueAt:          dueAt,
		Lines: []models.OrderLine{{
			ProductID:      product.ID,
			Quantity:       qty,
			UnitPriceCents: product.PriceCents,
			LineTotalCents: total,
		}},
	}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if _, err := LockCreditAccount(ctx, tx, product.BusinessID); err != nil {
			return err
		}
		if err := DecrementStock(ctx, tx, product.ID, qty); err != nil {
			return err
		}
		if err := AdjustBalance(ctx, tx, product.BusinessID, total); err != nil {
			return err
		}
		return InsertOrder(ctx, tx, order)
	})
	if err != nil {
		t.Fatalf("Place order: %v", err)
	}
	return order
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

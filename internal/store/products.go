package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/trade-credit/internal/database"
	"github.com/safar/trade-credit/internal/models"
	"github.com/safar/trade-credit/internal/validation"
)

const productColumns = `id, business_id, sku, name, stock, price_cents, created_at, updated_at, version`

type CreateProductRequest struct {
	BusinessID uuid.UUID `json:"businessId" validate:"required"`
	SKU        string    `json:"sku" validate:"required,max=64"`
	Name       string    `json:"name" validate:"required,max=200"`
	Stock      int       `json:"stock" validate:"gte=0,lte=2147483647"`
	PriceCents int64     `json:"priceCents" validate:"gte=0"`
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner, product *models.Product) error {
	return row.Scan(
		&product.ID,
		&product.BusinessID,
		&product.SKU,
		&product.Name,
		&product.Stock,
		&product.PriceCents,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
}

func CreateProduct(ctx context.Context, db *sql.DB, req CreateProductRequest) (*models.Product, error) {
	req.SKU = strings.TrimSpace(req.SKU)
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	if _, err := GetBusiness(ctx, db, req.BusinessID); err != nil {
		return nil, err
	}

	product := &models.Product{}

	query := `
		INSERT INTO products (id, business_id, sku, name, stock, price_cents, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	row := db.QueryRowContext(ctx, query, uuid.New(), req.BusinessID, req.SKU, req.Name, req.Stock, req.PriceCents)
	if err := scanProduct(row, product); err != nil {
		if database.IsDuplicateSKU(err) {
			return nil, database.ErrDuplicateSKU
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, q Querier, id uuid.UUID) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	if err := scanProduct(q.QueryRowContext(ctx, query, id), product); err != nil {
		if err == sql.ErrNoRows {
			return nil, &database.NotFoundError{Kind: "product", ID: id}
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// UpdateProduct applies the non-nil fields of update to a product owned by
// businessID. A product belonging to another business is reported as not
// found. The row lock makes the update serialise with in-flight purchases.
func UpdateProduct(ctx context.Context, db *sql.DB, productID, businessID uuid.UUID, update models.ProductUpdate) (*models.Product, error) {
	if update.Empty() {
		return nil, database.ErrNoFieldsToUpdate
	}

	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.SKU != nil {
		sku := strings.TrimSpace(*update.SKU)
		if sku == "" {
			return nil, database.NewValidationError("sku", "must be a non-empty string")
		}
		add("sku", sku)
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, database.NewValidationError("name", "must be a non-empty string")
		}
		add("name", name)
	}
	if update.Stock != nil {
		if *update.Stock < 0 || *update.Stock > math.MaxInt32 {
			return nil, database.NewValidationError("stock", fmt.Sprintf("must be an integer between 0 and %d", math.MaxInt32))
		}
		add("stock", *update.Stock)
	}
	if update.PriceCents != nil {
		if *update.PriceCents < 0 {
			return nil, database.NewValidationError("priceCents", "must be a non-negative integer")
		}
		add("price_cents", *update.PriceCents)
	}

	product := &models.Product{}

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var locked uuid.UUID
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM products WHERE id = $1 AND business_id = $2 FOR UPDATE`,
			productID, businessID).Scan(&locked)
		if err != nil {
			if err == sql.ErrNoRows {
				return &database.NotFoundError{Kind: "product", ID: productID}
			}
			return fmt.Errorf("lock product: %w", err)
		}

		query := fmt.Sprintf(`
			UPDATE products
			SET %s, version = version + 1, updated_at = NOW()
			WHERE id = $%d
			RETURNING %s`,
			strings.Join(sets, ", "), len(args)+1, productColumns)

		row := tx.QueryRowContext(ctx, query, append(args, productID)...)
		if err := scanProduct(row, product); err != nil {
			if database.IsDuplicateSKU(err) {
				return database.ErrDuplicateSKU
			}
			return fmt.Errorf("update product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

// LockProducts row-locks the given products of businessID in id order and
// returns them keyed by id. Ids that are missing or owned by another business
// are absent from the map.
func LockProducts(ctx context.Context, tx *sql.Tx, businessID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE business_id = $1
		  AND id = ANY($2::uuid[])
		ORDER BY id
		FOR UPDATE`

	rows, err := tx.QueryContext(ctx, query, businessID, pq.StringArray(strIDs))
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	products := make(map[uuid.UUID]models.Product, len(ids))
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[product.ID] = product
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

func DecrementStock(ctx context.Context, tx *sql.Tx, productID uuid.UUID, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

func ListProducts(ctx context.Context, db *sql.DB, businessID uuid.UUID, page, pageSize int) (*OffsetPage, error) {
	if err := CheckPage(page, pageSize); err != nil {
		return nil, err
	}

	var total int64
	products := []models.Product{}

	err := database.WithTransaction(ctx, db, database.ReadOnlySnapshot(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM products WHERE business_id = $1`, businessID).Scan(&total)
		if err != nil {
			return fmt.Errorf("count products: %w", err)
		}

		offset := (page - 1) * pageSize
		query := `
			SELECT ` + productColumns + `
			FROM products
			WHERE business_id = $1
			ORDER BY created_at DESC, id
			LIMIT $2 OFFSET $3`

		rows, err := tx.QueryContext(ctx, query, businessID, pageSize, offset)
		if err != nil {
			return fmt.Errorf("list products: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var product models.Product
			if err := scanProduct(rows, &product); err != nil {
				return fmt.Errorf("scan product: %w", err)
			}
			products = append(products, product)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return newOffsetPage(products, total, page, pageSize), nil
}

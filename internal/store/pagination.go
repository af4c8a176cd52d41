package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/safar/trade-credit/internal/database"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so read helpers can run
// inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	MaxPageSize = 100
	// MaxPage keeps (page-1)*pageSize within int for any valid page size.
	MaxPage = math.MaxInt / MaxPageSize
)

var maxUUID = uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")

type CursorPage struct {
	Items      interface{} `json:"items"`
	NextCursor string      `json:"nextCursor,omitempty"`
	HasMore    bool        `json:"hasMore"`
}

type OffsetPage struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// CheckPage rejects offset pagination parameters before any query runs.
func CheckPage(page, pageSize int) error {
	if page < 1 || page > MaxPage {
		return database.NewValidationError("page", fmt.Sprintf("must be between 1 and %d", MaxPage))
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return database.NewValidationError("pageSize", fmt.Sprintf("must be between 1 and %d", MaxPageSize))
	}
	return nil
}

func newOffsetPage(items interface{}, total int64, page, pageSize int) *OffsetPage {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OffsetPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

type OrderCursor struct {
	OrderedAt time.Time `json:"orderedAt"`
	ID        uuid.UUID `json:"id"`
}

func EncodeCursor(cursor OrderCursor) string {
	data, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor returns a cursor positioned after every existing order when
// encoded is empty.
func DecodeCursor(encoded string) (OrderCursor, error) {
	var cursor OrderCursor
	if encoded == "" {
		return OrderCursor{
			OrderedAt: time.Now().Add(24 * time.Hour),
			ID:        maxUUID,
		}, nil
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return cursor, err
	}

	err = json.Unmarshal(data, &cursor)
	return cursor, err
}

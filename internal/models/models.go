package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Business struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreditAccount struct {
	BusinessID       uuid.UUID `json:"businessId"`
	CreditLimitCents int64     `json:"creditLimitCents"`
	BalanceCents     int64     `json:"balanceCents"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// AvailableCents is the credit the business can still draw.
func (a CreditAccount) AvailableCents() int64 {
	return a.CreditLimitCents - a.BalanceCents
}

type Product struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"businessId"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	Stock      int       `json:"stock"`
	PriceCents int64     `json:"priceCents"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Version    int       `json:"version"`
}

// ProductUpdate carries the fields of a partial update. Nil means unchanged.
type ProductUpdate struct {
	SKU        *string
	Name       *string
	Stock      *int
	PriceCents *int64
}

func (u ProductUpdate) Empty() bool {
	return u.SKU == nil && u.Name == nil && u.Stock == nil && u.PriceCents == nil
}

type Order struct {
	ID             uuid.UUID   `json:"id"`
	BusinessID     uuid.UUID   `json:"businessId"`
	IdempotencyKey uuid.UUID   `json:"idempotencyKey"`
	TotalCents     int64       `json:"totalCents"`
	Status         string      `json:"status"`
	OrderedAt      time.Time   `json:"orderedAt"`
	DueAt          time.Time   `json:"dueAt"`
	SettledAt      *time.Time  `json:"settledAt,omitempty"`
	Lines          []OrderLine `json:"lines,omitempty"`
}

// OrderLine captures the unit price at purchase time; later price edits do
// not touch it.
type OrderLine struct {
	ID             int64     `json:"id"`
	OrderID        uuid.UUID `json:"orderId"`
	ProductID      uuid.UUID `json:"productId"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unitPriceCents"`
	LineTotalCents int64     `json:"lineTotalCents"`
}

const (
	OrderStatusOpen    = "open"
	OrderStatusSettled = "settled"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// IdempotencyRecord is written once per (business, key) and never changed.
// Exactly one of OrderID or ErrorCode is set.
type IdempotencyRecord struct {
	BusinessID     uuid.UUID  `json:"business_id"`
	IdempotencyKey uuid.UUID  `json:"idempotency_key"`
	RequestHash    string     `json:"request_hash"`
	Outcome        string     `json:"outcome"`
	OrderID        *uuid.UUID `json:"order_id,omitempty"`
	ErrorCode      string     `json:"error_code,omitempty"`
	ErrorDetail    []byte     `json:"error_detail,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type OverdueSummary struct {
	BusinessID        uuid.UUID       `json:"businessId"`
	OutstandingCents  int64           `json:"outstandingCents"`
	OverdueCents      int64           `json:"overdueCents"`
	OpenOrderCount    int             `json:"openOrderCount"`
	OverdueOrderCount int             `json:"overdueOrderCount"`
	OldestDueDate     *time.Time      `json:"oldestDueDate"`
	DaysOverdue       int             `json:"daysOverdue"`
	CreditLimitCents  int64           `json:"creditLimitCents"`
	BalanceCents      int64           `json:"balanceCents"`
	CreditUtilization decimal.Decimal `json:"creditUtilization"`
}

type OverdueBusiness struct {
	BusinessID        uuid.UUID `json:"businessId"`
	BusinessName      string    `json:"businessName"`
	OverdueCents      int64     `json:"overdueCents"`
	OverdueOrderCount int       `json:"overdueOrderCount"`
	OldestDueDate     time.Time `json:"oldestDueDate"`
	DaysOverdue       int       `json:"daysOverdue"`
	BalanceCents      int64     `json:"balanceCents"`
	CreditLimitCents  int64     `json:"creditLimitCents"`
}

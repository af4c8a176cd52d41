package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/safar/trade-credit/internal/database"
	"github.com/safar/trade-credit/internal/models"
	"github.com/safar/trade-credit/internal/testutil"
	"github.com/shopspring/decimal"
)

func TestGetOverdueSummary(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	acme := createBusiness(t, db, "Acme", 100000)
	product := createProduct(t, db, acme.ID, "SKU-1", 100, 1000)

	asOf := day("2024-03-01")

	summary, err := GetOverdueSummary(ctx, db, acme.ID, asOf)
	if err != nil {
		t.Fatalf("Summary without orders: %v", err)
	}
	if summary != nil {
		t.Errorf("Expected no summary without open orders, got %+v", summary)
	}

	placeOrder(t, db, product, 2, day("2024-01-01"), day("2024-01-31"))
	placeOrder(t, db, product, 3, day("2024-01-20"), day("2024-02-19"))
	placeOrder(t, db, product, 5, day("2024-02-20"), day("2024-03-21"))

	summary, err = GetOverdueSummary(ctx, db, acme.ID, asOf)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	if summary.OutstandingCents != 10000 {
		t.Errorf("Expected outstanding 10000, got %d", summary.OutstandingCents)
	}
	if summary.OverdueCents != 5000 {
		t.Errorf("Expected overdue 5000, got %d", summary.OverdueCents)
	}
	if summary.OpenOrderCount != 3 || summary.OverdueOrderCount != 2 {
		t.Errorf("Expected 3 open and 2 overdue, got %d and %d", summary.OpenOrderCount, summary.OverdueOrderCount)
	}
	if summary.OldestDueDate == nil || !summary.OldestDueDate.Equal(day("2024-01-31")) {
		t.Errorf("Expected oldest due 2024-01-31, got %v", summary.OldestDueDate)
	}
	if summary.DaysOverdue != 30 {
		t.Errorf("Expected 30 days overdue, got %d", summary.DaysOverdue)
	}
	if !summary.CreditUtilization.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("Expected utilization 0.1, got %s", summary.CreditUtilization)
	}

	if _, err := GetOverdueSummary(ctx, db, uuid.New(), asOf); !errors.Is(err, database.ErrBusinessNotFound) {
		t.Errorf("Expected business not found, got: %v", err)
	}
}

func TestListOverdueBusinesses(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	asOf := day("2024-06-01")
	before := day("2024-01-01")

	var want []uuid.UUID
	for i, cents := range []int64{3000, 1000, 2000} {
		b := createBusiness(t, db, "Business "+string(rune('A'+i)), 1000000)
		p := createProduct(t, db, b.ID, "SKU", 100, cents)
		placeOrder(t, db, p, 1, day("2023-11-01"), day("2023-12-01"))
		want = append(want, b.ID)
	}

	// Overdue, but due after the cutoff.
	late := createBusiness(t, db, "Late", 1000000)
	lp := createProduct(t, db, late.ID, "SKU", 100, 9999)
	placeOrder(t, db, lp, 1, day("2024-01-15"), day("2024-02-14"))

	// Due before the cutoff but settled.
	settled := createBusiness(t, db, "Settled", 1000000)
	sp := createProduct(t, db, settled.ID, "SKU", 100, 5000)
	o := placeOrder(t, db, sp, 1, day("2023-11-01"), day("2023-12-01"))
	if _, err := SettleOrder(ctx, db, settled.ID, o.ID, asOf); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	filter := OverdueFilter{DueBefore: &before, AsOf: asOf}

	page1, err := ListOverdueBusinesses(ctx, db, filter, 1, 2)
	if err != nil {
		t.Fatalf("List page 1: %v", err)
	}
	page2, err := ListOverdueBusinesses(ctx, db, filter, 2, 2)
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	beyond, err := ListOverdueBusinesses(ctx, db, filter, 5, 2)
	if err != nil {
		t.Fatalf("List page 5: %v", err)
	}

	for _, p := range []*OffsetPage{page1, page2, beyond} {
		if p.Total != 3 {
			t.Errorf("Page %d: expected total 3, got %d", p.Page, p.Total)
		}
	}

	first := page1.Items.([]models.OverdueBusiness)
	second := page2.Items.([]models.OverdueBusiness)
	if len(first) != 2 || len(second) != 1 || len(beyond.Items.([]models.OverdueBusiness)) != 0 {
		t.Fatalf("Unexpected page sizes %d, %d", len(first), len(second))
	}

	if first[0].BusinessID != want[0] || first[1].BusinessID != want[2] || second[0].BusinessID != want[1] {
		t.Error("Businesses should be ordered by overdue amount descending")
	}
	if first[0].OverdueCents != 3000 || first[0].OverdueOrderCount != 1 {
		t.Errorf("Unexpected row %+v", first[0])
	}
	if first[0].DaysOverdue != int(asOf.Sub(day("2023-12-01"))/(24*time.Hour)) {
		t.Errorf("Unexpected days overdue %d", first[0].DaysOverdue)
	}

	after := day("2024-01-01")
	window, err := ListOverdueBusinesses(ctx, db, OverdueFilter{DueAfter: &after, AsOf: asOf}, 1, 20)
	if err != nil {
		t.Fatalf("List with dueAfter: %v", err)
	}
	rows := window.Items.([]models.OverdueBusiness)
	if window.Total != 1 || len(rows) != 1 || rows[0].BusinessID != late.ID {
		t.Errorf("Expected only the late business, got %+v", rows)
	}
}

func TestUtilization(t *testing.T) {
	tests := []struct {
		balance, limit int64
		want           string
	}{
		{0, 0, "0"},
		{0, 1000, "0"},
		{500, 1000, "0.5"},
		{1, 3, "0.3333"},
		{1000, 1000, "1"},
	}

	for _, tt := range tests {
		got := Utilization(tt.balance, tt.limit)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Utilization(%d, %d) = %s, want %s", tt.balance, tt.limit, got, tt.want)
		}
	}
}

func TestDaysBetween(t *testing.T) {
	due := day("2024-01-01")
	if got := daysBetween(due, due.Add(-time.Hour)); got != 0 {
		t.Errorf("Not yet due should be 0, got %d", got)
	}
	if got := daysBetween(due, due.Add(36*time.Hour)); got != 1 {
		t.Errorf("Expected 1 whole day, got %d", got)
	}
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/safar/trade-credit/internal/database"
	"github.com/safar/trade-credit/internal/testutil"
)

func TestCreateBusinessOpensCreditAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	business := createBusiness(t, db, "  Acme Supply Co  ", 500000)
	if business.Name != "Acme Supply Co" {
		t.Errorf("Expected trimmed name, got %q", business.Name)
	}

	account, err := GetCreditAccount(ctx, db, business.ID)
	if err != nil {
		t.Fatalf("Get credit account: %v", err)
	}
	if account.CreditLimitCents != 500000 {
		t.Errorf("Expected limit 500000, got %d", account.CreditLimitCents)
	}
	if account.BalanceCents != 0 {
		t.Errorf("Expected zero balance, got %d", account.BalanceCents)
	}
}

func TestCreateBusinessValidation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	_, err := CreateBusiness(ctx, db, CreateBusinessRequest{Name: "   ", CreditLimitCents: 100})
	var verr *database.ValidationError
	if !errors.As(err, &verr) || verr.Field != "name" {
		t.Errorf("Expected validation error on name, got: %v", err)
	}

	_, err = CreateBusiness(ctx, db, CreateBusinessRequest{Name: "Negative", CreditLimitCents: -1})
	if !errors.As(err, &verr) || verr.Field != "creditLimitCents" {
		t.Errorf("Expected validation error on creditLimitCents, got: %v", err)
	}
}

func TestCreateBusinessRollsBackWhenAccountInsertFails(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		CREATE FUNCTION reject_credit_account() RETURNS trigger AS $$
		BEGIN
			IF NEW.credit_limit_cents = 424242 THEN
				RAISE EXCEPTION 'credit account rejected';
			END IF;
			RETURN NEW;
		END
		$$ LANGUAGE plpgsql;

		CREATE TRIGGER reject_credit_account
		BEFORE INSERT ON credit_accounts
		FOR EACH ROW EXECUTE FUNCTION reject_credit_account();`)
	if err != nil {
		t.Fatalf("Create trigger: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(`DROP TRIGGER IF EXISTS reject_credit_account ON credit_accounts`)
		db.Exec(`DROP FUNCTION IF EXISTS reject_credit_account()`)
	})

	if _, err := CreateBusiness(ctx, db, CreateBusinessRequest{Name: "Doomed", CreditLimitCents: 424242}); err == nil {
		t.Fatal("Expected account insert to fail")
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM businesses WHERE name = 'Doomed'`).Scan(&count); err != nil {
		t.Fatalf("Count businesses: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected business insert to roll back, found %d row(s)", count)
	}

	// Other limits still pass through the trigger.
	createBusiness(t, db, "Survivor", 1000)
}

func TestGetBusinessNotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)

	_, err := GetBusiness(context.Background(), db, uuid.New())
	if !errors.Is(err, database.ErrBusinessNotFound) {
		t.Errorf("Expected business not found, got: %v", err)
	}
}

func TestAdjustBalanceRespectsLimitAndFloor(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	business := createBusiness(t, db, "Globex Traders", 1000)

	adjust := func(delta int64) error {
		return database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			return AdjustBalance(ctx, tx, business.ID, delta)
		})
	}

	if err := adjust(1000); err != nil {
		t.Fatalf("Charging up to the limit should succeed: %v", err)
	}

	err := adjust(1)
	var credit *database.CreditLimitExceededError
	if !errors.As(err, &credit) {
		t.Fatalf("Expected credit limit error, got: %v", err)
	}
	if credit.BalanceCents != 1000 {
		t.Errorf("Expected reported balance 1000, got %d", credit.BalanceCents)
	}

	if err := adjust(-1001); err == nil {
		t.Error("Balance should not go below zero")
	}

	account, err := GetCreditAccount(ctx, db, business.ID)
	if err != nil {
		t.Fatalf("Get credit account: %v", err)
	}
	if account.BalanceCents != 1000 {
		t.Errorf("Expected balance 1000, got %d", account.BalanceCents)
	}
}

func TestLockCreditAccountBlocksSecondLocker(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	business := createBusiness(t, db, "Initech", 1000)

	tx1, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Begin tx1: %v", err)
	}
	defer func() { _ = tx1.Rollback() }()

	if _, err := LockCreditAccount(ctx, tx1, business.ID); err != nil {
		t.Fatalf("Lock in tx1: %v", err)
	}

	tx2, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Begin tx2: %v", err)
	}
	defer func() { _ = tx2.Rollback() }()

	if _, err := tx2.ExecContext(ctx, "SET LOCAL lock_timeout = '50ms'"); err != nil {
		t.Fatalf("Set lock timeout: %v", err)
	}

	_, err = LockCreditAccount(ctx, tx2, business.ID)
	if database.ClassifyError(err) != database.ErrorClassTransient {
		t.Errorf("Expected lock timeout, got: %v", err)
	}
}

// Package purchase executes credit purchases: one order per idempotency key,
// with stock and credit checked and applied in a single transaction.
package purchase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/safar/trade-credit/internal/database"
	"github.com/safar/trade-credit/internal/logging"
	"github.com/safar/trade-credit/internal/models"
	"github.com/safar/trade-credit/internal/store"
	"github.com/safar/trade-credit/internal/validation"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ReplayCache is an optional read-through copy of idempotency records.
type ReplayCache interface {
	Get(ctx context.Context, businessID, idempotencyKey uuid.UUID) (*models.IdempotencyRecord, bool, error)
	Set(ctx context.Context, record *models.IdempotencyRecord) error
}

type Options struct {
	MaxRetries  int
	LockTimeout time.Duration
	// Timeout bounds the whole purchase. A purchase cut off before commit
	// leaves no trace.
	Timeout     time.Duration
	PaymentTerm time.Duration
	Now         func() time.Time
	Cache       ReplayCache
	Logger      *logrus.Logger
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:  3,
		LockTimeout: 2 * time.Second,
		Timeout:     5 * time.Second,
		PaymentTerm: 30 * 24 * time.Hour,
		Now:         time.Now,
	}
}

type Engine struct {
	db     *sql.DB
	opts   Options
	log    *logrus.Entry
	tracer trace.Tracer
}

func NewEngine(db *sql.DB, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PaymentTerm <= 0 {
		opts.PaymentTerm = DefaultOptions().PaymentTerm
	}

	return &Engine{
		db:     db,
		opts:   opts,
		log:    logging.Module(opts.Logger, "purchase"),
		tracer: otel.Tracer("github.com/safar/trade-credit/internal/purchase"),
	}
}

// Purchase places an order for req.Items on the business's credit account
// and returns the order id. A key that has been seen before returns the
// recorded outcome, success or failure, without re-evaluating anything.
func (e *Engine) Purchase(ctx context.Context, req Request) (uuid.UUID, error) {
	if err := validation.Struct(req); err != nil {
		return uuid.Nil, err
	}

	items := normalize(req.Items)
	hash := fingerprint(req.BusinessID, items)

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	ctx, span := e.tracer.Start(ctx, "purchase.Purchase", trace.WithAttributes(
		attribute.String("business_id", req.BusinessID.String()),
		attribute.String("idempotency_key", req.IdempotencyKey.String()),
		attribute.Int("items", len(items)),
	))
	defer span.End()

	log := e.log.WithFields(logrus.Fields{
		"business_id":     req.BusinessID,
		"idempotency_key": req.IdempotencyKey,
	})

	if record, found := e.lookup(ctx, req.BusinessID, req.IdempotencyKey, log); found {
		span.SetAttributes(attribute.Bool("replayed", true))
		return e.replay(record, hash, log)
	}

	var record *models.IdempotencyRecord
	var replayed bool

	err := database.WithRetry(ctx, e.db, database.TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		MaxRetries:     e.opts.MaxRetries,
		LockTimeout:    e.opts.LockTimeout,
		OnRetry: func(attempt int, err error) {
			span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
			log.WithField("attempt", attempt).WithError(err).Warn("purchase transaction retrying")
		},
	}, func(tx *sql.Tx) error {
		var err error
		record, replayed, err = e.apply(ctx, tx, req, items, hash)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("purchase aborted before commit")
			return uuid.Nil, fmt.Errorf("purchase aborted: %w", err)
		}
		if !database.IsClientError(err) && !database.IsNotFound(err) {
			log.WithError(err).Error("purchase failed")
		}
		return uuid.Nil, err
	}

	e.remember(ctx, record, log)

	if replayed {
		span.SetAttributes(attribute.Bool("replayed", true))
		return e.replay(record, hash, log)
	}

	orderID, err := result(record)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.WithField("code", record.ErrorCode).Info("purchase rejected")
		return uuid.Nil, err
	}

	span.SetAttributes(attribute.String("order_id", orderID.String()))
	log.WithField("order_id", orderID).Info("purchase committed")
	return orderID, nil
}

// apply runs one attempt inside tx. It returns the record that now answers
// for the key; replayed is true when another request had already written it.
// Business-rule rejections are returned as a failed record, not an error, so
// the transaction commits the record and nothing else.
func (e *Engine) apply(ctx context.Context, tx *sql.Tx, req Request, items []Item, hash string) (*models.IdempotencyRecord, bool, error) {
	// Every purchase for the business queues here, so the registry re-check
	// below sees any concurrent request with the same key that committed first.
	account, err := store.LockCreditAccount(ctx, tx, req.BusinessID)
	if err != nil {
		return nil, false, err
	}

	existing, found, err := store.GetIdempotencyRecord(ctx, tx, req.BusinessID, req.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	if found {
		return existing, true, nil
	}

	products, err := store.LockProducts(ctx, tx, req.BusinessID, productIDs(items))
	if err != nil {
		return nil, false, err
	}

	record := &models.IdempotencyRecord{
		BusinessID:     req.BusinessID,
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    hash,
	}

	order, failure := e.price(req, items, account, products)
	if failure != nil {
		code, detail, ok := encodeFailure(failure)
		if !ok {
			return nil, false, failure
		}
		record.Outcome = models.OutcomeFailed
		record.ErrorCode = code
		record.ErrorDetail = detail

		if err := store.InsertIdempotencyRecord(ctx, tx, record); err != nil {
			return nil, false, err
		}
		return record, false, nil
	}

	for _, line := range order.Lines {
		if err := store.DecrementStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
			return nil, false, err
		}
	}

	if err := store.AdjustBalance(ctx, tx, req.BusinessID, order.TotalCents); err != nil {
		return nil, false, err
	}

	if err := store.InsertOrder(ctx, tx, order); err != nil {
		return nil, false, err
	}

	record.Outcome = models.OutcomeSucceeded
	record.OrderID = &order.ID

	if err := store.InsertIdempotencyRecord(ctx, tx, record); err != nil {
		return nil, false, err
	}

	return record, false, nil
}

// price checks every line against the locked rows and builds the order.
// Nothing is written here; a non-nil error means the purchase is rejected.
func (e *Engine) price(req Request, items []Item, account *models.CreditAccount, products map[uuid.UUID]models.Product) (*models.Order, error) {
	now := e.opts.Now().UTC()

	order := &models.Order{
		ID:             uuid.New(),
		BusinessID:     req.BusinessID,
		IdempotencyKey: req.IdempotencyKey,
		Status:         models.OrderStatusOpen,
		OrderedAt:      now,
		DueAt:          now.Add(e.opts.PaymentTerm),
		Lines:          make([]models.OrderLine, 0, len(items)),
	}

	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, &database.NotFoundError{Kind: "product", ID: item.ProductID}
		}
		if item.Quantity > product.Stock {
			return nil, &database.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: product.Stock,
			}
		}

		lineTotal, ok := mulCents(item.Quantity, product.PriceCents)
		if !ok || order.TotalCents > math.MaxInt64-lineTotal {
			return nil, &database.CreditLimitExceededError{
				LimitCents:      account.CreditLimitCents,
				BalanceCents:    account.BalanceCents,
				OrderTotalCents: math.MaxInt64,
			}
		}
		order.TotalCents += lineTotal

		order.Lines = append(order.Lines, models.OrderLine{
			OrderID:        order.ID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: product.PriceCents,
			LineTotalCents: lineTotal,
		})
	}

	if order.TotalCents > account.AvailableCents() {
		return nil, &database.CreditLimitExceededError{
			LimitCents:      account.CreditLimitCents,
			BalanceCents:    account.BalanceCents,
			OrderTotalCents: order.TotalCents,
		}
	}

	return order, nil
}

// lookup consults the cache, then the registry, without locking.
func (e *Engine) lookup(ctx context.Context, businessID, key uuid.UUID, log *logrus.Entry) (*models.IdempotencyRecord, bool) {
	if e.opts.Cache != nil {
		record, found, err := e.opts.Cache.Get(ctx, businessID, key)
		if err != nil {
			log.WithError(err).Warn("replay cache unavailable")
		} else if found {
			return record, true
		}
	}

	record, found, err := store.GetIdempotencyRecord(ctx, e.db, businessID, key)
	if err != nil {
		// The transactional re-check is authoritative; fall through to it.
		log.WithError(err).Warn("idempotency lookup failed")
		return nil, false
	}
	if found {
		e.remember(ctx, record, log)
	}
	return record, found
}

func (e *Engine) remember(ctx context.Context, record *models.IdempotencyRecord, log *logrus.Entry) {
	if e.opts.Cache == nil || record == nil {
		return
	}
	if err := e.opts.Cache.Set(ctx, record); err != nil {
		log.WithError(err).Warn("replay cache write failed")
	}
}

func (e *Engine) replay(record *models.IdempotencyRecord, hash string, log *logrus.Entry) (uuid.UUID, error) {
	entry := log.WithField("outcome", record.Outcome)
	if record.RequestHash != hash {
		entry.Warn("idempotency key reused with a different request; returning recorded outcome")
	} else {
		entry.Debug("idempotent replay")
	}
	return result(record)
}

// Package overdue answers read-only questions about unpaid orders: how much a
// business owes and which businesses are behind.
package overdue

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/safar/trade-credit/internal/database"
	"github.com/safar/trade-credit/internal/logging"
	"github.com/safar/trade-credit/internal/models"
	"github.com/safar/trade-credit/internal/store"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Page struct {
	Items    []models.OverdueBusiness `json:"items"`
	Page     int                      `json:"page"`
	PageSize int                      `json:"pageSize"`
	Total    int64                    `json:"total"`
}

type Options struct {
	Now    func() time.Time
	Logger *logrus.Logger
}

type Aggregator struct {
	db     *sql.DB
	now    func() time.Time
	log    *logrus.Entry
	tracer trace.Tracer
}

func NewAggregator(db *sql.DB, opts Options) *Aggregator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{
		db:     db,
		now:    opts.Now,
		log:    logging.Module(opts.Logger, "overdue"),
		tracer: otel.Tracer("github.com/safar/trade-credit/internal/overdue"),
	}
}

// Summary returns the open-order position of one business, or nil when it
// has no open orders. An unknown business is a NotFoundError.
func (a *Aggregator) Summary(ctx context.Context, businessID uuid.UUID) (*models.OverdueSummary, error) {
	if businessID == uuid.Nil {
		return nil, database.NewValidationError("businessId", "is required")
	}

	ctx, span := a.tracer.Start(ctx, "overdue.Summary",
		trace.WithAttributes(attribute.String("business_id", businessID.String())))
	defer span.End()

	summary, err := store.GetOverdueSummary(ctx, a.db, businessID, a.now().UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !database.IsNotFound(err) {
			a.log.WithField("business_id", businessID).WithError(err).Error("overdue summary failed")
		}
		return nil, err
	}
	return summary, nil
}

// ListOverdue pages through businesses with overdue orders matching q. Total
// is the number of matching businesses, independent of the page requested.
func (a *Aggregator) ListOverdue(ctx context.Context, q Query) (*Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, span := a.tracer.Start(ctx, "overdue.ListOverdue", trace.WithAttributes(
		attribute.Int("page", q.Page),
		attribute.Int("page_size", q.PageSize),
	))
	defer span.End()

	result, err := store.ListOverdueBusinesses(ctx, a.db, q.filter(a.now().UTC()), q.Page, q.PageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.log.WithError(err).Error("overdue listing failed")
		return nil, err
	}

	items, _ := result.Items.([]models.OverdueBusiness)
	if items == nil {
		items = []models.OverdueBusiness{}
	}

	span.SetAttributes(attribute.Int64("total", result.Total))
	return &Page{
		Items:    items,
		Page:     result.Page,
		PageSize: result.PageSize,
		Total:    result.Total,
	}, nil
}

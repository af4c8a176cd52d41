package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/safar/trade-credit/internal/logging"
	"github.com/safar/trade-credit/internal/models"
	"github.com/safar/trade-credit/internal/overdue"
	"github.com/safar/trade-credit/internal/purchase"
	"github.com/safar/trade-credit/internal/store"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

type Ledger interface {
	CreateBusiness(ctx context.Context, req store.CreateBusinessRequest) (*models.Business, error)
	CreateProduct(ctx context.Context, req store.CreateProductRequest) (*models.Product, error)
	UpdateProduct(ctx context.Context, productID, businessID uuid.UUID, update models.ProductUpdate) (*models.Product, error)
	ListProducts(ctx context.Context, businessID uuid.UUID, page, pageSize int) (*store.OffsetPage, error)
	GetOrder(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, businessID uuid.UUID, cursor string, limit int) (*store.CursorPage, error)
	SettleOrder(ctx context.Context, businessID, orderID uuid.UUID) (*models.Order, error)
}

type Purchaser interface {
	Purchase(ctx context.Context, req purchase.Request) (uuid.UUID, error)
}

type OverdueReader interface {
	Summary(ctx context.Context, businessID uuid.UUID) (*models.OverdueSummary, error)
	ListOverdue(ctx context.Context, q overdue.Query) (*overdue.Page, error)
}

type Handler struct {
	ledger    Ledger
	purchases Purchaser
	overdue   OverdueReader
	log       *logrus.Entry
}

func NewHandler(ledger Ledger, purchases Purchaser, aggregator OverdueReader, logger *logrus.Logger) *Handler {
	return &Handler{
		ledger:    ledger,
		purchases: purchases,
		overdue:   aggregator,
		log:       logging.Module(logger, "api"),
	}
}

func (h *Handler) CreateBusiness(w http.ResponseWriter, r *http.Request) {
	var req store.CreateBusinessRequest
	if !decode(w, r, &req) {
		return
	}

	business, err := h.ledger.CreateBusiness(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"businessId": business.ID})
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req store.CreateProductRequest
	if !decode(w, r, &req) {
		return
	}

	product, err := h.ledger.CreateProduct(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"productId": product.ID})
}

type updateProductBody struct {
	BusinessID uuid.UUID `json:"businessId"`
	SKU        *string   `json:"sku"`
	Name       *string   `json:"name"`
	Stock      *int      `json:"stock"`
	PriceCents *int64    `json:"priceCents"`
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathUUID(w, r, "productId")
	if !ok {
		return
	}

	var body updateProductBody
	if !decode(w, r, &body) {
		return
	}
	if body.BusinessID == uuid.Nil {
		badRequest(w, "businessId", "businessId must be a UUID")
		return
	}

	product, err := h.ledger.UpdateProduct(r.Context(), productID, body.BusinessID, models.ProductUpdate{
		SKU:        body.SKU,
		Name:       body.Name,
		Stock:      body.Stock,
		PriceCents: body.PriceCents,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]uuid.UUID{"productId": product.ID})
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	businessID, ok := pathUUID(w, r, "businessId")
	if !ok {
		return
	}

	page, ok := queryInt(w, r, "page", overdue.DefaultPage)
	if !ok {
		return
	}
	pageSize, ok := queryInt(w, r, "pageSize", overdue.DefaultPageSize)
	if !ok {
		return
	}

	result, err := h.ledger.ListProducts(r.Context(), businessID, page, pageSize)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchase.Request
	if !decode(w, r, &req) {
		return
	}

	orderID, err := h.purchases.Purchase(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]uuid.UUID{"orderId": orderID})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	businessID, ok := pathUUID(w, r, "businessId")
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "orderId")
	if !ok {
		return
	}

	order, err := h.ledger.GetOrder(r.Context(), businessID, orderID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	businessID, ok := pathUUID(w, r, "businessId")
	if !ok {
		return
	}

	limit, ok := queryInt(w, r, "limit", overdue.DefaultPageSize)
	if !ok {
		return
	}

	result, err := h.ledger.ListOrders(r.Context(), businessID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type settleOrderBody struct {
	BusinessID uuid.UUID `json:"businessId"`
}

func (h *Handler) SettleOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "orderId")
	if !ok {
		return
	}

	var body settleOrderBody
	if !decode(w, r, &body) {
		return
	}
	if body.BusinessID == uuid.Nil {
		badRequest(w, "businessId", "businessId must be a UUID")
		return
	}

	order, err := h.ledger.SettleOrder(r.Context(), body.BusinessID, orderID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) OverdueSummary(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(r.URL.Query().Get("businessId"))
	if err != nil {
		badRequest(w, "businessId", "businessId must be a UUID")
		return
	}

	summary, err := h.overdue.Summary(r.Context(), businessID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	// A business with no open orders is answered with a JSON null.
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) OverdueBusinesses(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	q, err := overdue.ParseQuery(
		params.Get("dueBefore"),
		params.Get("dueAfter"),
		params.Get("page"),
		params.Get("pageSize"),
	)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	page, err := h.overdue.ListOverdue(r.Context(), q)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// decode reads a JSON body into dst, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			badRequest(w, "", "request body is empty")
		case errors.As(err, &typeErr):
			badRequest(w, typeErr.Field, typeErr.Field+" has the wrong type")
		default:
			badRequest(w, "", "invalid JSON body: "+err.Error())
		}
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		badRequest(w, name, name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(w, name, name+" must be an integer")
		return 0, false
	}
	return n, true
}

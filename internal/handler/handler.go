// Package handler exposes the domain services over HTTP. It stays thin:
// decode the request, call the service, map the domain error kind to a
// status code. All invariants live below it.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shop-backoffice/internal/domain/order"
	"github.com/xenking/shop-backoffice/internal/domain/pagination"
	"github.com/xenking/shop-backoffice/internal/domain/product"
	"github.com/xenking/shop-backoffice/internal/domain/user"
)

// userIDHeader carries the authenticated user's ID, set by the (external)
// auth gateway in front of this service.
const userIDHeader = "X-User-ID"

// Handler routes HTTP requests to the catalog and order services.
type Handler struct {
	products *product.Service
	orders   *order.Service
}

// New constructs a Handler.
func New(products *product.Service, orders *order.Service) *Handler {
	return &Handler{products: products, orders: orders}
}

// Routes registers all endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /products", h.listProducts)
	mux.HandleFunc("GET /products/low-stock", h.listLowStock)
	mux.HandleFunc("GET /products/stats", h.productStats)
	mux.HandleFunc("GET /products/{id}", h.getProduct)
	mux.HandleFunc("POST /products", h.createProduct)
	mux.HandleFunc("PATCH /products/{id}", h.updateProduct)
	mux.HandleFunc("DELETE /products/{id}", h.deleteProduct)
	mux.HandleFunc("POST /products/{id}/stock", h.adjustStock)

	mux.HandleFunc("POST /orders", h.createOrder)
	mux.HandleFunc("GET /orders", h.listOrdersByStatus)
	mux.HandleFunc("GET /orders/stats", h.orderStats)
	mux.HandleFunc("GET /orders/{id}", h.getOrder)
	mux.HandleFunc("PUT /orders/{id}/status", h.setOrderStatus)
	mux.HandleFunc("POST /orders/{id}/cancel", h.cancelOrder)
	mux.HandleFunc("GET /users/{id}/orders", h.listOrdersByUser)
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeError maps a domain error to an HTTP status and writes the error
// envelope. Unrecognized errors (store failures included) become opaque 500s.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		quantityErr    *order.InvalidQuantityError
		unavailableErr *order.ProductUnavailableError
		stockErr       *product.InsufficientStockError
		statusErr      *order.InvalidStatusError
		transitionErr  *order.InvalidTransitionError
		cancelErr      *order.NotCancellableError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, user.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, product.ErrInvalidPrice),
		errors.Is(err, product.ErrNegativeStock),
		errors.As(err, &quantityErr),
		errors.As(err, &statusErr):
		status = http.StatusBadRequest
	case errors.As(err, &unavailableErr),
		errors.As(err, &stockErr),
		errors.As(err, &transitionErr),
		errors.As(err, &cancelErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, product.ErrDuplicateName),
		errors.Is(err, order.ErrStatusConflict):
		status = http.StatusConflict
	case errors.Is(err, order.ErrNotOwner):
		status = http.StatusForbidden
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Code: http.StatusBadRequest, Message: msg})
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// callerID reads the authenticated user ID injected by the auth gateway.
func callerID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get(userIDHeader), 10, 64)
	return id, err == nil && id > 0
}

// queryPagination parses page/limit query parameters; values are normalized
// by the services.
func queryPagination(r *http.Request) pagination.Params {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return pagination.Params{Page: page, Limit: limit}
}

type pageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

func meta[T any](p pagination.Page[T]) pageMeta {
	return pageMeta{Page: p.Page, Limit: p.Limit, Total: p.Total, TotalPages: p.TotalPages}
}

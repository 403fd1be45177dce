package handler

import (
	"net/http"

	"github.com/xenking/shop-backoffice/internal/domain/order"
	"github.com/xenking/shop-backoffice/internal/domain/pagination"
)

type orderItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type createOrderRequest struct {
	Items []orderItemRequest `json:"items"`
}

type orderResponse struct {
	ID        int64   `json:"id"`
	UserID    int64   `json:"userId"`
	Total     float64 `json:"total"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"createdAt"`
}

type orderItemResponse struct {
	ID        int64   `json:"id"`
	ProductID int64   `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type orderWithItemsResponse struct {
	orderResponse
	Items []orderItemResponse `json:"items"`
}

type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	Pagination pageMeta        `json:"pagination"`
}

type setStatusRequest struct {
	Status string `json:"status"`
	// Force skips the transition table for administrative corrections.
	Force bool `json:"force,omitempty"`
}

type orderStatsResponse struct {
	Total        int64   `json:"total"`
	Pending      int64   `json:"pending"`
	Processing   int64   `json:"processing"`
	Shipped      int64   `json:"shipped"`
	Delivered    int64   `json:"delivered"`
	Cancelled    int64   `json:"cancelled"`
	Revenue      float64 `json:"totalRevenue"`
	AverageValue float64 `json:"averageOrderValue"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		Total:     o.Total.InexactFloat64(),
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeBadRequest(w, "missing or invalid "+userIDHeader+" header")
		return
	}

	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	items := make([]order.NewItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.NewItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	id, err := h.orders.Create(r.Context(), userID, items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid order id")
		return
	}

	res, err := h.orders.GetWithItems(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := orderWithItemsResponse{
		orderResponse: toOrderResponse(res.Order),
		Items:         make([]orderItemResponse, len(res.Items)),
	}
	for i, it := range res.Items {
		resp.Items[i] = orderItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.InexactFloat64(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid order id")
		return
	}

	var req setStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	status, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if req.Force {
		err = h.orders.ForceStatus(r.Context(), id, status)
	} else {
		err = h.orders.SetStatus(r.Context(), id, status)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid order id")
		return
	}
	userID, ok := callerID(r)
	if !ok {
		writeBadRequest(w, "missing or invalid "+userIDHeader+" header")
		return
	}

	if err := h.orders.CancelAsOwner(r.Context(), id, userID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listOrdersByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := order.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.orders.ListByStatus(r.Context(), status, queryPagination(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrderPage(w, page)
}

func (h *Handler) listOrdersByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid user id")
		return
	}

	page, err := h.orders.ListByUser(r.Context(), userID, queryPagination(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrderPage(w, page)
}

func (h *Handler) orderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orders.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderStatsResponse{
		Total:        stats.Total,
		Pending:      stats.Pending,
		Processing:   stats.Processing,
		Shipped:      stats.Shipped,
		Delivered:    stats.Delivered,
		Cancelled:    stats.Cancelled,
		Revenue:      stats.Revenue.InexactFloat64(),
		AverageValue: stats.AverageValue.InexactFloat64(),
	})
}

func writeOrderPage(w http.ResponseWriter, page pagination.Page[order.Order]) {
	orders := make([]orderResponse, len(page.Items))
	for i := range page.Items {
		orders[i] = toOrderResponse(&page.Items[i])
	}
	writeJSON(w, http.StatusOK, orderListResponse{
		Orders:     orders,
		Pagination: meta(page),
	})
}

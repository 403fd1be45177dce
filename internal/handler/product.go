package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/xenking/shop-backoffice/internal/domain/product"
)

type productResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	Category    string  `json:"category,omitempty"`
	IsActive    bool    `json:"isActive"`
}

type productListResponse struct {
	Products   []productResponse `json:"products"`
	Pagination pageMeta          `json:"pagination"`
}

type createProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
}

type updateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
	Category    *string          `json:"category"`
}

type adjustStockRequest struct {
	Delta int `json:"delta"`
}

type productStatsResponse struct {
	Total        int64   `json:"total"`
	Active       int64   `json:"active"`
	Inactive     int64   `json:"inactive"`
	LowStock     int64   `json:"lowStock"`
	Categories   int64   `json:"categories"`
	AveragePrice float64 `json:"averagePrice"`
}

func toProductResponse(p *product.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.InexactFloat64(),
		Stock:       p.Stock,
		Category:    p.Category,
		IsActive:    p.IsActive,
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, err := h.products.List(r.Context(), queryPagination(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	products := make([]productResponse, len(page.Items))
	for i := range page.Items {
		products[i] = toProductResponse(&page.Items[i])
	}
	writeJSON(w, http.StatusOK, productListResponse{
		Products:   products,
		Pagination: meta(page),
	})
}

func (h *Handler) listLowStock(w http.ResponseWriter, r *http.Request) {
	threshold, _ := strconv.Atoi(r.URL.Query().Get("threshold"))

	items, err := h.products.ListLowStock(r.Context(), threshold)
	if err != nil {
		writeError(w, r, err)
		return
	}

	products := make([]productResponse, len(items))
	for i := range items {
		products[i] = toProductResponse(&items[i])
	}
	writeJSON(w, http.StatusOK, map[string][]productResponse{"products": products})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid product id")
		return
	}

	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	id, err := h.products.Create(r.Context(), product.CreateParams{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    req.Category,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid product id")
		return
	}

	var req updateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	err := h.products.Update(r.Context(), id, product.UpdateParams{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    req.Category,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid product id")
		return
	}

	if err := h.products.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeBadRequest(w, "invalid product id")
		return
	}

	var req adjustStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := h.products.AdjustStock(r.Context(), id, req.Delta); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) productStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.products.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productStatsResponse{
		Total:        stats.Total,
		Active:       stats.Active,
		Inactive:     stats.Inactive,
		LowStock:     stats.LowStock,
		Categories:   stats.Categories,
		AveragePrice: stats.AveragePrice.InexactFloat64(),
	})
}

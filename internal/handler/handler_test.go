package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shop-backoffice/internal/domain/order"
	"github.com/xenking/shop-backoffice/internal/domain/pagination"
	"github.com/xenking/shop-backoffice/internal/domain/product"
	"github.com/xenking/shop-backoffice/internal/domain/user"
)

// In-memory repositories backing the real services, so these tests exercise
// the full decode / service / error-mapping path.

type memUsers struct {
	byID map[int64]*user.User
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*user.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

type memProducts struct {
	byID   map[int64]*product.Product
	nextID int64
}

func (m *memProducts) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProducts) FindActiveByName(_ context.Context, name string) (*product.Product, error) {
	for _, p := range m.byID {
		if p.IsActive && p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, product.ErrNotFound
}

func (m *memProducts) ListActive(_ context.Context, p pagination.Params) (pagination.Page[product.Product], error) {
	var out []product.Product
	for _, pr := range m.byID {
		if pr.IsActive {
			out = append(out, *pr)
		}
	}
	return pagination.NewPage(out, int64(len(out)), p), nil
}

func (m *memProducts) ListLowStock(_ context.Context, threshold int) ([]product.Product, error) {
	var out []product.Product
	for _, pr := range m.byID {
		if pr.IsActive && pr.Stock <= threshold {
			out = append(out, *pr)
		}
	}
	return out, nil
}

func (m *memProducts) Create(_ context.Context, params product.CreateParams) (int64, error) {
	m.nextID++
	m.byID[m.nextID] = &product.Product{
		ID:       m.nextID,
		Name:     params.Name,
		Price:    params.Price,
		Stock:    params.Stock,
		Category: params.Category,
		IsActive: true,
	}
	return m.nextID, nil
}

func (m *memProducts) Update(_ context.Context, id int64, params product.UpdateParams) error {
	p, ok := m.byID[id]
	if !ok {
		return product.ErrNotFound
	}
	if params.Name != nil {
		p.Name = *params.Name
	}
	if params.Price != nil {
		p.Price = *params.Price
	}
	if params.Stock != nil {
		p.Stock = *params.Stock
	}
	return nil
}

func (m *memProducts) SetActive(_ context.Context, id int64, active bool) error {
	p, ok := m.byID[id]
	if !ok {
		return product.ErrNotFound
	}
	p.IsActive = active
	return nil
}

func (m *memProducts) AdjustStock(_ context.Context, id int64, delta int) error {
	p, ok := m.byID[id]
	if !ok {
		return product.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return &product.InsufficientStockError{
			ProductID: id, Name: p.Name, Available: p.Stock, Requested: -delta,
		}
	}
	p.Stock += delta
	return nil
}

func (m *memProducts) Stats(_ context.Context) (*product.Stats, error) {
	return &product.Stats{Total: int64(len(m.byID))}, nil
}

type memOrders struct {
	products *memProducts

	byID   map[int64]*order.Order
	items  map[int64][]order.Item
	nextID int64
}

func (m *memOrders) Create(_ context.Context, o *order.Order, items []order.Item) (int64, error) {
	for _, it := range items {
		m.products.byID[it.ProductID].Stock -= it.Quantity
	}
	m.nextID++
	o.ID = m.nextID
	cp := *o
	m.byID[o.ID] = &cp
	m.items[o.ID] = append([]order.Item{}, items...)
	return o.ID, nil
}

func (m *memOrders) GetByID(_ context.Context, id int64) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) ItemsByOrder(_ context.Context, orderID int64) ([]order.Item, error) {
	return m.items[orderID], nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id int64, from, to order.Status, restock bool) error {
	o, ok := m.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return order.ErrStatusConflict
	}
	if restock {
		for _, it := range m.items[id] {
			m.products.byID[it.ProductID].Stock += it.Quantity
		}
	}
	o.Status = to
	return nil
}

func (m *memOrders) ListByUser(_ context.Context, userID int64, p pagination.Params) (pagination.Page[order.Order], error) {
	var out []order.Order
	for _, o := range m.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return pagination.NewPage(out, int64(len(out)), p), nil
}

func (m *memOrders) ListByStatus(_ context.Context, status order.Status, p pagination.Params) (pagination.Page[order.Order], error) {
	var out []order.Order
	for _, o := range m.byID {
		if o.Status == status {
			out = append(out, *o)
		}
	}
	return pagination.NewPage(out, int64(len(out)), p), nil
}

func (m *memOrders) Stats(_ context.Context) (*order.Stats, error) {
	return &order.Stats{
		Total:   int64(len(m.byID)),
		Revenue: decimal.RequireFromString("123.456"),
	}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memProducts, *memOrders) {
	t.Helper()

	users := &memUsers{byID: map[int64]*user.User{
		1: {ID: 1, Email: "ana@example.com", IsActive: true},
	}}
	products := &memProducts{byID: map[int64]*product.Product{
		10: {ID: 10, Name: "Widget", Price: decimal.RequireFromString("10.00"), Stock: 5, IsActive: true},
	}, nextID: 10}
	orders := &memOrders{
		products: products,
		byID:     make(map[int64]*order.Order),
		items:    make(map[int64][]order.Item),
	}

	h := New(product.NewService(products), order.NewService(users, products, orders))
	mux := http.NewServeMux()
	h.Routes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, products, orders
}

func doRequest(t *testing.T, method, url, userID, body string) (*http.Response, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func TestCreateOrder(t *testing.T) {
	srv, products, orders := newTestServer(t)

	resp, body := doRequest(t, http.MethodPost, srv.URL+"/orders", "1",
		`{"items":[{"productId":10,"quantity":3}]}`)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 1, body["id"])
	assert.Equal(t, 2, products.byID[10].Stock)
	assert.True(t, decimal.RequireFromString("30.00").Equal(orders.byID[1].Total))
}

func TestCreateOrder_MissingUserHeader(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, _ := doRequest(t, http.MethodPost, srv.URL+"/orders", "",
		`{"items":[{"productId":10,"quantity":1}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		body   string
		status int
	}{
		{"empty items", "1", `{"items":[]}`, http.StatusBadRequest},
		{"zero quantity", "1", `{"items":[{"productId":10,"quantity":0}]}`, http.StatusBadRequest},
		{"unknown user", "99", `{"items":[{"productId":10,"quantity":1}]}`, http.StatusNotFound},
		{"unknown product", "1", `{"items":[{"productId":404,"quantity":1}]}`, http.StatusNotFound},
		{"insufficient stock", "1", `{"items":[{"productId":10,"quantity":99}]}`, http.StatusUnprocessableEntity},
		{"malformed body", "1", `{"items":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := newTestServer(t)
			resp, body := doRequest(t, http.MethodPost, srv.URL+"/orders", tt.userID, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestGetOrder_WithItems(t *testing.T) {
	srv, _, _ := newTestServer(t)
	doRequest(t, http.MethodPost, srv.URL+"/orders", "1", `{"items":[{"productId":10,"quantity":2}]}`)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/orders/1", "", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	assert.EqualValues(t, 20, body["total"])
	items, ok := body["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
}

func TestGetOrder_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, _ := doRequest(t, http.MethodGet, srv.URL+"/orders/42", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetOrderStatus(t *testing.T) {
	srv, _, orders := newTestServer(t)
	doRequest(t, http.MethodPost, srv.URL+"/orders", "1", `{"items":[{"productId":10,"quantity":1}]}`)

	resp, _ := doRequest(t, http.MethodPut, srv.URL+"/orders/1/status", "", `{"status":"processing"}`)

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, order.StatusProcessing, orders.byID[1].Status)
}

func TestSetOrderStatus_InvalidTransition(t *testing.T) {
	srv, _, _ := newTestServer(t)
	doRequest(t, http.MethodPost, srv.URL+"/orders", "1", `{"items":[{"productId":10,"quantity":1}]}`)

	resp, _ := doRequest(t, http.MethodPut, srv.URL+"/orders/1/status", "", `{"status":"delivered"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSetOrderStatus_Forced(t *testing.T) {
	srv, _, orders := newTestServer(t)
	doRequest(t, http.MethodPost, srv.URL+"/orders", "1", `{"items":[{"productId":10,"quantity":1}]}`)

	resp, _ := doRequest(t, http.MethodPut, srv.URL+"/orders/1/status", "",
		`{"status":"delivered","force":true}`)

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, order.StatusDelivered, orders.byID[1].Status)
}

func TestSetOrderStatus_UnknownValue(t *testing.T) {
	srv, _, _ := newTestServer(t)
	doRequest(t, http.MethodPost, srv.URL+"/orders", "1", `{"items":[{"productId":10,"quantity":1}]}`)

	resp, _ := doRequest(t, http.MethodPut, srv.URL+"/orders/1/status", "", `{"status":"refunded"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelOrder(t *testing.T) {
	srv, products, _ := newTestServer(t)
	doRequest(t, http.MethodPost, srv.URL+"/orders", "1", `{"items":[{"productId":10,"quantity":3}]}`)
	require.Equal(t, 2, products.byID[10].Stock)

	resp, _ := doRequest(t, http.MethodPost, srv.URL+"/orders/1/cancel", "1", "")

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 5, products.byID[10].Stock)
}

func TestCancelOrder_WrongOwner(t *testing.T) {
	srv, _, _ := newTestServer(t)
	doRequest(t, http.MethodPost, srv.URL+"/orders", "1", `{"items":[{"productId":10,"quantity":1}]}`)

	resp, _ := doRequest(t, http.MethodPost, srv.URL+"/orders/1/cancel", "2", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCancelOrder_AlreadyDelivered(t *testing.T) {
	srv, _, _ := newTestServer(t)
	doRequest(t, http.MethodPost, srv.URL+"/orders", "1", `{"items":[{"productId":10,"quantity":1}]}`)
	doRequest(t, http.MethodPut, srv.URL+"/orders/1/status", "", `{"status":"delivered","force":true}`)

	resp, _ := doRequest(t, http.MethodPost, srv.URL+"/orders/1/cancel", "1", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestListOrders_ByStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)
	doRequest(t, http.MethodPost, srv.URL+"/orders", "1", `{"items":[{"productId":10,"quantity":1}]}`)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/orders?status=pending&page=1&limit=10", "", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	pg, ok := body["pagination"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, pg["total"])
	assert.EqualValues(t, 10, pg["limit"])
}

func TestListOrders_BadStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, _ := doRequest(t, http.MethodGet, srv.URL+"/orders?status=bogus", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListOrders_ByUser_ClampsPagination(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/users/1/orders?page=0&limit=500", "", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	pg := body["pagination"].(map[string]any)
	assert.EqualValues(t, 1, pg["page"])
	assert.EqualValues(t, 100, pg["limit"])
}

func TestOrderStats_RoundsRevenue(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/orders/stats", "", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 123.46, body["totalRevenue"])
}

func TestProducts_CRUD(t *testing.T) {
	srv, products, _ := newTestServer(t)

	resp, body := doRequest(t, http.MethodPost, srv.URL+"/products", "",
		`{"name":"Gadget","price":"4.99","stock":3,"category":"tools"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := int64(body["id"].(float64))

	resp, body = doRequest(t, http.MethodGet, srv.URL+"/products/11", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Gadget", body["name"])

	resp, _ = doRequest(t, http.MethodPatch, srv.URL+"/products/11", "", `{"price":"5.49"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, decimal.RequireFromString("5.49").Equal(products.byID[id].Price))

	resp, _ = doRequest(t, http.MethodDelete, srv.URL+"/products/11", "", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, products.byID[id].IsActive)
}

func TestCreateProduct_Validation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"missing name", `{"price":"1.00"}`, http.StatusBadRequest},
		{"zero price", `{"name":"X","price":"0"}`, http.StatusBadRequest},
		{"negative stock", `{"name":"X","price":"1.00","stock":-1}`, http.StatusBadRequest},
		{"duplicate name", `{"name":"Widget","price":"1.00"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := newTestServer(t)
			resp, _ := doRequest(t, http.MethodPost, srv.URL+"/products", "", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestAdjustStock_Endpoint(t *testing.T) {
	srv, products, _ := newTestServer(t)

	resp, _ := doRequest(t, http.MethodPost, srv.URL+"/products/10/stock", "", `{"delta":-2}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 3, products.byID[10].Stock)

	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/products/10/stock", "", `{"delta":-99}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestListLowStock_Endpoint(t *testing.T) {
	srv, products, _ := newTestServer(t)
	products.byID[11] = &product.Product{
		ID: 11, Name: "Plenty", Price: decimal.RequireFromString("1.00"), Stock: 50, IsActive: true,
	}

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/products/low-stock", "", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["products"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Widget", items[0].(map[string]any)["name"])
}

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rasoi-pos/api/internal/database"
	"github.com/rasoi-pos/api/internal/handler"
)

// --- Shared helpers ---

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func decodeListResponse(t *testing.T, rr *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var resp []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	return resp
}

func makeNum(t *testing.T, s string) pgtype.Numeric {
	t.Helper()
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		t.Fatalf("scan numeric %q: %v", s, err)
	}
	return n
}

// --- Mock store ---

type mockItemStore struct {
	items     map[int64]database.Item // keyed by item ID
	nextID    int64
	createErr error // overrides CreateItem when set
	deleteErr error // overrides DeleteItem when set
}

func newMockItemStore() *mockItemStore {
	return &mockItemStore{items: make(map[int64]database.Item), nextID: 1}
}

func (m *mockItemStore) put(t *testing.T, id int64, code, name, half, full string) {
	t.Helper()
	m.items[id] = database.Item{
		ID:        id,
		ItemCode:  code,
		ItemName:  name,
		HalfPrice: makeNum(t, half),
		FullPrice: makeNum(t, full),
		CreatedAt: time.Now(),
	}
	if id >= m.nextID {
		m.nextID = id + 1
	}
}

func (m *mockItemStore) ListItems(_ context.Context) ([]database.Item, error) {
	var result []database.Item
	for _, it := range m.items {
		result = append(result, it)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ItemCode < result[j].ItemCode })
	return result, nil
}

func (m *mockItemStore) GetItem(_ context.Context, id int64) (database.Item, error) {
	it, ok := m.items[id]
	if !ok {
		return database.Item{}, pgx.ErrNoRows
	}
	return it, nil
}

func (m *mockItemStore) GetItemByCode(_ context.Context, code string) (database.Item, error) {
	for _, it := range m.items {
		if it.ItemCode == code {
			return it, nil
		}
	}
	return database.Item{}, pgx.ErrNoRows
}

func (m *mockItemStore) CreateItem(_ context.Context, arg database.CreateItemParams) (database.Item, error) {
	if m.createErr != nil {
		return database.Item{}, m.createErr
	}
	it := database.Item{
		ID:        m.nextID,
		ItemCode:  arg.ItemCode,
		ItemName:  arg.ItemName,
		HalfPrice: arg.HalfPrice,
		FullPrice: arg.FullPrice,
		CreatedAt: time.Now(),
	}
	m.nextID++
	m.items[it.ID] = it
	return it, nil
}

func (m *mockItemStore) UpdateItem(_ context.Context, arg database.UpdateItemParams) (database.Item, error) {
	it, ok := m.items[arg.ID]
	if !ok {
		return database.Item{}, pgx.ErrNoRows
	}
	it.ItemCode = arg.ItemCode
	it.ItemName = arg.ItemName
	it.HalfPrice = arg.HalfPrice
	it.FullPrice = arg.FullPrice
	m.items[arg.ID] = it
	return it, nil
}

func (m *mockItemStore) DeleteItem(_ context.Context, id int64) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	if _, ok := m.items[id]; !ok {
		return 0, pgx.ErrNoRows
	}
	delete(m.items, id)
	return id, nil
}

func setupItemRouter(store *mockItemStore) *chi.Mux {
	h := handler.NewItemHandler(store)
	r := chi.NewRouter()
	r.Route("/items", h.RegisterRoutes)
	return r
}

// --- List tests ---

func TestItemList_Empty(t *testing.T) {
	router := setupItemRouter(newMockItemStore())

	rr := doRequest(t, router, "GET", "/items", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeListResponse(t, rr)
	if len(resp) != 0 {
		t.Errorf("expected empty list, got %d items", len(resp))
	}
}

func TestItemList_SortedByCode(t *testing.T) {
	store := newMockItemStore()
	store.put(t, 1, "ST001", "Paneer Tikka", "120.00", "220.00")
	store.put(t, 2, "CD001", "Thums Up", "25.00", "25.00")
	router := setupItemRouter(store)

	rr := doRequest(t, router, "GET", "/items", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeListResponse(t, rr)
	if len(resp) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp))
	}
	if resp[0]["item_code"] != "CD001" || resp[1]["item_code"] != "ST001" {
		t.Errorf("order: got %v, %v, want CD001, ST001", resp[0]["item_code"], resp[1]["item_code"])
	}
	if resp[0]["full_price"] != "25.00" {
		t.Errorf("full_price: got %v, want 25.00", resp[0]["full_price"])
	}
}

// --- Get tests ---

func TestItemGet_Valid(t *testing.T) {
	store := newMockItemStore()
	store.put(t, 5, "MC001", "Paneer Butter Masala", "140.00", "260.00")
	router := setupItemRouter(store)

	rr := doRequest(t, router, "GET", "/items/5", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["item_name"] != "Paneer Butter Masala" {
		t.Errorf("item_name: got %v", resp["item_name"])
	}
	if resp["half_price"] != "140.00" {
		t.Errorf("half_price: got %v, want 140.00", resp["half_price"])
	}
}

func TestItemGet_NotFound(t *testing.T) {
	router := setupItemRouter(newMockItemStore())

	rr := doRequest(t, router, "GET", "/items/99", nil)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestItemGet_InvalidID(t *testing.T) {
	router := setupItemRouter(newMockItemStore())

	rr := doRequest(t, router, "GET", "/items/abc", nil)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// --- Create tests ---

func TestItemCreate_Valid(t *testing.T) {
	router := setupItemRouter(newMockItemStore())

	rr := doRequest(t, router, "POST", "/items", map[string]interface{}{
		"item_code":  "BR002",
		"item_name":  "Butter Naan",
		"half_price": "0",
		"full_price": "45",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["item_code"] != "BR002" {
		t.Errorf("item_code: got %v, want BR002", resp["item_code"])
	}
	// Prices come back normalized to two decimal places
	if resp["full_price"] != "45.00" {
		t.Errorf("full_price: got %v, want 45.00", resp["full_price"])
	}
	if resp["half_price"] != "0.00" {
		t.Errorf("half_price: got %v, want 0.00", resp["half_price"])
	}
}

func TestItemCreate_MissingCode(t *testing.T) {
	router := setupItemRouter(newMockItemStore())

	rr := doRequest(t, router, "POST", "/items", map[string]interface{}{
		"item_name":  "No Code",
		"half_price": "10",
		"full_price": "20",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	resp := decodeResponse(t, rr)
	if resp["error"] != "item_code is required" {
		t.Errorf("error: got %v, want 'item_code is required'", resp["error"])
	}
}

func TestItemCreate_MissingName(t *testing.T) {
	router := setupItemRouter(newMockItemStore())

	rr := doRequest(t, router, "POST", "/items", map[string]interface{}{
		"item_code":  "XX001",
		"half_price": "10",
		"full_price": "20",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestItemCreate_InvalidPrice(t *testing.T) {
	router := setupItemRouter(newMockItemStore())

	cases := []struct {
		name string
		half string
		full string
	}{
		{"garbage half", "abc", "20"},
		{"negative full", "10", "-5"},
		{"empty full", "10", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, router, "POST", "/items", map[string]interface{}{
				"item_code":  "XX001",
				"item_name":  "Test",
				"half_price": tc.half,
				"full_price": tc.full,
			})
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
		})
	}
}

func TestItemCreate_DuplicateCode(t *testing.T) {
	store := newMockItemStore()
	store.put(t, 1, "CD001", "Thums Up", "25.00", "25.00")
	router := setupItemRouter(store)

	rr := doRequest(t, router, "POST", "/items", map[string]interface{}{
		"item_code":  "CD001",
		"item_name":  "Another Cola",
		"half_price": "30",
		"full_price": "30",
	})

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["error"] != "item code already exists" {
		t.Errorf("error: got %v", resp["error"])
	}
}

func TestItemCreate_DuplicateRace(t *testing.T) {
	// Pre-check passes but the insert hits the unique constraint.
	store := newMockItemStore()
	store.createErr = &pgconn.PgError{Code: "23505"}
	router := setupItemRouter(store)

	rr := doRequest(t, router, "POST", "/items", map[string]interface{}{
		"item_code":  "CD001",
		"item_name":  "Thums Up",
		"half_price": "25",
		"full_price": "25",
	})

	if rr.Code != http.StatusConflict {
		t.Errorf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}

// --- Update tests ---

func TestItemUpdate_Valid(t *testing.T) {
	store := newMockItemStore()
	store.put(t, 3, "RC001", "Jeera Rice", "80.00", "150.00")
	router := setupItemRouter(store)

	rr := doRequest(t, router, "PUT", "/items/3", map[string]interface{}{
		"item_code":  "RC001",
		"item_name":  "Jeera Rice",
		"half_price": "90",
		"full_price": "160",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["half_price"] != "90.00" {
		t.Errorf("half_price: got %v, want 90.00", resp["half_price"])
	}
}

func TestItemUpdate_NotFound(t *testing.T) {
	router := setupItemRouter(newMockItemStore())

	rr := doRequest(t, router, "PUT", "/items/42", map[string]interface{}{
		"item_code":  "XX001",
		"item_name":  "Ghost",
		"half_price": "10",
		"full_price": "20",
	})

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// --- Delete tests ---

func TestItemDelete_Valid(t *testing.T) {
	store := newMockItemStore()
	store.put(t, 7, "BR001", "Tandoori Roti", "15.00", "15.00")
	router := setupItemRouter(store)

	rr := doRequest(t, router, "DELETE", "/items/7", nil)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusNoContent, rr.Body.String())
	}
	if _, exists := store.items[7]; exists {
		t.Error("expected item to be removed from store")
	}
}

func TestItemDelete_NotFound(t *testing.T) {
	router := setupItemRouter(newMockItemStore())

	rr := doRequest(t, router, "DELETE", "/items/7", nil)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestItemDelete_OnOpenTable(t *testing.T) {
	store := newMockItemStore()
	store.put(t, 7, "BR001", "Tandoori Roti", "15.00", "15.00")
	store.deleteErr = &pgconn.PgError{Code: "23503"}
	router := setupItemRouter(store)

	rr := doRequest(t, router, "DELETE", "/items/7", nil)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["error"] != "item is on an open table" {
		t.Errorf("error: got %v", resp["error"])
	}
}

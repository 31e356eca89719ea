package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/rasoi-pos/api/internal/database"
	"github.com/rasoi-pos/api/internal/enum"
	"github.com/rasoi-pos/api/internal/handler"
	"github.com/rasoi-pos/api/internal/service"
)

// --- Mocks ---

type mockTableItemStore struct {
	tables map[int64]database.Table
	lines  map[int64][]database.ListTableItemsRow // keyed by table ID
}

func newMockTableItemStore() *mockTableItemStore {
	return &mockTableItemStore{
		tables: make(map[int64]database.Table),
		lines:  make(map[int64][]database.ListTableItemsRow),
	}
}

func (m *mockTableItemStore) GetTable(_ context.Context, id int64) (database.Table, error) {
	tbl, ok := m.tables[id]
	if !ok {
		return database.Table{}, pgx.ErrNoRows
	}
	return tbl, nil
}

func (m *mockTableItemStore) ListTableItems(_ context.Context, tableID int64) ([]database.ListTableItemsRow, error) {
	return m.lines[tableID], nil
}

// mockLineMutator stubs the line service with per-test functions.
type mockLineMutator struct {
	addFn    func(ctx context.Context, req service.AddLineRequest) (*service.LineResult, error)
	updateFn func(ctx context.Context, req service.UpdateLineRequest) (*service.LineResult, error)
	removeFn func(ctx context.Context, tableID, lineID int64) error
}

func (m *mockLineMutator) AddLine(ctx context.Context, req service.AddLineRequest) (*service.LineResult, error) {
	return m.addFn(ctx, req)
}

func (m *mockLineMutator) UpdateLine(ctx context.Context, req service.UpdateLineRequest) (*service.LineResult, error) {
	return m.updateFn(ctx, req)
}

func (m *mockLineMutator) RemoveLine(ctx context.Context, tableID, lineID int64) error {
	return m.removeFn(ctx, tableID, lineID)
}

func setupLineRouter(store *mockTableItemStore, lines *mockLineMutator) *chi.Mux {
	h := handler.NewTableItemHandler(store, lines)
	r := chi.NewRouter()
	r.Route("/tables/{id}/items", h.RegisterRoutes)
	return r
}

func testLine(t *testing.T, id int64, qty int32, unit, price string) database.TableItem {
	t.Helper()
	return database.TableItem{
		ID:        id,
		TableID:   7,
		ItemID:    10,
		Portion:   enum.PortionFull,
		Quantity:  qty,
		UnitPrice: makeNum(t, unit),
		Price:     makeNum(t, price),
		CreatedAt: time.Now(),
	}
}

// --- List tests ---

func TestLineList_WithTotal(t *testing.T) {
	store := newMockTableItemStore()
	store.tables[7] = database.Table{ID: 7, TableNumber: "Table 7", Status: enum.TableStatusOpen}
	store.lines[7] = []database.ListTableItemsRow{
		{
			ID: 1, TableID: 7, ItemID: 10, Portion: enum.PortionFull, Quantity: 2,
			UnitPrice: makeNum(t, "25.00"), Price: makeNum(t, "50.00"),
			ItemCode: "CD001", ItemName: "Thums Up",
		},
		{
			ID: 2, TableID: 7, ItemID: 11, Portion: enum.PortionHalf, Quantity: 1,
			UnitPrice: makeNum(t, "120.00"), Price: makeNum(t, "120.00"),
			ItemCode: "ST001", ItemName: "Paneer Tikka",
		},
	}
	router := setupLineRouter(store, &mockLineMutator{})

	rr := doRequest(t, router, "GET", "/tables/7/items", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["total"] != "170.00" {
		t.Errorf("total: got %v, want 170.00", resp["total"])
	}
	items, ok := resp["items"].([]interface{})
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 items, got %v", resp["items"])
	}
	first := items[0].(map[string]interface{})
	if first["item_name"] != "Thums Up" {
		t.Errorf("item_name: got %v, want Thums Up", first["item_name"])
	}
	if first["price"] != "50.00" {
		t.Errorf("price: got %v, want 50.00", first["price"])
	}
}

func TestLineList_EmptyTable(t *testing.T) {
	store := newMockTableItemStore()
	store.tables[7] = database.Table{ID: 7, TableNumber: "Table 7", Status: enum.TableStatusOpen}
	router := setupLineRouter(store, &mockLineMutator{})

	rr := doRequest(t, router, "GET", "/tables/7/items", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeResponse(t, rr)
	if resp["total"] != "0.00" {
		t.Errorf("total: got %v, want 0.00", resp["total"])
	}
}

func TestLineList_TableNotFound(t *testing.T) {
	router := setupLineRouter(newMockTableItemStore(), &mockLineMutator{})

	rr := doRequest(t, router, "GET", "/tables/99/items", nil)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// --- Add tests ---

func TestLineAdd_Created(t *testing.T) {
	var captured service.AddLineRequest
	lines := &mockLineMutator{addFn: func(_ context.Context, req service.AddLineRequest) (*service.LineResult, error) {
		captured = req
		return &service.LineResult{Line: testLine(t, 1, 2, "25.00", "50.00")}, nil
	}}
	router := setupLineRouter(newMockTableItemStore(), lines)

	rr := doRequest(t, router, "POST", "/tables/7/items", map[string]interface{}{
		"item_id":  10,
		"portion":  "full",
		"quantity": 2,
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if captured.TableID != 7 || captured.ItemID != 10 || captured.Quantity != 2 {
		t.Errorf("captured request: %+v", captured)
	}
	resp := decodeResponse(t, rr)
	if resp["price"] != "50.00" {
		t.Errorf("price: got %v, want 50.00", resp["price"])
	}
}

func TestLineAdd_DuplicateConflict(t *testing.T) {
	lines := &mockLineMutator{addFn: func(_ context.Context, _ service.AddLineRequest) (*service.LineResult, error) {
		return nil, &service.DuplicateLineError{Existing: testLine(t, 1, 2, "25.00", "50.00")}
	}}
	router := setupLineRouter(newMockTableItemStore(), lines)

	rr := doRequest(t, router, "POST", "/tables/7/items", map[string]interface{}{
		"item_id":  10,
		"portion":  "full",
		"quantity": 1,
	})

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	existing, ok := resp["existing"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected existing line in conflict payload, got %v", resp)
	}
	if existing["quantity"] != float64(2) {
		t.Errorf("existing quantity: got %v, want 2", existing["quantity"])
	}
	if existing["price"] != "50.00" {
		t.Errorf("existing price: got %v, want 50.00", existing["price"])
	}
}

func TestLineAdd_Merged(t *testing.T) {
	lines := &mockLineMutator{addFn: func(_ context.Context, _ service.AddLineRequest) (*service.LineResult, error) {
		return &service.LineResult{Line: testLine(t, 1, 3, "25.00", "75.00"), Merged: true}, nil
	}}
	router := setupLineRouter(newMockTableItemStore(), lines)

	rr := doRequest(t, router, "POST", "/tables/7/items", map[string]interface{}{
		"item_id":      10,
		"portion":      "full",
		"quantity":     1,
		"on_duplicate": "add",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["quantity"] != float64(3) || resp["price"] != "75.00" {
		t.Errorf("merged line: got qty %v price %v, want 3 / 75.00", resp["quantity"], resp["price"])
	}
}

func TestLineAdd_DecreasedToZero(t *testing.T) {
	lines := &mockLineMutator{addFn: func(_ context.Context, _ service.AddLineRequest) (*service.LineResult, error) {
		return &service.LineResult{Line: testLine(t, 1, 2, "25.00", "50.00"), Removed: true}, nil
	}}
	router := setupLineRouter(newMockTableItemStore(), lines)

	rr := doRequest(t, router, "POST", "/tables/7/items", map[string]interface{}{
		"item_id":      10,
		"portion":      "full",
		"quantity":     2,
		"on_duplicate": "decrease",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["removed"] != true {
		t.Errorf("removed: got %v, want true", resp["removed"])
	}
}

func TestLineAdd_ServiceErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"table not found", service.ErrTableNotFound, http.StatusNotFound},
		{"item not found", service.ErrItemNotFound, http.StatusNotFound},
		{"table closed", service.ErrTableClosed, http.StatusConflict},
		{"invalid quantity", service.ErrInvalidQuantity, http.StatusBadRequest},
		{"invalid portion", service.ErrInvalidPortion, http.StatusBadRequest},
		{"invalid duplicate mode", service.ErrInvalidDuplicate, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lines := &mockLineMutator{addFn: func(_ context.Context, _ service.AddLineRequest) (*service.LineResult, error) {
				return nil, tc.err
			}}
			router := setupLineRouter(newMockTableItemStore(), lines)

			rr := doRequest(t, router, "POST", "/tables/7/items", map[string]interface{}{
				"item_id":  10,
				"portion":  "full",
				"quantity": 1,
			})

			if rr.Code != tc.want {
				t.Errorf("status: got %d, want %d; body: %s", rr.Code, tc.want, rr.Body.String())
			}
		})
	}
}

func TestLineAdd_InvalidTableID(t *testing.T) {
	router := setupLineRouter(newMockTableItemStore(), &mockLineMutator{})

	rr := doRequest(t, router, "POST", "/tables/abc/items", map[string]interface{}{
		"item_id":  10,
		"portion":  "full",
		"quantity": 1,
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// --- Update tests ---

func TestLineUpdate_Quantity(t *testing.T) {
	var captured service.UpdateLineRequest
	lines := &mockLineMutator{updateFn: func(_ context.Context, req service.UpdateLineRequest) (*service.LineResult, error) {
		captured = req
		return &service.LineResult{Line: testLine(t, 100, 4, "25.00", "100.00")}, nil
	}}
	router := setupLineRouter(newMockTableItemStore(), lines)

	rr := doRequest(t, router, "PUT", "/tables/7/items/100", map[string]interface{}{
		"quantity": 4,
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if captured.TableID != 7 || captured.LineID != 100 {
		t.Errorf("captured request: %+v", captured)
	}
	if captured.Quantity == nil || *captured.Quantity != 4 {
		t.Errorf("captured quantity: got %v, want 4", captured.Quantity)
	}
	if captured.Price != nil || captured.Portion != nil {
		t.Errorf("unexpected price/portion in request: %+v", captured)
	}
	resp := decodeResponse(t, rr)
	if resp["price"] != "100.00" {
		t.Errorf("price: got %v, want 100.00", resp["price"])
	}
}

func TestLineUpdate_QuantityBelowOneRemoves(t *testing.T) {
	lines := &mockLineMutator{updateFn: func(_ context.Context, _ service.UpdateLineRequest) (*service.LineResult, error) {
		return &service.LineResult{Line: testLine(t, 100, 1, "25.00", "25.00"), Removed: true}, nil
	}}
	router := setupLineRouter(newMockTableItemStore(), lines)

	rr := doRequest(t, router, "PUT", "/tables/7/items/100", map[string]interface{}{
		"quantity": 0,
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["removed"] != true {
		t.Errorf("removed: got %v, want true", resp["removed"])
	}
}

func TestLineUpdate_NothingToUpdate(t *testing.T) {
	router := setupLineRouter(newMockTableItemStore(), &mockLineMutator{})

	rr := doRequest(t, router, "PUT", "/tables/7/items/100", map[string]interface{}{})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["error"] != "nothing to update" {
		t.Errorf("error: got %v", resp["error"])
	}
}

func TestLineUpdate_PortionNotPriced(t *testing.T) {
	lines := &mockLineMutator{updateFn: func(_ context.Context, _ service.UpdateLineRequest) (*service.LineResult, error) {
		return nil, service.ErrPortionNotPriced
	}}
	router := setupLineRouter(newMockTableItemStore(), lines)

	rr := doRequest(t, router, "PUT", "/tables/7/items/100", map[string]interface{}{
		"portion": "half",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestLineUpdate_NotFound(t *testing.T) {
	lines := &mockLineMutator{updateFn: func(_ context.Context, _ service.UpdateLineRequest) (*service.LineResult, error) {
		return nil, service.ErrLineNotFound
	}}
	router := setupLineRouter(newMockTableItemStore(), lines)

	rr := doRequest(t, router, "PUT", "/tables/7/items/100", map[string]interface{}{
		"quantity": 2,
	})

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// --- Delete tests ---

func TestLineDelete_Valid(t *testing.T) {
	var gotTable, gotLine int64
	lines := &mockLineMutator{removeFn: func(_ context.Context, tableID, lineID int64) error {
		gotTable, gotLine = tableID, lineID
		return nil
	}}
	router := setupLineRouter(newMockTableItemStore(), lines)

	rr := doRequest(t, router, "DELETE", "/tables/7/items/100", nil)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusNoContent, rr.Body.String())
	}
	if gotTable != 7 || gotLine != 100 {
		t.Errorf("remove called with table %d line %d, want 7/100", gotTable, gotLine)
	}
}

func TestLineDelete_NotFound(t *testing.T) {
	lines := &mockLineMutator{removeFn: func(_ context.Context, _, _ int64) error {
		return service.ErrLineNotFound
	}}
	router := setupLineRouter(newMockTableItemStore(), lines)

	rr := doRequest(t, router, "DELETE", "/tables/7/items/100", nil)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestLineDelete_TableClosed(t *testing.T) {
	lines := &mockLineMutator{removeFn: func(_ context.Context, _, _ int64) error {
		return service.ErrTableClosed
	}}
	router := setupLineRouter(newMockTableItemStore(), lines)

	rr := doRequest(t, router, "DELETE", "/tables/7/items/100", nil)

	if rr.Code != http.StatusConflict {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

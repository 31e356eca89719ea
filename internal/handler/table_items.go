package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/rasoi-pos/api/internal/database"
	"github.com/rasoi-pos/api/internal/service"
)

// TableItemStore defines the database methods needed to read table lines.
// Satisfied by *database.Queries.
type TableItemStore interface {
	GetTable(ctx context.Context, id int64) (database.Table, error)
	ListTableItems(ctx context.Context, tableID int64) ([]database.ListTableItemsRow, error)
}

// LineMutator applies line mutations with the open-table and duplicate
// rules. Satisfied by *service.LineService.
type LineMutator interface {
	AddLine(ctx context.Context, req service.AddLineRequest) (*service.LineResult, error)
	UpdateLine(ctx context.Context, req service.UpdateLineRequest) (*service.LineResult, error)
	RemoveLine(ctx context.Context, tableID, lineID int64) error
}

// TableItemHandler handles the lines of a running table.
type TableItemHandler struct {
	store TableItemStore
	lines LineMutator
}

// NewTableItemHandler creates a new TableItemHandler.
func NewTableItemHandler(store TableItemStore, lines LineMutator) *TableItemHandler {
	return &TableItemHandler{store: store, lines: lines}
}

// RegisterRoutes registers line endpoints on the given Chi router.
// Mounted at /tables/{id}/items.
func (h *TableItemHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Add)
	r.Put("/{itemID}", h.Update)
	r.Delete("/{itemID}", h.Delete)
}

// --- Request / Response types ---

type addLineRequest struct {
	ItemID      int64  `json:"item_id"`
	Portion     string `json:"portion"`
	Quantity    int32  `json:"quantity"`
	OnDuplicate string `json:"on_duplicate"`
}

type updateLineRequest struct {
	Quantity *int32  `json:"quantity"`
	Price    *string `json:"price"`
	Portion  *string `json:"portion"`
}

// lineResponse is a bare order line, used for mutation results.
type lineResponse struct {
	ID        int64     `json:"id"`
	TableID   int64     `json:"table_id"`
	ItemID    int64     `json:"item_id"`
	Portion   string    `json:"portion"`
	Quantity  int32     `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Price     string    `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// listedLineResponse is a line joined with its menu item for the table view.
type listedLineResponse struct {
	lineResponse
	ItemCode string `json:"item_code"`
	ItemName string `json:"item_name"`
}

type tableLinesResponse struct {
	Items []listedLineResponse `json:"items"`
	Total string               `json:"total"`
}

func toLineResponse(ti database.TableItem) lineResponse {
	return lineResponse{
		ID:        ti.ID,
		TableID:   ti.TableID,
		ItemID:    ti.ItemID,
		Portion:   ti.Portion,
		Quantity:  ti.Quantity,
		UnitPrice: numericToString(ti.UnitPrice),
		Price:     numericToString(ti.Price),
		CreatedAt: ti.CreatedAt,
	}
}

func toListedLineResponse(row database.ListTableItemsRow) listedLineResponse {
	return listedLineResponse{
		lineResponse: lineResponse{
			ID:        row.ID,
			TableID:   row.TableID,
			ItemID:    row.ItemID,
			Portion:   row.Portion,
			Quantity:  row.Quantity,
			UnitPrice: numericToString(row.UnitPrice),
			Price:     numericToString(row.Price),
			CreatedAt: row.CreatedAt,
		},
		ItemCode: row.ItemCode,
		ItemName: row.ItemName,
	}
}

// --- Handlers ---

// List returns the running order of a table with its total.
func (h *TableItemHandler) List(w http.ResponseWriter, r *http.Request) {
	tableID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	if _, err := h.store.GetTable(r.Context(), tableID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
			return
		}
		log.Printf("ERROR: get table: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	rows, err := h.store.ListTableItems(r.Context(), tableID)
	if err != nil {
		log.Printf("ERROR: list table items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := tableLinesResponse{
		Items: make([]listedLineResponse, len(rows)),
		Total: service.LinesTotal(rows).StringFixed(2),
	}
	for i, row := range rows {
		resp.Items[i] = toListedLineResponse(row)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Add puts an item on a table. When the same (item, portion) is already on
// the table and no on_duplicate mode was given, the response is a 409
// carrying the existing line so the terminal can prompt.
func (h *TableItemHandler) Add(w http.ResponseWriter, r *http.Request) {
	tableID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	var req addLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.lines.AddLine(r.Context(), service.AddLineRequest{
		TableID:     tableID,
		ItemID:      req.ItemID,
		Portion:     req.Portion,
		Quantity:    req.Quantity,
		OnDuplicate: req.OnDuplicate,
	})
	if err != nil {
		var dup *service.DuplicateLineError
		if errors.As(err, &dup) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":    err.Error(),
				"existing": toLineResponse(dup.Existing),
			})
			return
		}
		writeLineError(w, err, "add line")
		return
	}

	switch {
	case result.Removed:
		writeJSON(w, http.StatusOK, map[string]any{"removed": true, "line": toLineResponse(result.Line)})
	case result.Merged:
		writeJSON(w, http.StatusOK, toLineResponse(result.Line))
	default:
		writeJSON(w, http.StatusCreated, toLineResponse(result.Line))
	}
}

// Update edits a line's quantity, price or portion. A quantity below 1
// removes the line.
func (h *TableItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	tableID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}
	lineID, err := parseID(r, "itemID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid line ID"})
		return
	}

	var req updateLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Quantity == nil && req.Price == nil && req.Portion == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "nothing to update"})
		return
	}

	result, err := h.lines.UpdateLine(r.Context(), service.UpdateLineRequest{
		TableID:  tableID,
		LineID:   lineID,
		Quantity: req.Quantity,
		Price:    req.Price,
		Portion:  req.Portion,
	})
	if err != nil {
		writeLineError(w, err, "update line")
		return
	}

	if result.Removed {
		writeJSON(w, http.StatusOK, map[string]any{"removed": true, "line": toLineResponse(result.Line)})
		return
	}
	writeJSON(w, http.StatusOK, toLineResponse(result.Line))
}

// Delete removes a line from a table.
func (h *TableItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tableID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}
	lineID, err := parseID(r, "itemID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid line ID"})
		return
	}

	if err := h.lines.RemoveLine(r.Context(), tableID, lineID); err != nil {
		writeLineError(w, err, "remove line")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeLineError maps line service errors onto the HTTP surface.
func writeLineError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrTableNotFound),
		errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, service.ErrLineNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrTableClosed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidPortion),
		errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrInvalidDuplicate),
		errors.Is(err, service.ErrPortionNotPriced):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

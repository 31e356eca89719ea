package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rasoi-pos/api/internal/database"
	"github.com/shopspring/decimal"
)

// ItemStore defines the database methods needed by menu item handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ItemStore interface {
	ListItems(ctx context.Context) ([]database.Item, error)
	GetItem(ctx context.Context, id int64) (database.Item, error)
	GetItemByCode(ctx context.Context, itemCode string) (database.Item, error)
	CreateItem(ctx context.Context, arg database.CreateItemParams) (database.Item, error)
	UpdateItem(ctx context.Context, arg database.UpdateItemParams) (database.Item, error)
	DeleteItem(ctx context.Context, id int64) (int64, error)
}

// ItemHandler handles menu item CRUD endpoints.
type ItemHandler struct {
	store ItemStore
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(store ItemStore) *ItemHandler {
	return &ItemHandler{store: store}
}

// RegisterRoutes registers menu item endpoints on the given Chi router.
// Mounted at /items.
func (h *ItemHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

type itemRequest struct {
	ItemCode  string `json:"item_code"`
	ItemName  string `json:"item_name"`
	HalfPrice string `json:"half_price"`
	FullPrice string `json:"full_price"`
}

type itemResponse struct {
	ID        int64     `json:"id"`
	ItemCode  string    `json:"item_code"`
	ItemName  string    `json:"item_name"`
	HalfPrice string    `json:"half_price"`
	FullPrice string    `json:"full_price"`
	CreatedAt time.Time `json:"created_at"`
}

func toItemResponse(it database.Item) itemResponse {
	return itemResponse{
		ID:        it.ID,
		ItemCode:  it.ItemCode,
		ItemName:  it.ItemName,
		HalfPrice: numericToString(it.HalfPrice),
		FullPrice: numericToString(it.FullPrice),
		CreatedAt: it.CreatedAt,
	}
}

// parsePrices validates the request's price fields. Prices must be
// non-negative decimal strings.
func (req itemRequest) parsePrices() (pgtype.Numeric, pgtype.Numeric, error) {
	half, err := decimal.NewFromString(req.HalfPrice)
	if err != nil || half.IsNegative() {
		return pgtype.Numeric{}, pgtype.Numeric{}, errors.New("invalid half_price")
	}
	full, err := decimal.NewFromString(req.FullPrice)
	if err != nil || full.IsNegative() {
		return pgtype.Numeric{}, pgtype.Numeric{}, errors.New("invalid full_price")
	}
	return decimalToNumeric(half), decimalToNumeric(full), nil
}

// --- Handlers ---

// List returns the full menu catalog ordered by item code.
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListItems(r.Context())
	if err != nil {
		log.Printf("ERROR: list items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]itemResponse, len(items))
	for i, it := range items {
		resp[i] = toItemResponse(it)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single menu item.
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	item, err := h.store.GetItem(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not found"})
			return
		}
		log.Printf("ERROR: get item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toItemResponse(item))
}

// Create adds a new item to the menu. Item codes are unique.
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.ItemCode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "item_code is required"})
		return
	}
	if req.ItemName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "item_name is required"})
		return
	}
	half, full, err := req.parsePrices()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if _, err := h.store.GetItemByCode(r.Context(), req.ItemCode); err == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "item code already exists"})
		return
	} else if !errors.Is(err, pgx.ErrNoRows) {
		log.Printf("ERROR: check item code: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	item, err := h.store.CreateItem(r.Context(), database.CreateItemParams{
		ItemCode:  req.ItemCode,
		ItemName:  req.ItemName,
		HalfPrice: half,
		FullPrice: full,
	})
	if err != nil {
		// Pre-check raced with a concurrent create.
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "item code already exists"})
			return
		}
		log.Printf("ERROR: create item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toItemResponse(item))
}

// Update modifies an existing menu item.
func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.ItemCode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "item_code is required"})
		return
	}
	if req.ItemName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "item_name is required"})
		return
	}
	half, full, err := req.parsePrices()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	item, err := h.store.UpdateItem(r.Context(), database.UpdateItemParams{
		ItemCode:  req.ItemCode,
		ItemName:  req.ItemName,
		HalfPrice: half,
		FullPrice: full,
		ID:        id,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not found"})
			return
		}
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "item code already exists"})
			return
		}
		log.Printf("ERROR: update item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toItemResponse(item))
}

// Delete removes an item from the menu. Items referenced by open table
// lines cannot be deleted.
func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	if _, err := h.store.DeleteItem(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not found"})
			return
		}
		if isForeignKeyViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "item is on an open table"})
			return
		}
		log.Printf("ERROR: delete item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Shared helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

func parseID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

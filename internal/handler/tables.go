package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/rasoi-pos/api/internal/database"
	"github.com/rasoi-pos/api/internal/enum"
	"github.com/rasoi-pos/api/internal/service"
	"github.com/rasoi-pos/api/internal/ws"
)

// Broadcaster pushes lifecycle events to connected terminals.
// Satisfied by *ws.Hub.
type Broadcaster interface {
	Broadcast(event ws.Event)
}

// TableStore defines the database methods needed by table handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type TableStore interface {
	ListTablesForDay(ctx context.Context, arg database.ListTablesForDayParams) ([]database.Table, error)
	GetTable(ctx context.Context, id int64) (database.Table, error)
	GetOpenTableByNumber(ctx context.Context, tableNumber string) (database.Table, error)
	CreateTable(ctx context.Context, tableNumber string) (database.Table, error)
	GetLatestBillByTable(ctx context.Context, tableID int64) (database.Bill, error)
}

// TableReopener restores a closed table from its latest bill.
// Satisfied by *service.BillingService.
type TableReopener interface {
	Reopen(ctx context.Context, tableID int64) (*service.ReopenResult, error)
}

// TableHandler handles table lifecycle endpoints.
type TableHandler struct {
	store   TableStore
	billing TableReopener
	hub     Broadcaster
	loc     *time.Location
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(store TableStore, billing TableReopener, hub Broadcaster, loc *time.Location) *TableHandler {
	return &TableHandler{store: store, billing: billing, hub: hub, loc: loc}
}

// RegisterRoutes registers table endpoints on the given Chi router.
// Mounted at /tables.
func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}/reopen", h.Reopen)
}

// --- Request / Response types ---

type createTableRequest struct {
	TableNumber string `json:"table_number"`
}

// tableBillInfo is the latest-bill summary attached to closed tables so the
// floor view can show how a sitting ended without another round trip.
type tableBillInfo struct {
	ID            int64     `json:"id"`
	TotalAmount   string    `json:"total_amount"`
	PaymentStatus string    `json:"payment_status"`
	PaymentMethod string    `json:"payment_method"`
	CustomerName  *string   `json:"customer_name"`
	CustomerPhone *string   `json:"customer_phone"`
	ClosedAt      time.Time `json:"closed_at"`
}

type tableResponse struct {
	ID          int64          `json:"id"`
	TableNumber string         `json:"table_number"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	Bill        *tableBillInfo `json:"bill,omitempty"`
}

type reopenResponse struct {
	tableResponse
	Restored     int      `json:"restored"`
	SkippedCodes []string `json:"skipped_codes"`
}

func toTableResponse(t database.Table) tableResponse {
	return tableResponse{
		ID:          t.ID,
		TableNumber: t.TableNumber,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt,
	}
}

func toTableBillInfo(b database.Bill) *tableBillInfo {
	info := &tableBillInfo{
		ID:            b.ID,
		TotalAmount:   numericToString(b.TotalAmount),
		PaymentStatus: b.PaymentStatus,
		PaymentMethod: b.PaymentMethod,
		ClosedAt:      b.CreatedAt,
	}
	if b.CustomerName.Valid {
		info.CustomerName = &b.CustomerName.String
	}
	if b.CustomerPhone.Valid {
		info.CustomerPhone = &b.CustomerPhone.String
	}
	return info
}

// --- Handlers ---

// List returns the floor view for a day: every open table plus the tables
// closed within that day, open tables first, then by the numeric suffix of
// the table label.
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	dayStart, dayEnd, err := parseDayWindow(r, h.loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	tables, err := h.store.ListTablesForDay(r.Context(), database.ListTablesForDayParams{
		DayStart: dayStart,
		DayEnd:   dayEnd,
	})
	if err != nil {
		log.Printf("ERROR: list tables: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]tableResponse, len(tables))
	for i, t := range tables {
		resp[i] = toTableResponse(t)
		if t.Status != enum.TableStatusClosed {
			continue
		}
		bill, err := h.store.GetLatestBillByTable(r.Context(), t.ID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue // closed without a bill
			}
			log.Printf("ERROR: latest bill for table %d: %v", t.ID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		resp[i].Bill = toTableBillInfo(bill)
	}

	sort.SliceStable(resp, func(i, j int) bool {
		if resp[i].Status != resp[j].Status {
			return resp[i].Status == enum.TableStatusOpen
		}
		return labelNumber(resp[i].TableNumber) < labelNumber(resp[j].TableNumber)
	})

	writeJSON(w, http.StatusOK, resp)
}

// Create opens a new table. A number already held by an open table is a
// conflict; numbers of closed tables can be reused.
func (h *TableHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.TableNumber = strings.TrimSpace(req.TableNumber)
	if req.TableNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "table_number is required"})
		return
	}

	if _, err := h.store.GetOpenTableByNumber(r.Context(), req.TableNumber); err == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "table is already open"})
		return
	} else if !errors.Is(err, pgx.ErrNoRows) {
		log.Printf("ERROR: check table number: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	table, err := h.store.CreateTable(r.Context(), req.TableNumber)
	if err != nil {
		// Pre-check raced with a concurrent create; the partial unique
		// index is the source of truth.
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "table is already open"})
			return
		}
		log.Printf("ERROR: create table: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.hub.Broadcast(ws.NewEvent(enum.EventTableCreated, toTableResponse(table)))
	writeJSON(w, http.StatusCreated, toTableResponse(table))
}

// Get returns a single table.
func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	table, err := h.store.GetTable(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
			return
		}
		log.Printf("ERROR: get table: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toTableResponse(table))
}

// Reopen sets a closed table back to open and restores its lines from the
// latest bill. Items dropped from the menu since the bill was cut are
// skipped and reported.
func (h *TableHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	result, err := h.billing.Reopen(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrTableNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
			return
		}
		log.Printf("ERROR: reopen table: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := reopenResponse{
		tableResponse: toTableResponse(result.Table),
		Restored:      result.Restored,
		SkippedCodes:  result.SkippedCodes,
	}
	if resp.SkippedCodes == nil {
		resp.SkippedCodes = []string{}
	}

	h.hub.Broadcast(ws.NewEvent(enum.EventTableReopened, resp))
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

// parseDayWindow resolves the ?date= query parameter ("today", "yesterday"
// or YYYY-MM-DD, defaulting to today) into a half-open [start, end) interval
// in the restaurant timezone.
func parseDayWindow(r *http.Request, loc *time.Location) (time.Time, time.Time, error) {
	const layout = "2006-01-02"

	now := time.Now().In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch s := r.URL.Query().Get("date"); s {
	case "", "today":
	case "yesterday":
		day = day.AddDate(0, 0, -1)
	default:
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid date format: %w", err)
		}
		day = t
	}

	return day, day.AddDate(0, 0, 1), nil
}

// labelNumber extracts the trailing number of a table label ("Table 12" ->
// 12) for display ordering. Only the trailing digit run counts ("T1-A2"
// sorts as 2, not 12); labels without one sort as 0.
func labelNumber(label string) int {
	i := len(label)
	for i > 0 && label[i-1] >= '0' && label[i-1] <= '9' {
		i--
	}
	n, err := strconv.Atoi(label[i:])
	if err != nil {
		return 0
	}
	return n
}

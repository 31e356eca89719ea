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
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rasoi-pos/api/internal/database"
	"github.com/rasoi-pos/api/internal/enum"
	"github.com/rasoi-pos/api/internal/service"
	"github.com/rasoi-pos/api/internal/ws"
	"github.com/shopspring/decimal"
)

// BillStore defines the database methods needed by bill handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type BillStore interface {
	ListBills(ctx context.Context) ([]database.Bill, error)
	ListBillsByDateRange(ctx context.Context, arg database.ListBillsByDateRangeParams) ([]database.Bill, error)
	ListPendingBills(ctx context.Context) ([]database.Bill, error)
	GetBill(ctx context.Context, id int64) (database.Bill, error)
	GetLatestBillByTable(ctx context.Context, tableID int64) (database.Bill, error)
	UpdateBill(ctx context.Context, arg database.UpdateBillParams) (database.Bill, error)
}

// TableFinalizer closes a table into a bill. Satisfied by
// *service.BillingService.
type TableFinalizer interface {
	Finalize(ctx context.Context, req service.FinalizeRequest) (*service.FinalizeResult, error)
}

// BillHandler handles billing endpoints.
type BillHandler struct {
	store   BillStore
	billing TableFinalizer
	hub     Broadcaster
	loc     *time.Location
}

// NewBillHandler creates a new BillHandler.
func NewBillHandler(store BillStore, billing TableFinalizer, hub Broadcaster, loc *time.Location) *BillHandler {
	return &BillHandler{store: store, billing: billing, hub: hub, loc: loc}
}

// RegisterRoutes registers billing endpoints on the given Chi router.
// Mounted at /bills.
func (h *BillHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Finalize)
	r.Get("/", h.List)
	r.Get("/today", h.ListToday)
	r.Get("/yesterday", h.ListYesterday)
	r.Get("/pending", h.ListPending)
	r.Get("/table/{tableID}", h.GetByTable)
	r.Put("/{id}", h.Update)
}

// --- Request / Response types ---

type finalizeRequest struct {
	TableID       int64  `json:"table_id"`
	PaymentStatus string `json:"payment_status"`
	PaymentMethod string `json:"payment_method"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
}

type updateBillRequest struct {
	TotalAmount     *string              `json:"total_amount"`
	PaymentStatus   *string              `json:"payment_status"`
	PaymentMethod   *string              `json:"payment_method"`
	Items           *[]database.BillItem `json:"items"`
	CustomerName    *string              `json:"customer_name"`
	CustomerPhone   *string              `json:"customer_phone"`
	ExpectedVersion *int32               `json:"expected_version"`
}

type billResponse struct {
	ID            int64               `json:"id"`
	TableID       int64               `json:"table_id"`
	TableNumber   string              `json:"table_number"`
	TotalAmount   string              `json:"total_amount"`
	PaymentStatus string              `json:"payment_status"`
	PaymentMethod string              `json:"payment_method"`
	Items         []database.BillItem `json:"items"`
	CustomerName  *string             `json:"customer_name"`
	CustomerPhone *string             `json:"customer_phone"`
	Version       int32               `json:"version"`
	CreatedAt     time.Time           `json:"created_at"`
}

func toBillResponse(b database.Bill) billResponse {
	resp := billResponse{
		ID:            b.ID,
		TableID:       b.TableID,
		TableNumber:   b.TableNumber,
		TotalAmount:   numericToString(b.TotalAmount),
		PaymentStatus: b.PaymentStatus,
		PaymentMethod: b.PaymentMethod,
		Items:         database.ParseBillItems(b.Items),
		Version:       b.Version,
		CreatedAt:     b.CreatedAt,
	}
	if b.CustomerName.Valid {
		resp.CustomerName = &b.CustomerName.String
	}
	if b.CustomerPhone.Valid {
		resp.CustomerPhone = &b.CustomerPhone.String
	}
	return resp
}

// --- Handlers ---

// Finalize closes a table into a bill. A second close of the same table on
// the same day updates the day's bill in place.
func (h *BillHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.TableID < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "table_id is required"})
		return
	}

	result, err := h.billing.Finalize(r.Context(), service.FinalizeRequest{
		TableID:       req.TableID,
		PaymentStatus: req.PaymentStatus,
		PaymentMethod: req.PaymentMethod,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPaymentStatus),
			errors.Is(err, service.ErrInvalidPaymentMethod),
			errors.Is(err, service.ErrCustomerRequired):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrTableNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
		default:
			log.Printf("ERROR: finalize table %d: %v", req.TableID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	resp := toBillResponse(result.Bill)
	h.hub.Broadcast(ws.NewEvent(enum.EventTableClosed, map[string]int64{"table_id": resp.TableID}))
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
		h.hub.Broadcast(ws.NewEvent(enum.EventBillCreated, resp))
	} else {
		h.hub.Broadcast(ws.NewEvent(enum.EventBillUpdated, resp))
	}
	writeJSON(w, status, resp)
}

// List returns all bills, or the bills of one day when ?date= is given,
// newest first.
func (h *BillHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("date") == "" {
		bills, err := h.store.ListBills(r.Context())
		if err != nil {
			log.Printf("ERROR: list bills: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		writeBillList(w, bills)
		return
	}

	dayStart, dayEnd, err := parseDayWindow(r, h.loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.listRange(w, r, dayStart, dayEnd)
}

// ListToday returns today's bills, newest first.
func (h *BillHandler) ListToday(w http.ResponseWriter, r *http.Request) {
	dayStart, dayEnd := dayWindowAt(time.Now(), h.loc, 0)
	h.listRange(w, r, dayStart, dayEnd)
}

// ListYesterday returns yesterday's bills, newest first.
func (h *BillHandler) ListYesterday(w http.ResponseWriter, r *http.Request) {
	dayStart, dayEnd := dayWindowAt(time.Now(), h.loc, -1)
	h.listRange(w, r, dayStart, dayEnd)
}

// ListPending returns unpaid bills across all days, newest first.
func (h *BillHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	bills, err := h.store.ListPendingBills(r.Context())
	if err != nil {
		log.Printf("ERROR: list pending bills: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeBillList(w, bills)
}

// GetByTable returns the latest bill of a table.
func (h *BillHandler) GetByTable(w http.ResponseWriter, r *http.Request) {
	tableID, err := parseID(r, "tableID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	bill, err := h.store.GetLatestBillByTable(r.Context(), tableID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no bill for table"})
			return
		}
		log.Printf("ERROR: latest bill for table %d: %v", tableID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toBillResponse(bill))
}

// Update partially edits a bill. A caller changing items supplies the
// matching total_amount. An expected_version that no longer matches the
// stored bill leaves it untouched and answers 409.
func (h *BillHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid bill ID"})
		return
	}

	var req updateBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params := database.UpdateBillParams{ID: id}

	if req.TotalAmount != nil {
		total, err := decimal.NewFromString(*req.TotalAmount)
		if err != nil || total.IsNegative() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid total_amount"})
			return
		}
		params.TotalAmount = decimalToNumeric(total)
	}
	if req.PaymentStatus != nil {
		if *req.PaymentStatus != enum.PaymentStatusPaid && *req.PaymentStatus != enum.PaymentStatusPending {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment_status"})
			return
		}
		params.PaymentStatus = pgtype.Text{String: *req.PaymentStatus, Valid: true}
	}
	if req.PaymentMethod != nil {
		if *req.PaymentMethod != enum.PaymentMethodCash && *req.PaymentMethod != enum.PaymentMethodOnline {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment_method"})
			return
		}
		params.PaymentMethod = pgtype.Text{String: *req.PaymentMethod, Valid: true}
	}
	if req.Items != nil {
		if req.TotalAmount == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "total_amount is required when changing items"})
			return
		}
		params.Items = database.EncodeBillItems(*req.Items)
	}
	if req.CustomerName != nil {
		params.SetCustomerName = true
		if *req.CustomerName != "" {
			params.CustomerName = pgtype.Text{String: *req.CustomerName, Valid: true}
		}
	}
	if req.CustomerPhone != nil {
		params.SetCustomerPhone = true
		if *req.CustomerPhone != "" {
			params.CustomerPhone = pgtype.Text{String: *req.CustomerPhone, Valid: true}
		}
	}
	if req.ExpectedVersion != nil {
		params.ExpectedVersion = pgtype.Int4{Int32: *req.ExpectedVersion, Valid: true}
	}

	bill, err := h.store.UpdateBill(r.Context(), params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the bill is gone or the version guard fired.
			if _, getErr := h.store.GetBill(r.Context(), id); getErr == nil {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "bill was changed by another terminal"})
				return
			}
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "bill not found"})
			return
		}
		log.Printf("ERROR: update bill %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := toBillResponse(bill)
	h.hub.Broadcast(ws.NewEvent(enum.EventBillUpdated, resp))
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func (h *BillHandler) listRange(w http.ResponseWriter, r *http.Request, dayStart, dayEnd time.Time) {
	bills, err := h.store.ListBillsByDateRange(r.Context(), database.ListBillsByDateRangeParams{
		DayStart: dayStart,
		DayEnd:   dayEnd,
	})
	if err != nil {
		log.Printf("ERROR: list bills by date: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeBillList(w, bills)
}

func writeBillList(w http.ResponseWriter, bills []database.Bill) {
	resp := make([]billResponse, len(bills))
	for i, b := range bills {
		resp[i] = toBillResponse(b)
	}
	writeJSON(w, http.StatusOK, resp)
}

// dayWindowAt returns the half-open day interval offset days from now in
// the restaurant timezone.
func dayWindowAt(now time.Time, loc *time.Location, offset int) (time.Time, time.Time) {
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, offset)
	return day, day.AddDate(0, 0, 1)
}

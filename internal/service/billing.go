package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rasoi-pos/api/internal/database"
	"github.com/rasoi-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// Errors returned by the billing service.
var (
	ErrInvalidPaymentStatus = errors.New("invalid payment_status")
	ErrInvalidPaymentMethod = errors.New("invalid payment_method")
	ErrCustomerRequired     = errors.New("customer name and phone are required for pending bills")
)

// BillStore defines the DB methods needed to finalize and reopen tables.
// Satisfied by *database.Queries (and its WithTx variant).
type BillStore interface {
	GetTable(ctx context.Context, id int64) (database.Table, error)
	SetTableStatus(ctx context.Context, arg database.SetTableStatusParams) (database.Table, error)
	ListTableItems(ctx context.Context, tableID int64) ([]database.ListTableItemsRow, error)
	DeleteTableItemsByTable(ctx context.Context, tableID int64) error
	CreateTableItem(ctx context.Context, arg database.CreateTableItemParams) (database.TableItem, error)
	GetItemByCode(ctx context.Context, itemCode string) (database.Item, error)
	GetBillByTableAndDay(ctx context.Context, arg database.GetBillByTableAndDayParams) (database.Bill, error)
	GetLatestBillByTable(ctx context.Context, tableID int64) (database.Bill, error)
	CreateBill(ctx context.Context, arg database.CreateBillParams) (database.Bill, error)
	UpdateBill(ctx context.Context, arg database.UpdateBillParams) (database.Bill, error)
}

// NewBillStore creates a BillStore from a DBTX (pool or tx).
type NewBillStore func(db database.DBTX) BillStore

// FinalizeRequest is the validated input for closing a table into a bill.
type FinalizeRequest struct {
	TableID       int64
	PaymentStatus string
	PaymentMethod string
	CustomerName  string
	CustomerPhone string
}

// FinalizeResult is the bill produced by closing a table. Created is false
// when the table was closed again the same day and its bill was updated in
// place.
type FinalizeResult struct {
	Bill    database.Bill
	Created bool
}

// ReopenResult is the outcome of reopening a closed table. SkippedCodes
// lists bill items whose menu code no longer resolves and could not be
// restored.
type ReopenResult struct {
	Table        database.Table
	Restored     int
	SkippedCodes []string
}

// BillingService closes tables into bills and reopens them.
type BillingService struct {
	pool     TxBeginner
	newStore NewBillStore
	loc      *time.Location
}

// NewBillingService creates a new BillingService. loc is the restaurant
// timezone used to bucket bills into calendar days.
func NewBillingService(pool TxBeginner, newStore NewBillStore, loc *time.Location) *BillingService {
	return &BillingService{pool: pool, newStore: newStore, loc: loc}
}

// Finalize snapshots an open table's lines into a bill, closes the table and
// clears its lines, all atomically. Closing the same table twice in one
// calendar day updates the day's existing bill instead of creating another;
// re-finalizing an already closed table keeps the stored snapshot and total
// and rewrites only the payment and customer fields.
func (s *BillingService) Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	switch req.PaymentStatus {
	case enum.PaymentStatusPaid, enum.PaymentStatusPending:
	default:
		return nil, ErrInvalidPaymentStatus
	}
	switch req.PaymentMethod {
	case enum.PaymentMethodCash, enum.PaymentMethodOnline:
	default:
		return nil, ErrInvalidPaymentMethod
	}
	if req.PaymentStatus == enum.PaymentStatusPending {
		if req.CustomerName == "" || req.CustomerPhone == "" {
			return nil, ErrCustomerRequired
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	table, err := store.GetTable(ctx, req.TableID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("get table: %w", err)
	}
	open := table.Status == enum.TableStatusOpen

	// --- Snapshot lines ---
	rows, err := store.ListTableItems(ctx, table.ID)
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}
	total := decimal.Zero
	billItems := make([]database.BillItem, 0, len(rows))
	for _, row := range rows {
		price := numericToDecimal(row.Price)
		total = total.Add(price)
		billItems = append(billItems, database.BillItem{
			ItemCode: row.ItemCode,
			ItemName: row.ItemName,
			Portion:  row.Portion,
			Quantity: row.Quantity,
			Price:    price,
		})
	}
	snapshot := database.EncodeBillItems(billItems)

	customerName := pgtype.Text{}
	customerPhone := pgtype.Text{}
	if req.CustomerName != "" {
		customerName = pgtype.Text{String: req.CustomerName, Valid: true}
	}
	if req.CustomerPhone != "" {
		customerPhone = pgtype.Text{String: req.CustomerPhone, Valid: true}
	}

	// --- Upsert the day's bill ---
	dayStart, dayEnd := s.dayWindow(time.Now())
	var bill database.Bill
	created := false
	existing, err := store.GetBillByTableAndDay(ctx, database.GetBillByTableAndDayParams{
		TableID:  table.ID,
		DayStart: dayStart,
		DayEnd:   dayEnd,
	})
	switch {
	case err == nil:
		params := database.UpdateBillParams{
			PaymentStatus:    pgtype.Text{String: req.PaymentStatus, Valid: true},
			PaymentMethod:    pgtype.Text{String: req.PaymentMethod, Valid: true},
			SetCustomerName:  true,
			CustomerName:     customerName,
			SetCustomerPhone: true,
			CustomerPhone:    customerPhone,
			ID:               existing.ID,
		}
		// A closed table has no lines; keep the bill's stored snapshot
		// instead of overwriting it with an empty one.
		if open {
			params.TotalAmount = decimalToNumeric(total)
			params.Items = snapshot
		}
		bill, err = store.UpdateBill(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("update bill: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		created = true
		bill, err = store.CreateBill(ctx, database.CreateBillParams{
			TableID:       table.ID,
			TableNumber:   table.TableNumber,
			TotalAmount:   decimalToNumeric(total),
			PaymentStatus: req.PaymentStatus,
			PaymentMethod: req.PaymentMethod,
			Items:         snapshot,
			CustomerName:  customerName,
			CustomerPhone: customerPhone,
		})
		if err != nil {
			return nil, fmt.Errorf("create bill: %w", err)
		}
	default:
		return nil, fmt.Errorf("get day bill: %w", err)
	}

	// --- Close the table and clear its lines ---
	if _, err := store.SetTableStatus(ctx, database.SetTableStatusParams{
		Status: enum.TableStatusClosed,
		ID:     table.ID,
	}); err != nil {
		return nil, fmt.Errorf("close table: %w", err)
	}
	if err := store.DeleteTableItemsByTable(ctx, table.ID); err != nil {
		return nil, fmt.Errorf("clear lines: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &FinalizeResult{Bill: bill, Created: created}, nil
}

// Reopen sets a table back to open and restores its lines from the latest
// bill snapshot. Snapshot items whose code no longer resolves in the menu
// are skipped and reported. Reopening an already-open table is a no-op.
func (s *BillingService) Reopen(ctx context.Context, tableID int64) (*ReopenResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	table, err := store.GetTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("get table: %w", err)
	}
	if table.Status == enum.TableStatusOpen {
		return &ReopenResult{Table: table}, nil
	}

	table, err = store.SetTableStatus(ctx, database.SetTableStatusParams{
		Status: enum.TableStatusOpen,
		ID:     table.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("reopen table: %w", err)
	}

	result := &ReopenResult{Table: table}

	bill, err := store.GetLatestBillByTable(ctx, table.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Closed without a bill; nothing to restore.
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("commit tx: %w", err)
			}
			return result, nil
		}
		return nil, fmt.Errorf("get latest bill: %w", err)
	}

	for _, bi := range database.ParseBillItems(bill.Items) {
		item, err := store.GetItemByCode(ctx, bi.ItemCode)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				log.Printf("reopen table %d: skipping %q, no longer in menu", table.ID, bi.ItemCode)
				result.SkippedCodes = append(result.SkippedCodes, bi.ItemCode)
				continue
			}
			return nil, fmt.Errorf("resolve %q: %w", bi.ItemCode, err)
		}
		unit := bi.Price
		if bi.Quantity > 0 {
			unit = bi.Price.Div(decimal.NewFromInt32(bi.Quantity))
		}
		if _, err := store.CreateTableItem(ctx, database.CreateTableItemParams{
			TableID:   table.ID,
			ItemID:    item.ID,
			Portion:   bi.Portion,
			Quantity:  bi.Quantity,
			UnitPrice: decimalToNumeric(unit),
			Price:     decimalToNumeric(bi.Price),
		}); err != nil {
			return nil, fmt.Errorf("restore line %q: %w", bi.ItemCode, err)
		}
		result.Restored++
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

// dayWindow returns the half-open [start, end) interval of now's calendar
// day in the restaurant timezone.
func (s *BillingService) dayWindow(now time.Time) (time.Time, time.Time) {
	local := now.In(s.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	return start, start.Add(24 * time.Hour)
}

package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const billColumns = `id, table_id, table_number, total_amount, payment_status, payment_method, items, customer_name, customer_phone, version, created_at`

func scanBill(row interface{ Scan(dest ...any) error }) (Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.TableID, &b.TableNumber, &b.TotalAmount, &b.PaymentStatus,
		&b.PaymentMethod, &b.Items, &b.CustomerName, &b.CustomerPhone, &b.Version, &b.CreatedAt)
	return b, err
}

const listBills = `
SELECT ` + billColumns + `
FROM bills
ORDER BY created_at DESC
`

func (q *Queries) ListBills(ctx context.Context) ([]Bill, error) {
	rows, err := q.db.Query(ctx, listBills)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bills []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

const listBillsByDateRange = `
SELECT ` + billColumns + `
FROM bills
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at DESC
`

type ListBillsByDateRangeParams struct {
	DayStart time.Time
	DayEnd   time.Time
}

func (q *Queries) ListBillsByDateRange(ctx context.Context, arg ListBillsByDateRangeParams) ([]Bill, error) {
	rows, err := q.db.Query(ctx, listBillsByDateRange, arg.DayStart, arg.DayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bills []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

const listPendingBills = `
SELECT ` + billColumns + `
FROM bills
WHERE payment_status = 'pending'
ORDER BY created_at DESC
`

func (q *Queries) ListPendingBills(ctx context.Context) ([]Bill, error) {
	rows, err := q.db.Query(ctx, listPendingBills)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bills []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

const getBill = `
SELECT ` + billColumns + `
FROM bills
WHERE id = $1
`

func (q *Queries) GetBill(ctx context.Context, id int64) (Bill, error) {
	return scanBill(q.db.QueryRow(ctx, getBill, id))
}

const getLatestBillByTable = `
SELECT ` + billColumns + `
FROM bills
WHERE table_id = $1
ORDER BY created_at DESC
LIMIT 1
`

func (q *Queries) GetLatestBillByTable(ctx context.Context, tableID int64) (Bill, error) {
	return scanBill(q.db.QueryRow(ctx, getLatestBillByTable, tableID))
}

const getBillByTableAndDay = `
SELECT ` + billColumns + `
FROM bills
WHERE table_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at DESC
LIMIT 1
`

type GetBillByTableAndDayParams struct {
	TableID  int64
	DayStart time.Time
	DayEnd   time.Time
}

func (q *Queries) GetBillByTableAndDay(ctx context.Context, arg GetBillByTableAndDayParams) (Bill, error) {
	return scanBill(q.db.QueryRow(ctx, getBillByTableAndDay, arg.TableID, arg.DayStart, arg.DayEnd))
}

const createBill = `
INSERT INTO bills (table_id, table_number, total_amount, payment_status, payment_method, items, customer_name, customer_phone)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + billColumns + `
`

type CreateBillParams struct {
	TableID       int64
	TableNumber   string
	TotalAmount   pgtype.Numeric
	PaymentStatus string
	PaymentMethod string
	Items         []byte
	CustomerName  pgtype.Text
	CustomerPhone pgtype.Text
}

func (q *Queries) CreateBill(ctx context.Context, arg CreateBillParams) (Bill, error) {
	return scanBill(q.db.QueryRow(ctx, createBill,
		arg.TableID, arg.TableNumber, arg.TotalAmount, arg.PaymentStatus,
		arg.PaymentMethod, arg.Items, arg.CustomerName, arg.CustomerPhone))
}

// Absent fields keep their stored value: numeric/text params pass NULL,
// Items passes nil, and each customer field is guarded by its own Set
// flag (they are individually nullable, so NULL cannot mean "keep").
// Every successful update bumps the version counter; when
// ExpectedVersion is set, a concurrent edit since the caller's read
// makes the WHERE miss and the update returns no row.
const updateBill = `
UPDATE bills
SET total_amount   = COALESCE($1, total_amount),
    payment_status = COALESCE($2, payment_status),
    payment_method = COALESCE($3, payment_method),
    items          = COALESCE($4, items),
    customer_name  = CASE WHEN $5::bool THEN $6 ELSE customer_name END,
    customer_phone = CASE WHEN $7::bool THEN $8 ELSE customer_phone END,
    version        = version + 1
WHERE id = $9
  AND ($10::int IS NULL OR version = $10)
RETURNING ` + billColumns + `
`

type UpdateBillParams struct {
	TotalAmount      pgtype.Numeric
	PaymentStatus    pgtype.Text
	PaymentMethod    pgtype.Text
	Items            []byte
	SetCustomerName  bool
	CustomerName     pgtype.Text
	SetCustomerPhone bool
	CustomerPhone    pgtype.Text
	ID               int64
	ExpectedVersion  pgtype.Int4
}

func (q *Queries) UpdateBill(ctx context.Context, arg UpdateBillParams) (Bill, error) {
	return scanBill(q.db.QueryRow(ctx, updateBill,
		arg.TotalAmount, arg.PaymentStatus, arg.PaymentMethod, arg.Items,
		arg.SetCustomerName, arg.CustomerName, arg.SetCustomerPhone, arg.CustomerPhone,
		arg.ID, arg.ExpectedVersion))
}

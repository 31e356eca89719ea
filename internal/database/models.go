package database

import (
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Item is a menu catalog entry. ItemCode is the human-assigned unique code
// (e.g. "CD001"); HalfPrice and FullPrice are the per-portion unit prices.
type Item struct {
	ID        int64
	ItemCode  string
	ItemName  string
	HalfPrice pgtype.Numeric
	FullPrice pgtype.Numeric
	CreatedAt time.Time
}

// Table is a restaurant table. At most one row per TableNumber may be open
// at a time (partial unique index); closed rows with the same number may
// coexist so numbers can be reused across sittings.
type Table struct {
	ID          int64
	TableNumber string
	Status      string
	CreatedAt   time.Time
}

// TableItem is one order line on an open table. Price is the line total
// (UnitPrice * Quantity), not the unit price.
type TableItem struct {
	ID        int64
	TableID   int64
	ItemID    int64
	Portion   string
	Quantity  int32
	UnitPrice pgtype.Numeric
	Price     pgtype.Numeric
	CreatedAt time.Time
}

// Bill is the finalized financial record for a table sitting. Items holds
// the raw jsonb snapshot; decode it with ParseBillItems. TableID is a weak
// reference: the table may be reopened or deleted independently.
type Bill struct {
	ID            int64
	TableID       int64
	TableNumber   string
	TotalAmount   pgtype.Numeric
	PaymentStatus string
	PaymentMethod string
	Items         []byte
	CustomerName  pgtype.Text
	CustomerPhone pgtype.Text
	Version       int32
	CreatedAt     time.Time
}

// BillItem is one embedded line of a bill snapshot. It is a denormalized
// copy of the order line at finalization time; later menu edits or
// deletions do not affect it.
type BillItem struct {
	ItemCode string          `json:"item_code"`
	ItemName string          `json:"item_name"`
	Portion  string          `json:"portion"`
	Quantity int32           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// ParseBillItems decodes a bill's jsonb snapshot. Malformed or absent
// content yields an empty slice, never an error: historical bills must stay
// readable even if the blob was corrupted by an external tool.
func ParseBillItems(raw []byte) []BillItem {
	if len(raw) == 0 {
		return []BillItem{}
	}
	var items []BillItem
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return []BillItem{}
	}
	return items
}

// EncodeBillItems marshals a snapshot for storage. A nil slice is stored as
// an empty jsonb array.
func EncodeBillItems(items []BillItem) []byte {
	if items == nil {
		items = []BillItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return []byte("[]")
	}
	return b
}

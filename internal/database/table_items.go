package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const listTableItems = `
SELECT ti.id, ti.table_id, ti.item_id, ti.portion, ti.quantity, ti.unit_price, ti.price, ti.created_at,
       i.item_code, i.item_name, i.half_price, i.full_price
FROM table_items ti
JOIN items i ON ti.item_id = i.id
WHERE ti.table_id = $1
ORDER BY ti.created_at
`

// ListTableItemsRow is an order line joined with its catalog entry, so the
// UI can show codes/names and both portion prices without extra lookups.
type ListTableItemsRow struct {
	ID        int64
	TableID   int64
	ItemID    int64
	Portion   string
	Quantity  int32
	UnitPrice pgtype.Numeric
	Price     pgtype.Numeric
	CreatedAt time.Time
	ItemCode  string
	ItemName  string
	HalfPrice pgtype.Numeric
	FullPrice pgtype.Numeric
}

func (q *Queries) ListTableItems(ctx context.Context, tableID int64) ([]ListTableItemsRow, error) {
	rows, err := q.db.Query(ctx, listTableItems, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListTableItemsRow
	for rows.Next() {
		var r ListTableItemsRow
		if err := rows.Scan(
			&r.ID, &r.TableID, &r.ItemID, &r.Portion, &r.Quantity, &r.UnitPrice, &r.Price, &r.CreatedAt,
			&r.ItemCode, &r.ItemName, &r.HalfPrice, &r.FullPrice,
		); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const getTableItem = `
SELECT id, table_id, item_id, portion, quantity, unit_price, price, created_at
FROM table_items
WHERE id = $1
`

func (q *Queries) GetTableItem(ctx context.Context, id int64) (TableItem, error) {
	row := q.db.QueryRow(ctx, getTableItem, id)
	var ti TableItem
	err := row.Scan(&ti.ID, &ti.TableID, &ti.ItemID, &ti.Portion, &ti.Quantity, &ti.UnitPrice, &ti.Price, &ti.CreatedAt)
	return ti, err
}

const findTableItem = `
SELECT id, table_id, item_id, portion, quantity, unit_price, price, created_at
FROM table_items
WHERE table_id = $1 AND item_id = $2 AND portion = $3
`

type FindTableItemParams struct {
	TableID int64
	ItemID  int64
	Portion string
}

// FindTableItem locates the at-most-one line for an (item, portion) pair on
// a table; the unique constraint guarantees there is never a second row.
func (q *Queries) FindTableItem(ctx context.Context, arg FindTableItemParams) (TableItem, error) {
	row := q.db.QueryRow(ctx, findTableItem, arg.TableID, arg.ItemID, arg.Portion)
	var ti TableItem
	err := row.Scan(&ti.ID, &ti.TableID, &ti.ItemID, &ti.Portion, &ti.Quantity, &ti.UnitPrice, &ti.Price, &ti.CreatedAt)
	return ti, err
}

const createTableItem = `
INSERT INTO table_items (table_id, item_id, portion, quantity, unit_price, price)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, table_id, item_id, portion, quantity, unit_price, price, created_at
`

type CreateTableItemParams struct {
	TableID   int64
	ItemID    int64
	Portion   string
	Quantity  int32
	UnitPrice pgtype.Numeric
	Price     pgtype.Numeric
}

func (q *Queries) CreateTableItem(ctx context.Context, arg CreateTableItemParams) (TableItem, error) {
	row := q.db.QueryRow(ctx, createTableItem,
		arg.TableID, arg.ItemID, arg.Portion, arg.Quantity, arg.UnitPrice, arg.Price)
	var ti TableItem
	err := row.Scan(&ti.ID, &ti.TableID, &ti.ItemID, &ti.Portion, &ti.Quantity, &ti.UnitPrice, &ti.Price, &ti.CreatedAt)
	return ti, err
}

const updateTableItem = `
UPDATE table_items
SET portion = $1, quantity = $2, unit_price = $3, price = $4
WHERE id = $5
RETURNING id, table_id, item_id, portion, quantity, unit_price, price, created_at
`

type UpdateTableItemParams struct {
	Portion   string
	Quantity  int32
	UnitPrice pgtype.Numeric
	Price     pgtype.Numeric
	ID        int64
}

func (q *Queries) UpdateTableItem(ctx context.Context, arg UpdateTableItemParams) (TableItem, error) {
	row := q.db.QueryRow(ctx, updateTableItem,
		arg.Portion, arg.Quantity, arg.UnitPrice, arg.Price, arg.ID)
	var ti TableItem
	err := row.Scan(&ti.ID, &ti.TableID, &ti.ItemID, &ti.Portion, &ti.Quantity, &ti.UnitPrice, &ti.Price, &ti.CreatedAt)
	return ti, err
}

const deleteTableItem = `
DELETE FROM table_items
WHERE id = $1
RETURNING id
`

func (q *Queries) DeleteTableItem(ctx context.Context, id int64) (int64, error) {
	row := q.db.QueryRow(ctx, deleteTableItem, id)
	var deletedID int64
	err := row.Scan(&deletedID)
	return deletedID, err
}

const deleteTableItemsByTable = `
DELETE FROM table_items
WHERE table_id = $1
`

func (q *Queries) DeleteTableItemsByTable(ctx context.Context, tableID int64) error {
	_, err := q.db.Exec(ctx, deleteTableItemsByTable, tableID)
	return err
}

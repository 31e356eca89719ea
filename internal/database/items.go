package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const listItems = `
SELECT id, item_code, item_name, half_price, full_price, created_at
FROM items
ORDER BY item_code
`

func (q *Queries) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := q.db.Query(ctx, listItems)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var i Item
		if err := rows.Scan(&i.ID, &i.ItemCode, &i.ItemName, &i.HalfPrice, &i.FullPrice, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getItem = `
SELECT id, item_code, item_name, half_price, full_price, created_at
FROM items
WHERE id = $1
`

func (q *Queries) GetItem(ctx context.Context, id int64) (Item, error) {
	row := q.db.QueryRow(ctx, getItem, id)
	var i Item
	err := row.Scan(&i.ID, &i.ItemCode, &i.ItemName, &i.HalfPrice, &i.FullPrice, &i.CreatedAt)
	return i, err
}

const getItemByCode = `
SELECT id, item_code, item_name, half_price, full_price, created_at
FROM items
WHERE item_code = $1
`

func (q *Queries) GetItemByCode(ctx context.Context, code string) (Item, error) {
	row := q.db.QueryRow(ctx, getItemByCode, code)
	var i Item
	err := row.Scan(&i.ID, &i.ItemCode, &i.ItemName, &i.HalfPrice, &i.FullPrice, &i.CreatedAt)
	return i, err
}

const createItem = `
INSERT INTO items (item_code, item_name, half_price, full_price)
VALUES ($1, $2, $3, $4)
RETURNING id, item_code, item_name, half_price, full_price, created_at
`

type CreateItemParams struct {
	ItemCode  string
	ItemName  string
	HalfPrice pgtype.Numeric
	FullPrice pgtype.Numeric
}

func (q *Queries) CreateItem(ctx context.Context, arg CreateItemParams) (Item, error) {
	row := q.db.QueryRow(ctx, createItem, arg.ItemCode, arg.ItemName, arg.HalfPrice, arg.FullPrice)
	var i Item
	err := row.Scan(&i.ID, &i.ItemCode, &i.ItemName, &i.HalfPrice, &i.FullPrice, &i.CreatedAt)
	return i, err
}

const updateItem = `
UPDATE items
SET item_code = $1, item_name = $2, half_price = $3, full_price = $4
WHERE id = $5
RETURNING id, item_code, item_name, half_price, full_price, created_at
`

type UpdateItemParams struct {
	ItemCode  string
	ItemName  string
	HalfPrice pgtype.Numeric
	FullPrice pgtype.Numeric
	ID        int64
}

func (q *Queries) UpdateItem(ctx context.Context, arg UpdateItemParams) (Item, error) {
	row := q.db.QueryRow(ctx, updateItem, arg.ItemCode, arg.ItemName, arg.HalfPrice, arg.FullPrice, arg.ID)
	var i Item
	err := row.Scan(&i.ID, &i.ItemCode, &i.ItemName, &i.HalfPrice, &i.FullPrice, &i.CreatedAt)
	return i, err
}

const deleteItem = `
DELETE FROM items
WHERE id = $1
RETURNING id
`

func (q *Queries) DeleteItem(ctx context.Context, id int64) (int64, error) {
	row := q.db.QueryRow(ctx, deleteItem, id)
	var deletedID int64
	err := row.Scan(&deletedID)
	return deletedID, err
}

package database

import (
	"context"
	"time"
)

// Open tables are always visible regardless of when they were created; a
// table opened yesterday and never closed must still show up today. The day
// interval only scopes closed tables.
const listTablesForDay = `
SELECT id, table_number, status, created_at
FROM tables
WHERE status = 'open'
   OR (status = 'closed' AND created_at >= $1 AND created_at < $2)
ORDER BY created_at
`

type ListTablesForDayParams struct {
	DayStart time.Time
	DayEnd   time.Time
}

func (q *Queries) ListTablesForDay(ctx context.Context, arg ListTablesForDayParams) ([]Table, error) {
	rows, err := q.db.Query(ctx, listTablesForDay, arg.DayStart, arg.DayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tables []Table
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.ID, &t.TableNumber, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

const getTable = `
SELECT id, table_number, status, created_at
FROM tables
WHERE id = $1
`

func (q *Queries) GetTable(ctx context.Context, id int64) (Table, error) {
	row := q.db.QueryRow(ctx, getTable, id)
	var t Table
	err := row.Scan(&t.ID, &t.TableNumber, &t.Status, &t.CreatedAt)
	return t, err
}

const getOpenTableByNumber = `
SELECT id, table_number, status, created_at
FROM tables
WHERE table_number = $1 AND status = 'open'
`

func (q *Queries) GetOpenTableByNumber(ctx context.Context, tableNumber string) (Table, error) {
	row := q.db.QueryRow(ctx, getOpenTableByNumber, tableNumber)
	var t Table
	err := row.Scan(&t.ID, &t.TableNumber, &t.Status, &t.CreatedAt)
	return t, err
}

const createTable = `
INSERT INTO tables (table_number, status)
VALUES ($1, 'open')
RETURNING id, table_number, status, created_at
`

func (q *Queries) CreateTable(ctx context.Context, tableNumber string) (Table, error) {
	row := q.db.QueryRow(ctx, createTable, tableNumber)
	var t Table
	err := row.Scan(&t.ID, &t.TableNumber, &t.Status, &t.CreatedAt)
	return t, err
}

const setTableStatus = `
UPDATE tables
SET status = $1
WHERE id = $2
RETURNING id, table_number, status, created_at
`

type SetTableStatusParams struct {
	Status string
	ID     int64
}

func (q *Queries) SetTableStatus(ctx context.Context, arg SetTableStatusParams) (Table, error) {
	row := q.db.QueryRow(ctx, setTableStatus, arg.Status, arg.ID)
	var t Table
	err := row.Scan(&t.ID, &t.TableNumber, &t.Status, &t.CreatedAt)
	return t, err
}

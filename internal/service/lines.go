package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rasoi-pos/api/internal/database"
	"github.com/rasoi-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// Errors returned by the line service.
var (
	ErrTableNotFound    = errors.New("table not found")
	ErrTableClosed      = errors.New("table is closed")
	ErrItemNotFound     = errors.New("item not found")
	ErrLineNotFound     = errors.New("order line not found")
	ErrInvalidQuantity  = errors.New("quantity must be >= 1")
	ErrInvalidPortion   = errors.New("invalid portion")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidDuplicate = errors.New("invalid on_duplicate mode")
	ErrPortionNotPriced = errors.New("item has no separate price for that portion")
	ErrDuplicateLine    = errors.New("item already on table for that portion")
)

// DuplicateLineError reports an unresolved duplicate add. It carries the
// existing line so the terminal can show it and prompt for a mode.
type DuplicateLineError struct {
	Existing database.TableItem
}

func (e *DuplicateLineError) Error() string { return ErrDuplicateLine.Error() }

func (e *DuplicateLineError) Is(target error) bool { return target == ErrDuplicateLine }

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// LineStore defines the DB methods needed to mutate order lines.
// Satisfied by *database.Queries (and its WithTx variant).
type LineStore interface {
	GetTable(ctx context.Context, id int64) (database.Table, error)
	GetItem(ctx context.Context, id int64) (database.Item, error)
	GetTableItem(ctx context.Context, id int64) (database.TableItem, error)
	FindTableItem(ctx context.Context, arg database.FindTableItemParams) (database.TableItem, error)
	CreateTableItem(ctx context.Context, arg database.CreateTableItemParams) (database.TableItem, error)
	UpdateTableItem(ctx context.Context, arg database.UpdateTableItemParams) (database.TableItem, error)
	DeleteTableItem(ctx context.Context, id int64) (int64, error)
}

// NewLineStore creates a LineStore from a DBTX (pool or tx).
type NewLineStore func(db database.DBTX) LineStore

// AddLineRequest is the validated input for adding an item to a table.
type AddLineRequest struct {
	TableID     int64
	ItemID      int64
	Portion     string
	Quantity    int32
	OnDuplicate string // "", "add" or "decrease"
}

// UpdateLineRequest is the input for editing a line. Nil fields are left
// unchanged.
type UpdateLineRequest struct {
	TableID  int64
	LineID   int64
	Quantity *int32
	Price    *string // decimal string; rebases the unit price
	Portion  *string
}

// LineResult is the outcome of a line mutation.
type LineResult struct {
	Line    database.TableItem
	Removed bool
	Merged  bool
}

// LineService handles order line business logic.
type LineService struct {
	pool     TxBeginner
	newStore NewLineStore
}

// NewLineService creates a new LineService.
func NewLineService(pool TxBeginner, newStore NewLineStore) *LineService {
	return &LineService{pool: pool, newStore: newStore}
}

// AddLine adds an item to an open table. A line already holding the same
// (item, portion) pair is a choice point: without a mode the call fails with
// DuplicateLineError, mode "add" merges quantities and mode "decrease"
// subtracts (deleting the line when nothing remains).
func (s *LineService) AddLine(ctx context.Context, req AddLineRequest) (*LineResult, error) {
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if !isValidPortion(req.Portion) {
		return nil, ErrInvalidPortion
	}
	switch req.OnDuplicate {
	case "", enum.DuplicateModeAdd, enum.DuplicateModeDecrease:
	default:
		return nil, ErrInvalidDuplicate
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if err := requireOpenTable(ctx, store, req.TableID); err != nil {
		return nil, err
	}

	item, err := store.GetItem(ctx, req.ItemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}

	result, err := s.addLineTx(ctx, store, req, item)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

func (s *LineService) addLineTx(ctx context.Context, store LineStore, req AddLineRequest, item database.Item) (*LineResult, error) {
	existing, err := store.FindTableItem(ctx, database.FindTableItemParams{
		TableID: req.TableID,
		ItemID:  req.ItemID,
		Portion: req.Portion,
	})
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("find line: %w", err)
		}
		// No existing line: plain insert at the current menu price.
		unit := portionPrice(item, req.Portion)
		price := unit.Mul(decimal.NewFromInt32(req.Quantity))
		line, err := store.CreateTableItem(ctx, database.CreateTableItemParams{
			TableID:   req.TableID,
			ItemID:    req.ItemID,
			Portion:   req.Portion,
			Quantity:  req.Quantity,
			UnitPrice: decimalToNumeric(unit),
			Price:     decimalToNumeric(price),
		})
		if err != nil {
			return nil, fmt.Errorf("create line: %w", err)
		}
		return &LineResult{Line: line}, nil
	}

	switch req.OnDuplicate {
	case enum.DuplicateModeAdd:
		// Merge into the existing line at the current menu price, so a
		// stale or manually edited unit price is brought back in line
		// with the catalog.
		unit := portionPrice(item, req.Portion)
		qty := existing.Quantity + req.Quantity
		line, err := store.UpdateTableItem(ctx, database.UpdateTableItemParams{
			Portion:   existing.Portion,
			Quantity:  qty,
			UnitPrice: decimalToNumeric(unit),
			Price:     decimalToNumeric(unit.Mul(decimal.NewFromInt32(qty))),
			ID:        existing.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("merge line: %w", err)
		}
		return &LineResult{Line: line, Merged: true}, nil

	case enum.DuplicateModeDecrease:
		qty := existing.Quantity - req.Quantity
		if qty <= 0 {
			if _, err := store.DeleteTableItem(ctx, existing.ID); err != nil {
				return nil, fmt.Errorf("delete line: %w", err)
			}
			return &LineResult{Line: existing, Removed: true}, nil
		}
		unit := portionPrice(item, req.Portion)
		line, err := store.UpdateTableItem(ctx, database.UpdateTableItemParams{
			Portion:   existing.Portion,
			Quantity:  qty,
			UnitPrice: decimalToNumeric(unit),
			Price:     decimalToNumeric(unit.Mul(decimal.NewFromInt32(qty))),
			ID:        existing.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("decrease line: %w", err)
		}
		return &LineResult{Line: line, Merged: true}, nil
	}

	return nil, &DuplicateLineError{Existing: existing}
}

// UpdateLine edits a line on an open table. A quantity below 1 removes the
// line. A manual price rebases the stored unit price so later quantity
// edits scale from the overridden value.
func (s *LineService) UpdateLine(ctx context.Context, req UpdateLineRequest) (*LineResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	line, err := s.getOwnedLine(ctx, store, req.TableID, req.LineID)
	if err != nil {
		return nil, err
	}

	if req.Quantity != nil && *req.Quantity < 1 {
		if _, err := store.DeleteTableItem(ctx, line.ID); err != nil {
			return nil, fmt.Errorf("delete line: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit tx: %w", err)
		}
		return &LineResult{Line: line, Removed: true}, nil
	}

	portion := line.Portion
	quantity := line.Quantity
	unitPrice := numericToDecimal(line.UnitPrice)

	if req.Portion != nil && *req.Portion != line.Portion {
		if !isValidPortion(*req.Portion) {
			return nil, ErrInvalidPortion
		}
		item, err := store.GetItem(ctx, line.ItemID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrItemNotFound
			}
			return nil, fmt.Errorf("get item: %w", err)
		}
		if numericToDecimal(item.HalfPrice).Equal(numericToDecimal(item.FullPrice)) {
			return nil, ErrPortionNotPriced
		}
		portion = *req.Portion
		unitPrice = portionPrice(item, portion)
	}

	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	price := unitPrice.Mul(decimal.NewFromInt32(quantity))
	if req.Price != nil {
		manual, err := decimal.NewFromString(*req.Price)
		if err != nil || manual.IsNegative() {
			return nil, ErrInvalidPrice
		}
		price = manual
		unitPrice = manual.Div(decimal.NewFromInt32(quantity))
	}

	updated, err := store.UpdateTableItem(ctx, database.UpdateTableItemParams{
		Portion:   portion,
		Quantity:  quantity,
		UnitPrice: decimalToNumeric(unitPrice),
		Price:     decimalToNumeric(price),
		ID:        line.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("update line: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &LineResult{Line: updated}, nil
}

// RemoveLine deletes a line from an open table.
func (s *LineService) RemoveLine(ctx context.Context, tableID, lineID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	line, err := s.getOwnedLine(ctx, store, tableID, lineID)
	if err != nil {
		return err
	}
	if _, err := store.DeleteTableItem(ctx, line.ID); err != nil {
		return fmt.Errorf("delete line: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// getOwnedLine loads a line, checks it belongs to the table, and checks the
// table is still open.
func (s *LineService) getOwnedLine(ctx context.Context, store LineStore, tableID, lineID int64) (database.TableItem, error) {
	line, err := store.GetTableItem(ctx, lineID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.TableItem{}, ErrLineNotFound
		}
		return database.TableItem{}, fmt.Errorf("get line: %w", err)
	}
	if line.TableID != tableID {
		return database.TableItem{}, ErrLineNotFound
	}
	if err := requireOpenTable(ctx, store, tableID); err != nil {
		return database.TableItem{}, err
	}
	return line, nil
}

// requireOpenTable fails with ErrTableNotFound or ErrTableClosed unless the
// table exists and is open.
func requireOpenTable(ctx context.Context, store LineStore, tableID int64) error {
	table, err := store.GetTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTableNotFound
		}
		return fmt.Errorf("get table: %w", err)
	}
	if table.Status != enum.TableStatusOpen {
		return ErrTableClosed
	}
	return nil
}

// LinesTotal sums the line prices of a listed table.
func LinesTotal(rows []database.ListTableItemsRow) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(numericToDecimal(row.Price))
	}
	return total
}

// --- Helpers ---

func isValidPortion(s string) bool {
	switch s {
	case enum.PortionHalf, enum.PortionFull:
		return true
	}
	return false
}

func portionPrice(item database.Item, portion string) decimal.Decimal {
	if portion == enum.PortionHalf {
		return numericToDecimal(item.HalfPrice)
	}
	return numericToDecimal(item.FullPrice)
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

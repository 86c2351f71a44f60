package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-ledger/internal/apperr"
	"github.com/ariefcatur/storefront-ledger/internal/catalog"
	"github.com/ariefcatur/storefront-ledger/internal/orders"
)

const (
	itemColumns = `id, category_id, name, description, original_price, discount,
		quantity, reserved_quantity, low_stock_threshold, min_order_quantity,
		max_order_quantity, is_active, is_featured, sort_order, created_at, updated_at`
	categoryColumns = `id, name, description, is_active, sort_order, created_at, updated_at`
	orderColumns    = `id, customer_id, status, assigned_to, assigned_at, fulfilled, notes, created_at, updated_at`
	lineColumns     = `id, order_id, item_id, quantity, price_at_time, created_at`
)

// Store implements the catalog and order stores on a pgx pool. Writes run in
// read-committed transactions that lock the rows they change with
// SELECT ... FOR UPDATE.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

var (
	_ catalog.Store = (*Store)(nil)
	_ orders.Store  = (*Store)(nil)
)

func (s *Store) InTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	return s.run(ctx, func(t *tx) error { return fn(t) })
}

func (s *Store) InItemTx(ctx context.Context, fn func(tx catalog.ItemTx) error) error {
	return s.run(ctx, func(t *tx) error { return fn(t) })
}

// run retries fn once when postgres aborts it with a serialization failure
// or a deadlock.
func (s *Store) run(ctx context.Context, fn func(t *tx) error) error {
	const attempts = 2
	var err error
	for range attempts {
		if err = s.runOnce(ctx, fn); !retryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", apperr.ErrConcurrencyConflict, err)
}

func (s *Store) runOnce(ctx context.Context, fn func(t *tx) error) error {
	pgtx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	if err := fn(&tx{tx: pgtx}); err != nil {
		return err
	}
	return errors.Wrap(pgtx.Commit(ctx), "commit tx")
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// translate maps driver errors onto domain errors; anything else is wrapped
// with the operation name.
func translate(err error, op, kind, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", apperr.ErrNotFound, kind, id)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if pgErr.ConstraintName == "order_items_order_item_key" {
				return fmt.Errorf("%w: %s", apperr.ErrDuplicateLine, id)
			}
			return apperr.Invalid("%s %s already exists", kind, id)
		case "23503":
			return fmt.Errorf("%w: %s referenced by %s %s", apperr.ErrNotFound, pgErr.ConstraintName, kind, id)
		case "23514":
			return apperr.Invalid("%s %s violates %s", kind, id, pgErr.ConstraintName)
		case "40001", "40P01":
			return err
		}
	}
	return errors.Wrapf(err, "%s %s %s", op, kind, id)
}

func scanItem(row pgx.Row) (catalog.Item, error) {
	var (
		it       catalog.Item
		maxOrder *int32
	)
	err := row.Scan(&it.ID, &it.CategoryID, &it.Name, &it.Description, &it.OriginalPrice, &it.Discount,
		&it.Quantity, &it.ReservedQuantity, &it.LowStockThreshold, &it.MinOrderQuantity,
		&maxOrder, &it.IsActive, &it.IsFeatured, &it.SortOrder, &it.CreatedAt, &it.UpdatedAt)
	if maxOrder != nil {
		v := int(*maxOrder)
		it.MaxOrderQuantity = &v
	}
	return it, err
}

func scanCategory(row pgx.Row) (catalog.Category, error) {
	var c catalog.Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.SortOrder, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanOrder(row pgx.Row) (orders.Order, error) {
	var (
		o      orders.Order
		status string
	)
	err := row.Scan(&o.ID, &o.CustomerID, &status, &o.AssignedTo, &o.AssignedAt, &o.Fulfilled, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	o.Status = orders.Status(status)
	return o, err
}

func scanLine(row pgx.Row) (orders.OrderItem, error) {
	var l orders.OrderItem
	err := row.Scan(&l.ID, &l.OrderID, &l.ItemID, &l.Quantity, &l.PriceAtTime, &l.CreatedAt)
	return l, err
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) GetItem(ctx context.Context, id string) (catalog.Item, error) {
	it, err := scanItem(s.DB.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1`, id))
	return it, translate(err, "get", "item", id)
}

func (s *Store) ListItems(ctx context.Context, f catalog.ItemFilter) ([]catalog.Item, error) {
	var (
		where []string
		args  []any
	)
	if f.CategoryID != "" {
		args = append(args, f.CategoryID)
		where = append(where, fmt.Sprintf("category_id=$%d", len(args)))
	}
	if f.ActiveOnly {
		where = append(where, "is_active")
	}
	switch f.StockStatus {
	case catalog.StockOutOfStock:
		where = append(where, "quantity = 0")
	case catalog.StockLow:
		where = append(where, "quantity > 0 AND quantity <= low_stock_threshold")
	case catalog.StockInStock:
		where = append(where, "quantity > low_stock_threshold")
	}
	q := `SELECT ` + itemColumns + ` FROM items` + whereClause(where) + ` ORDER BY sort_order, name`
	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list items")
	}
	out, err := collect(rows, scanItem)
	return out, errors.Wrap(err, "scan items")
}

func (s *Store) GetCategory(ctx context.Context, id string) (catalog.Category, error) {
	c, err := scanCategory(s.DB.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id=$1`, id))
	return c, translate(err, "get", "category", id)
}

func (s *Store) ListCategories(ctx context.Context, activeOnly bool) ([]catalog.Category, error) {
	q := `SELECT ` + categoryColumns + ` FROM categories`
	if activeOnly {
		q += ` WHERE is_active`
	}
	rows, err := s.DB.Query(ctx, q+` ORDER BY sort_order, name`)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	out, err := collect(rows, scanCategory)
	return out, errors.Wrap(err, "scan categories")
}

func (s *Store) CreateCategory(ctx context.Context, c catalog.Category) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO categories(id, name, description, is_active, sort_order, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.Name, c.Description, c.IsActive, c.SortOrder, c.CreatedAt, c.UpdatedAt)
	return translate(err, "create", "category", c.ID)
}

func (s *Store) CreateItem(ctx context.Context, it catalog.Item) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO items(`+itemColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		it.ID, it.CategoryID, it.Name, it.Description, it.OriginalPrice, it.Discount,
		it.Quantity, it.ReservedQuantity, it.LowStockThreshold, it.MinOrderQuantity,
		it.MaxOrderQuantity, it.IsActive, it.IsFeatured, it.SortOrder, it.CreatedAt, it.UpdatedAt)
	return translate(err, "create", "item", it.ID)
}

func (s *Store) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	return o, translate(err, "get", "order", id)
}

func (s *Store) ListLines(ctx context.Context, orderID string) ([]orders.OrderItem, error) {
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, `SELECT `+lineColumns+` FROM order_items WHERE order_id=$1 ORDER BY created_at, item_id`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list order lines")
	}
	out, err := collect(rows, scanLine)
	return out, errors.Wrap(err, "scan order lines")
}

func (s *Store) ListOrders(ctx context.Context, f orders.Filter) ([]orders.Order, error) {
	where, args := orderWhere(f)
	q := `SELECT ` + orderColumns + ` FROM orders` + whereClause(where) + ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	out, err := collect(rows, scanOrder)
	return out, errors.Wrap(err, "scan orders")
}

func (s *Store) CountOrders(ctx context.Context, f orders.Filter) (int, error) {
	where, args := orderWhere(f)
	var n int
	err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+whereClause(where), args...).Scan(&n)
	return n, errors.Wrap(err, "count orders")
}

func orderWhere(f orders.Filter) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.VisibleTo != "" {
		add("(assigned_to=$%d OR (assigned_to IS NULL AND status='pending'))", f.VisibleTo)
	}
	if f.Status != "" {
		add("status=$%d", string(f.Status))
	}
	if f.AssignedTo != "" {
		add("assigned_to=$%d", f.AssignedTo)
	}
	if f.Unassigned {
		where = append(where, "assigned_to IS NULL")
	}
	if !f.UpdatedSince.IsZero() {
		add("updated_at >= $%d", f.UpdatedSince)
	}
	return where, args
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

type tx struct {
	tx pgx.Tx
}

func (t *tx) LockItem(ctx context.Context, id string) (catalog.Item, error) {
	it, err := scanItem(t.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1 FOR UPDATE`, id))
	return it, translate(err, "lock", "item", id)
}

func (t *tx) UpdateStock(ctx context.Context, id string, quantity, reserved int) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE items SET quantity=$2, reserved_quantity=$3, updated_at=$4 WHERE id=$1`,
		id, quantity, reserved, time.Now().UTC())
	if err != nil {
		return translate(err, "update stock of", "item", id)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: item %s", apperr.ErrNotFound, id)
	}
	return nil
}

func (t *tx) UpdatePricing(ctx context.Context, id string, original decimal.NullDecimal, discount decimal.Decimal) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE items SET original_price=$2, discount=$3, updated_at=$4 WHERE id=$1`,
		id, original, discount, time.Now().UTC())
	if err != nil {
		return translate(err, "update pricing of", "item", id)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: item %s", apperr.ErrNotFound, id)
	}
	return nil
}

func (t *tx) InsertOrder(ctx context.Context, o orders.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.CustomerID, string(o.Status), o.AssignedTo, o.AssignedAt, o.Fulfilled, o.Notes, o.CreatedAt, o.UpdatedAt)
	return translate(err, "insert", "order", o.ID)
}

func (t *tx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	return o, translate(err, "lock", "order", id)
}

func (t *tx) UpdateOrder(ctx context.Context, o orders.Order) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET status=$2, assigned_to=$3, assigned_at=$4, fulfilled=$5, notes=$6, updated_at=$7
		WHERE id=$1`,
		o.ID, string(o.Status), o.AssignedTo, o.AssignedAt, o.Fulfilled, o.Notes, o.UpdatedAt)
	if err != nil {
		return translate(err, "update", "order", o.ID)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: order %s", apperr.ErrNotFound, o.ID)
	}
	return nil
}

func (t *tx) InsertLine(ctx context.Context, l orders.OrderItem) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_items(`+lineColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		l.ID, l.OrderID, l.ItemID, l.Quantity, l.PriceAtTime, l.CreatedAt)
	return translate(err, "insert line for", "item", l.ItemID)
}

func (t *tx) Lines(ctx context.Context, orderID string) ([]orders.OrderItem, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+lineColumns+` FROM order_items WHERE order_id=$1 ORDER BY created_at, item_id`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list order lines")
	}
	out, err := collect(rows, scanLine)
	return out, errors.Wrap(err, "scan order lines")
}

package orders

import (
	"context"

	"github.com/ariefcatur/storefront-ledger/internal/catalog"
)

// Tx is a transaction over orders, their lines and the items they reference.
// Lock* methods take row locks held until the transaction ends.
type Tx interface {
	catalog.ItemTx

	InsertOrder(ctx context.Context, o Order) error
	LockOrder(ctx context.Context, id string) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	// InsertLine fails with apperr.ErrDuplicateLine when the (order, item)
	// pair already exists.
	InsertLine(ctx context.Context, l OrderItem) error
	Lines(ctx context.Context, orderID string) ([]OrderItem, error)
}

type Store interface {
	// InTx runs fn in a transaction, committing when fn returns nil. A
	// serialization failure is retried once before surfacing as
	// apperr.ErrConcurrencyConflict.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetOrder(ctx context.Context, id string) (Order, error)
	ListLines(ctx context.Context, orderID string) ([]OrderItem, error)
	ListOrders(ctx context.Context, f Filter) ([]Order, error)
	CountOrders(ctx context.Context, f Filter) (int, error)
}

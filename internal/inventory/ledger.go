package inventory

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/storefront-ledger/internal/apperr"
	"github.com/ariefcatur/storefront-ledger/internal/catalog"
)

var tracer = otel.Tracer("github.com/ariefcatur/storefront-ledger/internal/inventory")

// StockTx is the part of a transaction the ledger needs: a row-locked read
// of an item and a write of its two stock counters.
type StockTx interface {
	LockItem(ctx context.Context, id string) (catalog.Item, error)
	UpdateStock(ctx context.Context, id string, quantity, reserved int) error
}

// Reserve holds qty units of available stock. On failure the item is unchanged.
func Reserve(it *catalog.Item, qty int) error {
	if qty <= 0 {
		return apperr.Invalid("reserve quantity must be positive")
	}
	if avail := it.AvailableQuantity(); qty > avail {
		return &apperr.InsufficientStockError{ItemID: it.ID, Requested: qty, Available: avail}
	}
	it.ReservedQuantity += qty
	return nil
}

// Release drops up to qty units of reservation; over-release clamps at zero.
func Release(it *catalog.Item, qty int) {
	it.ReservedQuantity = max(0, it.ReservedQuantity-qty)
}

// Consume removes qty units from stock and clears the matching reservation.
func Consume(it *catalog.Item, qty int) error {
	if qty < 0 {
		return apperr.Invalid("consume quantity must not be negative")
	}
	if qty > it.Quantity {
		return &apperr.InsufficientStockError{ItemID: it.ID, Requested: qty, Available: it.Quantity}
	}
	it.Quantity -= qty
	it.ReservedQuantity -= min(qty, it.ReservedQuantity)
	return nil
}

// Ledger applies stock mutations to locked rows. It must be called inside the
// caller's transaction so that check and write are a single atomic unit.
type Ledger struct{}

func (Ledger) Reserve(ctx context.Context, tx StockTx, itemID string, qty int) (catalog.Item, error) {
	return apply(ctx, tx, "inventory.reserve", itemID, qty, func(it *catalog.Item) error {
		return Reserve(it, qty)
	})
}

func (Ledger) Release(ctx context.Context, tx StockTx, itemID string, qty int) (catalog.Item, error) {
	return apply(ctx, tx, "inventory.release", itemID, qty, func(it *catalog.Item) error {
		Release(it, qty)
		return nil
	})
}

func (Ledger) Consume(ctx context.Context, tx StockTx, itemID string, qty int) (catalog.Item, error) {
	return apply(ctx, tx, "inventory.consume", itemID, qty, func(it *catalog.Item) error {
		return Consume(it, qty)
	})
}

func apply(ctx context.Context, tx StockTx, op, itemID string, qty int, mutate func(*catalog.Item) error) (catalog.Item, error) {
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("item.id", itemID),
		attribute.Int("qty", qty),
	))
	defer span.End()

	it, err := tx.LockItem(ctx, itemID)
	if err != nil {
		span.RecordError(err)
		return catalog.Item{}, err
	}
	if err := mutate(&it); err != nil {
		span.RecordError(err)
		return catalog.Item{}, err
	}
	if err := tx.UpdateStock(ctx, itemID, it.Quantity, it.ReservedQuantity); err != nil {
		span.RecordError(err)
		return catalog.Item{}, err
	}
	return it, nil
}

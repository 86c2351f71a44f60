package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-ledger/internal/apperr"
	"github.com/ariefcatur/storefront-ledger/internal/catalog"
)

// Capture freezes the item's current price into a new order line. An
// explicit override wins over the catalog price. Capture does not touch stock.
func Capture(orderID string, it catalog.Item, qty int, override *decimal.Decimal, now time.Time) (OrderItem, error) {
	var p decimal.Decimal
	switch {
	case override != nil:
		if override.IsNegative() {
			return OrderItem{}, apperr.Invalid("price override must not be negative")
		}
		p = *override
	default:
		cur, ok := it.CurrentPrice()
		if !ok {
			return OrderItem{}, fmt.Errorf("%w: item %s", apperr.ErrPriceUnavailable, it.ID)
		}
		p = cur
	}
	return OrderItem{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		ItemID:      it.ID,
		Quantity:    qty,
		PriceAtTime: decimal.NewNullDecimal(p),
		CreatedAt:   now,
	}, nil
}

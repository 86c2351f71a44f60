package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-ledger/internal/apperr"
)

type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockLow        StockStatus = "low_stock"
	StockOutOfStock StockStatus = "out_of_stock"
)

func (s StockStatus) Valid() bool {
	switch s {
	case StockInStock, StockLow, StockOutOfStock:
		return true
	}
	return false
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Item is a sellable catalog entry. OriginalPrice is invalid when the price
// data is missing; such an item cannot be added to new orders.
type Item struct {
	ID                string              `json:"id"`
	CategoryID        string              `json:"category_id"`
	Name              string              `json:"name"`
	Description       string              `json:"description"`
	OriginalPrice     decimal.NullDecimal `json:"original_price"`
	Discount          decimal.Decimal     `json:"discount"`
	Quantity          int                 `json:"quantity"`
	ReservedQuantity  int                 `json:"reserved_quantity"`
	LowStockThreshold int                 `json:"low_stock_threshold"`
	MinOrderQuantity  int                 `json:"min_order_quantity"`
	MaxOrderQuantity  *int                `json:"max_order_quantity,omitempty"`
	IsActive          bool                `json:"is_active"`
	IsFeatured        bool                `json:"is_featured"`
	SortOrder         int                 `json:"sort_order"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// AvailableQuantity is the stock not held by open reservations.
func (i Item) AvailableQuantity() int {
	return max(0, i.Quantity-i.ReservedQuantity)
}

func (i Item) IsInStock() bool { return i.AvailableQuantity() > 0 }

func (i Item) IsLowStock() bool { return i.AvailableQuantity() <= i.LowStockThreshold }

// StockStatus buckets the item by on-hand quantity, not availability.
func (i Item) StockStatus() StockStatus {
	switch {
	case i.Quantity == 0:
		return StockOutOfStock
	case i.Quantity <= i.LowStockThreshold:
		return StockLow
	default:
		return StockInStock
	}
}

// CurrentPrice returns original_price - discount. ok is false when the item
// has no price.
func (i Item) CurrentPrice() (price decimal.Decimal, ok bool) {
	if !i.OriginalPrice.Valid {
		return decimal.Zero, false
	}
	return i.OriginalPrice.Decimal.Sub(i.Discount), true
}

// DiscountPercentage returns the discount as a negative percentage of the
// original price, or zero for free or unpriced items.
func (i Item) DiscountPercentage() decimal.Decimal {
	if !i.OriginalPrice.Valid || i.OriginalPrice.Decimal.IsZero() {
		return decimal.Zero
	}
	return i.Discount.Div(i.OriginalPrice.Decimal).Mul(decimal.NewFromInt(100)).Neg()
}

// ValidateOrderQuantity checks qty against the item's min/max order bounds.
func (i Item) ValidateOrderQuantity(qty int) error {
	if qty < i.MinOrderQuantity || qty < 1 || (i.MaxOrderQuantity != nil && qty > *i.MaxOrderQuantity) {
		return &apperr.QuantityConstraintError{
			ItemID:    i.ID,
			Requested: qty,
			Min:       i.MinOrderQuantity,
			Max:       i.MaxOrderQuantity,
		}
	}
	return nil
}

// Validate enforces the catalog write rules.
func (i Item) Validate() error {
	if i.Name == "" {
		return apperr.Invalid("item name is required")
	}
	if i.CategoryID == "" {
		return apperr.Invalid("item category is required")
	}
	if i.Quantity < 0 || i.ReservedQuantity < 0 || i.LowStockThreshold < 0 {
		return apperr.Invalid("stock counters must not be negative")
	}
	if i.ReservedQuantity > i.Quantity {
		return apperr.Invalid("reserved quantity %d exceeds quantity %d", i.ReservedQuantity, i.Quantity)
	}
	if i.MinOrderQuantity < 1 {
		return apperr.Invalid("minimum order quantity must be at least 1")
	}
	if i.MaxOrderQuantity != nil && *i.MaxOrderQuantity < i.MinOrderQuantity {
		return apperr.Invalid("minimum order quantity cannot exceed maximum order quantity")
	}
	return ValidatePricing(i.OriginalPrice, i.Discount)
}

// ValidatePricing rejects negative prices and discounts larger than the price.
func ValidatePricing(original decimal.NullDecimal, discount decimal.Decimal) error {
	if discount.IsNegative() {
		return apperr.Invalid("discount must not be negative")
	}
	if !original.Valid {
		return nil
	}
	if original.Decimal.IsNegative() {
		return apperr.Invalid("original price must not be negative")
	}
	if discount.GreaterThan(original.Decimal) {
		return apperr.Invalid("discount %s exceeds original price %s", discount, original.Decimal)
	}
	return nil
}

func (c Category) Validate() error {
	if c.Name == "" {
		return apperr.Invalid("category name is required")
	}
	return nil
}

// ItemFilter narrows ListItems. Zero values mean "any".
type ItemFilter struct {
	CategoryID  string
	StockStatus StockStatus
	ActiveOnly  bool
}

func (f ItemFilter) Match(i Item) bool {
	if f.CategoryID != "" && i.CategoryID != f.CategoryID {
		return false
	}
	if f.StockStatus != "" && i.StockStatus() != f.StockStatus {
		return false
	}
	if f.ActiveOnly && !i.IsActive {
		return false
	}
	return true
}

package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-ledger/internal/apperr"
)

// Reader is the non-locking read side of the catalog.
type Reader interface {
	GetItem(ctx context.Context, id string) (Item, error)
	ListItems(ctx context.Context, f ItemFilter) ([]Item, error)
	GetCategory(ctx context.Context, id string) (Category, error)
	ListCategories(ctx context.Context, activeOnly bool) ([]Category, error)
}

// ItemTx is the row-locked view of items inside a transaction.
type ItemTx interface {
	LockItem(ctx context.Context, id string) (Item, error)
	UpdateStock(ctx context.Context, id string, quantity, reserved int) error
	UpdatePricing(ctx context.Context, id string, original decimal.NullDecimal, discount decimal.Decimal) error
}

type Store interface {
	Reader
	CreateCategory(ctx context.Context, c Category) error
	CreateItem(ctx context.Context, i Item) error
	InItemTx(ctx context.Context, fn func(tx ItemTx) error) error
}

// Service is the catalog management surface. Stock counters other than
// restocking belong to the inventory ledger.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) ListCategories(ctx context.Context, activeOnly bool) ([]Category, error) {
	return s.store.ListCategories(ctx, activeOnly)
}

func (s *Service) GetCategory(ctx context.Context, id string) (Category, error) {
	return s.store.GetCategory(ctx, id)
}

// CategoryItems lists the active items of a category.
func (s *Service) CategoryItems(ctx context.Context, categoryID string) ([]Item, error) {
	if _, err := s.store.GetCategory(ctx, categoryID); err != nil {
		return nil, err
	}
	return s.store.ListItems(ctx, ItemFilter{CategoryID: categoryID, ActiveOnly: true})
}

func (s *Service) ListItems(ctx context.Context, f ItemFilter) ([]Item, error) {
	if f.StockStatus != "" && !f.StockStatus.Valid() {
		return nil, apperr.Invalid("unknown stock status %q", f.StockStatus)
	}
	return s.store.ListItems(ctx, f)
}

func (s *Service) GetItem(ctx context.Context, id string) (Item, error) {
	return s.store.GetItem(ctx, id)
}

func (s *Service) CreateCategory(ctx context.Context, c Category) (Category, error) {
	if err := c.Validate(); err != nil {
		return Category{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return Category{}, err
	}
	return c, nil
}

func (s *Service) CreateItem(ctx context.Context, i Item) (Item, error) {
	if i.MinOrderQuantity == 0 {
		i.MinOrderQuantity = 1
	}
	if err := i.Validate(); err != nil {
		return Item{}, err
	}
	if _, err := s.store.GetCategory(ctx, i.CategoryID); err != nil {
		return Item{}, err
	}
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	i.CreatedAt = s.now()
	i.UpdatedAt = i.CreatedAt
	if err := s.store.CreateItem(ctx, i); err != nil {
		return Item{}, err
	}
	return i, nil
}

// UpdatePricing changes an item's list price and discount. Existing order
// lines keep their captured price.
func (s *Service) UpdatePricing(ctx context.Context, id string, original decimal.NullDecimal, discount decimal.Decimal) (Item, error) {
	if err := ValidatePricing(original, discount); err != nil {
		return Item{}, err
	}
	var out Item
	err := s.store.InItemTx(ctx, func(tx ItemTx) error {
		it, err := tx.LockItem(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.UpdatePricing(ctx, id, original, discount); err != nil {
			return err
		}
		it.OriginalPrice, it.Discount = original, discount
		out = it
		return nil
	})
	return out, err
}

// Restock adds received goods to the on-hand quantity.
func (s *Service) Restock(ctx context.Context, id string, qty int) (Item, error) {
	if qty <= 0 {
		return Item{}, apperr.Invalid("restock quantity must be positive")
	}
	var out Item
	err := s.store.InItemTx(ctx, func(tx ItemTx) error {
		it, err := tx.LockItem(ctx, id)
		if err != nil {
			return err
		}
		it.Quantity += qty
		if err := tx.UpdateStock(ctx, id, it.Quantity, it.ReservedQuantity); err != nil {
			return err
		}
		out = it
		return nil
	})
	return out, err
}

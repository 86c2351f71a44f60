// Package memstore is an in-process implementation of the catalog and order
// stores. Transactions are serialized by a single mutex and work on a copy of
// the data that replaces the original only on commit.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-ledger/internal/apperr"
	"github.com/ariefcatur/storefront-ledger/internal/catalog"
	"github.com/ariefcatur/storefront-ledger/internal/orders"
)

type state struct {
	categories map[string]catalog.Category
	items      map[string]catalog.Item
	orders     map[string]orders.Order
	lines      map[string][]orders.OrderItem
}

func (s state) clone() state {
	c := state{
		categories: maps.Clone(s.categories),
		items:      maps.Clone(s.items),
		orders:     maps.Clone(s.orders),
		lines:      make(map[string][]orders.OrderItem, len(s.lines)),
	}
	for k, v := range s.lines {
		c.lines[k] = slices.Clone(v)
	}
	return c
}

type Store struct {
	mu sync.Mutex
	st state
}

func New() *Store {
	return &Store{st: state{
		categories: map[string]catalog.Category{},
		items:      map[string]catalog.Item{},
		orders:     map[string]orders.Order{},
		lines:      map[string][]orders.OrderItem{},
	}}
}

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

func (s *Store) run(ctx context.Context, fn func(t *tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{st: s.st.clone()}
	if err := fn(t); err != nil {
		return err
	}
	s.st = t.st
	return nil
}

func (s *Store) GetItem(_ context.Context, id string) (catalog.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.item(id)
}

func (s *Store) ListItems(_ context.Context, f catalog.ItemFilter) ([]catalog.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []catalog.Item{}
	for _, it := range s.st.items {
		if f.Match(it) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (catalog.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.categories[id]
	if !ok {
		return catalog.Category{}, fmt.Errorf("%w: category %s", apperr.ErrNotFound, id)
	}
	return c, nil
}

func (s *Store) ListCategories(_ context.Context, activeOnly bool) ([]catalog.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []catalog.Category{}
	for _, c := range s.st.categories {
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, c catalog.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.categories[c.ID]; ok {
		return apperr.Invalid("category %s already exists", c.ID)
	}
	s.st.categories[c.ID] = c
	return nil
}

func (s *Store) CreateItem(_ context.Context, it catalog.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.categories[it.CategoryID]; !ok {
		return fmt.Errorf("%w: category %s", apperr.ErrNotFound, it.CategoryID)
	}
	if _, ok := s.st.items[it.ID]; ok {
		return apperr.Invalid("item %s already exists", it.ID)
	}
	s.st.items[it.ID] = it
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.order(id)
}

func (s *Store) ListLines(_ context.Context, orderID string) ([]orders.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.st.order(orderID); err != nil {
		return nil, err
	}
	return slices.Clone(s.st.lines[orderID]), nil
}

func (s *Store) ListOrders(_ context.Context, f orders.Filter) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []orders.Order{}
	for _, o := range s.st.orders {
		if f.Match(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return strings.Compare(out[i].ID, out[j].ID) < 0
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) CountOrders(ctx context.Context, f orders.Filter) (int, error) {
	f.Limit = 0
	out, err := s.ListOrders(ctx, f)
	return len(out), err
}

func (s state) item(id string) (catalog.Item, error) {
	it, ok := s.items[id]
	if !ok {
		return catalog.Item{}, fmt.Errorf("%w: item %s", apperr.ErrNotFound, id)
	}
	return it, nil
}

func (s state) order(id string) (orders.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	return o, nil
}

// tx works on a private copy of the state; the store mutex stands in for
// row locks.
type tx struct {
	st state
}

func (t *tx) LockItem(_ context.Context, id string) (catalog.Item, error) {
	return t.st.item(id)
}

func (t *tx) UpdateStock(_ context.Context, id string, quantity, reserved int) error {
	it, err := t.st.item(id)
	if err != nil {
		return err
	}
	if quantity < 0 || reserved < 0 || reserved > quantity {
		return fmt.Errorf("stock check violated for item %s: quantity=%d reserved=%d", id, quantity, reserved)
	}
	it.Quantity, it.ReservedQuantity = quantity, reserved
	t.st.items[id] = it
	return nil
}

func (t *tx) UpdatePricing(_ context.Context, id string, original decimal.NullDecimal, discount decimal.Decimal) error {
	it, err := t.st.item(id)
	if err != nil {
		return err
	}
	it.OriginalPrice, it.Discount = original, discount
	t.st.items[id] = it
	return nil
}

func (t *tx) InsertOrder(_ context.Context, o orders.Order) error {
	if _, ok := t.st.orders[o.ID]; ok {
		return apperr.Invalid("order %s already exists", o.ID)
	}
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) LockOrder(_ context.Context, id string) (orders.Order, error) {
	return t.st.order(id)
}

func (t *tx) UpdateOrder(_ context.Context, o orders.Order) error {
	if _, err := t.st.order(o.ID); err != nil {
		return err
	}
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) InsertLine(_ context.Context, l orders.OrderItem) error {
	if _, err := t.st.order(l.OrderID); err != nil {
		return err
	}
	for _, e := range t.st.lines[l.OrderID] {
		if e.ItemID == l.ItemID {
			return fmt.Errorf("%w: item %s", apperr.ErrDuplicateLine, l.ItemID)
		}
	}
	t.st.lines[l.OrderID] = append(t.st.lines[l.OrderID], l)
	return nil
}

func (t *tx) Lines(_ context.Context, orderID string) ([]orders.OrderItem, error) {
	return slices.Clone(t.st.lines[orderID]), nil
}

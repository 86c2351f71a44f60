package inventory

import (
	"context"

	"github.com/ariefcatur/storefront-ledger/internal/catalog"
)

// TxRunner opens a transaction scoped to item rows.
type TxRunner interface {
	InItemTx(ctx context.Context, fn func(tx catalog.ItemTx) error) error
}

// Service exposes the ledger as standalone operations, each in its own
// transaction.
type Service struct {
	store  TxRunner
	ledger Ledger
}

func NewService(store TxRunner) *Service {
	return &Service{store: store}
}

func (s *Service) ReserveStock(ctx context.Context, itemID string, qty int) (catalog.Item, error) {
	return s.run(ctx, func(tx catalog.ItemTx) (catalog.Item, error) {
		return s.ledger.Reserve(ctx, tx, itemID, qty)
	})
}

func (s *Service) ReleaseStock(ctx context.Context, itemID string, qty int) (catalog.Item, error) {
	return s.run(ctx, func(tx catalog.ItemTx) (catalog.Item, error) {
		return s.ledger.Release(ctx, tx, itemID, qty)
	})
}

func (s *Service) ConsumeStock(ctx context.Context, itemID string, qty int) (catalog.Item, error) {
	return s.run(ctx, func(tx catalog.ItemTx) (catalog.Item, error) {
		return s.ledger.Consume(ctx, tx, itemID, qty)
	})
}

func (s *Service) run(ctx context.Context, op func(tx catalog.ItemTx) (catalog.Item, error)) (catalog.Item, error) {
	var out catalog.Item
	err := s.store.InItemTx(ctx, func(tx catalog.ItemTx) error {
		it, err := op(tx)
		if err != nil {
			return err
		}
		out = it
		return nil
	})
	return out, err
}

package inventory

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/storefront-ledger/internal/catalog"
	"github.com/ariefcatur/storefront-ledger/internal/events"
	kafkax "github.com/ariefcatur/storefront-ledger/internal/kafka"
)

// Deduper records which events were already handled.
type Deduper interface {
	FirstSeen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type ItemGetter interface {
	GetItem(ctx context.Context, id string) (catalog.Item, error)
}

// Watcher consumes order lifecycle events and raises StockLow for every item
// an order touched whose availability is at or below its threshold.
type Watcher struct {
	Items    ItemGetter
	Dedup    Deduper
	Events   events.Publisher
	Producer string
	Log      *zap.Logger
}

func (w *Watcher) HandleLifecycle(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		// Not retryable; commit past it.
		w.Log.Warn("dropping undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	switch env.EventType {
	case events.OrderCreated, events.OrderLineAdded, events.OrderCompleted:
	default:
		return nil
	}

	first, err := w.Dedup.FirstSeen(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	if err := w.check(ctx, env); err != nil {
		if ferr := w.Dedup.Forget(ctx, env.EventID); ferr != nil {
			w.Log.Warn("clear dedup mark", zap.String("event_id", env.EventID), zap.Error(ferr))
		}
		return err
	}
	return nil
}

func (w *Watcher) check(ctx context.Context, env events.Envelope) error {
	p, err := kafkax.UnwrapPayload[events.OrderPayload](env.Payload)
	if err != nil {
		w.Log.Warn("dropping event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	for _, l := range p.Lines {
		it, err := w.Items.GetItem(ctx, l.ItemID)
		if err != nil {
			return err
		}
		if !it.IsLowStock() {
			continue
		}
		out, err := events.New(events.StockLow, w.Producer, it.ID, events.StockLowPayload{
			ItemID:            it.ID,
			Name:              it.Name,
			Quantity:          it.Quantity,
			ReservedQuantity:  it.ReservedQuantity,
			AvailableQuantity: it.AvailableQuantity(),
			LowStockThreshold: it.LowStockThreshold,
			OrderID:           p.OrderID,
		})
		if err != nil {
			return err
		}
		out.TraceID = env.TraceID
		if err := w.Events.Publish(ctx, out); err != nil {
			return err
		}
		w.Log.Info("item low on stock",
			zap.String("item_id", it.ID),
			zap.Int("available", it.AvailableQuantity()),
			zap.Int("threshold", it.LowStockThreshold),
			zap.String("order_id", p.OrderID))
	}
	return nil
}

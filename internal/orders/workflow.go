package orders

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/storefront-ledger/internal/apperr"
	"github.com/ariefcatur/storefront-ledger/internal/events"
	"github.com/ariefcatur/storefront-ledger/internal/inventory"
	"github.com/ariefcatur/storefront-ledger/internal/roles"
)

var tracer = otel.Tracer("github.com/ariefcatur/storefront-ledger/internal/orders")

// publishTimeout bounds how long a committed transition waits to enqueue its event.
const publishTimeout = 500 * time.Millisecond

// Workflow owns the order state machine. Every mutation runs in one store
// transaction; lifecycle events are published after commit.
type Workflow struct {
	store    Store
	gate     roles.Gate
	ledger   inventory.Ledger
	events   events.Publisher
	producer string
	now      func() time.Time
}

type Option func(*Workflow)

func WithPublisher(p events.Publisher, producer string) Option {
	return func(w *Workflow) { w.events, w.producer = p, producer }
}

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func NewWorkflow(store Store, gate roles.Gate, opts ...Option) *Workflow {
	w := &Workflow{
		store:  store,
		gate:   gate,
		events: events.Discard{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Workflow) CreateOrder(ctx context.Context, customerID, notes string) (Order, error) {
	ctx, span := w.span(ctx, "orders.create", "")
	defer span.End()

	if customerID == "" {
		return Order{}, apperr.Invalid("customer is required")
	}
	o := w.newOrder(customerID, notes)
	if err := w.store.InTx(ctx, func(tx Tx) error {
		return tx.InsertOrder(ctx, o)
	}); err != nil {
		span.RecordError(err)
		return Order{}, err
	}
	w.publish(ctx, events.OrderCreated, o, nil)
	return o, nil
}

// Checkout creates an order and all its lines atomically: either every line
// is reserved and priced or nothing is persisted.
func (w *Workflow) Checkout(ctx context.Context, customerID, notes string, lines []LineInput) (Detail, error) {
	ctx, span := w.span(ctx, "orders.checkout", "")
	defer span.End()

	if customerID == "" {
		return Detail{}, apperr.Invalid("customer is required")
	}
	if len(lines) == 0 {
		return Detail{}, apperr.Invalid("order has no lines")
	}
	seen := make(map[string]bool, len(lines))
	for _, in := range lines {
		if seen[in.ItemID] {
			return Detail{}, fmt.Errorf("%w: item %s", apperr.ErrDuplicateLine, in.ItemID)
		}
		seen[in.ItemID] = true
	}

	o := w.newOrder(customerID, notes)
	d := Detail{Order: o}
	err := w.store.InTx(ctx, func(tx Tx) error {
		d.Lines = d.Lines[:0]
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		for _, in := range lines {
			l, err := w.addLine(ctx, tx, o, in)
			if err != nil {
				return err
			}
			d.Lines = append(d.Lines, l)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Detail{}, err
	}
	d.Totals = Summarize(d.Lines)
	w.publish(ctx, events.OrderCreated, o, d.Lines)
	return d, nil
}

// AddLine validates the quantity, reserves stock and captures the price for a
// new line on a pending order.
func (w *Workflow) AddLine(ctx context.Context, orderID string, in LineInput) (OrderItem, error) {
	ctx, span := w.span(ctx, "orders.add_line", orderID)
	defer span.End()

	var (
		o Order
		l OrderItem
	)
	err := w.store.InTx(ctx, func(tx Tx) error {
		var err error
		if o, err = tx.LockOrder(ctx, orderID); err != nil {
			return err
		}
		existing, err := tx.Lines(ctx, orderID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.ItemID == in.ItemID {
				return fmt.Errorf("%w: item %s", apperr.ErrDuplicateLine, in.ItemID)
			}
		}
		l, err = w.addLine(ctx, tx, o, in)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return OrderItem{}, err
	}
	w.publish(ctx, events.OrderLineAdded, o, []OrderItem{l})
	return l, nil
}

func (w *Workflow) addLine(ctx context.Context, tx Tx, o Order, in LineInput) (OrderItem, error) {
	if o.Status != StatusPending {
		return OrderItem{}, apperr.State("lines can only be added to pending orders, order %s is %s", o.ID, o.Status)
	}
	it, err := tx.LockItem(ctx, in.ItemID)
	if err != nil {
		return OrderItem{}, err
	}
	if !it.IsActive {
		return OrderItem{}, apperr.Invalid("item %s is not available for purchase", it.ID)
	}
	if err := it.ValidateOrderQuantity(in.Qty); err != nil {
		return OrderItem{}, err
	}
	if it, err = w.ledger.Reserve(ctx, tx, in.ItemID, in.Qty); err != nil {
		return OrderItem{}, err
	}
	l, err := Capture(o.ID, it, in.Qty, in.PriceOverride, w.now())
	if err != nil {
		return OrderItem{}, err
	}
	if err := tx.InsertLine(ctx, l); err != nil {
		return OrderItem{}, err
	}
	return l, nil
}

// Assign atomically hands a pending, unassigned order to a staff member.
// Of several concurrent callers exactly one succeeds; the others receive
// apperr.ErrAlreadyAssigned.
func (w *Workflow) Assign(ctx context.Context, orderID, staffID string) (Order, error) {
	ctx, span := w.span(ctx, "orders.assign", orderID)
	defer span.End()
	span.SetAttributes(attribute.String("staff.id", staffID))

	ok, err := w.gate.HasStaffCapability(ctx, staffID)
	if err != nil {
		span.RecordError(err)
		return Order{}, err
	}
	if !ok {
		return Order{}, apperr.ErrNotStaffCapable
	}

	o, err := w.mutate(ctx, orderID, func(o *Order) error {
		if o.AssignedTo != nil {
			return apperr.ErrAlreadyAssigned
		}
		if o.Status != StatusPending {
			return apperr.State("order %s is %s and cannot be assigned", o.ID, o.Status)
		}
		now := w.now()
		o.AssignedTo = &staffID
		o.AssignedAt = &now
		o.Status = StatusAssigned
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Order{}, err
	}
	w.publish(ctx, events.OrderAssigned, o, nil)
	return o, nil
}

// Unassign returns an assigned order to the pool. It is a no-op for an order
// that is already pending and unassigned.
func (w *Workflow) Unassign(ctx context.Context, orderID string) (Order, error) {
	ctx, span := w.span(ctx, "orders.unassign", orderID)
	defer span.End()

	changed := false
	o, err := w.mutate(ctx, orderID, func(o *Order) error {
		if o.AssignedTo == nil && o.Status == StatusPending {
			return nil
		}
		if !o.Status.Assigned() {
			return apperr.State("order %s is %s and cannot be unassigned", o.ID, o.Status)
		}
		o.AssignedTo, o.AssignedAt = nil, nil
		o.Status = StatusPending
		changed = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Order{}, err
	}
	if changed {
		w.publish(ctx, events.OrderUnassigned, o, nil)
	}
	return o, nil
}

// Start moves an assigned order into progress.
func (w *Workflow) Start(ctx context.Context, orderID string) (Order, error) {
	ctx, span := w.span(ctx, "orders.start", orderID)
	defer span.End()

	o, err := w.mutate(ctx, orderID, func(o *Order) error {
		if !CanTransition(o.Status, StatusInProgress) {
			return apperr.State("order %s is %s and cannot be started", o.ID, o.Status)
		}
		o.Status = StatusInProgress
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Order{}, err
	}
	w.publish(ctx, events.OrderStarted, o, nil)
	return o, nil
}

// Complete consumes the stock of every line and marks the order fulfilled.
// If any line cannot be consumed nothing is committed.
func (w *Workflow) Complete(ctx context.Context, orderID string) (Order, error) {
	ctx, span := w.span(ctx, "orders.complete", orderID)
	defer span.End()

	var lines []OrderItem
	o, err := w.mutateWithLines(ctx, orderID, func(tx Tx, o *Order, ls []OrderItem) error {
		if !o.Status.Assigned() {
			return apperr.State("order %s is %s and cannot be completed", o.ID, o.Status)
		}
		for _, l := range ls {
			if _, err := w.ledger.Consume(ctx, tx, l.ItemID, l.Quantity); err != nil {
				return err
			}
		}
		o.Status = StatusCompleted
		o.Fulfilled = true
		lines = ls
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Order{}, err
	}
	w.publish(ctx, events.OrderCompleted, o, lines)
	return o, nil
}

// Cancel releases every line's reservation and moves the order to the
// terminal cancelled state.
func (w *Workflow) Cancel(ctx context.Context, orderID string) (Order, error) {
	ctx, span := w.span(ctx, "orders.cancel", orderID)
	defer span.End()

	var lines []OrderItem
	o, err := w.mutateWithLines(ctx, orderID, func(tx Tx, o *Order, ls []OrderItem) error {
		if o.Status.Terminal() {
			return apperr.State("order %s is already %s", o.ID, o.Status)
		}
		for _, l := range ls {
			if _, err := w.ledger.Release(ctx, tx, l.ItemID, l.Quantity); err != nil {
				return err
			}
		}
		o.Status = StatusCancelled
		lines = ls
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Order{}, err
	}
	w.publish(ctx, events.OrderCancelled, o, lines)
	return o, nil
}

// CanBeAssignedTo is the non-locking pre-check callers use before Assign.
func (w *Workflow) CanBeAssignedTo(ctx context.Context, orderID, staffID string) (bool, error) {
	o, err := w.store.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !o.AvailableForAssignment() {
		return false, nil
	}
	return w.gate.HasStaffCapability(ctx, staffID)
}

func (w *Workflow) Get(ctx context.Context, orderID string) (Detail, error) {
	o, err := w.store.GetOrder(ctx, orderID)
	if err != nil {
		return Detail{}, err
	}
	lines, err := w.store.ListLines(ctx, orderID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Order: o, Lines: lines, Totals: Summarize(lines)}, nil
}

// Totals is a snapshot read; it is not linearizable with concurrent writers.
func (w *Workflow) Totals(ctx context.Context, orderID string) (Totals, error) {
	d, err := w.Get(ctx, orderID)
	if err != nil {
		return Totals{}, err
	}
	return d.Totals, nil
}

func (w *Workflow) mutate(ctx context.Context, orderID string, fn func(o *Order) error) (Order, error) {
	var out Order
	err := w.store.InTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := fn(&o); err != nil {
			return err
		}
		o.UpdatedAt = w.now()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

// mutateWithLines locks the order, then hands fn its lines sorted by item id
// so concurrent transactions lock item rows in the same order.
func (w *Workflow) mutateWithLines(ctx context.Context, orderID string, fn func(tx Tx, o *Order, lines []OrderItem) error) (Order, error) {
	var out Order
	err := w.store.InTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		lines, err := tx.Lines(ctx, orderID)
		if err != nil {
			return err
		}
		sort.Slice(lines, func(i, j int) bool { return lines[i].ItemID < lines[j].ItemID })
		if err := fn(tx, &o, lines); err != nil {
			return err
		}
		o.UpdatedAt = w.now()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

func (w *Workflow) newOrder(customerID, notes string) Order {
	now := w.now()
	return Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Status:     StatusPending,
		Notes:      notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (w *Workflow) span(ctx context.Context, name, orderID string) (context.Context, trace.Span) {
	if orderID == "" {
		return tracer.Start(ctx, name)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("order.id", orderID)))
}

func (w *Workflow) publish(ctx context.Context, eventType string, o Order, lines []OrderItem) {
	p := events.OrderPayload{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     string(o.Status),
		AssignedAt: o.AssignedAt,
	}
	if o.AssignedTo != nil {
		p.AssignedTo = *o.AssignedTo
	}
	for _, l := range lines {
		p.Lines = append(p.Lines, events.Line{ItemID: l.ItemID, Qty: l.Quantity, PriceAtTime: l.PriceAtTime.Decimal})
	}
	env, err := events.New(eventType, w.producer, o.ID, p)
	if err == nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		err = w.events.Publish(pctx, env)
		cancel()
	}
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}
}

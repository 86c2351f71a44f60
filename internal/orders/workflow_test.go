package orders_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/storefront-ledger/internal/apperr"
	"github.com/ariefcatur/storefront-ledger/internal/catalog"
	"github.com/ariefcatur/storefront-ledger/internal/events"
	"github.com/ariefcatur/storefront-ledger/internal/memstore"
	"github.com/ariefcatur/storefront-ledger/internal/orders"
	"github.com/ariefcatur/storefront-ledger/internal/roles"
)

type fixture struct {
	store   *memstore.Store
	catalog *catalog.Service
	wf      *orders.Workflow
	rec     *events.Recorder
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir, err := roles.NewStaticDirectory(map[string]string{
		"staff-1":   "staff_admin",
		"staff-2":   "staff_admin",
		"manager-1": "manager_admin",
		"client-1":  "client",
	})
	require.NoError(t, err)

	f := &fixture{
		store: memstore.New(),
		rec:   events.NewRecorder(64),
		now:   time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
	f.catalog = catalog.NewService(f.store)
	f.wf = orders.NewWorkflow(f.store, roles.DirectoryGate{Dir: dir},
		orders.WithPublisher(f.rec, "test"),
		orders.WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *fixture) item(t *testing.T, name string, price string, qty int) catalog.Item {
	t.Helper()
	ctx := context.Background()
	cats, err := f.catalog.ListCategories(ctx, false)
	require.NoError(t, err)
	var catID string
	if len(cats) > 0 {
		catID = cats[0].ID
	} else {
		c, err := f.catalog.CreateCategory(ctx, catalog.Category{Name: "General", IsActive: true})
		require.NoError(t, err)
		catID = c.ID
	}
	it := catalog.Item{CategoryID: catID, Name: name, Quantity: qty, IsActive: true, LowStockThreshold: 1}
	if price != "" {
		it.OriginalPrice = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	created, err := f.catalog.CreateItem(ctx, it)
	require.NoError(t, err)
	return created
}

func (f *fixture) stock(t *testing.T, id string) catalog.Item {
	t.Helper()
	it, err := f.store.GetItem(context.Background(), id)
	require.NoError(t, err)
	return it
}

// assertAssignmentConsistent checks that an order has an assignee exactly
// when its status is assigned or in progress (completed keeps its assignee).
func assertAssignmentConsistent(t *testing.T, o orders.Order) {
	t.Helper()
	switch o.Status {
	case orders.StatusAssigned, orders.StatusInProgress:
		assert.NotNil(t, o.AssignedTo)
		assert.NotNil(t, o.AssignedAt)
	case orders.StatusPending:
		assert.Nil(t, o.AssignedTo)
		assert.Nil(t, o.AssignedAt)
	}
}

func TestWorkflow_AddLineReservesAndSnapshotsPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it := f.item(t, "Notebook", "10.00", 10)

	o, err := f.wf.CreateOrder(ctx, "client-1", "")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)

	l, err := f.wf.AddLine(ctx, o.ID, orders.LineInput{ItemID: it.ID, Qty: 2})
	require.NoError(t, err)
	assert.True(t, l.PriceAtTime.Decimal.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, 2, f.stock(t, it.ID).ReservedQuantity)

	_, err = f.catalog.UpdatePricing(ctx, it.ID, decimal.NewNullDecimal(decimal.RequireFromString("10.00")), decimal.RequireFromString("3.00"))
	require.NoError(t, err)

	totals, err := f.wf.Totals(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, totals.ItemCount)
	assert.True(t, totals.TotalPrice.Equal(decimal.RequireFromString("20.00")), "got %s", totals.TotalPrice)

	o2, err := f.wf.CreateOrder(ctx, "client-1", "")
	require.NoError(t, err)
	l2, err := f.wf.AddLine(ctx, o2.ID, orders.LineInput{ItemID: it.ID, Qty: 1})
	require.NoError(t, err)
	assert.True(t, l2.PriceAtTime.Decimal.Equal(decimal.RequireFromString("7.00")))
}

func TestWorkflow_AddLineRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it := f.item(t, "Stapler", "4.50", 3)
	unpriced := f.item(t, "Mystery", "", 5)

	o, err := f.wf.CreateOrder(ctx, "client-1", "")
	require.NoError(t, err)

	t.Run("insufficient stock", func(t *testing.T) {
		_, err := f.wf.AddLine(ctx, o.ID, orders.LineInput{ItemID: it.ID, Qty: 4})
		assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
		assert.Equal(t, 0, f.stock(t, it.ID).ReservedQuantity)
	})

	t.Run("missing price rolls back the reservation", func(t *testing.T) {
		_, err := f.wf.AddLine(ctx, o.ID, orders.LineInput{ItemID: unpriced.ID, Qty: 1})
		assert.ErrorIs(t, err, apperr.ErrPriceUnavailable)
		assert.Equal(t, 0, f.stock(t, unpriced.ID).ReservedQuantity)
	})

	t.Run("price override is used", func(t *testing.T) {
		price := decimal.RequireFromString("1.25")
		_, err := f.wf.AddLine(ctx, o.ID, orders.LineInput{ItemID: unpriced.ID, Qty: 2, PriceOverride: &price})
		require.NoError(t, err)
		totals, err := f.wf.Totals(ctx, o.ID)
		require.NoError(t, err)
		assert.True(t, totals.TotalPrice.Equal(decimal.RequireFromString("2.50")))
	})

	t.Run("duplicate item", func(t *testing.T) {
		_, err := f.wf.AddLine(ctx, o.ID, orders.LineInput{ItemID: unpriced.ID, Qty: 1})
		assert.ErrorIs(t, err, apperr.ErrDuplicateLine)
		assert.Equal(t, 2, f.stock(t, unpriced.ID).ReservedQuantity)
	})

	t.Run("quantity below minimum", func(t *testing.T) {
		_, err := f.wf.AddLine(ctx, o.ID, orders.LineInput{ItemID: it.ID, Qty: 0})
		assert.ErrorIs(t, err, apperr.ErrInvalidQuantity)
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := f.wf.AddLine(ctx, "nope", orders.LineInput{ItemID: it.ID, Qty: 1})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestWorkflow_TotalsOfEmptyOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o, err := f.wf.CreateOrder(ctx, "client-1", "")
	require.NoError(t, err)

	totals, err := f.wf.Totals(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, totals.ItemCount)
	assert.True(t, totals.TotalPrice.IsZero())
}

func TestWorkflow_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it := f.item(t, "Ink", "2.00", 10)

	d, err := f.wf.Checkout(ctx, "client-1", "", []orders.LineInput{{ItemID: it.ID, Qty: 4}})
	require.NoError(t, err)
	id := d.ID
	assert.Equal(t, 4, f.stock(t, it.ID).ReservedQuantity)

	_, err = f.wf.Complete(ctx, id)
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "pending orders cannot complete")

	o, err := f.wf.Assign(ctx, id, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusAssigned, o.Status)
	assertAssignmentConsistent(t, o)

	o, err = f.wf.Start(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusInProgress, o.Status)
	assertAssignmentConsistent(t, o)

	o, err = f.wf.Complete(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, o.Status)
	assert.True(t, o.Fulfilled)
	require.NotNil(t, o.AssignedTo)
	assert.Equal(t, "staff-1", *o.AssignedTo)

	stock := f.stock(t, it.ID)
	assert.Equal(t, 6, stock.Quantity)
	assert.Equal(t, 0, stock.ReservedQuantity)

	_, err = f.wf.Cancel(ctx, id)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	_, err = f.wf.Assign(ctx, id, "staff-2")
	assert.Error(t, err)

	var types []string
	for _, env := range f.rec.Drain() {
		types = append(types, env.EventType)
	}
	assert.Equal(t, []string{events.OrderCreated, events.OrderAssigned, events.OrderStarted, events.OrderCompleted}, types)
}

func TestWorkflow_CancelReleasesReservations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.item(t, "A", "1.00", 10)
	b := f.item(t, "B", "1.00", 5)

	d, err := f.wf.Checkout(ctx, "client-1", "", []orders.LineInput{{ItemID: a.ID, Qty: 3}, {ItemID: b.ID, Qty: 2}})
	require.NoError(t, err)
	_, err = f.wf.Assign(ctx, d.ID, "staff-1")
	require.NoError(t, err)

	o, err := f.wf.Cancel(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, o.Status)
	assert.False(t, o.Fulfilled)
	assert.Equal(t, 0, f.stock(t, a.ID).ReservedQuantity)
	assert.Equal(t, 0, f.stock(t, b.ID).ReservedQuantity)
	assert.Equal(t, 10, f.stock(t, a.ID).Quantity)

	_, err = f.wf.Cancel(ctx, d.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestWorkflow_CheckoutIsAtomic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.item(t, "A", "1.00", 10)
	b := f.item(t, "B", "1.00", 1)

	_, err := f.wf.Checkout(ctx, "client-1", "", []orders.LineInput{{ItemID: a.ID, Qty: 3}, {ItemID: b.ID, Qty: 2}})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, 0, f.stock(t, a.ID).ReservedQuantity)

	all, err := f.store.ListOrders(ctx, orders.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = f.wf.Checkout(ctx, "client-1", "", nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = f.wf.Checkout(ctx, "client-1", "", []orders.LineInput{{ItemID: a.ID, Qty: 1}, {ItemID: a.ID, Qty: 1}})
	assert.ErrorIs(t, err, apperr.ErrDuplicateLine)
}

func TestWorkflow_CompleteFailsWithoutStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it := f.item(t, "Glue", "1.00", 5)

	d, err := f.wf.Checkout(ctx, "client-1", "", []orders.LineInput{{ItemID: it.ID, Qty: 5}})
	require.NoError(t, err)
	_, err = f.wf.Assign(ctx, d.ID, "staff-1")
	require.NoError(t, err)

	// Simulate an external write-off that leaves less on hand than the line.
	require.NoError(t, f.store.InItemTx(ctx, func(tx catalog.ItemTx) error {
		return tx.UpdateStock(ctx, it.ID, 4, 4)
	}))

	_, err = f.wf.Complete(ctx, d.ID)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	got, err := f.wf.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusAssigned, got.Status)
	assert.False(t, got.Fulfilled)
	assert.Equal(t, 4, f.stock(t, it.ID).Quantity)
}

func TestWorkflow_AssignRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o, err := f.wf.CreateOrder(ctx, "client-1", "")
	require.NoError(t, err)

	ok, err := f.wf.CanBeAssignedTo(ctx, o.ID, "client-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.wf.Assign(ctx, o.ID, "client-1")
	assert.ErrorIs(t, err, apperr.ErrNotStaffCapable)
	_, err = f.wf.Assign(ctx, o.ID, "")
	assert.ErrorIs(t, err, apperr.ErrNotStaffCapable)

	ok, err = f.wf.CanBeAssignedTo(ctx, o.ID, "manager-1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.wf.Assign(ctx, o.ID, "manager-1")
	require.NoError(t, err)

	_, err = f.wf.Assign(ctx, o.ID, "staff-1")
	assert.ErrorIs(t, err, apperr.ErrAlreadyAssigned)

	ok, err = f.wf.CanBeAssignedTo(ctx, o.ID, "staff-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWorkflow_ConcurrentAssignHasOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o, err := f.wf.CreateOrder(ctx, "client-1", "")
	require.NoError(t, err)

	staff := []string{"staff-1", "staff-2", "manager-1", "staff-1", "staff-2", "manager-1"}
	errs := make([]error, len(staff))
	var wg sync.WaitGroup
	for i, s := range staff {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.wf.Assign(ctx, o.ID, s)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrAlreadyAssigned)
	}
	assert.Equal(t, 1, wins)

	got, err := f.wf.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusAssigned, got.Status)
	assertAssignmentConsistent(t, got.Order)
}

func TestWorkflow_Unassign(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o, err := f.wf.CreateOrder(ctx, "client-1", "")
	require.NoError(t, err)

	same, err := f.wf.Unassign(ctx, o.ID)
	require.NoError(t, err, "unassigning a pending order is a no-op")
	assert.Equal(t, orders.StatusPending, same.Status)

	_, err = f.wf.Assign(ctx, o.ID, "staff-1")
	require.NoError(t, err)
	_, err = f.wf.Start(ctx, o.ID)
	require.NoError(t, err)

	back, err := f.wf.Unassign(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, back.Status)
	assertAssignmentConsistent(t, back)

	_, err = f.wf.Assign(ctx, o.ID, "staff-2")
	require.NoError(t, err)

	_, err = f.wf.Cancel(ctx, o.ID)
	require.NoError(t, err)
	_, err = f.wf.Unassign(ctx, o.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestWorkflow_StartRequiresAssignment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o, err := f.wf.CreateOrder(ctx, "client-1", "")
	require.NoError(t, err)

	_, err = f.wf.Start(ctx, o.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestWorkflow_AddLineOnlyWhilePending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it := f.item(t, "Tape", "0.90", 10)
	o, err := f.wf.CreateOrder(ctx, "client-1", "")
	require.NoError(t, err)
	_, err = f.wf.Assign(ctx, o.ID, "staff-1")
	require.NoError(t, err)

	_, err = f.wf.AddLine(ctx, o.ID, orders.LineInput{ItemID: it.ID, Qty: 1})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Equal(t, 0, f.stock(t, it.ID).ReservedQuantity)
}

func TestWorkflow_CreateOrderRequiresCustomer(t *testing.T) {
	_, err := newFixture(t).wf.CreateOrder(context.Background(), "", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

// stuckPublisher never accepts an event; it returns only when ctx ends.
type stuckPublisher struct {
	calls chan error
}

func (p stuckPublisher) Publish(ctx context.Context, _ events.Envelope) error {
	<-ctx.Done()
	p.calls <- ctx.Err()
	return ctx.Err()
}

func TestWorkflow_StuckPublisherDoesNotHoldTransitions(t *testing.T) {
	dir, err := roles.NewStaticDirectory(map[string]string{"staff-1": "staff_admin"})
	require.NoError(t, err)
	pub := stuckPublisher{calls: make(chan error, 8)}
	wf := orders.NewWorkflow(memstore.New(), roles.DirectoryGate{Dir: dir}, orders.WithPublisher(pub, "test"))

	// A request context without a deadline must not make publishing unbounded.
	ctx := context.Background()
	start := time.Now()
	o, err := wf.CreateOrder(ctx, "client-1", "")
	require.NoError(t, err)
	o, err = wf.Assign(ctx, o.ID, "staff-1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, orders.StatusAssigned, o.Status)
	for range 2 {
		assert.ErrorIs(t, <-pub.calls, context.DeadlineExceeded, "created and assigned events time out")
	}
}

package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/storefront-ledger/internal/apperr"
	"github.com/ariefcatur/storefront-ledger/internal/orders"
)

func ids(os []orders.Order) []string {
	out := make([]string, 0, len(os))
	for _, o := range os {
		out = append(out, o.ID)
	}
	return out
}

func TestWorkflow_StaffViews(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mk := func() orders.Order {
		o, err := f.wf.CreateOrder(ctx, "client-1", "")
		require.NoError(t, err)
		f.now = f.now.Add(time.Minute)
		return o
	}
	free := mk()
	mine := mk()
	theirs := mk()
	_, err := f.wf.Assign(ctx, mine.ID, "staff-1")
	require.NoError(t, err)
	_, err = f.wf.Assign(ctx, theirs.ID, "staff-2")
	require.NoError(t, err)

	avail, err := f.wf.ListAvailable(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{free.ID}, ids(avail))

	assigned, err := f.wf.ListAssignedTo(ctx, "staff-1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{mine.ID}, ids(assigned))

	visible, err := f.wf.ListOrders(ctx, orders.Filter{VisibleTo: "staff-1"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{free.ID, mine.ID}, ids(visible))
	assert.NotContains(t, ids(visible), theirs.ID)

	pending, err := f.wf.ListOrders(ctx, orders.Filter{VisibleTo: "staff-1", Status: orders.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, []string{free.ID}, ids(pending))

	_, err = f.wf.ListOrders(ctx, orders.Filter{Status: "shipped"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestWorkflow_Dashboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it := f.item(t, "Clip", "0.10", 100)

	var created []orders.Order
	for range 4 {
		o, err := f.wf.CreateOrder(ctx, "client-1", "")
		require.NoError(t, err)
		created = append(created, o)
	}
	_, err := f.wf.AddLine(ctx, created[0].ID, orders.LineInput{ItemID: it.ID, Qty: 1})
	require.NoError(t, err)

	for _, o := range created[:3] {
		_, err := f.wf.Assign(ctx, o.ID, "staff-1")
		require.NoError(t, err)
	}
	_, err = f.wf.Start(ctx, created[1].ID)
	require.NoError(t, err)
	_, err = f.wf.Complete(ctx, created[0].ID)
	require.NoError(t, err)

	d, err := f.wf.Dashboard(ctx, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, 2, d.MyActive)
	assert.Equal(t, 1, d.MyCompletedToday)
	assert.Equal(t, 1, d.Available)
	assert.Len(t, d.MyOrders, 3)
	assert.Equal(t, []string{created[3].ID}, ids(d.AvailableOrders))

	f.now = f.now.Add(48 * time.Hour)
	d, err = f.wf.Dashboard(ctx, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, 0, d.MyCompletedToday)
}

func TestWorkflow_AssignMany(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a, err := f.wf.CreateOrder(ctx, "client-1", "")
	require.NoError(t, err)
	b, err := f.wf.CreateOrder(ctx, "client-1", "")
	require.NoError(t, err)
	taken, err := f.wf.CreateOrder(ctx, "client-1", "")
	require.NoError(t, err)
	_, err = f.wf.Assign(ctx, taken.ID, "staff-2")
	require.NoError(t, err)

	res, err := f.wf.AssignMany(ctx, []string{a.ID, b.ID, taken.ID, "missing"}, "staff-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, res.Assigned)
	assert.Len(t, res.Failed, 2)
	assert.Contains(t, res.Failed, taken.ID)
	assert.Contains(t, res.Failed, "missing")

	_, err = f.wf.AssignMany(ctx, []string{a.ID}, "client-1")
	assert.ErrorIs(t, err, apperr.ErrNotStaffCapable)
}

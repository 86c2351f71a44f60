package orders

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/storefront-ledger/internal/apperr"
)

const dashboardListSize = 10

// ListAvailable returns pending orders nobody has picked up.
func (w *Workflow) ListAvailable(ctx context.Context, limit int) ([]Order, error) {
	return w.store.ListOrders(ctx, Filter{Status: StatusPending, Unassigned: true, Limit: limit})
}

func (w *Workflow) ListAssignedTo(ctx context.Context, staffID string, limit int) ([]Order, error) {
	return w.store.ListOrders(ctx, Filter{AssignedTo: staffID, Limit: limit})
}

// ListOrders returns the orders matching f.
func (w *Workflow) ListOrders(ctx context.Context, f Filter) ([]Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Invalid("unknown order status %q", f.Status)
	}
	return w.store.ListOrders(ctx, f)
}

func (w *Workflow) Dashboard(ctx context.Context, staffID string) (Dashboard, error) {
	var d Dashboard
	today := w.now().Truncate(24 * time.Hour)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.MyActive, err = w.store.CountOrders(gctx, Filter{AssignedTo: staffID, Status: StatusAssigned})
		if err != nil {
			return err
		}
		n, err := w.store.CountOrders(gctx, Filter{AssignedTo: staffID, Status: StatusInProgress})
		d.MyActive += n
		return err
	})
	g.Go(func() (err error) {
		d.MyCompletedToday, err = w.store.CountOrders(gctx, Filter{AssignedTo: staffID, Status: StatusCompleted, UpdatedSince: today})
		return err
	})
	g.Go(func() (err error) {
		d.Available, err = w.store.CountOrders(gctx, Filter{Status: StatusPending, Unassigned: true})
		return err
	})
	g.Go(func() (err error) {
		d.MyOrders, err = w.ListAssignedTo(gctx, staffID, dashboardListSize)
		return err
	})
	g.Go(func() (err error) {
		d.AvailableOrders, err = w.ListAvailable(gctx, dashboardListSize)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// AssignMany assigns each order to staffID independently. Orders that lose a
// race or are not assignable are reported in Failed; storage errors abort.
func (w *Workflow) AssignMany(ctx context.Context, orderIDs []string, staffID string) (AssignResult, error) {
	ok, err := w.gate.HasStaffCapability(ctx, staffID)
	if err != nil {
		return AssignResult{}, err
	}
	if !ok {
		return AssignResult{}, apperr.ErrNotStaffCapable
	}

	res := AssignResult{Assigned: []string{}, Failed: map[string]string{}}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range orderIDs {
		g.Go(func() error {
			_, err := w.Assign(gctx, id, staffID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Assigned = append(res.Assigned, id)
			case apperr.Code(err) != "":
				res.Failed[id] = err.Error()
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return AssignResult{}, err
	}
	return res, nil
}

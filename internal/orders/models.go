package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID         string     `json:"id"`
	CustomerID string     `json:"customer_id"`
	Status     Status     `json:"status"`
	AssignedTo *string    `json:"assigned_to"`
	AssignedAt *time.Time `json:"assigned_at"`
	Fulfilled  bool       `json:"fulfilled"`
	Notes      string     `json:"notes"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// AvailableForAssignment reports whether staff may pick the order up.
func (o Order) AvailableForAssignment() bool {
	return o.AssignedTo == nil && o.Status == StatusPending
}

// OrderItem is one line of an order. PriceAtTime is captured once when the
// line is created and never recomputed from the live item.
type OrderItem struct {
	ID          string              `json:"id"`
	OrderID     string              `json:"order_id"`
	ItemID      string              `json:"item_id"`
	Quantity    int                 `json:"quantity"`
	PriceAtTime decimal.NullDecimal `json:"price_at_time"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Total is price_at_time * quantity; a line without a price counts as zero.
func (l OrderItem) Total() decimal.Decimal {
	if !l.PriceAtTime.Valid {
		return decimal.Zero
	}
	return l.PriceAtTime.Decimal.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Totals struct {
	ItemCount  int             `json:"item_count"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// Summarize aggregates lines; zero lines yield zero totals.
func Summarize(lines []OrderItem) Totals {
	t := Totals{TotalPrice: decimal.Zero}
	for _, l := range lines {
		t.ItemCount += l.Quantity
		t.TotalPrice = t.TotalPrice.Add(l.Total())
	}
	return t
}

// Filter narrows order listings. Zero values mean "any".
type Filter struct {
	Status     Status
	AssignedTo string
	Unassigned bool
	// VisibleTo selects orders assigned to this staff member plus the
	// orders available for assignment.
	VisibleTo    string
	UpdatedSince time.Time
	Limit        int
}

func (f Filter) Match(o Order) bool {
	if f.VisibleTo != "" {
		mine := o.AssignedTo != nil && *o.AssignedTo == f.VisibleTo
		if !mine && !o.AvailableForAssignment() {
			return false
		}
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.AssignedTo != "" && (o.AssignedTo == nil || *o.AssignedTo != f.AssignedTo) {
		return false
	}
	if f.Unassigned && o.AssignedTo != nil {
		return false
	}
	if !f.UpdatedSince.IsZero() && o.UpdatedAt.Before(f.UpdatedSince) {
		return false
	}
	return true
}

// Detail is an order with its lines and totals.
type Detail struct {
	Order
	Lines  []OrderItem `json:"lines"`
	Totals Totals      `json:"totals"`
}

type LineInput struct {
	ItemID        string
	Qty           int
	PriceOverride *decimal.Decimal
}

type Dashboard struct {
	MyActive         int     `json:"my_active"`
	MyCompletedToday int     `json:"my_completed_today"`
	Available        int     `json:"available"`
	MyOrders         []Order `json:"my_orders"`
	AvailableOrders  []Order `json:"available_orders"`
}

type AssignResult struct {
	Assigned []string          `json:"assigned"`
	Failed   map[string]string `json:"failed,omitempty"`
}

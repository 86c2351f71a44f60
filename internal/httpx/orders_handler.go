package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/storefront-ledger/internal/orders"
	"github.com/ariefcatur/storefront-ledger/internal/roles"
)

// Idempotency guards checkout retries carrying the same Idempotency-Key.
type Idempotency interface {
	Claim(ctx context.Context, customerID, key string) (orderID string, claimed bool, err error)
	Complete(ctx context.Context, customerID, key, orderID string) error
	Abandon(ctx context.Context, customerID, key string) error
}

type OrdersHandler struct {
	Access
	Workflow *orders.Workflow
	// Idem is optional; without it Idempotency-Key is ignored.
	Idem Idempotency
}

type LineReq struct {
	ItemID        string           `json:"item_id" validate:"required"`
	Qty           int              `json:"qty"`
	PriceOverride *decimal.Decimal `json:"price_override"`
}

type CheckoutReq struct {
	Notes string    `json:"notes" validate:"max=2000"`
	Lines []LineReq `json:"lines" validate:"required,min=1,max=100,dive"`
}

type CheckoutResp struct {
	Order      orders.Detail `json:"order"`
	Idempotent bool          `json:"idempotent"`
}

type AssignReq struct {
	StaffID string `json:"staff_id"`
}

type AssignManyReq struct {
	OrderIDs []string `json:"order_ids" validate:"required,min=1,max=100,dive,required"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.checkout)
	r.Get("/orders", h.list)
	r.Post("/orders/assign-me", h.assignMe)
	r.Get("/orders/{id}", h.get)
	r.Get("/orders/{id}/totals", h.totals)
	r.Post("/orders/{id}/lines", h.addLine)
	r.Post("/orders/{id}/assign", h.assign)
	r.Post("/orders/{id}/unassign", h.transition(h.Workflow.Unassign))
	r.Post("/orders/{id}/start", h.transition(h.Workflow.Start))
	r.Post("/orders/{id}/complete", h.transition(h.Workflow.Complete))
	r.Post("/orders/{id}/cancel", h.cancel)
}

func lineInput(l LineReq) orders.LineInput {
	return orders.LineInput{ItemID: l.ItemID, Qty: l.Qty, PriceOverride: l.PriceOverride}
}

// overridesAllowed rejects price overrides from callers who cannot fulfil orders.
func (h *OrdersHandler) overridesAllowed(w http.ResponseWriter, r *http.Request, lines ...LineReq) bool {
	for _, l := range lines {
		if l.PriceOverride != nil {
			return h.can(w, r, roles.FulfilOrders)
		}
	}
	return true
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if !decode(w, r, &req) {
		return
	}
	if !h.overridesAllowed(w, r, req.Lines...) {
		return
	}
	ctx := r.Context()
	customer := userID(ctx)

	key := r.Header.Get("Idempotency-Key")
	claimed := false
	if key != "" && h.Idem != nil {
		existing, ok, err := h.Idem.Claim(ctx, customer, key)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		if !ok {
			d, err := h.Workflow.Get(ctx, existing)
			if err != nil {
				writeError(w, h.Log, err)
				return
			}
			writeJSON(w, http.StatusOK, CheckoutResp{Order: d, Idempotent: true})
			return
		}
		claimed = true
	}

	lines := make([]orders.LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, lineInput(l))
	}
	d, err := h.Workflow.Checkout(ctx, customer, req.Notes, lines)
	if err != nil {
		if claimed {
			if aerr := h.Idem.Abandon(ctx, customer, key); aerr != nil {
				h.Log.Warn("abandon idempotency key", zap.String("key", key), zap.Error(aerr))
			}
		}
		writeError(w, h.Log, err)
		return
	}
	if claimed {
		if cerr := h.Idem.Complete(ctx, customer, key, d.ID); cerr != nil {
			h.Log.Warn("complete idempotency key", zap.String("key", key), zap.Error(cerr))
		}
	}
	writeJSON(w, http.StatusCreated, CheckoutResp{Order: d})
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	if !h.can(w, r, roles.FulfilOrders) {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()
	f := orders.Filter{Status: orders.Status(q.Get("status")), Limit: queryInt(r, "limit", 50)}
	switch view := q.Get("view"); view {
	case "available":
		f.Status, f.Unassigned = orders.StatusPending, true
	case "mine":
		f.AssignedTo = userID(ctx)
	case "", "visible":
		f.VisibleTo = userID(ctx)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: "INVALID_INPUT", Message: "unknown view " + view}})
		return
	}
	out, err := h.Workflow.ListOrders(ctx, f)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// readable lets staff see every order and customers their own.
func (h *OrdersHandler) readable(w http.ResponseWriter, r *http.Request, o orders.Order) bool {
	if o.CustomerID == userID(r.Context()) {
		return true
	}
	return h.can(w, r, roles.FulfilOrders)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	d, err := h.Workflow.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if !h.readable(w, r, d.Order) {
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *OrdersHandler) totals(w http.ResponseWriter, r *http.Request) {
	d, err := h.Workflow.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if !h.readable(w, r, d.Order) {
		return
	}
	writeJSON(w, http.StatusOK, d.Totals)
}

func (h *OrdersHandler) addLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	var req LineReq
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Workflow.Get(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if !h.readable(w, r, o.Order) || !h.overridesAllowed(w, r, req) {
		return
	}
	l, err := h.Workflow.AddLine(ctx, id, lineInput(req))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// assign hands the order to staff_id, or to the caller when it is empty.
// Assigning someone else requires manage_users.
func (h *OrdersHandler) assign(w http.ResponseWriter, r *http.Request) {
	var req AssignReq
	if !decode(w, r, &req) {
		return
	}
	caller := userID(r.Context())
	if req.StaffID == "" {
		req.StaffID = caller
	}
	if req.StaffID != caller && !h.can(w, r, roles.ManageUsers) {
		return
	}
	o, err := h.Workflow.Assign(r.Context(), chi.URLParam(r, "id"), req.StaffID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) assignMe(w http.ResponseWriter, r *http.Request) {
	var req AssignManyReq
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Workflow.AssignMany(r.Context(), req.OrderIDs, userID(r.Context()))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) transition(op func(ctx context.Context, orderID string) (orders.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.can(w, r, roles.FulfilOrders) {
			return
		}
		o, err := op(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

// cancel is open to staff and to the customer who placed the order.
func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	d, err := h.Workflow.Get(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if !h.readable(w, r, d.Order) {
		return
	}
	o, err := h.Workflow.Cancel(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

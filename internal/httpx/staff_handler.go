package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/storefront-ledger/internal/orders"
	"github.com/ariefcatur/storefront-ledger/internal/roles"
)

type StaffHandler struct {
	Access
	Workflow *orders.Workflow
}

type RoleReq struct {
	Role string `json:"role" validate:"required,oneof=client staff_admin manager_admin"`
}

func (h *StaffHandler) Register(r chi.Router) {
	r.Get("/staff", h.list)
	r.Get("/staff/dashboard", h.dashboard)
	r.Put("/staff/{user_id}/role", h.setRole)
}

func (h *StaffHandler) list(w http.ResponseWriter, r *http.Request) {
	if !h.can(w, r, roles.FulfilOrders) {
		return
	}
	ids, err := h.Dir.UsersWith(r.Context(), roles.FulfilOrders)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"staff": ids})
}

func (h *StaffHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	if !h.can(w, r, roles.FulfilOrders) {
		return
	}
	d, err := h.Workflow.Dashboard(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *StaffHandler) setRole(w http.ResponseWriter, r *http.Request) {
	if !h.can(w, r, roles.ManageUsers) {
		return
	}
	var req RoleReq
	if !decode(w, r, &req) {
		return
	}
	role, err := roles.Parse(req.Role)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	user := chi.URLParam(r, "user_id")
	if err := h.Dir.SetRole(r.Context(), user, role); err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": user, "role": string(role)})
}

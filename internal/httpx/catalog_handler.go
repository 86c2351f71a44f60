package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-ledger/internal/catalog"
	"github.com/ariefcatur/storefront-ledger/internal/inventory"
	"github.com/ariefcatur/storefront-ledger/internal/roles"
)

type CatalogHandler struct {
	Access
	Catalog *catalog.Service
	Stock   *inventory.Service
}

func NewCatalogHandler(c *catalog.Service, s *inventory.Service, a Access) *CatalogHandler {
	return &CatalogHandler{Access: a, Catalog: c, Stock: s}
}

type CreateCategoryReq struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	IsActive    *bool  `json:"is_active"`
	SortOrder   int    `json:"sort_order"`
}

type CreateItemReq struct {
	CategoryID        string           `json:"category_id" validate:"required"`
	Name              string           `json:"name" validate:"required,max=200"`
	Description       string           `json:"description" validate:"max=2000"`
	OriginalPrice     *decimal.Decimal `json:"original_price"`
	Discount          decimal.Decimal  `json:"discount"`
	Quantity          int              `json:"quantity" validate:"gte=0"`
	LowStockThreshold int              `json:"low_stock_threshold" validate:"gte=0"`
	MinOrderQuantity  int              `json:"min_order_quantity" validate:"gte=0"`
	MaxOrderQuantity  *int             `json:"max_order_quantity" validate:"omitempty,gte=1"`
	IsActive          *bool            `json:"is_active"`
	IsFeatured        bool             `json:"is_featured"`
	SortOrder         int              `json:"sort_order"`
}

type PricingReq struct {
	OriginalPrice *decimal.Decimal `json:"original_price"`
	Discount      decimal.Decimal  `json:"discount"`
}

type QtyReq struct {
	Qty int `json:"qty" validate:"gt=0"`
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/categories", h.listCategories)
	r.Post("/categories", h.createCategory)
	r.Get("/categories/{id}/items", h.categoryItems)
	r.Get("/items", h.listItems)
	r.Post("/items", h.createItem)
	r.Get("/items/{id}", h.getItem)
	r.Patch("/items/{id}/pricing", h.updatePricing)
	r.Post("/items/{id}/restock", h.restock)
	r.Post("/items/{id}/reserve", h.stockOp(h.Stock.ReserveStock))
	r.Post("/items/{id}/release", h.stockOp(h.Stock.ReleaseStock))
	r.Post("/items/{id}/consume", h.stockOp(h.Stock.ConsumeStock))
}

// itemView adds the derived stock and price fields to an item.
type itemView struct {
	catalog.Item
	AvailableQuantity  int                 `json:"available_quantity"`
	IsInStock          bool                `json:"is_in_stock"`
	IsLowStock         bool                `json:"is_low_stock"`
	StockStatus        string              `json:"stock_status"`
	CurrentPrice       decimal.NullDecimal `json:"current_price"`
	DiscountPercentage decimal.Decimal     `json:"discount_percentage"`
}

func viewOf(it catalog.Item) itemView {
	v := itemView{
		Item:               it,
		AvailableQuantity:  it.AvailableQuantity(),
		IsInStock:          it.IsInStock(),
		IsLowStock:         it.IsLowStock(),
		StockStatus:        string(it.StockStatus()),
		DiscountPercentage: it.DiscountPercentage(),
	}
	if p, ok := it.CurrentPrice(); ok {
		v.CurrentPrice = decimal.NewNullDecimal(p)
	}
	return v
}

func viewsOf(items []catalog.Item) []itemView {
	out := make([]itemView, 0, len(items))
	for _, it := range items {
		out = append(out, viewOf(it))
	}
	return out
}

func (h *CatalogHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Catalog.ListCategories(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *CatalogHandler) createCategory(w http.ResponseWriter, r *http.Request) {
	if !h.can(w, r, roles.ManageCatalog) {
		return
	}
	var req CreateCategoryReq
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Catalog.CreateCategory(r.Context(), catalog.Category{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive == nil || *req.IsActive,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CatalogHandler) categoryItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Catalog.CategoryItems(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(items))
}

func (h *CatalogHandler) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.Catalog.ListItems(r.Context(), catalog.ItemFilter{
		CategoryID:  q.Get("category_id"),
		StockStatus: catalog.StockStatus(q.Get("stock_status")),
		ActiveOnly:  q.Get("active") == "true",
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(items))
}

func (h *CatalogHandler) createItem(w http.ResponseWriter, r *http.Request) {
	if !h.can(w, r, roles.ManageCatalog) {
		return
	}
	var req CreateItemReq
	if !decode(w, r, &req) {
		return
	}
	it := catalog.Item{
		CategoryID:        req.CategoryID,
		Name:              req.Name,
		Description:       req.Description,
		Discount:          req.Discount,
		Quantity:          req.Quantity,
		LowStockThreshold: req.LowStockThreshold,
		MinOrderQuantity:  req.MinOrderQuantity,
		MaxOrderQuantity:  req.MaxOrderQuantity,
		IsActive:          req.IsActive == nil || *req.IsActive,
		IsFeatured:        req.IsFeatured,
		SortOrder:         req.SortOrder,
	}
	if req.OriginalPrice != nil {
		it.OriginalPrice = decimal.NewNullDecimal(*req.OriginalPrice)
	}
	created, err := h.Catalog.CreateItem(r.Context(), it)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(created))
}

func (h *CatalogHandler) getItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.Catalog.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(it))
}

func (h *CatalogHandler) updatePricing(w http.ResponseWriter, r *http.Request) {
	if !h.can(w, r, roles.ManageCatalog) {
		return
	}
	var req PricingReq
	if !decode(w, r, &req) {
		return
	}
	var original decimal.NullDecimal
	if req.OriginalPrice != nil {
		original = decimal.NewNullDecimal(*req.OriginalPrice)
	}
	it, err := h.Catalog.UpdatePricing(r.Context(), chi.URLParam(r, "id"), original, req.Discount)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(it))
}

func (h *CatalogHandler) restock(w http.ResponseWriter, r *http.Request) {
	if !h.can(w, r, roles.ManageCatalog) {
		return
	}
	var req QtyReq
	if !decode(w, r, &req) {
		return
	}
	it, err := h.Catalog.Restock(r.Context(), chi.URLParam(r, "id"), req.Qty)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(it))
}

func (h *CatalogHandler) stockOp(op func(ctx context.Context, itemID string, qty int) (catalog.Item, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.can(w, r, roles.FulfilOrders) {
			return
		}
		var req QtyReq
		if !decode(w, r, &req) {
			return
		}
		it, err := op(r.Context(), chi.URLParam(r, "id"), req.Qty)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(it))
	}
}

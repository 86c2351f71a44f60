package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	OrderCreated    = "OrderCreated"
	OrderLineAdded  = "OrderLineAdded"
	OrderAssigned   = "OrderAssigned"
	OrderUnassigned = "OrderUnassigned"
	OrderStarted    = "OrderStarted"
	OrderCompleted  = "OrderCompleted"
	OrderCancelled  = "OrderCancelled"
	StockLow        = "StockLow"
)

const Version = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id or item id
	Payload       json.RawMessage `json:"payload"`
}

// New wraps payload in a v1 envelope.
func New(eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  Version,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

type Line struct {
	ItemID      string          `json:"item_id"`
	Qty         int             `json:"qty"`
	PriceAtTime decimal.Decimal `json:"price_at_time"`
}

// OrderPayload is shared by every order lifecycle event.
type OrderPayload struct {
	OrderID    string     `json:"order_id"`
	CustomerID string     `json:"customer_id"`
	Status     string     `json:"status"`
	AssignedTo string     `json:"assigned_to,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
	Lines      []Line     `json:"lines,omitempty"`
}

type StockLowPayload struct {
	ItemID            string `json:"item_id"`
	Name              string `json:"name"`
	Quantity          int    `json:"quantity"`
	ReservedQuantity  int    `json:"reserved_quantity"`
	AvailableQuantity int    `json:"available_quantity"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	OrderID           string `json:"order_id,omitempty"`
}

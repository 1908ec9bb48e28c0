package models

import "time"

// Event types
const (
	EventTypeOrderPaid        = "ORDER_PAID"
	EventTypeSettlementFailed = "SETTLEMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPaidEvent is published after an order transitions to PAID. The
// notification worker turns it into a buyer-facing confirmation; delivery is
// best-effort and never affects settlement.
type OrderPaidEvent struct {
	BaseEvent
	OrderID          int64  `json:"order_id"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	CourseID         int64  `json:"course_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	ManualOverride   bool   `json:"manual_override,omitempty"`
}

// SettlementFailedEvent is published when a settlement attempt fails after
// signature verification, for operator follow-up.
type SettlementFailedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

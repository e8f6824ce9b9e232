package models

import "time"

// Metadata keys attached to every checkout session.
const (
	MetadataOrderID = "order_id"
	MetadataEventID = "event_id"
	MetadataDays    = "days"
)

// CheckoutSessionRequest is what the promotion service asks the payment gateway for.
type CheckoutSessionRequest struct {
	OrderID       string
	Amount        int64
	Currency      string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	ProductName   string
	Description   string
	ExpiresAt     time.Time
	Metadata      map[string]string
}

// CheckoutSession is the gateway's answer: where to send the payer and how to correlate the
// completion notification later.
type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// GatewayEvent is a verified notification from the payment gateway. The concrete types below
// are the only implementations.
type GatewayEvent interface {
	gatewayEvent()
}

// PaymentCompleted means the money for a checkout session has been collected.
type PaymentCompleted struct {
	GatewayEventID string
	SessionID      string
	Metadata       map[string]string
}

// PaymentPending is a completed checkout whose asynchronous payment has not settled yet.
type PaymentPending struct {
	GatewayEventID string
	SessionID      string
}

// CheckoutExpired is a checkout session the payer never finished.
type CheckoutExpired struct {
	GatewayEventID string
	SessionID      string
}

// UnhandledEvent is any other gateway notification type.
type UnhandledEvent struct {
	GatewayEventID string
	Type           string
}

func (PaymentCompleted) gatewayEvent() {}
func (PaymentPending) gatewayEvent()   {}
func (CheckoutExpired) gatewayEvent()  {}
func (UnhandledEvent) gatewayEvent()   {}

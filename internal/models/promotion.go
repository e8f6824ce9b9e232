package models

import "time"

type CheckoutRequest struct {
	EventID string `json:"event_id"`
	Days    int    `json:"days"`
}

type CheckoutResponse struct {
	OrderID     string `json:"order_id"`
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

type PriceTier struct {
	Days     int    `json:"days"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// PromotionStatusUpdate is pushed to status stream subscribers of an event.
type PromotionStatusUpdate struct {
	EventID      string     `json:"event_id"`
	OrderID      string     `json:"order_id,omitempty"`
	Status       string     `json:"status"`
	IsPremium    bool       `json:"is_premium"`
	PremiumUntil *time.Time `json:"premium_until,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

const (
	PromotionStatusActivated = "activated"
	PromotionStatusExpired   = "expired"
)

// PromotionNotification is the message body consumed by the email worker.
type PromotionNotification struct {
	Type         string     `json:"type"`
	UserID       string     `json:"user_id,omitempty"`
	Email        string     `json:"email,omitempty"`
	Username     string     `json:"username,omitempty"`
	EventID      string     `json:"event_id"`
	EventTitle   string     `json:"event_title"`
	PremiumUntil *time.Time `json:"premium_until,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// OrderCreatedMessage is published when a checkout is started.
type OrderCreatedMessage struct {
	OrderID       string    `json:"order_id"`
	EventID       string    `json:"event_id"`
	UserID        string    `json:"user_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	PromotionDays int       `json:"promotion_days"`
	CreatedAt     time.Time `json:"created_at"`
}

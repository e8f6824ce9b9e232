package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "PENDING"
	OrderStatusPaid    OrderStatus = "PAID"
)

// PromotionOrder is a purchase intent for a premium placement. It references its payer and
// event by id only.
type PromotionOrder struct {
	bun.BaseModel `bun:"table:promotion_orders"`

	ID               string      `bun:"id,pk" json:"id"`
	UserID           string      `bun:"user_id,notnull" json:"user_id"`
	EventID          string      `bun:"event_id,notnull" json:"event_id"`
	Amount           int64       `bun:"amount,notnull" json:"amount"`
	Currency         string      `bun:"currency,notnull" json:"currency"`
	PromotionDays    int         `bun:"promotion_days,notnull" json:"promotion_days"`
	GatewaySessionID string      `bun:"gateway_session_id,nullzero" json:"gateway_session_id,omitempty"`
	Status           OrderStatus `bun:"status,notnull" json:"status"`
	CreatedAt        time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time   `bun:"updated_at,notnull" json:"updated_at"`
}

func (o *PromotionOrder) IsPaid() bool {
	return o.Status == OrderStatusPaid
}

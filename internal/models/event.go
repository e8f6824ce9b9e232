package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EventStatus string

const (
	EventStatusPending  EventStatus = "PENDING"
	EventStatusApproved EventStatus = "APPROVED"
	EventStatusRejected EventStatus = "REJECTED"
)

// Event is the promotion-relevant slice of a published event. Moderation owns Status;
// only payment activation and the expiry sweep write the premium columns.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID           string      `bun:"id,pk" json:"id"`
	OwnerID      string      `bun:"owner_id,notnull" json:"owner_id"`
	Title        string      `bun:"title,notnull" json:"title"`
	Status       EventStatus `bun:"status,notnull" json:"status"`
	IsPremium    bool        `bun:"is_premium,notnull,default:false" json:"is_premium"`
	PremiumUntil *time.Time  `bun:"premium_until" json:"premium_until,omitempty"`
	UpdatedAt    time.Time   `bun:"updated_at,nullzero" json:"updated_at"`
}

// PremiumExpiredAt reports whether the premium window has elapsed at now.
func (e *Event) PremiumExpiredAt(now time.Time) bool {
	return e.IsPremium && e.PremiumUntil != nil && e.PremiumUntil.Before(now)
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-promotion/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, models.ErrRecordNotFound)
	}
	return err
}

// ---------------- USERS / EVENTS ----------------

func (d *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

func (d *DB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "event", id)
	}
	return &event, nil
}

// ---------------- ORDERS ----------------

func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.PromotionOrder, error) {
	var order models.PromotionOrder
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return &order, nil
}

func (d *DB) GetOrderBySessionID(ctx context.Context, sessionID string) (*models.PromotionOrder, error) {
	var order models.PromotionOrder
	err := d.Bun.NewSelect().
		Model(&order).
		Where("gateway_session_id = ?", sessionID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "order for session", sessionID)
	}
	return &order, nil
}

// ReplacePendingOrder deletes every PENDING order of the event and inserts order in the same
// transaction. Returns the superseded orders so their checkout sessions can be closed.
func (d *DB) ReplacePendingOrder(ctx context.Context, order *models.PromotionOrder) ([]models.PromotionOrder, error) {
	var superseded []models.PromotionOrder
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		superseded = nil
		err := tx.NewSelect().
			Model(&superseded).
			Where("event_id = ?", order.EventID).
			Where("status = ?", models.OrderStatusPending).
			Scan(ctx)
		if err != nil {
			return fmt.Errorf("load pending orders: %w", err)
		}

		_, err = tx.NewDelete().
			Model((*models.PromotionOrder)(nil)).
			Where("event_id = ?", order.EventID).
			Where("status = ?", models.OrderStatusPending).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete pending orders: %w", err)
		}

		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return superseded, nil
}

// SetGatewaySessionID records the checkout session on an order. An order already bound to a
// different session is left alone and reported as not found.
func (d *DB) SetGatewaySessionID(ctx context.Context, orderID, sessionID string, now time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.PromotionOrder)(nil)).
		Set("gateway_session_id = ?", sessionID).
		Set("updated_at = ?", now).
		Where("id = ?", orderID).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Where("gateway_session_id IS NULL").WhereOr("gateway_session_id = ?", sessionID)
		}).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("order %s without session: %w", orderID, models.ErrRecordNotFound)
	}
	return nil
}

// UpdateStatusIfEquals moves an order from expected to next. It reports false when the order
// was not in the expected status, so two concurrent callers never both win.
func (d *DB) UpdateStatusIfEquals(ctx context.Context, orderID string, expected, next models.OrderStatus, now time.Time) (bool, error) {
	return updateStatusIfEquals(ctx, d.Bun, orderID, expected, next, now)
}

func updateStatusIfEquals(ctx context.Context, idb bun.IDB, orderID string, expected, next models.OrderStatus, now time.Time) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.PromotionOrder)(nil)).
		Set("status = ?", next).
		Set("updated_at = ?", now).
		Where("id = ?", orderID).
		Where("status = ?", expected).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CompletePayment marks the order PAID and opens the event's premium window in one
// transaction. It returns false without touching the event when the order is no longer PENDING.
func (d *DB) CompletePayment(ctx context.Context, order *models.PromotionOrder, sessionID string, premiumUntil, now time.Time) (bool, error) {
	applied := false
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ok, err := updateStatusIfEquals(ctx, tx, order.ID, models.OrderStatusPending, models.OrderStatusPaid, now)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		if !ok {
			return nil
		}

		if order.GatewaySessionID == "" && sessionID != "" {
			_, err := tx.NewUpdate().
				Model((*models.PromotionOrder)(nil)).
				Set("gateway_session_id = ?", sessionID).
				Where("id = ?", order.ID).
				Where("gateway_session_id IS NULL").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("attach session: %w", err)
			}
		}

		res, err := tx.NewUpdate().
			Model((*models.Event)(nil)).
			Set("is_premium = ?", true).
			Set("premium_until = ?", premiumUntil).
			Set("updated_at = ?", now).
			Where("id = ?", order.EventID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("activate premium: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("event %s: %w", order.EventID, models.ErrRecordNotFound)
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// DeleteStalePendingOrders removes PENDING orders created before cutoff.
func (d *DB) DeleteStalePendingOrders(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.PromotionOrder)(nil)).
		Where("status = ?", models.OrderStatusPending).
		Where("created_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ---------------- PREMIUM WINDOWS ----------------

func (d *DB) ListExpiredPremiumEvents(ctx context.Context, now time.Time) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("is_premium = ?", true).
		Where("premium_until IS NOT NULL").
		Where("premium_until < ?", now).
		OrderExpr("premium_until ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// RevokePremium clears the premium flag only if the window read by the caller is still the
// stored one and has elapsed at now. A concurrent re-activation makes it report false.
func (d *DB) RevokePremium(ctx context.Context, eventID string, premiumUntil, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("is_premium = ?", false).
		Set("premium_until = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", eventID).
		Where("is_premium = ?", true).
		Where("premium_until = ?", premiumUntil).
		Where("premium_until < ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

package promotion

import (
	"context"
	"errors"
	"fmt"

	"ms-promotion/internal/models"
)

// HandleGatewayEvent dispatches a verified gateway notification. Only PaymentCompleted changes
// state; the other variants are logged and acknowledged.
func (s *PromotionService) HandleGatewayEvent(ctx context.Context, evt models.GatewayEvent) error {
	switch e := evt.(type) {
	case models.PaymentCompleted:
		return s.OnPaymentCompleted(ctx, e.SessionID, e.Metadata)
	case models.PaymentPending:
		s.logger.Info("WEBHOOK", fmt.Sprintf("Checkout %s completed, payment not settled yet (event %s)", e.SessionID, e.GatewayEventID))
	case models.CheckoutExpired:
		s.logger.Info("WEBHOOK", fmt.Sprintf("Checkout %s expired unpaid (event %s)", e.SessionID, e.GatewayEventID))
	case models.UnhandledEvent:
		s.logger.Debug("WEBHOOK", fmt.Sprintf("Ignoring gateway event %s of type %s", e.GatewayEventID, e.Type))
	default:
		s.logger.Warn("WEBHOOK", fmt.Sprintf("Ignoring unknown gateway event %T", evt))
	}
	return nil
}

// OnPaymentCompleted marks the order behind sessionID as PAID and opens the event's premium
// window, counted from now. Replays and unknown sessions return nil; a payment for an unknown
// session is logged at ERROR since it has to be refunded by hand. Only store failures are
// returned, wrapped in ErrTransient, and the call is safe to repeat.
func (s *PromotionService) OnPaymentCompleted(ctx context.Context, sessionID string, metadata map[string]string) error {
	order, err := s.resolveOrder(ctx, sessionID, metadata)
	if err != nil {
		return fmt.Errorf("%w: resolve order: %w", ErrTransient, err)
	}
	if order == nil {
		// Typically a superseded order whose session could not be expired. Money was taken.
		s.logger.Error("WEBHOOK", fmt.Sprintf("Payment for session %s matches no open order (order %q, event %q), refund required",
			sessionID, metadata[models.MetadataOrderID], metadata[models.MetadataEventID]))
		return nil
	}
	if order.IsPaid() {
		s.logger.LogPromotion("REPLAY", order.ID, "already paid, ignoring duplicate notification")
		return nil
	}

	now := s.now()
	premiumUntil := now.AddDate(0, 0, order.PromotionDays)

	applied, err := s.DB.CompletePayment(ctx, order, sessionID, premiumUntil, now)
	if errors.Is(err, models.ErrRecordNotFound) {
		s.logger.Error("WEBHOOK", fmt.Sprintf("Order %s paid via session %s but event %s is gone: %v", order.ID, sessionID, order.EventID, err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: complete payment: %w", ErrTransient, err)
	}
	if !applied {
		s.logger.LogPromotion("REPLAY", order.ID, "completed by a concurrent delivery")
		return nil
	}
	s.logger.LogPromotion("PAID", order.ID, fmt.Sprintf("event %s premium until %s", order.EventID, premiumUntil.Format("2006-01-02T15:04:05Z07:00")))

	s.Status.Broadcast(models.PromotionStatusUpdate{
		EventID:      order.EventID,
		OrderID:      order.ID,
		Status:       models.PromotionStatusActivated,
		IsPremium:    true,
		PremiumUntil: &premiumUntil,
		Timestamp:    now,
	})
	s.notifyActivated(ctx, order)
	return nil
}

// resolveOrder looks the order up by session id and falls back to the order id in the session
// metadata, for notifications that arrive before the session id was stored. A nil order with a
// nil error means the notification belongs to no known order.
func (s *PromotionService) resolveOrder(ctx context.Context, sessionID string, metadata map[string]string) (*models.PromotionOrder, error) {
	order, err := s.DB.GetOrderBySessionID(ctx, sessionID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, models.ErrRecordNotFound) {
		return nil, err
	}

	orderID := metadata[models.MetadataOrderID]
	if orderID == "" {
		return nil, nil
	}
	order, err = s.DB.GetOrderByID(ctx, orderID)
	if errors.Is(err, models.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if order.GatewaySessionID != "" && order.GatewaySessionID != sessionID {
		s.logger.LogSecurity("SESSION_MISMATCH", fmt.Sprintf("order %s belongs to session %s, notification carried %s", order.ID, order.GatewaySessionID, sessionID))
		return nil, nil
	}
	return order, nil
}

func (s *PromotionService) notifyActivated(ctx context.Context, order *models.PromotionOrder) {
	user, err := s.DB.GetUserByID(ctx, order.UserID)
	if err != nil {
		s.logger.Warn("NOTIFY", fmt.Sprintf("Skipping activation notice for order %s: %v", order.ID, err))
		return
	}
	event, err := s.DB.GetEventByID(ctx, order.EventID)
	if err != nil {
		s.logger.Warn("NOTIFY", fmt.Sprintf("Skipping activation notice for order %s: %v", order.ID, err))
		return
	}
	notifyCtx, cancel := s.notifyContext(ctx)
	defer cancel()
	if err := s.Notifier.SendPromotionActivated(notifyCtx, *user, *event); err != nil {
		s.logger.Warn("NOTIFY", fmt.Sprintf("Activation notice for order %s failed: %v", order.ID, err))
	}
}

package promotion

import (
	"context"
	"fmt"
	"time"

	"ms-promotion/internal/models"
)

// staleOrderGrace is added to the pending order TTL so that a session the gateway is still
// honouring is never reaped.
const staleOrderGrace = time.Hour

// Sweep revokes every premium window that has elapsed and returns how many were revoked.
// Each revocation is conditional on the window read, so a concurrent re-activation or a second
// sweep is never undone. A failed revocation is logged and retried by the next run.
func (s *PromotionService) Sweep(ctx context.Context) (int, error) {
	events, err := s.DB.ListExpiredPremiumEvents(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: list expired premium events: %w", ErrTransient, err)
	}

	revoked := 0
	var firstErr error
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("SWEEPER", fmt.Sprintf("Interrupted after %d of %d events", revoked, len(events)))
			return revoked, err
		}
		now := s.now()
		if !event.PremiumExpiredAt(now) {
			s.logger.Debug("SWEEPER", fmt.Sprintf("Event %s is not expired at %s, skipped", event.ID, now.Format(time.RFC3339)))
			continue
		}

		ok, err := s.DB.RevokePremium(ctx, event.ID, *event.PremiumUntil, now)
		if err != nil {
			s.logger.Error("SWEEPER", fmt.Sprintf("Failed to revoke premium for event %s: %v", event.ID, err))
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: revoke premium: %w", ErrTransient, err)
			}
			continue
		}
		if !ok {
			s.logger.Debug("SWEEPER", fmt.Sprintf("Event %s changed since read, skipped", event.ID))
			continue
		}
		revoked++

		event.IsPremium = false
		event.PremiumUntil = nil
		s.Status.Broadcast(models.PromotionStatusUpdate{
			EventID:   event.ID,
			Status:    models.PromotionStatusExpired,
			IsPremium: false,
			Timestamp: now,
		})
		notifyCtx, cancel := s.notifyContext(ctx)
		if err := s.Notifier.SendPromotionExpired(notifyCtx, event); err != nil {
			s.logger.Warn("NOTIFY", fmt.Sprintf("Expiry notice for event %s failed: %v", event.ID, err))
		}
		cancel()
	}

	s.logger.Info("SWEEPER", fmt.Sprintf("Revoked %d of %d expired premium windows", revoked, len(events)))
	return revoked, firstErr
}

// SweepStaleOrders deletes PENDING orders older than the pending order TTL plus a grace period.
// Their checkout sessions have expired at the gateway, so they can no longer be paid.
func (s *PromotionService) SweepStaleOrders(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-(s.opts.PendingOrderTTL + staleOrderGrace))
	deleted, err := s.DB.DeleteStalePendingOrders(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: delete stale orders: %w", ErrTransient, err)
	}
	if deleted > 0 {
		s.logger.Info("SWEEPER", fmt.Sprintf("Deleted %d stale pending orders created before %s", deleted, cutoff.Format(time.RFC3339)))
	}
	return deleted, nil
}

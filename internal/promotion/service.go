package promotion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ms-promotion/internal/logger"
	"ms-promotion/internal/models"

	"github.com/google/uuid"
)

// maxSessionLifetime is the longest checkout session the gateway accepts.
const maxSessionLifetime = 24 * time.Hour

const notifyTimeout = 5 * time.Second

type DBLayer interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	GetOrderByID(ctx context.Context, id string) (*models.PromotionOrder, error)
	GetOrderBySessionID(ctx context.Context, sessionID string) (*models.PromotionOrder, error)
	ReplacePendingOrder(ctx context.Context, order *models.PromotionOrder) ([]models.PromotionOrder, error)
	SetGatewaySessionID(ctx context.Context, orderID, sessionID string, now time.Time) error
	CompletePayment(ctx context.Context, order *models.PromotionOrder, sessionID string, premiumUntil, now time.Time) (bool, error)
	ListExpiredPremiumEvents(ctx context.Context, now time.Time) ([]models.Event, error)
	RevokePremium(ctx context.Context, eventID string, premiumUntil, now time.Time) (bool, error)
	DeleteStalePendingOrders(ctx context.Context, cutoff time.Time) (int, error)
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req models.CheckoutSessionRequest) (*models.CheckoutSession, error)
}

// SessionExpirer is implemented by gateways that can invalidate an open checkout session.
type SessionExpirer interface {
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
}

type EventLocker interface {
	LockEvent(ctx context.Context, eventID, token string) (bool, error)
	UnlockEvent(ctx context.Context, eventID, token string) error
}

type Notifier interface {
	SendPromotionActivated(ctx context.Context, user models.User, event models.Event) error
	SendPromotionExpired(ctx context.Context, event models.Event) error
	PublishOrderCreated(ctx context.Context, order models.PromotionOrder) error
}

type StatusBroadcaster interface {
	Broadcast(update models.PromotionStatusUpdate)
}

type Options struct {
	Currency        string
	SuccessURL      string
	CancelURL       string
	GatewayTimeout  time.Duration
	PendingOrderTTL time.Duration
}

type PromotionService struct {
	DB       DBLayer
	Gateway  PaymentGateway
	Locker   EventLocker
	Notifier Notifier
	Status   StatusBroadcaster
	Pricing  PricingTable

	opts   Options
	logger *logger.Logger
	now    func() time.Time
}

// NewPromotionService wires the service. Locker, notifier and broadcaster may be nil, in which
// case the corresponding step is skipped.
func NewPromotionService(db DBLayer, gateway PaymentGateway, locker EventLocker, notifier Notifier, status StatusBroadcaster, pricing PricingTable, opts Options, log *logger.Logger) *PromotionService {
	if locker == nil {
		locker = noopLocker{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if status == nil {
		status = noopBroadcaster{}
	}
	if log == nil {
		log = logger.New(nil)
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 10 * time.Second
	}
	if opts.PendingOrderTTL <= 0 {
		opts.PendingOrderTTL = maxSessionLifetime
	}
	return &PromotionService{
		DB:       db,
		Gateway:  gateway,
		Locker:   locker,
		Notifier: notifier,
		Status:   status,
		Pricing:  pricing,
		opts:     opts,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Tests only.
func (s *PromotionService) WithClock(now func() time.Time) *PromotionService {
	s.now = now
	return s
}

// ---------------- INITIATE ----------------

// placedOrder is an order committed during checkout together with the pending orders it replaced.
type placedOrder struct {
	order      models.PromotionOrder
	superseded []models.PromotionOrder
}

// Initiate starts a premium purchase for eventID on behalf of payerID. Any earlier unpaid order
// for the event is superseded and its checkout session expired. The order row is committed before
// the gateway is called, so a gateway failure leaves it PENDING until the next attempt or the
// stale order sweep removes it. Broker publishing and session expiry run after the event lock is
// released.
func (s *PromotionService) Initiate(ctx context.Context, eventID string, days int, payerID string) (*models.CheckoutResponse, error) {
	payer, err := s.DB.GetUserByID(ctx, payerID)
	if err != nil {
		return nil, storeError(err, "load payer")
	}

	token := uuid.New().String()
	locked, err := s.Locker.LockEvent(ctx, eventID, token)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire promotion lock: %w", ErrTransient, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: promotion checkout already in progress", ErrInvalidState)
	}

	resp, placed, err := s.checkout(ctx, payer, eventID, days)

	if unlockErr := s.Locker.UnlockEvent(context.WithoutCancel(ctx), eventID, token); unlockErr != nil {
		s.logger.Warn("PROMOTION", fmt.Sprintf("Failed to release lock for event %s: %v", eventID, unlockErr))
	}
	if placed != nil {
		s.afterCheckout(ctx, placed)
	}
	return resp, err
}

// checkout runs under the event lock. A non-nil placedOrder is returned whenever the order row
// was committed, including when the gateway call failed afterwards.
func (s *PromotionService) checkout(ctx context.Context, payer *models.User, eventID string, days int) (*models.CheckoutResponse, *placedOrder, error) {
	event, err := s.DB.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, nil, storeError(err, "load event")
	}
	if event.Status != models.EventStatusApproved {
		return nil, nil, fmt.Errorf("%w: event %s is not approved for promotion", ErrInvalidState, eventID)
	}
	if event.IsPremium {
		return nil, nil, fmt.Errorf("%w: event %s is already promoted", ErrInvalidState, eventID)
	}

	amount, ok := s.Pricing.Price(days)
	if !ok {
		return nil, nil, fmt.Errorf("%w: no promotion tier for %d days", ErrInvalidArgument, days)
	}

	now := s.now()
	order := &models.PromotionOrder{
		ID:            uuid.New().String(),
		UserID:        payer.ID,
		EventID:       event.ID,
		Amount:        amount,
		Currency:      s.opts.Currency,
		PromotionDays: days,
		Status:        models.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	superseded, err := s.DB.ReplacePendingOrder(ctx, order)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: create order: %w", ErrTransient, err)
	}
	if len(superseded) > 0 {
		s.logger.LogPromotion("SUPERSEDE", order.ID, fmt.Sprintf("replaced %d pending order(s) for event %s", len(superseded), event.ID))
	}
	s.logger.LogPromotion("CREATE", order.ID, fmt.Sprintf("event=%s days=%d amount=%d %s", event.ID, days, amount, order.Currency))
	placed := &placedOrder{order: *order, superseded: superseded}

	gwCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()

	session, err := s.Gateway.CreateCheckoutSession(gwCtx, s.checkoutRequest(order, payer, event, now))
	if err != nil {
		s.logger.Error("PROMOTION", fmt.Sprintf("Checkout session for order %s failed, order left pending: %v", order.ID, err))
		return nil, placed, fmt.Errorf("%w: payment gateway: %w", ErrTransient, err)
	}

	// The webhook can still resolve the order through its metadata if this write fails.
	if err := s.DB.SetGatewaySessionID(ctx, order.ID, session.SessionID, s.now()); err != nil {
		s.logger.Error("PROMOTION", fmt.Sprintf("Failed to store session %s on order %s: %v", session.SessionID, order.ID, err))
		return nil, placed, fmt.Errorf("%w: store session id: %w", ErrTransient, err)
	}
	placed.order.GatewaySessionID = session.SessionID
	s.logger.LogPromotion("CHECKOUT", order.ID, "session "+session.SessionID)

	return &models.CheckoutResponse{
		OrderID:     order.ID,
		SessionID:   session.SessionID,
		RedirectURL: session.RedirectURL,
	}, placed, nil
}

// afterCheckout expires the sessions of superseded orders and announces the new order. Failures
// are logged only; the checkout itself has already been committed.
func (s *PromotionService) afterCheckout(ctx context.Context, placed *placedOrder) {
	if expirer, ok := s.Gateway.(SessionExpirer); ok {
		for _, old := range placed.superseded {
			if old.GatewaySessionID == "" {
				continue
			}
			expCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
			err := expirer.ExpireCheckoutSession(expCtx, old.GatewaySessionID)
			cancel()
			if err != nil {
				s.logger.Error("PROMOTION", fmt.Sprintf("Superseded session %s of order %s is still payable: %v", old.GatewaySessionID, old.ID, err))
			}
		}
	}

	pubCtx, cancel := s.notifyContext(ctx)
	defer cancel()
	if err := s.Notifier.PublishOrderCreated(pubCtx, placed.order); err != nil {
		s.logger.Warn("PROMOTION", fmt.Sprintf("Failed to publish order created for %s: %v", placed.order.ID, err))
	}
}

// notifyContext bounds a notification call so a slow broker or mail server cannot hold up the caller.
func (s *PromotionService) notifyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
}

func (s *PromotionService) checkoutRequest(order *models.PromotionOrder, payer *models.User, event *models.Event, now time.Time) models.CheckoutSessionRequest {
	lifetime := s.opts.PendingOrderTTL
	if lifetime > maxSessionLifetime {
		lifetime = maxSessionLifetime
	}
	return models.CheckoutSessionRequest{
		OrderID:       order.ID,
		Amount:        order.Amount,
		Currency:      order.Currency,
		SuccessURL:    s.opts.SuccessURL,
		CancelURL:     s.opts.CancelURL,
		CustomerEmail: payer.Email,
		ProductName:   "Promotion for: " + event.Title,
		Description:   fmt.Sprintf("%d days of premium placement", order.PromotionDays),
		ExpiresAt:     now.Add(lifetime),
		Metadata: map[string]string{
			models.MetadataOrderID: order.ID,
			models.MetadataEventID: event.ID,
			models.MetadataDays:    strconv.Itoa(order.PromotionDays),
		},
	}
}

// GetOrder returns an order visible to payerID. Orders of other users are reported as missing.
func (s *PromotionService) GetOrder(ctx context.Context, orderID, payerID string) (*models.PromotionOrder, error) {
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, storeError(err, "load order")
	}
	if order.UserID != payerID {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return order, nil
}

// GetEvent returns the promotion view of an event.
func (s *PromotionService) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	event, err := s.DB.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, storeError(err, "load event")
	}
	return event, nil
}

func (s *PromotionService) Tiers() []models.PriceTier {
	return s.Pricing.Tiers(s.opts.Currency)
}

// storeError maps a store failure onto the service taxonomy.
func storeError(err error, op string) error {
	if errors.Is(err, models.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransient, op, err)
}

type noopLocker struct{}

func (noopLocker) LockEvent(context.Context, string, string) (bool, error) { return true, nil }
func (noopLocker) UnlockEvent(context.Context, string, string) error        { return nil }

type noopNotifier struct{}

func (noopNotifier) SendPromotionActivated(context.Context, models.User, models.Event) error {
	return nil
}
func (noopNotifier) SendPromotionExpired(context.Context, models.Event) error         { return nil }
func (noopNotifier) PublishOrderCreated(context.Context, models.PromotionOrder) error { return nil }

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(models.PromotionStatusUpdate) {}

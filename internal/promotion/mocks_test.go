package promotion_test

import (
	"bytes"
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"ms-promotion/internal/logger"
	"ms-promotion/internal/models"
	"ms-promotion/internal/promotion"
	"ms-promotion/internal/promotion/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

// Mock implementations
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, req models.CheckoutSessionRequest) (*models.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckoutSession), args.Error(1)
}

func (m *MockGateway) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) LockEvent(ctx context.Context, eventID, token string) (bool, error) {
	args := m.Called(ctx, eventID, token)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) UnlockEvent(ctx context.Context, eventID, token string) error {
	args := m.Called(ctx, eventID, token)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendPromotionActivated(ctx context.Context, user models.User, event models.Event) error {
	args := m.Called(ctx, user, event)
	return args.Error(0)
}

func (m *MockNotifier) SendPromotionExpired(ctx context.Context, event models.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockNotifier) PublishOrderCreated(ctx context.Context, order models.PromotionOrder) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

// MockDBLayer is used where a store failure has to be injected.
type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDBLayer) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockDBLayer) GetOrderByID(ctx context.Context, id string) (*models.PromotionOrder, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PromotionOrder), args.Error(1)
}

func (m *MockDBLayer) GetOrderBySessionID(ctx context.Context, sessionID string) (*models.PromotionOrder, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PromotionOrder), args.Error(1)
}

func (m *MockDBLayer) ReplacePendingOrder(ctx context.Context, order *models.PromotionOrder) ([]models.PromotionOrder, error) {
	args := m.Called(ctx, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PromotionOrder), args.Error(1)
}

func (m *MockDBLayer) SetGatewaySessionID(ctx context.Context, orderID, sessionID string, now time.Time) error {
	args := m.Called(ctx, orderID, sessionID, now)
	return args.Error(0)
}

func (m *MockDBLayer) CompletePayment(ctx context.Context, order *models.PromotionOrder, sessionID string, premiumUntil, now time.Time) (bool, error) {
	args := m.Called(ctx, order, sessionID, premiumUntil, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) ListExpiredPremiumEvents(ctx context.Context, now time.Time) ([]models.Event, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockDBLayer) RevokePremium(ctx context.Context, eventID string, premiumUntil, now time.Time) (bool, error) {
	args := m.Called(ctx, eventID, premiumUntil, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) DeleteStalePendingOrders(ctx context.Context, cutoff time.Time) (int, error) {
	args := m.Called(ctx, cutoff)
	return args.Int(0), args.Error(1)
}

// gatewayFunc adapts a function to promotion.PaymentGateway.
type gatewayFunc func(ctx context.Context, req models.CheckoutSessionRequest) (*models.CheckoutSession, error)

func (f gatewayFunc) CreateCheckoutSession(ctx context.Context, req models.CheckoutSessionRequest) (*models.CheckoutSession, error) {
	return f(ctx, req)
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	updates []models.PromotionStatusUpdate
}

func (b *recordingBroadcaster) Broadcast(update models.PromotionStatusUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, update)
}

func (b *recordingBroadcaster) all() []models.PromotionStatusUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.PromotionStatusUpdate(nil), b.updates...)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var startTime = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

var testOptions = promotion.Options{
	Currency:        "eur",
	SuccessURL:      "https://events.example/payment-success",
	CancelURL:       "https://events.example/payment-cancel",
	GatewayTimeout:  time.Second,
	PendingOrderTTL: 24 * time.Hour,
}

type fixture struct {
	svc      *promotion.PromotionService
	store    *db.DB
	bun      *bun.DB
	gateway  *MockGateway
	notifier *MockNotifier
	status   *recordingBroadcaster
	clock    *testClock
	logs     *bytes.Buffer
	user     models.User
	event    models.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, db.CreateSchema(context.Background(), bunDB))

	f := &fixture{
		store:    db.New(bunDB),
		bun:      bunDB,
		gateway:  new(MockGateway),
		notifier: new(MockNotifier),
		status:   &recordingBroadcaster{},
		clock:    &testClock{now: startTime},
		logs:     &bytes.Buffer{},
		user:     models.User{ID: "user-1", Username: "anna", Email: "anna@example.com"},
	}
	f.event = f.seedEvent(t, models.EventStatusApproved, nil)

	_, err = bunDB.NewInsert().Model(&f.user).Exec(context.Background())
	require.NoError(t, err)

	f.notifier.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.gateway.On("ExpireCheckoutSession", mock.Anything, mock.Anything).Return(nil).Maybe()

	f.svc = promotion.NewPromotionService(
		f.store, f.gateway, nil, f.notifier, f.status,
		promotion.DefaultPricingTable(), testOptions, logger.New(f.logs),
	).WithClock(f.clock.Now)
	return f
}

func (f *fixture) seedEvent(t *testing.T, status models.EventStatus, premiumUntil *time.Time) models.Event {
	t.Helper()
	event := models.Event{
		ID:           uuid.New().String(),
		OwnerID:      "user-1",
		Title:        "Altstadtfest",
		Status:       status,
		IsPremium:    premiumUntil != nil,
		PremiumUntil: premiumUntil,
		UpdatedAt:    startTime,
	}
	_, err := f.bun.NewInsert().Model(&event).Exec(context.Background())
	require.NoError(t, err)
	return event
}

func (f *fixture) expectSession(sessionID string) {
	f.gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(&models.CheckoutSession{SessionID: sessionID, RedirectURL: "https://checkout.example/" + sessionID}, nil).
		Once()
}

func (f *fixture) pendingOrders(t *testing.T, eventID string) []models.PromotionOrder {
	t.Helper()
	var orders []models.PromotionOrder
	err := f.bun.NewSelect().Model(&orders).
		Where("event_id = ?", eventID).
		Where("status = ?", models.OrderStatusPending).
		Scan(context.Background())
	require.NoError(t, err)
	return orders
}

func (f *fixture) reloadEvent(t *testing.T, id string) *models.Event {
	t.Helper()
	event, err := f.store.GetEventByID(context.Background(), id)
	require.NoError(t, err)
	return event
}

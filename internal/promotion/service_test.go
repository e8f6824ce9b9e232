package promotion_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ms-promotion/internal/logger"
	"ms-promotion/internal/models"
	"ms-promotion/internal/promotion"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestInitiateCreatesPendingOrderAndSession(t *testing.T) {
	f := newFixture(t)

	var captured models.CheckoutSessionRequest
	f.gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(models.CheckoutSessionRequest) }).
		Return(&models.CheckoutSession{SessionID: "cs_test_1", RedirectURL: "https://checkout.example/cs_test_1"}, nil).
		Once()

	resp, err := f.svc.Initiate(context.Background(), f.event.ID, 7, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", resp.SessionID)
	assert.Equal(t, "https://checkout.example/cs_test_1", resp.RedirectURL)

	orders := f.pendingOrders(t, f.event.ID)
	require.Len(t, orders, 1)
	order := orders[0]
	assert.Equal(t, resp.OrderID, order.ID)
	assert.Equal(t, int64(2000), order.Amount)
	assert.Equal(t, "eur", order.Currency)
	assert.Equal(t, 7, order.PromotionDays)
	assert.Equal(t, "cs_test_1", order.GatewaySessionID)
	assert.Equal(t, f.user.ID, order.UserID)

	assert.Equal(t, int64(2000), captured.Amount)
	assert.Equal(t, "eur", captured.Currency)
	assert.Equal(t, testOptions.SuccessURL, captured.SuccessURL)
	assert.Equal(t, testOptions.CancelURL, captured.CancelURL)
	assert.Equal(t, "anna@example.com", captured.CustomerEmail)
	assert.Equal(t, "Promotion for: Altstadtfest", captured.ProductName)
	assert.Equal(t, "7 days of premium placement", captured.Description)
	assert.Equal(t, startTime.Add(24*time.Hour), captured.ExpiresAt)
	assert.Equal(t, map[string]string{
		models.MetadataOrderID: order.ID,
		models.MetadataEventID: f.event.ID,
		models.MetadataDays:    "7",
	}, captured.Metadata)

	f.gateway.AssertExpectations(t)
}

func TestInitiateRejectsIneligibleEvents(t *testing.T) {
	f := newFixture(t)
	future := startTime.Add(72 * time.Hour)

	cases := []struct {
		name  string
		event models.Event
	}{
		{"pending moderation", f.seedEvent(t, models.EventStatusPending, nil)},
		{"rejected", f.seedEvent(t, models.EventStatusRejected, nil)},
		{"already premium", f.seedEvent(t, models.EventStatusApproved, &future)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Initiate(context.Background(), tc.event.ID, 7, f.user.ID)
			assert.ErrorIs(t, err, promotion.ErrInvalidState)
			assert.Empty(t, f.pendingOrders(t, tc.event.ID))
		})
	}

	f.gateway.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}

func TestInitiateUnknownTier(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Initiate(context.Background(), f.event.ID, 5, f.user.ID)
	assert.ErrorIs(t, err, promotion.ErrInvalidArgument)
	assert.Empty(t, f.pendingOrders(t, f.event.ID))
}

func TestInitiateMissingPayerOrEvent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Initiate(context.Background(), f.event.ID, 7, "nobody")
	assert.ErrorIs(t, err, promotion.ErrNotFound)

	_, err = f.svc.Initiate(context.Background(), "no-such-event", 7, f.user.ID)
	assert.ErrorIs(t, err, promotion.ErrNotFound)
}

func TestInitiateSupersedesPendingOrder(t *testing.T) {
	f := newFixture(t)
	f.expectSession("cs_first")
	f.expectSession("cs_second")

	first, err := f.svc.Initiate(context.Background(), f.event.ID, 3, f.user.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, err := f.svc.Initiate(context.Background(), f.event.ID, 14, f.user.ID)
	require.NoError(t, err)

	orders := f.pendingOrders(t, f.event.ID)
	require.Len(t, orders, 1)
	assert.Equal(t, second.OrderID, orders[0].ID)
	assert.Equal(t, int64(3000), orders[0].Amount)

	_, err = f.store.GetOrderByID(context.Background(), first.OrderID)
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
}

func TestInitiateExpiresSupersededSession(t *testing.T) {
	f := newFixture(t)
	f.expectSession("cs_old")
	f.expectSession("cs_new")

	_, err := f.svc.Initiate(context.Background(), f.event.ID, 3, f.user.ID)
	require.NoError(t, err)
	f.gateway.AssertNotCalled(t, "ExpireCheckoutSession", mock.Anything, mock.Anything)

	_, err = f.svc.Initiate(context.Background(), f.event.ID, 7, f.user.ID)
	require.NoError(t, err)

	f.gateway.AssertCalled(t, "ExpireCheckoutSession", mock.Anything, "cs_old")
	f.gateway.AssertNumberOfCalls(t, "ExpireCheckoutSession", 1)
}

func TestInitiateSurvivesSessionExpiryFailure(t *testing.T) {
	f := newFixture(t)
	gateway := new(MockGateway)
	gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(&models.CheckoutSession{SessionID: "cs_old"}, nil).Once()
	gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(&models.CheckoutSession{SessionID: "cs_new"}, nil).Once()
	gateway.On("ExpireCheckoutSession", mock.Anything, "cs_old").
		Return(errors.New("session already completed")).Once()

	var logs bytes.Buffer
	svc := promotion.NewPromotionService(f.store, gateway, nil, nil, nil, promotion.DefaultPricingTable(), testOptions, logger.New(&logs)).
		WithClock(f.clock.Now)

	_, err := svc.Initiate(context.Background(), f.event.ID, 3, f.user.ID)
	require.NoError(t, err)
	resp, err := svc.Initiate(context.Background(), f.event.ID, 7, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "cs_new", resp.SessionID)

	gateway.AssertExpectations(t)
	assert.Contains(t, logs.String(), "ERROR")
	assert.Contains(t, logs.String(), "cs_old")
}

func TestInitiatePublishesAfterLockRelease(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var calls []string
	record := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, name)
	}

	locker := new(MockLocker)
	locker.On("LockEvent", mock.Anything, f.event.ID, mock.Anything).
		Run(func(mock.Arguments) { record("lock") }).
		Return(true, nil).Once()
	locker.On("UnlockEvent", mock.Anything, f.event.ID, mock.Anything).
		Run(func(mock.Arguments) { record("unlock") }).
		Return(nil).Once()

	gateway := new(MockGateway)
	gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { record("gateway") }).
		Return(&models.CheckoutSession{SessionID: "cs_ordered"}, nil).Once()

	var published models.PromotionOrder
	var bounded bool
	notifier := new(MockNotifier)
	notifier.On("PublishOrderCreated", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			record("publish")
			_, bounded = args.Get(0).(context.Context).Deadline()
			published = args.Get(1).(models.PromotionOrder)
		}).
		Return(nil).Once()

	svc := promotion.NewPromotionService(f.store, gateway, locker, notifier, nil, promotion.DefaultPricingTable(), testOptions, logger.New(nil))

	resp, err := svc.Initiate(context.Background(), f.event.ID, 7, f.user.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"lock", "gateway", "unlock", "publish"}, calls)
	assert.True(t, bounded, "publish must run under a deadline")
	assert.Equal(t, resp.OrderID, published.ID)
	assert.Equal(t, "cs_ordered", published.GatewaySessionID)
}

func TestInitiateGatewayFailureLeavesPendingOrder(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(nil, errors.New("card network unavailable")).
		Once()

	_, err := f.svc.Initiate(context.Background(), f.event.ID, 7, f.user.ID)
	assert.ErrorIs(t, err, promotion.ErrTransient)

	orders := f.pendingOrders(t, f.event.ID)
	require.Len(t, orders, 1)
	assert.Empty(t, orders[0].GatewaySessionID)

	// the next attempt supersedes the orphan
	f.expectSession("cs_retry")
	resp, err := f.svc.Initiate(context.Background(), f.event.ID, 7, f.user.ID)
	require.NoError(t, err)

	orders = f.pendingOrders(t, f.event.ID)
	require.Len(t, orders, 1)
	assert.Equal(t, resp.OrderID, orders[0].ID)
}

func TestInitiateGatewayTimeoutIsTransient(t *testing.T) {
	f := newFixture(t)
	opts := testOptions
	opts.GatewayTimeout = 20 * time.Millisecond

	slow := gatewayFunc(func(ctx context.Context, _ models.CheckoutSessionRequest) (*models.CheckoutSession, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	svc := promotion.NewPromotionService(f.store, slow, nil, nil, nil, promotion.DefaultPricingTable(), opts, logger.New(nil)).
		WithClock(f.clock.Now)

	_, err := svc.Initiate(context.Background(), f.event.ID, 7, f.user.ID)
	assert.ErrorIs(t, err, promotion.ErrTransient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, f.pendingOrders(t, f.event.ID), 1)
}

func TestInitiateLockContention(t *testing.T) {
	f := newFixture(t)
	locker := new(MockLocker)
	locker.On("LockEvent", mock.Anything, f.event.ID, mock.Anything).Return(false, nil).Once()

	svc := promotion.NewPromotionService(f.store, f.gateway, locker, nil, nil, promotion.DefaultPricingTable(), testOptions, logger.New(nil))

	_, err := svc.Initiate(context.Background(), f.event.ID, 7, f.user.ID)
	assert.ErrorIs(t, err, promotion.ErrInvalidState)
	assert.Empty(t, f.pendingOrders(t, f.event.ID))
	locker.AssertNotCalled(t, "UnlockEvent", mock.Anything, mock.Anything, mock.Anything)
	f.gateway.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}

func TestInitiateReleasesLockWithSameToken(t *testing.T) {
	f := newFixture(t)
	f.expectSession("cs_locked")

	var token string
	locker := new(MockLocker)
	locker.On("LockEvent", mock.Anything, f.event.ID, mock.Anything).
		Run(func(args mock.Arguments) { token = args.String(2) }).
		Return(true, nil).Once()
	locker.On("UnlockEvent", mock.Anything, f.event.ID, mock.MatchedBy(func(got string) bool { return got == token })).
		Return(nil).Once()

	svc := promotion.NewPromotionService(f.store, f.gateway, locker, nil, nil, promotion.DefaultPricingTable(), testOptions, logger.New(nil))

	_, err := svc.Initiate(context.Background(), f.event.ID, 7, f.user.ID)
	require.NoError(t, err)
	locker.AssertExpectations(t)
}

func TestInitiateLockErrorIsTransient(t *testing.T) {
	f := newFixture(t)
	locker := new(MockLocker)
	locker.On("LockEvent", mock.Anything, f.event.ID, mock.Anything).Return(false, errors.New("redis down")).Once()

	svc := promotion.NewPromotionService(f.store, f.gateway, locker, nil, nil, promotion.DefaultPricingTable(), testOptions, logger.New(nil))

	_, err := svc.Initiate(context.Background(), f.event.ID, 7, f.user.ID)
	assert.ErrorIs(t, err, promotion.ErrTransient)
}

func TestInitiateStoreFailureIsTransient(t *testing.T) {
	store := new(MockDBLayer)
	store.On("GetUserByID", mock.Anything, "user-1").Return(nil, errors.New("connection reset")).Once()

	svc := promotion.NewPromotionService(store, new(MockGateway), nil, nil, nil, promotion.DefaultPricingTable(), testOptions, logger.New(nil))

	_, err := svc.Initiate(context.Background(), "event-1", 7, "user-1")
	assert.ErrorIs(t, err, promotion.ErrTransient)
	store.AssertExpectations(t)
}

func TestGetOrderHidesOtherUsersOrders(t *testing.T) {
	f := newFixture(t)
	f.expectSession("cs_owned")

	resp, err := f.svc.Initiate(context.Background(), f.event.ID, 7, f.user.ID)
	require.NoError(t, err)

	order, err := f.svc.GetOrder(context.Background(), resp.OrderID, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)

	_, err = f.svc.GetOrder(context.Background(), resp.OrderID, "someone-else")
	assert.ErrorIs(t, err, promotion.ErrNotFound)
}

func TestTiersUseConfiguredCurrency(t *testing.T) {
	f := newFixture(t)

	tiers := f.svc.Tiers()
	require.Len(t, tiers, 4)
	for _, tier := range tiers {
		assert.Equal(t, "eur", tier.Currency)
	}
}

package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ms-promotion/internal/logger"
	"ms-promotion/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// Stripe only accepts checkout expiries inside this range.
const (
	minSessionExpiry = 30 * time.Minute
	maxSessionExpiry = 24 * time.Hour
)

// StripeGateway creates checkout sessions and turns verified webhooks into gateway events.
type StripeGateway struct {
	client        *client.API
	webhookSecret string
	log           *logger.Logger
	now           func() time.Time
}

type StripeOption func(*stripeOptions)

type stripeOptions struct {
	backendURL string
	httpClient *http.Client
}

// WithBackendURL points the client at a different API host, e.g. stripe-mock.
func WithBackendURL(url string) StripeOption {
	return func(o *stripeOptions) { o.backendURL = url }
}

func WithHTTPClient(c *http.Client) StripeOption {
	return func(o *stripeOptions) { o.httpClient = c }
}

func NewStripeGateway(secretKey, webhookSecret string, log *logger.Logger, opts ...StripeOption) (*StripeGateway, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	var o stripeOptions
	for _, opt := range opts {
		opt(&o)
	}

	var backends *stripe.Backends
	if o.backendURL != "" || o.httpClient != nil {
		cfg := &stripe.BackendConfig{
			HTTPClient:        o.httpClient,
			MaxNetworkRetries: stripe.Int64(0),
		}
		if o.backendURL != "" {
			cfg.URL = stripe.String(o.backendURL)
		}
		backends = &stripe.Backends{
			API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
			Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
			Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
		}
	}

	sc := client.New(secretKey, backends)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	if webhookSecret == "" {
		log.Warn("STRIPE", "STRIPE_WEBHOOK_SECRET not set, webhooks will be rejected")
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeGateway{
		client:        sc,
		webhookSecret: webhookSecret,
		log:           log,
		now:           time.Now,
	}, nil
}

// CreateCheckoutSession opens a hosted checkout for one promotion order. The order id doubles
// as the idempotency key, so a retried request cannot create a second session.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req models.CheckoutSessionRequest) (*models.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card", "paypal"}),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		ClientReferenceID:  stripe.String(req.OrderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.ProductName),
						Description: stripe.String(req.Description),
					},
				},
			},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if !req.ExpiresAt.IsZero() {
		lifetime := req.ExpiresAt.Sub(g.now())
		if lifetime >= minSessionExpiry && lifetime <= maxSessionExpiry {
			params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
		}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey("promotion-order-" + req.OrderID)

	sess, err := g.client.CheckoutSessions.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to create checkout session for order %s: %v", req.OrderID, err))
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	g.log.Info("STRIPE", fmt.Sprintf("Created checkout session %s for order %s (%d %s)", sess.ID, req.OrderID, req.Amount, req.Currency))
	return &models.CheckoutSession{SessionID: sess.ID, RedirectURL: sess.URL}, nil
}

// ExpireCheckoutSession closes an open checkout session so it can no longer be paid. Stripe
// rejects the call for sessions that are already complete or expired.
func (g *StripeGateway) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	if _, err := g.client.CheckoutSessions.Expire(sessionID, params); err != nil {
		return fmt.Errorf("expire checkout session %s: %w", sessionID, err)
	}
	g.log.Info("STRIPE", fmt.Sprintf("Expired checkout session %s", sessionID))
	return nil
}

// ParseWebhook verifies the Stripe-Signature header and maps the event onto a GatewayEvent.
// Failures are returned as *WebhookError.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (models.GatewayEvent, error) {
	if g.webhookSecret == "" {
		g.log.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return nil, configurationError("Stripe webhook secret is not configured")
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, opts)
	if err != nil {
		g.log.LogSecurity("WEBHOOK_SIGNATURE", err.Error())
		return nil, validationError("Webhook signature verification failed", err)
	}

	g.log.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event: %s (%s)", event.Type, event.ID))
	return mapEvent(event)
}

func mapEvent(event stripe.Event) (models.GatewayEvent, error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionExpired:
	default:
		return models.UnhandledEvent{GatewayEventID: event.ID, Type: string(event.Type)}, nil
	}

	if event.Data == nil {
		return nil, validationError("Invalid event data", errors.New("event has no data"))
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, validationError("Invalid event data", err)
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionExpired:
		return models.CheckoutExpired{GatewayEventID: event.ID, SessionID: sess.ID}, nil
	case stripe.EventTypeCheckoutSessionCompleted:
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return models.PaymentPending{GatewayEventID: event.ID, SessionID: sess.ID}, nil
		}
	}
	return models.PaymentCompleted{
		GatewayEventID: event.ID,
		SessionID:      sess.ID,
		Metadata:       sess.Metadata,
	}, nil
}

package promotion_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ms-promotion/internal/auth"
	"ms-promotion/internal/logger"
	"ms-promotion/internal/models"
	"ms-promotion/internal/payment"
	"ms-promotion/internal/promotion"
	"ms-promotion/internal/utils"

	"github.com/go-chi/chi/v5"
)

// maxWebhookBody matches the largest payload Stripe sends.
const maxWebhookBody = 65536

type PromotionService interface {
	Initiate(ctx context.Context, eventID string, days int, payerID string) (*models.CheckoutResponse, error)
	GetOrder(ctx context.Context, orderID, payerID string) (*models.PromotionOrder, error)
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	Tiers() []models.PriceTier
	HandleGatewayEvent(ctx context.Context, evt models.GatewayEvent) error
}

type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (models.GatewayEvent, error)
}

type Handler struct {
	Service  PromotionService
	Webhooks WebhookParser
	Logger   *logger.Logger
}

func NewHandler(service PromotionService, webhooks WebhookParser, log *logger.Logger) *Handler {
	return &Handler{Service: service, Webhooks: webhooks, Logger: log}
}

func (h *Handler) GetTiers(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Promotion tiers", h.Service.Tiers()))
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse(utils.CodeUnauthorized, "Unauthorized", "missing user"))
		return
	}

	var req models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Checkout: failed to decode request: %v", err))
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(utils.CodeInvalidRequest, "Invalid request payload", err.Error()))
		return
	}
	if req.EventID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(utils.CodeInvalidRequest, "Invalid request payload", "event_id is required"))
		return
	}

	h.Logger.Info("API", fmt.Sprintf("Checkout: event=%s days=%d user=%s", req.EventID, req.Days, userID))
	resp, err := h.Service.Initiate(r.Context(), req.EventID, req.Days, userID)
	if err != nil {
		h.writeServiceError(w, "Checkout", err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Checkout session created", resp))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	userID := auth.UserID(r.Context())

	order, err := h.Service.GetOrder(r.Context(), orderID, userID)
	if err != nil {
		h.writeServiceError(w, "GetOrder", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order", order))
}

// StripeWebhook verifies and dispatches a Stripe event. A non-2xx answer makes Stripe retry,
// so only verification and store failures produce one.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook payload: %v", err))
		http.Error(w, "Invalid webhook payload", http.StatusBadRequest)
		return
	}

	evt, err := h.Webhooks.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		var webhookErr *payment.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Error("WEBHOOK", fmt.Sprintf("Rejected webhook category=%s status=%d: %s",
				webhookErr.Category, webhookErr.StatusCode, webhookErr.InternalError))
			http.Error(w, webhookErr.PublicError, webhookErr.StatusCode)
			return
		}
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Rejected webhook: %v", err))
		http.Error(w, "Webhook processing error", http.StatusBadRequest)
		return
	}

	if err := h.Service.HandleGatewayEvent(r.Context(), evt); err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to process webhook, gateway will retry: %v", err))
		http.Error(w, "Webhook processing error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	status, code, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	}
	utils.WriteJSON(w, status, utils.ErrorResponse(code, message, err.Error()))
}

func statusFor(err error) (int, utils.ErrorCode, string) {
	switch {
	case errors.Is(err, promotion.ErrNotFound):
		return http.StatusNotFound, utils.CodeNotFound, "Not found"
	case errors.Is(err, promotion.ErrInvalidState):
		return http.StatusConflict, utils.CodeNotPromotable, "Promotion not possible"
	case errors.Is(err, promotion.ErrInvalidArgument):
		return http.StatusBadRequest, utils.CodeInvalidRequest, "Invalid request"
	case errors.Is(err, promotion.ErrTransient):
		return http.StatusServiceUnavailable, utils.CodeUnavailable, "Temporarily unavailable, please retry"
	default:
		return http.StatusInternalServerError, utils.CodeInternal, "Internal error"
	}
}

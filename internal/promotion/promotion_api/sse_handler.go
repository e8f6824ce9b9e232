package promotion_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-promotion/internal/auth"
	"ms-promotion/internal/logger"
	"ms-promotion/internal/models"
	"ms-promotion/internal/sse"

	"github.com/go-chi/chi/v5"
)

const keepAliveInterval = 25 * time.Second

// SSEHandler streams promotion status changes of one event to its owner.
type SSEHandler struct {
	Service PromotionService
	Emitter *sse.PromotionEventEmitter
	Logger  *logger.Logger
}

func NewSSEHandler(service PromotionService, emitter *sse.PromotionEventEmitter, log *logger.Logger) *SSEHandler {
	return &SSEHandler{Service: service, Emitter: emitter, Logger: log}
}

func (h *SSEHandler) HandleEventStream(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID := auth.UserID(r.Context())

	event, err := h.Service.GetEvent(r.Context(), eventID)
	if err != nil {
		status, _, message := statusFor(err)
		http.Error(w, message, status)
		return
	}
	if event.OwnerID != userID {
		h.Logger.LogSecurity("SSE_FORBIDDEN", fmt.Sprintf("user %s is not the owner of event %s", userID, eventID))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	updates := h.Emitter.Subscribe(ctx, eventID)

	h.setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	// current state first, so a client that connects after the webhook still sees it
	h.writeEvent(w, "connected", models.PromotionStatusUpdate{
		EventID:      event.ID,
		Status:       currentStatus(event),
		IsPremium:    event.IsPremium,
		PremiumUntil: event.PremiumUntil,
		Timestamp:    time.Now().UTC(),
	})
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to promotion stream for event: %s", eventID))

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			h.writeEvent(w, "promotion", update)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from promotion stream for: %s", eventID))
			return
		}
	}
}

func currentStatus(event *models.Event) string {
	if event.IsPremium {
		return models.PromotionStatusActivated
	}
	return "inactive"
}

func (h *SSEHandler) writeEvent(w http.ResponseWriter, name string, update models.PromotionStatusUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize promotion update: %v", err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

func (h *SSEHandler) setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

package checkout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/dineflow/restaurant-ordering/internal/core/events"
	"github.com/dineflow/restaurant-ordering/internal/transport"
)

// WebhookHandler receives the gateway's server-to-server push notifications
// and translates them onto the event bus. It never touches session state
// directly; the bridge does the routing so webhook delivery and WebSocket
// delivery share one code path.
type WebhookHandler struct {
	*transport.BaseHandler
	eventBus      *events.EventBus
	webhookSecret string
	logger        *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, eventBus *events.EventBus, webhookSecret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:   baseHandler,
		eventBus:      eventBus,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

type PaymentCallbackRequest struct {
	GatewayOrderID   string `json:"order_id"`
	EventType        string `json:"event_type"`
	PaymentStatus    string `json:"payment_status"`
	PaymentReference string `json:"payment_reference,omitempty"`
	FailureReason    string `json:"failure_reason,omitempty"`
}

type PaymentCallbackResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *WebhookHandler) HandlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read payment callback body", "error", err)
		h.WriteErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.verifySignature(body, r.Header.Get("x-webhook-signature")) {
		h.logger.Warn("payment callback signature mismatch",
			"remote_addr", r.RemoteAddr)
		h.WriteErrorResponse(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req PaymentCallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Error("invalid payment callback request", "error", err)
		h.WriteErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.logger.Info("received payment callback",
		"gateway_order_id", req.GatewayOrderID,
		"event_type", req.EventType,
		"payment_status", req.PaymentStatus)

	if req.GatewayOrderID == "" {
		h.logger.Error("payment callback missing order_id")
		h.WriteErrorResponse(w, http.StatusBadRequest, "order_id is required")
		return
	}

	if err := h.publishCallback(r, &req); err != nil {
		h.logger.Error("failed to publish payment callback",
			"error", err,
			"gateway_order_id", req.GatewayOrderID)
		h.WriteErrorResponse(w, http.StatusInternalServerError, "failed to process payment callback")
		return
	}

	h.WriteJSON(w, http.StatusOK, PaymentCallbackResponse{
		Status:  "success",
		Message: "callback accepted",
	})
}

// publishCallback maps the callback onto bus events. Unknown event types fall
// through to an order.update so a new gateway sub-status degrades to the
// generic path instead of being dropped.
func (h *WebhookHandler) publishCallback(r *http.Request, req *PaymentCallbackRequest) error {
	ctx := r.Context()

	switch req.EventType {
	case "PAYMENT_SUCCESS_WEBHOOK":
		return h.eventBus.Publish(ctx, events.NewPaymentSignalEvent(
			events.EventTypePaymentSuccess, req.GatewayOrderID, req.PaymentReference, ""))
	case "PAYMENT_FAILED_WEBHOOK":
		return h.eventBus.Publish(ctx, events.NewPaymentSignalEvent(
			events.EventTypePaymentFailed, req.GatewayOrderID, "", req.FailureReason))
	default:
		return h.eventBus.Publish(ctx, events.NewOrderUpdateEvent(
			req.GatewayOrderID, req.PaymentStatus, req.PaymentReference))
	}
}

// verifySignature checks the HMAC-SHA256 hex digest the gateway sends with
// each callback. An empty configured secret disables the check, which is only
// acceptable for local development.
func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if h.webhookSecret == "" {
		return true
	}
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (h *WebhookHandler) WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]string{
		"error": message,
	}
	h.WriteJSON(w, statusCode, response)
}

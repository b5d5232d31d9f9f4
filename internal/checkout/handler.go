package checkout

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/dineflow/restaurant-ordering/internal/transport"
	"github.com/dineflow/restaurant-ordering/pkg/logger"
)

type ServiceAPI interface {
	StartCheckout(ctx context.Context, req *StartCheckoutRequest) (*SessionView, error)
	GetStatus(sessionID string) (*StatusView, error)
	HandleReturn(ctx context.Context, sessionID string) error
	Resume(ctx context.Context, sessionID string) error
	RetryPayment(ctx context.Context, sessionID string) (*SessionView, error)
	SwitchPaymentMethod(ctx context.Context, sessionID string) (*SessionView, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	var req StartCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("StartCheckout: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.Service.StartCheckout(r.Context(), &req)
	if err != nil {
		h.Logger.Error("StartCheckout: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("StartCheckout: session opened",
		"session_id", view.SessionID,
		"gateway_order_id", view.GatewayOrderID,
		"amount", view.Amount)

	h.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		h.WriteError(w, http.StatusBadRequest, "session id is required")
		return
	}

	view, err := h.Service.GetStatus(sessionID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		h.WriteError(w, http.StatusBadRequest, "session id is required")
		return
	}

	if err := h.Service.HandleReturn(r.Context(), sessionID); err != nil {
		h.Logger.Error("HandleReturn: service error", "error", err, "session_id", sessionID)
		h.HandleServiceError(w, err)
		return
	}

	view, err := h.Service.GetStatus(sessionID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusAccepted, view)
}

func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		h.WriteError(w, http.StatusBadRequest, "session id is required")
		return
	}

	if err := h.Service.Resume(r.Context(), sessionID); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	view, err := h.Service.GetStatus(sessionID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusAccepted, view)
}

func (h *Handler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		h.WriteError(w, http.StatusBadRequest, "session id is required")
		return
	}

	view, err := h.Service.RetryPayment(r.Context(), sessionID)
	if err != nil {
		h.Logger.Error("RetryPayment: service error", "error", err, "session_id", sessionID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("RetryPayment: new session opened",
		"previous_session_id", sessionID,
		"session_id", view.SessionID,
		"retry_count", view.RetryCount)

	h.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) SwitchPaymentMethod(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		h.WriteError(w, http.StatusBadRequest, "session id is required")
		return
	}

	view, err := h.Service.SwitchPaymentMethod(r.Context(), sessionID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, view)
}

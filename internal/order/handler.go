package order

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	ordermodel "github.com/dineflow/restaurant-ordering/internal/core/datamodel/order"
	"github.com/dineflow/restaurant-ordering/internal/transport"
	"github.com/dineflow/restaurant-ordering/pkg/logger"
)

type ServiceAPI interface {
	GetOrder(orderID int64) (*ordermodel.Order, error)
	ListOrders(status string, limit, offset int) ([]*ordermodel.Order, error)
	UpdateStatus(orderID int64, status string) (*ordermodel.Order, error)
}

// Handler serves the staff-facing order endpoints. All routes sit behind the
// staff JWT middleware.
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

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	orders, err := h.Service.ListOrders(r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		h.Logger.Error("ListOrders: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderIDStr := chi.URLParam(r, "id")
	orderID, err := strconv.ParseInt(orderIDStr, 10, 64)
	if err != nil {
		h.Logger.Error("GetOrder: invalid order ID", "id", orderIDStr)
		h.WriteError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	order, err := h.Service.GetOrder(orderID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderIDStr := chi.URLParam(r, "id")
	orderID, err := strconv.ParseInt(orderIDStr, 10, 64)
	if err != nil {
		h.Logger.Error("UpdateStatus: invalid order ID", "id", orderIDStr)
		h.WriteError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var dto UpdateStatusDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("UpdateStatus: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.Service.UpdateStatus(orderID, dto.Status)
	if err != nil {
		h.Logger.Error("UpdateStatus: service error", "error", err, "order_id", orderID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("UpdateStatus: order moved",
		"order_id", order.ID,
		"status", order.Status)

	h.WriteJSON(w, http.StatusOK, order)
}

package order

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	internal "github.com/dineflow/restaurant-ordering/internal"
	checkoutmodel "github.com/dineflow/restaurant-ordering/internal/core/datamodel/checkout"
	ordermodel "github.com/dineflow/restaurant-ordering/internal/core/datamodel/order"
)

// Repository interface defines the data access methods for orders
type Repository interface {
	Create(order *ordermodel.Order) error
	GetByID(id int64) (*ordermodel.Order, error)
	GetBySessionID(sessionID string) (*ordermodel.Order, error)
	List(limit, offset int) ([]*ordermodel.Order, error)
	ListByStatus(status string, limit, offset int) ([]*ordermodel.Order, error)
	UpdateStatus(id int64, status string) error
}

// Service handles order business logic
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// PlaceOrder persists the restaurant order for a confirmed payment. The
// checkout finalizer guarantees at most one call per session; the unique
// index on session_id backs that up at the database level.
func (s *Service) PlaceOrder(ctx context.Context, sessionID string, draft *checkoutmodel.OrderDraft, paymentReference string) (*ordermodel.Order, error) {
	if existing, err := s.repo.GetBySessionID(sessionID); err == nil && existing != nil {
		s.logger.Warn("order already exists for session",
			"session_id", sessionID,
			"order_id", existing.ID)
		return existing, nil
	}

	items, err := json.Marshal(draft.Items)
	if err != nil {
		return nil, internal.NewInternalError("failed to serialize order items", err)
	}

	order := &ordermodel.Order{
		OrderNumber:      generateOrderNumber(),
		SessionID:        sessionID,
		CustomerName:     draft.CustomerName,
		CustomerPhone:    draft.CustomerPhone,
		OrderType:        draft.OrderType,
		TableNumber:      draft.TableNumber,
		Note:             draft.Note,
		Items:            items,
		Subtotal:         draft.Subtotal,
		PaymentStatus:    ordermodel.PaymentStatusPaid,
		PaymentReference: paymentReference,
		Status:           ordermodel.StatusPlaced,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	if err := s.repo.Create(order); err != nil {
		s.logger.Error("failed to persist order",
			"session_id", sessionID,
			"error", err)
		return nil, internal.NewOrderError("failed to create order", internal.ErrCodeOrderCreationFailed)
	}

	s.logger.Info("order placed",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"session_id", sessionID,
		"order_type", order.OrderType,
		"subtotal", order.Subtotal)

	return order, nil
}

// GetOrder returns one order for the staff dashboard.
func (s *Service) GetOrder(orderID int64) (*ordermodel.Order, error) {
	order, err := s.repo.GetByID(orderID)
	if err != nil {
		return nil, internal.ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns the kitchen queue, optionally filtered by status.
func (s *Service) ListOrders(status string, limit, offset int) ([]*ordermodel.Order, error) {
	if status != "" {
		if !validStatus(status) {
			return nil, internal.NewValidationError(
				fmt.Sprintf("unknown order status %q", status),
				internal.ErrCodeValidationFailed)
		}
		return s.repo.ListByStatus(status, limit, offset)
	}
	return s.repo.List(limit, offset)
}

// UpdateStatus moves an order along the kitchen lifecycle.
func (s *Service) UpdateStatus(orderID int64, status string) (*ordermodel.Order, error) {
	if !validStatus(status) {
		return nil, internal.NewValidationError(
			fmt.Sprintf("unknown order status %q", status),
			internal.ErrCodeValidationFailed)
	}

	if _, err := s.repo.GetByID(orderID); err != nil {
		return nil, internal.ErrOrderNotFound
	}

	if err := s.repo.UpdateStatus(orderID, status); err != nil {
		s.logger.Error("failed to update order status",
			"order_id", orderID,
			"status", status,
			"error", err)
		return nil, internal.NewInternalError("failed to update order status", err)
	}

	s.logger.Info("order status updated", "order_id", orderID, "status", status)
	return s.repo.GetByID(orderID)
}

func validStatus(status string) bool {
	switch status {
	case ordermodel.StatusPlaced, ordermodel.StatusPreparing, ordermodel.StatusReady,
		ordermodel.StatusServed, ordermodel.StatusCancelled:
		return true
	}
	return false
}

// generateOrderNumber builds a short human-readable ticket number, e.g.
// DF-20260830-4821. Uniqueness is enforced by the database index; a
// collision surfaces as a creation error.
func generateOrderNumber() string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	suffix := int64(0)
	if err == nil {
		suffix = n.Int64()
	}
	return fmt.Sprintf("DF-%s-%04d", time.Now().Format("20060102"), suffix)
}

package checkout

import (
	"context"
	"log/slog"

	checkoutmodel "github.com/dineflow/restaurant-ordering/internal/core/datamodel/checkout"
	gatewaytypes "github.com/dineflow/restaurant-ordering/internal/core/datamodel/gateway"
	"github.com/dineflow/restaurant-ordering/internal/gateway"
)

// UnresolvedLister lists persisted sessions whose payment was never resolved.
// The in-memory reconciler dies with the process; the sweeper picks these
// sessions up from the database after a restart.
type UnresolvedLister interface {
	ListUnresolved(limit int) ([]*checkoutmodel.PaymentSession, error)
}

// Sweeper resolves orphaned sessions against the gateway. It runs from the
// reconcile worker command, not inside the API server.
type Sweeper struct {
	repo    RepositoryAPI
	lister  UnresolvedLister
	gateway gateway.API
	orders  OrderPlacer
	logger  *slog.Logger
}

func NewSweeper(repo RepositoryAPI, lister UnresolvedLister, gw gateway.API, orders OrderPlacer, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		repo:    repo,
		lister:  lister,
		gateway: gw,
		orders:  orders,
		logger:  logger,
	}
}

// Run sweeps one batch of unresolved sessions and reports how many were
// resolved.
func (s *Sweeper) Run(ctx context.Context, batchSize int) (int, error) {
	sessions, err := s.lister.ListUnresolved(batchSize)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, record := range sessions {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		if s.sweepOne(ctx, record) {
			resolved++
		}
	}

	s.logger.Info("sweep finished",
		"scanned", len(sessions),
		"resolved", resolved)
	return resolved, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, record *checkoutmodel.PaymentSession) bool {
	order, err := s.gateway.GetOrder(ctx, record.GatewayOrderID)
	if err != nil {
		s.logger.Warn("sweep poll failed",
			"session_id", record.ID,
			"gateway_order_id", record.GatewayOrderID,
			"error", err)
		return false
	}

	switch order.OrderStatus {
	case gatewaytypes.OrderStatusPaid:
		return s.resolvePaid(ctx, record)
	case gatewaytypes.OrderStatusExpired, gatewaytypes.OrderStatusTerminated:
		if err := s.repo.UpdateState(record.ID, string(StatusFailed), record.VerificationAttempts); err != nil {
			s.logger.Error("failed to mark swept session failed",
				"session_id", record.ID,
				"error", err)
			return false
		}
		s.logger.Info("swept session resolved as failed",
			"session_id", record.ID,
			"gateway_status", order.OrderStatus)
		return true
	}

	return false
}

// resolvePaid creates the restaurant order for a captured payment found
// during the sweep. The payment reference is recovered from the gateway's
// payment list.
func (s *Sweeper) resolvePaid(ctx context.Context, record *checkoutmodel.PaymentSession) bool {
	reference := record.GatewayOrderID
	if payments, err := s.gateway.GetPayments(ctx, record.GatewayOrderID); err == nil {
		for _, p := range payments {
			if p.PaymentStatus == gatewaytypes.PaymentStatusSuccess {
				reference = paymentReference(p)
				break
			}
		}
	}

	draft, err := record.UnmarshalDraft()
	if err != nil {
		s.logger.Error("swept session has unreadable draft",
			"session_id", record.ID,
			"error", err)
		return false
	}

	placed, err := s.orders.PlaceOrder(ctx, record.ID, draft, reference)
	if err != nil {
		s.logger.Error("order creation failed during sweep",
			"session_id", record.ID,
			"payment_reference", reference,
			"error", err)
		if dbErr := s.repo.MarkFinalized(record.ID, checkoutmodel.OutcomeConfirmationFailed, reference, nil); dbErr != nil {
			s.logger.Error("failed to persist sweep confirmation failure",
				"session_id", record.ID,
				"error", dbErr)
		}
		return false
	}

	if err := s.repo.MarkFinalized(record.ID, checkoutmodel.OutcomeConfirmed, reference, &placed.ID); err != nil {
		s.logger.Error("failed to persist swept finalization",
			"session_id", record.ID,
			"error", err)
		return false
	}

	s.logger.Info("swept session finalized",
		"session_id", record.ID,
		"order_id", placed.ID,
		"order_number", placed.OrderNumber)
	return true
}

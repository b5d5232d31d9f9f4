package checkout

import (
	"context"

	checkoutmodel "github.com/dineflow/restaurant-ordering/internal/core/datamodel/checkout"
	gatewaytypes "github.com/dineflow/restaurant-ordering/internal/core/datamodel/gateway"
)

// startBackgroundReconciler keeps polling the gateway after the foreground
// verification loop has given up. UPI payments routinely settle after the
// customer-facing window closes; a reconciled payment still produces the
// order, the customer just sees it late.
func (s *Service) startBackgroundReconciler(sess *session) {
	s.logger.Info("starting background reconciler",
		"session_id", sess.id,
		"gateway_order_id", sess.gatewayOrderID,
		"grace", s.cfg.ReconcilerGrace,
		"interval", s.cfg.ReconcilerInterval,
		"max_attempts", s.cfg.ReconcilerMaxAttempts)

	sess.sched.Go(func(ctx context.Context) {
		s.runReconciler(ctx, sess)
	})
}

func (s *Service) runReconciler(ctx context.Context, sess *session) {
	if !sess.sched.Sleep(s.cfg.ReconcilerGrace) {
		return
	}

	for attempt := 1; attempt <= s.cfg.ReconcilerMaxAttempts; attempt++ {
		if !sess.sched.Sleep(s.cfg.ReconcilerInterval) {
			return
		}
		if sess.tracker.Finalized() {
			return
		}

		order, err := s.gateway.GetOrder(ctx, sess.gatewayOrderID)
		if err != nil {
			s.logger.Warn("reconciler poll failed",
				"session_id", sess.id,
				"attempt", attempt,
				"error", err)
			continue
		}

		switch order.OrderStatus {
		case gatewaytypes.OrderStatusPaid:
			s.logger.Info("reconciler found captured payment",
				"session_id", sess.id,
				"attempt", attempt)
			s.completeSuccess(ctx, sess, s.latestPaymentReference(ctx, sess))
			return
		case gatewaytypes.OrderStatusExpired, gatewaytypes.OrderStatusTerminated:
			s.logger.Info("reconciler confirmed payment never completed",
				"session_id", sess.id,
				"attempt", attempt,
				"gateway_status", order.OrderStatus)
			return
		}
	}

	if sess.tracker.Finalized() {
		return
	}

	// Budget exhausted with the gateway still reporting the order open.
	// Manual reconciliation against the settlement report is the only
	// remaining path.
	s.logger.Warn("reconciliation budget exhausted, flagging for manual review",
		"session_id", sess.id,
		"gateway_order_id", sess.gatewayOrderID)

	sess.setOutcome(checkoutmodel.OutcomePendingVerification)
	if err := s.repo.MarkOutcome(sess.id, checkoutmodel.OutcomePendingVerification, nil); err != nil {
		s.logger.Error("failed to persist pending verification outcome",
			"session_id", sess.id,
			"error", err)
	}
}

package checkout

import (
	"context"
	"strconv"

	checkoutmodel "github.com/dineflow/restaurant-ordering/internal/core/datamodel/checkout"
	"github.com/dineflow/restaurant-ordering/internal/core/events"
)

// finalize creates the restaurant order for a verified payment. The tracker's
// finalize claim makes this safe to call from every confirmation path at
// once: push, polling, the verification loop and the background reconciler
// can all race here, only one caller reaches PlaceOrder.
func (s *Service) finalize(ctx context.Context, sess *session, paymentReference string) {
	if !sess.tracker.ClaimFinalize() {
		s.logger.Debug("finalize already claimed",
			"session_id", sess.id)
		return
	}

	sess.setPaymentReference(paymentReference)
	s.persistState(sess)

	order, err := s.orders.PlaceOrder(ctx, sess.id, &sess.draft, paymentReference)
	if err != nil {
		// Payment is captured but the order insert failed. The claim is
		// not released: retrying order creation here could double-charge
		// the kitchen flow, so the session is parked for staff with the
		// payment reference visible to the customer.
		s.logger.Error("order creation failed after captured payment",
			"session_id", sess.id,
			"gateway_order_id", sess.gatewayOrderID,
			"payment_reference", paymentReference,
			"error", err)

		sess.setConfirmationFailed(paymentReference)
		if dbErr := s.repo.MarkFinalized(sess.id, checkoutmodel.OutcomeConfirmationFailed, paymentReference, nil); dbErr != nil {
			s.logger.Error("failed to persist confirmation failure",
				"session_id", sess.id,
				"error", dbErr)
		}
		s.scheduleEviction(sess)
		return
	}

	sess.setOrder(order)
	if dbErr := s.repo.MarkFinalized(sess.id, checkoutmodel.OutcomeConfirmed, paymentReference, &order.ID); dbErr != nil {
		s.logger.Error("failed to persist finalized session",
			"session_id", sess.id,
			"error", dbErr)
	}

	s.logger.Info("checkout finalized",
		"session_id", sess.id,
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"payment_reference", paymentReference)

	if err := s.bus.Publish(ctx, events.NewCheckoutCompletedEvent(sess.id, sess.gatewayOrderID, order.ID, order.OrderNumber, paymentReference)); err != nil {
		s.logger.Warn("failed to publish checkout completion",
			"session_id", sess.id,
			"error", err)
	}

	s.scheduleEviction(sess)
}

func formatPaymentID(id int64) string {
	return strconv.FormatInt(id, 10)
}

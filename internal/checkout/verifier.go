package checkout

import (
	"context"
	"time"

	internal "github.com/dineflow/restaurant-ordering/internal"
	gatewaytypes "github.com/dineflow/restaurant-ordering/internal/core/datamodel/gateway"
)

// verdict of one verification round.
type verdict int

const (
	verdictPending verdict = iota
	verdictVerified
	verdictFailed
	verdictCancelled
)

type roundResult struct {
	verdict   verdict
	reference string
	reason    string
}

// HandleReturn starts the foreground verification loop once the gateway UI
// reports the customer completed (or was redirected back from) the payment
// flow.
func (s *Service) HandleReturn(ctx context.Context, sessionID string) error {
	sess := s.sessionByID(sessionID)
	if sess == nil {
		return internal.ErrSessionNotFound
	}
	s.startVerification(sess)
	return nil
}

// startVerification spawns at most one verification loop per session.
func (s *Service) startVerification(sess *session) {
	sess.mu.Lock()
	if sess.verifying {
		sess.mu.Unlock()
		return
	}
	sess.verifying = true
	sess.mu.Unlock()

	if sess.tracker.Finalized() {
		return
	}
	sess.tracker.Transition(StatusVerifying)
	s.persistState(sess)

	sess.sched.Go(func(ctx context.Context) {
		s.runVerification(ctx, sess)
	})
}

// runVerification is the bounded confirmation loop: up to
// MaxVerificationAttempts rounds within VerificationWindow, three strategies
// per round in priority order, first success wins. Exhaustion reports
// TIMEOUT, not FAILED; the money may still be captured and the distinction
// decides both the message shown and whether background reconciliation
// starts.
func (s *Service) runVerification(ctx context.Context, sess *session) {
	start := time.Now()

	for attempt := 1; attempt <= s.cfg.MaxVerificationAttempts; attempt++ {
		if sess.tracker.Finalized() {
			return
		}
		if status := sess.tracker.Status(); status != StatusVerifying {
			s.logger.Debug("verification loop stopping, session resolved elsewhere",
				"session_id", sess.id,
				"status", status)
			return
		}

		round := sess.tracker.IncrementVerificationAttempts()
		s.persistState(sess)

		result := s.verifyOnce(ctx, sess, round)
		switch result.verdict {
		case verdictVerified:
			s.completeSuccess(ctx, sess, result.reference)
			return
		case verdictFailed:
			s.applyPushFailure(sess, result.reason, false)
			return
		case verdictCancelled:
			s.applyPushFailure(sess, result.reason, true)
			return
		}

		if attempt == s.cfg.MaxVerificationAttempts {
			break
		}
		if time.Since(start) >= s.cfg.VerificationWindow {
			break
		}
		if !sess.sched.SleepOrWake(s.cfg.VerificationRetryDelay, sess.wake) {
			return
		}
		if time.Since(start) >= s.cfg.VerificationWindow {
			break
		}
	}

	if sess.tracker.Finalized() {
		return
	}

	s.logger.Warn("verification budget exhausted",
		"session_id", sess.id,
		"gateway_order_id", sess.gatewayOrderID,
		"attempts", sess.tracker.VerificationAttempts(),
		"elapsed", time.Since(start))

	if sess.tracker.Transition(StatusTimeout) {
		s.persistState(sess)
		s.startBackgroundReconciler(sess)
	}
}

// verifyOnce runs one round of the three confirmation strategies. A network
// error is logged and the round reported pending; it consumes the attempt
// rather than looping forever.
func (s *Service) verifyOnce(ctx context.Context, sess *session, round int) roundResult {
	// strategy 1: the event bridge already confirmed via push
	if confirmed, reference := sess.tracker.PushConfirmed(); confirmed {
		s.logger.Info("verified via push confirmation",
			"session_id", sess.id,
			"round", round)
		return roundResult{verdict: verdictVerified, reference: reference}
	}

	// strategy 2: order status
	order, err := s.gateway.GetOrder(ctx, sess.gatewayOrderID)
	if err != nil {
		s.logger.Warn("order status check failed",
			"session_id", sess.id,
			"round", round,
			"error", err)
	} else {
		switch order.OrderStatus {
		case gatewaytypes.OrderStatusPaid:
			s.logger.Info("verified via order status",
				"session_id", sess.id,
				"round", round)
			return roundResult{verdict: verdictVerified, reference: s.latestPaymentReference(ctx, sess)}
		case gatewaytypes.OrderStatusExpired, gatewaytypes.OrderStatusTerminated:
			return roundResult{verdict: verdictFailed, reason: "gateway order " + order.OrderStatus}
		}
	}

	// strategy 3: payment attempt list
	payments, err := s.gateway.GetPayments(ctx, sess.gatewayOrderID)
	if err != nil {
		s.logger.Warn("payment list check failed",
			"session_id", sess.id,
			"round", round,
			"error", err)
		return roundResult{verdict: verdictPending}
	}
	for _, p := range payments {
		if p.PaymentStatus == gatewaytypes.PaymentStatusSuccess {
			s.logger.Info("verified via payment list",
				"session_id", sess.id,
				"round", round,
				"gateway_payment_id", p.PaymentID)
			return roundResult{verdict: verdictVerified, reference: paymentReference(p)}
		}
	}

	// most recent attempt first; a dropped attempt with nothing newer means
	// the customer backed out of the payment app
	if len(payments) > 0 && payments[0].PaymentStatus == gatewaytypes.PaymentStatusUserDropped {
		return roundResult{verdict: verdictCancelled, reason: "payment abandoned by customer"}
	}

	return roundResult{verdict: verdictPending}
}

// latestPaymentReference fetches a displayable reference for a paid order,
// best effort.
func (s *Service) latestPaymentReference(ctx context.Context, sess *session) string {
	payments, err := s.gateway.GetPayments(ctx, sess.gatewayOrderID)
	if err != nil {
		return sess.gatewayOrderID
	}
	for _, p := range payments {
		if p.PaymentStatus == gatewaytypes.PaymentStatusSuccess {
			return paymentReference(p)
		}
	}
	return sess.gatewayOrderID
}

func paymentReference(p gatewaytypes.Payment) string {
	if p.BankReference != "" {
		return p.BankReference
	}
	if p.PaymentID != 0 {
		return formatPaymentID(p.PaymentID)
	}
	return ""
}

// completeSuccess drives the state machine to SUCCESS and hands over to the
// finalizer. The transition may be rejected for a session that already left
// the verifying path (a late reconciliation after TIMEOUT); the finalize
// claim below is what guards the side effect either way.
func (s *Service) completeSuccess(ctx context.Context, sess *session, reference string) {
	sess.tracker.Transition(StatusSuccess)
	s.finalize(ctx, sess, reference)
}

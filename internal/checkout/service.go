package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internal "github.com/dineflow/restaurant-ordering/internal"
	checkoutmodel "github.com/dineflow/restaurant-ordering/internal/core/datamodel/checkout"
	gatewaytypes "github.com/dineflow/restaurant-ordering/internal/core/datamodel/gateway"
	ordermodel "github.com/dineflow/restaurant-ordering/internal/core/datamodel/order"
	"github.com/dineflow/restaurant-ordering/internal/core/events"
	"github.com/dineflow/restaurant-ordering/internal/gateway"
)

// RepositoryAPI persists checkout sessions.
type RepositoryAPI interface {
	Create(session *checkoutmodel.PaymentSession) error
	GetByID(id string) (*checkoutmodel.PaymentSession, error)
	GetByGatewayOrderID(gatewayOrderID string) (*checkoutmodel.PaymentSession, error)
	UpdateState(id string, status string, verificationAttempts int) error
	MarkFinalized(id string, outcome string, paymentReference string, orderID *int64) error
	MarkOutcome(id string, outcome string, failureReason *string) error
	MarkSuperseded(id string, supersededBy string) error
}

// OrderPlacer is the order-persistence collaborator. The finalizer
// guarantees it is called at most once per session.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, sessionID string, draft *checkoutmodel.OrderDraft, paymentReference string) (*ordermodel.Order, error)
}

// session is the runtime state of one checkout attempt. The tracker carries
// the shared payment state; everything else under mu is read by status views
// and written by whichever callback resolves the session.
type session struct {
	id               string
	gatewayOrderID   string
	gatewaySessionID string
	amount           decimal.Decimal
	currency         string
	draft            checkoutmodel.OrderDraft
	tracker          *Tracker
	sched            *Scheduler
	wake             chan struct{}

	mu               sync.Mutex
	verifying        bool
	lastResume       time.Time
	order            *ordermodel.Order
	paymentReference string
	outcome          string
	failureReason    string
}

func (sess *session) setOrder(o *ordermodel.Order) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.order = o
	sess.outcome = checkoutmodel.OutcomeConfirmed
}

func (sess *session) setConfirmationFailed(reference string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.paymentReference = reference
	sess.outcome = checkoutmodel.OutcomeConfirmationFailed
}

func (sess *session) setPaymentReference(reference string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if reference != "" {
		sess.paymentReference = reference
	}
}

func (sess *session) setOutcome(outcome string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.outcome = outcome
}

func (sess *session) setFailureReason(reason string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.failureReason = reason
}

// Service is the payment confirmation and order-finalization reconciler. It
// reconciles push notifications, order-status polls and payment-list polls
// about one external payment, and guarantees the order-creation side effect
// happens at most once per session.
type Service struct {
	repo      RepositoryAPI
	gateway   gateway.API
	orders    OrderPlacer
	bus       *events.EventBus
	cfg       internal.CheckoutConfig
	notifyURL string
	logger    *slog.Logger

	minAmount decimal.Decimal
	maxAmount decimal.Decimal

	mu             sync.RWMutex
	sessions       map[string]*session
	byGatewayOrder map[string]*session
}

func NewService(repo RepositoryAPI, gw gateway.API, orders OrderPlacer, bus *events.EventBus, cfg internal.CheckoutConfig, notifyURL string, logger *slog.Logger) *Service {
	minAmount, err := decimal.NewFromString(cfg.MinAmount)
	if err != nil {
		minAmount = decimal.NewFromInt(1)
	}
	maxAmount, err := decimal.NewFromString(cfg.MaxAmount)
	if err != nil {
		maxAmount = decimal.NewFromInt(100000)
	}

	return &Service{
		repo:           repo,
		gateway:        gw,
		orders:         orders,
		bus:            bus,
		cfg:            cfg,
		notifyURL:      notifyURL,
		logger:         logger,
		minAmount:      minAmount,
		maxAmount:      maxAmount,
		sessions:       make(map[string]*session),
		byGatewayOrder: make(map[string]*session),
	}
}

// StartCheckout validates the submitted cart and opens a payment session.
// Validation failures are local and reported before any gateway call; a
// successful call issues exactly one gateway order per submit.
func (s *Service) StartCheckout(ctx context.Context, req *StartCheckoutRequest) (*SessionView, error) {
	draft, appErr := req.Validate(s.minAmount, s.maxAmount)
	if appErr != nil {
		s.logger.Warn("checkout rejected by validation", "error", appErr.GetDetailedMessage())
		return nil, appErr
	}

	return s.openSession(ctx, draft, 0, nil)
}

func (s *Service) openSession(ctx context.Context, draft *checkoutmodel.OrderDraft, retryCount int, supersedes *session) (*SessionView, error) {
	id := uuid.NewString()
	tracker := NewTracker(id, retryCount, s.logger)
	tracker.Transition(StatusInitializing)

	gatewayOrderID := fmt.Sprintf("ord_%s", uuid.NewString())

	resp, err := s.gateway.CreateOrder(ctx, &gatewaytypes.CreateOrderRequest{
		OrderID:       gatewayOrderID,
		OrderAmount:   draft.Subtotal,
		OrderCurrency: "INR",
		CustomerDetails: gatewaytypes.CustomerDetails{
			CustomerID:    id,
			CustomerName:  draft.CustomerName,
			CustomerPhone: draft.CustomerPhone,
		},
		OrderMeta: gatewaytypes.OrderMeta{NotifyURL: s.notifyURL},
		OrderNote: draft.Note,
	})
	if err != nil {
		tracker.Transition(StatusFailed)
		s.logger.Error("gateway session create failed",
			"session_id", id,
			"amount", draft.Subtotal,
			"error", err)
		if appErr, ok := internal.IsAppError(err); ok {
			return nil, appErr
		}
		return nil, internal.NewNetworkError("could not reach the payment gateway", err)
	}

	draftJSON, err := json.Marshal(draft)
	if err != nil {
		tracker.Transition(StatusFailed)
		return nil, internal.NewInternalError("failed to snapshot order draft", err)
	}

	record := &checkoutmodel.PaymentSession{
		ID:               id,
		GatewayOrderID:   resp.OrderID,
		GatewaySessionID: resp.PaymentSessionID,
		Amount:           draft.Subtotal,
		Currency:         "INR",
		Status:           string(StatusProcessing),
		RetryCount:       retryCount,
		Draft:            draftJSON,
	}
	if err := s.repo.Create(record); err != nil {
		tracker.Transition(StatusFailed)
		s.logger.Error("failed to persist checkout session", "session_id", id, "error", err)
		return nil, internal.NewInternalError("failed to persist checkout session", err)
	}

	tracker.Transition(StatusProcessing)

	sess := &session{
		id:               id,
		gatewayOrderID:   resp.OrderID,
		gatewaySessionID: resp.PaymentSessionID,
		amount:           draft.Subtotal,
		currency:         "INR",
		draft:            *draft,
		tracker:          tracker,
		sched:            NewScheduler(),
		wake:             make(chan struct{}, 1),
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.byGatewayOrder[resp.OrderID] = sess
	s.mu.Unlock()

	if supersedes != nil {
		if err := s.repo.MarkSuperseded(supersedes.id, id); err != nil {
			s.logger.Error("failed to mark session superseded",
				"session_id", supersedes.id,
				"superseded_by", id,
				"error", err)
		}
		// the replacement carries the live attempt; status reads for the
		// old id fall back to the persisted record
		s.removeSession(supersedes)
	}

	s.logger.Info("checkout session opened",
		"session_id", id,
		"gateway_order_id", resp.OrderID,
		"amount", draft.Subtotal,
		"retry_count", retryCount)

	return &SessionView{
		SessionID:        id,
		GatewayOrderID:   resp.OrderID,
		PaymentSessionID: resp.PaymentSessionID,
		Amount:           draft.Subtotal,
		Currency:         "INR",
		Status:           tracker.Status(),
		RetryCount:       retryCount,
	}, nil
}

// RetryPayment supersedes a failed, cancelled or timed-out session with a
// fresh one. The old session keeps its latches; its timers are cancelled so
// nothing from the superseded attempt can fire into the new one.
func (s *Service) RetryPayment(ctx context.Context, sessionID string) (*SessionView, error) {
	sess := s.sessionByID(sessionID)
	if sess == nil {
		return nil, internal.ErrSessionNotFound
	}

	status := sess.tracker.Status()
	if !CanTransition(status, StatusInitializing) {
		return nil, internal.NewConflictError(
			fmt.Sprintf("session in state %s cannot be retried", status),
			internal.ErrCodeSessionNotRetrying)
	}

	sess.sched.Cancel()

	s.logger.Info("retrying payment with new session",
		"session_id", sessionID,
		"previous_status", status,
		"retry_count", sess.tracker.RetryCount()+1)

	return s.openSession(ctx, &sess.draft, sess.tracker.RetryCount()+1, sess)
}

// SwitchPaymentMethod behaves like a retry: the old session is superseded
// and a new gateway order opened so the customer can pay another way.
func (s *Service) SwitchPaymentMethod(ctx context.Context, sessionID string) (*SessionView, error) {
	s.logger.Info("switching payment method", "session_id", sessionID)
	return s.RetryPayment(ctx, sessionID)
}

// GetStatus returns the view the UI renders while waiting. Falls back to the
// persisted record when the runtime session is gone (process restart).
func (s *Service) GetStatus(sessionID string) (*StatusView, error) {
	if sess := s.sessionByID(sessionID); sess != nil {
		return s.statusView(sess), nil
	}

	record, err := s.repo.GetByID(sessionID)
	if err != nil {
		return nil, internal.ErrSessionNotFound
	}
	return statusViewFromRecord(record), nil
}

func (s *Service) statusView(sess *session) *StatusView {
	snap := sess.tracker.Snapshot()

	sess.mu.Lock()
	order := sess.order
	outcome := sess.outcome
	reference := sess.paymentReference
	sess.mu.Unlock()

	view := &StatusView{
		SessionID:            sess.id,
		Status:               snap.Status,
		Finalized:            snap.Finalized,
		VerificationAttempts: snap.VerificationAttempts,
		RetryCount:           snap.RetryCount,
		Outcome:              outcome,
		PaymentReference:     reference,
		Message:              statusMessage(snap.Status, outcome, reference),
	}
	if order != nil {
		view.Order = &OrderView{
			ID:          order.ID,
			OrderNumber: order.OrderNumber,
			Status:      order.Status,
			PlacedAt:    order.CreatedAt,
		}
	}
	return view
}

func statusViewFromRecord(record *checkoutmodel.PaymentSession) *StatusView {
	view := &StatusView{
		SessionID:            record.ID,
		Status:               Status(record.Status),
		Finalized:            record.Finalized,
		VerificationAttempts: record.VerificationAttempts,
		RetryCount:           record.RetryCount,
	}
	if record.Outcome != nil {
		view.Outcome = *record.Outcome
	}
	if record.PaymentReference != nil {
		view.PaymentReference = *record.PaymentReference
	}
	view.Message = statusMessage(view.Status, view.Outcome, view.PaymentReference)
	return view
}

func statusMessage(status Status, outcome, reference string) string {
	switch outcome {
	case checkoutmodel.OutcomeConfirmationFailed:
		return fmt.Sprintf("Your payment was received but we could not confirm your order. Please contact support with payment reference %s.", reference)
	case checkoutmodel.OutcomePendingVerification:
		return "We could not confirm your payment yet. If money was deducted it will be confirmed automatically; keep your payment reference."
	}

	switch status {
	case StatusTimeout:
		return "Payment confirmation is taking longer than usual. If money was deducted, your order will be confirmed automatically."
	case StatusFailed:
		return "Payment failed. You can retry or try a different payment method."
	case StatusCancelled:
		return "Payment was cancelled."
	case StatusSuccess:
		return "Payment confirmed."
	}
	return ""
}

func (s *Service) sessionByID(id string) *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

func (s *Service) sessionByGatewayOrder(gatewayOrderID string) *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byGatewayOrder[gatewayOrderID]
}

func (s *Service) removeSession(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	delete(s.byGatewayOrder, sess.gatewayOrderID)
	s.mu.Unlock()
}

// scheduleEviction drops a finalized session from the in-memory registry
// after the retention window. Status reads then serve the persisted record.
func (s *Service) scheduleEviction(sess *session) {
	sess.sched.Go(func(ctx context.Context) {
		if sess.sched.Sleep(s.cfg.SessionRetention) {
			s.removeSession(sess)
		}
	})
}

// persistState mirrors the tracker into the session record, best effort.
func (s *Service) persistState(sess *session) {
	snap := sess.tracker.Snapshot()
	if err := s.repo.UpdateState(sess.id, string(snap.Status), snap.VerificationAttempts); err != nil {
		s.logger.Error("failed to persist session state",
			"session_id", sess.id,
			"status", snap.Status,
			"error", err)
	}
}

// applyPushConfirmation handles a gateway push reporting the payment
// succeeded. Signals for finalized sessions are discarded.
func (s *Service) applyPushConfirmation(ctx context.Context, sess *session, reference string) {
	if !sess.tracker.MarkPushConfirmed(reference) {
		s.logger.Debug("push confirmation ignored, session finalized",
			"session_id", sess.id,
			"gateway_order_id", sess.gatewayOrderID)
		return
	}

	s.logger.Info("push confirmation received",
		"session_id", sess.id,
		"gateway_order_id", sess.gatewayOrderID,
		"payment_reference", reference)

	sess.tracker.Transition(StatusSuccess)
	s.finalize(ctx, sess, reference)
}

// applyPushFailure handles an explicit gateway-reported failure or a
// user-dropped payment.
func (s *Service) applyPushFailure(sess *session, reason string, dropped bool) {
	if sess.tracker.Finalized() {
		return
	}

	to := StatusFailed
	if dropped {
		to = StatusCancelled
	}
	if !sess.tracker.Transition(to) {
		return
	}

	sess.setFailureReason(reason)
	s.persistState(sess)
	sess.sched.Cancel()

	s.logger.Info("payment reported failed by gateway",
		"session_id", sess.id,
		"gateway_order_id", sess.gatewayOrderID,
		"status", to,
		"reason", reason)
}

// Resume handles the customer returning to the page from an external
// payment app. Debounced so rapid focus and visibility churn triggers one
// check, not several.
func (s *Service) Resume(ctx context.Context, sessionID string) error {
	sess := s.sessionByID(sessionID)
	if sess == nil {
		return internal.ErrSessionNotFound
	}

	sess.mu.Lock()
	now := time.Now()
	if now.Sub(sess.lastResume) < s.cfg.ResumeDebounce {
		sess.mu.Unlock()
		s.logger.Debug("resume signal debounced", "session_id", sessionID)
		return nil
	}
	sess.lastResume = now
	sess.mu.Unlock()

	if sess.tracker.Finalized() {
		return nil
	}

	switch sess.tracker.Status() {
	case StatusProcessing:
		s.logger.Info("app resume, starting verification", "session_id", sessionID)
		return s.HandleReturn(ctx, sessionID)
	case StatusVerifying:
		// short-circuit the current inter-round wait
		select {
		case sess.wake <- struct{}{}:
		default:
		}
		s.logger.Debug("app resume, nudged verification loop", "session_id", sessionID)
	}
	return nil
}

// Shutdown cancels every live session's timers and waits for their
// goroutines.
func (s *Service) Shutdown() {
	s.mu.RLock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		sess.sched.Cancel()
	}
	for _, sess := range sessions {
		sess.sched.Wait()
	}
}

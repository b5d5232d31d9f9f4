package checkout_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	internal "github.com/dineflow/restaurant-ordering/internal"
	"github.com/dineflow/restaurant-ordering/internal/checkout"
	checkoutmodel "github.com/dineflow/restaurant-ordering/internal/core/datamodel/checkout"
	gatewaytypes "github.com/dineflow/restaurant-ordering/internal/core/datamodel/gateway"
	ordermodel "github.com/dineflow/restaurant-ordering/internal/core/datamodel/order"
	"github.com/dineflow/restaurant-ordering/internal/core/events"
)

// Mock repository for testing
type mockCheckoutRepository struct {
	mu        sync.Mutex
	sessions  map[string]*checkoutmodel.PaymentSession
	createErr error
}

func newMockCheckoutRepository() *mockCheckoutRepository {
	return &mockCheckoutRepository{sessions: make(map[string]*checkoutmodel.PaymentSession)}
}

func (m *mockCheckoutRepository) Create(s *checkoutmodel.PaymentSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *mockCheckoutRepository) GetByID(id string) (*checkoutmodel.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	copied := *s
	return &copied, nil
}

func (m *mockCheckoutRepository) GetByGatewayOrderID(gatewayOrderID string) (*checkoutmodel.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.GatewayOrderID == gatewayOrderID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, errors.New("session not found")
}

func (m *mockCheckoutRepository) UpdateState(id string, status string, verificationAttempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Status = status
		s.VerificationAttempts = verificationAttempts
	}
	return nil
}

func (m *mockCheckoutRepository) MarkFinalized(id string, outcome string, paymentReference string, orderID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Finalized = true
		s.OrderCreationAttempted = true
		s.Outcome = &outcome
		if paymentReference != "" {
			s.PaymentReference = &paymentReference
		}
		s.OrderID = orderID
	}
	return nil
}

func (m *mockCheckoutRepository) MarkOutcome(id string, outcome string, failureReason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Outcome = &outcome
		s.FailureReason = failureReason
	}
	return nil
}

func (m *mockCheckoutRepository) MarkSuperseded(id string, supersededBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.SupersededBy = &supersededBy
	}
	return nil
}

func (m *mockCheckoutRepository) ListUnresolved(limit int) ([]*checkoutmodel.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var unresolved []*checkoutmodel.PaymentSession
	for _, s := range m.sessions {
		if s.Finalized || s.SupersededBy != nil {
			continue
		}
		switch s.Status {
		case "PROCESSING", "VERIFYING", "TIMEOUT":
			copied := *s
			unresolved = append(unresolved, &copied)
		}
		if len(unresolved) == limit {
			break
		}
	}
	return unresolved, nil
}

func (m *mockCheckoutRepository) outcome(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && s.Outcome != nil {
		return *s.Outcome
	}
	return ""
}

// Mock gateway; order status answers are scripted per poll number.
type mockGateway struct {
	mu            sync.Mutex
	createErr     error
	createCalls   int
	orderStatusFn func(poll int) string
	orderPolls    int
	paymentPolls  int
	payments      []gatewaytypes.Payment
	paymentsErr   error
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		orderStatusFn: func(int) string { return gatewaytypes.OrderStatusActive },
	}
}

func (m *mockGateway) CreateOrder(_ context.Context, req *gatewaytypes.CreateOrderRequest) (*gatewaytypes.CreateOrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &gatewaytypes.CreateOrderResponse{
		OrderID:          req.OrderID,
		PaymentSessionID: "ps_" + req.OrderID,
		OrderStatus:      gatewaytypes.OrderStatusActive,
		OrderAmount:      req.OrderAmount,
	}, nil
}

func (m *mockGateway) GetOrder(_ context.Context, gatewayOrderID string) (*gatewaytypes.OrderStatusResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderPolls++
	return &gatewaytypes.OrderStatusResponse{
		OrderID:     gatewayOrderID,
		OrderStatus: m.orderStatusFn(m.orderPolls),
	}, nil
}

func (m *mockGateway) GetPayments(_ context.Context, _ string) ([]gatewaytypes.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paymentPolls++
	if m.paymentsErr != nil {
		return nil, m.paymentsErr
	}
	return m.payments, nil
}

func (m *mockGateway) pollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orderPolls + m.paymentPolls
}

// Mock order placer counting invocations.
type mockOrderPlacer struct {
	mu        sync.Mutex
	calls     int
	err       error
	lastDraft *checkoutmodel.OrderDraft
}

func (m *mockOrderPlacer) PlaceOrder(_ context.Context, sessionID string, draft *checkoutmodel.OrderDraft, reference string) (*ordermodel.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastDraft = draft
	if m.err != nil {
		return nil, m.err
	}
	return &ordermodel.Order{
		ID:               int64(m.calls),
		OrderNumber:      "DF-20260830-0001",
		SessionID:        sessionID,
		PaymentReference: reference,
		Status:           ordermodel.StatusPlaced,
		CreatedAt:        time.Now(),
	}, nil
}

func (m *mockOrderPlacer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockOrderPlacer) placedDraft() *checkoutmodel.OrderDraft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastDraft
}

func testCheckoutConfig() internal.CheckoutConfig {
	return internal.CheckoutConfig{
		MinAmount:               "1",
		MaxAmount:               "100000",
		MaxVerificationAttempts: 4,
		VerificationRetryDelay:  5 * time.Millisecond,
		VerificationWindow:      500 * time.Millisecond,
		ResumeDebounce:          time.Millisecond,
		ReconcilerGrace:         10 * time.Millisecond,
		ReconcilerInterval:      5 * time.Millisecond,
		ReconcilerMaxAttempts:   3,
		SessionRetention:        time.Minute,
	}
}

func validCheckoutRequest() *checkout.StartCheckoutRequest {
	return &checkout.StartCheckoutRequest{
		CustomerName:  "Asha Rao",
		CustomerPhone: "9876543210",
		OrderType:     checkoutmodel.OrderTypeDineIn,
		Items: []checkout.CheckoutItem{
			{MenuItemID: 1, Name: "Masala Dosa", Quantity: 2, UnitPrice: decimal.RequireFromString("120.00")},
			{MenuItemID: 7, Name: "Filter Coffee", Quantity: 2, UnitPrice: decimal.RequireFromString("129.995")},
		},
	}
}

var _ = Describe("CheckoutService", func() {
	var (
		repo    *mockCheckoutRepository
		gw      *mockGateway
		placer  *mockOrderPlacer
		bus     *events.EventBus
		service *checkout.Service
		ctx     context.Context
	)

	BeforeEach(func() {
		repo = newMockCheckoutRepository()
		gw = newMockGateway()
		placer = &mockOrderPlacer{}
		bus = events.NewEventBus(quietLogger())
		service = checkout.NewService(repo, gw, placer, bus, testCheckoutConfig(), "http://localhost/api/v1/payment/callback", quietLogger())

		bridge := checkout.NewBridge(service, quietLogger())
		bridge.RegisterEventHandlers(bus)

		ctx = context.Background()
	})

	AfterEach(func() {
		service.Shutdown()
	})

	Describe("StartCheckout", func() {
		It("rejects an empty cart before touching the gateway", func() {
			req := validCheckoutRequest()
			req.Items = nil

			_, err := service.StartCheckout(ctx, req)

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeEmptyCart))
			Expect(gw.createCalls).To(BeZero())
		})

		It("rejects totals below the gateway minimum", func() {
			req := validCheckoutRequest()
			req.Items = []checkout.CheckoutItem{
				{MenuItemID: 1, Name: "Candy", Quantity: 1, UnitPrice: decimal.RequireFromString("0.50")},
			}

			_, err := service.StartCheckout(ctx, req)

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeAmountTooLow))
		})

		It("rejects totals above the gateway maximum", func() {
			req := validCheckoutRequest()
			req.Items = []checkout.CheckoutItem{
				{MenuItemID: 2, Name: "Banquet", Quantity: 1, UnitPrice: decimal.RequireFromString("100000.01")},
			}

			_, err := service.StartCheckout(ctx, req)

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeAmountTooHigh))
		})

		It("opens a processing session with the rounded cart total", func() {
			view, err := service.StartCheckout(ctx, validCheckoutRequest())

			Expect(err).ToNot(HaveOccurred())
			Expect(view.Status).To(Equal(checkout.StatusProcessing))
			Expect(view.Amount.StringFixed(2)).To(Equal("499.99"))
			Expect(view.PaymentSessionID).ToNot(BeEmpty())

			record, err := repo.GetByID(view.SessionID)
			Expect(err).ToNot(HaveOccurred())
			Expect(record.Status).To(Equal(string(checkout.StatusProcessing)))
		})

		It("reports a failed session when the gateway is unreachable", func() {
			gw.createErr = errors.New("connection refused")

			_, err := service.StartCheckout(ctx, validCheckoutRequest())

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeNetwork))
		})
	})

	Describe("verification after return", func() {
		It("finalizes when the order status poll reports the payment captured", func() {
			gw.orderStatusFn = func(int) string { return gatewaytypes.OrderStatusPaid }
			gw.payments = []gatewaytypes.Payment{
				{PaymentID: 100, PaymentStatus: gatewaytypes.PaymentStatusSuccess, BankReference: "UTR123"},
			}

			view, err := service.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())

			Expect(service.HandleReturn(ctx, view.SessionID)).To(Succeed())

			Eventually(func() bool {
				status, _ := service.GetStatus(view.SessionID)
				return status.Finalized
			}).Should(BeTrue())

			status, err := service.GetStatus(view.SessionID)
			Expect(err).ToNot(HaveOccurred())
			Expect(status.Status).To(Equal(checkout.StatusSuccess))
			Expect(status.Order).ToNot(BeNil())
			Expect(status.PaymentReference).To(Equal("UTR123"))
			Expect(placer.callCount()).To(Equal(1))
		})

		It("fails the session when the gateway order expired", func() {
			gw.orderStatusFn = func(int) string { return gatewaytypes.OrderStatusExpired }

			view, err := service.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(service.HandleReturn(ctx, view.SessionID)).To(Succeed())

			Eventually(func() checkout.Status {
				status, _ := service.GetStatus(view.SessionID)
				return status.Status
			}).Should(Equal(checkout.StatusFailed))
			Expect(placer.callCount()).To(BeZero())
		})

		It("cancels the session when the latest payment attempt was dropped", func() {
			gw.payments = []gatewaytypes.Payment{
				{PaymentID: 101, PaymentStatus: gatewaytypes.PaymentStatusUserDropped},
			}

			view, err := service.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(service.HandleReturn(ctx, view.SessionID)).To(Succeed())

			Eventually(func() checkout.Status {
				status, _ := service.GetStatus(view.SessionID)
				return status.Status
			}).Should(Equal(checkout.StatusCancelled))
		})

		It("times out after the verification budget and hands over to the reconciler", func() {
			// ACTIVE for the four verification rounds and the first two
			// reconciler polls, PAID on the third reconciler poll
			gw.orderStatusFn = func(poll int) string {
				if poll >= 7 {
					return gatewaytypes.OrderStatusPaid
				}
				return gatewaytypes.OrderStatusActive
			}
			gw.payments = []gatewaytypes.Payment{
				{PaymentID: 102, PaymentStatus: gatewaytypes.PaymentStatusPending},
			}

			view, err := service.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(service.HandleReturn(ctx, view.SessionID)).To(Succeed())

			Eventually(func() checkout.Status {
				status, _ := service.GetStatus(view.SessionID)
				return status.Status
			}).Should(Equal(checkout.StatusTimeout))

			status, _ := service.GetStatus(view.SessionID)
			Expect(status.VerificationAttempts).To(Equal(4))
			Expect(status.Message).To(ContainSubstring("confirmed automatically"))

			// the reconciler finds the captured payment and finalizes
			Eventually(func() bool {
				status, _ := service.GetStatus(view.SessionID)
				return status.Finalized
			}).Should(BeTrue())

			status, _ = service.GetStatus(view.SessionID)
			Expect(status.Order).ToNot(BeNil())
			Expect(status.Outcome).To(Equal(checkoutmodel.OutcomeConfirmed))
			// the late success finalizes without rewriting verification history
			Expect(status.Status).To(Equal(checkout.StatusTimeout))
			Expect(placer.callCount()).To(Equal(1))
		})

		It("flags the session for manual review when reconciliation never settles", func() {
			gw.payments = []gatewaytypes.Payment{
				{PaymentID: 103, PaymentStatus: gatewaytypes.PaymentStatusPending},
			}

			view, err := service.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(service.HandleReturn(ctx, view.SessionID)).To(Succeed())

			Eventually(func() string {
				return repo.outcome(view.SessionID)
			}).Should(Equal(checkoutmodel.OutcomePendingVerification))

			Expect(placer.callCount()).To(BeZero())
		})
	})

	Describe("push confirmations", func() {
		It("finalizes on a push signal without waiting for a poll", func() {
			view, err := service.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())

			err = bus.PublishSync(ctx, events.NewPaymentSignalEvent(
				events.EventTypePaymentSuccess, view.GatewayOrderID, "UTR777", ""))
			Expect(err).ToNot(HaveOccurred())

			status, err := service.GetStatus(view.SessionID)
			Expect(err).ToNot(HaveOccurred())
			Expect(status.Status).To(Equal(checkout.StatusSuccess))
			Expect(status.Finalized).To(BeTrue())
			Expect(status.PaymentReference).To(Equal("UTR777"))
			Expect(placer.callCount()).To(Equal(1))

			// order creation must receive the frozen cart snapshot
			draft := placer.placedDraft()
			Expect(draft).ToNot(BeNil())
			Expect(draft.CustomerName).To(Equal("Asha Rao"))
			Expect(draft.Items).To(HaveLen(2))
			Expect(draft.Subtotal.StringFixed(2)).To(Equal("499.99"))
		})

		It("issues no further gateway polls once finalized", func() {
			view, err := service.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())

			err = bus.PublishSync(ctx, events.NewPaymentSignalEvent(
				events.EventTypePaymentSuccess, view.GatewayOrderID, "UTR777", ""))
			Expect(err).ToNot(HaveOccurred())

			status, err := service.GetStatus(view.SessionID)
			Expect(err).ToNot(HaveOccurred())
			Expect(status.Finalized).To(BeTrue())

			// a stale return and an app resume must both hit the latch, not
			// the network
			Expect(service.HandleReturn(ctx, view.SessionID)).To(Succeed())
			Expect(service.Resume(ctx, view.SessionID)).To(Succeed())

			Consistently(gw.pollCount, 50*time.Millisecond).Should(BeZero())
		})

		It("ignores duplicate push signals after finalization", func() {
			view, err := service.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())

			for i := 0; i < 3; i++ {
				err = bus.PublishSync(ctx, events.NewPaymentSignalEvent(
					events.EventTypePaymentSuccess, view.GatewayOrderID, "UTR777", ""))
				Expect(err).ToNot(HaveOccurred())
			}

			Expect(placer.callCount()).To(Equal(1))
		})

		It("creates exactly one order when push and poll race", func() {
			gw.orderStatusFn = func(int) string { return gatewaytypes.OrderStatusPaid }
			gw.payments = []gatewaytypes.Payment{
				{PaymentID: 104, PaymentStatus: gatewaytypes.PaymentStatusSuccess, BankReference: "UTR888"},
			}

			view, err := service.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				Expect(service.HandleReturn(ctx, view.SessionID)).To(Succeed())
			}()
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				err := bus.PublishSync(ctx, events.NewPaymentSignalEvent(
					events.EventTypePaymentSuccess, view.GatewayOrderID, "UTR888", ""))
				Expect(err).ToNot(HaveOccurred())
			}()
			wg.Wait()

			Eventually(func() bool {
				status, _ := service.GetStatus(view.SessionID)
				return status.Finalized
			}).Should(BeTrue())

			// give any racing verifier goroutine time to run into the latch
			Consistently(placer.callCount, 50*time.Millisecond).Should(Equal(1))
		})

		It("fails the session on a push failure signal", func() {
			view, err := service.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())

			err = bus.PublishSync(ctx, events.NewPaymentSignalEvent(
				events.EventTypePaymentFailed, view.GatewayOrderID, "", "insufficient funds"))
			Expect(err).ToNot(HaveOccurred())

			status, _ := service.GetStatus(view.SessionID)
			Expect(status.Status).To(Equal(checkout.StatusFailed))
			Expect(status.Finalized).To(BeFalse())
		})

		It("maps order update sub-statuses onto the session", func() {
			view, err := service.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())

			err = bus.PublishSync(ctx, events.NewOrderUpdateEvent(
				view.GatewayOrderID, gatewaytypes.PaymentStatusUserDropped, ""))
			Expect(err).ToNot(HaveOccurred())

			status, _ := service.GetStatus(view.SessionID)
			Expect(status.Status).To(Equal(checkout.StatusCancelled))
		})
	})

	Describe("RetryPayment", func() {
		failSession := func() *checkout.SessionView {
			view, err := service.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())
			err = bus.PublishSync(ctx, events.NewPaymentSignalEvent(
				events.EventTypePaymentFailed, view.GatewayOrderID, "", "declined"))
			Expect(err).ToNot(HaveOccurred())
			return view
		}

		It("opens a fresh session for a failed payment", func() {
			view := failSession()

			retried, err := service.RetryPayment(ctx, view.SessionID)
			Expect(err).ToNot(HaveOccurred())
			Expect(retried.SessionID).ToNot(Equal(view.SessionID))
			Expect(retried.RetryCount).To(Equal(1))
			Expect(retried.Status).To(Equal(checkout.StatusProcessing))

			record, err := repo.GetByID(view.SessionID)
			Expect(err).ToNot(HaveOccurred())
			Expect(record.SupersededBy).ToNot(BeNil())
			Expect(*record.SupersededBy).To(Equal(retried.SessionID))
		})

		It("refuses to retry a session that is still processing", func() {
			view, err := service.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())

			_, err = service.RetryPayment(ctx, view.SessionID)

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeSessionNotRetrying))
		})

		It("refuses to retry a successful session", func() {
			view, err := service.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())
			err = bus.PublishSync(ctx, events.NewPaymentSignalEvent(
				events.EventTypePaymentSuccess, view.GatewayOrderID, "UTR1", ""))
			Expect(err).ToNot(HaveOccurred())

			_, err = service.RetryPayment(ctx, view.SessionID)
			Expect(err).To(HaveOccurred())
		})

		It("switches payment method by superseding the session", func() {
			view := failSession()

			switched, err := service.SwitchPaymentMethod(ctx, view.SessionID)
			Expect(err).ToNot(HaveOccurred())
			Expect(switched.SessionID).ToNot(Equal(view.SessionID))
		})

		It("drops a late success push for a superseded attempt", func() {
			view := failSession()

			_, err := service.RetryPayment(ctx, view.SessionID)
			Expect(err).ToNot(HaveOccurred())

			// the old gateway order can still emit a push after the customer
			// has moved on to a fresh attempt
			err = bus.PublishSync(ctx, events.NewPaymentSignalEvent(
				events.EventTypePaymentSuccess, view.GatewayOrderID, "UTR-STALE", ""))
			Expect(err).ToNot(HaveOccurred())

			Expect(placer.callCount()).To(BeZero())

			record, err := repo.GetByID(view.SessionID)
			Expect(err).ToNot(HaveOccurred())
			Expect(record.Finalized).To(BeFalse())
		})
	})

	Describe("session retention", func() {
		It("evicts a finalized session and serves status from the record", func() {
			gw.orderStatusFn = func(int) string { return gatewaytypes.OrderStatusPaid }
			gw.payments = []gatewaytypes.Payment{
				{PaymentID: 401, PaymentStatus: gatewaytypes.PaymentStatusSuccess, BankReference: "UTR401"},
			}

			cfg := testCheckoutConfig()
			cfg.SessionRetention = 5 * time.Millisecond
			svc := checkout.NewService(repo, gw, placer, bus, cfg,
				"http://localhost/api/v1/payment/callback", quietLogger())
			defer svc.Shutdown()

			view, err := svc.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(svc.HandleReturn(ctx, view.SessionID)).To(Succeed())

			Eventually(func() bool {
				status, _ := svc.GetStatus(view.SessionID)
				return status != nil && status.Finalized
			}).Should(BeTrue())

			// once the retention window lapses the in-memory session is gone
			// and the persisted record answers, without the order snapshot
			Eventually(func() bool {
				status, err := svc.GetStatus(view.SessionID)
				return err == nil && status.Finalized && status.Order == nil
			}).Should(BeTrue())

			status, err := svc.GetStatus(view.SessionID)
			Expect(err).ToNot(HaveOccurred())
			Expect(status.PaymentReference).To(Equal("UTR401"))
		})
	})

	Describe("order creation failure", func() {
		It("parks the session for support and never retries the order", func() {
			placer.err = errors.New("orders table unavailable")

			view, err := service.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())

			err = bus.PublishSync(ctx, events.NewPaymentSignalEvent(
				events.EventTypePaymentSuccess, view.GatewayOrderID, "UTR555", ""))
			Expect(err).ToNot(HaveOccurred())

			status, _ := service.GetStatus(view.SessionID)
			Expect(status.Outcome).To(Equal(checkoutmodel.OutcomeConfirmationFailed))
			Expect(status.Message).To(ContainSubstring("UTR555"))
			Expect(status.Message).To(ContainSubstring("contact support"))

			// later signals must not trigger a second attempt
			err = bus.PublishSync(ctx, events.NewPaymentSignalEvent(
				events.EventTypePaymentSuccess, view.GatewayOrderID, "UTR555", ""))
			Expect(err).ToNot(HaveOccurred())
			Expect(placer.callCount()).To(Equal(1))
		})
	})

	Describe("GetStatus", func() {
		It("returns not found for an unknown session", func() {
			_, err := service.GetStatus("nope")
			Expect(err).To(MatchError(internal.ErrSessionNotFound))
		})

		It("falls back to the persisted record after a restart", func() {
			outcome := checkoutmodel.OutcomeConfirmed
			reference := "UTR999"
			Expect(repo.Create(&checkoutmodel.PaymentSession{
				ID:               "restored",
				GatewayOrderID:   "ord_restored",
				Status:           string(checkout.StatusSuccess),
				Finalized:        true,
				Outcome:          &outcome,
				PaymentReference: &reference,
			})).To(Succeed())

			status, err := service.GetStatus("restored")
			Expect(err).ToNot(HaveOccurred())
			Expect(status.Status).To(Equal(checkout.StatusSuccess))
			Expect(status.Finalized).To(BeTrue())
			Expect(status.PaymentReference).To(Equal("UTR999"))
		})
	})

	Describe("Resume", func() {
		It("starts verification when the customer switches back", func() {
			gw.orderStatusFn = func(int) string { return gatewaytypes.OrderStatusPaid }
			gw.payments = []gatewaytypes.Payment{
				{PaymentID: 105, PaymentStatus: gatewaytypes.PaymentStatusSuccess, BankReference: "UTR321"},
			}

			view, err := service.StartCheckout(ctx, validCheckoutRequest())
			Expect(err).ToNot(HaveOccurred())

			Expect(service.Resume(ctx, view.SessionID)).To(Succeed())

			Eventually(func() bool {
				status, _ := service.GetStatus(view.SessionID)
				return status.Finalized
			}).Should(BeTrue())
			Expect(placer.callCount()).To(Equal(1))
		})
	})
})

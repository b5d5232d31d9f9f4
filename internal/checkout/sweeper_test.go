package checkout_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/dineflow/restaurant-ordering/internal/checkout"
	checkoutmodel "github.com/dineflow/restaurant-ordering/internal/core/datamodel/checkout"
	gatewaytypes "github.com/dineflow/restaurant-ordering/internal/core/datamodel/gateway"
)

var _ = Describe("Sweeper", func() {
	var (
		repo    *mockCheckoutRepository
		gw      *mockGateway
		placer  *mockOrderPlacer
		sweeper *checkout.Sweeper
		ctx     context.Context
	)

	seedUnresolved := func(id, gatewayOrderID, status string) {
		Expect(repo.Create(&checkoutmodel.PaymentSession{
			ID:             id,
			GatewayOrderID: gatewayOrderID,
			Amount:         decimal.RequireFromString("240.00"),
			Currency:       "INR",
			Status:         status,
			Draft:          []byte(`{"customer_name":"Asha Rao","customer_phone":"9876543210","order_type":"dine_in","items":[{"menu_item_id":1,"name":"Masala Dosa","quantity":2,"unit_price":"120.00"}],"subtotal":"240.00"}`),
		})).To(Succeed())
	}

	BeforeEach(func() {
		repo = newMockCheckoutRepository()
		gw = newMockGateway()
		placer = &mockOrderPlacer{}
		sweeper = checkout.NewSweeper(repo, repo, gw, placer, quietLogger())
		ctx = context.Background()
	})

	It("finalizes a session whose payment was captured while the process was down", func() {
		seedUnresolved("sess-1", "ord_1", "TIMEOUT")
		gw.orderStatusFn = func(int) string { return gatewaytypes.OrderStatusPaid }
		gw.payments = []gatewaytypes.Payment{
			{PaymentID: 300, PaymentStatus: gatewaytypes.PaymentStatusSuccess, BankReference: "UTR300"},
		}

		resolved, err := sweeper.Run(ctx, 10)

		Expect(err).ToNot(HaveOccurred())
		Expect(resolved).To(Equal(1))
		Expect(placer.callCount()).To(Equal(1))

		record, err := repo.GetByID("sess-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(record.Finalized).To(BeTrue())
		Expect(*record.Outcome).To(Equal(checkoutmodel.OutcomeConfirmed))
		Expect(*record.PaymentReference).To(Equal("UTR300"))
		Expect(record.OrderID).ToNot(BeNil())
	})

	It("marks a session failed when the gateway order expired", func() {
		seedUnresolved("sess-1", "ord_1", "VERIFYING")
		gw.orderStatusFn = func(int) string { return gatewaytypes.OrderStatusExpired }

		resolved, err := sweeper.Run(ctx, 10)

		Expect(err).ToNot(HaveOccurred())
		Expect(resolved).To(Equal(1))
		Expect(placer.callCount()).To(BeZero())

		record, err := repo.GetByID("sess-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(record.Status).To(Equal("FAILED"))
	})

	It("leaves a still-active session for the next sweep", func() {
		seedUnresolved("sess-1", "ord_1", "PROCESSING")

		resolved, err := sweeper.Run(ctx, 10)

		Expect(err).ToNot(HaveOccurred())
		Expect(resolved).To(BeZero())

		record, err := repo.GetByID("sess-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(record.Finalized).To(BeFalse())
		Expect(record.Status).To(Equal("PROCESSING"))
	})

	It("parks the session for support when order creation fails", func() {
		seedUnresolved("sess-1", "ord_1", "TIMEOUT")
		gw.orderStatusFn = func(int) string { return gatewaytypes.OrderStatusPaid }
		placer.err = errors.New("orders table unavailable")

		resolved, err := sweeper.Run(ctx, 10)

		Expect(err).ToNot(HaveOccurred())
		Expect(resolved).To(BeZero())

		record, err := repo.GetByID("sess-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(record.Finalized).To(BeTrue())
		Expect(*record.Outcome).To(Equal(checkoutmodel.OutcomeConfirmationFailed))
	})
})

package checkout_test

import (
	"log/slog"
	"os"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dineflow/restaurant-ordering/internal/checkout"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

var _ = Describe("Payment state machine", func() {
	Describe("CanTransition", func() {
		DescribeTable("transition table",
			func(from, to checkout.Status, allowed bool) {
				Expect(checkout.CanTransition(from, to)).To(Equal(allowed))
			},
			Entry("idle to initializing", checkout.StatusIdle, checkout.StatusInitializing, true),
			Entry("initializing to processing", checkout.StatusInitializing, checkout.StatusProcessing, true),
			Entry("initializing to failed", checkout.StatusInitializing, checkout.StatusFailed, true),
			Entry("processing to verifying", checkout.StatusProcessing, checkout.StatusVerifying, true),
			Entry("processing to success", checkout.StatusProcessing, checkout.StatusSuccess, true),
			Entry("processing to failed", checkout.StatusProcessing, checkout.StatusFailed, true),
			Entry("processing to cancelled", checkout.StatusProcessing, checkout.StatusCancelled, true),
			Entry("verifying to success", checkout.StatusVerifying, checkout.StatusSuccess, true),
			Entry("verifying to failed", checkout.StatusVerifying, checkout.StatusFailed, true),
			Entry("verifying to timeout", checkout.StatusVerifying, checkout.StatusTimeout, true),
			Entry("failed back to initializing", checkout.StatusFailed, checkout.StatusInitializing, true),
			Entry("timeout back to initializing", checkout.StatusTimeout, checkout.StatusInitializing, true),
			Entry("cancelled back to initializing", checkout.StatusCancelled, checkout.StatusInitializing, true),
			Entry("success has no outgoing edges", checkout.StatusSuccess, checkout.StatusInitializing, false),
			Entry("cancelled cannot jump to success", checkout.StatusCancelled, checkout.StatusSuccess, false),
			Entry("timeout cannot jump to success", checkout.StatusTimeout, checkout.StatusSuccess, false),
			Entry("idle cannot skip to processing", checkout.StatusIdle, checkout.StatusProcessing, false),
			Entry("verifying cannot go back to processing", checkout.StatusVerifying, checkout.StatusProcessing, false),
		)
	})

	Describe("Terminal", func() {
		It("marks the four resolved states terminal", func() {
			Expect(checkout.StatusSuccess.Terminal()).To(BeTrue())
			Expect(checkout.StatusFailed.Terminal()).To(BeTrue())
			Expect(checkout.StatusCancelled.Terminal()).To(BeTrue())
			Expect(checkout.StatusTimeout.Terminal()).To(BeTrue())
			Expect(checkout.StatusVerifying.Terminal()).To(BeFalse())
			Expect(checkout.StatusIdle.Terminal()).To(BeFalse())
		})
	})

	Describe("Tracker", func() {
		var tracker *checkout.Tracker

		BeforeEach(func() {
			tracker = checkout.NewTracker("sess-1", 0, quietLogger())
		})

		It("starts idle", func() {
			Expect(tracker.Status()).To(Equal(checkout.StatusIdle))
		})

		It("applies legal transitions and rejects illegal ones", func() {
			Expect(tracker.Transition(checkout.StatusInitializing)).To(BeTrue())
			Expect(tracker.Transition(checkout.StatusVerifying)).To(BeFalse())
			Expect(tracker.Status()).To(Equal(checkout.StatusInitializing))

			Expect(tracker.Transition(checkout.StatusProcessing)).To(BeTrue())
			Expect(tracker.Transition(checkout.StatusVerifying)).To(BeTrue())
			Expect(tracker.Status()).To(Equal(checkout.StatusVerifying))
		})

		It("freezes state once finalized", func() {
			tracker.Transition(checkout.StatusInitializing)
			tracker.Transition(checkout.StatusProcessing)
			Expect(tracker.ClaimFinalize()).To(BeTrue())

			Expect(tracker.Transition(checkout.StatusVerifying)).To(BeFalse())
			Expect(tracker.Status()).To(Equal(checkout.StatusProcessing))
		})

		It("grants the finalize claim exactly once under contention", func() {
			const goroutines = 32

			var wg sync.WaitGroup
			var mu sync.Mutex
			claims := 0

			for i := 0; i < goroutines; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if tracker.ClaimFinalize() {
						mu.Lock()
						claims++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Expect(claims).To(Equal(1))
			Expect(tracker.Finalized()).To(BeTrue())
		})

		It("discards push confirmations after finalization", func() {
			Expect(tracker.MarkPushConfirmed("utr-1")).To(BeTrue())
			confirmed, reference := tracker.PushConfirmed()
			Expect(confirmed).To(BeTrue())
			Expect(reference).To(Equal("utr-1"))

			Expect(tracker.ClaimFinalize()).To(BeTrue())
			Expect(tracker.MarkPushConfirmed("utr-2")).To(BeFalse())

			_, reference = tracker.PushConfirmed()
			Expect(reference).To(Equal("utr-1"))
		})

		It("counts verification attempts", func() {
			Expect(tracker.IncrementVerificationAttempts()).To(Equal(1))
			Expect(tracker.IncrementVerificationAttempts()).To(Equal(2))
			Expect(tracker.VerificationAttempts()).To(Equal(2))
		})
	})
})

package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/dineflow/restaurant-ordering/internal/core/events"
	"github.com/dineflow/restaurant-ordering/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Manage events: publish simulated gateway pushes, inspect handlers`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a simulated payment event",
	Long:  `Publish a simulated gateway push event to the event bus for testing and debugging`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		publishTestEvent(args[0])
	},
}

var (
	eventOrderID   string
	eventReference string
	eventReason    string
)

func publishTestEvent(eventType string) {
	logger := logger.LoggerWrapper()

	eventBus := events.NewEventBus(logger)

	eventBus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
		logger.Info("test handler received event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	var testEvent events.Event
	switch eventType {
	case events.EventTypeOrderUpdate:
		testEvent = events.NewOrderUpdateEvent(eventOrderID, "SUCCESS", eventReference)
	default:
		testEvent = events.NewPaymentSignalEvent(eventType, eventOrderID, eventReference, eventReason)
	}

	logger.Info("publishing test event", "event_type", eventType, "event_id", testEvent.EventID())

	ctx := context.Background()
	if err := eventBus.Publish(ctx, testEvent); err != nil {
		logger.Error("failed to publish event", "error", err)
		return
	}

	time.Sleep(100 * time.Millisecond)
	logger.Info("test event published successfully")
}

func init() {
	publishEventCmd.Flags().StringVar(&eventOrderID, "order-id", "", "Gateway order id the event refers to")
	publishEventCmd.Flags().StringVar(&eventReference, "reference", "", "Payment reference (UTR)")
	publishEventCmd.Flags().StringVar(&eventReason, "reason", "", "Failure reason for payment.failed events")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}

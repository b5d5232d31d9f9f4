package checkout

import (
	"context"
	"log/slog"

	"github.com/dineflow/restaurant-ordering/internal/core/events"
	gatewaytypes "github.com/dineflow/restaurant-ordering/internal/core/datamodel/gateway"
)

// Bridge routes gateway push events from the event bus into the checkout
// service. Events reference sessions by gateway order id; anything for an
// unknown or already finalized session is dropped here.
type Bridge struct {
	service *Service
	logger  *slog.Logger
}

func NewBridge(service *Service, logger *slog.Logger) *Bridge {
	return &Bridge{service: service, logger: logger}
}

// RegisterEventHandlers subscribes the bridge to the payment push topics.
func (b *Bridge) RegisterEventHandlers(bus *events.EventBus) {
	bus.Subscribe(events.EventTypePaymentSuccess, b.handlePaymentSignal)
	bus.Subscribe(events.EventTypePaymentConfirmed, b.handlePaymentSignal)
	bus.Subscribe(events.EventTypePaymentFailed, b.handlePaymentSignal)
	bus.Subscribe(events.EventTypeOrderUpdate, b.handleOrderUpdate)
}

func (b *Bridge) handlePaymentSignal(ctx context.Context, event events.Event) error {
	signal, ok := event.(*events.PaymentSignalEvent)
	if !ok {
		b.logger.Warn("unexpected event payload on payment topic",
			"event_type", event.EventType())
		return nil
	}

	sess := b.service.sessionByGatewayOrder(signal.GatewayOrderID)
	if sess == nil {
		b.logger.Debug("push signal for unknown gateway order",
			"gateway_order_id", signal.GatewayOrderID,
			"event_type", event.EventType())
		return nil
	}

	switch event.EventType() {
	case events.EventTypePaymentSuccess, events.EventTypePaymentConfirmed:
		b.service.applyPushConfirmation(ctx, sess, signal.PaymentReference)
	case events.EventTypePaymentFailed:
		b.service.applyPushFailure(sess, signal.FailureReason, false)
	}
	return nil
}

func (b *Bridge) handleOrderUpdate(ctx context.Context, event events.Event) error {
	update, ok := event.(*events.OrderUpdateEvent)
	if !ok {
		b.logger.Warn("unexpected event payload on order update topic",
			"event_type", event.EventType())
		return nil
	}

	sess := b.service.sessionByGatewayOrder(update.GatewayOrderID)
	if sess == nil {
		b.logger.Debug("order update for unknown gateway order",
			"gateway_order_id", update.GatewayOrderID)
		return nil
	}

	switch update.PaymentStatus {
	case gatewaytypes.PaymentStatusSuccess:
		b.service.applyPushConfirmation(ctx, sess, update.PaymentReference)
	case gatewaytypes.PaymentStatusFailed:
		b.service.applyPushFailure(sess, "payment failed at gateway", false)
	case gatewaytypes.PaymentStatusUserDropped, gatewaytypes.PaymentStatusCancelled:
		b.service.applyPushFailure(sess, "payment abandoned by customer", true)
	default:
		b.logger.Debug("ignoring non-terminal order update",
			"gateway_order_id", update.GatewayOrderID,
			"payment_status", update.PaymentStatus)
	}
	return nil
}

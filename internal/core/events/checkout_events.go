package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentSuccess   = "payment.success"
	EventTypePaymentConfirmed = "payment.confirmed"
	EventTypePaymentFailed    = "payment.failed"
	EventTypeOrderUpdate      = "order.update"
	EventTypeCheckoutComplete = "checkout.completed"
)

// PaymentSignalEvent is a push confirmation from the gateway, scoped by the
// gateway order id. payment.success, payment.confirmed and payment.failed all
// share this shape.
type PaymentSignalEvent struct {
	BaseEvent
	GatewayOrderID   string `json:"gateway_order_id"`
	PaymentReference string `json:"payment_reference,omitempty"`
	FailureReason    string `json:"failure_reason,omitempty"`
}

func NewPaymentSignalEvent(eventType, gatewayOrderID, paymentReference, failureReason string) *PaymentSignalEvent {
	return &PaymentSignalEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"gateway_order_id":  gatewayOrderID,
				"payment_reference": paymentReference,
				"failure_reason":    failureReason,
			},
		},
		GatewayOrderID:   gatewayOrderID,
		PaymentReference: paymentReference,
		FailureReason:    failureReason,
	}
}

// OrderUpdateEvent is the generic gateway notification carrying a payment
// sub-status; the bridge maps the sub-status onto success or failure.
type OrderUpdateEvent struct {
	BaseEvent
	GatewayOrderID   string `json:"gateway_order_id"`
	PaymentStatus    string `json:"payment_status"`
	PaymentReference string `json:"payment_reference,omitempty"`
}

func NewOrderUpdateEvent(gatewayOrderID, paymentStatus, paymentReference string) *OrderUpdateEvent {
	return &OrderUpdateEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeOrderUpdate,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"gateway_order_id":  gatewayOrderID,
				"payment_status":    paymentStatus,
				"payment_reference": paymentReference,
			},
		},
		GatewayOrderID:   gatewayOrderID,
		PaymentStatus:    paymentStatus,
		PaymentReference: paymentReference,
	}
}

// CheckoutCompletedEvent announces a finalized session with its persisted
// order, for notification surfaces.
type CheckoutCompletedEvent struct {
	BaseEvent
	SessionID        string `json:"session_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	OrderID          int64  `json:"order_id"`
	OrderNumber      string `json:"order_number"`
	PaymentReference string `json:"payment_reference"`
}

func NewCheckoutCompletedEvent(sessionID, gatewayOrderID string, orderID int64, orderNumber, paymentReference string) *CheckoutCompletedEvent {
	return &CheckoutCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeCheckoutComplete,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"session_id":        sessionID,
				"gateway_order_id":  gatewayOrderID,
				"order_id":          orderID,
				"order_number":      orderNumber,
				"payment_reference": paymentReference,
			},
		},
		SessionID:        sessionID,
		GatewayOrderID:   gatewayOrderID,
		OrderID:          orderID,
		OrderNumber:      orderNumber,
		PaymentReference: paymentReference,
	}
}

package gateway

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Order status reported by GET /pg/orders/{id}.
const (
	OrderStatusActive     = "ACTIVE"
	OrderStatusPaid       = "PAID"
	OrderStatusExpired    = "EXPIRED"
	OrderStatusTerminated = "TERMINATED"
)

// Payment attempt status reported by GET /pg/orders/{id}/payments.
const (
	PaymentStatusSuccess      = "SUCCESS"
	PaymentStatusFailed       = "FAILED"
	PaymentStatusPending      = "PENDING"
	PaymentStatusUserDropped  = "USER_DROPPED"
	PaymentStatusCancelled    = "CANCELLED"
	PaymentStatusNotAttempted = "NOT_ATTEMPTED"
)

type CustomerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
}

type OrderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
	NotifyURL string `json:"notify_url,omitempty"`
}

type CreateOrderRequest struct {
	OrderID         string          `json:"order_id"`
	OrderAmount     decimal.Decimal `json:"order_amount"`
	OrderCurrency   string          `json:"order_currency"`
	CustomerDetails CustomerDetails `json:"customer_details"`
	OrderMeta       OrderMeta       `json:"order_meta"`
	OrderNote       string          `json:"order_note,omitempty"`
}

func (r *CreateOrderRequest) Validate() error {
	if r.OrderID == "" {
		return errors.New("order_id is required")
	}
	if r.OrderAmount.LessThanOrEqual(decimal.Zero) {
		return errors.New("order_amount must be greater than 0")
	}
	if r.OrderCurrency == "" {
		return errors.New("order_currency is required")
	}
	if r.CustomerDetails.CustomerPhone == "" {
		return errors.New("customer_phone is required")
	}
	return nil
}

type CreateOrderResponse struct {
	OrderID          string          `json:"order_id"`
	PaymentSessionID string          `json:"payment_session_id"`
	OrderStatus      string          `json:"order_status"`
	OrderAmount      decimal.Decimal `json:"order_amount"`
}

type OrderStatusResponse struct {
	OrderID       string          `json:"order_id"`
	OrderStatus   string          `json:"order_status"`
	OrderAmount   decimal.Decimal `json:"order_amount"`
	OrderCurrency string          `json:"order_currency"`
}

// Payment is one attempt entry; the gateway returns the list most recent
// first.
type Payment struct {
	PaymentID     int64           `json:"cf_payment_id"`
	PaymentStatus string          `json:"payment_status"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
	PaymentTime   time.Time       `json:"payment_time"`
	BankReference string          `json:"bank_reference,omitempty"`
	PaymentGroup  string          `json:"payment_group,omitempty"`
}

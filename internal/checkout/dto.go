package checkout

import (
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/dineflow/restaurant-ordering/internal"
	checkoutmodel "github.com/dineflow/restaurant-ordering/internal/core/datamodel/checkout"
	"github.com/dineflow/restaurant-ordering/internal/core/common/validation"
)

type CheckoutItem struct {
	MenuItemID int64           `json:"menu_item_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// StartCheckoutRequest is the customer-facing submit payload. Validation is
// local and happens before any gateway call; a rejected request never opens
// a payment session.
type StartCheckoutRequest struct {
	CustomerName  string         `json:"customer_name"`
	CustomerPhone string         `json:"customer_phone"`
	OrderType     string         `json:"order_type"`
	TableNumber   *string        `json:"table_number,omitempty"`
	Note          string         `json:"note,omitempty"`
	Items         []CheckoutItem `json:"items"`
}

// Validate checks the request against the gateway transaction bounds and
// freezes it into an OrderDraft. The total is rounded to 2 decimal places
// before the bounds check.
func (r *StartCheckoutRequest) Validate(minAmount, maxAmount decimal.Decimal) (*checkoutmodel.OrderDraft, *errors.AppError) {
	if len(r.Items) == 0 {
		return nil, errors.NewValidationError("cart is empty", errors.ErrCodeEmptyCart)
	}

	validator := validation.NewValidator()
	validator.Field("customer_name", r.CustomerName).Required().MaxLength(120)
	validator.Field("customer_phone", r.CustomerPhone).Required().MinLength(10).MaxLength(15)
	validator.Field("order_type", r.OrderType).Required()
	if appErr := validator.Validate(); appErr != nil {
		return nil, appErr
	}

	if !checkoutmodel.ValidOrderType(r.OrderType) {
		return nil, errors.NewValidationError("order type must be dine_in, takeaway or delivery", errors.ErrCodeInvalidOrderType)
	}

	draft := &checkoutmodel.OrderDraft{
		CustomerName:  r.CustomerName,
		CustomerPhone: r.CustomerPhone,
		OrderType:     r.OrderType,
		TableNumber:   r.TableNumber,
		Note:          r.Note,
		Items:         make([]checkoutmodel.DraftItem, 0, len(r.Items)),
	}

	for _, item := range r.Items {
		if item.Quantity <= 0 {
			return nil, errors.NewValidationFieldError("items", "item quantity must be positive", errors.ErrCodeValidationFailed)
		}
		if item.UnitPrice.LessThanOrEqual(decimal.Zero) {
			return nil, errors.NewValidationFieldError("items", "item price must be positive", errors.ErrCodeInvalidAmount)
		}
		draft.Items = append(draft.Items, checkoutmodel.DraftItem{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}

	total := draft.Total().Round(2)
	amountValidator := validation.NewValidator()
	amountValidator.Field("amount", total).MinAmount(minAmount).MaxAmount(maxAmount)
	if appErr := amountValidator.Validate(); appErr != nil {
		return nil, appErr
	}

	draft.Subtotal = total
	return draft, nil
}

// SessionView is returned to the UI after a session is opened; the gateway
// payment session id is what the UPI SDK consumes.
type SessionView struct {
	SessionID        string          `json:"session_id"`
	GatewayOrderID   string          `json:"gateway_order_id"`
	PaymentSessionID string          `json:"payment_session_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           Status          `json:"status"`
	RetryCount       int             `json:"retry_count"`
}

type OrderView struct {
	ID          int64     `json:"id"`
	OrderNumber string    `json:"order_number"`
	Status      string    `json:"status"`
	PlacedAt    time.Time `json:"placed_at"`
}

// StatusView drives the UI's spinner/status rendering. Message carries the
// customer-facing text for the pending and contact-support cases.
type StatusView struct {
	SessionID            string     `json:"session_id"`
	Status               Status     `json:"status"`
	Finalized            bool       `json:"finalized"`
	VerificationAttempts int        `json:"verification_attempts"`
	RetryCount           int        `json:"retry_count"`
	Outcome              string     `json:"outcome,omitempty"`
	PaymentReference     string     `json:"payment_reference,omitempty"`
	Order                *OrderView `json:"order,omitempty"`
	Message              string     `json:"message,omitempty"`
}

package checkout

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome of a finished session, persisted alongside the status so support
// staff can tell a late confirmation from a lost one.
const (
	OutcomeConfirmed           = "confirmed"
	OutcomeConfirmationFailed  = "order_confirmation_failed"
	OutcomePendingVerification = "pending_verification"
)

// PaymentSession is one attempt to pay for one order draft. A retry
// supersedes the session rather than mutating it; the superseded_by column
// links the chain.
type PaymentSession struct {
	ID                     string          `json:"id" gorm:"primaryKey"`
	GatewayOrderID         string          `json:"gateway_order_id" gorm:"column:gateway_order_id;not null;uniqueIndex"`
	GatewaySessionID       string          `json:"gateway_session_id" gorm:"column:gateway_session_id"`
	Amount                 decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(10,2);not null"`
	Currency               string          `json:"currency" gorm:"column:currency;default:INR"`
	Status                 string          `json:"status" gorm:"column:status;default:IDLE"`
	RetryCount             int             `json:"retry_count" gorm:"column:retry_count;default:0"`
	VerificationAttempts   int             `json:"verification_attempts" gorm:"column:verification_attempts;default:0"`
	Finalized              bool            `json:"finalized" gorm:"column:finalized;default:false"`
	OrderCreationAttempted bool            `json:"order_creation_attempted" gorm:"column:order_creation_attempted;default:false"`
	Outcome                *string         `json:"outcome,omitempty" gorm:"column:outcome"`
	PaymentReference       *string         `json:"payment_reference,omitempty" gorm:"column:payment_reference"`
	FailureReason          *string         `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	OrderID                *int64          `json:"order_id,omitempty" gorm:"column:order_id"`
	Draft                  json.RawMessage `json:"draft" gorm:"column:draft;type:jsonb"`
	SupersededBy           *string         `json:"superseded_by,omitempty" gorm:"column:superseded_by"`
	CreatedAt              time.Time       `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt              time.Time       `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (PaymentSession) TableName() string {
	return "payment_sessions"
}

// UnmarshalDraft decodes the frozen cart snapshot.
func (s *PaymentSession) UnmarshalDraft() (*OrderDraft, error) {
	var draft OrderDraft
	if err := json.Unmarshal(s.Draft, &draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

// OrderDraft is the cart snapshot captured when the payment session is
// created. The live cart may change or clear while payment is pending, so
// order creation always uses this frozen copy.
type OrderDraft struct {
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	OrderType     string          `json:"order_type"`
	TableNumber   *string         `json:"table_number,omitempty"`
	Note          string          `json:"note,omitempty"`
	Items         []DraftItem     `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
}

type DraftItem struct {
	MenuItemID int64           `json:"menu_item_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// Total recomputes the draft total from its items.
func (d *OrderDraft) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range d.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

const (
	OrderTypeDineIn   = "dine_in"
	OrderTypeTakeaway = "takeaway"
	OrderTypeDelivery = "delivery"
)

func ValidOrderType(t string) bool {
	switch t {
	case OrderTypeDineIn, OrderTypeTakeaway, OrderTypeDelivery:
		return true
	}
	return false
}

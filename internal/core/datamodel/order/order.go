package order

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Kitchen-facing lifecycle. Payment state is tracked separately on the
// checkout session; an order row only exists once payment is confirmed.
const (
	StatusPlaced    = "placed"
	StatusPreparing = "preparing"
	StatusReady     = "ready"
	StatusServed    = "served"
	StatusCancelled = "cancelled"
)

const PaymentStatusPaid = "paid"

type Order struct {
	ID               int64           `json:"id" gorm:"primaryKey"`
	OrderNumber      string          `json:"order_number" gorm:"column:order_number;not null;uniqueIndex"`
	SessionID        string          `json:"session_id" gorm:"column:session_id;not null;uniqueIndex"`
	CustomerName     string          `json:"customer_name" gorm:"column:customer_name;not null"`
	CustomerPhone    string          `json:"customer_phone" gorm:"column:customer_phone"`
	OrderType        string          `json:"order_type" gorm:"column:order_type;not null"`
	TableNumber      *string         `json:"table_number,omitempty" gorm:"column:table_number"`
	Note             string          `json:"note,omitempty" gorm:"column:note"`
	Items            json.RawMessage `json:"items" gorm:"column:items;type:jsonb"`
	Subtotal         decimal.Decimal `json:"subtotal" gorm:"column:subtotal;type:numeric(10,2);not null"`
	PaymentStatus    string          `json:"payment_status" gorm:"column:payment_status;default:paid"`
	PaymentReference string          `json:"payment_reference" gorm:"column:payment_reference;not null"`
	Status           string          `json:"status" gorm:"column:status;default:placed"`
	CreatedAt        time.Time       `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Order) TableName() string {
	return "orders"
}

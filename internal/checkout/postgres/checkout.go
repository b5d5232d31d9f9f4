package postgres

import (
	"time"

	"gorm.io/gorm"

	checkoutpkg "github.com/dineflow/restaurant-ordering/internal/checkout"
	"github.com/dineflow/restaurant-ordering/internal/core/datamodel/checkout"
)

type CheckoutRepository struct {
	db *gorm.DB
}

func NewCheckoutRepository(db *gorm.DB) *CheckoutRepository {
	return &CheckoutRepository{
		db: db,
	}
}

var _ checkoutpkg.RepositoryAPI = (*CheckoutRepository)(nil)
var _ checkoutpkg.UnresolvedLister = (*CheckoutRepository)(nil)

func (r *CheckoutRepository) Create(s *checkout.PaymentSession) error {
	return r.db.Create(s).Error
}

func (r *CheckoutRepository) GetByID(id string) (*checkout.PaymentSession, error) {
	var s checkout.PaymentSession
	err := r.db.Where("id = ?", id).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *CheckoutRepository) GetByGatewayOrderID(gatewayOrderID string) (*checkout.PaymentSession, error) {
	var s checkout.PaymentSession
	err := r.db.Where("gateway_order_id = ?", gatewayOrderID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *CheckoutRepository) UpdateState(id string, status string, verificationAttempts int) error {
	return r.db.Model(&checkout.PaymentSession{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":                status,
		"verification_attempts": verificationAttempts,
		"updated_at":            time.Now(),
	}).Error
}

// MarkFinalized records the resolved outcome. Guarded on finalized = false so
// a racing writer cannot overwrite the first resolution.
func (r *CheckoutRepository) MarkFinalized(id string, outcome string, paymentReference string, orderID *int64) error {
	updates := map[string]interface{}{
		"finalized":                true,
		"order_creation_attempted": true,
		"outcome":                  outcome,
		"updated_at":               time.Now(),
	}
	if paymentReference != "" {
		updates["payment_reference"] = paymentReference
	}
	if orderID != nil {
		updates["order_id"] = *orderID
	}

	return r.db.Model(&checkout.PaymentSession{}).
		Where("id = ? AND finalized = ?", id, false).
		Updates(updates).Error
}

func (r *CheckoutRepository) MarkOutcome(id string, outcome string, failureReason *string) error {
	updates := map[string]interface{}{
		"outcome":    outcome,
		"updated_at": time.Now(),
	}
	if failureReason != nil {
		updates["failure_reason"] = *failureReason
	}

	return r.db.Model(&checkout.PaymentSession{}).Where("id = ?", id).Updates(updates).Error
}

// ListUnresolved returns sessions whose payment outcome was never settled,
// oldest first. Superseded sessions are skipped; their replacement carries
// the live attempt.
func (r *CheckoutRepository) ListUnresolved(limit int) ([]*checkout.PaymentSession, error) {
	var sessions []*checkout.PaymentSession
	err := r.db.
		Where("finalized = ?", false).
		Where("status IN ?", []string{"PROCESSING", "VERIFYING", "TIMEOUT"}).
		Where("superseded_by IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

func (r *CheckoutRepository) MarkSuperseded(id string, supersededBy string) error {
	return r.db.Model(&checkout.PaymentSession{}).Where("id = ?", id).Updates(map[string]interface{}{
		"superseded_by": supersededBy,
		"updated_at":    time.Now(),
	}).Error
}

package postgres

import (
	"time"

	"gorm.io/gorm"

	"github.com/dineflow/restaurant-ordering/internal/core/datamodel/order"
	orderpkg "github.com/dineflow/restaurant-ordering/internal/order"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) orderpkg.Repository {
	return &OrderRepository{
		db: db,
	}
}

func (r *OrderRepository) Create(o *order.Order) error {
	return r.db.Create(o).Error
}

func (r *OrderRepository) GetByID(id int64) (*order.Order, error) {
	var o order.Order
	err := r.db.First(&o, id).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) GetBySessionID(sessionID string) (*order.Order, error) {
	var o order.Order
	err := r.db.Where("session_id = ?", sessionID).First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) List(limit, offset int) ([]*order.Order, error) {
	var orders []*order.Order
	err := r.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) ListByStatus(status string, limit, offset int) ([]*order.Order, error) {
	var orders []*order.Order
	err := r.db.Where("status = ?", status).Order("created_at DESC").Limit(limit).Offset(offset).Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) UpdateStatus(id int64, status string) error {
	return r.db.Model(&order.Order{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}).Error
}

package mysql

import (
	"context"
	"errors"

	"order-placement-service/internal/domain"
	"order-placement-service/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type orderRepo struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) repository.OrderRepository {
	return &orderRepo{db: db}
}

func (r *orderRepo) FindByID(ctx context.Context, id uint64) (*domain.Order, error) {
	var o domain.Order
	if err := r.db.WithContext(ctx).Preload("Items").First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return &o, nil
}

func (r *orderRepo) FindByUserID(ctx context.Context, userID uint64) ([]domain.Order, error) {
	var out []domain.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id uint64, status domain.OrderStatus) (*domain.Order, error) {
	var updated *domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Order{}).Where("id = ?", id).Update("status", status)
		if res.Error != nil {
			return res.Error
		}
		var o domain.Order
		if err := tx.Preload("Items").First(&o, id).Error; err != nil {
			return err
		}
		updated = &o
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return updated, nil
}

// Delete locks the order row, then removes its cart rows and the order in
// the same transaction.
func (r *orderRepo) Delete(ctx context.Context, id uint64) (*domain.Order, error) {
	var deleted *domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o domain.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&o, id).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", id).Delete(&domain.CartItem{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&domain.Order{}, id).Error; err != nil {
			return err
		}
		deleted = &o
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return deleted, nil
}

package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/harvestline/storefront/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalOrderID string) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).
		Where("external_order_id = ?", externalOrderID).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	return db.WithContext(ctx).Create(order).Error
}

// Update persists the order. The external order ID is set exactly once and
// never rewritten afterwards; an attempt to change it means two provider
// orders are being conflated and is rejected.
func (r *repo) Update(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	var current domain.Order
	err := db.WithContext(ctx).
		Select("id", "external_order_id").
		Where("id = ?", order.ID).
		Limit(1).
		Find(&current).Error
	if err != nil {
		return err
	}
	if current.ID == 0 {
		return domain.ErrOrderNotFound
	}
	if current.ExternalOrderID != nil &&
		(order.ExternalOrderID == nil || *order.ExternalOrderID != *current.ExternalOrderID) {
		return domain.ErrExternalIDImmutable
	}

	order.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(order).Error
}

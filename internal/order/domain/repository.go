package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the persistence boundary for orders. Implementations receive
// the *gorm.DB so callers can pass a transaction handle.
type Repository interface {
	// FindByExternalID returns nil, nil when no order carries the external ID.
	FindByExternalID(ctx context.Context, db *gorm.DB, externalOrderID string) (*Order, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	Create(ctx context.Context, db *gorm.DB, order *Order) error
	Update(ctx context.Context, db *gorm.DB, order *Order) error
}

package plan

import (
	"context"

	"github.com/revuo/revuo/internal/types"
)

// Repository defines the interface for plan persistence
type Repository interface {
	Create(ctx context.Context, plan *Plan) error
	Get(ctx context.Context, key string) (*Plan, error)
	// GetByRemotePriceID finds the plan whose last synchronized price matches priceID.
	GetByRemotePriceID(ctx context.Context, priceID string) (*Plan, error)
	List(ctx context.Context, filter *types.PlanFilter) ([]*Plan, error)
	Count(ctx context.Context, filter *types.PlanFilter) (int, error)
	Update(ctx context.Context, plan *Plan) error
	// Delete hard-deletes a plan. Only used to roll back a creation whose sync failed.
	Delete(ctx context.Context, key string) error
}

package business

import (
	"context"
)

// Repository defines the interface for business persistence
type Repository interface {
	Create(ctx context.Context, b *Business) error
	Get(ctx context.Context, id string) (*Business, error)

	// UpdateSubscription writes the subscription block and active flag only if the stored
	// revision still equals expectedRevision, then bumps it. Returns ErrVersionConflict otherwise.
	UpdateSubscription(ctx context.Context, b *Business, expectedRevision int64) error

	// CountActiveByPlanKey counts businesses with active=true on the given plan.
	CountActiveByPlanKey(ctx context.Context, planKey string) (int, error)
}

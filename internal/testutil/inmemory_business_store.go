package testutil

import (
	"context"
	"time"

	"github.com/revuo/revuo/internal/domain/business"
	ierr "github.com/revuo/revuo/internal/errors"
)

// InMemoryBusinessStore implements business.Repository
type InMemoryBusinessStore struct {
	*InMemoryStore[*business.Business]

	// ConflictsToInject makes the next N UpdateSubscription calls fail with ErrVersionConflict
	// after bumping the stored revision, simulating a concurrent writer.
	ConflictsToInject int
}

func NewInMemoryBusinessStore() *InMemoryBusinessStore {
	return &InMemoryBusinessStore{
		InMemoryStore: NewInMemoryStore[*business.Business](),
	}
}

func (s *InMemoryBusinessStore) Create(ctx context.Context, b *business.Business) error {
	if b == nil {
		return ierr.NewError("business cannot be nil").
			WithHint("Business cannot be nil").
			Mark(ierr.ErrValidation)
	}
	if err := s.InMemoryStore.Create(ctx, b.ID, b.Copy()); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create business").
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryBusinessStore) Get(ctx context.Context, id string) (*business.Business, error) {
	b, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("business not found").
			WithHintf("Business %s not found", id).
			WithReportableDetails(map[string]interface{}{
				"business_id": id,
			}).
			Mark(ierr.ErrNotFound)
	}
	return b.Copy(), nil
}

func (s *InMemoryBusinessStore) UpdateSubscription(ctx context.Context, b *business.Business, expectedRevision int64) error {
	if b == nil {
		return ierr.NewError("business cannot be nil").
			WithHint("Business cannot be nil").
			Mark(ierr.ErrValidation)
	}

	if s.ConflictsToInject > 0 {
		s.ConflictsToInject--
		stored, err := s.InMemoryStore.Get(ctx, b.ID)
		if err == nil {
			bumped := stored.Copy()
			bumped.Revision++
			_ = s.InMemoryStore.Update(ctx, b.ID, bumped)
		}
		return versionConflict(b.ID, expectedRevision)
	}

	next := b.Copy()
	next.Revision = expectedRevision + 1
	next.UpdatedAt = time.Now().UTC()

	err := s.InMemoryStore.CompareAndSwap(ctx, b.ID, func(stored *business.Business) error {
		if stored.Revision != expectedRevision {
			return versionConflict(b.ID, expectedRevision)
		}
		// Only the subscription block and the active flag are writable here.
		next.Name = stored.Name
		next.OwnerEmail = stored.OwnerEmail
		next.BaseModel.CreatedAt = stored.CreatedAt
		next.BaseModel.CreatedBy = stored.CreatedBy
		return nil
	}, next)
	if err != nil {
		return err
	}

	b.Revision = next.Revision
	return nil
}

func (s *InMemoryBusinessStore) CountActiveByPlanKey(ctx context.Context, planKey string) (int, error) {
	return s.InMemoryStore.Count(ctx, planKey, func(_ context.Context, b *business.Business, filter interface{}) bool {
		return b.Active && b.Subscription.PlanKey == filter.(string)
	})
}

func versionConflict(id string, expected int64) error {
	return ierr.NewError("business revision has advanced").
		WithHint("The business was modified concurrently").
		WithReportableDetails(map[string]interface{}{
			"business_id":       id,
			"expected_revision": expected,
		}).
		Mark(ierr.ErrVersionConflict)
}

package testutil

import (
	"context"

	"github.com/revuo/revuo/internal/domain/activitylog"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/types"
	"github.com/samber/lo"
)

// InMemoryActivityLogStore implements activitylog.Repository
type InMemoryActivityLogStore struct {
	*InMemoryStore[*activitylog.Entry]
}

func NewInMemoryActivityLogStore() *InMemoryActivityLogStore {
	return &InMemoryActivityLogStore{
		InMemoryStore: NewInMemoryStore[*activitylog.Entry](),
	}
}

func (s *InMemoryActivityLogStore) Append(ctx context.Context, entry *activitylog.Entry) error {
	if entry == nil {
		return ierr.NewError("activity log entry cannot be nil").
			WithHint("Activity log entry cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, entry.ID, entry)
}

func (s *InMemoryActivityLogStore) ListByBusiness(ctx context.Context, businessID string, filter *types.QueryFilter) ([]*activitylog.Entry, error) {
	entries, err := s.InMemoryStore.List(ctx, businessID, func(_ context.Context, e *activitylog.Entry, f interface{}) bool {
		return e.BusinessID == f.(string)
	}, func(i, j *activitylog.Entry) bool {
		if i.CreatedAt.Equal(j.CreatedAt) {
			return i.ID > j.ID
		}
		return i.CreatedAt.After(j.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return paginate(entries, filter.GetLimit(), filter.GetOffset()), nil
}

func (s *InMemoryActivityLogStore) CountByBusiness(ctx context.Context, businessID string) (int, error) {
	return s.InMemoryStore.Count(ctx, businessID, func(_ context.Context, e *activitylog.Entry, f interface{}) bool {
		return e.BusinessID == f.(string)
	})
}

// TypesFor returns the activity types recorded for a business, oldest first.
func (s *InMemoryActivityLogStore) TypesFor(ctx context.Context, businessID string) []types.ActivityType {
	entries, _ := s.ListByBusiness(ctx, businessID, types.NewNoLimitQueryFilter())
	return lo.Reverse(lo.Map(entries, func(e *activitylog.Entry, _ int) types.ActivityType {
		return e.Type
	}))
}

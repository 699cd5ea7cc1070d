package activitylog

import (
	"context"
	"time"

	"github.com/revuo/revuo/internal/types"
)

// Entry is an append-only audit record about a business.
type Entry struct {
	ID          string             `json:"id"`
	BusinessID  string             `json:"business_id"`
	Type        types.ActivityType `json:"type"`
	Description string             `json:"description"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// NewEntry stamps a fresh entry. The current processor event id, if any, is added to metadata.
func NewEntry(ctx context.Context, businessID string, typ types.ActivityType, description string, metadata map[string]any) *Entry {
	if metadata == nil {
		metadata = map[string]any{}
	}
	if eventID := types.GetEventID(ctx); eventID != "" {
		metadata["event_id"] = eventID
	}
	return &Entry{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ACTIVITY_LOG),
		BusinessID:  businessID,
		Type:        typ,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}
}

// Repository is write-only from the billing core's point of view. ListByBusiness serves the
// operator audit endpoint, newest first.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	ListByBusiness(ctx context.Context, businessID string, filter *types.QueryFilter) ([]*Entry, error)
	CountByBusiness(ctx context.Context, businessID string) (int, error)
}

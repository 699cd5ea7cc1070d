package types

import (
	"context"
	"time"
)

type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Metadata is a free-form string map stored alongside most entities.
type Metadata map[string]string

// BaseModel is embedded in every persisted entity.
type BaseModel struct {
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

func GetDefaultBaseModel(ctx context.Context) BaseModel {
	now := time.Now().UTC()
	return BaseModel{
		Status:    StatusPublished,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: GetUserID(ctx),
		UpdatedBy: GetUserID(ctx),
	}
}

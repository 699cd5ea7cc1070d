package types

import (
	ierr "github.com/revuo/revuo/internal/errors"
)

const (
	FILTER_DEFAULT_LIMIT = 50
	FILTER_MAX_LIMIT     = 1000
)

// QueryFilter carries pagination for list endpoints. Limit 0 means no limit.
type QueryFilter struct {
	Limit  *int `json:"limit,omitempty" form:"limit"`
	Offset *int `json:"offset,omitempty" form:"offset"`
}

func NewDefaultQueryFilter() *QueryFilter {
	limit := FILTER_DEFAULT_LIMIT
	offset := 0
	return &QueryFilter{Limit: &limit, Offset: &offset}
}

func NewNoLimitQueryFilter() *QueryFilter {
	limit := 0
	offset := 0
	return &QueryFilter{Limit: &limit, Offset: &offset}
}

func (f *QueryFilter) GetLimit() int {
	if f == nil || f.Limit == nil {
		return FILTER_DEFAULT_LIMIT
	}
	return *f.Limit
}

func (f *QueryFilter) GetOffset() int {
	if f == nil || f.Offset == nil {
		return 0
	}
	return *f.Offset
}

func (f *QueryFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.Limit != nil && (*f.Limit < 0 || *f.Limit > FILTER_MAX_LIMIT) {
		return ierr.NewError("invalid limit").
			WithHintf("Limit must be between 0 and %d", FILTER_MAX_LIMIT).
			Mark(ierr.ErrValidation)
	}
	if f.Offset != nil && *f.Offset < 0 {
		return ierr.NewError("invalid offset").
			WithHint("Offset cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}

type PaginationResponse struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func NewPaginationResponse(total, limit, offset int) PaginationResponse {
	return PaginationResponse{Total: total, Limit: limit, Offset: offset}
}

type ListResponse[T any] struct {
	Items      []T                `json:"items"`
	Pagination PaginationResponse `json:"pagination"`
}

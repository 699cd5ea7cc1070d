package service

import (
	"context"
	"strings"

	"github.com/revuo/revuo/internal/api/dto"
	"github.com/revuo/revuo/internal/domain/business"
	"github.com/revuo/revuo/internal/interfaces"
)

type BusinessService = interfaces.BusinessService

type businessService struct {
	ServiceParams
}

func NewBusinessService(params ServiceParams) BusinessService {
	return &businessService{ServiceParams: params}
}

// CreateBusiness registers a business on the trial plan with an inactive subscription.
func (s *businessService) CreateBusiness(ctx context.Context, req dto.CreateBusinessRequest) (*dto.BusinessResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	b := business.New(ctx, strings.TrimSpace(req.Name), strings.ToLower(strings.TrimSpace(req.OwnerEmail)))
	if err := s.BusinessRepo.Create(ctx, b); err != nil {
		return nil, err
	}

	s.Logger.WithContext(ctx).Infow("business created", "business_id", b.ID)
	return &dto.BusinessResponse{Business: b}, nil
}

func (s *businessService) GetBusiness(ctx context.Context, id string) (*dto.BusinessResponse, error) {
	b, err := s.BusinessRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.BusinessResponse{Business: b}, nil
}

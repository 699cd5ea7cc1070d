package service

import (
	"testing"

	"github.com/revuo/revuo/internal/api/dto"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/testutil"
	"github.com/revuo/revuo/internal/types"
	"github.com/stretchr/testify/suite"
)

type BusinessServiceSuite struct {
	testutil.BaseServiceTestSuite
	service BusinessService
}

func TestBusinessService(t *testing.T) {
	suite.Run(t, new(BusinessServiceSuite))
}

func (s *BusinessServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewBusinessService(NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetStores().PlanRepo,
		s.GetStores().BusinessRepo,
		s.GetStores().ActivityLogRepo,
		s.GetGateway(),
	))
}

func (s *BusinessServiceSuite) TestCreateBusiness() {
	resp, err := s.service.CreateBusiness(s.GetContext(), dto.CreateBusinessRequest{
		Name:       "  Trattoria Roma ",
		OwnerEmail: "Chef@Roma.test",
	})
	s.Require().NoError(err)
	s.Equal("Trattoria Roma", resp.Name)
	s.Equal("chef@roma.test", resp.OwnerEmail)
	s.False(resp.Active)
	s.Equal(types.TrialPlanKey, resp.Subscription.PlanKey)
	s.Equal(types.SubscriptionStatusInactive, resp.Subscription.Status)
	s.Equal("test_user", resp.CreatedBy)

	got, err := s.service.GetBusiness(s.GetContext(), resp.ID)
	s.Require().NoError(err)
	s.Equal(resp.ID, got.ID)
}

func (s *BusinessServiceSuite) TestCreateBusinessValidation() {
	_, err := s.service.CreateBusiness(s.GetContext(), dto.CreateBusinessRequest{Name: "No Email"})
	s.True(ierr.IsValidation(err))
}

func (s *BusinessServiceSuite) TestGetUnknownBusiness() {
	_, err := s.service.GetBusiness(s.GetContext(), "biz_missing")
	s.True(ierr.IsNotFound(err))
}

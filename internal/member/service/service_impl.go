package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duespay/internal/clock"
	"github.com/smallbiznis/duespay/internal/config"
	"github.com/smallbiznis/duespay/internal/member/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Plans *config.PlanConfigHolder
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	plans *config.PlanConfigHolder
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("member.service"),
		genID: p.GenID,
		clock: p.Clock,
		plans: p.Plans,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateMemberRequest) (domain.Member, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Member{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Member{}, domain.ErrInvalidEmail
	}

	plan, ok := s.plans.Get().PlanFor(req.SubscriptionType)
	if !ok {
		return domain.Member{}, domain.ErrInvalidSubscription
	}

	status := req.Status
	switch status {
	case "":
		status = domain.StatusPending
	case domain.StatusPending, domain.StatusActive, domain.StatusInactive:
	default:
		return domain.Member{}, domain.ErrInvalidStatus
	}

	now := s.clock.Now()
	member := domain.Member{
		ID:               s.genID.Generate(),
		Name:             name,
		Email:            email,
		Status:           status,
		SubscriptionType: plan.SubscriptionType,
		Balance:          "$0",
		StartDate:        req.StartDate,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Insert(ctx, s.db, &member); err != nil {
		return domain.Member{}, err
	}

	s.log.Info("member.created",
		zap.String("member_id", member.ID.String()),
		zap.String("subscription_type", member.SubscriptionType),
	)
	return member, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Member, error) {
	member, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Member{}, err
	}
	if member == nil {
		return domain.Member{}, domain.ErrNotFound
	}
	return *member, nil
}

func (s *Service) ListActive(ctx context.Context) ([]*domain.Member, error) {
	return s.repo.ListByStatus(ctx, s.db, domain.StatusActive)
}

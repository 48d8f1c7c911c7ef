package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jam3a/internal/authz"
	"jam3a/internal/domain"
	"jam3a/internal/metrics"
	"jam3a/internal/notify"
	"jam3a/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultFeaturedLimit = 6
	MaxFeaturedLimit     = 20

	notifyTimeout = 5 * time.Second
)

// CreateDealInput carries the fields a seller or admin sets on a new deal
type CreateDealInput struct {
	Title           string
	TitleAr         string
	Description     string
	DescriptionAr   string
	CategoryID      uuid.UUID
	RegularPrice    float64
	Jam3aPrice      float64
	MinParticipants int
	MaxParticipants int
	ExpiryDate      time.Time
	Status          domain.DealStatus
	Featured        bool
	ImageURL        string
}

// DealQuery is a listing request. Without a status filter only active deals
// are listed unless AnyStatus is set.
type DealQuery struct {
	repository.DealFilter
	AnyStatus bool
}

// DealService defines the interface for deal business logic
type DealService interface {
	Create(ctx context.Context, actor authz.Actor, input CreateDealInput) (*domain.Deal, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Deal, error)
	List(ctx context.Context, query DealQuery) ([]*domain.Deal, int, error)
	Featured(ctx context.Context, limit int) ([]*domain.Deal, error)
	Update(ctx context.Context, actor authz.Actor, id uuid.UUID, patch domain.DealPatch) (*domain.Deal, error)
	Delete(ctx context.Context, actor authz.Actor, id uuid.UUID) (*domain.Deal, error)
	Join(ctx context.Context, actor authz.Actor, dealID uuid.UUID, productID *uuid.UUID) (*domain.Deal, error)
	Participants(ctx context.Context, actor authz.Actor, dealID uuid.UUID) ([]*domain.Participant, error)
}

type dealService struct {
	deals      repository.DealRepository
	categories repository.CategoryRepository
	policy     *authz.Policy
	dispatcher notify.Dispatcher
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewDealService creates a new instance of DealService
func NewDealService(
	deals repository.DealRepository,
	categories repository.CategoryRepository,
	policy *authz.Policy,
	dispatcher notify.Dispatcher,
	m *metrics.Metrics,
	logger *zap.Logger,
) DealService {
	return &dealService{
		deals:      deals,
		categories: categories,
		policy:     policy,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Create validates and stores a new deal owned by the actor
func (s *dealService) Create(ctx context.Context, actor authz.Actor, input CreateDealInput) (*domain.Deal, error) {
	if err := s.policy.Authorize(actor, authz.CapDealCreate); err != nil {
		return nil, err
	}

	now := s.now()
	status := input.Status
	if status == "" {
		status = domain.DealStatusActive
	}
	if status != domain.DealStatusPending && status != domain.DealStatusActive {
		return nil, domain.NewValidationError("a new deal must be %s or %s", domain.DealStatusPending, domain.DealStatusActive)
	}
	if !input.ExpiryDate.After(now) {
		return nil, domain.NewValidationError("expiry date must be in the future")
	}

	deal := &domain.Deal{
		ID:                 uuid.New(),
		Title:              strings.TrimSpace(input.Title),
		TitleAr:            input.TitleAr,
		Description:        input.Description,
		DescriptionAr:      input.DescriptionAr,
		CategoryID:         input.CategoryID,
		RegularPrice:       input.RegularPrice,
		Jam3aPrice:         input.Jam3aPrice,
		DiscountPercentage: domain.DiscountFor(input.RegularPrice, input.Jam3aPrice),
		MinParticipants:    input.MinParticipants,
		MaxParticipants:    input.MaxParticipants,
		ExpiryDate:         input.ExpiryDate,
		Status:             status,
		Featured:           input.Featured,
		ImageURL:           input.ImageURL,
		CreatedBy:          actor.ID,
		Participants:       []uuid.UUID{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := deal.Validate(); err != nil {
		return nil, err
	}

	category, err := s.categories.FindByID(ctx, deal.CategoryID)
	if err != nil {
		return nil, err
	}
	deal.Category = category

	if err := s.deals.Create(ctx, deal); err != nil {
		return nil, err
	}

	s.logger.Info("Deal created",
		zap.String("deal_id", deal.ID.String()),
		zap.String("code", deal.Code),
		zap.String("created_by", actor.ID.String()),
	)

	return deal, nil
}

// Get fetches a deal and persists any status correction time or capacity forces
func (s *dealService) Get(ctx context.Context, id uuid.UUID) (*domain.Deal, error) {
	deal, err := s.deals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if deal.Reconcile(now) {
		changed, err := s.deals.UpdateStatus(ctx, id, domain.DealStatusActive, deal.Status, now)
		if err != nil {
			s.logger.Warn("Failed to persist deal status correction",
				zap.String("deal_id", id.String()),
				zap.String("status", string(deal.Status)),
				zap.Error(err),
			)
		} else if changed && deal.Status == domain.DealStatusExpired {
			s.metrics.DealsExpired.WithLabelValues("lazy").Inc()
		}
	}

	return deal, nil
}

// List expires overdue deals and then returns one page of matches
func (s *dealService) List(ctx context.Context, query DealQuery) ([]*domain.Deal, int, error) {
	s.expireOverdue(ctx)

	filter := query.DealFilter
	if filter.Status == nil && !query.AnyStatus {
		active := domain.DealStatusActive
		filter.Status = &active
	}

	return s.deals.List(ctx, filter)
}

// Featured returns the newest active featured deals
func (s *dealService) Featured(ctx context.Context, limit int) ([]*domain.Deal, error) {
	if limit < 1 {
		limit = DefaultFeaturedLimit
	}
	if limit > MaxFeaturedLimit {
		limit = MaxFeaturedLimit
	}

	s.expireOverdue(ctx)

	active := domain.DealStatusActive
	featured := true
	deals, _, err := s.deals.List(ctx, repository.DealFilter{
		Status:    &active,
		Featured:  &featured,
		SortBy:    "created_at",
		SortOrder: repository.SortOrderDesc,
		Page:      1,
		PageSize:  limit,
	})
	return deals, err
}

// Update applies a patch under the same row lock joins take
func (s *dealService) Update(ctx context.Context, actor authz.Actor, id uuid.UUID, patch domain.DealPatch) (*domain.Deal, error) {
	if patch.CategoryID != nil {
		if _, err := s.categories.FindByID(ctx, *patch.CategoryID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	deal, err := s.deals.Update(ctx, id, now, func(deal *domain.Deal) error {
		if !s.policy.CanManageDeal(actor, deal) {
			return domain.ErrForbidden
		}
		return deal.Apply(patch, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Deal updated",
		zap.String("deal_id", id.String()),
		zap.String("status", string(deal.Status)),
		zap.String("actor", actor.ID.String()),
	)

	if deal.Status == domain.DealStatusCompleted {
		s.metrics.DealsCompleted.Inc()
		s.dispatch(ctx, notify.NewCompletedEvent(deal, now))
	}

	return deal, nil
}

// Delete removes a deal without participants or cancels one that has them.
// The cancelled deal is returned; nil means the deal was removed.
func (s *dealService) Delete(ctx context.Context, actor authz.Actor, id uuid.UUID) (*domain.Deal, error) {
	deal, err := s.deals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanManageDeal(actor, deal) {
		return nil, domain.ErrForbidden
	}

	cancelled, err := s.deals.Delete(ctx, id, s.now())
	if err != nil {
		return nil, err
	}

	if cancelled != nil {
		s.logger.Info("Deal with participants cancelled instead of deleted",
			zap.String("deal_id", id.String()),
			zap.Int("participants", cancelled.CurrentParticipants),
		)
	} else {
		s.logger.Info("Deal deleted", zap.String("deal_id", id.String()))
	}

	return cancelled, nil
}

// Join adds the actor to a deal. Notification happens after the join is
// committed and never changes its outcome.
func (s *dealService) Join(ctx context.Context, actor authz.Actor, dealID uuid.UUID, productID *uuid.UUID) (*domain.Deal, error) {
	if err := s.policy.Authorize(actor, authz.CapDealJoin); err != nil {
		return nil, err
	}

	now := s.now()
	result, err := s.deals.Join(ctx, repository.JoinRequest{
		DealID:    dealID,
		UserID:    actor.ID,
		ProductID: productID,
		Now:       now,
	})
	if err != nil {
		s.metrics.JoinAttempts.WithLabelValues(string(domain.CodeOf(err))).Inc()

		var de *domain.Error
		if !errors.As(err, &de) {
			return nil, fmt.Errorf("failed to join deal: %w", err)
		}
		return nil, err
	}

	s.metrics.JoinAttempts.WithLabelValues("OK").Inc()
	s.logger.Info("User joined deal",
		zap.String("deal_id", dealID.String()),
		zap.String("user_id", actor.ID.String()),
		zap.Int("participants", result.Deal.CurrentParticipants),
		zap.Int("max_participants", result.Deal.MaxParticipants),
	)

	s.dispatch(ctx, notify.NewJoinedEvent(result.Deal, actor.ID, result.Product, now))
	if result.Deal.Status == domain.DealStatusCompleted {
		s.metrics.DealsCompleted.Inc()
		s.dispatch(ctx, notify.NewCompletedEvent(result.Deal, now))
	}

	return result.Deal, nil
}

// Participants lists a deal's members for its owner or an admin
func (s *dealService) Participants(ctx context.Context, actor authz.Actor, dealID uuid.UUID) ([]*domain.Participant, error) {
	deal, err := s.deals.FindByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(actor.Role, authz.CapDealViewParticipants) || !s.policy.CanManageDeal(actor, deal) {
		return nil, domain.ErrForbidden
	}

	return s.deals.Participants(ctx, dealID)
}

func (s *dealService) expireOverdue(ctx context.Context) {
	expired, err := s.deals.ExpireOverdue(ctx, s.now())
	if err != nil {
		s.logger.Warn("Failed to expire overdue deals", zap.Error(err))
		return
	}
	if expired > 0 {
		s.metrics.DealsExpired.WithLabelValues("lazy").Add(float64(expired))
	}
}

// dispatch delivers an event detached from the request's cancellation
func (s *dealService) dispatch(ctx context.Context, event notify.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		s.logger.Warn("Failed to dispatch notification",
			zap.String("event_type", string(event.Type)),
			zap.String("deal_id", event.Deal.ID.String()),
			zap.Error(err),
		)
	}
}

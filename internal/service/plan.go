package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aiagenz/billing/internal/cache"
	"github.com/aiagenz/billing/internal/domain"
	"github.com/aiagenz/billing/pkg/payment"
)

const defaultCurrency = "INR"

// PlanService manages the plan catalog and its gateway-side mirror.
type PlanService struct {
	store    domain.Store
	gateway  payment.Gateway
	cache    cache.PlanCache
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// NewPlanService creates a new PlanService. A nil cache disables caching.
func NewPlanService(store domain.Store, gateway payment.Gateway, planCache cache.PlanCache) *PlanService {
	if planCache == nil {
		planCache = cache.NopPlanCache{}
	}
	return &PlanService{
		store:    store,
		gateway:  gateway,
		cache:    planCache,
		validate: validator.New(),
		logger:   log.With().Str("component", "plans").Logger(),
		now:      time.Now,
	}
}

// CreatePlan stores a plan. Subscription plans are synced to the gateway
// before the call returns; a failed sync deletes the local row again.
func (s *PlanService) CreatePlan(ctx context.Context, req *domain.CreatePlanRequest) (*domain.Plan, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}
	if req.Amount.IsNegative() {
		return nil, domain.ErrValidation("amount must not be negative")
	}

	now := s.now()
	plan := &domain.Plan{
		ID:              domain.NewPlanID(),
		Name:            strings.TrimSpace(req.Name),
		Description:     req.Description,
		PlanType:        req.PlanType,
		Amount:          req.Amount,
		MaxAmount:       req.MaxAmount,
		RecurringAmount: req.RecurringAmount,
		Currency:        strings.ToUpper(req.Currency),
		IsLimited:       req.IsLimited,
		LimitNumber:     req.LimitNumber,
		Intervals:       req.Intervals,
		IntervalType:    req.IntervalType,
		MaxCycles:       req.MaxCycles,
		Status:          domain.PlanStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if plan.Currency == "" {
		plan.Currency = defaultCurrency
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	if plan.PlanType == domain.PlanTypeSubscription {
		if plan.RecurringAmount == nil {
			amount := plan.Amount
			plan.RecurringAmount = &amount
		}
		if plan.MaxAmount == nil {
			maxAmount := *plan.RecurringAmount
			plan.MaxAmount = &maxAmount
		}
		plan.Status = domain.PlanStatusDraft
	}

	if err := s.store.Plans().Create(ctx, plan); err != nil {
		return nil, asAppError(err, "failed to create plan")
	}

	if plan.PlanType == domain.PlanTypeSubscription {
		if err := s.syncPlan(ctx, plan); err != nil {
			return nil, err
		}
	}

	s.invalidate(ctx)
	s.logger.Info().
		Str("plan_id", plan.ID).
		Str("plan_type", string(plan.PlanType)).
		Msg("plan created")
	return plan, nil
}

func (s *PlanService) syncPlan(ctx context.Context, plan *domain.Plan) error {
	res, err := s.gateway.CreatePlan(ctx, payment.PlanRequest{
		PlanID:          plan.ID,
		Name:            plan.Name,
		Currency:        plan.Currency,
		RecurringAmount: *plan.RecurringAmount,
		MaxAmount:       *plan.MaxAmount,
		MaxCycles:       derefInt(plan.MaxCycles),
		Intervals:       derefInt(plan.Intervals),
		IntervalType:    string(*plan.IntervalType),
		Note:            plan.Description,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("plan_id", plan.ID).Msg("gateway plan sync failed, rolling back")
		if delErr := s.store.Plans().Delete(ctx, plan.ID); delErr != nil {
			s.logger.Error().Err(delErr).Str("plan_id", plan.ID).Msg("failed to delete unsynced plan")
		}
		return domain.ErrGateway(gatewayMessage("failed to sync plan", err), err)
	}

	if err := s.store.Plans().MarkSynced(ctx, plan.ID, res.PlanID); err != nil {
		return domain.ErrInternal("failed to mark plan synced", err)
	}
	gatewayPlanID := res.PlanID
	plan.GatewayPlanID = &gatewayPlanID
	plan.Status = domain.PlanStatusActive
	return nil
}

// ListPlans returns one page of the catalog, newest first.
func (s *PlanService) ListPlans(ctx context.Context, f domain.PlanFilter) (*domain.PlanList, error) {
	f.Normalize()

	if cached, err := s.cache.GetList(ctx, f); err != nil {
		s.logger.Warn().Err(err).Msg("plan cache read failed")
	} else if cached != nil {
		return cached, nil
	}

	plans, total, err := s.store.Plans().List(ctx, f)
	if err != nil {
		return nil, domain.ErrInternal("failed to list plans", err)
	}
	if plans == nil {
		plans = []*domain.Plan{}
	}
	list := &domain.PlanList{
		Plans: plans,
		Pagination: domain.Pagination{
			Total:       total,
			CurrentPage: f.Page,
			Limit:       f.Limit,
		},
	}

	if err := s.cache.SetList(ctx, f, list); err != nil {
		s.logger.Warn().Err(err).Msg("plan cache write failed")
	}
	return list, nil
}

// GetPlan returns a single plan.
func (s *PlanService) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	if cached, err := s.cache.GetPlan(ctx, id); err != nil {
		s.logger.Warn().Err(err).Msg("plan cache read failed")
	} else if cached != nil {
		return cached, nil
	}

	plan, err := s.store.Plans().FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to load plan", err)
	}
	if plan == nil {
		return nil, domain.ErrNotFound("plan not found")
	}

	if err := s.cache.SetPlan(ctx, plan); err != nil {
		s.logger.Warn().Err(err).Msg("plan cache write failed")
	}
	return plan, nil
}

func (s *PlanService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("plan cache invalidation failed")
	}
}

// Package credits is the plan and points ledger. Balances are held by the
// Repository; every balance change is a single conditional statement there,
// so concurrent deducts can never drive a balance negative.
package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"facetalk-backend/internal/models"
)

const (
	PlanFree    = "free"
	PlanStarter = "starter"
	PlanPro     = "pro"

	// RefreshPeriod is how long a paid allotment lasts before it is reset.
	RefreshPeriod = 30 * 24 * time.Hour

	generationsLimit = 50
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrNotFound            = errors.New("not found")
	ErrDuplicatePayment    = errors.New("payment already applied")
	ErrUnknownPlan         = errors.New("unknown plan")
	ErrUnknownFeature      = errors.New("unknown feature")
	ErrAlreadyHasPlan      = errors.New("account already has a plan")
)

var allotments = map[string]int{
	PlanFree:    5,
	PlanStarter: 100,
	PlanPro:     300,
}

var costs = map[models.GenerationKind]int{
	models.KindAnimation:       2,
	models.KindVoiceClone:      1,
	models.KindTalkingPortrait: 3,
}

// Allotment returns the points granted by a plan.
func Allotment(plan string) (int, bool) {
	n, ok := allotments[plan]
	return n, ok
}

// Cost returns the points charged for one generation of a kind.
func Cost(kind models.GenerationKind) (int, bool) {
	n, ok := costs[kind]
	return n, ok
}

// Repository persists plans, device claims, payments and usage history.
// DeductPoints must check and decrement in one atomic step and return
// ErrInsufficientCredits when the balance is below cost. ApplyPayment must
// write the plan and the transaction together and return ErrDuplicatePayment
// for a reference it has already seen.
type Repository interface {
	GetPlan(ctx context.Context, userID string) (*models.UserPlan, error)
	CreatePlan(ctx context.Context, plan *models.UserPlan) (*models.UserPlan, error)
	ResetPlan(ctx context.Context, userID, plan string, points int, startDate time.Time) (*models.UserPlan, error)
	DeductPoints(ctx context.Context, userID string, cost int) (int, error)
	AddPoints(ctx context.Context, userID string, points int) (int, error)

	GetDevice(ctx context.Context, deviceID string) (*models.DeviceCredit, error)
	MarkDeviceUsed(ctx context.Context, deviceID, userID string) error

	ApplyPayment(ctx context.Context, txn *models.Transaction, startDate time.Time) (*models.UserPlan, error)

	InsertGeneration(ctx context.Context, record *models.GenerationRecord) error
	ListGenerations(ctx context.Context, userID string, limit int) ([]models.GenerationRecord, error)
	TransferAccount(ctx context.Context, fromUserID, toUserID string) (*models.UserPlan, error)
}

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "credits").Logger(),
		now:    time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// EnsurePlan returns the user's plan, creating it on first use. A new plan
// gets the free allotment only when the device has never claimed it;
// otherwise it starts empty. Paid plans whose period has elapsed are reset to
// their allotment.
func (s *Service) EnsurePlan(ctx context.Context, userID, deviceID string, anonymous bool) (*models.UserPlan, error) {
	plan, err := s.repo.GetPlan(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return s.createPlan(ctx, userID, deviceID, anonymous)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return s.refresh(ctx, plan)
}

func (s *Service) createPlan(ctx context.Context, userID, deviceID string, anonymous bool) (*models.UserPlan, error) {
	points := 0
	if deviceID != "" {
		eligible, err := s.DeviceEligible(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		if eligible {
			points = allotments[PlanFree]
		}
	}

	plan, err := s.repo.CreatePlan(ctx, &models.UserPlan{
		UserID:      userID,
		Plan:        PlanFree,
		PointsLeft:  points,
		StartDate:   s.now().UTC(),
		IsAnonymous: anonymous,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}

	if points > 0 {
		if err := s.repo.MarkDeviceUsed(ctx, deviceID, userID); err != nil {
			return nil, fmt.Errorf("failed to mark device: %w", err)
		}
	}
	s.logger.Info().
		Str("user_id", userID).
		Str("device_id", deviceID).
		Int("points", points).
		Msg("plan created")
	return plan, nil
}

func (s *Service) refresh(ctx context.Context, plan *models.UserPlan) (*models.UserPlan, error) {
	if plan.Plan == PlanFree {
		return plan, nil
	}
	now := s.now().UTC()
	if now.Sub(plan.StartDate) < RefreshPeriod {
		return plan, nil
	}
	points, ok := allotments[plan.Plan]
	if !ok {
		return plan, nil
	}
	refreshed, err := s.repo.ResetPlan(ctx, plan.UserID, plan.Plan, points, now)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh plan: %w", err)
	}
	s.logger.Info().Str("user_id", plan.UserID).Str("plan", plan.Plan).Msg("plan refreshed")
	return refreshed, nil
}

// Deduct charges the feature cost. It succeeds only when the balance covers
// the cost and returns the new balance.
func (s *Service) Deduct(ctx context.Context, userID string, kind models.GenerationKind) (int, error) {
	cost, ok := costs[kind]
	if !ok {
		return 0, ErrUnknownFeature
	}
	left, err := s.repo.DeductPoints(ctx, userID, cost)
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) || errors.Is(err, ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to deduct credits: %w", err)
	}
	return left, nil
}

// Refund returns the feature cost after a generation could not be started.
func (s *Service) Refund(ctx context.Context, userID string, kind models.GenerationKind) error {
	cost, ok := costs[kind]
	if !ok {
		return ErrUnknownFeature
	}
	if _, err := s.repo.AddPoints(ctx, userID, cost); err != nil {
		return fmt.Errorf("failed to refund credits: %w", err)
	}
	return nil
}

// DeviceEligible reports whether the device may still claim free credits.
func (s *Service) DeviceEligible(ctx context.Context, deviceID string) (bool, error) {
	device, err := s.repo.GetDevice(ctx, deviceID)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get device: %w", err)
	}
	return !device.HasUsedFreeCredits, nil
}

// ApplyPayment activates a purchased plan. Replayed references return
// ErrDuplicatePayment and leave the ledger untouched.
func (s *Service) ApplyPayment(ctx context.Context, userID, plan, reference string) (*models.UserPlan, error) {
	points, ok := allotments[plan]
	if !ok || plan == PlanFree {
		return nil, ErrUnknownPlan
	}
	now := s.now().UTC()
	updated, err := s.repo.ApplyPayment(ctx, &models.Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		Plan:      plan,
		Points:    points,
		Reference: reference,
		CreatedAt: now,
	}, now)
	if err != nil {
		if errors.Is(err, ErrDuplicatePayment) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to apply payment: %w", err)
	}
	s.logger.Info().
		Str("user_id", userID).
		Str("plan", plan).
		Str("reference", reference).
		Msg("payment applied")
	return updated, nil
}

// RecordGeneration appends a finished generation to the user's history.
func (s *Service) RecordGeneration(ctx context.Context, userID, taskID string, kind models.GenerationKind, output string) error {
	err := s.repo.InsertGeneration(ctx, &models.GenerationRecord{
		ID:        uuid.New(),
		UserID:    userID,
		TaskID:    taskID,
		Kind:      kind,
		Output:    output,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to record generation: %w", err)
	}
	return nil
}

func (s *Service) Generations(ctx context.Context, userID string) ([]models.GenerationRecord, error) {
	records, err := s.repo.ListGenerations(ctx, userID, generationsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	return records, nil
}

// UpgradeAnonymous moves an anonymous user's plan and history to a
// registered account that has no plan yet.
func (s *Service) UpgradeAnonymous(ctx context.Context, anonymousID, userID string) (*models.UserPlan, error) {
	if anonymousID == userID {
		return nil, ErrAlreadyHasPlan
	}
	if _, err := s.repo.GetPlan(ctx, userID); err == nil {
		return nil, ErrAlreadyHasPlan
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	from, err := s.repo.GetPlan(ctx, anonymousID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if !from.IsAnonymous {
		return nil, ErrNotFound
	}

	plan, err := s.repo.TransferAccount(ctx, anonymousID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyHasPlan) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to transfer account: %w", err)
	}
	s.logger.Info().Str("from", anonymousID).Str("to", userID).Msg("anonymous account upgraded")
	return plan, nil
}

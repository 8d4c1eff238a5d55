package service

import (
	"context"

	"go.uber.org/zap"

	"abapractice/internal/database"
	"abapractice/internal/models"
	"abapractice/internal/repository"
)

// SubscriptionService backs the admin console and the practitioner paywall
type SubscriptionService struct {
	subscriptions *repository.SubscriptionRepository
	logger        *zap.Logger
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(db *database.DB, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		subscriptions: repository.NewSubscriptionRepository(db),
		logger:        logger,
	}
}

// List returns every subscription with its practitioner
func (s *SubscriptionService) List(ctx context.Context) ([]models.SubscriptionWithOwner, error) {
	return s.subscriptions.ListWithOwners(ctx)
}

// Toggle flips a subscription between active and inactive. A trial becomes active.
func (s *SubscriptionService) Toggle(ctx context.Context, id int64) (*models.Subscription, error) {
	sub, err := s.subscriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, &NotFoundError{Resource: "subscription"}
	}

	from := sub.Status
	sub.Status = from.Toggled()
	if err := s.subscriptions.UpdateStatus(ctx, id, sub.Status); err != nil {
		return nil, err
	}
	s.logger.Info("subscription toggled",
		zap.Int64("subscription_id", id),
		zap.String("psychologist_id", sub.PsychologistID),
		zap.String("from", string(from)),
		zap.String("to", string(sub.Status)),
	)
	return sub, nil
}

// Get returns a practitioner's subscription, or nil when there is none
func (s *SubscriptionService) Get(ctx context.Context, psychologistID string) (*models.Subscription, error) {
	return s.subscriptions.GetByPsychologist(ctx, psychologistID)
}

// Check returns SubscriptionRequiredError unless the practitioner's plan allows access
func (s *SubscriptionService) Check(ctx context.Context, psychologistID string) error {
	sub, err := s.subscriptions.GetByPsychologist(ctx, psychologistID)
	if err != nil {
		return err
	}
	if !sub.AllowsAccess() {
		status := ""
		if sub != nil {
			status = string(sub.Status)
		}
		return &SubscriptionRequiredError{Status: status}
	}
	return nil
}

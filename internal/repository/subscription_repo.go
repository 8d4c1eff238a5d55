package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"abapractice/internal/database"
	"abapractice/internal/models"
)

// SubscriptionRepository handles database operations for practitioner subscriptions
type SubscriptionRepository struct {
	db database.DBTX
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db database.DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = "s.id, s.psychologist_id, s.plan, s.status, s.current_period_end, s.created_at, s.updated_at"

func scanSubscription(row interface{ Scan(...any) error }, extra ...any) (*models.Subscription, error) {
	s := &models.Subscription{}
	var status string
	var periodEnd sql.NullTime
	dest := []any{&s.ID, &s.PsychologistID, &s.Plan, &status, &periodEnd, &s.CreatedAt, &s.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	s.Status = models.SubscriptionStatus(status)
	s.CurrentPeriodEnd = timePtr(periodEnd)
	return s, nil
}

// UpsertSubscription creates the practitioner's subscription or refreshes plan and status
func (r *SubscriptionRepository) UpsertSubscription(ctx context.Context, psychologistID, plan string, status models.SubscriptionStatus, periodEnd *time.Time) error {
	query := r.db.GetDialect().UpsertSubscriptionQuery()
	if _, err := r.db.ExecContext(ctx, query, psychologistID, plan, string(status), nullTime(periodEnd)); err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// GetByPsychologist retrieves a practitioner's subscription
func (r *SubscriptionRepository) GetByPsychologist(ctx context.Context, psychologistID string) (*models.Subscription, error) {
	query := "SELECT " + subscriptionColumns + " FROM subscriptions s WHERE s.psychologist_id = ?"
	s, err := scanSubscription(r.db.QueryRowContext(ctx, query, psychologistID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return s, nil
}

// GetByID retrieves a subscription by ID
func (r *SubscriptionRepository) GetByID(ctx context.Context, id int64) (*models.Subscription, error) {
	query := "SELECT " + subscriptionColumns + " FROM subscriptions s WHERE s.id = ?"
	s, err := scanSubscription(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return s, nil
}

// ListWithOwners returns every subscription joined with its practitioner
func (r *SubscriptionRepository) ListWithOwners(ctx context.Context) ([]models.SubscriptionWithOwner, error) {
	query := "SELECT " + subscriptionColumns + `, p.full_name, i.email
		FROM subscriptions s
		JOIN profiles p ON p.id = s.psychologist_id
		JOIN identities i ON i.id = s.psychologist_id
		ORDER BY s.created_at DESC, s.id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	out := []models.SubscriptionWithOwner{}
	for rows.Next() {
		var name, email string
		s, err := scanSubscription(rows, &name, &email)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, models.SubscriptionWithOwner{Subscription: *s, FullName: name, Email: email})
	}
	return out, rows.Err()
}

// UpdateStatus sets a subscription's status
func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id int64, status models.SubscriptionStatus) error {
	query := "UPDATE subscriptions SET status = ?, updated_at = ? WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, string(status), time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

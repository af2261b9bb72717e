// Package billing keeps users' plans in step with the billing provider.
package billing

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/rajasatyajit/ResumeCore/internal/errors"
	"github.com/rajasatyajit/ResumeCore/internal/logger"
	"github.com/rajasatyajit/ResumeCore/internal/models"
	"github.com/rajasatyajit/ResumeCore/internal/plans"
	"github.com/rajasatyajit/ResumeCore/internal/store"
	"github.com/rajasatyajit/ResumeCore/internal/webhook"
)

// SyncResult describes what a subscription event did
type SyncResult struct {
	Applied bool
	User    models.User
}

// Service applies subscription events to user records
type Service struct {
	store    store.Store
	resolver *plans.Resolver
}

func NewService(st store.Store, resolver *plans.Resolver) *Service {
	return &Service{store: st, resolver: resolver}
}

// Resolver exposes the product table the service resolves plans with
func (s *Service) Resolver() *plans.Resolver { return s.resolver }

// SyncSubscription patches the plan and subscription fields of the user
// owning p.CustomerEmail. An unknown customer is acknowledged without change
// so the provider does not retry.
func (s *Service) SyncSubscription(ctx context.Context, p webhook.SubscriptionPayload) (SyncResult, error) {
	if err := p.Validate(); err != nil {
		return SyncResult{}, err
	}
	u, err := s.store.GetUserByEmail(ctx, p.CustomerEmail)
	if errors.Is(err, apperrors.ErrNotFound) {
		logger.WithContext(ctx).Info("subscription event for unknown customer",
			"subscription_id", p.ID, "product_id", p.ProductID)
		return SyncResult{}, nil
	}
	if err != nil {
		return SyncResult{}, fmt.Errorf("lookup customer: %w", err)
	}

	patch := models.SubscriptionPatch{
		Plan:               s.resolver.ResolvePlan(p.ProductID),
		SubscriptionID:     p.ID,
		SubscriptionStatus: p.Status,
		NextRenewal:        p.CurrentPeriodEnd,
	}
	updated, err := s.store.PatchSubscription(ctx, u.ID, patch)
	if err != nil {
		return SyncResult{}, fmt.Errorf("patch subscription: %w", err)
	}
	logger.WithContext(ctx).Info("subscription synced",
		"user_id", updated.ID, "plan", updated.Plan, "status", updated.SubscriptionStatus,
		"subscription_id", p.ID, "cancellation_reason", p.CancellationReason)
	return SyncResult{Applied: true, User: updated}, nil
}

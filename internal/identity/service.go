// Package identity mirrors identity-provider users into local records and
// forwards organization activity to analytics.
package identity

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/rajasatyajit/ResumeCore/internal/analytics"
	apperrors "github.com/rajasatyajit/ResumeCore/internal/errors"
	"github.com/rajasatyajit/ResumeCore/internal/logger"
	"github.com/rajasatyajit/ResumeCore/internal/models"
	"github.com/rajasatyajit/ResumeCore/internal/store"
	"github.com/rajasatyajit/ResumeCore/internal/webhook"
)

const maxFieldLength = 256

// Service applies identity events
type Service struct {
	store         store.Store
	analytics     analytics.Client
	signupCredits int64
	policy        *bluemonday.Policy
}

// NewService creates the identity sync service. New users are granted
// signupCredits.
func NewService(st store.Store, client analytics.Client, signupCredits int64) *Service {
	if client == nil {
		client = analytics.Noop{}
	}
	return &Service{
		store:         st,
		analytics:     client,
		signupCredits: signupCredits,
		policy:        bluemonday.StrictPolicy(),
	}
}

// SyncUser upserts the user for a user.created or user.updated event. The
// signup grant is applied only when the record is inserted, so replays and
// out-of-order updates never grant twice.
func (s *Service) SyncUser(ctx context.Context, p webhook.UserPayload) (models.User, bool, error) {
	profile := s.sanitize(p.Profile)
	log := logger.WithContext(ctx)
	u, created, err := s.store.UpsertIdentity(ctx, profile, s.signupCredits)
	if errors.Is(err, apperrors.ErrConflict) && profile.Email != "" {
		// another account owns the address; keep the profile and the email we already had
		log.Warn("email owned by another user; syncing profile without it", "external_id", profile.ExternalID, "email", profile.Email)
		profile.Email = ""
		if existing, gerr := s.store.GetUserByExternalID(ctx, profile.ExternalID); gerr == nil {
			profile.Email = existing.Email
		}
		u, created, err = s.store.UpsertIdentity(ctx, profile, s.signupCredits)
	}
	if err != nil {
		return models.User{}, false, fmt.Errorf("upsert user %s: %w", profile.ExternalID, err)
	}
	if !created {
		log.Debug("user profile refreshed", "user_id", u.ID, "external_id", u.ExternalID)
		return u, false, nil
	}
	log.Info("user created", "user_id", u.ID, "external_id", u.ExternalID, "credits", u.Credits)
	s.capture(ctx, analytics.Event{
		DistinctID: u.ExternalID,
		Name:       analytics.EventUserSignedUp,
		Properties: map[string]any{"plan": string(u.Plan), "credits": u.Credits},
	})
	return u, true, nil
}

// DeleteUser removes the local user. A missing user is not an error.
func (s *Service) DeleteUser(ctx context.Context, p webhook.UserDeletedPayload) (bool, error) {
	deleted, err := s.store.DeleteUser(ctx, p.ExternalID)
	if err != nil {
		return false, fmt.Errorf("delete user %s: %w", p.ExternalID, err)
	}
	if !deleted {
		logger.WithContext(ctx).Info("delete for unknown user ignored", "external_id", p.ExternalID)
		return false, nil
	}
	logger.WithContext(ctx).Info("user deleted", "external_id", p.ExternalID)
	s.capture(ctx, analytics.Event{DistinctID: p.ExternalID, Name: analytics.EventUserDeleted})
	return true, nil
}

// OrganizationChanged records organization.created and organization.updated
func (s *Service) OrganizationChanged(ctx context.Context, kind webhook.Kind, p webhook.OrganizationPayload) error {
	name := s.clean(p.Name)
	if err := s.analytics.GroupIdentify(analytics.Group{
		Type:       analytics.GroupOrganization,
		Key:        p.ID,
		Properties: map[string]any{"name": name, "slug": s.clean(p.Slug)},
	}); err != nil {
		logger.WithContext(ctx).Warn("analytics group identify failed", "organization_id", p.ID, "error", err)
	}

	event := analytics.EventOrganizationUpdated
	if kind == webhook.KindOrgCreated {
		event = analytics.EventOrganizationCreated
	}
	distinct := p.CreatedBy
	if distinct == "" {
		distinct = p.ID
	}
	s.capture(ctx, analytics.Event{
		DistinctID: distinct,
		Name:       event,
		Properties: map[string]any{"organization_name": name},
		Groups:     map[string]string{analytics.GroupOrganization: p.ID},
	})
	return nil
}

// MembershipChanged records organizationMembership.created and .deleted
func (s *Service) MembershipChanged(ctx context.Context, kind webhook.Kind, p webhook.MembershipPayload) error {
	event := analytics.EventOrgMemberRemoved
	if kind == webhook.KindMembershipCreated {
		event = analytics.EventOrgMemberAdded
	}
	s.capture(ctx, analytics.Event{
		DistinctID: p.UserID,
		Name:       event,
		Properties: map[string]any{
			"organization_name": s.clean(p.OrganizationName),
			"role":              s.clean(p.Role),
		},
		Groups: map[string]string{analytics.GroupOrganization: p.OrganizationID},
	})
	return nil
}

func (s *Service) capture(ctx context.Context, e analytics.Event) {
	if err := s.analytics.Capture(e); err != nil {
		logger.WithContext(ctx).Warn("analytics capture failed", "event", e.Name, "error", err)
	}
}

func (s *Service) sanitize(p models.IdentityProfile) models.IdentityProfile {
	p.ExternalID = strings.TrimSpace(p.ExternalID)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.FirstName = s.clean(p.FirstName)
	p.LastName = s.clean(p.LastName)
	p.Username = s.clean(p.Username)
	p.ImageURL = cleanURL(p.ImageURL)
	return p
}

// clean strips markup from a display field and bounds its length
func (s *Service) clean(v string) string {
	v = html.UnescapeString(s.policy.Sanitize(v))
	v = strings.TrimSpace(v)
	if r := []rune(v); len(r) > maxFieldLength {
		v = string(r[:maxFieldLength])
	}
	return v
}

func cleanURL(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	u, err := url.Parse(v)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return ""
	}
	return u.String()
}

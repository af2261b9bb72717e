// Package entitlement answers read-only questions about what a user may do:
// whether they can afford a metered operation and which AI configuration
// applies to them.
package entitlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/rajasatyajit/ResumeCore/config"
	apperrors "github.com/rajasatyajit/ResumeCore/internal/errors"
	"github.com/rajasatyajit/ResumeCore/internal/models"
	"github.com/rajasatyajit/ResumeCore/internal/plans"
	"github.com/rajasatyajit/ResumeCore/internal/store"
)

// AIConfig is the provider configuration an AI call runs with
type AIConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"-"`
}

// AIRequest describes whose configuration to resolve. When User is set its
// plan decides; RequestedPlan is only used without a user record.
type AIRequest struct {
	User          *models.User
	Overrides     *models.AIOverrides
	RequestedPlan models.Plan
	CostSaving    bool
}

// Guard performs pre-flight entitlement checks. It never mutates state.
type Guard struct {
	store store.Store
	ai    config.AIConfig
}

// NewGuard creates a guard with the system AI defaults
func NewGuard(st store.Store, ai config.AIConfig) *Guard {
	return &Guard{store: st, ai: ai}
}

// CurrentUser loads the user behind an identity-provider id
func (g *Guard) CurrentUser(ctx context.Context, externalID string) (models.User, error) {
	u, err := g.store.GetUserByExternalID(ctx, externalID)
	if err != nil {
		return models.User{}, fmt.Errorf("current user: %w", err)
	}
	return u, nil
}

// AssertCanAfford reloads the user and applies the ledger's affordability
// rule. The answer is advisory: only Ledger.Charge is authoritative.
func (g *Guard) AssertCanAfford(ctx context.Context, userID string, cost int64) (models.User, error) {
	u, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("assert can afford: %w", err)
	}
	if err := CheckAffordable(u, cost); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// CheckAffordable is AssertCanAfford for a user already in hand
func CheckAffordable(u models.User, cost int64) error {
	if cost < 0 {
		return apperrors.ValidationError{Field: "cost", Message: "must be non-negative"}
	}
	if !plans.CanAfford(u, cost) {
		return apperrors.InsufficientCreditsError{UserID: u.ID, Balance: u.Credits, Required: cost}
	}
	return nil
}

// ResolveAIConfig returns the configuration an AI call must use. Only
// legend users get their own provider, model and key; everyone else gets
// the system defaults whatever they have stored or supplied.
func (g *Guard) ResolveAIConfig(req AIRequest) (AIConfig, error) {
	plan := req.RequestedPlan
	if req.User != nil {
		plan = req.User.Plan
	}
	if plan != models.PlanLegend {
		return g.defaults(), nil
	}

	var cfg AIConfig
	if req.User != nil {
		cfg = AIConfig{Provider: req.User.AIProvider, Model: req.User.AIModel, APIKey: req.User.APIKey}
	}
	if o := req.Overrides; o != nil {
		cfg.Provider = firstNonEmpty(o.Provider, cfg.Provider)
		cfg.Model = firstNonEmpty(o.Model, cfg.Model)
		cfg.APIKey = firstNonEmpty(o.APIKey, cfg.APIKey)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)

	var missing []string
	if cfg.Provider == "" {
		missing = append(missing, "provider")
	}
	if cfg.Model == "" {
		missing = append(missing, "model")
	}
	if cfg.APIKey == "" {
		missing = append(missing, "apiKey")
	}
	if len(missing) > 0 {
		return AIConfig{}, apperrors.InvalidAIConfigError{Missing: missing}
	}
	if !g.SupportsProvider(cfg.Provider) {
		return AIConfig{}, apperrors.InvalidAIConfigError{Reason: fmt.Sprintf("unsupported provider %q", cfg.Provider)}
	}

	if req.CostSaving {
		if cheap, ok := g.ai.CheapModels[cfg.Provider]; ok && cheap != "" {
			cfg.Model = cheap
		}
	}
	return cfg, nil
}

// SupportsProvider reports whether provider is on the allow list.
// An empty allow list admits any provider.
func (g *Guard) SupportsProvider(provider string) bool {
	if len(g.ai.Providers) == 0 {
		return true
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	for _, p := range g.ai.Providers {
		if strings.EqualFold(p, provider) {
			return true
		}
	}
	return false
}

func (g *Guard) defaults() AIConfig {
	return AIConfig{Provider: g.ai.DefaultProvider, Model: g.ai.DefaultModel, APIKey: g.ai.DefaultAPIKey}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

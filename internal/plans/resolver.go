// Package plans maps billing products to subscription plans and decides
// whether a user is metered against their credit balance.
package plans

import (
	"fmt"
	"strings"

	"github.com/rajasatyajit/ResumeCore/internal/models"
)

// Resolver is an immutable product-to-plan table. It is safe for concurrent use.
type Resolver struct {
	products map[string]models.Plan
}

// NewResolver validates the table: only plus, pro and legend may be mapped,
// and exactly one product may map to legend when the table is non-empty.
func NewResolver(products map[string]models.Plan) (*Resolver, error) {
	table := make(map[string]models.Plan, len(products))
	legend := 0
	for id, plan := range products {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("empty product id")
		}
		switch plan {
		case models.PlanPlus, models.PlanPro:
		case models.PlanLegend:
			legend++
		default:
			return nil, fmt.Errorf("product %q: plan %q cannot be sold", id, plan)
		}
		table[id] = plan
	}
	if len(table) > 0 && legend != 1 {
		return nil, fmt.Errorf("exactly one product must map to legend, got %d", legend)
	}
	return &Resolver{products: table}, nil
}

// ResolvePlan returns the plan sold by productID, or free for anything unknown
func (r *Resolver) ResolvePlan(productID string) models.Plan {
	if r == nil {
		return models.PlanFree
	}
	if plan, ok := r.products[strings.TrimSpace(productID)]; ok {
		return plan
	}
	return models.PlanFree
}

// Products returns a copy of the table
func (r *Resolver) Products() map[string]models.Plan {
	out := make(map[string]models.Plan, len(r.products))
	for k, v := range r.products {
		out[k] = v
	}
	return out
}

// IsPayAsYouGo reports whether u draws down credits for paid operations:
// free and plus always do, pro only while its subscription is not active,
// legend never does.
func IsPayAsYouGo(u models.User) bool {
	switch u.Plan {
	case models.PlanPro:
		return u.SubscriptionStatus != models.StatusActive
	case models.PlanLegend:
		return false
	default:
		return true
	}
}

// CanAfford is the affordability rule shared by the ledger and the guard
func CanAfford(u models.User, cost int64) bool {
	if !IsPayAsYouGo(u) || cost <= 0 {
		return true
	}
	return u.Credits >= cost
}

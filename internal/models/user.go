package models

import (
	"strings"
	"time"
)

// Plan is a subscription tier
type Plan string

const (
	PlanFree   Plan = "free"
	PlanPlus   Plan = "plus"
	PlanPro    Plan = "pro"
	PlanLegend Plan = "legend"
)

// ParsePlan normalizes s and reports whether it names a known plan
func ParsePlan(s string) (Plan, bool) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Valid()
}

// Valid reports whether p is one of the known plans
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPlus, PlanPro, PlanLegend:
		return true
	}
	return false
}

// SubscriptionStatus mirrors the billing provider's subscription lifecycle
type SubscriptionStatus string

const (
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusActive            SubscriptionStatus = "active"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusUnpaid            SubscriptionStatus = "unpaid"
)

// Valid reports whether s is a known subscription status
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusIncomplete, StatusIncompleteExpired, StatusTrialing, StatusActive,
		StatusPastDue, StatusCanceled, StatusUnpaid:
		return true
	}
	return false
}

// User is the local record of an identity-provider user
type User struct {
	ID                 string             `json:"id"`
	ExternalID         string             `json:"externalId"`
	Email              string             `json:"email,omitempty"`
	FirstName          string             `json:"firstName,omitempty"`
	LastName           string             `json:"lastName,omitempty"`
	Username           string             `json:"username,omitempty"`
	ImageURL           string             `json:"imageUrl,omitempty"`
	Plan               Plan               `json:"plan"`
	SubscriptionID     string             `json:"subscriptionId,omitempty"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus,omitempty"`
	NextRenewal        *time.Time         `json:"nextRenewal,omitempty"`
	Credits            int64              `json:"credits"`
	APIKey             string             `json:"-"`
	AIProvider         string             `json:"aiProvider,omitempty"`
	AIModel            string             `json:"aiModel,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// HasAPIKey reports whether the user stored a provider key
func (u User) HasAPIKey() bool { return u.APIKey != "" }

// IdentityProfile carries the identity-provider fields synchronized onto a User
type IdentityProfile struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
	Username   string
	ImageURL   string
}

// SubscriptionPatch is the partial update applied by subscription sync.
// All fields are absolute values so replays are idempotent.
type SubscriptionPatch struct {
	Plan               Plan
	SubscriptionID     string
	SubscriptionStatus SubscriptionStatus
	NextRenewal        *time.Time
}

// Apply writes the patch onto u, leaving unrelated fields untouched
func (p SubscriptionPatch) Apply(u *User) {
	u.Plan = p.Plan
	u.SubscriptionID = p.SubscriptionID
	u.SubscriptionStatus = p.SubscriptionStatus
	if p.NextRenewal != nil {
		t := p.NextRenewal.UTC()
		u.NextRenewal = &t
	} else {
		u.NextRenewal = nil
	}
}

// AIOverrides are the bring-your-own provider settings of a legend user
type AIOverrides struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"apiKey"`
}

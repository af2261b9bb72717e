package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/rajasatyajit/ResumeCore/internal/errors"
	"github.com/rajasatyajit/ResumeCore/internal/models"
)

// Source names the provider a delivery came from
type Source string

const (
	SourceIdentity Source = "identity"
	SourceBilling  Source = "billing"
	SourceStripe   Source = "stripe"
)

// Kind is the provider's event type discriminator
type Kind string

const (
	KindUserCreated       Kind = "user.created"
	KindUserUpdated       Kind = "user.updated"
	KindUserDeleted       Kind = "user.deleted"
	KindOrgCreated        Kind = "organization.created"
	KindOrgUpdated        Kind = "organization.updated"
	KindMembershipCreated Kind = "organizationMembership.created"
	KindMembershipDeleted Kind = "organizationMembership.deleted"

	KindSubscriptionCreated Kind = "subscription.created"
	KindSubscriptionUpdated Kind = "subscription.updated"
)

// Envelope is a verified, decoded delivery
type Envelope struct {
	ID         string
	Source     Source
	Kind       Kind
	ReceivedAt time.Time
	Payload    Payload
}

// Payload is one of the typed event variants below
type Payload interface {
	isPayload()
}

// UserPayload carries user.created and user.updated
type UserPayload struct {
	Profile models.IdentityProfile
}

// UserDeletedPayload carries user.deleted
type UserDeletedPayload struct {
	ExternalID string
}

// OrganizationPayload carries organization.created and organization.updated
type OrganizationPayload struct {
	ID        string
	Name      string
	Slug      string
	CreatedBy string
}

// MembershipPayload carries organizationMembership.* events
type MembershipPayload struct {
	ID               string
	OrganizationID   string
	OrganizationName string
	UserID           string
	Role             string
}

// SubscriptionPayload carries subscription lifecycle events
type SubscriptionPayload struct {
	ID                 string
	Status             models.SubscriptionStatus
	CurrentPeriodEnd   *time.Time
	CustomerEmail      string
	ProductID          string
	CancellationReason string
}

// UnknownPayload is an event kind this service does not act on
type UnknownPayload struct{}

func (UserPayload) isPayload()         {}
func (UserDeletedPayload) isPayload()  {}
func (OrganizationPayload) isPayload() {}
func (MembershipPayload) isPayload()   {}
func (SubscriptionPayload) isPayload() {}
func (UnknownPayload) isPayload()      {}

type decodeFunc func(data json.RawMessage) (Payload, error)

var decoders = map[Source]map[Kind]decodeFunc{
	SourceIdentity: {
		KindUserCreated:       decodeUser,
		KindUserUpdated:       decodeUser,
		KindUserDeleted:       decodeUserDeleted,
		KindOrgCreated:        decodeOrganization,
		KindOrgUpdated:        decodeOrganization,
		KindMembershipCreated: decodeMembership,
		KindMembershipDeleted: decodeMembership,
	},
	SourceBilling: {
		KindSubscriptionCreated: decodeSubscription,
		KindSubscriptionUpdated: decodeSubscription,
	},
}

// Decode interprets a verified body. Known kinds must match their shape;
// unknown kinds decode to UnknownPayload.
func Decode(source Source, v Verified) (Envelope, error) {
	var raw struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(v.Body, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedEvent, err)
	}
	if strings.TrimSpace(raw.Type) == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", apperrors.ErrMalformedEvent)
	}

	env := Envelope{ID: v.ID, Source: source, Kind: Kind(raw.Type), ReceivedAt: v.Timestamp}
	decode, ok := decoders[source][env.Kind]
	if !ok {
		env.Payload = UnknownPayload{}
		return env, nil
	}
	if len(raw.Data) == 0 || string(raw.Data) == "null" {
		return Envelope{}, fmt.Errorf("%w: %s without data", apperrors.ErrMalformedEvent, env.Kind)
	}
	p, err := decode(raw.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %s: %v", apperrors.ErrMalformedEvent, env.Kind, err)
	}
	env.Payload = p
	return env, nil
}

func decodeUser(data json.RawMessage) (Payload, error) {
	var u struct {
		ID             string  `json:"id"`
		FirstName      *string `json:"first_name"`
		LastName       *string `json:"last_name"`
		Username       *string `json:"username"`
		ImageURL       *string `json:"image_url"`
		PrimaryEmailID *string `json:"primary_email_address_id"`
		EmailAddresses []struct {
			ID           string `json:"id"`
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	}
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, apperrors.ValidationError{Field: "data.id", Message: "required"}
	}
	email := ""
	for _, e := range u.EmailAddresses {
		if u.PrimaryEmailID != nil && e.ID == *u.PrimaryEmailID {
			email = e.EmailAddress
			break
		}
	}
	if email == "" && len(u.EmailAddresses) > 0 {
		email = u.EmailAddresses[0].EmailAddress
	}
	return UserPayload{Profile: models.IdentityProfile{
		ExternalID: u.ID,
		Email:      strings.ToLower(strings.TrimSpace(email)),
		FirstName:  deref(u.FirstName),
		LastName:   deref(u.LastName),
		Username:   deref(u.Username),
		ImageURL:   deref(u.ImageURL),
	}}, nil
}

func decodeUserDeleted(data json.RawMessage) (Payload, error) {
	var u struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, apperrors.ValidationError{Field: "data.id", Message: "required"}
	}
	return UserDeletedPayload{ExternalID: u.ID}, nil
}

func decodeOrganization(data json.RawMessage) (Payload, error) {
	var o struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Slug      string `json:"slug"`
		CreatedBy string `json:"created_by"`
	}
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, err
	}
	if o.ID == "" {
		return nil, apperrors.ValidationError{Field: "data.id", Message: "required"}
	}
	return OrganizationPayload{ID: o.ID, Name: o.Name, Slug: o.Slug, CreatedBy: o.CreatedBy}, nil
}

func decodeMembership(data json.RawMessage) (Payload, error) {
	var m struct {
		ID           string `json:"id"`
		Role         string `json:"role"`
		Organization struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"organization"`
		PublicUserData struct {
			UserID string `json:"user_id"`
		} `json:"public_user_data"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Organization.ID == "" {
		return nil, apperrors.ValidationError{Field: "data.organization.id", Message: "required"}
	}
	if m.PublicUserData.UserID == "" {
		return nil, apperrors.ValidationError{Field: "data.public_user_data.user_id", Message: "required"}
	}
	return MembershipPayload{
		ID:               m.ID,
		OrganizationID:   m.Organization.ID,
		OrganizationName: m.Organization.Name,
		UserID:           m.PublicUserData.UserID,
		Role:             m.Role,
	}, nil
}

func decodeSubscription(data json.RawMessage) (Payload, error) {
	var s struct {
		ID               string     `json:"id"`
		Status           string     `json:"status"`
		CurrentPeriodEnd *time.Time `json:"current_period_end"`
		PeriodEndCamel   *time.Time `json:"currentPeriodEnd"`
		Customer         struct {
			Email string `json:"email"`
		} `json:"customer"`
		Product struct {
			ID string `json:"id"`
		} `json:"product"`
		CustomerCancellationReason *string `json:"customer_cancellation_reason"`
		CancellationReasonCamel    *string `json:"customerCancellationReason"`
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	// providers send either snake_case or camelCase keys
	if s.CurrentPeriodEnd == nil {
		s.CurrentPeriodEnd = s.PeriodEndCamel
	}
	if s.CustomerCancellationReason == nil {
		s.CustomerCancellationReason = s.CancellationReasonCamel
	}
	p := SubscriptionPayload{
		ID:                 s.ID,
		Status:             models.SubscriptionStatus(s.Status),
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CustomerEmail:      strings.ToLower(strings.TrimSpace(s.Customer.Email)),
		ProductID:          s.Product.ID,
		CancellationReason: deref(s.CustomerCancellationReason),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the fields subscription sync depends on
func (p SubscriptionPayload) Validate() error {
	var errs apperrors.MultiError
	if p.ID == "" {
		errs.Add(apperrors.ValidationError{Field: "data.id", Message: "required"})
	}
	if !p.Status.Valid() {
		errs.Add(apperrors.ValidationError{Field: "data.status", Message: fmt.Sprintf("unknown status %q", p.Status)})
	}
	if p.CustomerEmail == "" {
		errs.Add(apperrors.ValidationError{Field: "data.customer.email", Message: "required"})
	}
	if p.ProductID == "" {
		errs.Add(apperrors.ValidationError{Field: "data.product.id", Message: "required"})
	}
	return errs.ErrorOrNil()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Receiver verifies and decodes deliveries for one source
type Receiver struct {
	source   Source
	verifier *Verifier
	secret   string
}

// NewReceiver binds a verifier to its configured secret
func NewReceiver(source Source, verifier *Verifier, secret string) *Receiver {
	return &Receiver{source: source, verifier: verifier, secret: secret}
}

// Source returns the provider the receiver serves
func (r *Receiver) Source() Source { return r.source }

// Receive authenticates body against the request headers and decodes it.
// Nothing is interpreted before the signature check passes.
func (r *Receiver) Receive(_ context.Context, h http.Header, body []byte) (Envelope, error) {
	v, err := r.verifier.Verify(body, r.verifier.Scheme().HeadersFrom(h), r.secret)
	if err != nil {
		return Envelope{}, err
	}
	return Decode(r.source, v)
}

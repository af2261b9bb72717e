package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/webhook"

	apperrors "github.com/rajasatyajit/ResumeCore/internal/errors"
	"github.com/rajasatyajit/ResumeCore/internal/models"
	events "github.com/rajasatyajit/ResumeCore/internal/webhook"
)

const stripeSignatureHeader = "Stripe-Signature"

// CustomerLookup resolves a Stripe customer id to its email address
type CustomerLookup interface {
	CustomerEmail(ctx context.Context, customerID string) (string, error)
}

type stripeCustomers struct{}

func (stripeCustomers) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := customer.Get(customerID, params)
	if err != nil {
		return "", err
	}
	return c.Email, nil
}

// StripeReceiver verifies Stripe deliveries and maps subscription events
// onto the provider-neutral subscription variant
type StripeReceiver struct {
	secret    string
	tolerance time.Duration
	customers CustomerLookup
}

// NewStripeReceiver configures the Stripe API key and webhook secret.
// A nil lookup uses the Stripe customers API.
func NewStripeReceiver(secretKey, webhookSecret string, tolerance time.Duration, lookup CustomerLookup) *StripeReceiver {
	if secretKey != "" {
		stripe.Key = secretKey
	}
	if lookup == nil {
		lookup = stripeCustomers{}
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeReceiver{secret: strings.TrimSpace(webhookSecret), tolerance: tolerance, customers: lookup}
}

func (r *StripeReceiver) Source() events.Source { return events.SourceStripe }

// Receive checks the Stripe-Signature header and decodes the event
func (r *StripeReceiver) Receive(ctx context.Context, h http.Header, body []byte) (events.Envelope, error) {
	if r.secret == "" {
		return events.Envelope{}, apperrors.NotConfiguredError{Source: string(events.SourceStripe)}
	}
	sig := h.Get(stripeSignatureHeader)
	if sig == "" {
		return events.Envelope{}, apperrors.MissingHeadersError{Headers: []string{stripeSignatureHeader}}
	}
	event, err := webhook.ConstructEventWithOptions(body, sig, r.secret, webhook.ConstructEventOptions{
		Tolerance:                r.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return events.Envelope{}, apperrors.SignatureInvalidError{Reason: err.Error()}
	}

	env := events.Envelope{
		ID:         event.ID,
		Source:     events.SourceStripe,
		Kind:       events.Kind(event.Type),
		ReceivedAt: time.Unix(event.Created, 0).UTC(),
		Payload:    events.UnknownPayload{},
	}
	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
	default:
		return env, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return events.Envelope{}, fmt.Errorf("%w: %s without data", apperrors.ErrMalformedEvent, event.Type)
	}
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return events.Envelope{}, fmt.Errorf("%w: %s: %v", apperrors.ErrMalformedEvent, event.Type, err)
	}
	p, err := r.subscriptionPayload(ctx, &sub)
	if err != nil {
		return events.Envelope{}, err
	}
	env.Kind = events.KindSubscriptionUpdated
	env.Payload = p
	return env, nil
}

func (r *StripeReceiver) subscriptionPayload(ctx context.Context, sub *stripe.Subscription) (events.SubscriptionPayload, error) {
	p := events.SubscriptionPayload{
		ID:     sub.ID,
		Status: models.SubscriptionStatus(sub.Status),
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		p.CurrentPeriodEnd = &end
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		if item := sub.Items.Data[0]; item.Price != nil && item.Price.Product != nil {
			p.ProductID = item.Price.Product.ID
		}
	}
	if sub.CancellationDetails != nil {
		p.CancellationReason = string(sub.CancellationDetails.Reason)
	}
	if sub.Customer != nil {
		email := sub.Customer.Email
		if email == "" && sub.Customer.ID != "" {
			var err error
			email, err = r.customers.CustomerEmail(ctx, sub.Customer.ID)
			if err != nil {
				return events.SubscriptionPayload{}, fmt.Errorf("lookup stripe customer %s: %w", sub.Customer.ID, err)
			}
		}
		p.CustomerEmail = strings.ToLower(strings.TrimSpace(email))
	}
	if err := p.Validate(); err != nil {
		return events.SubscriptionPayload{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedEvent, err)
	}
	return p, nil
}

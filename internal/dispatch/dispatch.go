// Package dispatch routes verified webhook events to the sync services and
// turns every outcome into a provider-facing response.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sort"

	"github.com/rajasatyajit/ResumeCore/internal/billing"
	apperrors "github.com/rajasatyajit/ResumeCore/internal/errors"
	"github.com/rajasatyajit/ResumeCore/internal/identity"
	"github.com/rajasatyajit/ResumeCore/internal/logger"
	"github.com/rajasatyajit/ResumeCore/internal/metrics"
	"github.com/rajasatyajit/ResumeCore/internal/webhook"
)

// Message is the JSON body returned to the provider
type Message struct {
	Message string `json:"message"`
	OK      bool   `json:"ok"`
}

// Response is what the HTTP layer writes back
type Response struct {
	StatusCode int
	Payload    Message
}

// Outcome labels for metrics
const (
	OutcomeHandled       = "handled"
	OutcomeIgnored       = "ignored"
	OutcomeDuplicate     = "duplicate"
	OutcomeRejected      = "rejected"
	OutcomeNotConfigured = "not_configured"
	OutcomeFailed        = "failed"
)

// HandlerFunc applies one event kind and returns a short description
type HandlerFunc func(ctx context.Context, env webhook.Envelope) (string, error)

// Dispatcher owns the dispatch table of one webhook source
type Dispatcher struct {
	source   webhook.Source
	success  int
	handlers map[webhook.Kind]HandlerFunc
}

// New creates a dispatcher answering successStatus for handled and ignored events
func New(source webhook.Source, successStatus int, handlers map[webhook.Kind]HandlerFunc) *Dispatcher {
	table := make(map[webhook.Kind]HandlerFunc, len(handlers))
	for k, h := range handlers {
		table[k] = h
	}
	return &Dispatcher{source: source, success: successStatus, handlers: table}
}

// NewIdentity builds the identity-provider table
func NewIdentity(svc *identity.Service) *Dispatcher {
	user := func(ctx context.Context, env webhook.Envelope) (string, error) {
		p, ok := env.Payload.(webhook.UserPayload)
		if !ok {
			return "", payloadMismatch(env)
		}
		_, created, err := svc.SyncUser(ctx, p)
		if err != nil {
			return "", err
		}
		if created {
			return "User created", nil
		}
		return "User updated", nil
	}
	org := func(ctx context.Context, env webhook.Envelope) (string, error) {
		p, ok := env.Payload.(webhook.OrganizationPayload)
		if !ok {
			return "", payloadMismatch(env)
		}
		return "Organization recorded", svc.OrganizationChanged(ctx, env.Kind, p)
	}
	membership := func(ctx context.Context, env webhook.Envelope) (string, error) {
		p, ok := env.Payload.(webhook.MembershipPayload)
		if !ok {
			return "", payloadMismatch(env)
		}
		return "Membership recorded", svc.MembershipChanged(ctx, env.Kind, p)
	}

	return New(webhook.SourceIdentity, http.StatusCreated, map[webhook.Kind]HandlerFunc{
		webhook.KindUserCreated: user,
		webhook.KindUserUpdated: user,
		webhook.KindUserDeleted: func(ctx context.Context, env webhook.Envelope) (string, error) {
			p, ok := env.Payload.(webhook.UserDeletedPayload)
			if !ok {
				return "", payloadMismatch(env)
			}
			deleted, err := svc.DeleteUser(ctx, p)
			if err != nil {
				return "", err
			}
			if !deleted {
				return "User not found", nil
			}
			return "User deleted", nil
		},
		webhook.KindOrgCreated:        org,
		webhook.KindOrgUpdated:        org,
		webhook.KindMembershipCreated: membership,
		webhook.KindMembershipDeleted: membership,
	})
}

// NewBilling builds the billing table for source. Created and updated
// subscriptions share one handler since both carry absolute values.
func NewBilling(source webhook.Source, svc *billing.Service) *Dispatcher {
	sub := func(ctx context.Context, env webhook.Envelope) (string, error) {
		p, ok := env.Payload.(webhook.SubscriptionPayload)
		if !ok {
			return "", payloadMismatch(env)
		}
		res, err := svc.SyncSubscription(ctx, p)
		if err != nil {
			return "", err
		}
		if !res.Applied {
			return "No matching user", nil
		}
		return "Subscription updated", nil
	}
	return New(source, http.StatusOK, map[webhook.Kind]HandlerFunc{
		webhook.KindSubscriptionCreated: sub,
		webhook.KindSubscriptionUpdated: sub,
	})
}

// Source returns the provider the table serves
func (d *Dispatcher) Source() webhook.Source { return d.source }

// Kinds lists the event kinds with a handler, sorted
func (d *Dispatcher) Kinds() []webhook.Kind {
	out := make([]webhook.Kind, 0, len(d.handlers))
	for k := range d.handlers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Success is the response for an acknowledged delivery
func (d *Dispatcher) Success(msg string) Response {
	return Response{StatusCode: d.success, Payload: Message{Message: msg, OK: true}}
}

// Dispatch runs the handler for env.Kind. Unknown kinds are acknowledged
// without side effects. Errors and panics become 500 responses.
func (d *Dispatcher) Dispatch(ctx context.Context, env webhook.Envelope) (resp Response) {
	log := logger.WithContext(ctx).With("source", string(d.source), "event_id", env.ID, "kind", string(env.Kind))
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("webhook handler panicked", "panic", rec, "stack", string(debug.Stack()))
			metrics.RecordWebhook(string(d.source), string(env.Kind), OutcomeFailed)
			resp = internalError()
		}
	}()

	h, ok := d.handlers[env.Kind]
	if !ok {
		log.Debug("ignoring unhandled event kind")
		metrics.RecordWebhook(string(d.source), string(env.Kind), OutcomeIgnored)
		return d.Success("Event ignored")
	}
	msg, err := h(ctx, env)
	if err != nil {
		log.Error("webhook handler failed", "error", err)
		metrics.RecordWebhook(string(d.source), string(env.Kind), OutcomeFailed)
		return internalError()
	}
	metrics.RecordWebhook(string(d.source), string(env.Kind), OutcomeHandled)
	return d.Success(msg)
}

// ForError maps a receive failure to its response. Verification failures
// and malformed events are rejected, a missing secret is acknowledged so the
// provider does not retry, anything else is an internal error.
func (d *Dispatcher) ForError(ctx context.Context, err error) Response {
	log := logger.WithContext(ctx).With("source", string(d.source))
	switch {
	case apperrors.IsNotConfigured(err):
		log.Error("webhook secret not configured", "error", err)
		metrics.RecordWebhook(string(d.source), "", OutcomeNotConfigured)
		return Response{StatusCode: http.StatusOK, Payload: Message{Message: "Not configured", OK: false}}
	case apperrors.IsVerification(err):
		log.Warn("webhook verification failed", "error", err)
		metrics.RecordWebhook(string(d.source), "", OutcomeRejected)
		return Response{StatusCode: http.StatusBadRequest, Payload: Message{Message: err.Error(), OK: false}}
	case errors.Is(err, apperrors.ErrMalformedEvent):
		log.Warn("malformed webhook event", "error", err)
		metrics.RecordWebhook(string(d.source), "", OutcomeRejected)
		return Response{StatusCode: http.StatusBadRequest, Payload: Message{Message: err.Error(), OK: false}}
	default:
		log.Error("webhook receive failed", "error", err)
		metrics.RecordWebhook(string(d.source), "", OutcomeFailed)
		return internalError()
	}
}

func internalError() Response {
	return Response{StatusCode: http.StatusInternalServerError, Payload: Message{Message: "Internal error", OK: false}}
}

func payloadMismatch(env webhook.Envelope) error {
	return fmt.Errorf("%s: unexpected payload %T", env.Kind, env.Payload)
}

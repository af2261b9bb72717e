// Package analytics forwards product events to the analytics backend. The
// hosting process creates one client at startup, injects it where events
// are produced, and closes it on shutdown.
package analytics

import (
	"fmt"
	"sync"

	"github.com/posthog/posthog-go"
	"github.com/rajasatyajit/ResumeCore/config"
	"github.com/rajasatyajit/ResumeCore/internal/logger"
)

// Event names
const (
	EventUserSignedUp        = "user_signed_up"
	EventUserDeleted         = "user_deleted"
	EventOrganizationCreated = "organization_created"
	EventOrganizationUpdated = "organization_updated"
	EventOrgMemberAdded      = "organization_member_added"
	EventOrgMemberRemoved    = "organization_member_removed"
	GroupOrganization        = "organization"
)

// Event is a single captured action
type Event struct {
	DistinctID string
	Name       string
	Properties map[string]any
	Groups     map[string]string
}

// Group describes a group entity such as an organization
type Group struct {
	Type       string
	Key        string
	Properties map[string]any
}

// Client sends analytics. Implementations are safe for concurrent use.
type Client interface {
	Capture(e Event) error
	GroupIdentify(g Group) error
	Close() error
}

// New returns a PostHog client, or a no-op client when no API key is set
func New(cfg config.AnalyticsConfig) (Client, error) {
	if cfg.PostHogAPIKey == "" {
		logger.Info("POSTHOG_API_KEY not set; analytics disabled")
		return Noop{}, nil
	}
	c, err := posthog.NewWithConfig(cfg.PostHogAPIKey, posthog.Config{Endpoint: cfg.PostHogHost})
	if err != nil {
		return nil, fmt.Errorf("create posthog client: %w", err)
	}
	return &PostHog{client: c}, nil
}

// PostHog enqueues events on a posthog-go client, which batches and flushes
// them in the background
type PostHog struct {
	client posthog.Client
}

func (p *PostHog) Capture(e Event) error {
	msg := posthog.Capture{
		DistinctId: e.DistinctID,
		Event:      e.Name,
		Properties: posthog.Properties(e.Properties),
	}
	if len(e.Groups) > 0 {
		groups := posthog.NewGroups()
		for k, v := range e.Groups {
			groups.Set(k, v)
		}
		msg.Groups = groups
	}
	return p.client.Enqueue(msg)
}

func (p *PostHog) GroupIdentify(g Group) error {
	return p.client.Enqueue(posthog.GroupIdentify{
		Type:       g.Type,
		Key:        g.Key,
		Properties: posthog.Properties(g.Properties),
	})
}

// Close flushes pending events
func (p *PostHog) Close() error {
	return p.client.Close()
}

// Noop discards everything
type Noop struct{}

func (Noop) Capture(Event) error       { return nil }
func (Noop) GroupIdentify(Group) error { return nil }
func (Noop) Close() error              { return nil }

// Recorder keeps events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
	groups []Group
	closed bool
	// Err is returned from every call when set
	Err error
}

func (r *Recorder) Capture(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) GroupIdentify(g Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.groups = append(r.groups, g)
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Events returns a copy of the captured events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Groups returns a copy of the identified groups
func (r *Recorder) Groups() []Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Group(nil), r.groups...)
}

// Closed reports whether Close was called
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

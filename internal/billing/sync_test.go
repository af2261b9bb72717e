package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/rajasatyajit/ResumeCore/internal/errors"
	"github.com/rajasatyajit/ResumeCore/internal/models"
	"github.com/rajasatyajit/ResumeCore/internal/plans"
	"github.com/rajasatyajit/ResumeCore/internal/store"
	"github.com/rajasatyajit/ResumeCore/internal/webhook"
)

func newService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	resolver, err := plans.NewResolver(map[string]models.Plan{
		"prod_plus":   models.PlanPlus,
		"prod_pro":    models.PlanPro,
		"prod_legend": models.PlanLegend,
	})
	if err != nil {
		t.Fatal(err)
	}
	st := store.NewInMemoryStore()
	return NewService(st, resolver), st
}

func seedUser(t *testing.T, st store.Store, email string) models.User {
	t.Helper()
	u, _, err := st.UpsertIdentity(context.Background(), models.IdentityProfile{ExternalID: "user_1", Email: email, FirstName: "Ada"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestSyncSubscriptionLegend(t *testing.T) {
	svc, st := newService(t)
	u := seedUser(t, st, "ada@example.com")
	end := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	res, err := svc.SyncSubscription(context.Background(), webhook.SubscriptionPayload{
		ID: "sub_1", Status: models.StatusActive, CurrentPeriodEnd: &end,
		CustomerEmail: "ada@example.com", ProductID: "prod_legend",
	})
	if err != nil {
		t.Fatalf("SyncSubscription: %v", err)
	}
	if !res.Applied {
		t.Fatal("expected the patch to apply")
	}
	got, _ := st.GetUser(context.Background(), u.ID)
	if got.Plan != models.PlanLegend || got.SubscriptionStatus != models.StatusActive || got.SubscriptionID != "sub_1" {
		t.Fatalf("unexpected user %+v", got)
	}
	if got.NextRenewal == nil || !got.NextRenewal.Equal(end) {
		t.Fatalf("next renewal = %v", got.NextRenewal)
	}
	if got.Credits != 10 || got.FirstName != "Ada" {
		t.Fatal("patch must preserve unrelated fields")
	}
}

func TestSyncSubscriptionReplayIsIdempotent(t *testing.T) {
	svc, st := newService(t)
	u := seedUser(t, st, "ada@example.com")
	end := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	p := webhook.SubscriptionPayload{
		ID: "sub_1", Status: models.StatusPastDue, CurrentPeriodEnd: &end,
		CustomerEmail: "ada@example.com", ProductID: "prod_pro",
	}

	svc.SyncSubscription(context.Background(), p)
	once, _ := st.GetUser(context.Background(), u.ID)
	svc.SyncSubscription(context.Background(), p)
	twice, _ := st.GetUser(context.Background(), u.ID)

	if once.Plan != twice.Plan || once.SubscriptionStatus != twice.SubscriptionStatus ||
		once.SubscriptionID != twice.SubscriptionID || !once.NextRenewal.Equal(*twice.NextRenewal) {
		t.Fatalf("replay changed the record: %+v vs %+v", once, twice)
	}
}

func TestSyncSubscriptionCancellationKeepsRecord(t *testing.T) {
	svc, st := newService(t)
	u := seedUser(t, st, "ada@example.com")

	_, err := svc.SyncSubscription(context.Background(), webhook.SubscriptionPayload{
		ID: "sub_1", Status: models.StatusCanceled, CustomerEmail: "ada@example.com",
		ProductID: "prod_pro", CancellationReason: "too_expensive",
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := st.GetUser(context.Background(), u.ID)
	if err != nil || got.SubscriptionStatus != models.StatusCanceled || got.SubscriptionID != "sub_1" {
		t.Fatalf("got %+v, %v", got, err)
	}
}

func TestSyncSubscriptionUnknownProductFallsBackToFree(t *testing.T) {
	svc, st := newService(t)
	u := seedUser(t, st, "ada@example.com")
	st.PatchSubscription(context.Background(), u.ID, models.SubscriptionPatch{Plan: models.PlanPro, SubscriptionStatus: models.StatusActive})

	svc.SyncSubscription(context.Background(), webhook.SubscriptionPayload{
		ID: "sub_2", Status: models.StatusActive, CustomerEmail: "ada@example.com", ProductID: "prod_retired",
	})
	got, _ := st.GetUser(context.Background(), u.ID)
	if got.Plan != models.PlanFree {
		t.Fatalf("expected free, got %s", got.Plan)
	}
}

func TestSyncSubscriptionUnknownCustomer(t *testing.T) {
	svc, _ := newService(t)
	res, err := svc.SyncSubscription(context.Background(), webhook.SubscriptionPayload{
		ID: "sub_1", Status: models.StatusActive, CustomerEmail: "nobody@example.com", ProductID: "prod_pro",
	})
	if err != nil || res.Applied {
		t.Fatalf("unknown customer should be an acknowledged no-op, got %+v, %v", res, err)
	}
}

func TestSyncSubscriptionRejectsInvalidPayload(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.SyncSubscription(context.Background(), webhook.SubscriptionPayload{ID: "sub_1", Status: "paused"})
	var me apperrors.MultiError
	if !errors.As(err, &me) || len(me.Errors) != 3 {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/rajasatyajit/ResumeCore/internal/errors"
	"github.com/rajasatyajit/ResumeCore/internal/models"
)

// testStoreContract exercises the behavior every Store implementation shares
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	profile := func(ext, email string) models.IdentityProfile {
		return models.IdentityProfile{ExternalID: ext, Email: email, FirstName: "Ada", LastName: "Lovelace"}
	}

	t.Run("upsert creates with signup grant", func(t *testing.T) {
		st := newStore(t)
		u, created, err := st.UpsertIdentity(ctx, profile("user_1", "Ada@Example.com"), 10)
		if err != nil {
			t.Fatalf("UpsertIdentity: %v", err)
		}
		if !created || u.Plan != models.PlanFree || u.Credits != 10 || u.Email != "ada@example.com" {
			t.Fatalf("unexpected user: created=%v %+v", created, u)
		}
		txs, err := st.ListTransactions(ctx, u.ID, 0)
		if err != nil {
			t.Fatalf("ListTransactions: %v", err)
		}
		if len(txs) != 1 || txs[0].Delta != 10 || txs[0].Reason != models.ReasonSignupGrant {
			t.Fatalf("expected one signup grant, got %+v", txs)
		}
	})

	t.Run("replayed upsert keeps credits and plan", func(t *testing.T) {
		st := newStore(t)
		u, _, _ := st.UpsertIdentity(ctx, profile("user_1", "a@b.c"), 10)
		if _, err := st.PatchSubscription(ctx, u.ID, models.SubscriptionPatch{Plan: models.PlanPro, SubscriptionStatus: models.StatusActive}); err != nil {
			t.Fatalf("PatchSubscription: %v", err)
		}
		p := profile("user_1", "new@b.c")
		p.FirstName = "Augusta"
		again, created, err := st.UpsertIdentity(ctx, p, 10)
		if err != nil {
			t.Fatalf("UpsertIdentity: %v", err)
		}
		if created || again.ID != u.ID || again.Credits != 10 || again.Plan != models.PlanPro || again.FirstName != "Augusta" {
			t.Fatalf("unexpected user after replay: created=%v %+v", created, again)
		}
		if _, err := st.GetUserByEmail(ctx, "a@b.c"); !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("old email should no longer resolve, got %v", err)
		}
		if got, err := st.GetUserByEmail(ctx, "NEW@b.c"); err != nil || got.ID != u.ID {
			t.Fatalf("GetUserByEmail = %+v, %v", got, err)
		}
		txs, _ := st.ListTransactions(ctx, u.ID, 0)
		if len(txs) != 1 {
			t.Fatalf("replay must not grant again, got %d entries", len(txs))
		}
	})

	t.Run("email belongs to one user", func(t *testing.T) {
		st := newStore(t)
		if _, _, err := st.UpsertIdentity(ctx, profile("user_1", "a@b.c"), 10); err != nil {
			t.Fatal(err)
		}
		_, _, err := st.UpsertIdentity(ctx, profile("user_2", "a@b.c"), 10)
		if !errors.Is(err, apperrors.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("users without email coexist", func(t *testing.T) {
		st := newStore(t)
		for _, ext := range []string{"user_1", "user_2"} {
			if _, _, err := st.UpsertIdentity(ctx, profile(ext, ""), 10); err != nil {
				t.Fatalf("UpsertIdentity(%s): %v", ext, err)
			}
		}
		if _, err := st.GetUserByEmail(ctx, ""); !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("empty email lookup must miss, got %v", err)
		}
	})

	t.Run("patch preserves unrelated fields", func(t *testing.T) {
		st := newStore(t)
		u, _, _ := st.UpsertIdentity(ctx, profile("user_1", "a@b.c"), 10)
		renewal := time.Date(2026, 11, 15, 0, 0, 0, 0, time.UTC)
		patch := models.SubscriptionPatch{
			Plan:               models.PlanLegend,
			SubscriptionID:     "sub_1",
			SubscriptionStatus: models.StatusActive,
			NextRenewal:        &renewal,
		}
		first, err := st.PatchSubscription(ctx, u.ID, patch)
		if err != nil {
			t.Fatalf("PatchSubscription: %v", err)
		}
		second, err := st.PatchSubscription(ctx, u.ID, patch)
		if err != nil {
			t.Fatalf("PatchSubscription replay: %v", err)
		}
		for _, got := range []models.User{first, second} {
			if got.Plan != models.PlanLegend || got.SubscriptionID != "sub_1" || got.SubscriptionStatus != models.StatusActive {
				t.Fatalf("unexpected billing fields: %+v", got)
			}
			if got.NextRenewal == nil || !got.NextRenewal.Equal(renewal) {
				t.Fatalf("unexpected renewal: %v", got.NextRenewal)
			}
			if got.Credits != 10 || got.Email != "a@b.c" || got.FirstName != "Ada" {
				t.Fatalf("patch touched unrelated fields: %+v", got)
			}
		}
		if _, err := st.PatchSubscription(ctx, "00000000-0000-0000-0000-000000000000", patch); !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ai overrides round trip", func(t *testing.T) {
		st := newStore(t)
		u, _, _ := st.UpsertIdentity(ctx, profile("user_1", "a@b.c"), 10)
		got, err := st.SetAIOverrides(ctx, u.ID, models.AIOverrides{Provider: "anthropic", Model: "claude", APIKey: "sk-ant"})
		if err != nil {
			t.Fatalf("SetAIOverrides: %v", err)
		}
		reread, _ := st.GetUser(ctx, u.ID)
		for _, x := range []models.User{got, reread} {
			if x.AIProvider != "anthropic" || x.AIModel != "claude" || x.APIKey != "sk-ant" {
				t.Fatalf("unexpected overrides: %+v", x)
			}
		}
	})

	t.Run("mutate credits applies entry", func(t *testing.T) {
		st := newStore(t)
		u, _, _ := st.UpsertIdentity(ctx, profile("user_1", "a@b.c"), 10)
		got, entry, err := st.MutateCredits(ctx, u.ID, func(models.User) (*models.CreditTransaction, error) {
			return &models.CreditTransaction{Delta: -3, Reason: models.ReasonCoverLetter, RelatedID: "doc_1"}, nil
		})
		if err != nil {
			t.Fatalf("MutateCredits: %v", err)
		}
		if got.Credits != 7 || entry == nil || entry.ID == "" || entry.UserID != u.ID || entry.CreatedAt.IsZero() {
			t.Fatalf("unexpected result: %+v %+v", got, entry)
		}
		txs, _ := st.ListTransactions(ctx, u.ID, 0)
		if len(txs) != 2 || txs[0].Delta != -3 || txs[0].RelatedID != "doc_1" {
			t.Fatalf("unexpected ledger: %+v", txs)
		}
		if limited, _ := st.ListTransactions(ctx, u.ID, 1); len(limited) != 1 {
			t.Fatalf("limit ignored: %d entries", len(limited))
		}
	})

	t.Run("mutate credits nil entry is a no-op", func(t *testing.T) {
		st := newStore(t)
		u, _, _ := st.UpsertIdentity(ctx, profile("user_1", "a@b.c"), 10)
		got, entry, err := st.MutateCredits(ctx, u.ID, func(models.User) (*models.CreditTransaction, error) { return nil, nil })
		if err != nil || entry != nil || got.Credits != 10 {
			t.Fatalf("expected no-op, got %+v %+v %v", got, entry, err)
		}
		txs, _ := st.ListTransactions(ctx, u.ID, 0)
		if len(txs) != 1 {
			t.Fatalf("no-op wrote an entry: %+v", txs)
		}
	})

	t.Run("mutate credits refuses negative balance", func(t *testing.T) {
		st := newStore(t)
		u, _, _ := st.UpsertIdentity(ctx, profile("user_1", "a@b.c"), 10)
		_, _, err := st.MutateCredits(ctx, u.ID, func(models.User) (*models.CreditTransaction, error) {
			return &models.CreditTransaction{Delta: -11, Reason: models.ReasonTranslation}, nil
		})
		if !apperrors.IsInsufficientCredits(err) {
			t.Fatalf("expected InsufficientCreditsError, got %v", err)
		}
		after, _ := st.GetUser(ctx, u.ID)
		if after.Credits != 10 {
			t.Fatalf("balance changed: %d", after.Credits)
		}
	})

	t.Run("mutate credits propagates callback error", func(t *testing.T) {
		st := newStore(t)
		u, _, _ := st.UpsertIdentity(ctx, profile("user_1", "a@b.c"), 10)
		boom := errors.New("boom")
		if _, _, err := st.MutateCredits(ctx, u.ID, func(models.User) (*models.CreditTransaction, error) { return nil, boom }); !errors.Is(err, boom) {
			t.Fatalf("expected callback error, got %v", err)
		}
	})

	t.Run("concurrent mutations serialize", func(t *testing.T) {
		st := newStore(t)
		u, _, _ := st.UpsertIdentity(ctx, profile("user_1", "a@b.c"), 10)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := st.MutateCredits(ctx, u.ID, func(locked models.User) (*models.CreditTransaction, error) {
					if locked.Credits < 10 {
						return nil, apperrors.InsufficientCreditsError{Balance: locked.Credits, Required: 10}
					}
					return &models.CreditTransaction{Delta: -10, Reason: models.ReasonResumeGeneration}, nil
				})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if succeeded != 1 {
			t.Fatalf("expected exactly one success, got %d", succeeded)
		}
		after, _ := st.GetUser(ctx, u.ID)
		if after.Credits != 0 {
			t.Fatalf("expected balance 0, got %d", after.Credits)
		}
	})

	t.Run("delete keeps ledger", func(t *testing.T) {
		st := newStore(t)
		u, _, _ := st.UpsertIdentity(ctx, profile("user_1", "a@b.c"), 10)
		deleted, err := st.DeleteUser(ctx, "user_1")
		if err != nil || !deleted {
			t.Fatalf("DeleteUser = %v, %v", deleted, err)
		}
		if _, err := st.GetUserByExternalID(ctx, "user_1"); !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if deleted, err := st.DeleteUser(ctx, "user_1"); err != nil || deleted {
			t.Fatalf("second delete = %v, %v", deleted, err)
		}
		txs, _ := st.ListTransactions(ctx, u.ID, 0)
		if len(txs) != 1 {
			t.Fatalf("ledger must survive deletion, got %d entries", len(txs))
		}
		if _, err := st.GetUserByEmail(ctx, "a@b.c"); !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("email index not cleared: %v", err)
		}
	})

	t.Run("lookups miss with ErrNotFound", func(t *testing.T) {
		st := newStore(t)
		if _, err := st.GetUser(ctx, "not-a-uuid"); !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("GetUser: %v", err)
		}
		if _, err := st.GetUserByExternalID(ctx, "user_x"); !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("GetUserByExternalID: %v", err)
		}
		if _, err := st.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("GetUserByEmail: %v", err)
		}
		if _, _, err := st.MutateCredits(ctx, "not-a-uuid", func(models.User) (*models.CreditTransaction, error) { return nil, nil }); !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("MutateCredits: %v", err)
		}
	})
}

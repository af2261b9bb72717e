// Package ledger is the only path that changes a user's credit balance.
// Every change is an append-only entry written together with the balance.
package ledger

import (
	"context"
	"fmt"

	apperrors "github.com/rajasatyajit/ResumeCore/internal/errors"
	"github.com/rajasatyajit/ResumeCore/internal/logger"
	"github.com/rajasatyajit/ResumeCore/internal/metrics"
	"github.com/rajasatyajit/ResumeCore/internal/models"
	"github.com/rajasatyajit/ResumeCore/internal/plans"
	"github.com/rajasatyajit/ResumeCore/internal/store"
)

// Ledger charges and grants credits
type Ledger struct {
	store store.Store
}

// New creates a ledger over st
func New(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// Charge draws cost credits from a pay-as-you-go user. Users who are not
// metered, and zero-cost charges, succeed without writing an entry. The
// affordability check runs against the locked balance, so two concurrent
// charges can never both spend the same credits.
func (l *Ledger) Charge(ctx context.Context, userID string, cost int64, reason models.ChargeReason, relatedID string) (models.User, error) {
	if cost < 0 {
		return models.User{}, apperrors.ValidationError{Field: "cost", Message: "must be non-negative"}
	}
	if !reason.IsDebit() {
		return models.User{}, apperrors.ValidationError{Field: "reason", Message: fmt.Sprintf("%q is not a charge reason", reason)}
	}

	u, entry, err := l.store.MutateCredits(ctx, userID, func(u models.User) (*models.CreditTransaction, error) {
		if !plans.IsPayAsYouGo(u) || cost == 0 {
			return nil, nil
		}
		if !plans.CanAfford(u, cost) {
			return nil, apperrors.InsufficientCreditsError{UserID: u.ID, Balance: u.Credits, Required: cost}
		}
		return &models.CreditTransaction{Delta: -cost, Reason: reason, RelatedID: relatedID}, nil
	})
	switch {
	case apperrors.IsInsufficientCredits(err):
		metrics.RecordCharge(string(reason), "insufficient", 0)
		logger.WithContext(ctx).Info("Charge refused", "user_id", userID, "reason", reason, "cost", cost)
		return models.User{}, err
	case err != nil:
		metrics.RecordCharge(string(reason), "error", 0)
		return models.User{}, fmt.Errorf("charge %s: %w", reason, err)
	case entry == nil:
		metrics.RecordCharge(string(reason), "unmetered", 0)
		return u, nil
	}

	metrics.RecordCharge(string(reason), "charged", cost)
	logger.WithContext(ctx).Debug("Credits charged",
		"user_id", userID,
		"reason", reason,
		"cost", cost,
		"balance", u.Credits,
		"transaction_id", entry.ID,
	)
	return u, nil
}

// Grant adds amount credits for a credit reason
func (l *Ledger) Grant(ctx context.Context, userID string, amount int64, reason models.ChargeReason, relatedID string) (models.User, models.CreditTransaction, error) {
	if amount <= 0 {
		return models.User{}, models.CreditTransaction{}, apperrors.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if !reason.IsCredit() {
		return models.User{}, models.CreditTransaction{}, apperrors.ValidationError{Field: "reason", Message: fmt.Sprintf("%q is not a grant reason", reason)}
	}

	u, entry, err := l.store.MutateCredits(ctx, userID, func(models.User) (*models.CreditTransaction, error) {
		return &models.CreditTransaction{Delta: amount, Reason: reason, RelatedID: relatedID}, nil
	})
	if err != nil {
		return models.User{}, models.CreditTransaction{}, fmt.Errorf("grant %s: %w", reason, err)
	}
	logger.WithContext(ctx).Info("Credits granted",
		"user_id", userID,
		"reason", reason,
		"amount", amount,
		"balance", u.Credits,
	)
	return u, *entry, nil
}

// History returns the user's entries, newest first
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]models.CreditTransaction, error) {
	txs, err := l.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger history: %w", err)
	}
	return txs, nil
}

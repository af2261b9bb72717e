package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/rajasatyajit/ResumeCore/internal/errors"
	"github.com/rajasatyajit/ResumeCore/internal/models"
)

// prepareEntry validates tx against the locked balance and fills the
// fields the store owns
func prepareEntry(u models.User, tx *models.CreditTransaction, now time.Time) error {
	if tx.Delta == 0 {
		return apperrors.ValidationError{Field: "delta", Message: "must be non-zero"}
	}
	if !tx.Reason.Valid() {
		return apperrors.ValidationError{Field: "reason", Message: fmt.Sprintf("unknown reason %q", tx.Reason)}
	}
	if u.Credits+tx.Delta < 0 {
		return apperrors.InsufficientCreditsError{UserID: u.ID, Balance: u.Credits, Required: -tx.Delta}
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.UserID = u.ID
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package store

import (
	"context"

	pgx "github.com/jackc/pgx/v5"
	"github.com/rajasatyajit/ResumeCore/internal/models"
)

// CreditMutation decides the ledger entry to write for the locked user.
// Returning a nil entry leaves the user untouched. Returning an error
// aborts without mutation.
type CreditMutation func(u models.User) (*models.CreditTransaction, error)

// Store defines the persistence surface for users and their ledger.
// Lookups that find nothing return errors.ErrNotFound.
type Store interface {
	// UpsertIdentity inserts or refreshes the user owning p.ExternalID.
	// A new user starts on the free plan with signupCredits and a matching
	// signup_grant entry; an existing user keeps plan and credits.
	UpsertIdentity(ctx context.Context, p models.IdentityProfile, signupCredits int64) (models.User, bool, error)
	DeleteUser(ctx context.Context, externalID string) (bool, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	PatchSubscription(ctx context.Context, userID string, p models.SubscriptionPatch) (models.User, error)
	SetAIOverrides(ctx context.Context, userID string, o models.AIOverrides) (models.User, error)
	// MutateCredits runs fn while holding the user's row exclusively, then
	// applies the returned entry's delta and appends the entry in one unit.
	MutateCredits(ctx context.Context, userID string, fn CreditMutation) (models.User, *models.CreditTransaction, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]models.CreditTransaction, error)
	Health(ctx context.Context) error
}

// Database is the subset of the pgx pool wrapper the Postgres store needs
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	Health(ctx context.Context) error
	IsConfigured() bool
}

// Sealer protects API keys at rest
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// New creates a new store instance
func New(db Database, sealer Sealer) Store {
	if db != nil && db.IsConfigured() {
		return NewPostgresStore(db, sealer)
	}
	// Fallback to in-memory store if no database
	return NewInMemoryStore()
}

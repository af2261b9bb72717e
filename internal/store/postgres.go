package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	apperrors "github.com/rajasatyajit/ResumeCore/internal/errors"
	"github.com/rajasatyajit/ResumeCore/internal/logger"
	"github.com/rajasatyajit/ResumeCore/internal/models"
)

const userColumns = `
	id, external_id, COALESCE(email, ''), first_name, last_name, username, image_url,
	plan, subscription_id, subscription_status, next_renewal, credits,
	api_key, ai_provider, ai_model, created_at, updated_at`

const uniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     Database
	sealer Sealer
}

// NewPostgresStore creates a new PostgreSQL store. sealer may be nil.
func NewPostgresStore(db Database, sealer Sealer) *PostgresStore {
	return &PostgresStore{db: db, sealer: sealer}
}

// UpsertIdentity inserts or refreshes a user keyed by external id. The
// signup grant entry is written in the same transaction as the insert.
func (s *PostgresStore) UpsertIdentity(ctx context.Context, p models.IdentityProfile, signupCredits int64) (models.User, bool, error) {
	query := `
		INSERT INTO users (
			id, external_id, email, first_name, last_name, username, image_url, plan, credits
		) VALUES (
			$1, $2, NULLIF($3, ''), $4, $5, $6, $7, 'free', $8
		)
		ON CONFLICT (external_id) DO UPDATE SET
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			username = EXCLUDED.username,
			image_url = EXCLUDED.image_url,
			updated_at = NOW()
		RETURNING ` + userColumns + `, (xmax = 0) AS inserted`

	var (
		u        models.User
		inserted bool
	)
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		u, err = s.scanUser(tx.QueryRow(ctx, query,
			uuid.NewString(), p.ExternalID, normalizeEmail(p.Email),
			p.FirstName, p.LastName, p.Username, p.ImageURL, signupCredits,
		), &inserted)
		if err != nil {
			return err
		}
		if !inserted || signupCredits <= 0 {
			return nil
		}
		return insertEntry(ctx, tx, models.CreditTransaction{
			ID:        uuid.NewString(),
			UserID:    u.ID,
			Delta:     signupCredits,
			Reason:    models.ReasonSignupGrant,
			CreatedAt: u.CreatedAt,
		})
	})
	if err != nil {
		return models.User{}, false, wrap("upsert user", err)
	}
	return u, inserted, nil
}

// DeleteUser removes the user row. Ledger entries are retained.
func (s *PostgresStore) DeleteUser(ctx context.Context, externalID string) (bool, error) {
	var id string
	err := s.db.QueryRow(ctx, `DELETE FROM users WHERE external_id = $1 RETURNING id`, externalID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap("delete user", err)
	}
	return true, nil
}

// GetUser retrieves a user by internal id
func (s *PostgresStore) GetUser(ctx context.Context, id string) (models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.User{}, apperrors.ErrNotFound
	}
	return s.getUser(ctx, "get user", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetUserByExternalID retrieves a user by identity-provider id
func (s *PostgresStore) GetUserByExternalID(ctx context.Context, externalID string) (models.User, error) {
	return s.getUser(ctx, "get user by external id", `SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID)
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return models.User{}, apperrors.ErrNotFound
	}
	return s.getUser(ctx, "get user by email", `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *PostgresStore) getUser(ctx context.Context, op, query string, arg any) (models.User, error) {
	u, err := s.scanUser(s.db.QueryRow(ctx, query, arg))
	if err != nil {
		return models.User{}, wrap(op, err)
	}
	return u, nil
}

// PatchSubscription writes the billing fields only
func (s *PostgresStore) PatchSubscription(ctx context.Context, userID string, p models.SubscriptionPatch) (models.User, error) {
	var renewal *time.Time
	if p.NextRenewal != nil {
		t := p.NextRenewal.UTC()
		renewal = &t
	}
	query := `
		UPDATE users SET
			plan = $2,
			subscription_id = $3,
			subscription_status = $4,
			next_renewal = $5,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	u, err := s.scanUser(s.db.QueryRow(ctx, query,
		userID, string(p.Plan), p.SubscriptionID, string(p.SubscriptionStatus), renewal,
	))
	if err != nil {
		return models.User{}, wrap("patch subscription", err)
	}
	return u, nil
}

// SetAIOverrides stores a user's provider settings, sealing the key
func (s *PostgresStore) SetAIOverrides(ctx context.Context, userID string, o models.AIOverrides) (models.User, error) {
	key := o.APIKey
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(key)
		if err != nil {
			return models.User{}, fmt.Errorf("seal api key: %w", err)
		}
		key = sealed
	}
	query := `
		UPDATE users SET
			ai_provider = $2,
			ai_model = $3,
			api_key = $4,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	u, err := s.scanUser(s.db.QueryRow(ctx, query, userID, o.Provider, o.Model, key))
	if err != nil {
		return models.User{}, wrap("set ai overrides", err)
	}
	return u, nil
}

// MutateCredits locks the user row with SELECT ... FOR UPDATE, lets fn
// decide the entry, then writes the balance and the entry in the same
// transaction. Concurrent mutations for one user serialize on the lock.
func (s *PostgresStore) MutateCredits(ctx context.Context, userID string, fn CreditMutation) (models.User, *models.CreditTransaction, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return models.User{}, nil, apperrors.ErrNotFound
	}

	var (
		u         models.User
		entry     *models.CreditTransaction
		callerErr error
	)
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		locked, err := s.scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
		if err != nil {
			return err
		}
		u = locked

		e, err := fn(locked)
		if err != nil || e == nil {
			callerErr = err
			return err
		}
		if err := prepareEntry(locked, e, time.Now().UTC()); err != nil {
			callerErr = err
			return err
		}

		updated, err := s.scanUser(tx.QueryRow(ctx, `
			UPDATE users SET credits = credits + $2, updated_at = $3
			WHERE id = $1
			RETURNING `+userColumns, userID, e.Delta, e.CreatedAt))
		if err != nil {
			return err
		}
		if err := insertEntry(ctx, tx, *e); err != nil {
			return err
		}
		u, entry = updated, e
		return nil
	})
	if callerErr != nil {
		return u, nil, callerErr
	}
	if err != nil {
		return models.User{}, nil, wrap("mutate credits", err)
	}
	return u, entry, nil
}

// ListTransactions returns a user's entries, newest first. A non-positive
// limit returns all of them.
func (s *PostgresStore) ListTransactions(ctx context.Context, userID string, limit int) ([]models.CreditTransaction, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []models.CreditTransaction{}, nil
	}
	query := `
		SELECT id, user_id, delta, reason, related_id, created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT NULLIF($2::int, 0)
	`
	if limit < 0 {
		limit = 0
	}

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, wrap("list transactions", err)
	}
	defer rows.Close()

	result := []models.CreditTransaction{}
	for rows.Next() {
		var (
			tx     models.CreditTransaction
			reason string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Delta, &reason, &tx.RelatedID, &tx.CreatedAt); err != nil {
			return nil, wrap("scan transaction", err)
		}
		tx.Reason = models.ChargeReason(reason)
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list transactions", err)
	}
	return result, nil
}

// Health checks the database connection
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}

func insertEntry(ctx context.Context, tx pgx.Tx, e models.CreditTransaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO credit_transactions (id, user_id, delta, reason, related_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.UserID, e.Delta, string(e.Reason), e.RelatedID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) scanUser(row pgx.Row, extra ...any) (models.User, error) {
	var (
		u            models.User
		plan, status string
		renewal      *time.Time
		sealedKey    string
	)
	dest := []any{
		&u.ID, &u.ExternalID, &u.Email, &u.FirstName, &u.LastName, &u.Username, &u.ImageURL,
		&plan, &u.SubscriptionID, &status, &renewal, &u.Credits,
		&sealedKey, &u.AIProvider, &u.AIModel, &u.CreatedAt, &u.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return models.User{}, err
	}
	u.Plan = models.Plan(plan)
	u.SubscriptionStatus = models.SubscriptionStatus(status)
	u.NextRenewal = renewal

	u.APIKey = sealedKey
	if s.sealer != nil {
		key, err := s.sealer.Open(sealedKey)
		if err != nil {
			// unreadable key (rotated SECRETS_KEY): serve the user without it
			logger.Warn("stored api key could not be opened; ignoring it", "user_id", u.ID, "error", err)
			key = ""
		}
		u.APIKey = key
	}
	return u, nil
}

// wrap maps driver errors onto the application's error taxonomy
func wrap(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperrors.DatabaseError{Operation: op, Err: fmt.Errorf("%w: %s", apperrors.ErrConflict, pgErr.ConstraintName)}
	}
	return apperrors.DatabaseError{Operation: op, Err: err}
}

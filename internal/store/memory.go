package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/rajasatyajit/ResumeCore/internal/errors"
	"github.com/rajasatyajit/ResumeCore/internal/models"
)

// InMemoryStore implements Store using in-memory storage
type InMemoryStore struct {
	mu         sync.RWMutex
	users      map[string]models.User
	byExternal map[string]string
	byEmail    map[string]string
	ledger     map[string][]models.CreditTransaction
	now        func() time.Time
}

// NewInMemoryStore creates a new in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:      make(map[string]models.User),
		byExternal: make(map[string]string),
		byEmail:    make(map[string]string),
		ledger:     make(map[string][]models.CreditTransaction),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// UpsertIdentity inserts a new user with the signup grant or refreshes the
// profile of an existing one
func (s *InMemoryStore) UpsertIdentity(ctx context.Context, p models.IdentityProfile, signupCredits int64) (models.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	email := normalizeEmail(p.Email)
	id, exists := s.byExternal[p.ExternalID]
	if email != "" {
		if owner, taken := s.byEmail[email]; taken && owner != id {
			return models.User{}, false, apperrors.DatabaseError{Operation: "upsert user", Err: apperrors.ErrConflict}
		}
	}

	if exists {
		u := s.users[id]
		if u.Email != "" && u.Email != email {
			delete(s.byEmail, u.Email)
		}
		setProfile(&u, p, email)
		u.UpdatedAt = now
		s.users[id] = u
		if email != "" {
			s.byEmail[email] = id
		}
		return u, false, nil
	}

	u := models.User{
		ID:         uuid.NewString(),
		ExternalID: p.ExternalID,
		Plan:       models.PlanFree,
		Credits:    signupCredits,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	setProfile(&u, p, email)
	s.users[u.ID] = u
	s.byExternal[u.ExternalID] = u.ID
	if email != "" {
		s.byEmail[email] = u.ID
	}
	if signupCredits > 0 {
		s.ledger[u.ID] = append(s.ledger[u.ID], models.CreditTransaction{
			ID:        uuid.NewString(),
			UserID:    u.ID,
			Delta:     signupCredits,
			Reason:    models.ReasonSignupGrant,
			CreatedAt: now,
		})
	}
	return u, true, nil
}

func setProfile(u *models.User, p models.IdentityProfile, email string) {
	u.Email = email
	u.FirstName = p.FirstName
	u.LastName = p.LastName
	u.Username = p.Username
	u.ImageURL = p.ImageURL
}

// DeleteUser removes the user. Ledger entries are retained.
func (s *InMemoryStore) DeleteUser(ctx context.Context, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byExternal[externalID]
	if !ok {
		return false, nil
	}
	u := s.users[id]
	delete(s.users, id)
	delete(s.byExternal, externalID)
	if u.Email != "" {
		delete(s.byEmail, u.Email)
	}
	return true, nil
}

// GetUser retrieves a user by internal id
func (s *InMemoryStore) GetUser(ctx context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return models.User{}, apperrors.ErrNotFound
}

// GetUserByExternalID retrieves a user by identity-provider id
func (s *InMemoryStore) GetUserByExternalID(ctx context.Context, externalID string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.byExternal[externalID]; ok {
		return s.users[id], nil
	}
	return models.User{}, apperrors.ErrNotFound
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (s *InMemoryStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = normalizeEmail(email)
	if email == "" {
		return models.User{}, apperrors.ErrNotFound
	}
	if id, ok := s.byEmail[email]; ok {
		return s.users[id], nil
	}
	return models.User{}, apperrors.ErrNotFound
}

// PatchSubscription writes the billing fields only
func (s *InMemoryStore) PatchSubscription(ctx context.Context, userID string, p models.SubscriptionPatch) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return models.User{}, apperrors.ErrNotFound
	}
	p.Apply(&u)
	u.UpdatedAt = s.now()
	s.users[userID] = u
	return u, nil
}

// SetAIOverrides stores a user's provider settings
func (s *InMemoryStore) SetAIOverrides(ctx context.Context, userID string, o models.AIOverrides) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return models.User{}, apperrors.ErrNotFound
	}
	u.AIProvider = o.Provider
	u.AIModel = o.Model
	u.APIKey = o.APIKey
	u.UpdatedAt = s.now()
	s.users[userID] = u
	return u, nil
}

// MutateCredits holds the store lock across fn so the balance it observes
// is the one the entry is applied to
func (s *InMemoryStore) MutateCredits(ctx context.Context, userID string, fn CreditMutation) (models.User, *models.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return models.User{}, nil, apperrors.ErrNotFound
	}
	tx, err := fn(u)
	if err != nil || tx == nil {
		return u, nil, err
	}
	if err := prepareEntry(u, tx, s.now()); err != nil {
		return u, nil, err
	}
	u.Credits += tx.Delta
	u.UpdatedAt = tx.CreatedAt
	s.users[userID] = u
	s.ledger[userID] = append(s.ledger[userID], *tx)
	return u, tx, nil
}

// ListTransactions returns a user's entries, newest first
func (s *InMemoryStore) ListTransactions(ctx context.Context, userID string, limit int) ([]models.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.ledger[userID]
	result := make([]models.CreditTransaction, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		result = append(result, entries[i])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// Health always returns nil for in-memory store
func (s *InMemoryStore) Health(ctx context.Context) error {
	return nil
}

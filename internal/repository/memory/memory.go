package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/splax/userdesk/internal/domain"
	"github.com/splax/userdesk/internal/repository"
)

// Store is an in-memory user repository. Records live in an arena keyed by
// id, with an insertion-order list and an email index kept alongside. All
// methods are safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	users  map[string]*domain.User
	order  []string
	emails map[string]string
	nextID int64

	seed []domain.User
	now  func() time.Time
}

var _ repository.UserRepository = (*Store)(nil)

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSeed replaces the records the store starts from and returns to on Reset.
func WithSeed(users []domain.User) Option {
	return func(s *Store) {
		s.seed = make([]domain.User, 0, len(users))
		for _, u := range users {
			s.seed = append(s.seed, u.Clone())
		}
	}
}

// DefaultSeed returns the two sample records a fresh store contains.
func DefaultSeed() []domain.User {
	johnAge, janeAge := 25, 30
	return []domain.User{
		{
			ID:        "1",
			Name:      "John Doe",
			Email:     "john@example.com",
			Age:       &johnAge,
			CreatedAt: time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:        "2",
			Name:      "Jane Smith",
			Email:     "jane@example.com",
			Age:       &janeAge,
			CreatedAt: time.Date(2023, time.January, 2, 0, 0, 0, 0, time.UTC),
		},
	}
}

// New returns a seeded store.
func New(opts ...Option) *Store {
	s := &Store{
		seed: DefaultSeed(),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

// Reset drops every record and restores the seed state, including the id
// counter. It exists for test isolation and is not part of UserRepository.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = make(map[string]*domain.User, len(s.seed))
	s.order = make([]string, 0, len(s.seed))
	s.emails = make(map[string]string, len(s.seed))
	s.nextID = 0
	for _, u := range s.seed {
		rec := u.Clone()
		s.users[rec.ID] = &rec
		s.order = append(s.order, rec.ID)
		s.emails[rec.Email] = rec.ID
		if n, err := strconv.ParseInt(rec.ID, 10, 64); err == nil && n > s.nextID {
			s.nextID = n
		}
	}
}

// ListUsers returns a snapshot of all records in insertion order.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.users[id].Clone())
	}
	return out, nil
}

// GetUserByID returns a copy of the record or repository.ErrNotFound.
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := u.Clone()
	return &cp, nil
}

// GetUserByEmail returns a copy of the record holding email or repository.ErrNotFound.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := s.users[id].Clone()
	return &cp, nil
}

// CreateUser allocates the next id, stamps CreatedAt and appends the record.
// The email check and the insert happen under one lock.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emails[user.Email]; taken {
		return repository.ErrEmailTaken
	}
	s.nextID++
	user.ID = strconv.FormatInt(s.nextID, 10)
	user.CreatedAt = s.now()
	user.UpdatedAt = nil

	rec := user.Clone()
	s.users[rec.ID] = &rec
	s.order = append(s.order, rec.ID)
	s.emails[rec.Email] = rec.ID
	return nil
}

// UpdateUser merges patch over the stored record and stamps UpdatedAt.
func (s *Store) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.Email != nil && *patch.Email != current.Email {
		if owner, taken := s.emails[*patch.Email]; taken && owner != id {
			return nil, repository.ErrEmailTaken
		}
	}

	updated := patch.Apply(current.Clone())
	ts := s.now()
	updated.UpdatedAt = &ts

	if updated.Email != current.Email {
		delete(s.emails, current.Email)
		s.emails[updated.Email] = id
	}
	*current = updated

	cp := updated.Clone()
	return &cp, nil
}

// DeleteUser removes the record and reports whether one was present.
func (s *Store) DeleteUser(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return false, nil
	}
	delete(s.users, id)
	delete(s.emails, u.Email)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// CountUsers returns the number of live records.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

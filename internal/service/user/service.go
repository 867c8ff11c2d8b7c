package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/splax/userdesk/internal/domain"
	"github.com/splax/userdesk/internal/repository"
	"github.com/splax/userdesk/internal/validate"
)

// Event topics published on user mutations.
const (
	Topic        = "users"
	EventCreated = "user.created"
	EventUpdated = "user.updated"
	EventDeleted = "user.deleted"
)

// Broadcaster fans out change events to subscribers.
type Broadcaster interface {
	Broadcast(topic string, payload []byte)
}

// Fanout forwards each event to every non-nil broadcaster in order.
type Fanout []Broadcaster

func (f Fanout) Broadcast(topic string, payload []byte) {
	for _, b := range f {
		if b != nil {
			b.Broadcast(topic, payload)
		}
	}
}

// AgeNotNumber is reported when a submitted age could not be read as a number.
const AgeNotNumber = "age must be a number"

// CreateInput carries the attributes of a new user. Adapters that fail to
// parse a submitted age set InvalidAge instead of rejecting the request, so
// the age is judged after the other fields.
type CreateInput struct {
	Name       string
	Email      string
	Age        *int
	InvalidAge bool
}

// Fields exposes the input in the shape RequiredFields expects.
func (in CreateInput) Fields() map[string]any {
	return map[string]any{"name": in.Name, "email": in.Email}
}

// UpdateInput carries a partial update. Nil or blank strings are not applied.
type UpdateInput struct {
	Name       *string
	Email      *string
	Age        *int
	InvalidAge bool
}

// Service applies user business rules on top of a repository.
type Service struct {
	repo   repository.UserRepository
	events Broadcaster
	logger *slog.Logger
	now    func() time.Time
}

// New returns a user service. events may be nil.
func New(repo repository.UserRepository, events Broadcaster, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{repo: repo, events: events, logger: logger, now: time.Now}
}

var requiredOnCreate = []string{"name", "email"}

// List returns every user in insertion order.
func (s Service) List(ctx context.Context) ([]domain.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Count returns the number of live users.
func (s Service) Count(ctx context.Context) (int, error) {
	return s.repo.CountUsers(ctx)
}

// Get returns the user with the given id.
func (s Service) Get(ctx context.Context, id string) (*domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// Create validates and stores a new user.
func (s Service) Create(ctx context.Context, in CreateInput) (*domain.User, error) {
	if errs := validate.RequiredFields(in.Fields(), requiredOnCreate...); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	email := validate.Sanitize(in.Email)
	if !validate.Email(in.Email) || !validate.Email(email) {
		return nil, ErrInvalidEmail
	}
	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}
	if in.InvalidAge {
		return nil, invalidAge()
	}

	u := &domain.User{
		Name:  validate.Sanitize(in.Name),
		Email: email,
	}
	if in.Age != nil {
		age := *in.Age
		u.Age = &age
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user created", "user_id", u.ID)
	s.publish(EventCreated, *u)
	return u, nil
}

// Update merges the supplied fields into an existing user.
func (s Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.User, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var patch domain.UserPatch
	if in.Name != nil && strings.TrimSpace(*in.Name) != "" {
		name := validate.Sanitize(*in.Name)
		patch.Name = &name
	}
	if in.Email != nil && strings.TrimSpace(*in.Email) != "" {
		email := validate.Sanitize(*in.Email)
		if !validate.Email(*in.Email) || !validate.Email(email) {
			return nil, ErrInvalidEmail
		}
		if email != existing.Email {
			if err := s.ensureEmailFree(ctx, email, existing.ID); err != nil {
				return nil, err
			}
		}
		patch.Email = &email
	}
	if in.InvalidAge {
		return nil, invalidAge()
	}
	if in.Age != nil {
		age := *in.Age
		patch.Age = &age
	}

	updated, err := s.repo.UpdateUser(ctx, existing.ID, patch)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrEmailTaken):
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("update user %s: %w", existing.ID, err)
	}
	s.logger.Info("user updated", "user_id", updated.ID)
	s.publish(EventUpdated, *updated)
	return updated, nil
}

// Delete removes a user and returns the record as it was before removal.
func (s Service) Delete(ctx context.Context, id string) (*domain.User, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	removed, err := s.repo.DeleteUser(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("delete user %s: %w", existing.ID, err)
	}
	if !removed {
		return nil, ErrNotFound
	}
	s.logger.Info("user deleted", "user_id", existing.ID)
	s.publish(EventDeleted, *existing)
	return existing, nil
}

// ensureEmailFree fails with ErrEmailExists when a record other than selfID holds email.
func (s Service) ensureEmailFree(ctx context.Context, email, selfID string) error {
	holder, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup email: %w", err)
	}
	if holder.ID != selfID {
		return ErrEmailExists
	}
	return nil
}

func (s Service) publish(kind string, u domain.User) {
	if s.events == nil {
		return
	}
	data, err := MarshalEvent(kind, u, s.now())
	if err != nil {
		s.logger.Warn("failed to marshal user event", "event", kind, "error", err)
		return
	}
	s.events.Broadcast(Topic, data)
}

// MarshalEvent formats a user change for streaming payloads.
func MarshalEvent(kind string, u domain.User, at time.Time) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type": kind,
		"data": u,
		"at":   at.UTC().Format(time.RFC3339Nano),
	})
}

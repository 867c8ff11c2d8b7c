package repository

import (
	"context"

	"github.com/splax/userdesk/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	// CreateUser assigns the ID and CreatedAt of user and stores it. It fails
	// with ErrEmailTaken when the email is already held by a live record.
	CreateUser(ctx context.Context, user *domain.User) error
	UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) (bool, error)
	CountUsers(ctx context.Context) (int, error)
}

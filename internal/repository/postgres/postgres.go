package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/userdesk/internal/domain"
	"github.com/splax/userdesk/internal/repository"
)

const uniqueViolation = "23505"

const userColumns = `id, name, email, age, created_at, updated_at`

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

var _ repository.UserRepository = (*Repository)(nil)

// Ping checks that the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// ListUsers returns all users in id order, which is insertion order.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	key, ok := parseID(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, key)
	return scanOne(row)
}

// GetUserByEmail fetches a user by exact email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanOne(row)
}

// CreateUser inserts a user and writes the assigned id and timestamp back.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (name, email, age, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	var id int64
	var createdAt time.Time
	err := r.pool.QueryRow(ctx, query, user.Name, user.Email, intPtrToNil(user.Age), r.now().UTC()).Scan(&id, &createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrEmailTaken
		}
		return err
	}
	user.ID = formatID(id)
	user.CreatedAt = createdAt.UTC()
	user.UpdatedAt = nil
	return nil
}

// UpdateUser merges the non-nil patch fields and stamps updated_at.
func (r *Repository) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error) {
	key, ok := parseID(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	query := fmt.Sprintf(`UPDATE users SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			age = COALESCE($4, age),
			updated_at = $5
		WHERE id = $1
		RETURNING %s`, userColumns)
	row := r.pool.QueryRow(ctx, query, key, stringPtrToNil(patch.Name), stringPtrToNil(patch.Email), intPtrToNil(patch.Age), r.now().UTC())
	u, err := scanOne(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

// DeleteUser removes a user, reporting whether a row existed.
func (r *Repository) DeleteUser(ctx context.Context, id string) (bool, error) {
	key, ok := parseID(id)
	if !ok {
		return false, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, key)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountUsers counts live users.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM users`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanOne(row pgx.Row) (*domain.User, error) {
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		id        int64
		u         domain.User
		updatedAt *time.Time
	)
	if err := row.Scan(&id, &u.Name, &u.Email, &u.Age, &u.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}
	u.ID = formatID(id)
	u.CreatedAt = u.CreatedAt.UTC()
	if updatedAt != nil {
		ts := updatedAt.UTC()
		u.UpdatedAt = &ts
	}
	return &u, nil
}

// parseID accepts the decimal ids this store hands out; anything else cannot exist.
func parseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func intPtrToNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtrToNil(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/inkwell-app/authserver/types"
	"github.com/lib/pq"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT id, username, email, password_hash, token_version, created_at, updated_at
		FROM users
		WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT id, username, email, password_hash, token_version, created_at, updated_at
		FROM users
		WHERE username = $1`
	return r.getOne(ctx, query, username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT id, username, email, password_hash, token_version, created_at, updated_at
		FROM users
		WHERE email = $1`
	return r.getOne(ctx, query, email)
}

// Create inserts the user in a single statement, so a failure leaves no
// partial row behind. Constraint violations come back as *ConstraintError
// carrying the SQLSTATE code and constraint name.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.TokenVersion = 0

	const query = `
		INSERT INTO users (username, email, password_hash, token_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.TokenVersion,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
			return types.User{}, &ConstraintError{
				Code:       string(pqErr.Code),
				Constraint: pqErr.Constraint,
			}
		}
		return types.User{}, err
	}
	return user, nil
}

// IncrementTokenVersion bumps the user's token version by exactly one and
// returns the new value. The single UPDATE serializes against concurrent
// refresh reads, so a reader sees either the pre- or post-increment value.
func (r *UserRepository) IncrementTokenVersion(ctx context.Context, id int) (int, error) {
	const query = `
		UPDATE users
		SET token_version = token_version + 1,
			updated_at = $1
		WHERE id = $2
		RETURNING token_version`
	var version int
	if err := r.db.QueryRowContext(ctx, query, time.Now(), id).Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return version, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (types.User, error) {
	var user types.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.TokenVersion,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/merchforge/apiserver/types"
)

const userColumns = `id, username, email, is_admin, password_hash,
		delivery_full_name, delivery_phone, delivery_address, delivery_method, delivery_updated_at,
		reset_token_hash, reset_token_expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row rowScanner) (types.User, error) {
	var (
		user        types.User
		method      string
		updatedAt   sql.NullTime
		tokenHash   sql.NullString
		tokenExpiry sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.IsAdmin,
		&user.PasswordHash,
		&user.DeliveryInfo.FullName,
		&user.DeliveryInfo.Phone,
		&user.DeliveryInfo.Address,
		&method,
		&updatedAt,
		&tokenHash,
		&tokenExpiry,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, err
	}
	user.DeliveryInfo.DefaultDeliveryMethod = types.DeliveryMethod(method)
	if updatedAt.Valid {
		t := updatedAt.Time
		user.DeliveryInfo.LastUpdated = &t
	}
	if tokenHash.Valid {
		h := tokenHash.String
		user.ResetTokenHash = &h
	}
	if tokenExpiry.Valid {
		t := tokenExpiry.Time
		user.ResetTokenExpiresAt = &t
	}
	return user, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (types.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// Create inserts a user. A duplicate username or email yields ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.DeliveryInfo.DefaultDeliveryMethod == "" {
		user.DeliveryInfo.DefaultDeliveryMethod = types.DeliveryMethodDelivery
	}

	const query = `
		INSERT INTO users (username, email, password_hash, is_admin, delivery_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.IsAdmin,
		string(user.DeliveryInfo.DefaultDeliveryMethod),
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		if constraint, ok := uniqueConstraint(err); ok {
			return types.User{}, fmt.Errorf("%w: %s", ErrConflict, constraint)
		}
		return types.User{}, err
	}
	return user, nil
}

// UpdateDeliveryInfo replaces the saved delivery preferences of a user.
func (r *UserRepository) UpdateDeliveryInfo(ctx context.Context, id int, info types.DeliveryInfo) error {
	const query = `
		UPDATE users
		SET delivery_full_name = $1,
			delivery_phone = $2,
			delivery_address = $3,
			delivery_method = $4,
			delivery_updated_at = $5,
			updated_at = $6
		WHERE id = $7`
	var lastUpdated any
	if info.LastUpdated != nil {
		lastUpdated = *info.LastUpdated
	}
	result, err := r.db.ExecContext(
		ctx,
		query,
		info.FullName,
		info.Phone,
		info.Address,
		string(info.DefaultDeliveryMethod),
		lastUpdated,
		time.Now().UTC(),
		id,
	)
	return expectAffected(result, err)
}

// SetResetToken stores the digest and expiry of a new reset token, replacing
// any earlier one.
func (r *UserRepository) SetResetToken(ctx context.Context, id int, digest string, expiresAt time.Time) error {
	const query = `
		UPDATE users
		SET reset_token_hash = $1,
			reset_token_expires_at = $2,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, digest, expiresAt, time.Now().UTC(), id)
	return expectAffected(result, err)
}

// ResetPassword sets a new password hash for the user holding an unexpired
// reset token with the given digest, clearing the token in the same
// statement. It returns ErrNotFound when no such user exists at now.
func (r *UserRepository) ResetPassword(ctx context.Context, digest, passwordHash string, now time.Time) error {
	const query = `
		UPDATE users
		SET password_hash = $1,
			reset_token_hash = NULL,
			reset_token_expires_at = NULL,
			updated_at = $3
		WHERE reset_token_hash = $2
		  AND reset_token_expires_at > $3`
	result, err := r.db.ExecContext(ctx, query, passwordHash, digest, now)
	return expectAffected(result, err)
}

// List returns every user ordered by id.
func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []types.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func expectAffected(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

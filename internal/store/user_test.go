package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/merchforge/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var userRowColumns = []string{
	"id", "username", "email", "is_admin", "password_hash",
	"delivery_full_name", "delivery_phone", "delivery_address", "delivery_method", "delivery_updated_at",
	"reset_token_hash", "reset_token_expires_at", "created_at", "updated_at",
}

func TestUserCreate_Success(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+users\s*\(username,\s*email,\s*password_hash.*RETURNING\s+id\s*$`).
		WithArgs("alice", "alice@x.test", "hash", false, "delivery", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	got, err := repo.Create(context.Background(), types.User{Username: "alice", Email: "alice@x.test", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.Equal(t, 42, got.ID)
	assert.Equal(t, types.DeliveryMethodDelivery, got.DeliveryInfo.DefaultDeliveryMethod)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestUserCreate_Duplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err := repo.Create(context.Background(), types.User{Username: "alice", Email: "alice@x.test", PasswordHash: "hash"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "users_email_key")
}

func TestUserCreate_DBError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), types.User{Username: "a", Email: "a@x.test", PasswordHash: "h"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestUserGetByEmail_Found(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(userRowColumns).AddRow(
		7, "alice", "alice@x.test", true, "hash",
		"Alice A", "555", "1 Main St", "pickup", now,
		"digest", now.Add(time.Hour), now, now,
	)
	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*username.*FROM\s+users\s+WHERE\s+email\s*=\s*\$1$`).
		WithArgs("alice@x.test").
		WillReturnRows(rows)

	got, err := repo.GetByEmail(context.Background(), "alice@x.test")
	require.NoError(t, err)
	assert.Equal(t, 7, got.ID)
	assert.True(t, got.IsAdmin)
	assert.Equal(t, types.DeliveryMethodPickup, got.DeliveryInfo.DefaultDeliveryMethod)
	require.NotNil(t, got.DeliveryInfo.LastUpdated)
	require.NotNil(t, got.ResetTokenHash)
	assert.Equal(t, "digest", *got.ResetTokenHash)
	require.NotNil(t, got.ResetTokenExpiresAt)
}

func TestUserGetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserResetPassword(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	query := `(?s)UPDATE\s+users.*reset_token_hash\s*=\s*NULL.*WHERE\s+reset_token_hash\s*=\s*\$2\s+AND\s+reset_token_expires_at\s*>\s*\$3`

	t.Run("match", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(query).
			WithArgs("newhash", "digest", now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, NewUserRepository(db).ResetPassword(context.Background(), "digest", "newhash", now))
	})

	t.Run("no match", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(query).
			WithArgs("newhash", "digest", now).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := NewUserRepository(db).ResetPassword(context.Background(), "digest", "newhash", now)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUserSetResetToken(t *testing.T) {
	db, mock := newMockDB(t)
	expires := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)

	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+reset_token_hash\s*=\s*\$1,\s*reset_token_expires_at\s*=\s*\$2`).
		WithArgs("digest", expires, sqlmock.AnyArg(), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, NewUserRepository(db).SetResetToken(context.Background(), 3, "digest", expires))
}

func TestUserUpdateDeliveryInfo_Missing(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+delivery_full_name`).
		WithArgs("Alice", "555", "", "delivery", now, sqlmock.AnyArg(), 5).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewUserRepository(db).UpdateDeliveryInfo(context.Background(), 5, types.DeliveryInfo{
		FullName:              "Alice",
		Phone:                 "555",
		DefaultDeliveryMethod: types.DeliveryMethodDelivery,
		LastUpdated:           &now,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserList(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(userRowColumns).
		AddRow(1, "admin", "admin@x.test", true, "h1", "", "", "", "delivery", nil, nil, nil, now, now).
		AddRow(2, "bob", "bob@x.test", false, "h2", "Bob", "1", "Street", "delivery", now, nil, nil, now, now)
	mock.ExpectQuery(`FROM\s+users\s+ORDER\s+BY\s+id`).WillReturnRows(rows)

	users, err := NewUserRepository(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Nil(t, users[0].DeliveryInfo.LastUpdated)
	assert.Nil(t, users[0].ResetTokenHash)
	assert.Equal(t, "Bob", users[1].DeliveryInfo.FullName)
}

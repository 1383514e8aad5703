package handlers

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/merchforge/apiserver/internal/auth"
	"github.com/merchforge/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var resetTokenPattern = regexp.MustCompile(`/reset-password/([0-9a-f]{64})`)

func TestSignupLoginProfileScenario(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var msg MessageResponse
	decodeBody(t, rec, &msg)
	assert.Equal(t, "User registered successfully", msg.Message)

	rec = api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "a@x.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		Token string        `json:"token"`
		User  types.Profile `json:"user"`
	}
	decodeBody(t, rec, &login)
	require.NotEmpty(t, login.Token)
	assert.Equal(t, "alice", login.User.Username)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = api.do(t, http.MethodGet, "/api/auth/profile", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile types.Profile
	decodeBody(t, rec, &profile)
	assert.Equal(t, "a@x.com", profile.Email)
	assert.False(t, profile.IsAdmin)

	truncated := login.Token[:len(login.Token)-1]
	rec = api.do(t, http.MethodGet, "/api/auth/profile", truncated, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", errorOf(t, rec))
}

func TestProfileAuthHeader(t *testing.T) {
	api := newTestAPI(t)
	_, bearer := api.signupAndLogin(t, "alice", "a@x.com", "secret1")

	rec := api.do(t, http.MethodGet, "/api/auth/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", errorOf(t, rec))

	rec = api.do(t, http.MethodGet, "/api/auth/profile", bearer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	otherSecret := auth.NewTokenManager("another-secret", time.Hour, nil)
	forged, err := otherSecret.Issue(1)
	require.NoError(t, err)
	rec = api.do(t, http.MethodGet, "/api/auth/profile", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", errorOf(t, rec))

	rec = api.do(t, http.MethodGet, "/api/auth/profile", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileExpiredToken(t *testing.T) {
	api := newTestAPI(t)
	_, bearer := api.signupAndLogin(t, "alice", "a@x.com", "secret1")

	api.clock.Advance(3601 * time.Second)
	rec := api.do(t, http.MethodGet, "/api/auth/profile", bearer, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token expired", errorOf(t, rec))
}

func TestProfileDeletedUser(t *testing.T) {
	api := newTestAPI(t)
	id, bearer := api.signupAndLogin(t, "alice", "a@x.com", "secret1")
	delete(api.users.users, id)

	rec := api.do(t, http.MethodGet, "/api/auth/profile", bearer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignupValidation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		body map[string]string
		want string
	}{
		{"missing username", map[string]string{"email": "a@x.com", "password": "secret1"}, "username is required"},
		{"bad email", map[string]string{"username": "alice", "email": "nope", "password": "secret1"}, "email must be a valid email address"},
		{"short password", map[string]string{"username": "alice", "email": "a@x.com", "password": "123"}, "password must be at least 6 characters"},
		{"blank username", map[string]string{"username": "   ", "email": "a@x.com", "password": "secret1"}, "username is required"},
		{"password over 72 bytes", map[string]string{"username": "bob", "email": "b@x.com", "password": strings.Repeat("a", 80)}, "password must be at most 72 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/auth/signup", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, errorOf(t, rec))
		})
	}
}

func TestSignupDuplicate(t *testing.T) {
	api := newTestAPI(t)
	api.signupAndLogin(t, "alice", "a@x.com", "secret1")

	rec := api.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": "alice", "email": "other@x.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignupMalformedBody(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/auth/signup", "", "just a string")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request", errorOf(t, rec))
}

func TestLoginErrors(t *testing.T) {
	api := newTestAPI(t)
	api.signupAndLogin(t, "alice", "a@x.com", "secret1")

	rec := api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "b@x.com", "password": "secret1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", errorOf(t, rec))

	for i := 0; i < 3; i++ {
		rec = api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@x.com", "password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid credentials", errorOf(t, rec))
	}
}

func TestUpdateProfile(t *testing.T) {
	api := newTestAPI(t)
	id, bearer := api.signupAndLogin(t, "alice", "a@x.com", "secret1")
	hashBefore := api.users.users[id].PasswordHash

	rec := api.do(t, http.MethodPut, "/api/auth/update-profile", bearer, map[string]string{
		"fullName": "Alice Doe",
		"phone":    "555-0100",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res UpdateProfileResponse
	decodeBody(t, rec, &res)
	assert.Equal(t, "Alice Doe", res.DeliveryInfo.FullName)
	assert.Equal(t, types.DeliveryMethodDelivery, res.DeliveryInfo.DefaultDeliveryMethod)
	assert.NotNil(t, res.DeliveryInfo.LastUpdated)

	rec = api.do(t, http.MethodPut, "/api/auth/update-profile", bearer, map[string]string{
		"address":               "1 Main St",
		"defaultDeliveryMethod": "pickup",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &res)
	assert.Equal(t, "Alice Doe", res.DeliveryInfo.FullName)
	assert.Equal(t, "1 Main St", res.DeliveryInfo.Address)
	assert.Equal(t, types.DeliveryMethodPickup, res.DeliveryInfo.DefaultDeliveryMethod)
	assert.Equal(t, hashBefore, api.users.users[id].PasswordHash)

	rec = api.do(t, http.MethodPut, "/api/auth/update-profile", bearer, map[string]string{"defaultDeliveryMethod": "drone"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/auth/update-profile", "", map[string]string{"phone": "1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForgotAndResetPasswordScenario(t *testing.T) {
	api := newTestAPI(t)
	id, _ := api.signupAndLogin(t, "alice", "a@x.com", "secret1")

	rec := api.do(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "nobody@x.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	requested := api.clock.Now()
	rec = api.do(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	user := api.users.users[id]
	require.NotNil(t, user.ResetTokenExpiresAt)
	assert.WithinDuration(t, requested.Add(3600*time.Second), *user.ResetTokenExpiresAt, time.Second)

	match := resetTokenPattern.FindStringSubmatch(api.mail.last().HTML)
	require.Len(t, match, 2)

	api.clock.Advance(3601 * time.Second)
	rec = api.do(t, http.MethodPost, "/api/auth/reset-password/"+match[1], "", map[string]string{"password": "newpass1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Password reset token is invalid or has expired", errorOf(t, rec))
}

func TestResetPasswordSuccessAndReuse(t *testing.T) {
	api := newTestAPI(t)
	api.signupAndLogin(t, "alice", "a@x.com", "secret1")

	rec := api.do(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	token := resetTokenPattern.FindStringSubmatch(api.mail.last().HTML)[1]

	rec = api.do(t, http.MethodPost, "/api/auth/reset-password/"+token, "", map[string]string{"password": "newpass1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@x.com", "password": "newpass1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/auth/reset-password/"+token, "", map[string]string{"password": "again123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/auth/reset-password/"+token[:63]+"0", "", map[string]string{"password": "again123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Password reset token is invalid or has expired", errorOf(t, rec))
}

func TestResetPasswordTooLong(t *testing.T) {
	api := newTestAPI(t)
	api.signupAndLogin(t, "alice", "a@x.com", "secret1")

	rec := api.do(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	token := resetTokenPattern.FindStringSubmatch(api.mail.last().HTML)[1]

	rec = api.do(t, http.MethodPost, "/api/auth/reset-password/"+token, "", map[string]string{"password": strings.Repeat("a", 80)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password must be at most 72 bytes", errorOf(t, rec))

	rec = api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@x.com", "password": "secret1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForgotPasswordMailFailure(t *testing.T) {
	api := newTestAPI(t)
	api.signupAndLogin(t, "alice", "a@x.com", "secret1")
	api.mail.err = errors.New("smtp: 535 authentication failed")

	rec := api.do(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, errorOf(t, rec), "535")
}

func TestUserIDFromContext(t *testing.T) {
	_, err := userIDFromContext(context.Background())
	assert.Error(t, err)

	id, err := userIDFromContext(withUserID(context.Background(), 5))
	require.NoError(t, err)
	assert.Equal(t, 5, id)

	_, err = userIDFromContext(withUserID(context.Background(), 0))
	assert.Error(t, err)
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/merchforge/apiserver/internal/services"
	"github.com/merchforge/apiserver/internal/store"
	"github.com/merchforge/apiserver/types"
	"go.uber.org/zap"
)

// AuthHandler provides account and password-reset endpoints.
type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
	logger      *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authService *services.AuthService, userService *services.UserService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
		logger:      logger,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, authn *Authenticator) {
	r.Post("/signup", handler.Signup)
	r.Post("/login", handler.Login)
	r.Post("/forgot-password", handler.ForgotPassword)
	r.Post("/reset-password/{token}", handler.ResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(authn.RequireAuth)
		r.Get("/profile", handler.Profile)
		r.Put("/update-profile", handler.UpdateProfile)
	})
}

type SignupRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=6"`
}

type UpdateProfileRequest struct {
	FullName              *string `json:"fullName" validate:"omitempty,max=200"`
	Phone                 *string `json:"phone" validate:"omitempty,max=50"`
	Address               *string `json:"address" validate:"omitempty,max=500"`
	DefaultDeliveryMethod *string `json:"defaultDeliveryMethod"`
}

type UpdateProfileResponse struct {
	Message      string             `json:"message"`
	DeliveryInfo types.DeliveryInfo `json:"deliveryInfo"`
}

// Signup creates a new user account.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, err := h.authService.Signup(r.Context(), services.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		var verr *services.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Message)
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusBadRequest, "Username or email already exists")
		default:
			writeServerError(w, r, h.logger, "failed to create user", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "User registered successfully"})
}

// Login verifies credentials and returns a bearer token with the profile.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.authService.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	default:
		writeServerError(w, r, h.logger, "failed to authenticate", err)
	}
}

// Profile returns the current authenticated user.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	profile, err := h.userService.Profile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeServerError(w, r, h.logger, "failed to load user", err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// UpdateProfile merges the submitted delivery information into the saved one.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.userService.UpdateDeliveryInfo(r.Context(), userID, types.DeliveryInfoUpdate{
		FullName:              req.FullName,
		Phone:                 req.Phone,
		Address:               req.Address,
		DefaultDeliveryMethod: req.DefaultDeliveryMethod,
	})
	if err != nil {
		var verr *services.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Message)
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			writeServerError(w, r, h.logger, "failed to update profile", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, UpdateProfileResponse{
		Message:      "Profile updated successfully",
		DeliveryInfo: info,
	})
}

// ForgotPassword stores a reset token and mails the reset link.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.authService.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeServerError(w, r, h.logger, "Error sending reset email", err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password reset email sent"})
}

// ResetPassword sets a new password for the holder of a valid reset token.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.authService.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password)
	if err != nil {
		var verr *services.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Message)
		case errors.Is(err, services.ErrInvalidOrExpiredToken):
			writeError(w, http.StatusBadRequest, "Password reset token is invalid or has expired")
		default:
			writeServerError(w, r, h.logger, "failed to reset password", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password has been reset"})
}

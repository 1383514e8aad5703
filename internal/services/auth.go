package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/merchforge/apiserver/internal/auth"
	"github.com/merchforge/apiserver/internal/mailer"
	"github.com/merchforge/apiserver/internal/metrics"
	"github.com/merchforge/apiserver/internal/store"
	"github.com/merchforge/apiserver/types"
	"go.uber.org/zap"
)

// AuthOptions configures an AuthService.
type AuthOptions struct {
	// PublicURL is the frontend base used in password-reset links.
	PublicURL  string
	ResetTTL   time.Duration
	BcryptCost int
	// Now defaults to time.Now.
	Now func() time.Time
}

// AuthService implements signup, login and the password-reset flow.
type AuthService struct {
	repo    UserRepository
	tokens  *auth.TokenManager
	mailer  mailer.Mailer
	metrics *metrics.Metrics
	logger  *zap.Logger
	opts    AuthOptions
}

func NewAuthService(repo UserRepository, tokens *auth.TokenManager, m mailer.Mailer, mt *metrics.Metrics, logger *zap.Logger, opts AuthOptions) *AuthService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	return &AuthService{
		repo:    repo,
		tokens:  tokens,
		mailer:  m,
		metrics: mt,
		logger:  logger,
		opts:    opts,
	}
}

// SignupInput is the data needed to create an account.
type SignupInput struct {
	Username string
	Email    string
	Password string
}

// Signup creates a new account. Duplicate usernames or emails yield store.ErrConflict.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (types.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return types.User{}, invalidf("username is required")
	}
	hashed, err := s.hashPassword(in.Password)
	if err != nil {
		return types.User{}, err
	}
	user, err := s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        normalizeEmail(in.Email),
		PasswordHash: hashed,
	})
	if err != nil {
		return types.User{}, err
	}
	s.logger.Info("user signed up", zap.Int("user_id", user.ID))
	return user, nil
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token string        `json:"token"`
	User  types.Profile `json:"user"`
}

// Login checks the password of the account registered under email and
// issues a bearer token. Unknown emails yield store.ErrNotFound.
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return LoginResult{}, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("compare password: %w", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, User: user.Profile()}, nil
}

// RequestPasswordReset stores a fresh reset token for the account registered
// under email, replacing any earlier one, and mails the reset link. The mail
// is sent before returning and a delivery failure is reported to the caller.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}

	token, digest, err := auth.NewResetToken()
	if err != nil {
		return err
	}
	expiresAt := s.opts.Now().UTC().Add(s.opts.ResetTTL)
	if err := s.repo.SetResetToken(ctx, user.ID, digest, expiresAt); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := fmt.Sprintf("%s/reset-password/%s", strings.TrimRight(s.opts.PublicURL, "/"), token)
	msg, err := mailer.PasswordReset(user.Email, link, humanDuration(s.opts.ResetTTL))
	if err != nil {
		return err
	}
	err = s.mailer.Send(ctx, msg)
	s.metrics.ObserveEmail("password_reset", err)
	if err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}

	s.logger.Info("password reset requested", zap.Int("user_id", user.ID), zap.Time("expires_at", expiresAt))
	return nil
}

// ResetPassword sets a new password for the holder of an unexpired reset
// token and consumes the token. A wrong, used or expired token all yield
// ErrInvalidOrExpiredToken.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidOrExpiredToken
	}
	hashed, err := s.hashPassword(password)
	if err != nil {
		return err
	}

	err = s.repo.ResetPassword(ctx, auth.HashResetToken(token), hashed, s.opts.Now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidOrExpiredToken
	}
	return err
}

func (s *AuthService) hashPassword(password string) (string, error) {
	hashed, err := auth.HashPassword(password, s.opts.BcryptCost)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return "", invalidf("password must be at most %d bytes", auth.MaxPasswordBytes)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hashed, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func humanDuration(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}

package services

import (
	"context"
	"strings"
	"time"

	"github.com/merchforge/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateDeliveryInfo(ctx context.Context, id int, info types.DeliveryInfo) error
	SetResetToken(ctx context.Context, id int, digest string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, digest, passwordHash string, now time.Time) error
	List(ctx context.Context) ([]types.User, error)
}

// UserService encapsulates profile use-cases.
type UserService struct {
	repo UserRepository
	now  func() time.Time
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo, now: time.Now}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Profile returns the public view of the user.
func (s *UserService) Profile(ctx context.Context, id int) (types.Profile, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Profile{}, err
	}
	return user.Profile(), nil
}

// UpdateDeliveryInfo merges update into the saved delivery preferences and
// returns the stored result. The password is never touched.
func (s *UserService) UpdateDeliveryInfo(ctx context.Context, id int, update types.DeliveryInfoUpdate) (types.DeliveryInfo, error) {
	if update.DefaultDeliveryMethod != nil {
		method := strings.TrimSpace(*update.DefaultDeliveryMethod)
		if method != "" && !types.DeliveryMethod(method).Valid() {
			return types.DeliveryInfo{}, invalidf("defaultDeliveryMethod must be delivery or pickup")
		}
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.DeliveryInfo{}, err
	}

	merged := user.DeliveryInfo.Merge(update, s.now().UTC())
	if err := s.repo.UpdateDeliveryInfo(ctx, id, merged); err != nil {
		return types.DeliveryInfo{}, err
	}
	return merged, nil
}

// List returns every account, admin use only.
func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

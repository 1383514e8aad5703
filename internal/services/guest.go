package services

import (
	"context"
	"strings"
	"time"

	"github.com/merchforge/apiserver/types"
)

// GuestInfoRepository stores delivery details of customers without an account.
type GuestInfoRepository interface {
	GetByEmail(ctx context.Context, email string) (types.GuestInfo, error)
	Upsert(ctx context.Context, info types.GuestInfo) (types.GuestInfo, error)
}

type GuestService struct {
	repo GuestInfoRepository
	now  func() time.Time
}

func NewGuestService(repo GuestInfoRepository) *GuestService {
	return &GuestService{repo: repo, now: time.Now}
}

func (s *GuestService) Get(ctx context.Context, email string) (types.GuestInfo, error) {
	return s.repo.GetByEmail(ctx, normalizeEmail(email))
}

// Save replaces the details stored for info.Email. An empty delivery method
// defaults to delivery.
func (s *GuestService) Save(ctx context.Context, info types.GuestInfo) (types.GuestInfo, error) {
	info.Email = normalizeEmail(info.Email)
	if info.Email == "" {
		return types.GuestInfo{}, invalidf("email is required")
	}
	info.FullName = strings.TrimSpace(info.FullName)
	info.Phone = strings.TrimSpace(info.Phone)
	info.Address = strings.TrimSpace(info.Address)

	switch {
	case info.DefaultDeliveryMethod == "":
		info.DefaultDeliveryMethod = types.DeliveryMethodDelivery
	case !info.DefaultDeliveryMethod.Valid():
		return types.GuestInfo{}, invalidf("defaultDeliveryMethod must be delivery or pickup")
	}
	info.LastUpdated = s.now().UTC()
	return s.repo.Upsert(ctx, info)
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/merchforge/apiserver/types"
)

// GuestInfoRepository handles persistence for guest delivery details.
type GuestInfoRepository struct {
	db *sql.DB
}

func NewGuestInfoRepository(db *sql.DB) *GuestInfoRepository {
	return &GuestInfoRepository{db: db}
}

func (r *GuestInfoRepository) GetByEmail(ctx context.Context, email string) (types.GuestInfo, error) {
	const query = `
		SELECT email, full_name, phone, address, default_delivery_method, last_updated
		FROM guest_info
		WHERE email = $1`
	var (
		info   types.GuestInfo
		method string
	)
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&info.Email,
		&info.FullName,
		&info.Phone,
		&info.Address,
		&method,
		&info.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.GuestInfo{}, ErrNotFound
		}
		return types.GuestInfo{}, err
	}
	info.DefaultDeliveryMethod = types.DeliveryMethod(method)
	return info, nil
}

// Upsert creates or replaces the guest info stored for info.Email.
func (r *GuestInfoRepository) Upsert(ctx context.Context, info types.GuestInfo) (types.GuestInfo, error) {
	if info.LastUpdated.IsZero() {
		info.LastUpdated = time.Now().UTC()
	}
	const query = `
		INSERT INTO guest_info (email, full_name, phone, address, default_delivery_method, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE
		SET full_name = EXCLUDED.full_name,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			default_delivery_method = EXCLUDED.default_delivery_method,
			last_updated = EXCLUDED.last_updated`
	_, err := r.db.ExecContext(
		ctx,
		query,
		info.Email,
		info.FullName,
		info.Phone,
		info.Address,
		string(info.DefaultDeliveryMethod),
		info.LastUpdated,
	)
	if err != nil {
		return types.GuestInfo{}, err
	}
	return info, nil
}

package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/merchforge/apiserver/internal/mailer"
	"github.com/merchforge/apiserver/internal/metrics"
	"github.com/merchforge/apiserver/internal/storage"
	"github.com/merchforge/apiserver/internal/store"
	"github.com/merchforge/apiserver/types"
	"go.uber.org/zap"
)

const (
	maxOrderNumberAttempts = 3
	confirmationTimeout    = 15 * time.Second
	defaultPageLimit       = 10
	maxPageLimit           = 100
)

// OrderRepository defines persistence operations for orders.
type OrderRepository interface {
	Create(ctx context.Context, order types.Order) (types.Order, error)
	GetByNumberForUser(ctx context.Context, orderNumber string, userID int) (types.Order, error)
	ListByUser(ctx context.Context, userID int) ([]types.Order, error)
	List(ctx context.Context, filter types.OrderFilter, limit, offset int) ([]types.Order, int, error)
	UpdateStatus(ctx context.Context, id int64, status types.OrderStatus) (types.Order, types.OrderStatus, error)
}

// DesignStore keeps uploaded design images.
type DesignStore interface {
	Save(ctx context.Context, orderNumber, design string) (string, error)
	Remove(ctx context.Context, ref string) error
	Open(ctx context.Context, ref string) (io.ReadCloser, string, error)
}

// EventPublisher hands order events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, event types.OrderEvent) error
}

// StatsInvalidator drops cached dashboard statistics.
type StatsInvalidator interface {
	Invalidate(ctx context.Context) error
}

// OrderDeps are the collaborators of an OrderService. Designs, Events and
// Stats are optional.
type OrderDeps struct {
	Repo    OrderRepository
	Mailer  mailer.Mailer
	Designs DesignStore
	Events  EventPublisher
	Stats   StatsInvalidator
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// OrderService implements checkout and order administration.
type OrderService struct {
	OrderDeps
	now    func() time.Time
	random io.Reader
}

func NewOrderService(deps OrderDeps) *OrderService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &OrderService{OrderDeps: deps, now: time.Now, random: rand.Reader}
}

// PlaceOrderInput is a checkout submission.
type PlaceOrderInput struct {
	FullName       string
	Email          string
	Phone          string
	DeliveryMethod types.DeliveryMethod
	Address        string
	SizeData       types.SizeQuantities
	TotalPrice     float64
	DesignImage    string
}

func (in PlaceOrderInput) validate() (PlaceOrderInput, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.DesignImage = strings.TrimSpace(in.DesignImage)

	switch {
	case in.FullName == "" || in.Email == "" || in.Phone == "":
		return in, invalidf("fullName, email and phone are required")
	case !in.DeliveryMethod.Valid():
		return in, invalidf("deliveryMethod must be delivery or pickup")
	case in.DeliveryMethod == types.DeliveryMethodDelivery && in.Address == "":
		return in, invalidf("address is required for delivery")
	case in.DesignImage == "":
		return in, invalidf("designImage is required")
	case in.TotalPrice < 0 || math.IsNaN(in.TotalPrice) || math.IsInf(in.TotalPrice, 0):
		return in, invalidf("totalPrice must be a non-negative number")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return in, invalidf("email is invalid")
	}
	if storage.IsDataURL(in.DesignImage) {
		if _, _, err := storage.DecodeDataURL(in.DesignImage); err != nil {
			return in, invalidf("%v", err)
		}
	}
	if in.DeliveryMethod == types.DeliveryMethodPickup {
		in.Address = ""
	}

	sizes := types.SizeQuantities{}
	for size, n := range in.SizeData {
		size = strings.ToLower(strings.TrimSpace(size))
		if !knownSize(size) {
			return in, invalidf("unknown size %q", size)
		}
		if n < 0 {
			return in, invalidf("quantity for size %q must not be negative", size)
		}
		sizes[size] += n
	}
	if sizes.Total() == 0 {
		return in, invalidf("order must contain at least one item")
	}
	in.SizeData = sizes
	return in, nil
}

func knownSize(size string) bool {
	for _, s := range types.Sizes {
		if s == size {
			return true
		}
	}
	return false
}

// Place stores a new pending order for userID. The confirmation email, the
// order.created event and cache invalidation are attempted afterwards and
// only logged on failure.
func (s *OrderService) Place(ctx context.Context, userID int, in PlaceOrderInput) (types.Order, error) {
	in, err := in.validate()
	if err != nil {
		return types.Order{}, err
	}

	var order types.Order
	for attempt := 1; ; attempt++ {
		order, err = s.create(ctx, userID, in)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) || attempt == maxOrderNumberAttempts {
			return types.Order{}, err
		}
		s.Logger.Warn("order number collision, retrying", zap.Int("attempt", attempt))
	}

	s.Metrics.ObserveOrderCreated()
	s.Logger.Info("order placed",
		zap.String("order_number", order.OrderNumber),
		zap.Int("user_id", userID))

	s.sendConfirmation(ctx, order)
	s.publish(ctx, types.OrderEvent{
		Type:        types.OrderEventCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Email:       order.Email,
		FullName:    order.FullName,
		Status:      order.Status,
		OccurredAt:  order.CreatedAt,
	})
	s.invalidateStats(ctx)
	return order, nil
}

func (s *OrderService) create(ctx context.Context, userID int, in PlaceOrderInput) (types.Order, error) {
	number, err := NewOrderNumber(s.now(), s.random)
	if err != nil {
		return types.Order{}, err
	}

	design := in.DesignImage
	if s.Designs != nil {
		design, err = s.Designs.Save(ctx, number, in.DesignImage)
		if err != nil {
			if errors.Is(err, storage.ErrInvalidDesign) {
				return types.Order{}, invalidf("%v", err)
			}
			return types.Order{}, err
		}
	}

	uid := userID
	order, err := s.Repo.Create(ctx, types.Order{
		OrderNumber:    number,
		UserID:         &uid,
		FullName:       in.FullName,
		Email:          in.Email,
		Phone:          in.Phone,
		DeliveryMethod: in.DeliveryMethod,
		Address:        in.Address,
		SizeData:       in.SizeData,
		TotalPrice:     math.Round(in.TotalPrice*100) / 100,
		DesignImage:    design,
		Status:         types.OrderStatusPending,
	})
	if err != nil {
		if s.Designs != nil && design != in.DesignImage {
			if rmErr := s.Designs.Remove(context.WithoutCancel(ctx), design); rmErr != nil {
				s.Logger.Warn("remove orphaned design failed", zap.Error(rmErr), zap.String("design", design))
			}
		}
		return types.Order{}, err
	}
	return order, nil
}

func (s *OrderService) sendConfirmation(ctx context.Context, order types.Order) {
	msg, err := mailer.OrderConfirmation(order)
	if err == nil {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), confirmationTimeout)
		err = s.Mailer.Send(sendCtx, msg)
		cancel()
	}
	s.Metrics.ObserveEmail("order_confirmation", err)
	if err != nil {
		s.Logger.Error("order confirmation email failed",
			zap.Error(err),
			zap.String("order_number", order.OrderNumber))
	}
}

func (s *OrderService) publish(ctx context.Context, event types.OrderEvent) {
	if s.Events == nil {
		return
	}
	err := s.Events.Publish(ctx, event)
	s.Metrics.ObserveEvent(event.Type, err)
	if err != nil {
		s.Logger.Warn("publish order event failed",
			zap.Error(err),
			zap.String("type", event.Type),
			zap.String("order_number", event.OrderNumber))
	}
}

func (s *OrderService) invalidateStats(ctx context.Context) {
	if s.Stats == nil {
		return
	}
	if err := s.Stats.Invalidate(ctx); err != nil {
		s.Logger.Warn("invalidate statistics cache failed", zap.Error(err))
	}
}

// ListMine returns the orders of userID, newest first.
func (s *OrderService) ListMine(ctx context.Context, userID int) ([]types.Order, error) {
	return s.Repo.ListByUser(ctx, userID)
}

// GetMine returns one of userID's orders. Orders of other users are reported
// as store.ErrNotFound.
func (s *OrderService) GetMine(ctx context.Context, userID int, orderNumber string) (types.Order, error) {
	return s.Repo.GetByNumberForUser(ctx, strings.TrimSpace(orderNumber), userID)
}

// OpenDesign streams the design image of one of userID's orders.
func (s *OrderService) OpenDesign(ctx context.Context, userID int, orderNumber string) (io.ReadCloser, string, error) {
	order, err := s.GetMine(ctx, userID, orderNumber)
	if err != nil {
		return nil, "", err
	}
	if storage.IsDataURL(order.DesignImage) {
		contentType, data, err := storage.DecodeDataURL(order.DesignImage)
		if err != nil {
			return nil, "", fmt.Errorf("stored design of %s: %w", order.OrderNumber, err)
		}
		return io.NopCloser(bytes.NewReader(data)), contentType, nil
	}
	if s.Designs == nil {
		return nil, "", store.ErrNotFound
	}
	r, contentType, err := s.Designs.Open(ctx, order.DesignImage)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, "", store.ErrNotFound
	}
	return r, contentType, err
}

// OrderPage is one page of an admin order listing.
type OrderPage struct {
	Orders      []types.Order `json:"orders"`
	TotalPages  int           `json:"totalPages"`
	CurrentPage int           `json:"currentPage"`
	TotalOrders int           `json:"totalOrders"`
}

// List returns a page of all orders, newest first. page starts at 1; a
// non-positive limit selects the default.
func (s *OrderService) List(ctx context.Context, filter types.OrderFilter, page, limit int) (OrderPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return OrderPage{}, invalidf("unknown status %q", filter.Status)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	orders, total, err := s.Repo.List(ctx, filter, limit, (page-1)*limit)
	if err != nil {
		return OrderPage{}, err
	}
	return OrderPage{
		Orders:      orders,
		TotalPages:  (total + limit - 1) / limit,
		CurrentPage: page,
		TotalOrders: total,
	}, nil
}

// UpdateStatus moves an order to status and announces the change.
func (s *OrderService) UpdateStatus(ctx context.Context, id int64, status types.OrderStatus) (types.Order, error) {
	status = types.OrderStatus(strings.ToLower(strings.TrimSpace(string(status))))
	if !status.Valid() {
		return types.Order{}, invalidf("status must be one of pending, processing, shipped, delivered, cancelled")
	}

	order, previous, err := s.Repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return types.Order{}, err
	}

	s.Logger.Info("order status updated",
		zap.String("order_number", order.OrderNumber),
		zap.String("from", string(previous)),
		zap.String("to", string(status)))

	if previous != status {
		s.Metrics.ObserveStatusChange(string(status))
		s.publish(ctx, types.OrderEvent{
			Type:           types.OrderEventStatusChanged,
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			Email:          order.Email,
			FullName:       order.FullName,
			Status:         status,
			PreviousStatus: previous,
			OccurredAt:     order.UpdatedAt,
		})
		s.invalidateStats(ctx)
	}
	return order, nil
}

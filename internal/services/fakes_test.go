package services

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/merchforge/apiserver/internal/mailer"
	"github.com/merchforge/apiserver/internal/store"
	"github.com/merchforge/apiserver/types"
)

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[int]types.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int]types.User{}, nextID: 1}
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email || u.Username == user.Username {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = r.nextID
	r.nextID++
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) UpdateDeliveryInfo(_ context.Context, id int, info types.DeliveryInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.DeliveryInfo = info
	r.users[id] = u
	return nil
}

func (r *fakeUserRepo) SetResetToken(_ context.Context, id int, digest string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.ResetTokenHash = &digest
	u.ResetTokenExpiresAt = &expiresAt
	r.users[id] = u
	return nil
}

func (r *fakeUserRepo) ResetPassword(_ context.Context, digest, passwordHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, u := range r.users {
		if u.ResetTokenHash == nil || *u.ResetTokenHash != digest {
			continue
		}
		if !u.ResetTokenExpiresAt.After(now) {
			continue
		}
		u.PasswordHash = passwordHash
		u.ResetTokenHash = nil
		u.ResetTokenExpiresAt = nil
		r.users[id] = u
		return nil
	}
	return store.ErrNotFound
}

func (r *fakeUserRepo) List(context.Context) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]types.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	return users, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) last() mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return mailer.Message{}
	}
	return m.sent[len(m.sent)-1]
}

type fakeOrderRepo struct {
	orders     []types.Order
	createErrs []error
	creates    int
	listLimit  int
	listOffset int
	total      int
	updateErr  error
}

func (r *fakeOrderRepo) Create(_ context.Context, order types.Order) (types.Order, error) {
	r.creates++
	if len(r.createErrs) > 0 {
		err := r.createErrs[0]
		r.createErrs = r.createErrs[1:]
		if err != nil {
			return types.Order{}, err
		}
	}
	order.ID = int64(len(r.orders) + 1)
	order.CreatedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	order.UpdatedAt = order.CreatedAt
	r.orders = append(r.orders, order)
	return order, nil
}

func (r *fakeOrderRepo) GetByNumberForUser(_ context.Context, orderNumber string, userID int) (types.Order, error) {
	for _, o := range r.orders {
		if o.OrderNumber == orderNumber && o.UserID != nil && *o.UserID == userID {
			return o, nil
		}
	}
	return types.Order{}, store.ErrNotFound
}

func (r *fakeOrderRepo) ListByUser(_ context.Context, userID int) ([]types.Order, error) {
	var out []types.Order
	for i := len(r.orders) - 1; i >= 0; i-- {
		if o := r.orders[i]; o.UserID != nil && *o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) List(_ context.Context, _ types.OrderFilter, limit, offset int) ([]types.Order, int, error) {
	r.listLimit, r.listOffset = limit, offset
	return r.orders, r.total, nil
}

func (r *fakeOrderRepo) UpdateStatus(_ context.Context, id int64, status types.OrderStatus) (types.Order, types.OrderStatus, error) {
	if r.updateErr != nil {
		return types.Order{}, "", r.updateErr
	}
	for i, o := range r.orders {
		if o.ID == id {
			previous := o.Status
			o.Status = status
			r.orders[i] = o
			return o, previous, nil
		}
	}
	return types.Order{}, "", store.ErrNotFound
}

type fakeEvents struct {
	events []types.OrderEvent
	err    error
}

func (e *fakeEvents) Publish(_ context.Context, event types.OrderEvent) error {
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, event)
	return nil
}

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) Invalidate(context.Context) error {
	f.calls++
	return nil
}

type fakeDesigns struct {
	saved   []string
	removed []string
	objects map[string]string
}

func (d *fakeDesigns) Save(_ context.Context, orderNumber, design string) (string, error) {
	if !strings.HasPrefix(design, "data:") {
		return design, nil
	}
	ref := "memory://designs/" + orderNumber + ".png"
	d.saved = append(d.saved, ref)
	if d.objects == nil {
		d.objects = map[string]string{}
	}
	d.objects[ref] = design
	return ref, nil
}

func (d *fakeDesigns) Remove(_ context.Context, ref string) error {
	d.removed = append(d.removed, ref)
	delete(d.objects, ref)
	return nil
}

func (d *fakeDesigns) Open(_ context.Context, ref string) (io.ReadCloser, string, error) {
	body, ok := d.objects[ref]
	if !ok {
		return nil, "", store.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), "image/png", nil
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

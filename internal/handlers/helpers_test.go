package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/merchforge/apiserver/internal/auth"
	"github.com/merchforge/apiserver/internal/mailer"
	"github.com/merchforge/apiserver/internal/services"
	"github.com/merchforge/apiserver/internal/store"
	"github.com/merchforge/apiserver/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "handler-test-secret"

type memUserRepo struct {
	mu     sync.Mutex
	users  map[int]types.User
	nextID int
	err    error
}

func (r *memUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.User{}, r.err
	}
	u, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email || u.Username == user.Username {
			return types.User{}, store.ErrConflict
		}
	}
	r.nextID++
	user.ID = r.nextID
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) UpdateDeliveryInfo(_ context.Context, id int, info types.DeliveryInfo) error {
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

func (r *memUserRepo) SetResetToken(_ context.Context, id int, digest string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.users[id]
	u.ResetTokenHash, u.ResetTokenExpiresAt = &digest, &expiresAt
	r.users[id] = u
	return nil
}

func (r *memUserRepo) ResetPassword(_ context.Context, digest, passwordHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, u := range r.users {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == digest && u.ResetTokenExpiresAt.After(now) {
			u.PasswordHash = passwordHash
			u.ResetTokenHash, u.ResetTokenExpiresAt = nil, nil
			r.users[id] = u
			return nil
		}
	}
	return store.ErrNotFound
}

func (r *memUserRepo) List(context.Context) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]types.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *memUserRepo) setAdmin(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.users[id]
	u.IsAdmin = true
	r.users[id] = u
}

type memOrderRepo struct {
	mu         sync.Mutex
	orders     []types.Order
	lastFilter types.OrderFilter
}

func (r *memOrderRepo) Create(_ context.Context, order types.Order) (types.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order.ID = int64(len(r.orders) + 1)
	order.CreatedAt = time.Now().UTC()
	order.UpdatedAt = order.CreatedAt
	r.orders = append(r.orders, order)
	return order, nil
}

func (r *memOrderRepo) GetByNumberForUser(_ context.Context, orderNumber string, userID int) (types.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.OrderNumber == orderNumber && *o.UserID == userID {
			return o, nil
		}
	}
	return types.Order{}, store.ErrNotFound
}

func (r *memOrderRepo) ListByUser(_ context.Context, userID int) ([]types.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Order
	for i := len(r.orders) - 1; i >= 0; i-- {
		if *r.orders[i].UserID == userID {
			out = append(out, r.orders[i])
		}
	}
	return out, nil
}

func (r *memOrderRepo) List(_ context.Context, filter types.OrderFilter, limit, offset int) ([]types.Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter = filter
	var matched []types.Order
	for _, o := range r.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(o.Email), strings.ToLower(filter.Search)) {
			continue
		}
		matched = append(matched, o)
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *memOrderRepo) UpdateStatus(_ context.Context, id int64, status types.OrderStatus) (types.Order, types.OrderStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, o := range r.orders {
		if o.ID == id {
			previous := o.Status
			r.orders[i].Status = status
			return r.orders[i], previous, nil
		}
	}
	return types.Order{}, "", store.ErrNotFound
}

type memGuestRepo struct {
	mu    sync.Mutex
	infos map[string]types.GuestInfo
}

func (r *memGuestRepo) GetByEmail(_ context.Context, email string) (types.GuestInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.infos[email]
	if !ok {
		return types.GuestInfo{}, store.ErrNotFound
	}
	return info, nil
}

func (r *memGuestRepo) Upsert(_ context.Context, info types.GuestInfo) (types.GuestInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos[info.Email] = info
	return info, nil
}

type staticStatsRepo struct {
	totals types.Statistics
	daily  []types.DailyOrder
}

func (r staticStatsRepo) Totals(context.Context) (types.Statistics, error) { return r.totals, nil }

func (r staticStatsRepo) Daily(context.Context, time.Time) ([]types.DailyOrder, error) {
	return r.daily, nil
}

type captureMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) last() mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return mailer.Message{}
	}
	return m.sent[len(m.sent)-1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testAPI struct {
	router http.Handler
	users  *memUserRepo
	orders *memOrderRepo
	mail   *captureMailer
	clock  *testClock
	tokens *auth.TokenManager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zap.NewNop()
	api := &testAPI{
		users:  &memUserRepo{users: map[int]types.User{}},
		orders: &memOrderRepo{},
		mail:   &captureMailer{},
		clock:  &testClock{now: time.Now().UTC()},
	}
	api.tokens = auth.NewTokenManager(testSecret, time.Hour, api.clock.Now)

	userService := services.NewUserService(api.users)
	authService := services.NewAuthService(api.users, api.tokens, api.mail, nil, logger, services.AuthOptions{
		PublicURL:  "http://localhost:5173",
		ResetTTL:   time.Hour,
		BcryptCost: auth.MinBcryptCost,
		Now:        api.clock.Now,
	})
	orderService := services.NewOrderService(services.OrderDeps{
		Repo:   api.orders,
		Mailer: api.mail,
		Logger: logger,
	})
	statsService := services.NewStatisticsService(staticStatsRepo{
		totals: types.Statistics{TotalOrders: 3, PendingOrders: 1, ProcessingOrders: 1, DeliveredOrders: 1, TotalRevenue: 75},
		daily:  []types.DailyOrder{{Date: "2024-05-01", Count: 3, Revenue: 75}},
	}, nil, nil, logger)
	guestService := services.NewGuestService(&memGuestRepo{infos: map[string]types.GuestInfo{}})

	authn := NewAuthenticator(api.tokens, userService, logger)
	r := chi.NewRouter()
	r.Get("/healthz", Healthz)
	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			AuthRouter(r, NewAuthHandler(authService, userService, logger), authn)
		})
		r.Route("/orders", func(r chi.Router) {
			OrderRouter(r, NewOrderHandler(orderService, logger), authn)
		})
		r.Route("/guest-info", func(r chi.Router) {
			GuestRouter(r, NewGuestHandler(guestService, logger))
		})
		r.Route("/admin", func(r chi.Router) {
			AdminRouter(r, NewAdminHandler(orderService, userService, statsService, logger), authn)
		})
	})
	api.router = r
	return api
}

func (api *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

// signupAndLogin registers a user and returns its id and a bearer header value.
func (api *testAPI) signupAndLogin(t *testing.T, username, email, password string) (int, string) {
	t.Helper()
	rec := api.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": username, "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Token string        `json:"token"`
		User  types.Profile `json:"user"`
	}
	decodeBody(t, rec, &res)
	return res.User.ID, "Bearer " + res.Token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var res ErrorResponse
	decodeBody(t, rec, &res)
	return res.Error
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/merchforge/apiserver/internal/services"
	"github.com/merchforge/apiserver/internal/store"
	"github.com/merchforge/apiserver/types"
	"go.uber.org/zap"
)

// AdminHandler serves the admin dashboard.
type AdminHandler struct {
	orderService *services.OrderService
	userService  *services.UserService
	statsService *services.StatisticsService
	logger       *zap.Logger
}

func NewAdminHandler(
	orderService *services.OrderService,
	userService *services.UserService,
	statsService *services.StatisticsService,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		orderService: orderService,
		userService:  userService,
		statsService: statsService,
		logger:       logger,
	}
}

// AdminRouter registers admin routes behind the admin gate.
func AdminRouter(r chi.Router, handler *AdminHandler, authn *Authenticator) {
	r.Use(authn.RequireAdmin)
	r.Get("/orders", handler.ListOrders)
	r.Put("/orders/{orderId}", handler.UpdateOrderStatus)
	r.Get("/statistics", handler.Statistics)
	r.Get("/users", handler.ListUsers)
}

type UpdateOrderStatusRequest struct {
	Status types.OrderStatus `json:"status" validate:"required"`
}

type UpdateOrderStatusResponse struct {
	Message string      `json:"message"`
	Order   types.Order `json:"order"`
}

// ListOrders returns a filtered page of every order.
func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query := r.URL.Query()
	filter := types.OrderFilter{
		Status: types.OrderStatus(strings.ToLower(strings.TrimSpace(query.Get("status")))),
		Search: strings.TrimSpace(query.Get("search")),
	}

	result, err := h.orderService.List(r.Context(), filter, page, limit)
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Message)
			return
		}
		writeServerError(w, r, h.logger, "failed to list orders", err)
		return
	}
	if result.Orders == nil {
		result.Orders = []types.Order{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "orderId")), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req UpdateOrderStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orderService.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		var verr *services.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Message)
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "Order not found")
		default:
			writeServerError(w, r, h.logger, "failed to update order status", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, UpdateOrderStatusResponse{
		Message: "Order status updated successfully",
		Order:   order,
	})
}

func (h *AdminHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsService.Get(r.Context())
	if err != nil {
		writeServerError(w, r, h.logger, "failed to compute statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListUsers returns every account without password material.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeServerError(w, r, h.logger, "failed to list users", err)
		return
	}
	if users == nil {
		users = []types.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/merchforge/apiserver/internal/services"
	"github.com/merchforge/apiserver/internal/store"
	"github.com/merchforge/apiserver/types"
	"go.uber.org/zap"
)

// OrderHandler serves the customer side of checkout.
type OrderHandler struct {
	orderService *services.OrderService
	logger       *zap.Logger
}

func NewOrderHandler(orderService *services.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orderService: orderService, logger: logger}
}

// OrderRouter registers order routes; every route requires authentication.
func OrderRouter(r chi.Router, handler *OrderHandler, authn *Authenticator) {
	r.Use(authn.RequireAuth)
	r.Post("/", handler.CreateOrder)
	r.Get("/", handler.ListOrders)
	r.Get("/{orderNumber}", handler.GetOrder)
	r.Get("/{orderNumber}/design", handler.GetDesign)
}

type CreateOrderRequest struct {
	FullName       string               `json:"fullName" validate:"required"`
	Email          string               `json:"email" validate:"required,email"`
	Phone          string               `json:"phone" validate:"required"`
	DeliveryMethod types.DeliveryMethod `json:"deliveryMethod" validate:"required,oneof=delivery pickup"`
	Address        string               `json:"address" validate:"required_if=DeliveryMethod delivery"`
	SizeData       map[string]int       `json:"sizeData" validate:"required"`
	TotalPrice     float64              `json:"totalPrice" validate:"gte=0"`
	DesignImage    string               `json:"designImage" validate:"required"`
}

type CreateOrderResponse struct {
	Message     string `json:"message"`
	OrderNumber string `json:"orderNumber"`
}

// CreateOrder places an order for the authenticated user.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	var req CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orderService.Place(r.Context(), userID, services.PlaceOrderInput{
		FullName:       req.FullName,
		Email:          req.Email,
		Phone:          req.Phone,
		DeliveryMethod: req.DeliveryMethod,
		Address:        req.Address,
		SizeData:       types.SizeQuantities(req.SizeData),
		TotalPrice:     req.TotalPrice,
		DesignImage:    req.DesignImage,
	})
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Message)
			return
		}
		writeServerError(w, r, h.logger, "Failed to place order", err)
		return
	}

	writeJSON(w, http.StatusOK, CreateOrderResponse{
		Message:     "Order placed successfully",
		OrderNumber: order.OrderNumber,
	})
}

// ListOrders returns the caller's orders, newest first.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	orders, err := h.orderService.ListMine(r.Context(), userID)
	if err != nil {
		writeServerError(w, r, h.logger, "Failed to fetch orders", err)
		return
	}
	if orders == nil {
		orders = []types.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	order, err := h.orderService.GetMine(r.Context(), userID, chi.URLParam(r, "orderNumber"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Order not found")
			return
		}
		writeServerError(w, r, h.logger, "Failed to fetch order", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// GetDesign streams the design image of one of the caller's orders.
func (h *OrderHandler) GetDesign(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	body, contentType, err := h.orderService.OpenDesign(r.Context(), userID, chi.URLParam(r, "orderNumber"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Design not found")
			return
		}
		writeServerError(w, r, h.logger, "Failed to fetch design", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream design failed", zap.Error(err))
	}
}

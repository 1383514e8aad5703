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

type GuestHandler struct {
	guestService *services.GuestService
	logger       *zap.Logger
}

func NewGuestHandler(guestService *services.GuestService, logger *zap.Logger) *GuestHandler {
	return &GuestHandler{guestService: guestService, logger: logger}
}

// GuestRouter registers the public guest-info routes.
func GuestRouter(r chi.Router, handler *GuestHandler) {
	r.Get("/{email}", handler.GetGuestInfo)
	r.Post("/", handler.SaveGuestInfo)
}

type SaveGuestInfoRequest struct {
	Email                 string `json:"email" validate:"required,email"`
	FullName              string `json:"fullName" validate:"max=200"`
	Phone                 string `json:"phone" validate:"max=50"`
	Address               string `json:"address" validate:"max=500"`
	DefaultDeliveryMethod string `json:"defaultDeliveryMethod" validate:"omitempty,oneof=delivery pickup"`
}

type SaveGuestInfoResponse struct {
	Message   string          `json:"message"`
	GuestInfo types.GuestInfo `json:"guestInfo"`
}

func (h *GuestHandler) GetGuestInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.guestService.Get(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No saved information found")
			return
		}
		writeServerError(w, r, h.logger, "failed to fetch guest info", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// SaveGuestInfo creates or replaces the details saved under an email.
func (h *GuestHandler) SaveGuestInfo(w http.ResponseWriter, r *http.Request) {
	var req SaveGuestInfoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.guestService.Save(r.Context(), types.GuestInfo{
		Email:                 req.Email,
		FullName:              req.FullName,
		Phone:                 req.Phone,
		Address:               req.Address,
		DefaultDeliveryMethod: types.DeliveryMethod(req.DefaultDeliveryMethod),
	})
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Message)
			return
		}
		writeServerError(w, r, h.logger, "failed to save guest info", err)
		return
	}

	writeJSON(w, http.StatusOK, SaveGuestInfoResponse{
		Message:   "Information saved successfully",
		GuestInfo: info,
	})
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100

	// Checkout bodies carry base64 design images.
	maxBodyBytes = 16 << 20

	readinessTimeout = 2 * time.Second
)

type contextKey string

const contextSubjectKey contextKey = "sub"

var errInvalidRequest = errors.New("invalid request")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse acknowledges a successful command.
type MessageResponse struct {
	Message string `json:"message"`
}

func withUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, contextSubjectKey, userID)
}

func userIDFromContext(ctx context.Context) (int, error) {
	subject, ok := ctx.Value(contextSubjectKey).(int)
	if !ok {
		return 0, errors.New("missing subject")
	}
	if subject < 1 {
		return 0, errors.New("invalid subject")
	}
	return subject, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServerError logs err and answers 500 with message.
func writeServerError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
	)
	writeError(w, http.StatusInternalServerError, message)
}

// decodeJSON reads a JSON body into dst and runs its validate tags. The
// returned error is safe to show to the client.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return errInvalidRequest
	}
	if err := validate.Struct(dst); err != nil {
		return validationMessage(err)
	}
	return nil
}

func validationMessage(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errInvalidRequest
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Errorf("%s is required", fe.Field())
	case "email":
		return fmt.Errorf("%s must be a valid email address", fe.Field())
	case "min":
		return fmt.Errorf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Errorf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Errorf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%s is invalid", fe.Field())
	}
}

func parsePagination(r *http.Request) (page, limit int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, errors.New("invalid page")
		}
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit, nil
}

// Healthz reports process liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadinessCheck pings one backend the API depends on.
type ReadinessCheck func(ctx context.Context) error

type readinessResponse struct {
	Status  string   `json:"status"`
	Failing []string `json:"failing,omitempty"`
}

// Readyz answers 503 listing the failing backends until every check passes.
func Readyz(logger *zap.Logger, checks map[string]ReadinessCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var failing []string
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				logger.Warn("readiness check failed", zap.String("backend", name), zap.Error(err))
				failing = append(failing, name)
			}
		}
		if len(failing) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, readinessResponse{Status: "unavailable", Failing: failing})
			return
		}
		writeJSON(w, http.StatusOK, readinessResponse{Status: "ok"})
	}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Freeeeeet/slotswap/internal/apperror"
	"github.com/Freeeeeet/slotswap/internal/service"
	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config - зависимости и настройки HTTP API
type Config struct {
	Slots     *service.SlotService
	Exchange  *service.ExchangeService
	Retention *service.RetentionService
	BasePath  string
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Logger    *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"pending_exchange"`
	Message string         `json:"message" example:"slot has a pending exchange request; resolve it first"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError - конверт {"error": {...}} для всех ошибок API
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// Server - HTTP API поверх сервисов
type Server struct {
	router   chi.Router
	limiters *limiterStore
	logger   *zap.Logger
}

// New собирает HTTP обработчик API обмена слотами
func New(cfg Config) (*Server, error) {
	if cfg.Slots == nil || cfg.Exchange == nil || cfg.Retention == nil {
		return nil, errors.New("server: services are required")
	}
	basePath := strings.TrimRight(cfg.BasePath, "/")
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// ошибки схемы запроса - это 400
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			messages := make([]string, 0, len(errs))
			for _, e := range errs {
				messages = append(messages, e.Error())
			}
			details = map[string]any{"errors": messages}
		}
		return newAPIError(status, "", msg, details)
	}

	s := &Server{
		router: chi.NewRouter(),
		logger: logger,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(newAccessLogMiddleware(logger))
	s.router.Use(newAuthMiddleware(basePath, cfg.Auth))
	if cfg.RateLimit.RPS > 0 {
		s.limiters = newLimiterStore(cfg.RateLimit.RPS, max(cfg.RateLimit.Burst, 1))
		s.router.Use(newRateLimitMiddleware(s.limiters))
	}

	hcfg := huma.DefaultConfig("Slotswap API", "1.0.0")
	if hcfg.Components.SecuritySchemes == nil {
		hcfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	hcfg.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	api := humachi.New(s.router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := &handlers{
		slots:     cfg.Slots,
		exchange:  cfg.Exchange,
		retention: cfg.Retention,
		logger:    logger,
	}
	registerHealth(group)
	h.registerSlots(group)
	h.registerTrash(group)
	h.registerExchangeRequests(group)

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// StartJanitor чистит лимитеры простаивающих пользователей до отмены ctx
func (s *Server) StartJanitor(ctx context.Context) {
	if s.limiters != nil {
		s.limiters.startJanitor(ctx, 2*time.Minute)
	}
}

type handlers struct {
	slots     *service.SlotService
	exchange  *service.ExchangeService
	retention *service.RetentionService
	logger    *zap.Logger
}

var bearerSecurity = []map[string][]string{{"bearerAuth": {}}}

var operationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
}

// op заполняет общие поля операции
func op(id, method, path, summary string, tags ...string) huma.Operation {
	return huma.Operation{
		OperationID: id,
		Method:      method,
		Path:        path,
		Summary:     summary,
		Tags:        tags,
		Security:    bearerSecurity,
		Errors:      operationErrors,
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError переводит ошибки ядра в HTTP статусы. Conflict несёт
// причину в code, чтобы клиент выбрал нужное действие.
func (h *handlers) handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}

	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, apperror.ErrForbidden):
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, apperror.ErrConflict):
		code := string(apperror.ReasonOf(err))
		if code == "" {
			code = "conflict"
		}
		return newAPIError(http.StatusConflict, code, err.Error(), nil)
	case errors.Is(err, apperror.ErrInvalidInput):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	default:
		h.logger.Error("Request failed", zap.Error(err))
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func (h *handlers) errorBody(err error) *apiErrorBody {
	if err == nil {
		return nil
	}
	if ae, ok := h.handleError(err).(*apiError); ok {
		return &ae.Body
	}
	return &apiErrorBody{Code: "internal_error", Message: "internal error"}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func parseID(raw, field string) (uuid.UUID, huma.StatusError) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, newAPIError(http.StatusBadRequest, "bad_request", field+" must be a valid uuid", map[string]any{"field": field})
	}
	return id, nil
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

func newAccessLogMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

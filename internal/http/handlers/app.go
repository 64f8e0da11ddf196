package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/ads"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/events"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/middleware"
)

// AdService is the part of ads.Service the HTTP layer calls.
type AdService interface {
	Submit(ctx context.Context, userID string, req ads.SubmitRequest) (*domain.Ad, error)
	Get(ctx context.Context, userID, id string) (*domain.Ad, error)
	List(ctx context.Context, userID string) ([]domain.Ad, error)
	Cancel(ctx context.Context, userID, id string) (*domain.Ad, error)
	Delete(ctx context.Context, userID, id string) error
	HandleCallback(ctx context.Context, payload ads.CallbackPayload) error
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Ads       AdService
	Events    events.Broadcaster
	DB        Pinger
	Logger    zerolog.Logger
	Heartbeat time.Duration
}

const (
	defaultHeartbeat = 30 * time.Second
	maxBodyBytes     = 1 << 20
)

func NewApp(svc AdService, broadcaster events.Broadcaster, db Pinger, logger zerolog.Logger) *App {
	return &App{
		Ads:       svc,
		Events:    broadcaster,
		DB:        db,
		Logger:    logger,
		Heartbeat: defaultHeartbeat,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// fail maps a service error onto the HTTP error envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("http: request failed")
	}
	a.error(w, status, code, message)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrDuplicateSubmission):
		return http.StatusConflict, "duplicate_submission", "an identical request is already being processed"
	case errors.Is(err, domain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "insufficient_credits", "not enough credits"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "bad_request", err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "unauthorized"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_state", err.Error()
	case errors.Is(err, domain.ErrEnqueueFailed), errors.Is(err, domain.ErrProviderFailure):
		return http.StatusBadGateway, "dispatch_failed", "could not schedule generation"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// decode reads a JSON body of bounded size into dst.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

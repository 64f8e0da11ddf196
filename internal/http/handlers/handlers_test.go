package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/ads"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/events"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/middleware"
)

type fakeService struct {
	ad          *domain.Ad
	err         error
	submitted   ads.SubmitRequest
	callback    ads.CallbackPayload
	callbackErr error
}

func (f *fakeService) Submit(_ context.Context, _ string, req ads.SubmitRequest) (*domain.Ad, error) {
	f.submitted = req
	return f.ad, f.err
}

func (f *fakeService) Get(_ context.Context, userID, id string) (*domain.Ad, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.ad == nil || f.ad.ID != id || f.ad.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return f.ad, nil
}

func (f *fakeService) List(context.Context, string) ([]domain.Ad, error) {
	if f.ad == nil {
		return nil, f.err
	}
	return []domain.Ad{*f.ad}, f.err
}

func (f *fakeService) Cancel(ctx context.Context, userID, id string) (*domain.Ad, error) {
	return f.Get(ctx, userID, id)
}

func (f *fakeService) Delete(ctx context.Context, userID, id string) error {
	_, err := f.Get(ctx, userID, id)
	return err
}

func (f *fakeService) HandleCallback(_ context.Context, payload ads.CallbackPayload) error {
	f.callback = payload
	return f.callbackErr
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

const testUser = "user-1"

func sampleAd(status domain.AdStatus) *domain.Ad {
	return &domain.Ad{
		ID:          "0b9d7d0e-5b7a-4e7e-9d1c-1f7a3c2b4d10",
		UserID:      testUser,
		Status:      status,
		MediaType:   domain.MediaTypeImage,
		Prompt:      "summer sale",
		AspectRatio: "1:1",
		Variants:    1,
		Provider:    "mock",
	}
}

func newTestApp(svc AdService) (*App, *events.Hub) {
	hub := events.NewHub(zerolog.Nop())
	return NewApp(svc, hub, pinger{}, zerolog.Nop()), hub
}

func testRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := middleware.ContextWithUserID(r.Context(), r.Header.Get("X-Test-User"))
			ctx = context.WithValue(ctx, middleware.LocaleKey, "id")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Post("/ads", app.CreateAd)
	r.Get("/ads", app.ListAds)
	r.Get("/ads/{id}", app.GetAd)
	r.Post("/ads/{id}/cancel", app.CancelAd)
	r.Delete("/ads/{id}", app.DeleteAd)
	r.Get("/ads/{id}/events", app.AdEvents)
	r.Post("/ads/n8n-callback", app.AdCallback)
	r.Get("/v1/healthz", app.Health)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("X-Test-User", testUser)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestCreateAdReturnsAccepted(t *testing.T) {
	svc := &fakeService{ad: sampleAd(domain.AdStatusPending)}
	app, _ := newTestApp(svc)

	rec := do(t, testRouter(app), http.MethodPost, "/ads", `{"prompt":"summer sale","aspectRatio":"1:1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var got adResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Equal(t, "PENDING", got.Status)
	require.Equal(t, svc.ad.ID, got.ID)
	require.Equal(t, "summer sale", svc.submitted.Prompt)
	require.Equal(t, "id", svc.submitted.Locale)
}

func TestCreateAdMapsErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrDuplicateSubmission, http.StatusConflict, "duplicate_submission"},
		{domain.ErrInsufficientCredits, http.StatusPaymentRequired, "insufficient_credits"},
		{fmt.Errorf("product x: %w", domain.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: prompt is required", domain.ErrInvalidRequest), http.StatusBadRequest, "bad_request"},
		{fmt.Errorf("%w: redis down", domain.ErrEnqueueFailed), http.StatusBadGateway, "dispatch_failed"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			app, _ := newTestApp(&fakeService{err: tc.err})
			rec := do(t, testRouter(app), http.MethodPost, "/ads", `{"prompt":"x"}`)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.code, decodeError(t, rec).Code)
		})
	}
}

func TestCreateAdRejectsBadJSONAndAnonymous(t *testing.T) {
	app, _ := newTestApp(&fakeService{})
	router := testRouter(app)

	rec := do(t, router, http.MethodPost, "/ads", `{"prompt":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/ads", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetListCancelDelete(t *testing.T) {
	ad := sampleAd(domain.AdStatusCompleted)
	ad.ImageURL = "https://cdn.test/1.png"
	ad.ImageURLs = []string{"https://cdn.test/1.png"}
	app, _ := newTestApp(&fakeService{ad: ad})
	router := testRouter(app)

	rec := do(t, router, http.MethodGet, "/ads/"+ad.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got adResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Equal(t, "https://cdn.test/1.png", got.ImageURL)

	rec = do(t, router, http.MethodGet, "/ads/other", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/ads", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), ad.ID)

	rec = do(t, router, http.MethodPost, "/ads/"+ad.ID+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodDelete, "/ads/"+ad.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCancelSettledAdConflicts(t *testing.T) {
	app, _ := newTestApp(&fakeService{err: fmt.Errorf("%w: ad is already COMPLETED", domain.ErrInvalidTransition)})
	rec := do(t, testRouter(app), http.MethodPost, "/ads/x/cancel", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "invalid_state", decodeError(t, rec).Code)
}

func TestCallbackEndpoint(t *testing.T) {
	svc := &fakeService{}
	app, _ := newTestApp(svc)
	router := testRouter(app)

	rec := do(t, router, http.MethodPost, "/ads/n8n-callback", `{"adId":"a1","status":"COMPLETED","videoUrls":["v"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "a1", svc.callback.AdID)
	require.Equal(t, []string{"v"}, svc.callback.VideoURLs)

	rec = do(t, router, http.MethodPost, "/ads/n8n-callback", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	svc.callbackErr = fmt.Errorf("%w: adId is required", domain.ErrInvalidRequest)
	rec = do(t, router, http.MethodPost, "/ads/n8n-callback", `{"status":"COMPLETED"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(&fakeService{})
	rec := do(t, testRouter(app), http.MethodGet, "/v1/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	app.DB = pinger{err: errors.New("connection refused")}
	rec = do(t, testRouter(app), http.MethodGet, "/v1/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func openStream(t *testing.T, srv *httptest.Server, adID string) (*bufio.Reader, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/ads/"+adID+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-User", testUser)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	t.Cleanup(func() { _ = resp.Body.Close() })
	return bufio.NewReader(resp.Body), cancel
}

// nextFrame returns the next non-empty line of the stream.
func nextFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
}

func nextEvent(t *testing.T, r *bufio.Reader) events.Event {
	t.Helper()
	frame := nextFrame(t, r)
	require.True(t, strings.HasPrefix(frame, "data: "), frame)
	var ev events.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &ev))
	return ev
}

func TestEventStreamRelaysPublishedEvents(t *testing.T) {
	ad := sampleAd(domain.AdStatusProcessing)
	app, hub := newTestApp(&fakeService{ad: ad})
	srv := httptest.NewServer(testRouter(app))
	defer srv.Close()

	stream, cancel := openStream(t, srv, ad.ID)
	first := nextEvent(t, stream)
	require.Equal(t, events.StatusConnected, first.Status)
	require.Equal(t, ad.ID, first.AdID)
	require.Equal(t, 1, hub.Subscribers(ad.ID))

	done := ad.Clone()
	done.MarkCompleted([]string{"https://cdn.test/1.png"})
	hub.Publish(context.Background(), ad.ID, events.FromAd(done))

	ev := nextEvent(t, stream)
	require.Equal(t, "COMPLETED", ev.Status)
	require.Equal(t, "https://cdn.test/1.png", ev.ImageURL)

	cancel()
	require.Eventually(t, func() bool { return hub.Subscribers(ad.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventStreamSendsTerminalStateAndHeartbeats(t *testing.T) {
	ad := sampleAd(domain.AdStatusFailed)
	ad.ErrorMessage = "quota exceeded"
	app, _ := newTestApp(&fakeService{ad: ad})
	app.Heartbeat = 20 * time.Millisecond
	srv := httptest.NewServer(testRouter(app))
	defer srv.Close()

	stream, cancel := openStream(t, srv, ad.ID)
	defer cancel()
	require.Equal(t, events.StatusConnected, nextEvent(t, stream).Status)

	final := nextEvent(t, stream)
	require.Equal(t, "FAILED", final.Status)
	require.Equal(t, "quota exceeded", final.Error)

	require.Equal(t, ": heartbeat", nextFrame(t, stream))
}

// settlingService publishes a transition while the stream reads the ad.
type settlingService struct {
	*fakeService
	onGet func()
}

func (s *settlingService) Get(ctx context.Context, userID, id string) (*domain.Ad, error) {
	ad, err := s.fakeService.Get(ctx, userID, id)
	if s.onGet != nil {
		s.onGet()
	}
	return ad, err
}

func TestEventStreamKeepsTransitionDuringLookup(t *testing.T) {
	ad := sampleAd(domain.AdStatusProcessing)
	svc := &settlingService{fakeService: &fakeService{ad: ad}}
	app, hub := newTestApp(svc)
	done := ad.Clone()
	done.MarkCompleted([]string{"https://cdn.test/1.png"})
	svc.onGet = func() { hub.Publish(context.Background(), ad.ID, events.FromAd(done)) }

	srv := httptest.NewServer(testRouter(app))
	defer srv.Close()

	stream, cancel := openStream(t, srv, ad.ID)
	defer cancel()
	require.Equal(t, events.StatusConnected, nextEvent(t, stream).Status)
	require.Equal(t, "COMPLETED", nextEvent(t, stream).Status)
}

func TestEventStreamForUnknownAdIs404(t *testing.T) {
	app, hub := newTestApp(&fakeService{})
	rec := do(t, testRouter(app), http.MethodGet, "/ads/missing/events", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Zero(t, hub.Subscribers("missing"))
}

func TestOpenAPIDocumentIsValidAndCacheable(t *testing.T) {
	app, _ := newTestApp(&fakeService{})

	rec := httptest.NewRecorder()
	app.OpenAPIJSON(rec, httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Contains(t, doc, "paths")
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	app.OpenAPIJSON(rec, req)
	require.Equal(t, http.StatusNotModified, rec.Code)
	require.Zero(t, rec.Body.Len())
}

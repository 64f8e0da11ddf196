package ads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/dedup"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/events"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/providers/generation"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/queue"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/storage"
)

type memAds struct {
	mu      sync.Mutex
	ads     map[string]*domain.Ad
	updates int
}

func newMemAds() *memAds { return &memAds{ads: map[string]*domain.Ad{}} }

func (m *memAds) Create(_ context.Context, ad *domain.Ad) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ad.CreatedAt = time.Now()
	ad.UpdatedAt = ad.CreatedAt
	m.ads[ad.ID] = ad.Clone()
	return nil
}

func (m *memAds) Get(_ context.Context, id string) (*domain.Ad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ad, ok := m.ads[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return ad.Clone(), nil
}

func (m *memAds) ListByUser(_ context.Context, userID string, limit int) ([]domain.Ad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Ad
	for _, ad := range m.ads {
		if ad.UserID == userID && len(out) < limit {
			out = append(out, *ad.Clone())
		}
	}
	return out, nil
}

func (m *memAds) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ads[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.ads, id)
	return nil
}

func (m *memAds) Transition(_ context.Context, id string, from []domain.AdStatus, mutate func(*domain.Ad)) (*domain.Ad, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.ads[id]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	matched := false
	for _, s := range from {
		if s == current.Status {
			matched = true
		}
	}
	if !matched {
		return current.Clone(), false, nil
	}
	next := current.Clone()
	mutate(next)
	if !domain.CanTransition(current.Status, next.Status) {
		return nil, false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, next.Status)
	}
	next.UpdatedAt = time.Now()
	m.ads[id] = next
	m.updates++
	return next.Clone(), true, nil
}

func (m *memAds) ReplaceResults(_ context.Context, id string, urls, storageIDs []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ad, ok := m.ads[id]
	if !ok || ad.Status != domain.AdStatusCompleted {
		return false, nil
	}
	ad.SetResults(urls)
	ad.StorageIDs = append([]string(nil), storageIDs...)
	return true, nil
}

func (m *memAds) Override(_ context.Context, id string, status domain.AdStatus, message string) (*domain.Ad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ad, ok := m.ads[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	ad.Status = status
	ad.ErrorMessage = message
	return ad.Clone(), nil
}

func (m *memAds) put(ad *domain.Ad) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ads[ad.ID] = ad.Clone()
}

func (m *memAds) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ads)
}

func (m *memAds) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

type memLedger struct {
	mu       sync.Mutex
	balances map[string]int
	deductFn func(amount int) error
	log      []string
}

func newLedger(user string, balance int) *memLedger {
	return &memLedger{balances: map[string]int{user: balance}}
}

func (l *memLedger) Balance(_ context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *memLedger) Deduct(_ context.Context, userID string, amount int, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deductFn != nil {
		if err := l.deductFn(amount); err != nil {
			return err
		}
	}
	if l.balances[userID] < amount {
		return domain.ErrInsufficientCredits
	}
	l.balances[userID] -= amount
	l.log = append(l.log, fmt.Sprintf("-%d %s", amount, reason))
	return nil
}

func (l *memLedger) Add(_ context.Context, userID string, amount int, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
	l.log = append(l.log, fmt.Sprintf("+%d %s", amount, reason))
	return nil
}

func (l *memLedger) balance(user string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[user]
}

type memCatalog struct {
	products  map[string]*domain.Product
	templates map[string]*domain.Template
}

func (c *memCatalog) GetProduct(_ context.Context, userID, productID string) (*domain.Product, error) {
	p, ok := c.products[productID]
	if !ok || p.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (c *memCatalog) GetTemplate(_ context.Context, templateID string) (*domain.Template, error) {
	t, ok := c.templates[templateID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

type failingQueue struct{ queue.Queue }

func (failingQueue) Enqueue(context.Context, string, any, queue.Options) (string, error) {
	return "", errors.New("redis down")
}

type stubProvider struct {
	name    string
	mu      sync.Mutex
	calls   int
	last    generation.Request
	results []generation.Result
	err     error
	before  func()
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Generate(_ context.Context, req generation.Request) ([]generation.Result, error) {
	p.mu.Lock()
	p.calls++
	p.last = req
	before := p.before
	p.mu.Unlock()
	if before != nil {
		before()
	}
	return p.results, p.err
}

type staticProviders struct{ provider generation.Provider }

func (s staticProviders) For(domain.MediaType) generation.Provider { return s.provider }

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *eventLog) sink(ev events.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *eventLog) statuses() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Status)
	}
	return out
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (s *memStore) Upload(_ context.Context, data []byte, opts storage.UploadOptions) (storage.Object, error) {
	key, err := storage.ObjectKey(opts)
	if err != nil {
		return storage.Object{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return storage.Object{URL: "https://cdn.local/" + key, ID: key}, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type harness struct {
	svc     *Service
	ads     *memAds
	ledger  *memLedger
	catalog *memCatalog
	queue   *queue.MemoryQueue
	hub     *events.Hub
	store   *memStore
}

const testUser = "user-1"

func newHarness(balance int) *harness {
	h := &harness{
		ads:     newMemAds(),
		ledger:  newLedger(testUser, balance),
		catalog: &memCatalog{products: map[string]*domain.Product{}, templates: map[string]*domain.Template{}},
		queue:   queue.NewMemoryQueue(),
		hub:     events.NewHub(zerolog.Nop()),
		store:   newMemStore(),
	}
	h.svc = NewService(Deps{
		Ads:     h.ads,
		Ledger:  h.ledger,
		Catalog: h.catalog,
		Queue:   h.queue,
		Guard:   dedup.NewMemoryGuard(0),
		Events:  h.hub,
		Store:   h.store,
		Logger:  zerolog.Nop(),
	}, Config{
		DedupWindow:           5 * time.Second,
		ImageCreditCost:       1,
		VideoCreditCost:       5,
		VideoCreditsPerSecond: 2,
		QueueOptions:          queue.DefaultOptions(),
		ImageProvider:         "mock",
		VideoProvider:         "n8n",
	})
	return h
}

// watch subscribes an event log to adID.
func (h *harness) watch(adID string) *eventLog {
	log := &eventLog{}
	h.hub.Subscribe(adID, log.sink)
	return log
}

// claim returns the next queued job.
func (h *harness) claim(t *testing.T) *queue.Job {
	t.Helper()
	job, err := h.queue.Claim(context.Background(), domain.JobTypeGenerateAd)
	require.NoError(t, err)
	return job
}

// seed stores an ad in status with a matching job delivery.
func (h *harness) seed(t *testing.T, status domain.AdStatus, mediaType domain.MediaType, attempt, maxAttempts int) (*domain.Ad, *queue.Job) {
	t.Helper()
	ad := &domain.Ad{
		ID:              "3f1a1c1e-8a4b-4c55-9a11-0f6f0d2a7c01",
		UserID:          testUser,
		Status:          status,
		MediaType:       mediaType,
		Prompt:          "red sneakers on a beach",
		AspectRatio:     "1:1",
		Variants:        1,
		DurationSeconds: 0,
	}
	if mediaType == domain.MediaTypeVideo {
		ad.DurationSeconds = 10
	}
	h.ads.put(ad)
	payload, err := json.Marshal(domain.GenerationJob{
		AdID:            ad.ID,
		UserID:          testUser,
		Prompt:          ad.Prompt,
		AspectRatio:     ad.AspectRatio,
		Variants:        1,
		MediaType:       mediaType,
		DurationSeconds: ad.DurationSeconds,
	})
	require.NoError(t, err)
	return ad, &queue.Job{
		ID:          "job-1",
		Type:        domain.JobTypeGenerateAd,
		Payload:     payload,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Backoff:     2 * time.Second,
	}
}

// Package ads orchestrates ad generation: submission, the queue job handler,
// provider callbacks and background archival. Every status change goes
// through domain.AdRepository.Transition.
package ads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/dedup"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/events"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/queue"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/storage"
)

// SubmitRequest is the client's generation request.
type SubmitRequest struct {
	ProductID        string   `json:"productId" validate:"omitempty,uuid"`
	TemplateID       string   `json:"templateId" validate:"omitempty,uuid"`
	Prompt           string   `json:"prompt" validate:"max=4000"`
	UserInstructions string   `json:"userInstructions" validate:"max=2000"`
	AspectRatio      string   `json:"aspectRatio" validate:"omitempty,oneof=1:1 4:5 9:16 16:9 3:2"`
	Variants         int      `json:"variants" validate:"omitempty,min=1,max=4"`
	Style            string   `json:"style" validate:"max=200"`
	Colors           []string `json:"colors" validate:"max=8,dive,max=32"`
	MediaType        string   `json:"mediaType" validate:"omitempty,oneof=IMAGE VIDEO image video"`
	DurationSeconds  int      `json:"durationSeconds" validate:"omitempty,min=1,max=60"`
	// Locale is filled from the request context, not the body.
	Locale string `json:"-"`
}

// Config holds pricing and pipeline knobs.
type Config struct {
	DedupWindow           time.Duration
	ImageCreditCost       int
	VideoCreditCost       int
	VideoCreditsPerSecond int
	QueueOptions          queue.Options
	ImageProvider         string
	VideoProvider         string
	ListLimit             int
}

// Deps are the collaborators of the ad service.
type Deps struct {
	Ads     domain.AdRepository
	Ledger  domain.CreditLedger
	Catalog domain.CatalogRepository
	Queue   queue.Queue
	Guard   dedup.Guard
	Events  events.Broadcaster
	Store   storage.Store
	Logger  zerolog.Logger
}

// Service implements the producer side of the pipeline and the callback sink.
type Service struct {
	Deps
	cfg      Config
	validate *validator.Validate
	now      func() time.Time
	bg       sync.WaitGroup
}

func NewService(deps Deps, cfg Config) *Service {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 5 * time.Second
	}
	if cfg.QueueOptions.Attempts <= 0 {
		cfg.QueueOptions = queue.DefaultOptions()
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 50
	}
	return &Service{Deps: deps, cfg: cfg, validate: validator.New(), now: time.Now}
}

// Wait blocks until background work started by the service has finished.
func (s *Service) Wait() {
	s.bg.Wait()
}

// Submit creates a PENDING ad, charges the flat cost and enqueues the job.
// It returns before generation starts.
func (s *Service) Submit(ctx context.Context, userID string, req SubmitRequest) (*domain.Ad, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrUnauthorized
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	req, mediaType := normalize(req)
	if strings.TrimSpace(req.Prompt) == "" && req.ProductID == "" && req.TemplateID == "" {
		return nil, fmt.Errorf("%w: prompt, productId or templateId is required", domain.ErrInvalidRequest)
	}

	fingerprint := dedup.Fingerprint(userID, dedup.Fields{
		ProductID:   req.ProductID,
		TemplateID:  req.TemplateID,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Variants:    req.Variants,
		MediaType:   req.MediaType,
	})
	if s.Guard.IsDuplicate(fingerprint, s.cfg.DedupWindow) {
		return nil, domain.ErrDuplicateSubmission
	}

	var (
		product *domain.Product
		tmpl    *domain.Template
		err     error
	)
	if req.TemplateID != "" {
		if tmpl, err = s.Catalog.GetTemplate(ctx, req.TemplateID); err != nil {
			return nil, fmt.Errorf("template %s: %w", req.TemplateID, err)
		}
		if req.MediaType == "" && tmpl.MediaType != "" {
			mediaType = tmpl.MediaType
		}
		if req.AspectRatio == "" {
			req.AspectRatio = tmpl.AspectRatio
		}
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "1:1"
	}
	if mediaType == domain.MediaTypeVideo {
		req.Variants = 1
	}

	cost := s.flatCost(mediaType)
	balance, err := s.Ledger.Balance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read credit balance: %w", err)
	}
	if balance < cost {
		return nil, domain.ErrInsufficientCredits
	}

	if req.ProductID != "" {
		if product, err = s.Catalog.GetProduct(ctx, userID, req.ProductID); err != nil {
			return nil, fmt.Errorf("product %s: %w", req.ProductID, err)
		}
	}
	prompt := AssemblePrompt(tmpl, product, req)

	ad := &domain.Ad{
		ID:              uuid.NewString(),
		UserID:          userID,
		Status:          domain.AdStatusPending,
		MediaType:       mediaType,
		Prompt:          prompt,
		AspectRatio:     req.AspectRatio,
		Variants:        req.Variants,
		DurationSeconds: req.DurationSeconds,
		ProductID:       req.ProductID,
		TemplateID:      req.TemplateID,
		Provider:        s.providerName(mediaType),
	}
	if err := s.Ads.Create(ctx, ad); err != nil {
		return nil, fmt.Errorf("create ad: %w", err)
	}

	if err := s.Ledger.Deduct(ctx, userID, cost, "ad generation "+ad.ID); err != nil {
		if delErr := s.Ads.Delete(ctx, ad.ID); delErr != nil {
			s.Logger.Error().Err(delErr).Str("ad_id", ad.ID).Msg("submit: remove uncharged ad failed")
		}
		if errors.Is(err, domain.ErrInsufficientCredits) {
			return nil, err
		}
		return nil, fmt.Errorf("deduct credits: %w", err)
	}

	job := domain.GenerationJob{
		AdID:             ad.ID,
		UserID:           userID,
		Prompt:           prompt,
		UserInstructions: req.UserInstructions,
		AspectRatio:      ad.AspectRatio,
		Variants:         ad.Variants,
		Style:            req.Style,
		Colors:           req.Colors,
		MediaType:        mediaType,
		DurationSeconds:  ad.DurationSeconds,
		Locale:           req.Locale,
	}
	if product != nil {
		job.ProductImageURLs = product.ImageURLs
	}
	if tmpl != nil {
		job.ReferenceImageURL = tmpl.ReferenceImageURL
	}

	jobID, err := s.Queue.Enqueue(ctx, domain.JobTypeGenerateAd, job, s.cfg.QueueOptions)
	if err != nil {
		s.abandon(ctx, ad, cost, err)
		return nil, fmt.Errorf("%w: %v", domain.ErrEnqueueFailed, err)
	}

	s.Logger.Info().
		Str("ad_id", ad.ID).
		Str("job_id", jobID).
		Str("user_id", userID).
		Str("media_type", string(mediaType)).
		Str("provider", ad.Provider).
		Msg("submit: ad queued")
	return ad, nil
}

// abandon marks an ad that never reached the queue as FAILED and returns the
// credits charged for it.
func (s *Service) abandon(ctx context.Context, ad *domain.Ad, cost int, cause error) {
	log := s.Logger.With().Str("ad_id", ad.ID).Logger()
	log.Error().Err(cause).Msg("submit: enqueue failed")

	failed, applied, err := s.Ads.Transition(ctx, ad.ID, []domain.AdStatus{domain.AdStatusPending}, func(a *domain.Ad) {
		a.MarkFailed("Could not schedule generation", s.now())
	})
	if err != nil {
		log.Error().Err(err).Msg("submit: mark unscheduled ad failed")
	} else if applied {
		s.Events.Publish(ctx, ad.ID, events.FromAd(failed))
	}
	if err := s.Ledger.Add(ctx, ad.UserID, cost, "refund unscheduled ad "+ad.ID); err != nil {
		log.Error().Err(err).Msg("submit: refund failed")
	}
}

// Get returns the caller's ad. Ads of other users are reported as not found.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Ad, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	ad, err := s.Ads.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ad.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return ad, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]domain.Ad, error) {
	return s.Ads.ListByUser(ctx, userID, s.cfg.ListLimit)
}

// Cancel moves a PENDING or PROCESSING ad to CANCELLED. Late callbacks for it
// become no-ops.
func (s *Service) Cancel(ctx context.Context, userID, id string) (*domain.Ad, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	ad, applied, err := s.Ads.Transition(ctx, id, domain.ActiveStatuses, func(a *domain.Ad) {
		a.Status = domain.AdStatusCancelled
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: ad is already %s", domain.ErrInvalidTransition, ad.Status)
	}
	s.Logger.Info().Str("ad_id", id).Str("user_id", userID).Msg("cancel: ad cancelled")
	s.Events.Publish(ctx, id, events.FromAd(ad))
	return ad, nil
}

// Delete removes the ad whatever its status, then its archived objects.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	ad, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.Ads.Delete(ctx, id); err != nil {
		return err
	}
	if s.Store != nil {
		for _, objectID := range ad.StorageIDs {
			if err := s.Store.Delete(ctx, objectID); err != nil {
				s.Logger.Warn().Err(err).Str("ad_id", id).Str("object_id", objectID).Msg("delete: remove archived object failed")
			}
		}
	}
	s.Logger.Info().Str("ad_id", id).Str("user_id", userID).Msg("delete: ad removed")
	return nil
}

// Override forces status on an ad regardless of the lifecycle. Operator use only.
func (s *Service) Override(ctx context.Context, id string, status domain.AdStatus, message string) (*domain.Ad, error) {
	ad, err := s.Ads.Override(ctx, id, status, message)
	if err != nil {
		return nil, err
	}
	s.Logger.Warn().Str("ad_id", id).Str("status", string(status)).Msg("override: status forced")
	s.Events.Publish(ctx, id, events.FromAd(ad))
	return ad, nil
}

func (s *Service) flatCost(mediaType domain.MediaType) int {
	if mediaType == domain.MediaTypeVideo {
		return s.cfg.VideoCreditCost
	}
	return s.cfg.ImageCreditCost
}

// deferredCost is what an async video owes on top of the flat cost.
func (s *Service) deferredCost(ad *domain.Ad) int {
	if ad.MediaType != domain.MediaTypeVideo || s.cfg.VideoCreditsPerSecond <= 0 {
		return 0
	}
	extra := ad.DurationSeconds*s.cfg.VideoCreditsPerSecond - s.cfg.VideoCreditCost
	if extra < 0 {
		return 0
	}
	return extra
}

func (s *Service) providerName(mediaType domain.MediaType) string {
	if mediaType == domain.MediaTypeVideo && s.cfg.VideoProvider != "" {
		return s.cfg.VideoProvider
	}
	return s.cfg.ImageProvider
}

// goBackground runs fn detached from the request with its own timeout.
func (s *Service) goBackground(parent context.Context, timeout time.Duration, name string, fn func(context.Context)) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.Logger.Error().Interface("panic", r).Str("task", name).Msg("background task panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
		defer cancel()
		fn(ctx)
	}()
}

func normalize(req SubmitRequest) (SubmitRequest, domain.MediaType) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.UserInstructions = strings.TrimSpace(req.UserInstructions)
	req.Style = strings.TrimSpace(req.Style)
	mediaType := domain.MediaTypeImage
	if mt, ok := domain.ParseMediaType(req.MediaType); ok {
		mediaType = mt
		req.MediaType = string(mt)
	}
	if req.Variants <= 0 {
		req.Variants = 1
	}
	if mediaType != domain.MediaTypeVideo {
		req.DurationSeconds = 0
	} else if req.DurationSeconds == 0 {
		req.DurationSeconds = 5
	}
	return req, mediaType
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (value: %s)", msg, fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, strings.Join(msgs, "; "))
}

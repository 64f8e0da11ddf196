// Package generation holds the pluggable generation backends. Synchronous
// providers return final media URLs; asynchronous ones acknowledge the request
// and report the outcome later through the callback endpoint.
package generation

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/infra"
)

// Request is the normalized input every provider receives.
type Request struct {
	AdID              string
	UserID            string
	Prompt            string
	AspectRatio       string
	Variants          int
	Style             string
	Colors            []string
	MediaType         domain.MediaType
	DurationSeconds   int
	ProductImageURLs  []string
	ReferenceImageURL string
	Locale            string
}

// RequestFromJob maps a queued job onto a provider request.
func RequestFromJob(job domain.GenerationJob) Request {
	return Request{
		AdID:              job.AdID,
		UserID:            job.UserID,
		Prompt:            job.Prompt,
		AspectRatio:       job.AspectRatio,
		Variants:          job.Variants,
		Style:             job.Style,
		Colors:            job.Colors,
		MediaType:         job.MediaType,
		DurationSeconds:   job.DurationSeconds,
		ProductImageURLs:  job.ProductImageURLs,
		ReferenceImageURL: job.ReferenceImageURL,
		Locale:            job.Locale,
	}
}

// Result is one generated variant. Pending results carry no usable URL; the
// real outcome arrives out-of-band.
type Result struct {
	URL      string
	Metadata map[string]any
	Pending  bool
}

// Provider is the contract implemented by every generation backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) ([]Result, error)
}

// AllPending reports whether every result is a pending acknowledgement.
func AllPending(results []Result) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Pending {
			return false
		}
	}
	return true
}

// URLs collects the non-empty URLs of results in order.
func URLs(results []Result) []string {
	urls := make([]string, 0, len(results))
	for _, r := range results {
		if !r.Pending && r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return urls
}

// Secrets are provider credentials resolved at startup.
type Secrets struct {
	FalAPIKey string
}

// Router picks the provider configured for each media type.
type Router struct {
	Image Provider
	Video Provider
}

// For returns the provider for mediaType.
func (r *Router) For(mediaType domain.MediaType) Provider {
	if mediaType == domain.MediaTypeVideo && r.Video != nil {
		return r.Video
	}
	return r.Image
}

// NewRouter builds the image and video providers from configuration. The
// provider tags were validated by infra.LoadConfig.
func NewRouter(cfg *infra.Config, secrets Secrets, logger infra.Logger) (*Router, error) {
	client := &http.Client{Timeout: cfg.ProviderTimeout}
	if cfg.ProviderTimeout <= 0 {
		client.Timeout = 60 * time.Second
	}
	image, err := New(cfg.GenerationProvider, cfg, secrets, client, logger)
	if err != nil {
		return nil, err
	}
	video := image
	if cfg.VideoProvider != cfg.GenerationProvider {
		if video, err = New(cfg.VideoProvider, cfg, secrets, client, logger); err != nil {
			return nil, err
		}
	}
	return &Router{Image: image, Video: video}, nil
}

// New constructs the provider for kind.
func New(kind infra.ProviderKind, cfg *infra.Config, secrets Secrets, client *http.Client, logger infra.Logger) (Provider, error) {
	switch kind {
	case infra.ProviderFal:
		return NewFalProvider(FalOptions{
			APIKey:     secrets.FalAPIKey,
			BaseURL:    cfg.FalBaseURL,
			ImageModel: cfg.FalImageModel,
			VideoModel: cfg.FalVideoModel,
			HTTPClient: client,
			Logger:     logger,
		})
	case infra.ProviderN8N:
		return NewN8NProvider(N8NOptions{
			WebhookURL:      cfg.N8NWebhookURL,
			CallbackBaseURL: cfg.CallbackBaseURL,
			CallbackSecret:  cfg.CallbackSecret,
			HTTPClient:      client,
			Logger:          logger,
		})
	case infra.ProviderMock:
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("generation provider %q is not supported", kind)
	}
}

package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/infra"
)

// ErrMissingAPIKey indicates that the fal client was configured without credentials.
var ErrMissingAPIKey = errors.New("fal: api key is required")

// FalOptions configures the fal.ai synchronous client.
type FalOptions struct {
	APIKey     string
	BaseURL    string
	ImageModel string
	VideoModel string
	HTTPClient *http.Client
	Logger     infra.Logger
}

// FalProvider calls fal.ai's synchronous run endpoint and returns the hosted
// media URLs from the response.
type FalProvider struct {
	apiKey     string
	baseURL    string
	imageModel string
	videoModel string
	httpClient *http.Client
	logger     infra.Logger
}

type falRequest struct {
	Prompt      string `json:"prompt"`
	NumImages   int    `json:"num_images,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Duration    string `json:"duration,omitempty"`
}

type falFile struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

type falResponse struct {
	Images []falFile `json:"images"`
	Video  *falFile  `json:"video"`
	Seed   int64     `json:"seed,omitempty"`
}

type falError struct {
	Detail any `json:"detail"`
}

func NewFalProvider(opts FalOptions) (*FalProvider, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://fal.run"
	}
	imageModel := strings.Trim(opts.ImageModel, "/")
	if imageModel == "" {
		imageModel = "fal-ai/flux/dev"
	}
	videoModel := strings.Trim(opts.VideoModel, "/")
	if videoModel == "" {
		videoModel = "fal-ai/kling-video/v1/standard/text-to-video"
	}
	return &FalProvider{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		imageModel: imageModel,
		videoModel: videoModel,
		httpClient: client,
		logger:     opts.Logger,
	}, nil
}

func (p *FalProvider) Name() string { return string(infra.ProviderFal) }

func (p *FalProvider) Generate(ctx context.Context, req Request) ([]Result, error) {
	if p.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: fal: prompt is required", domain.ErrProviderFailure)
	}

	model := p.imageModel
	payload := falRequest{Prompt: prompt, AspectRatio: req.AspectRatio}
	if req.MediaType == domain.MediaTypeVideo {
		model = p.videoModel
		if req.DurationSeconds > 0 {
			payload.Duration = fmt.Sprintf("%d", req.DurationSeconds)
		}
	} else {
		payload.NumImages = clampVariants(req.Variants)
	}
	if ref := firstNonEmpty(append([]string{req.ReferenceImageURL}, req.ProductImageURLs...)...); ref != "" {
		payload.ImageURL = ref
	}

	var resp falResponse
	if err := p.invoke(ctx, model, payload, &resp); err != nil {
		return nil, err
	}

	var results []Result
	if resp.Video != nil && resp.Video.URL != "" {
		results = append(results, Result{URL: resp.Video.URL, Metadata: map[string]any{
			"provider":     p.Name(),
			"model":        model,
			"content_type": resp.Video.ContentType,
		}})
	}
	for _, img := range resp.Images {
		if img.URL == "" {
			continue
		}
		results = append(results, Result{URL: img.URL, Metadata: map[string]any{
			"provider":     p.Name(),
			"model":        model,
			"content_type": img.ContentType,
			"width":        img.Width,
			"height":       img.Height,
		}})
	}

	p.logger.Debug().
		Str("ad_id", req.AdID).
		Str("model", model).
		Int("results", len(results)).
		Msg("fal: generation finished")

	return results, nil
}

func (p *FalProvider) invoke(ctx context.Context, model string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/"+model, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: invoke fal: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr falError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Detail != nil {
			return fmt.Errorf("%w: fal status %d: %v", domain.ErrProviderFailure, resp.StatusCode, apiErr.Detail)
		}
		return fmt.Errorf("%w: fal status %d: %s", domain.ErrProviderFailure, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode fal response: %w", err)
	}
	return nil
}

func clampVariants(n int) int {
	if n <= 0 {
		return 1
	}
	if n > 4 {
		return 4
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

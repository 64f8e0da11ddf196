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

// CallbackPath is where the external workflow reports its outcome.
const CallbackPath = "/ads/n8n-callback"

// CallbackSecretHeader carries the shared secret on outbound and inbound calls.
const CallbackSecretHeader = "X-Callback-Secret"

// N8NOptions configures the webhook-driven asynchronous provider.
type N8NOptions struct {
	WebhookURL      string
	CallbackBaseURL string
	CallbackSecret  string
	HTTPClient      *http.Client
	Logger          infra.Logger
}

// N8NProvider triggers an n8n workflow and returns a pending marker. The
// workflow posts the real result to CallbackPath.
type N8NProvider struct {
	webhookURL     string
	callbackURL    string
	callbackSecret string
	httpClient     *http.Client
	logger         infra.Logger
}

type n8nRequest struct {
	AdID              string   `json:"adId"`
	UserID            string   `json:"userId"`
	Prompt            string   `json:"prompt"`
	AspectRatio       string   `json:"aspectRatio,omitempty"`
	Variants          int      `json:"variants"`
	MediaType         string   `json:"mediaType"`
	DurationSeconds   int      `json:"durationSeconds,omitempty"`
	Style             string   `json:"style,omitempty"`
	Colors            []string `json:"colors,omitempty"`
	ProductImageURLs  []string `json:"productImageUrls,omitempty"`
	ReferenceImageURL string   `json:"referenceImageUrl,omitempty"`
	Locale            string   `json:"locale,omitempty"`
	CallbackURL       string   `json:"callbackUrl"`
	CallbackSecret    string   `json:"callbackSecret,omitempty"`
}

type n8nAck struct {
	ExecutionID string `json:"executionId,omitempty"`
	Message     string `json:"message,omitempty"`
}

func NewN8NProvider(opts N8NOptions) (*N8NProvider, error) {
	webhook := strings.TrimSpace(opts.WebhookURL)
	if webhook == "" {
		return nil, errors.New("n8n: webhook url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &N8NProvider{
		webhookURL:     webhook,
		callbackURL:    strings.TrimRight(opts.CallbackBaseURL, "/") + CallbackPath,
		callbackSecret: opts.CallbackSecret,
		httpClient:     client,
		logger:         opts.Logger,
	}, nil
}

func (p *N8NProvider) Name() string { return string(infra.ProviderN8N) }

// Generate fails only when the dispatch itself fails; generation failures are
// reported through the callback.
func (p *N8NProvider) Generate(ctx context.Context, req Request) ([]Result, error) {
	payload := n8nRequest{
		AdID:              req.AdID,
		UserID:            req.UserID,
		Prompt:            req.Prompt,
		AspectRatio:       req.AspectRatio,
		Variants:          req.Variants,
		MediaType:         string(req.MediaType),
		DurationSeconds:   req.DurationSeconds,
		Style:             req.Style,
		Colors:            req.Colors,
		ProductImageURLs:  req.ProductImageURLs,
		ReferenceImageURL: req.ReferenceImageURL,
		Locale:            req.Locale,
		CallbackURL:       p.callbackURL,
		CallbackSecret:    p.callbackSecret,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.callbackSecret != "" {
		httpReq.Header.Set(CallbackSecretHeader, p.callbackSecret)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: invoke n8n: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: n8n status %d: %s", domain.ErrProviderFailure, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var ack n8nAck
	_ = json.Unmarshal(data, &ack)

	p.logger.Info().
		Str("ad_id", req.AdID).
		Str("execution_id", ack.ExecutionID).
		Msg("n8n: workflow dispatched")

	return []Result{{
		Pending: true,
		Metadata: map[string]any{
			"provider":    p.Name(),
			"executionId": ack.ExecutionID,
		},
	}}, nil
}

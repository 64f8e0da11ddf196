package ads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/events"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/providers/genai"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/providers/generation"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/queue"
)

// ProviderSource returns the provider configured for a media type.
type ProviderSource interface {
	For(mediaType domain.MediaType) generation.Provider
}

// PromptEnricher is the optional vision + prompt construction step.
type PromptEnricher interface {
	AnalyzeImage(ctx context.Context, imageURL string) (string, error)
	BuildPrompt(ctx context.Context, in genai.PromptInput) (genai.BuiltPrompt, error)
}

// Processor handles generate-ad jobs from the queue.
type Processor struct {
	svc             *Service
	providers       ProviderSource
	enricher        PromptEnricher
	archiver        *Archiver
	providerTimeout time.Duration
}

// NewProcessor wires the job handler. enricher and archiver may be nil.
func NewProcessor(svc *Service, providers ProviderSource, enricher PromptEnricher, archiver *Archiver, providerTimeout time.Duration) *Processor {
	if providerTimeout <= 0 {
		providerTimeout = 60 * time.Second
	}
	return &Processor{
		svc:             svc,
		providers:       providers,
		enricher:        enricher,
		archiver:        archiver,
		providerTimeout: providerTimeout,
	}
}

// Handle is a queue.Handler. Re-deliveries are safe: a terminal ad is left
// alone and a PROCESSING ad is dispatched again without another transition.
func (p *Processor) Handle(ctx context.Context, job *queue.Job) error {
	var payload domain.GenerationJob
	if err := job.Decode(&payload); err != nil {
		return queue.Permanent(fmt.Errorf("decode generation job: %w", err))
	}
	if payload.AdID == "" {
		return queue.Permanent(errors.New("generation job without ad id"))
	}

	s := p.svc
	log := s.Logger.With().
		Str("ad_id", payload.AdID).
		Str("job_id", job.ID).
		Int("attempt", job.Attempt).
		Logger()

	if job.Abandoned {
		return p.settleAbandoned(ctx, payload.AdID, log)
	}

	ad, started, err := s.Ads.Transition(ctx, payload.AdID, []domain.AdStatus{domain.AdStatusPending}, func(a *domain.Ad) {
		a.Status = domain.AdStatusProcessing
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("worker: ad no longer exists, dropping job")
			return nil
		}
		return fmt.Errorf("start ad: %w", err)
	}
	if started {
		s.Events.Publish(ctx, ad.ID, events.FromAd(ad))
	} else if ad.Status != domain.AdStatusProcessing {
		log.Info().Str("status", string(ad.Status)).Msg("worker: ad already settled, skipping")
		return nil
	}

	req := generation.RequestFromJob(payload)
	if payload.MediaType == "" {
		req.MediaType = ad.MediaType
	}
	if req.MediaType == domain.MediaTypeImage && payload.ReferenceImageURL != "" && p.enricher != nil {
		req.Prompt, req.AspectRatio = p.enrich(ctx, payload)
	}

	provider := p.providers.For(req.MediaType)
	pctx, cancel := context.WithTimeout(ctx, p.providerTimeout)
	results, err := provider.Generate(pctx, req)
	cancel()
	if err != nil {
		if job.FinalAttempt() {
			log.Error().Err(err).Str("provider", provider.Name()).Msg("worker: generation failed, no attempts left")
			p.fail(ctx, ad.ID, failureMessage(err))
		} else {
			log.Warn().Err(err).Str("provider", provider.Name()).Msg("worker: generation failed, will retry")
		}
		return err
	}

	if generation.AllPending(results) {
		log.Info().Str("provider", provider.Name()).Msg("worker: dispatched to async provider")
		return nil
	}

	urls := generation.URLs(results)
	if len(urls) == 0 {
		p.fail(ctx, ad.ID, "Provider returned no results")
		return queue.Permanent(fmt.Errorf("%w: empty result set", domain.ErrProviderFailure))
	}

	completed, applied, err := s.Ads.Transition(ctx, ad.ID, []domain.AdStatus{domain.AdStatusProcessing}, func(a *domain.Ad) {
		a.Prompt = req.Prompt
		if req.AspectRatio != "" {
			a.AspectRatio = req.AspectRatio
		}
		a.MarkCompleted(urls)
	})
	if err != nil {
		return fmt.Errorf("complete ad: %w", err)
	}
	if !applied {
		log.Info().Str("status", string(completed.Status)).Msg("worker: ad settled during generation, discarding results")
		return nil
	}
	log.Info().Int("results", len(urls)).Msg("worker: ad completed")
	s.Events.Publish(ctx, completed.ID, events.FromAd(completed))

	if p.archiver != nil {
		p.archiver.Schedule(ctx, completed)
	}
	return nil
}

// enrich folds a reference image description into the prompt. Any failure
// falls back to the assembled prompt.
func (p *Processor) enrich(ctx context.Context, payload domain.GenerationJob) (string, string) {
	log := p.svc.Logger.With().Str("ad_id", payload.AdID).Logger()
	description, err := p.enricher.AnalyzeImage(ctx, payload.ReferenceImageURL)
	if err != nil {
		log.Warn().Err(err).Msg("worker: reference analysis failed, using assembled prompt")
		return payload.Prompt, payload.AspectRatio
	}
	built, err := p.enricher.BuildPrompt(ctx, genai.PromptInput{
		BasePrompt:       payload.Prompt,
		Description:      description,
		UserInstructions: payload.UserInstructions,
		AspectRatio:      payload.AspectRatio,
		Locale:           payload.Locale,
	})
	if err != nil || strings.TrimSpace(built.Prompt) == "" {
		log.Warn().Err(err).Msg("worker: prompt construction failed, using assembled prompt")
		return payload.Prompt, payload.AspectRatio
	}
	aspect := built.AspectRatio
	if aspect == "" {
		aspect = payload.AspectRatio
	}
	return built.Prompt, aspect
}

// settleAbandoned fails an ad whose last attempt died with its worker. The
// provider is not called again.
func (p *Processor) settleAbandoned(ctx context.Context, adID string, log zerolog.Logger) error {
	s := p.svc
	ad, started, err := s.Ads.Transition(ctx, adID, []domain.AdStatus{domain.AdStatusPending}, func(a *domain.Ad) {
		a.Status = domain.AdStatusProcessing
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("start abandoned ad: %w", err)
	}
	if started {
		s.Events.Publish(ctx, ad.ID, events.FromAd(ad))
	}
	if ad.Status == domain.AdStatusProcessing {
		log.Error().Msg("worker: final attempt was interrupted, failing ad")
		p.fail(ctx, ad.ID, abandonedMessage)
	}
	return queue.Permanent(errors.New(abandonedMessage))
}

const abandonedMessage = "Generation was interrupted"

func (p *Processor) fail(ctx context.Context, adID, message string) {
	s := p.svc
	ad, applied, err := s.Ads.Transition(ctx, adID, []domain.AdStatus{domain.AdStatusProcessing}, func(a *domain.Ad) {
		a.MarkFailed(message, s.now())
	})
	if err != nil {
		s.Logger.Error().Err(err).Str("ad_id", adID).Msg("worker: mark ad failed")
		return
	}
	if applied {
		s.Events.Publish(ctx, adID, events.FromAd(ad))
	}
}

// maxFailureMessage bounds the stored error text in bytes.
const maxFailureMessage = 500

func failureMessage(err error) string {
	return truncateMessage(err.Error())
}

// truncateMessage cuts msg to maxFailureMessage bytes on a rune boundary.
// Upstream bodies may carry invalid bytes, which Postgres rejects in text
// columns, so those are replaced first.
func truncateMessage(msg string) string {
	msg = strings.ToValidUTF8(msg, "\uFFFD")
	if len(msg) <= maxFailureMessage {
		return msg
	}
	cut := maxFailureMessage
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

package ads

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/events"
)

// CallbackPayload is what the external workflow posts back.
type CallbackPayload struct {
	AdID      string   `json:"adId" validate:"required"`
	Status    string   `json:"status"`
	MediaType string   `json:"mediaType,omitempty"`
	ImageURLs []string `json:"imageUrls,omitempty"`
	VideoURLs []string `json:"videoUrls,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// successStatuses are the status strings external workflows use for success.
var successStatuses = map[string]bool{
	"COMPLETED": true,
	"COMPLETE":  true,
	"SUCCESS":   true,
	"SUCCEEDED": true,
	"DONE":      true,
	"OK":        true,
}

const deferredChargeTimeout = 30 * time.Second

// HandleCallback applies an out-of-band provider outcome. Only a missing ad id
// is reported to the caller; unknown or already settled ads are logged and
// acknowledged so the sender does not retry.
func (s *Service) HandleCallback(ctx context.Context, payload CallbackPayload) error {
	payload.AdID = strings.TrimSpace(payload.AdID)
	if err := s.validate.Struct(payload); err != nil {
		return validationError(err)
	}
	log := s.Logger.With().Str("ad_id", payload.AdID).Str("status", payload.Status).Logger()

	current, err := s.Ads.Get(ctx, payload.AdID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("callback: unknown ad, ignoring")
			return nil
		}
		return err
	}
	if current.Status == domain.AdStatusCancelled {
		log.Info().Msg("callback: ad was cancelled, ignoring")
		return nil
	}

	kind, urls := pickResults(payload, current.MediaType)
	success := successStatuses[strings.ToUpper(strings.TrimSpace(payload.Status))] || len(payload.ImageURLs) > 0 || len(payload.VideoURLs) > 0
	message := truncateMessage(strings.TrimSpace(payload.Error))
	if success && len(urls) == 0 {
		success = false
		if message == "" {
			message = "Provider reported success without results"
		}
	}

	// The row is re-read under lock; a cancellation that landed after the
	// read above leaves the ad outside the from set and the callback no-ops.
	ad, applied, err := s.Ads.Transition(ctx, payload.AdID, []domain.AdStatus{domain.AdStatusProcessing}, func(a *domain.Ad) {
		if success {
			a.MediaType = kind
			a.MarkCompleted(urls)
			return
		}
		a.MarkFailed(message, s.now())
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("callback: ad removed while applying, ignoring")
			return nil
		}
		return err
	}
	if !applied {
		log.Info().Str("current", string(ad.Status)).Msg("callback: ad not processing, ignoring")
		return nil
	}

	log.Info().Str("result", string(ad.Status)).Int("results", len(urls)).Msg("callback: applied")
	s.Events.Publish(ctx, ad.ID, events.FromAd(ad))

	if ad.Status == domain.AdStatusCompleted {
		if extra := s.deferredCost(ad); extra > 0 {
			s.goBackground(ctx, deferredChargeTimeout, "deferred-charge", func(bctx context.Context) {
				if err := s.Ledger.Deduct(bctx, ad.UserID, extra, "video generation "+ad.ID); err != nil {
					s.Logger.Error().Err(err).Str("ad_id", ad.ID).Int("amount", extra).Msg("callback: deferred credit deduction failed")
				}
			})
		}
	}
	return nil
}

// pickResults chooses the URL list for the declared media kind, or the
// non-empty one when the kind is absent.
func pickResults(p CallbackPayload, fallback domain.MediaType) (domain.MediaType, []string) {
	kind, ok := domain.ParseMediaType(p.MediaType)
	if !ok {
		switch {
		case len(p.VideoURLs) > 0 && len(p.ImageURLs) == 0:
			kind = domain.MediaTypeVideo
		case len(p.ImageURLs) > 0 && len(p.VideoURLs) == 0:
			kind = domain.MediaTypeImage
		default:
			kind = fallback
		}
	}
	list := p.ImageURLs
	if kind == domain.MediaTypeVideo {
		list = p.VideoURLs
	}
	urls := make([]string, 0, len(list))
	for _, u := range list {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return kind, urls
}

package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/ads"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/middleware"
)

type adResponse struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	MediaType       string     `json:"mediaType"`
	Prompt          string     `json:"prompt"`
	AspectRatio     string     `json:"aspectRatio"`
	Variants        int        `json:"variants"`
	DurationSeconds int        `json:"durationSeconds,omitempty"`
	ProductID       string     `json:"productId,omitempty"`
	TemplateID      string     `json:"templateId,omitempty"`
	Provider        string     `json:"provider"`
	ImageURL        string     `json:"imageUrl,omitempty"`
	ImageURLs       []string   `json:"imageUrls,omitempty"`
	VideoURL        string     `json:"videoUrl,omitempty"`
	VideoURLs       []string   `json:"videoUrls,omitempty"`
	Error           string     `json:"error,omitempty"`
	FailedAt        *time.Time `json:"failedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func toAdResponse(ad *domain.Ad) adResponse {
	return adResponse{
		ID:              ad.ID,
		Status:          string(ad.Status),
		MediaType:       string(ad.MediaType),
		Prompt:          ad.Prompt,
		AspectRatio:     ad.AspectRatio,
		Variants:        ad.Variants,
		DurationSeconds: ad.DurationSeconds,
		ProductID:       ad.ProductID,
		TemplateID:      ad.TemplateID,
		Provider:        ad.Provider,
		ImageURL:        ad.ImageURL,
		ImageURLs:       ad.ImageURLs,
		VideoURL:        ad.VideoURL,
		VideoURLs:       ad.VideoURLs,
		Error:           ad.ErrorMessage,
		FailedAt:        ad.FailedAt,
		CreatedAt:       ad.CreatedAt,
		UpdatedAt:       ad.UpdatedAt,
	}
}

// CreateAd handles POST /ads. The ad is returned as soon as it is queued.
func (a *App) CreateAd(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req ads.SubmitRequest
	if err := decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Locale = middleware.LocaleFromContext(r.Context())
	ad, err := a.Ads.Submit(r.Context(), userID, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, toAdResponse(ad))
}

func (a *App) ListAds(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	list, err := a.Ads.List(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]adResponse, 0, len(list))
	for i := range list {
		items = append(items, toAdResponse(&list[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) GetAd(w http.ResponseWriter, r *http.Request) {
	ad, err := a.Ads.Get(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toAdResponse(ad))
}

func (a *App) CancelAd(w http.ResponseWriter, r *http.Request) {
	ad, err := a.Ads.Cancel(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toAdResponse(ad))
}

func (a *App) DeleteAd(w http.ResponseWriter, r *http.Request) {
	if err := a.Ads.Delete(r.Context(), a.currentUserID(r), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

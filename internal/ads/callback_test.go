package ads

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/providers/generation"
)

func TestVideoCallbackCompletesAndChargesRemainder(t *testing.T) {
	h := newHarness(30)
	provider := &stubProvider{name: "n8n", results: []generation.Result{{Pending: true}}}
	proc := NewProcessor(h.svc, staticProviders{provider}, nil, nil, time.Second)

	ad, err := h.svc.Submit(context.Background(), testUser, SubmitRequest{
		Prompt:          "launch teaser",
		MediaType:       "VIDEO",
		DurationSeconds: 10,
	})
	require.NoError(t, err)
	require.Equal(t, 25, h.ledger.balance(testUser))
	require.NoError(t, proc.Handle(context.Background(), h.claim(t)))
	watched := h.watch(ad.ID)

	err = h.svc.HandleCallback(context.Background(), CallbackPayload{
		AdID:      ad.ID,
		Status:    "COMPLETED",
		MediaType: "VIDEO",
		VideoURLs: []string{"a", "b"},
	})
	require.NoError(t, err)
	h.svc.Wait()

	stored, err := h.ads.Get(context.Background(), ad.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AdStatusCompleted, stored.Status)
	require.Equal(t, "a", stored.VideoURL)
	require.Equal(t, []string{"a", "b"}, stored.VideoURLs)
	require.Equal(t, []string{"COMPLETED"}, watched.statuses())
	require.Equal(t, 10, h.ledger.balance(testUser))

	// A repeated callback is acknowledged without another charge.
	require.NoError(t, h.svc.HandleCallback(context.Background(), CallbackPayload{
		AdID:      ad.ID,
		Status:    "COMPLETED",
		VideoURLs: []string{"c"},
	}))
	h.svc.Wait()
	require.Equal(t, 10, h.ledger.balance(testUser))
	stored, _ = h.ads.Get(context.Background(), ad.ID)
	require.Equal(t, []string{"a", "b"}, stored.VideoURLs)
}

func TestFailedCallbackStoresProviderError(t *testing.T) {
	h := newHarness(10)
	ad, _ := h.seed(t, domain.AdStatusProcessing, domain.MediaTypeVideo, 1, 3)
	watched := h.watch(ad.ID)

	require.NoError(t, h.svc.HandleCallback(context.Background(), CallbackPayload{
		AdID:   ad.ID,
		Status: "FAILED",
		Error:  "quota exceeded",
	}))
	h.svc.Wait()

	stored, _ := h.ads.Get(context.Background(), ad.ID)
	require.Equal(t, domain.AdStatusFailed, stored.Status)
	require.Equal(t, "quota exceeded", stored.ErrorMessage)
	require.NotNil(t, stored.FailedAt)
	require.Equal(t, []string{"FAILED"}, watched.statuses())
	require.Equal(t, 10, h.ledger.balance(testUser))
}

func TestCallbackForCancelledAdIsIgnored(t *testing.T) {
	h := newHarness(10)
	ad, _ := h.seed(t, domain.AdStatusCancelled, domain.MediaTypeVideo, 1, 3)
	watched := h.watch(ad.ID)
	updates := h.ads.updateCount()

	require.NoError(t, h.svc.HandleCallback(context.Background(), CallbackPayload{
		AdID:      ad.ID,
		Status:    "COMPLETED",
		VideoURLs: []string{"a"},
	}))
	h.svc.Wait()

	stored, _ := h.ads.Get(context.Background(), ad.ID)
	require.Equal(t, domain.AdStatusCancelled, stored.Status)
	require.Empty(t, stored.VideoURLs)
	require.Empty(t, watched.statuses())
	require.Equal(t, updates, h.ads.updateCount())
	require.Equal(t, 10, h.ledger.balance(testUser))
}

func TestCallbackForUnknownAdIsAcknowledged(t *testing.T) {
	h := newHarness(10)
	err := h.svc.HandleCallback(context.Background(), CallbackPayload{
		AdID:   "0d3c2b1a-0000-4000-8000-000000000000",
		Status: "COMPLETED",
	})
	require.NoError(t, err)
}

func TestCallbackWithoutAdIDIsInvalid(t *testing.T) {
	h := newHarness(10)
	err := h.svc.HandleCallback(context.Background(), CallbackPayload{AdID: "  ", Status: "COMPLETED"})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestCallbackSuccessWithoutResultsFails(t *testing.T) {
	h := newHarness(10)
	ad, _ := h.seed(t, domain.AdStatusProcessing, domain.MediaTypeImage, 1, 3)

	require.NoError(t, h.svc.HandleCallback(context.Background(), CallbackPayload{AdID: ad.ID, Status: "success"}))

	stored, _ := h.ads.Get(context.Background(), ad.ID)
	require.Equal(t, domain.AdStatusFailed, stored.Status)
	require.Equal(t, "Provider reported success without results", stored.ErrorMessage)
}

func TestCallbackInfersMediaTypeFromResults(t *testing.T) {
	h := newHarness(10)
	ad, _ := h.seed(t, domain.AdStatusProcessing, domain.MediaTypeImage, 1, 3)

	require.NoError(t, h.svc.HandleCallback(context.Background(), CallbackPayload{
		AdID:      ad.ID,
		ImageURLs: []string{" https://cdn.test/x.png ", ""},
	}))

	stored, _ := h.ads.Get(context.Background(), ad.ID)
	require.Equal(t, domain.AdStatusCompleted, stored.Status)
	require.Equal(t, domain.MediaTypeImage, stored.MediaType)
	require.Equal(t, []string{"https://cdn.test/x.png"}, stored.ImageURLs)
}

func TestCallbackBeforeProcessingIsIgnored(t *testing.T) {
	h := newHarness(10)
	ad, _ := h.seed(t, domain.AdStatusPending, domain.MediaTypeImage, 1, 3)

	require.NoError(t, h.svc.HandleCallback(context.Background(), CallbackPayload{
		AdID:      ad.ID,
		Status:    "COMPLETED",
		ImageURLs: []string{"https://cdn.test/x.png"},
	}))

	stored, _ := h.ads.Get(context.Background(), ad.ID)
	require.Equal(t, domain.AdStatusPending, stored.Status)
}

func TestPickResults(t *testing.T) {
	kind, urls := pickResults(CallbackPayload{VideoURLs: []string{"v"}}, domain.MediaTypeImage)
	require.Equal(t, domain.MediaTypeVideo, kind)
	require.Equal(t, []string{"v"}, urls)

	kind, urls = pickResults(CallbackPayload{MediaType: "image", ImageURLs: []string{"i"}, VideoURLs: []string{"v"}}, domain.MediaTypeVideo)
	require.Equal(t, domain.MediaTypeImage, kind)
	require.Equal(t, []string{"i"}, urls)

	kind, urls = pickResults(CallbackPayload{}, domain.MediaTypeVideo)
	require.Equal(t, domain.MediaTypeVideo, kind)
	require.Empty(t, urls)
}

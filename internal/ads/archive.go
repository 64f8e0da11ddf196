package ads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/storage"
)

const (
	defaultArchiveRetryDelay = 2 * time.Second
	archiveTimeout           = 5 * time.Minute
	maxArchiveBytes          = 200 << 20
)

// Archiver copies externally hosted results into system storage after a
// synchronous completion. It never changes an ad's status.
type Archiver struct {
	svc        *Service
	store      storage.Store
	client     *http.Client
	retryDelay time.Duration
}

func NewArchiver(svc *Service, store storage.Store, client *http.Client) *Archiver {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Archiver{svc: svc, store: store, client: client, retryDelay: defaultArchiveRetryDelay}
}

// WithRetryDelay overrides the wait before the single batch retry.
func (a *Archiver) WithRetryDelay(d time.Duration) *Archiver {
	a.retryDelay = d
	return a
}

// Schedule archives ad in the background.
func (a *Archiver) Schedule(ctx context.Context, ad *domain.Ad) {
	snapshot := ad.Clone()
	a.svc.goBackground(ctx, archiveTimeout, "archive", func(bctx context.Context) {
		a.Archive(bctx, snapshot)
	})
}

// Archive uploads every result URL. If all variants fail the batch is retried
// once; if that fails too the external URLs stay in place.
func (a *Archiver) Archive(ctx context.Context, ad *domain.Ad) {
	log := a.svc.Logger.With().Str("ad_id", ad.ID).Logger()
	sources := ad.ResultURLs()
	if len(sources) == 0 {
		return
	}

	urls, ids := a.attempt(ctx, ad, sources)
	if len(ids) == 0 {
		log.Warn().Dur("retry_in", a.retryDelay).Msg("archive: every variant failed, retrying batch")
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.retryDelay):
		}
		urls, ids = a.attempt(ctx, ad, sources)
	}
	if len(ids) == 0 {
		log.Warn().Msg("archive: giving up, keeping provider urls")
		return
	}

	ok, err := a.svc.Ads.ReplaceResults(ctx, ad.ID, urls, ids)
	if err != nil || !ok {
		if err != nil {
			log.Error().Err(err).Msg("archive: store archived urls failed")
		} else {
			log.Info().Msg("archive: ad changed meanwhile, discarding copies")
		}
		for _, id := range ids {
			if delErr := a.store.Delete(ctx, id); delErr != nil {
				log.Warn().Err(delErr).Str("object_id", id).Msg("archive: cleanup failed")
			}
		}
		return
	}
	log.Info().Int("archived", len(ids)).Int("total", len(sources)).Msg("archive: results moved to storage")
}

// attempt returns the result list with archived URLs substituted where the
// upload worked, plus the ids of the stored objects.
func (a *Archiver) attempt(ctx context.Context, ad *domain.Ad, sources []string) ([]string, []string) {
	uploaded := make([]storage.Object, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			obj, err := a.copyOne(gctx, ad, i, src)
			if err != nil {
				a.svc.Logger.Warn().Err(err).Str("ad_id", ad.ID).Int("variant", i).Msg("archive: variant failed")
				return nil
			}
			uploaded[i] = obj
			return nil
		})
	}
	_ = g.Wait()

	urls := make([]string, len(sources))
	var ids []string
	for i, src := range sources {
		if uploaded[i].ID == "" {
			urls[i] = src
			continue
		}
		urls[i] = uploaded[i].URL
		ids = append(ids, uploaded[i].ID)
	}
	return urls, ids
}

func (a *Archiver) copyOne(ctx context.Context, ad *domain.Ad, index int, src string) (storage.Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return storage.Object{}, fmt.Errorf("create download request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return storage.Object{}, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return storage.Object{}, fmt.Errorf("download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveBytes+1))
	if err != nil {
		return storage.Object{}, fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return storage.Object{}, errors.New("empty body")
	}
	if len(data) > maxArchiveBytes {
		return storage.Object{}, errors.New("media too large")
	}

	resource := "image"
	if ad.MediaType == domain.MediaTypeVideo {
		resource = "video"
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return a.store.Upload(ctx, data, storage.UploadOptions{
		Folder:       "ads/" + ad.ID,
		PublicID:     fmt.Sprintf("variant-%d", index),
		ResourceType: resource,
		ContentType:  contentType,
	})
}

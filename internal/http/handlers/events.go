package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/events"
)

const streamBuffer = 16

var errSlowConsumer = errors.New("event stream buffer full")

// AdEvents handles GET /ads/{id}/events as a server-sent event stream. The
// first event is always CONNECTED; a terminal ad also gets its final state
// right away since nothing else will be published for it. The subscription
// is taken before the ad is read so a transition in between is not lost.
func (a *App) AdEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	queue := make(chan events.Event, streamBuffer)
	unsubscribe := a.Events.Subscribe(id, func(ev events.Event) error {
		select {
		case queue <- ev:
			return nil
		default:
			return errSlowConsumer
		}
	})
	defer unsubscribe()

	ad, err := a.Ads.Get(ctx, a.currentUserID(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := a.Logger.With().Str("ad_id", id).Logger()
	send := func(ev events.Event) bool {
		if err := writeEvent(w, ev); err != nil {
			log.Debug().Err(err).Msg("sse: write failed, closing stream")
			return false
		}
		if err := rc.Flush(); err != nil {
			log.Debug().Err(err).Msg("sse: flush failed, closing stream")
			return false
		}
		return true
	}

	if !send(events.Connected(id)) {
		return
	}
	if ad.Status.IsTerminal() && !send(events.FromAd(ad)) {
		return
	}

	heartbeat := a.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-queue:
			if !send(ev) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

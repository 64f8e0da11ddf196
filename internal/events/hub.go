// Package events fans ad state changes out to live client streams.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
)

// StatusConnected is the acknowledgement sent when a stream opens.
const StatusConnected = "CONNECTED"

// Event is one message on an ad's stream.
type Event struct {
	AdID      string    `json:"adId"`
	Status    string    `json:"status"`
	MediaType string    `json:"mediaType,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	ImageURLs []string  `json:"imageUrls,omitempty"`
	VideoURL  string    `json:"videoUrl,omitempty"`
	VideoURLs []string  `json:"videoUrls,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Connected builds the first event of every stream.
func Connected(adID string) Event {
	return Event{AdID: adID, Status: StatusConnected, At: time.Now().UTC()}
}

// FromAd snapshots ad into an event.
func FromAd(ad *domain.Ad) Event {
	ev := Event{
		AdID:      ad.ID,
		Status:    string(ad.Status),
		MediaType: string(ad.MediaType),
		Error:     ad.ErrorMessage,
		At:        time.Now().UTC(),
	}
	if ad.MediaType == domain.MediaTypeVideo {
		ev.VideoURL = ad.VideoURL
		ev.VideoURLs = append([]string(nil), ad.VideoURLs...)
	} else {
		ev.ImageURL = ad.ImageURL
		ev.ImageURLs = append([]string(nil), ad.ImageURLs...)
	}
	return ev
}

// Sink receives events for one client connection.
type Sink func(Event) error

// Broadcaster is the per-ad publish/subscribe seam. The in-process Hub serves
// a single instance; PgRelay spans processes sharing one database.
type Broadcaster interface {
	// Subscribe registers sink for adID. The returned func removes exactly
	// that sink and is safe to call more than once.
	Subscribe(adID string, sink Sink) (unsubscribe func())
	Publish(ctx context.Context, adID string, ev Event)
}

// Hub is a mutex-guarded in-memory registry of sinks keyed by ad id.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]Sink
	nextID uint64
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{subs: make(map[string]map[uint64]Sink), logger: logger}
}

func (h *Hub) Subscribe(adID string, sink Sink) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	set, ok := h.subs[adID]
	if !ok {
		set = make(map[uint64]Sink)
		h.subs[adID] = set
	}
	set[id] = sink
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[adID]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(h.subs, adID)
				}
			}
		})
	}
}

// Publish delivers ev to every sink registered for adID. A failing or
// panicking sink does not affect the others.
func (h *Hub) Publish(_ context.Context, adID string, ev Event) {
	h.mu.RLock()
	sinks := make([]Sink, 0, len(h.subs[adID]))
	for _, sink := range h.subs[adID] {
		sinks = append(sinks, sink)
	}
	h.mu.RUnlock()

	for _, sink := range sinks {
		if err := deliver(sink, ev); err != nil {
			h.logger.Warn().Err(err).Str("ad_id", adID).Msg("events: sink write failed")
		}
	}
}

// Subscribers returns the number of sinks registered for adID.
func (h *Hub) Subscribers(adID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[adID])
}

func deliver(sink Sink, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return sink(ev)
}

var _ Broadcaster = (*Hub)(nil)

package domain

import (
	"strings"
	"time"
)

// AdStatus enumerates the ad lifecycle states.
type AdStatus string

const (
	AdStatusPending    AdStatus = "PENDING"
	AdStatusProcessing AdStatus = "PROCESSING"
	AdStatusCompleted  AdStatus = "COMPLETED"
	AdStatusFailed     AdStatus = "FAILED"
	AdStatusCancelled  AdStatus = "CANCELLED"
)

// IsTerminal reports whether no further automatic transition may happen.
func (s AdStatus) IsTerminal() bool {
	switch s {
	case AdStatusCompleted, AdStatusFailed, AdStatusCancelled:
		return true
	default:
		return false
	}
}

// ActiveStatuses are the statuses a user may still cancel from.
var ActiveStatuses = []AdStatus{AdStatusPending, AdStatusProcessing}

// CanTransition reports whether from -> to is an edge of the ad lifecycle.
// PROCESSING -> PROCESSING is accepted so re-delivered jobs stay idempotent.
func CanTransition(from, to AdStatus) bool {
	switch from {
	case AdStatusPending:
		return to == AdStatusProcessing || to == AdStatusCancelled
	case AdStatusProcessing:
		switch to {
		case AdStatusProcessing, AdStatusCompleted, AdStatusFailed, AdStatusCancelled:
			return true
		}
	}
	return false
}

// MediaType is the kind of media an ad produces.
type MediaType string

const (
	MediaTypeImage MediaType = "IMAGE"
	MediaTypeVideo MediaType = "VIDEO"
)

// ParseMediaType normalizes free-form input. Unknown values report false.
func ParseMediaType(v string) (MediaType, bool) {
	switch MediaType(strings.ToUpper(strings.TrimSpace(v))) {
	case MediaTypeImage:
		return MediaTypeImage, true
	case MediaTypeVideo:
		return MediaTypeVideo, true
	default:
		return "", false
	}
}

// Ad is one generation request and its outcome.
type Ad struct {
	ID              string
	UserID          string
	Status          AdStatus
	MediaType       MediaType
	Prompt          string
	AspectRatio     string
	Variants        int
	DurationSeconds int
	ProductID       string
	TemplateID      string
	Provider        string

	ImageURL  string
	ImageURLs []string
	VideoURL  string
	VideoURLs []string
	// StorageIDs are the system-owned object ids written by archival.
	StorageIDs []string

	ErrorMessage string
	FailedAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResultURLs returns the full result list for the ad's media type.
func (a *Ad) ResultURLs() []string {
	if a.MediaType == MediaTypeVideo {
		return a.VideoURLs
	}
	return a.ImageURLs
}

// PrimaryURL returns the first result for the ad's media type.
func (a *Ad) PrimaryURL() string {
	if a.MediaType == MediaTypeVideo {
		return a.VideoURL
	}
	return a.ImageURL
}

// SetResults stores urls as the primary + full list for the ad's media type.
func (a *Ad) SetResults(urls []string) {
	list := append([]string(nil), urls...)
	primary := ""
	if len(list) > 0 {
		primary = list[0]
	}
	if a.MediaType == MediaTypeVideo {
		a.VideoURL = primary
		a.VideoURLs = list
		return
	}
	a.ImageURL = primary
	a.ImageURLs = list
}

// MarkCompleted moves the ad to COMPLETED with the given results.
func (a *Ad) MarkCompleted(urls []string) {
	a.SetResults(urls)
	a.Status = AdStatusCompleted
	a.ErrorMessage = ""
	a.FailedAt = nil
}

// MarkFailed moves the ad to FAILED with the error text and timestamp.
func (a *Ad) MarkFailed(message string, at time.Time) {
	if strings.TrimSpace(message) == "" {
		message = DefaultFailureMessage
	}
	failedAt := at.UTC()
	a.Status = AdStatusFailed
	a.ErrorMessage = message
	a.FailedAt = &failedAt
}

// DefaultFailureMessage is stored when a failure arrives without details.
const DefaultFailureMessage = "Ad generation failed"

// Clone returns a deep copy safe to hand to another goroutine.
func (a *Ad) Clone() *Ad {
	if a == nil {
		return nil
	}
	cp := *a
	cp.ImageURLs = append([]string(nil), a.ImageURLs...)
	cp.VideoURLs = append([]string(nil), a.VideoURLs...)
	cp.StorageIDs = append([]string(nil), a.StorageIDs...)
	if a.FailedAt != nil {
		t := *a.FailedAt
		cp.FailedAt = &t
	}
	return &cp
}

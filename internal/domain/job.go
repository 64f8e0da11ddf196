package domain

// JobTypeGenerateAd is the queue job type carrying a GenerationJob.
const JobTypeGenerateAd = "generate-ad"

// GenerationJob is the queued work item for one ad. It carries the fully
// resolved payload so the worker never has to re-read products or templates.
type GenerationJob struct {
	AdID              string    `json:"adId"`
	UserID            string    `json:"userId"`
	Prompt            string    `json:"prompt"`
	UserInstructions  string    `json:"userInstructions,omitempty"`
	AspectRatio       string    `json:"aspectRatio"`
	Variants          int       `json:"variants"`
	Style             string    `json:"style,omitempty"`
	Colors            []string  `json:"colors,omitempty"`
	MediaType         MediaType `json:"mediaType"`
	DurationSeconds   int       `json:"durationSeconds,omitempty"`
	ProductImageURLs  []string  `json:"productImageUrls,omitempty"`
	ReferenceImageURL string    `json:"referenceImageUrl,omitempty"`
	Locale            string    `json:"locale,omitempty"`
}

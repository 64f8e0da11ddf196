package domain

import "context"

// AdRepository persists ads.
type AdRepository interface {
	Create(ctx context.Context, ad *Ad) error
	Get(ctx context.Context, id string) (*Ad, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Ad, error)
	Delete(ctx context.Context, id string) error

	// Transition re-reads the ad under a row lock and, when its status is one
	// of from, applies mutate and persists the result in the same atomic step.
	// It returns the ad as stored afterwards and whether mutate was applied.
	// The mutated status must be a valid lifecycle edge.
	Transition(ctx context.Context, id string, from []AdStatus, mutate func(*Ad)) (*Ad, bool, error)

	// ReplaceResults swaps the result URLs of a COMPLETED ad for archived
	// copies. It reports false when the ad is no longer COMPLETED.
	ReplaceResults(ctx context.Context, id string, urls, storageIDs []string) (bool, error)

	// Override forces a status regardless of the lifecycle. Operator use only.
	Override(ctx context.Context, id string, status AdStatus, message string) (*Ad, error)
}

// CreditLedger is the billing collaborator.
type CreditLedger interface {
	Balance(ctx context.Context, userID string) (int, error)
	// Deduct fails with ErrInsufficientCredits when the balance is too low.
	Deduct(ctx context.Context, userID string, amount int, reason string) error
	Add(ctx context.Context, userID string, amount int, reason string) error
}

// Product is the subset of a store product the prompt builder needs.
type Product struct {
	ID          string
	UserID      string
	Name        string
	Description string
	Brand       string
	Category    string
	Price       string
	ImageURLs   []string
}

// Template is an ad template with a prompt containing {{key}} tokens.
type Template struct {
	ID                string
	Name              string
	Prompt            string
	ReferenceImageURL string
	MediaType         MediaType
	AspectRatio       string
}

// CatalogRepository resolves products and templates referenced by a submission.
type CatalogRepository interface {
	GetProduct(ctx context.Context, userID, productID string) (*Product, error)
	GetTemplate(ctx context.Context, templateID string) (*Template, error)
}

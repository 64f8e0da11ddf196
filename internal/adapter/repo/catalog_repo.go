package repo

import (
	"context"
	"fmt"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/infra"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/sqlinline"
)

// CatalogRepositoryPG reads products and templates. Their CRUD lives elsewhere.
type CatalogRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewCatalogRepository(sql infra.SQLExecutor) *CatalogRepositoryPG {
	return &CatalogRepositoryPG{sql: sql}
}

// GetProduct returns the product only when it belongs to userID.
func (r *CatalogRepositoryPG) GetProduct(ctx context.Context, userID, productID string) (*domain.Product, error) {
	var p domain.Product
	err := r.sql.QueryRow(ctx, sqlinline.QSelectProduct, productID, userID).Scan(
		&p.ID, &p.UserID, &p.Name, &p.Description, &p.Brand, &p.Category, &p.Price, &p.ImageURLs,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}
	return &p, nil
}

func (r *CatalogRepositoryPG) GetTemplate(ctx context.Context, templateID string) (*domain.Template, error) {
	var (
		t         domain.Template
		mediaType string
	)
	err := r.sql.QueryRow(ctx, sqlinline.QSelectTemplate, templateID).Scan(
		&t.ID, &t.Name, &t.Prompt, &t.ReferenceImageURL, &mediaType, &t.AspectRatio,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select template: %w", err)
	}
	t.MediaType = domain.MediaType(mediaType)
	return &t, nil
}

var _ domain.CatalogRepository = (*CatalogRepositoryPG)(nil)

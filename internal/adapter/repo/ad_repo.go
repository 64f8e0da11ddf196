package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/infra"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/sqlinline"
)

// AdRepositoryPG implements domain.AdRepository on PostgreSQL.
type AdRepositoryPG struct {
	sql infra.TxExecutor
}

// NewAdRepository creates an ad repository backed by the given executor.
func NewAdRepository(sql infra.TxExecutor) *AdRepositoryPG {
	return &AdRepositoryPG{sql: sql}
}

// Create inserts a new ad and fills in its timestamps.
func (r *AdRepositoryPG) Create(ctx context.Context, ad *domain.Ad) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertAd,
		ad.ID,
		ad.UserID,
		string(ad.Status),
		string(ad.MediaType),
		ad.Prompt,
		ad.AspectRatio,
		ad.Variants,
		ad.DurationSeconds,
		ad.ProductID,
		ad.TemplateID,
		ad.Provider,
	)
	if err := row.Scan(&ad.CreatedAt, &ad.UpdatedAt); err != nil {
		return fmt.Errorf("insert ad: %w", err)
	}
	return nil
}

// Get fetches an ad by id.
func (r *AdRepositoryPG) Get(ctx context.Context, id string) (*domain.Ad, error) {
	return getAd(ctx, r.sql, sqlinline.QSelectAd, id)
}

// ListByUser returns the caller's most recent ads.
func (r *AdRepositoryPG) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Ad, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListAdsByUser, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ads: %w", err)
	}
	defer rows.Close()

	var ads []domain.Ad
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ad: %w", err)
		}
		ads = append(ads, *ad)
	}
	return ads, rows.Err()
}

// Delete removes the ad regardless of status.
func (r *AdRepositoryPG) Delete(ctx context.Context, id string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteAd, id)
	if err != nil {
		return fmt.Errorf("delete ad: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Transition locks the row with SELECT ... FOR UPDATE so a cancellation and a
// concurrent callback cannot both observe the old status.
func (r *AdRepositoryPG) Transition(ctx context.Context, id string, from []domain.AdStatus, mutate func(*domain.Ad)) (*domain.Ad, bool, error) {
	var (
		result  *domain.Ad
		applied bool
	)
	err := r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		current, err := getAd(ctx, tx, sqlinline.QSelectAdForUpdate, id)
		if err != nil {
			return err
		}
		if !statusIn(current.Status, from) {
			result = current
			return nil
		}
		next := current.Clone()
		mutate(next)
		if !domain.CanTransition(current.Status, next.Status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, next.Status)
		}
		row := tx.QueryRow(ctx, sqlinline.QUpdateAdState,
			next.ID,
			string(next.Status),
			next.Prompt,
			next.AspectRatio,
			next.ImageURL,
			nonNil(next.ImageURLs),
			next.VideoURL,
			nonNil(next.VideoURLs),
			nonNil(next.StorageIDs),
			next.ErrorMessage,
			next.FailedAt,
			string(next.MediaType),
		)
		if err := row.Scan(&next.UpdatedAt); err != nil {
			return fmt.Errorf("update ad: %w", err)
		}
		result = next
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, applied, nil
}

// ReplaceResults swaps result URLs for archived copies on COMPLETED ads only.
func (r *AdRepositoryPG) ReplaceResults(ctx context.Context, id string, urls, storageIDs []string) (bool, error) {
	primary := ""
	if len(urls) > 0 {
		primary = urls[0]
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QReplaceAdResults, id, primary, nonNil(urls), nonNil(storageIDs))
	if err != nil {
		return false, fmt.Errorf("replace ad results: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Override forces the status without lifecycle checks.
func (r *AdRepositoryPG) Override(ctx context.Context, id string, status domain.AdStatus, message string) (*domain.Ad, error) {
	var updatedID string
	if err := r.sql.QueryRow(ctx, sqlinline.QOverrideAdStatus, id, string(status), message).Scan(&updatedID); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("override ad: %w", err)
	}
	return r.Get(ctx, updatedID)
}

func getAd(ctx context.Context, sql infra.SQLExecutor, query, id string) (*domain.Ad, error) {
	ad, err := scanAd(sql.QueryRow(ctx, query, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select ad: %w", err)
	}
	return ad, nil
}

func scanAd(row pgx.Row) (*domain.Ad, error) {
	var (
		ad        domain.Ad
		status    string
		mediaType string
		failedAt  *time.Time
	)
	if err := row.Scan(
		&ad.ID,
		&ad.UserID,
		&status,
		&mediaType,
		&ad.Prompt,
		&ad.AspectRatio,
		&ad.Variants,
		&ad.DurationSeconds,
		&ad.ProductID,
		&ad.TemplateID,
		&ad.Provider,
		&ad.ImageURL,
		&ad.ImageURLs,
		&ad.VideoURL,
		&ad.VideoURLs,
		&ad.StorageIDs,
		&ad.ErrorMessage,
		&failedAt,
		&ad.CreatedAt,
		&ad.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ad.Status = domain.AdStatus(status)
	ad.MediaType = domain.MediaType(mediaType)
	ad.FailedAt = failedAt
	return &ad, nil
}

func statusIn(status domain.AdStatus, set []domain.AdStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var _ domain.AdRepository = (*AdRepositoryPG)(nil)

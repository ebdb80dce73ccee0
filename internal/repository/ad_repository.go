package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"skymarket/internal/domain"
	"skymarket/internal/infrastructure/cache"
	"skymarket/internal/infrastructure/metrics"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const adColumns = "id, author_id, title, price, description, image, created_at, updated_at"

type AdRepository interface {
	Store[domain.Ad, domain.AdFilter]
	// Exists reports whether the ad is stored, reading the database and never the cache.
	Exists(ctx context.Context, id int64) (bool, error)
}

type mysqlAdRepository struct {
	db       *sql.DB
	cache    cache.Cache
	cacheTTL time.Duration
	metrics  *metrics.RepositoryMetrics
	tracer   trace.Tracer
}

func NewMysqlAdRepository(db *sql.DB, cache cache.Cache, cacheTTL time.Duration, metrics *metrics.RepositoryMetrics) AdRepository {
	tracer := otel.Tracer("skymarket/repository")
	return &mysqlAdRepository{
		db:       db,
		cache:    cache,
		cacheTTL: cacheTTL,
		metrics:  metrics,
		tracer:   tracer,
	}
}

func adCacheKey(id int64) string {
	return fmt.Sprintf("ad:%d", id)
}

func adWhere(f domain.AdFilter) *whereClause {
	w := &whereClause{}
	if f.Title != "" {
		w.add("title LIKE ? ESCAPE '!'", containsPattern(f.Title))
	}
	if f.PriceMin != nil {
		w.add("price >= ?", *f.PriceMin)
	}
	if f.PriceMax != nil {
		w.add("price <= ?", *f.PriceMax)
	}
	if f.AuthorID > 0 {
		w.add("author_id = ?", f.AuthorID)
	}
	return w
}

func scanAd(row rowScanner) (*domain.Ad, error) {
	var ad domain.Ad
	var image sql.NullString
	if err := row.Scan(&ad.ID, &ad.AuthorID, &ad.Title, &ad.Price, &ad.Description, &image, &ad.CreatedAt, &ad.UpdatedAt); err != nil {
		return nil, err
	}
	ad.Image = image.String
	return &ad, nil
}

func (r *mysqlAdRepository) List(ctx context.Context, filter domain.AdFilter, limit, offset int) ([]*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository ListAds")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { observeQuery(r.metrics, "ListAds", status, startTime) }()

	where := adWhere(filter)
	page, pageArgs := limitClause(limit, offset)
	query := "SELECT " + adColumns + " FROM ads" + where.String() + " ORDER BY id ASC" + page

	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	rows, err := r.db.QueryContext(ctx, query, append(where.args, pageArgs...)...)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to retrieve ads: %w", err)
	}
	defer rows.Close()

	ads := []*domain.Ad{}
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			status = "error"
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan ad: %w", err)
		}
		ads = append(ads, ad)
	}

	if err := rows.Err(); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ads, nil
}

func (r *mysqlAdRepository) Count(ctx context.Context, filter domain.AdFilter) (int, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CountAds")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { observeQuery(r.metrics, "CountAds", status, startTime) }()

	where := adWhere(filter)

	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ads"+where.String(), where.args...).Scan(&count); err != nil {
		status = "error"
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count ads: %w", err)
	}
	return count, nil
}

// Get reads through the cache. Only the AuthorID part of filter scopes the lookup.
func (r *mysqlAdRepository) Get(ctx context.Context, filter domain.AdFilter, id int64) (*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetAd")
	defer span.End()

	span.SetAttributes(attribute.Int64("ad.id", id))

	startTime := time.Now()
	status := "success"
	defer func() { observeQuery(r.metrics, "GetAd", status, startTime) }()

	ad, err := r.cachedAd(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
		} else {
			status = "error"
			span.RecordError(err)
		}
		return nil, err
	}

	if filter.AuthorID > 0 && ad.AuthorID != filter.AuthorID {
		status = "not_found"
		return nil, sql.ErrNoRows
	}

	return ad, nil
}

func (r *mysqlAdRepository) Exists(ctx context.Context, id int64) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "Repository AdExists")
	defer span.End()

	span.SetAttributes(attribute.Int64("ad.id", id))

	startTime := time.Now()
	status := "success"
	defer func() { observeQuery(r.metrics, "AdExists", status, startTime) }()

	var found int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM ads WHERE id = ?", id).Scan(&found)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		status = "not_found"
		return false, nil
	case err != nil:
		status = "error"
		span.RecordError(err)
		return false, fmt.Errorf("failed to check ad: %w", err)
	}
	return true, nil
}

func (r *mysqlAdRepository) cachedAd(ctx context.Context, id int64) (*domain.Ad, error) {
	cacheKey := adCacheKey(id)

	cacheSpanCtx, cacheSpan := r.tracer.Start(ctx, "Redis Get")
	cachedAd, err := r.cache.Get(cacheSpanCtx, cacheKey)
	cacheSpan.End()

	if err == nil {
		var ad domain.Ad
		if err := json.Unmarshal([]byte(cachedAd), &ad); err == nil {
			r.metrics.CacheResults.WithLabelValues("hit").Inc()
			return &ad, nil
		}
	}
	r.metrics.CacheResults.WithLabelValues("miss").Inc()

	ad, err := r.selectAd(ctx, id)
	if err != nil {
		return nil, err
	}

	r.storeInCache(ctx, ad)
	return ad, nil
}

func (r *mysqlAdRepository) selectAd(ctx context.Context, id int64) (*domain.Ad, error) {
	return scanAd(r.db.QueryRowContext(ctx, "SELECT "+adColumns+" FROM ads WHERE id = ?", id))
}

func (r *mysqlAdRepository) storeInCache(ctx context.Context, ad *domain.Ad) {
	adJSON, err := json.Marshal(ad)
	if err != nil {
		return
	}
	cacheSpanCtx, cacheSpan := r.tracer.Start(ctx, "Redis Set")
	r.cache.Set(cacheSpanCtx, adCacheKey(ad.ID), string(adJSON), r.cacheTTL)
	cacheSpan.End()
}

func (r *mysqlAdRepository) invalidate(ctx context.Context, id int64) {
	cacheSpanCtx, cacheSpan := r.tracer.Start(ctx, "Redis Delete")
	r.cache.Delete(cacheSpanCtx, adCacheKey(id))
	cacheSpan.End()
}

func (r *mysqlAdRepository) Create(ctx context.Context, ad *domain.Ad) (*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CreateAd")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("ad.author_id", ad.AuthorID),
		attribute.String("ad.title", ad.Title),
		attribute.String("ad.price", ad.Price.String()),
	)

	startTime := time.Now()
	status := "success"
	defer func() { observeQuery(r.metrics, "CreateAd", status, startTime) }()

	ts := now()
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO ads (author_id, title, price, description, image, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		ad.AuthorID, ad.Title, ad.Price, ad.Description, nullString(ad.Image), ts, ts)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert ad: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	insertedAd, err := r.selectAd(ctx, id)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch inserted ad: %w", err)
	}

	return insertedAd, nil
}

// Update persists the mutable fields of ad. The author is never rewritten.
func (r *mysqlAdRepository) Update(ctx context.Context, ad *domain.Ad) (*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository UpdateAd")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("ad.id", ad.ID),
		attribute.String("ad.title", ad.Title),
		attribute.String("ad.price", ad.Price.String()),
	)

	startTime := time.Now()
	status := "success"
	defer func() { observeQuery(r.metrics, "UpdateAd", status, startTime) }()

	query := `
		UPDATE ads
		SET title = ?, price = ?, description = ?, image = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, ad.Title, ad.Price, ad.Description, nullString(ad.Image), now(), ad.ID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update ad: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to retrieve rows affected: %w", err)
	}

	if rowsAffected == 0 {
		status = "not_found"
		return nil, sql.ErrNoRows
	}

	r.invalidate(ctx, ad.ID)

	updatedAd, err := r.selectAd(ctx, ad.ID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch updated ad: %w", err)
	}

	r.storeInCache(ctx, updatedAd)

	return updatedAd, nil
}

// Delete removes the ad together with its comments.
func (r *mysqlAdRepository) Delete(ctx context.Context, filter domain.AdFilter, id int64) error {
	ctx, span := r.tracer.Start(ctx, "Repository DeleteAd")
	defer span.End()

	span.SetAttributes(attribute.Int64("ad.id", id))

	startTime := time.Now()
	status := "success"
	defer func() { observeQuery(r.metrics, "DeleteAd", status, startTime) }()

	r.invalidate(ctx, id)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM comments WHERE ad_id = ?", id); err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to delete ad comments: %w", err)
	}

	where := &whereClause{}
	where.add("id = ?", id)
	if filter.AuthorID > 0 {
		where.add("author_id = ?", filter.AuthorID)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM ads"+where.String(), where.args...)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to delete ad: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to retrieve rows affected: %w", err)
	}

	if rowsAffected == 0 {
		status = "not_found"
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to commit ad deletion: %w", err)
	}

	r.invalidate(ctx, id)

	return nil
}

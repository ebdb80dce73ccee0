package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"skymarket/internal/domain"
	"skymarket/internal/infrastructure/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const commentColumns = "id, author_id, ad_id, text, created_at, updated_at"

type CommentRepository interface {
	Store[domain.Comment, domain.CommentFilter]
}

type mysqlCommentRepository struct {
	db      *sql.DB
	metrics *metrics.RepositoryMetrics
	tracer  trace.Tracer
}

func NewMysqlCommentRepository(db *sql.DB, metrics *metrics.RepositoryMetrics) CommentRepository {
	return &mysqlCommentRepository{
		db:      db,
		metrics: metrics,
		tracer:  otel.Tracer("skymarket/repository"),
	}
}

func commentWhere(f domain.CommentFilter) *whereClause {
	w := &whereClause{}
	if f.AdID > 0 {
		w.add("ad_id = ?", f.AdID)
	}
	return w
}

func scanComment(row rowScanner) (*domain.Comment, error) {
	var c domain.Comment
	if err := row.Scan(&c.ID, &c.AuthorID, &c.AdID, &c.Text, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *mysqlCommentRepository) List(ctx context.Context, filter domain.CommentFilter, limit, offset int) ([]*domain.Comment, error) {
	ctx, span := r.tracer.Start(ctx, "Repository ListComments")
	defer span.End()

	span.SetAttributes(attribute.Int64("comment.ad_id", filter.AdID))

	startTime := time.Now()
	status := "success"
	defer func() { observeQuery(r.metrics, "ListComments", status, startTime) }()

	where := commentWhere(filter)
	page, pageArgs := limitClause(limit, offset)
	query := "SELECT " + commentColumns + " FROM comments" + where.String() + " ORDER BY id ASC" + page

	rows, err := r.db.QueryContext(ctx, query, append(where.args, pageArgs...)...)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to retrieve comments: %w", err)
	}
	defer rows.Close()

	comments := []*domain.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			status = "error"
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}

	if err := rows.Err(); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return comments, nil
}

func (r *mysqlCommentRepository) Count(ctx context.Context, filter domain.CommentFilter) (int, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CountComments")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { observeQuery(r.metrics, "CountComments", status, startTime) }()

	where := commentWhere(filter)

	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM comments"+where.String(), where.args...).Scan(&count); err != nil {
		status = "error"
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return count, nil
}

func (r *mysqlCommentRepository) Get(ctx context.Context, filter domain.CommentFilter, id int64) (*domain.Comment, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetComment")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("comment.id", id),
		attribute.Int64("comment.ad_id", filter.AdID),
	)

	startTime := time.Now()
	status := "success"
	defer func() { observeQuery(r.metrics, "GetComment", status, startTime) }()

	where := commentWhere(filter)
	where.add("id = ?", id)

	c, err := scanComment(r.db.QueryRowContext(ctx, "SELECT "+commentColumns+" FROM comments"+where.String(), where.args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, err
		}
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}

	return c, nil
}

func (r *mysqlCommentRepository) Create(ctx context.Context, c *domain.Comment) (*domain.Comment, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CreateComment")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("comment.ad_id", c.AdID),
		attribute.Int64("comment.author_id", c.AuthorID),
	)

	startTime := time.Now()
	status := "success"
	defer func() { observeQuery(r.metrics, "CreateComment", status, startTime) }()

	ts := now()
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO comments (author_id, ad_id, text, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		c.AuthorID, c.AdID, c.Text, ts, ts)
	if isMissingParent(err) {
		status = "not_found"
		return nil, sql.ErrNoRows
	}
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	inserted, err := scanComment(r.db.QueryRowContext(ctx, "SELECT "+commentColumns+" FROM comments WHERE id = ?", id))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch inserted comment: %w", err)
	}

	return inserted, nil
}

// Update rewrites the text of a comment that still belongs to c.AdID.
func (r *mysqlCommentRepository) Update(ctx context.Context, c *domain.Comment) (*domain.Comment, error) {
	ctx, span := r.tracer.Start(ctx, "Repository UpdateComment")
	defer span.End()

	span.SetAttributes(attribute.Int64("comment.id", c.ID))

	startTime := time.Now()
	status := "success"
	defer func() { observeQuery(r.metrics, "UpdateComment", status, startTime) }()

	result, err := r.db.ExecContext(ctx,
		"UPDATE comments SET text = ?, updated_at = ? WHERE id = ? AND ad_id = ?",
		c.Text, now(), c.ID, c.AdID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update comment: %w", err)
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

	updated, err := scanComment(r.db.QueryRowContext(ctx, "SELECT "+commentColumns+" FROM comments WHERE id = ?", c.ID))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch updated comment: %w", err)
	}

	return updated, nil
}

func (r *mysqlCommentRepository) Delete(ctx context.Context, filter domain.CommentFilter, id int64) error {
	ctx, span := r.tracer.Start(ctx, "Repository DeleteComment")
	defer span.End()

	span.SetAttributes(attribute.Int64("comment.id", id))

	startTime := time.Now()
	status := "success"
	defer func() { observeQuery(r.metrics, "DeleteComment", status, startTime) }()

	where := commentWhere(filter)
	where.add("id = ?", id)

	result, err := r.db.ExecContext(ctx, "DELETE FROM comments"+where.String(), where.args...)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to delete comment: %w", err)
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

	return nil
}

package service

import (
	"context"
	"time"

	"skymarket/internal/domain"
	"skymarket/internal/infrastructure/metrics"
	"skymarket/internal/permission"
	"skymarket/internal/repository"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CommentService manages comments of a single ad. Every operation is scoped
// to adID; a comment of another ad behaves as missing.
type CommentService interface {
	Authorize(ctx context.Context, caller domain.Caller, action permission.Action) error
	ListComments(ctx context.Context, caller domain.Caller, adID int64) ([]*domain.Comment, error)
	GetComment(ctx context.Context, caller domain.Caller, adID, id int64) (*domain.Comment, error)
	CreateComment(ctx context.Context, caller domain.Caller, adID int64, input domain.CommentInput) (*domain.Comment, error)
	UpdateComment(ctx context.Context, caller domain.Caller, adID, id int64, input domain.CommentInput, partial bool) (*domain.Comment, error)
	DeleteComment(ctx context.Context, caller domain.Caller, adID, id int64) error
}

type commentService struct {
	crud    crud[domain.Comment, domain.CommentInput, domain.CommentFilter]
	ads     repository.AdRepository
	metrics *metrics.ServiceMetrics
	tracer  trace.Tracer
}

func NewCommentService(comments repository.CommentRepository, ads repository.AdRepository, policy *permission.Policy, metrics *metrics.ServiceMetrics) CommentService {
	tracer := otel.Tracer("skymarket/service")
	return &commentService{
		crud: crud[domain.Comment, domain.CommentInput, domain.CommentFilter]{
			resource: "comment",
			store:    comments,
			policy:   policy,
			metrics:  metrics,
		},
		ads:     ads,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (s *commentService) Authorize(ctx context.Context, caller domain.Caller, action permission.Action) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthorizeComment")
	defer span.End()

	startTime := time.Now()
	defer func() { observe(s.metrics, "AuthorizeComment", err, startTime) }()

	span.SetAttributes(attribute.String("permission.action", string(action)))

	return s.crud.authorize(ctx, action, caller, nil)
}

func (s *commentService) ListComments(ctx context.Context, caller domain.Caller, adID int64) (comments []*domain.Comment, err error) {
	ctx, span := s.tracer.Start(ctx, "ListComments")
	defer span.End()

	startTime := time.Now()
	defer func() {
		recordError(span, err)
		observe(s.metrics, "ListComments", err, startTime)
	}()

	span.SetAttributes(attribute.Int64("comment.ad_id", adID))

	page, err := s.crud.list(ctx, permission.ActionList, caller, domain.CommentFilter{AdID: adID}, 1, 0)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (s *commentService) GetComment(ctx context.Context, caller domain.Caller, adID, id int64) (comment *domain.Comment, err error) {
	ctx, span := s.tracer.Start(ctx, "GetComment")
	defer span.End()

	startTime := time.Now()
	defer func() {
		recordError(span, err)
		observe(s.metrics, "GetComment", err, startTime)
	}()

	span.SetAttributes(
		attribute.Int64("comment.id", id),
		attribute.Int64("comment.ad_id", adID),
	)

	return s.crud.lookup(ctx, permission.ActionRetrieve, caller, domain.CommentFilter{AdID: adID}, id)
}

// CreateComment attaches a comment by the caller to an existing ad. A missing
// ad is reported as not found and nothing is written.
func (s *commentService) CreateComment(ctx context.Context, caller domain.Caller, adID int64, input domain.CommentInput) (comment *domain.Comment, err error) {
	ctx, span := s.tracer.Start(ctx, "CreateComment")
	defer span.End()

	startTime := time.Now()
	defer func() {
		recordError(span, err)
		observe(s.metrics, "CreateComment", err, startTime)
	}()

	span.SetAttributes(
		attribute.Int64("comment.ad_id", adID),
		attribute.Int64("comment.author_id", caller.ID),
	)

	return s.crud.create(ctx, caller, input, func(ctx context.Context, c *domain.Comment) error {
		exists, err := s.ads.Exists(ctx, adID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		c.AdID = adID
		c.AuthorID = caller.ID
		return nil
	})
}

func (s *commentService) UpdateComment(ctx context.Context, caller domain.Caller, adID, id int64, input domain.CommentInput, partial bool) (comment *domain.Comment, err error) {
	ctx, span := s.tracer.Start(ctx, "UpdateComment")
	defer span.End()

	startTime := time.Now()
	defer func() {
		recordError(span, err)
		observe(s.metrics, "UpdateComment", err, startTime)
	}()

	span.SetAttributes(
		attribute.Int64("comment.id", id),
		attribute.Int64("comment.ad_id", adID),
		attribute.Bool("comment.partial", partial),
	)

	return s.crud.update(ctx, caller, domain.CommentFilter{AdID: adID}, id, input, partial)
}

func (s *commentService) DeleteComment(ctx context.Context, caller domain.Caller, adID, id int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "DeleteComment")
	defer span.End()

	startTime := time.Now()
	defer func() {
		recordError(span, err)
		observe(s.metrics, "DeleteComment", err, startTime)
	}()

	span.SetAttributes(
		attribute.Int64("comment.id", id),
		attribute.Int64("comment.ad_id", adID),
	)

	return s.crud.destroy(ctx, caller, domain.CommentFilter{AdID: adID}, id)
}

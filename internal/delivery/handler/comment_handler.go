package handler

import (
	"net/http"
	"time"

	"skymarket/internal/domain"
	"skymarket/internal/infrastructure/auth"
	"skymarket/internal/infrastructure/metrics"
	"skymarket/internal/permission"
	"skymarket/internal/service"
	"skymarket/pkg/logger"
	"skymarket/pkg/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	commentsEndpoint = "/ads/{id}/comments"
	commentEndpoint  = "/ads/{id}/comments/{comment_id}"
)

type CommentHandler struct {
	base
	service service.CommentService
}

func NewCommentHandler(service service.CommentService, logger *logger.Loggers, metrics *metrics.HandlerMetrics) *CommentHandler {
	tracer := otel.Tracer("skymarket/handler")
	return &CommentHandler{
		base:    base{logger: logger, metrics: metrics, tracer: tracer},
		service: service,
	}
}

func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListComments")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { h.observe(http.MethodGet, commentsEndpoint, status, startTime) }()

	adID, err := pathID(r, "id")
	if err != nil {
		status = h.respondError(w, span, err, "list comments")
		return
	}

	span.SetAttributes(attribute.Int64("comment.ad_id", adID))

	comments, err := h.service.ListComments(ctx, auth.CallerFromContext(ctx), adID)
	if err != nil {
		status = h.respondError(w, span, err, "list comments")
		return
	}

	results := make([]commentResponse, len(comments))
	for i, c := range comments {
		results[i] = newCommentResponse(c)
	}
	utils.RespondWithJSON(w, http.StatusOK, results)
}

func (h *CommentHandler) GetComment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetComment")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { h.observe(http.MethodGet, commentEndpoint, status, startTime) }()

	adID, id, err := commentIDs(r)
	if err != nil {
		status = h.respondError(w, span, err, "get comment")
		return
	}

	span.SetAttributes(
		attribute.Int64("comment.id", id),
		attribute.Int64("comment.ad_id", adID),
	)

	comment, err := h.service.GetComment(ctx, auth.CallerFromContext(ctx), adID, id)
	if err != nil {
		status = h.respondError(w, span, err, "get comment")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, newCommentResponse(comment))
}

func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateComment")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { h.observe(http.MethodPost, commentsEndpoint, status, startTime) }()

	adID, err := pathID(r, "id")
	if err != nil {
		status = h.respondError(w, span, err, "create comment")
		return
	}

	span.SetAttributes(attribute.Int64("comment.ad_id", adID))

	caller := auth.CallerFromContext(ctx)
	if err := h.service.Authorize(ctx, caller, permission.ActionCreate); err != nil {
		status = h.respondError(w, span, err, "create comment")
		return
	}

	var input domain.CommentInput
	if err := decodeJSON(r, &input); err != nil {
		status = h.respondError(w, span, err, "create comment")
		return
	}

	comment, err := h.service.CreateComment(ctx, caller, adID, input)
	if err != nil {
		status = h.respondError(w, span, err, "create comment")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, newCommentResponse(comment))
}

func (h *CommentHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateComment")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { h.observe(r.Method, commentEndpoint, status, startTime) }()

	adID, id, err := commentIDs(r)
	if err != nil {
		status = h.respondError(w, span, err, "update comment")
		return
	}

	partial := r.Method == http.MethodPatch
	span.SetAttributes(
		attribute.Int64("comment.id", id),
		attribute.Int64("comment.ad_id", adID),
		attribute.Bool("comment.partial", partial),
	)

	caller := auth.CallerFromContext(ctx)
	if err := h.service.Authorize(ctx, caller, updateAction(partial)); err != nil {
		status = h.respondError(w, span, err, "update comment")
		return
	}

	var input domain.CommentInput
	if err := decodeJSON(r, &input); err != nil {
		status = h.respondError(w, span, err, "update comment")
		return
	}

	comment, err := h.service.UpdateComment(ctx, caller, adID, id, input, partial)
	if err != nil {
		status = h.respondError(w, span, err, "update comment")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, newCommentResponse(comment))
}

func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteComment")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { h.observe(http.MethodDelete, commentEndpoint, status, startTime) }()

	adID, id, err := commentIDs(r)
	if err != nil {
		status = h.respondError(w, span, err, "delete comment")
		return
	}

	span.SetAttributes(
		attribute.Int64("comment.id", id),
		attribute.Int64("comment.ad_id", adID),
	)

	if err := h.service.DeleteComment(ctx, auth.CallerFromContext(ctx), adID, id); err != nil {
		status = h.respondError(w, span, err, "delete comment")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func commentIDs(r *http.Request) (adID, id int64, err error) {
	if adID, err = pathID(r, "id"); err != nil {
		return 0, 0, err
	}
	if id, err = pathID(r, "comment_id"); err != nil {
		return 0, 0, err
	}
	return adID, id, nil
}

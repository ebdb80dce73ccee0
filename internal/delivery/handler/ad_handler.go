package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"skymarket/internal/domain"
	"skymarket/internal/infrastructure/auth"
	"skymarket/internal/infrastructure/metrics"
	"skymarket/internal/permission"
	"skymarket/internal/service"
	"skymarket/pkg/logger"
	"skymarket/pkg/utils"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type AdHandler struct {
	base
	service      service.AdService
	maxImageSize int64
}

func NewAdHandler(service service.AdService, logger *logger.Loggers, metrics *metrics.HandlerMetrics, maxImageSize int64) *AdHandler {
	tracer := otel.Tracer("skymarket/handler")
	return &AdHandler{
		base:         base{logger: logger, metrics: metrics, tracer: tracer},
		service:      service,
		maxImageSize: maxImageSize,
	}
}

// adFilter reads the title, price_min and price_max query parameters.
func adFilter(r *http.Request) (domain.AdFilter, error) {
	query := r.URL.Query()
	filter := domain.AdFilter{Title: query.Get("title")}

	fields := map[string]string{}
	for name, dst := range map[string]**decimal.Decimal{
		"price_min": &filter.PriceMin,
		"price_max": &filter.PriceMax,
	} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		value, err := decimal.NewFromString(raw)
		if err != nil {
			fields[name] = "must be a number"
			continue
		}
		*dst = &value
	}

	if len(fields) > 0 {
		return domain.AdFilter{}, &domain.ValidationError{Fields: fields}
	}
	return filter, nil
}

func (h *AdHandler) ListAds(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "ListAds", "/ads", permission.ActionList, h.service.ListAds)
}

func (h *AdHandler) ListMyAds(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "ListMyAds", "/ads/me", permission.ActionMe, h.service.ListMyAds)
}

type adLister func(ctx context.Context, caller domain.Caller, filter domain.AdFilter, page int) (*service.Page[domain.Ad], error)

// list checks action before it reads the filter and page parameters.
func (h *AdHandler) list(w http.ResponseWriter, r *http.Request, name, endpoint string, action permission.Action, fetch adLister) {
	ctx, span := h.tracer.Start(r.Context(), name)
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { h.observe(http.MethodGet, endpoint, status, startTime) }()

	caller := auth.CallerFromContext(ctx)
	if err := h.service.Authorize(ctx, caller, action); err != nil {
		status = h.respondError(w, span, err, "list ads")
		return
	}

	filter, err := adFilter(r)
	if err != nil {
		status = h.respondError(w, span, err, "list ads")
		return
	}

	page, err := pageParam(r)
	if err != nil {
		status = h.respondError(w, span, err, "list ads")
		return
	}

	span.SetAttributes(
		attribute.Int("ads.page", page),
		attribute.String("ads.title", filter.Title),
	)

	result, err := fetch(ctx, caller, filter, page)
	if err != nil {
		status = h.respondError(w, span, err, "list ads")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, newAdPage(result))
}

func (h *AdHandler) GetAd(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetAd")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { h.observe(http.MethodGet, "/ads/{id}", status, startTime) }()

	id, err := pathID(r, "id")
	if err != nil {
		status = h.respondError(w, span, err, "get ad")
		return
	}

	span.SetAttributes(attribute.Int64("ad.id", id))

	ad, err := h.service.GetAd(ctx, auth.CallerFromContext(ctx), id)
	if err != nil {
		status = h.respondError(w, span, err, "get ad")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, newAdDetail(ad))
}

func (h *AdHandler) CreateAd(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateAd")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { h.observe(http.MethodPost, "/ads", status, startTime) }()

	caller := auth.CallerFromContext(ctx)
	if err := h.service.Authorize(ctx, caller, permission.ActionCreate); err != nil {
		status = h.respondError(w, span, err, "create ad")
		return
	}

	var input domain.AdInput
	if err := decodeJSON(r, &input); err != nil {
		status = h.respondError(w, span, err, "create ad")
		return
	}

	ad, err := h.service.CreateAd(ctx, caller, input)
	if err != nil {
		status = h.respondError(w, span, err, "create ad")
		return
	}

	span.SetAttributes(attribute.Int64("ad.id", ad.ID))
	utils.RespondWithJSON(w, http.StatusCreated, newAdDetail(ad))
}

// UpdateAd serves both PUT and PATCH; PATCH only touches the supplied fields.
func (h *AdHandler) UpdateAd(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateAd")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { h.observe(r.Method, "/ads/{id}", status, startTime) }()

	id, err := pathID(r, "id")
	if err != nil {
		status = h.respondError(w, span, err, "update ad")
		return
	}

	partial := r.Method == http.MethodPatch
	span.SetAttributes(
		attribute.Int64("ad.id", id),
		attribute.Bool("ad.partial", partial),
	)

	caller := auth.CallerFromContext(ctx)
	if err := h.service.Authorize(ctx, caller, updateAction(partial)); err != nil {
		status = h.respondError(w, span, err, "update ad")
		return
	}

	var input domain.AdInput
	if err := decodeJSON(r, &input); err != nil {
		status = h.respondError(w, span, err, "update ad")
		return
	}

	ad, err := h.service.UpdateAd(ctx, caller, id, input, partial)
	if err != nil {
		status = h.respondError(w, span, err, "update ad")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, newAdDetail(ad))
}

func (h *AdHandler) DeleteAd(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteAd")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { h.observe(http.MethodDelete, "/ads/{id}", status, startTime) }()

	id, err := pathID(r, "id")
	if err != nil {
		status = h.respondError(w, span, err, "delete ad")
		return
	}

	span.SetAttributes(attribute.Int64("ad.id", id))

	if err := h.service.DeleteAd(ctx, auth.CallerFromContext(ctx), id); err != nil {
		status = h.respondError(w, span, err, "delete ad")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadImage accepts a multipart form with the file in the "image" field.
// The content type is sniffed from the file itself.
func (h *AdHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UploadAdImage")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { h.observe(http.MethodPost, "/ads/{id}/image", status, startTime) }()

	id, err := pathID(r, "id")
	if err != nil {
		status = h.respondError(w, span, err, "upload ad image")
		return
	}

	span.SetAttributes(attribute.Int64("ad.id", id))

	caller := auth.CallerFromContext(ctx)
	if err := h.service.Authorize(ctx, caller, permission.ActionUploadImage); err != nil {
		status = h.respondError(w, span, err, "upload ad image")
		return
	}

	data, err := h.readImage(w, r)
	if err != nil {
		status = h.respondError(w, span, err, "upload ad image")
		return
	}

	image := service.Image{Data: data}
	if len(data) > 0 {
		image.ContentType = http.DetectContentType(data)
	}

	ad, err := h.service.UploadAdImage(ctx, caller, id, image)
	if err != nil {
		status = h.respondError(w, span, err, "upload ad image")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, newAdDetail(ad))
}

// readImage returns the uploaded file, reading at most one byte past the
// configured limit so the service can reject oversized uploads. A missing
// file yields no data and is rejected by the service after authorization.
func (h *AdHandler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := h.maxImageSize
	if limit <= 0 {
		limit = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+maxBodySize)

	file, _, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, domain.NewValidationError("image", fmt.Sprintf("must not exceed %d bytes", limit))
		case errors.Is(err, http.ErrMissingFile):
			return nil, nil
		default:
			return nil, fmt.Errorf("%w: %v", errInvalidBody, err)
		}
	}
	defer file.Close()

	return io.ReadAll(io.LimitReader(file, limit+1))
}

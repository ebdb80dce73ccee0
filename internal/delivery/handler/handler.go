package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"skymarket/internal/domain"
	"skymarket/internal/infrastructure/metrics"
	"skymarket/internal/permission"
	"skymarket/internal/service"
	"skymarket/pkg/logger"
	"skymarket/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/trace"
)

const maxBodySize = 1 << 20

var errInvalidBody = errors.New("invalid request body")

// base carries what every resource handler needs to answer a request.
type base struct {
	logger  *logger.Loggers
	metrics *metrics.HandlerMetrics
	tracer  trace.Tracer
}

func (b *base) observe(method, endpoint, status string, startTime time.Time) {
	duration := time.Since(startTime).Seconds()
	b.metrics.RequestCount.WithLabelValues(method, endpoint, status).Inc()
	b.metrics.RequestDuration.WithLabelValues(method, endpoint, status).Observe(duration)
}

// respondError writes the HTTP form of err and returns the metrics status label.
func (b *base) respondError(w http.ResponseWriter, span trace.Span, err error, action string) string {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.RespondWithFieldErrors(w, http.StatusBadRequest, domain.ErrValidation.Error(), verr.Fields)
		return "invalid"
	case errors.Is(err, errInvalidBody):
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, err.Error())
		return "invalid"
	case errors.Is(err, service.ErrInvalidPage):
		utils.RespondWithErrorJSON(w, http.StatusNotFound, "invalid page")
		return "not_found"
	case errors.Is(err, domain.ErrNotFound):
		utils.RespondWithErrorJSON(w, http.StatusNotFound, "not found")
		return "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
		return "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		utils.RespondWithErrorJSON(w, http.StatusForbidden, domain.ErrForbidden.Error())
		return "forbidden"
	case errors.Is(err, service.ErrImagesDisabled):
		utils.RespondWithErrorJSON(w, http.StatusNotImplemented, err.Error())
		return "error"
	default:
		span.RecordError(err)
		b.logger.ErrorLogger.Error("failed to "+action, utils.Err(err))
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "internal server error")
		return "error"
	}
}

// pathID reads a positive integer URL parameter. Anything else cannot name a
// stored record and is reported as not found.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrNotFound
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

// pageParam reads ?page=N. A missing value means the first page.
func pageParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return 0, service.ErrInvalidPage
	}
	return page, nil
}

func updateAction(partial bool) permission.Action {
	if partial {
		return permission.ActionPartialUpdate
	}
	return permission.ActionUpdate
}

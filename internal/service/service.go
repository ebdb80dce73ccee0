package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"skymarket/internal/domain"
	"skymarket/internal/infrastructure/metrics"
	"skymarket/internal/permission"
	"skymarket/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidPage is returned for a page number outside the result set.
var ErrInvalidPage = fmt.Errorf("invalid page: %w", domain.ErrNotFound)

// Page is one slice of a paginated listing. NextPage and PrevPage are 0 when
// there is no such page.
type Page[T any] struct {
	Items       []*T
	Count       int
	CurrentPage int
	NextPage    int
	PrevPage    int
	TotalPages  int
}

// Input is a client payload that can be validated and merged into an entity.
type Input[T any] interface {
	Validate(partial bool) error
	Apply(entity *T, partial bool)
}

// crud runs the shared resource flow: authorize, look up, validate, persist.
// Entity services only supply the store, the policy and their own hooks.
type crud[T any, I Input[T], F any] struct {
	resource string
	store    repository.Store[T, F]
	policy   *permission.Policy
	metrics  *metrics.ServiceMetrics
}

func resourceOf[T any](entity *T) permission.Resource {
	if entity == nil {
		return nil
	}
	if res, ok := any(entity).(permission.Resource); ok {
		return res
	}
	return nil
}

// authorize checks action against the policy. entity is nil for checks that
// run before a single object is loaded.
func (c *crud[T, I, F]) authorize(ctx context.Context, action permission.Action, caller domain.Caller, entity *T) error {
	err := c.policy.Authorize(action, caller, resourceOf(entity))
	if err == nil {
		return nil
	}

	reason := "forbidden"
	if errors.Is(err, domain.ErrUnauthorized) {
		reason = "unauthenticated"
	}
	c.metrics.AccessDenied.WithLabelValues(c.resource, string(action), reason).Inc()

	var denied *permission.DeniedError
	if errors.As(err, &denied) {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("permission.denied_by", denied.Permission))
	}
	return err
}

func (c *crud[T, I, F]) list(ctx context.Context, action permission.Action, caller domain.Caller, filter F, page, pageSize int) (*Page[T], error) {
	if err := c.authorize(ctx, action, caller, nil); err != nil {
		return nil, err
	}

	count, err := c.store.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	if pageSize <= 0 {
		items, err := c.store.List(ctx, filter, 0, 0)
		if err != nil {
			return nil, err
		}
		return &Page[T]{Items: items, Count: count, CurrentPage: 1, TotalPages: 1}, nil
	}

	totalPages := (count + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}
	if page < 1 || page > totalPages {
		return nil, ErrInvalidPage
	}

	items, err := c.store.List(ctx, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	result := &Page[T]{
		Items:       items,
		Count:       count,
		CurrentPage: page,
		TotalPages:  totalPages,
	}
	if page < totalPages {
		result.NextPage = page + 1
	}
	if page > 1 {
		result.PrevPage = page - 1
	}
	return result, nil
}

// lookup authorizes action twice: once before the read and once against the
// loaded entity.
func (c *crud[T, I, F]) lookup(ctx context.Context, action permission.Action, caller domain.Caller, filter F, id int64) (*T, error) {
	if err := c.authorize(ctx, action, caller, nil); err != nil {
		return nil, err
	}

	entity, err := c.store.Get(ctx, filter, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if err := c.authorize(ctx, action, caller, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// create validates input, lets prepare force server-side fields and persists
// the result. prepare may reject the request before anything is written, and a
// parent row removed in the meantime is reported as not found.
func (c *crud[T, I, F]) create(ctx context.Context, caller domain.Caller, input I, prepare func(ctx context.Context, entity *T) error) (*T, error) {
	if err := c.authorize(ctx, permission.ActionCreate, caller, nil); err != nil {
		return nil, err
	}
	if err := input.Validate(false); err != nil {
		return nil, err
	}

	entity := new(T)
	input.Apply(entity, false)
	if err := prepare(ctx, entity); err != nil {
		return nil, err
	}

	created, err := c.store.Create(ctx, entity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return created, err
}

func (c *crud[T, I, F]) update(ctx context.Context, caller domain.Caller, filter F, id int64, input I, partial bool) (*T, error) {
	action := permission.ActionUpdate
	if partial {
		action = permission.ActionPartialUpdate
	}

	entity, err := c.lookup(ctx, action, caller, filter, id)
	if err != nil {
		return nil, err
	}
	if err := input.Validate(partial); err != nil {
		return nil, err
	}

	input.Apply(entity, partial)
	return c.save(ctx, entity)
}

func (c *crud[T, I, F]) save(ctx context.Context, entity *T) (*T, error) {
	updated, err := c.store.Update(ctx, entity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return updated, err
}

func (c *crud[T, I, F]) destroy(ctx context.Context, caller domain.Caller, filter F, id int64) error {
	if _, err := c.lookup(ctx, permission.ActionDestroy, caller, filter, id); err != nil {
		return err
	}

	err := c.store.Delete(ctx, filter, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// statusOf labels a service result for metrics.
func statusOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrForbidden):
		return "denied"
	default:
		return "error"
	}
}

func observe(m *metrics.ServiceMetrics, method string, err error, startTime time.Time) {
	status := statusOf(err)
	duration := time.Since(startTime).Seconds()
	m.MethodCount.WithLabelValues(method, status).Inc()
	m.MethodDuration.WithLabelValues(method, status).Observe(duration)
}

func recordError(span trace.Span, err error) {
	if statusOf(err) == "error" {
		span.RecordError(err)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skymarket/internal/domain"
	"skymarket/internal/infrastructure/metrics"
	"skymarket/internal/permission"
	"skymarket/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrImagesDisabled is returned by UploadAdImage when no image storage is configured.
var ErrImagesDisabled = errors.New("image storage is not configured")

// imageExtensions lists the accepted image content types.
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageStorage stores uploaded ad images and returns their public URL.
type ImageStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Image is an uploaded file whose content type was sniffed from its bytes.
type Image struct {
	Data        []byte
	ContentType string
}

type AdService interface {
	Authorize(ctx context.Context, caller domain.Caller, action permission.Action) error
	ListAds(ctx context.Context, caller domain.Caller, filter domain.AdFilter, page int) (*Page[domain.Ad], error)
	ListMyAds(ctx context.Context, caller domain.Caller, filter domain.AdFilter, page int) (*Page[domain.Ad], error)
	GetAd(ctx context.Context, caller domain.Caller, id int64) (*domain.Ad, error)
	CreateAd(ctx context.Context, caller domain.Caller, input domain.AdInput) (*domain.Ad, error)
	UpdateAd(ctx context.Context, caller domain.Caller, id int64, input domain.AdInput, partial bool) (*domain.Ad, error)
	DeleteAd(ctx context.Context, caller domain.Caller, id int64) error
	UploadAdImage(ctx context.Context, caller domain.Caller, id int64, image Image) (*domain.Ad, error)
}

type AdServiceOptions struct {
	PageSize     int
	MaxImageSize int64
	Images       ImageStorage
}

type adService struct {
	crud     crud[domain.Ad, domain.AdInput, domain.AdFilter]
	pageSize int
	maxImage int64
	images   ImageStorage
	metrics  *metrics.ServiceMetrics
	tracer   trace.Tracer
}

func NewAdService(repository repository.AdRepository, policy *permission.Policy, metrics *metrics.ServiceMetrics, opts AdServiceOptions) AdService {
	tracer := otel.Tracer("skymarket/service")
	return &adService{
		crud: crud[domain.Ad, domain.AdInput, domain.AdFilter]{
			resource: "ad",
			store:    repository,
			policy:   policy,
			metrics:  metrics,
		},
		pageSize: opts.PageSize,
		maxImage: opts.MaxImageSize,
		images:   opts.Images,
		metrics:  metrics,
		tracer:   tracer,
	}
}

// Authorize runs the action-level check alone, so callers can reject a request
// before reading its payload.
func (s *adService) Authorize(ctx context.Context, caller domain.Caller, action permission.Action) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthorizeAd")
	defer span.End()

	startTime := time.Now()
	defer func() { observe(s.metrics, "AuthorizeAd", err, startTime) }()

	span.SetAttributes(attribute.String("permission.action", string(action)))

	return s.crud.authorize(ctx, action, caller, nil)
}

func (s *adService) ListAds(ctx context.Context, caller domain.Caller, filter domain.AdFilter, page int) (result *Page[domain.Ad], err error) {
	ctx, span := s.tracer.Start(ctx, "ListAds")
	defer span.End()

	startTime := time.Now()
	defer func() {
		recordError(span, err)
		observe(s.metrics, "ListAds", err, startTime)
	}()

	span.SetAttributes(
		attribute.Int("ads.page", page),
		attribute.String("ads.title", filter.Title),
	)

	return s.crud.list(ctx, permission.ActionList, caller, filter, page, s.pageSize)
}

// ListMyAds runs the list pipeline restricted to ads authored by the caller.
func (s *adService) ListMyAds(ctx context.Context, caller domain.Caller, filter domain.AdFilter, page int) (result *Page[domain.Ad], err error) {
	ctx, span := s.tracer.Start(ctx, "ListMyAds")
	defer span.End()

	startTime := time.Now()
	defer func() {
		recordError(span, err)
		observe(s.metrics, "ListMyAds", err, startTime)
	}()

	span.SetAttributes(
		attribute.Int("ads.page", page),
		attribute.Int64("ads.author_id", caller.ID),
	)

	filter.AuthorID = caller.ID
	return s.crud.list(ctx, permission.ActionMe, caller, filter, page, s.pageSize)
}

func (s *adService) GetAd(ctx context.Context, caller domain.Caller, id int64) (ad *domain.Ad, err error) {
	ctx, span := s.tracer.Start(ctx, "GetAd")
	defer span.End()

	startTime := time.Now()
	defer func() {
		recordError(span, err)
		observe(s.metrics, "GetAd", err, startTime)
	}()

	span.SetAttributes(attribute.Int64("ad.id", id))

	return s.crud.lookup(ctx, permission.ActionRetrieve, caller, domain.AdFilter{}, id)
}

// CreateAd stores a new ad authored by the caller. Any author in the payload is ignored.
func (s *adService) CreateAd(ctx context.Context, caller domain.Caller, input domain.AdInput) (ad *domain.Ad, err error) {
	ctx, span := s.tracer.Start(ctx, "CreateAd")
	defer span.End()

	startTime := time.Now()
	defer func() {
		recordError(span, err)
		observe(s.metrics, "CreateAd", err, startTime)
	}()

	span.SetAttributes(attribute.Int64("ad.author_id", caller.ID))

	return s.crud.create(ctx, caller, input, func(_ context.Context, ad *domain.Ad) error {
		ad.AuthorID = caller.ID
		return nil
	})
}

func (s *adService) UpdateAd(ctx context.Context, caller domain.Caller, id int64, input domain.AdInput, partial bool) (ad *domain.Ad, err error) {
	ctx, span := s.tracer.Start(ctx, "UpdateAd")
	defer span.End()

	startTime := time.Now()
	defer func() {
		recordError(span, err)
		observe(s.metrics, "UpdateAd", err, startTime)
	}()

	span.SetAttributes(
		attribute.Int64("ad.id", id),
		attribute.Bool("ad.partial", partial),
	)

	return s.crud.update(ctx, caller, domain.AdFilter{}, id, input, partial)
}

// DeleteAd removes the ad and every comment attached to it.
func (s *adService) DeleteAd(ctx context.Context, caller domain.Caller, id int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "DeleteAd")
	defer span.End()

	startTime := time.Now()
	defer func() {
		recordError(span, err)
		observe(s.metrics, "DeleteAd", err, startTime)
	}()

	span.SetAttributes(attribute.Int64("ad.id", id))

	return s.crud.destroy(ctx, caller, domain.AdFilter{}, id)
}

// UploadAdImage stores image under a fresh key and points the ad at it.
func (s *adService) UploadAdImage(ctx context.Context, caller domain.Caller, id int64, image Image) (ad *domain.Ad, err error) {
	ctx, span := s.tracer.Start(ctx, "UploadAdImage")
	defer span.End()

	startTime := time.Now()
	defer func() {
		recordError(span, err)
		observe(s.metrics, "UploadAdImage", err, startTime)
	}()

	span.SetAttributes(
		attribute.Int64("ad.id", id),
		attribute.String("image.content_type", image.ContentType),
		attribute.Int("image.size", len(image.Data)),
	)

	ad, err = s.crud.lookup(ctx, permission.ActionUploadImage, caller, domain.AdFilter{}, id)
	if err != nil {
		return nil, err
	}

	ext, ok := imageExtensions[image.ContentType]
	switch {
	case len(image.Data) == 0:
		return nil, domain.NewValidationError("image", "cannot be blank")
	case !ok:
		return nil, domain.NewValidationError("image", "must be a jpeg, png, gif or webp image")
	case s.maxImage > 0 && int64(len(image.Data)) > s.maxImage:
		return nil, domain.NewValidationError("image", fmt.Sprintf("must not exceed %d bytes", s.maxImage))
	}

	if s.images == nil {
		return nil, ErrImagesDisabled
	}

	key := fmt.Sprintf("ads/%d/%s%s", ad.ID, uuid.NewString(), ext)
	url, err := s.images.Upload(ctx, key, image.Data, image.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}
	if len(url) > domain.MaxImageURLLength {
		return nil, fmt.Errorf("image url exceeds %d characters", domain.MaxImageURLLength)
	}

	ad.Image = url
	return s.crud.save(ctx, ad)
}

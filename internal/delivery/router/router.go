package router

import (
	"net/http"

	"skymarket/internal/config"
	"skymarket/internal/delivery/handler"
	"skymarket/internal/infrastructure/auth"
	"skymarket/internal/infrastructure/metrics"
	"skymarket/internal/service"
	"skymarket/pkg/logger"
	"skymarket/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/justinas/alice"
)

type Dependencies struct {
	AdService      service.AdService
	CommentService service.CommentService
	Verifier       auth.TokenVerifier
	Loggers        *logger.Loggers
	Metrics        *metrics.HandlerMetrics
	MaxImageSize   int64
	CORS           config.CORSConfig
}

// NewRouter assembles the API. Trailing slashes are optional on every route.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(deps.Loggers),
		middleware.Recoverer,
		middleware.StripSlashes,
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", deps.Metrics.HTTPHandler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(deps.Verifier, deps.Loggers))
		SetupAdRoutes(r, deps.AdService, deps.Loggers, deps.Metrics, deps.MaxImageSize)
		SetupCommentRoutes(r, deps.CommentService, deps.Loggers, deps.Metrics)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondWithErrorJSON(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondWithErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return alice.New(corsHandler(deps.CORS), secureHeaders).Then(r)
}

func SetupAdRoutes(r chi.Router, adService service.AdService, loggers *logger.Loggers, metrics *metrics.HandlerMetrics, maxImageSize int64) {
	adHandler := handler.NewAdHandler(adService, loggers, metrics, maxImageSize)

	r.Get("/ads", adHandler.ListAds)
	r.Post("/ads", adHandler.CreateAd)
	r.Get("/ads/me", adHandler.ListMyAds)
	r.Get("/ads/{id}", adHandler.GetAd)
	r.Put("/ads/{id}", adHandler.UpdateAd)
	r.Patch("/ads/{id}", adHandler.UpdateAd)
	r.Delete("/ads/{id}", adHandler.DeleteAd)
	r.Post("/ads/{id}/image", adHandler.UploadImage)
}

func SetupCommentRoutes(r chi.Router, commentService service.CommentService, loggers *logger.Loggers, metrics *metrics.HandlerMetrics) {
	commentHandler := handler.NewCommentHandler(commentService, loggers, metrics)

	r.Get("/ads/{id}/comments", commentHandler.ListComments)
	r.Post("/ads/{id}/comments", commentHandler.CreateComment)
	r.Get("/ads/{id}/comments/{comment_id}", commentHandler.GetComment)
	r.Put("/ads/{id}/comments/{comment_id}", commentHandler.UpdateComment)
	r.Patch("/ads/{id}/comments/{comment_id}", commentHandler.UpdateComment)
	r.Delete("/ads/{id}/comments/{comment_id}", commentHandler.DeleteComment)
}

package router

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"skymarket/internal/config"
	"skymarket/internal/domain"
	"skymarket/internal/infrastructure/auth"
	"skymarket/internal/infrastructure/metrics"
	"skymarket/internal/permission"
	"skymarket/internal/repository"
	"skymarket/internal/service"
	"skymarket/internal/testutil"
	"skymarket/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
)

type memoryImages struct{}

func (memoryImages) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return "https://cdn.example/" + key, nil
}

type api struct {
	t       *testing.T
	handler http.Handler
	tokens  map[string]string
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db := testutil.OpenDB(t)
	reg := prometheus.NewRegistry()
	repoMetrics := metrics.NewRepositoryMetrics(reg)
	svcMetrics := metrics.NewServiceMetrics(reg)

	adRepo := repository.NewMysqlAdRepository(db, testutil.NewCache(t), time.Minute, repoMetrics)
	commentRepo := repository.NewMysqlCommentRepository(db, repoMetrics)

	jwtManager, err := auth.NewJWTManager("test-secret", "skymarket")
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}

	handler := NewRouter(Dependencies{
		AdService: service.NewAdService(adRepo, permission.AdPolicy(), svcMetrics, service.AdServiceOptions{
			PageSize:     4,
			MaxImageSize: 1 << 10,
			Images:       memoryImages{},
		}),
		CommentService: service.NewCommentService(commentRepo, adRepo, permission.CommentPolicy(), svcMetrics),
		Verifier:       jwtManager,
		Loggers:        logger.Discard(),
		Metrics:        metrics.NewHandlerMetrics(reg),
		MaxImageSize:   1 << 10,
		CORS:           config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	})

	tokens := map[string]string{}
	for name, caller := range map[string]domain.Caller{
		"user":     {ID: 1, Role: domain.RoleUser},
		"admin":    {ID: 2, Role: domain.RoleAdmin},
		"executor": {ID: 3, Role: domain.RoleExecutor},
	} {
		token, err := jwtManager.Issue(caller.ID, caller.Role, time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		tokens[name] = token
	}

	return &api{t: t, handler: handler, tokens: tokens}
}

func (a *api) do(as, method, path, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+a.tokens[as])
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

type adBody struct {
	PK          int64   `json:"pk"`
	Title       string  `json:"title"`
	Price       string  `json:"price"`
	Description string  `json:"description"`
	Image       *string `json:"image"`
	AuthorID    int64   `json:"author_id"`
}

type listBody struct {
	Count       int      `json:"count"`
	CurrentPage int      `json:"current_page"`
	NextPage    *int     `json:"next_page"`
	PrevPage    *int     `json:"prev_page"`
	TotalPages  int      `json:"total_pages"`
	Results     []adBody `json:"results"`
}

func (a *api) createAd(as, title string) adBody {
	a.t.Helper()
	rec := a.do(as, http.MethodPost, "/ads/", `{"title":"`+title+`","price":"12.5","description":"d","author_id":999}`)
	if rec.Code != http.StatusCreated {
		a.t.Fatalf("create ad: %d %s", rec.Code, rec.Body.String())
	}
	var ad adBody
	decode(a.t, rec, &ad)
	return ad
}

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t)

	if rec := a.do("", http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	a.do("user", http.MethodGet, "/ads/", "")
	rec := a.do("", http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "handler_requests_total") {
		t.Fatalf("metrics exposition missing handler counters: %d", rec.Code)
	}
	if rec.Header().Get("X-Frame-Options") != "deny" {
		t.Fatalf("secure headers not applied")
	}
}

func TestCreateAdForcesAuthorAndRoundTrips(t *testing.T) {
	a := newAPI(t)
	created := a.createAd("executor", "Bike")
	if created.AuthorID != 3 {
		t.Fatalf("author must be the caller, got %d", created.AuthorID)
	}
	if created.Price != "12.50" || created.Image != nil {
		t.Fatalf("unexpected representation: %+v", created)
	}

	rec := a.do("user", http.MethodGet, "/ads/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("retrieve: %d %s", rec.Code, rec.Body.String())
	}
	var got adBody
	decode(t, rec, &got)
	if got != created {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, created)
	}
}

func TestAdStatusCodes(t *testing.T) {
	a := newAPI(t)
	a.createAd("admin", "Bike")

	tests := []struct {
		name   string
		as     string
		method string
		path   string
		body   string
		want   int
	}{
		{"anonymous list", "", http.MethodGet, "/ads/", "", http.StatusUnauthorized},
		{"user list", "user", http.MethodGet, "/ads", "", http.StatusOK},
		{"anonymous retrieve", "", http.MethodGet, "/ads/1/", "", http.StatusUnauthorized},
		{"missing ad", "user", http.MethodGet, "/ads/42/", "", http.StatusNotFound},
		{"non-numeric id", "user", http.MethodGet, "/ads/abc/", "", http.StatusNotFound},
		{"user create", "user", http.MethodPost, "/ads/", `{"title":"x","price":1}`, http.StatusForbidden},
		{"anonymous create", "", http.MethodPost, "/ads/", `{"title":"x","price":1}`, http.StatusUnauthorized},
		{"invalid create", "admin", http.MethodPost, "/ads/", `{"price":-1}`, http.StatusBadRequest},
		{"malformed body", "admin", http.MethodPost, "/ads/", `{"title":`, http.StatusBadRequest},
		{"user patch", "user", http.MethodPatch, "/ads/1/", `{"title":"y"}`, http.StatusForbidden},
		{"executor patch", "executor", http.MethodPatch, "/ads/1/", `{"title":"y"}`, http.StatusOK},
		{"user me", "user", http.MethodGet, "/ads/me/", "", http.StatusForbidden},
		{"admin me", "admin", http.MethodGet, "/ads/me/", "", http.StatusOK},
		{"bad price filter", "user", http.MethodGet, "/ads/?price_min=cheap", "", http.StatusBadRequest},
		{"invalid page", "user", http.MethodGet, "/ads/?page=7", "", http.StatusNotFound},
		{"non-numeric page", "user", http.MethodGet, "/ads/?page=last", "", http.StatusNotFound},
		{"user delete", "user", http.MethodDelete, "/ads/1/", "", http.StatusForbidden},
		{"admin delete", "admin", http.MethodDelete, "/ads/1/", "", http.StatusNoContent},
		{"delete again", "admin", http.MethodDelete, "/ads/1/", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt.as, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAuthorizationPrecedesParsing(t *testing.T) {
	a := newAPI(t)
	a.createAd("admin", "Bike")

	tests := []struct {
		name   string
		as     string
		method string
		path   string
		body   string
		want   int
	}{
		{"anonymous malformed create", "", http.MethodPost, "/ads/", `{"title":`, http.StatusUnauthorized},
		{"anonymous malformed put", "", http.MethodPut, "/ads/1/", `not json`, http.StatusUnauthorized},
		{"anonymous malformed patch", "", http.MethodPatch, "/ads/1/", `{`, http.StatusUnauthorized},
		{"anonymous bad page", "", http.MethodGet, "/ads/?page=abc", "", http.StatusUnauthorized},
		{"anonymous bad filter", "", http.MethodGet, "/ads/?price_min=x", "", http.StatusUnauthorized},
		{"anonymous me with bad page", "", http.MethodGet, "/ads/me/?page=abc", "", http.StatusUnauthorized},
		{"user me with bad filter", "user", http.MethodGet, "/ads/me/?price_max=x", "", http.StatusForbidden},
		{"user malformed create", "user", http.MethodPost, "/ads/", `{"title":`, http.StatusForbidden},
		{"user malformed put", "user", http.MethodPut, "/ads/1/", `not json`, http.StatusForbidden},
		{"user invalid create", "user", http.MethodPost, "/ads/", `{"price":-1}`, http.StatusForbidden},
		{"anonymous malformed comment", "", http.MethodPost, "/ads/1/comments/", `{`, http.StatusUnauthorized},
		{"user malformed comment", "user", http.MethodPost, "/ads/1/comments/", `{`, http.StatusForbidden},
		{"anonymous malformed comment update", "", http.MethodPatch, "/ads/1/comments/1/", `{`, http.StatusUnauthorized},
		{"user malformed comment update", "user", http.MethodPut, "/ads/1/comments/1/", `{`, http.StatusForbidden},
		{"admin malformed create", "admin", http.MethodPost, "/ads/", `{"title":`, http.StatusBadRequest},
		{"admin bad page", "admin", http.MethodGet, "/ads/?page=abc", "", http.StatusNotFound},
		{"admin price with extra precision", "admin", http.MethodPost, "/ads/", `{"title":"x","price":"1.005"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt.as, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestInvalidTokenIsRejected(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/ads/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestValidationErrorCarriesFields(t *testing.T) {
	a := newAPI(t)
	rec := a.do("admin", http.MethodPost, "/ads/", `{"description":"no title"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, rec, &body)
	if body.Fields["title"] == "" || body.Fields["price"] == "" {
		t.Fatalf("expected title and price field errors, got %v", body.Fields)
	}
}

func TestListPaginationAndFilters(t *testing.T) {
	a := newAPI(t)
	for _, title := range []string{"Red bike", "Car", "Blue BIKE", "Lamp", "Kids bike"} {
		a.createAd("admin", title)
	}

	rec := a.do("user", http.MethodGet, "/ads/", "")
	var first listBody
	decode(t, rec, &first)
	if first.Count != 5 || len(first.Results) != 4 || first.TotalPages != 2 || first.NextPage == nil || *first.NextPage != 2 || first.PrevPage != nil {
		t.Fatalf("unexpected first page: %+v", first)
	}
	if first.Results[0].Title != "Red bike" || first.Results[3].Title != "Lamp" {
		t.Fatalf("results must follow insertion order: %+v", first.Results)
	}
	if first.Results[0].AuthorID != 0 {
		t.Fatalf("list items must not carry the author")
	}

	rec = a.do("user", http.MethodGet, "/ads/?page=2", "")
	var second listBody
	decode(t, rec, &second)
	if len(second.Results) != 1 || second.Results[0].Title != "Kids bike" || second.NextPage != nil || *second.PrevPage != 1 {
		t.Fatalf("unexpected second page: %+v", second)
	}

	rec = a.do("user", http.MethodGet, "/ads/?title=BIKE&price_max=100", "")
	var filtered listBody
	decode(t, rec, &filtered)
	if filtered.Count != 3 {
		t.Fatalf("expected 3 bikes, got %+v", filtered)
	}

	rec = a.do("user", http.MethodGet, "/ads/?price_min=20", "")
	var none listBody
	decode(t, rec, &none)
	if none.Count != 0 || len(none.Results) != 0 || none.TotalPages != 1 {
		t.Fatalf("expected empty first page, got %+v", none)
	}
}

func TestMeListsOnlyCallerAds(t *testing.T) {
	a := newAPI(t)
	a.createAd("admin", "mine")
	a.createAd("executor", "theirs")

	rec := a.do("admin", http.MethodGet, "/ads/me/", "")
	var body listBody
	decode(t, rec, &body)
	if body.Count != 1 || body.Results[0].Title != "mine" {
		t.Fatalf("unexpected me listing: %+v", body)
	}
}

func TestCommentsEndpoints(t *testing.T) {
	a := newAPI(t)
	ad := a.createAd("admin", "Bike")
	other := a.createAd("admin", "Car")

	rec := a.do("executor", http.MethodPost, "/ads/1/comments/", `{"text":"nice","author_id":77,"ad_id":2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create comment: %d %s", rec.Code, rec.Body.String())
	}
	var comment struct {
		PK       int64  `json:"pk"`
		Text     string `json:"text"`
		AuthorID int64  `json:"author_id"`
		AdID     int64  `json:"ad_id"`
	}
	decode(t, rec, &comment)
	if comment.AuthorID != 3 || comment.AdID != ad.PK {
		t.Fatalf("author and ad must be forced: %+v", comment)
	}

	tests := []struct {
		name   string
		as     string
		method string
		path   string
		body   string
		want   int
	}{
		{"anonymous list", "", http.MethodGet, "/ads/1/comments/", "", http.StatusOK},
		{"list of missing ad", "", http.MethodGet, "/ads/99/comments/", "", http.StatusOK},
		{"anonymous retrieve", "", http.MethodGet, "/ads/1/comments/1/", "", http.StatusUnauthorized},
		{"retrieve", "user", http.MethodGet, "/ads/1/comments/1/", "", http.StatusOK},
		{"retrieve through other ad", "user", http.MethodGet, "/ads/2/comments/1/", "", http.StatusNotFound},
		{"comment on missing ad", "admin", http.MethodPost, "/ads/99/comments/", `{"text":"x"}`, http.StatusNotFound},
		{"user create", "user", http.MethodPost, "/ads/1/comments/", `{"text":"x"}`, http.StatusForbidden},
		{"blank text", "admin", http.MethodPost, "/ads/1/comments/", `{"text":""}`, http.StatusBadRequest},
		{"user update", "user", http.MethodPut, "/ads/1/comments/1/", `{"text":"x"}`, http.StatusForbidden},
		{"admin update", "admin", http.MethodPut, "/ads/1/comments/1/", `{"text":"edited"}`, http.StatusOK},
		{"delete through other ad", "admin", http.MethodDelete, "/ads/2/comments/1/", "", http.StatusNotFound},
		{"admin delete", "admin", http.MethodDelete, "/ads/1/comments/1/", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt.as, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	rec = a.do("", http.MethodGet, "/ads/"+strconv.FormatInt(other.PK, 10)+"/comments/", "")
	var list []json.RawMessage
	decode(t, rec, &list)
	if len(list) != 0 {
		t.Fatalf("expected no comments on the other ad, got %d", len(list))
	}
}

func multipartImage(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("image", "photo.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(data)
	w.Close()
	return body, w.FormDataContentType()
}

func TestUploadImage(t *testing.T) {
	a := newAPI(t)
	a.createAd("admin", "Bike")

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

	upload := func(as string, data []byte) *httptest.ResponseRecorder {
		body, contentType := multipartImage(t, data)
		req := httptest.NewRequest(http.MethodPost, "/ads/1/image/", body)
		req.Header.Set("Content-Type", contentType)
		if as != "" {
			req.Header.Set("Authorization", "Bearer "+a.tokens[as])
		}
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("executor", png)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	var ad adBody
	decode(t, rec, &ad)
	if ad.Image == nil || !strings.HasPrefix(*ad.Image, "https://cdn.example/ads/1/") || !strings.HasSuffix(*ad.Image, ".png") {
		t.Fatalf("unexpected image url: %v", ad.Image)
	}

	if rec := upload("user", png); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for plain user, got %d", rec.Code)
	}
	if rec := upload("", png); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous, got %d", rec.Code)
	}

	for _, tt := range []struct {
		as   string
		want int
	}{{"", http.StatusUnauthorized}, {"user", http.StatusForbidden}} {
		req := httptest.NewRequest(http.MethodPost, "/ads/1/image/", strings.NewReader("--broken"))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=missing")
		if tt.as != "" {
			req.Header.Set("Authorization", "Bearer "+a.tokens[tt.as])
		}
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Fatalf("malformed upload as %q: expected %d, got %d", tt.as, tt.want, rec.Code)
		}
	}
	if rec := upload("admin", []byte("plain text, not an image")); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-image, got %d", rec.Code)
	}
	if rec := upload("admin", append(png, make([]byte, 1<<10)...)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized image, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/ads/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected CORS origin header, got %q", got)
	}
}

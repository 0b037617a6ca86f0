package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"grocery-price-api/internal/deal"
	"grocery-price-api/internal/models"
	"grocery-price-api/internal/ratelimit"
	"grocery-price-api/internal/testutils"
)

type stubDataset struct {
	records []models.ProductRecord
	err     error
}

func (s *stubDataset) FetchDataset(ctx context.Context) ([]models.ProductRecord, error) {
	return s.records, s.err
}

type stubRates struct {
	rate    float64
	fetched bool
	err     error
}

func (s *stubRates) ExchangeRate(ctx context.Context) float64 { return s.rate }

func (s *stubRates) FetchExchangeRate(ctx context.Context) (float64, error) { return s.rate, s.err }

func (s *stubRates) Current() (float64, bool) { return s.rate, s.fetched }

type stubImages struct {
	imageURL string
	err      error
	lastTerm string
}

func (s *stubImages) ImageURL(ctx context.Context, term string) (string, error) {
	s.lastTerm = term
	return s.imageURL, s.err
}

type testDeps struct {
	dataset *stubDataset
	rates   *stubRates
	images  *stubImages
}

func newTestHandlers(t *testing.T) (*Handlers, *testDeps) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := testutils.MockLogger()
	deps := &testDeps{
		dataset: &stubDataset{records: testutils.SampleRecords()},
		rates:   &stubRates{rate: 1.25, fetched: true},
		images:  &stubImages{imageURL: "https://images.test/apple.jpg"},
	}
	cfg := testutils.MockConfig()
	cfg.StaticDir = t.TempDir()

	handlers := NewHandlers(HandlerConfig{
		Logger:        logger,
		Config:        cfg,
		Dataset:       deps.dataset,
		ExchangeRates: deps.rates,
		Images:        deps.images,
		Evaluator:     deal.NewEvaluator(deps.dataset, deps.rates, logger),
	})
	return handlers, deps
}

func serve(handlers *Handlers, method, target string) *httptest.ResponseRecorder {
	router := handlers.SetupRoutes()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var response models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("error response unmarshal error = %v", err)
	}
	return response
}

func TestNewHandlers(t *testing.T) {
	handlers, _ := newTestHandlers(t)

	if handlers == nil {
		t.Fatal("NewHandlers() returned nil")
	}
	if handlers.logger == nil {
		t.Error("NewHandlers() did not set logger")
	}
	if handlers.startTime.IsZero() {
		t.Error("NewHandlers() did not set start time")
	}
}

func TestHandlers_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		datasetErr error
		wantStatus string
	}{
		{name: "dataset readable", wantStatus: "healthy"},
		{name: "dataset unreadable", datasetErr: errors.New("open: no such file"), wantStatus: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers, deps := newTestHandlers(t)
			deps.dataset.err = tt.datasetErr

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/health", nil)

			handlers.HealthCheck(c)

			if w.Code != http.StatusOK {
				t.Errorf("HealthCheck() status = %v, want %v", w.Code, http.StatusOK)
			}

			var response models.HealthCheck
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("HealthCheck() response unmarshal error = %v", err)
			}
			if response.Status != tt.wantStatus {
				t.Errorf("HealthCheck() status = %q, want %q", response.Status, tt.wantStatus)
			}
			if response.Version == "" || response.Uptime == "" {
				t.Error("HealthCheck() response missing version or uptime")
			}
		})
	}
}

func TestHandlers_GetDataset(t *testing.T) {
	handlers, _ := newTestHandlers(t)

	w := serve(handlers, "GET", "/api/dataset")
	if w.Code != http.StatusOK {
		t.Fatalf("GetDataset() status = %v, want %v", w.Code, http.StatusOK)
	}

	var records []models.ProductRecord
	if err := json.Unmarshal(w.Body.Bytes(), &records); err != nil {
		t.Fatalf("GetDataset() unmarshal error = %v", err)
	}
	if len(records) != len(testutils.SampleRecords()) {
		t.Fatalf("GetDataset() returned %d records, want %d", len(records), len(testutils.SampleRecords()))
	}
	if records[4].Title != "Cheese, Aged Cheddar" || records[4].Price != "$1,234.50" {
		t.Errorf("GetDataset() record = %+v", records[4])
	}
}

func TestHandlers_GetDataset_Empty(t *testing.T) {
	handlers, deps := newTestHandlers(t)
	deps.dataset.records = nil

	w := serve(handlers, "GET", "/api/dataset")
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("GetDataset() body = %s, want []", body)
	}
}

func TestHandlers_GetDataset_ReadError(t *testing.T) {
	handlers, deps := newTestHandlers(t)
	deps.dataset.err = errors.New("open dataset: permission denied")

	w := serve(handlers, "GET", "/api/dataset")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("GetDataset() status = %v, want %v", w.Code, http.StatusInternalServerError)
	}
	response := decodeError(t, w)
	if response.Error != "Failed to read dataset" {
		t.Errorf("GetDataset() error = %q", response.Error)
	}
	if !strings.Contains(response.Message, "permission denied") {
		t.Errorf("GetDataset() message = %q, want cause", response.Message)
	}
}

func TestHandlers_GetExchangeRate(t *testing.T) {
	tests := []struct {
		name       string
		strict     bool
		rates      stubRates
		wantStatus int
		wantRate   float64
	}{
		{name: "fresh rate", rates: stubRates{rate: 1.36, fetched: true}, wantStatus: http.StatusOK, wantRate: 1.36},
		{name: "upstream down serves default", rates: stubRates{rate: 1.25, err: errors.New("503")}, wantStatus: http.StatusOK, wantRate: 1.25},
		{name: "strict with last known good", strict: true, rates: stubRates{rate: 1.33, fetched: true, err: errors.New("503")}, wantStatus: http.StatusOK, wantRate: 1.33},
		{name: "strict without any fetch", strict: true, rates: stubRates{rate: 1.25, err: errors.New("503")}, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers, deps := newTestHandlers(t)
			*deps.rates = tt.rates
			handlers.configuration.ExchangeRateStrict = tt.strict

			w := serve(handlers, "GET", "/api/exchange-rate")
			if w.Code != tt.wantStatus {
				t.Fatalf("GetExchangeRate() status = %v, want %v", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var response models.ExchangeRateResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("GetExchangeRate() unmarshal error = %v", err)
			}
			if response.Rate != tt.wantRate {
				t.Errorf("GetExchangeRate() rate = %v, want %v", response.Rate, tt.wantRate)
			}
		})
	}
}

func TestHandlers_GetUnsplashImage(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		images     stubImages
		wantStatus int
		wantURL    string
	}{
		{name: "found", target: "/api/unsplash-image?query=apple", images: stubImages{imageURL: "https://images.test/apple.jpg"}, wantStatus: http.StatusOK, wantURL: "https://images.test/apple.jpg"},
		{name: "no result", target: "/api/unsplash-image?query=zzz", images: stubImages{}, wantStatus: http.StatusOK, wantURL: ""},
		{name: "missing query", target: "/api/unsplash-image", wantStatus: http.StatusBadRequest},
		{name: "upstream failure", target: "/api/unsplash-image?query=apple", images: stubImages{err: errors.New("403")}, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers, deps := newTestHandlers(t)
			*deps.images = tt.images

			w := serve(handlers, "GET", tt.target)
			if w.Code != tt.wantStatus {
				t.Fatalf("GetUnsplashImage() status = %v, want %v", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var response models.ImageResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("GetUnsplashImage() unmarshal error = %v", err)
			}
			if response.ImageURL != tt.wantURL {
				t.Errorf("GetUnsplashImage() imageUrl = %q, want %q", response.ImageURL, tt.wantURL)
			}
		})
	}
}

func TestHandlers_GetSuggestions(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{query: "app", want: []string{"Apple", "apple", "APPLE", "Pineapple"}},
		{query: "  BAN ", want: []string{"Bananas"}},
		{query: "zzz", want: []string{}},
		{query: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			handlers, _ := newTestHandlers(t)

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/api/suggestions?q="+strings.ReplaceAll(tt.query, " ", "%20"), nil)

			handlers.GetSuggestions(c)

			var response models.SuggestionsResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("GetSuggestions() unmarshal error = %v", err)
			}
			if response.Suggestions == nil {
				t.Fatal("GetSuggestions() suggestions = null, want array")
			}
			if strings.Join(response.Suggestions, "|") != strings.Join(tt.want, "|") {
				t.Errorf("GetSuggestions(%q) = %v, want %v", tt.query, response.Suggestions, tt.want)
			}
		})
	}
}

func TestHandlers_GetDeal(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantDeal   string
		wantText   string
	}{
		{name: "good deal", target: "/api/deal?item=apple&price=1.99", wantStatus: http.StatusOK, wantDeal: "good_deal", wantText: "Average price for apple: $2.00 per lb"},
		{name: "equal is not a deal", target: "/api/deal?item=APPLE&price=2&unit=usd_per_lb", wantStatus: http.StatusOK, wantDeal: "not_good_deal"},
		{name: "cad per kg", target: "/api/deal?item=apple&price=5&unit=cad_per_kg", wantStatus: http.StatusOK, wantDeal: "good_deal", wantText: "Average price for apple: $5.51 per kg"},
		{name: "unknown item", target: "/api/deal?item=zzz&price=1", wantStatus: http.StatusNotFound},
		{name: "malformed price", target: "/api/deal?item=apple&price=abc", wantStatus: http.StatusBadRequest},
		{name: "negative price", target: "/api/deal?item=apple&price=-1", wantStatus: http.StatusBadRequest},
		{name: "unknown unit", target: "/api/deal?item=apple&price=1&unit=eur_per_g", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers, _ := newTestHandlers(t)

			w := serve(handlers, "GET", tt.target)
			if w.Code != tt.wantStatus {
				t.Fatalf("GetDeal() status = %v, want %v (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var response models.DealResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("GetDeal() unmarshal error = %v", err)
			}
			if response.Status != tt.wantDeal {
				t.Errorf("GetDeal() status = %q, want %q", response.Status, tt.wantDeal)
			}
			if tt.wantText != "" && response.AverageText != tt.wantText {
				t.Errorf("GetDeal() averageText = %q, want %q", response.AverageText, tt.wantText)
			}
			if response.Average == nil {
				t.Error("GetDeal() average missing")
			}
		})
	}
}

func TestHandlers_GetDeal_DatasetFailure(t *testing.T) {
	handlers, deps := newTestHandlers(t)
	deps.dataset.err = errors.New("disk gone")

	w := serve(handlers, "GET", "/api/deal?item=apple&price=1")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("GetDeal() status = %v, want %v", w.Code, http.StatusInternalServerError)
	}
}

func TestHandlers_GetConvert(t *testing.T) {
	tests := []struct {
		name          string
		target        string
		wantStatus    int
		wantTo        string
		wantConverted float64
	}{
		{name: "usd per lb to cad per kg", target: "/api/convert?amount=1&from=usd_per_lb", wantStatus: http.StatusOK, wantTo: "cad_per_kg", wantConverted: 2.755775},
		{name: "cad per kg to usd per lb", target: "/api/convert?amount=2.755775&from=cad_per_kg", wantStatus: http.StatusOK, wantTo: "usd_per_lb", wantConverted: 1},
		{name: "negative amount", target: "/api/convert?amount=-3&from=usd_per_lb", wantStatus: http.StatusBadRequest},
		{name: "malformed amount", target: "/api/convert?amount=x&from=usd_per_lb", wantStatus: http.StatusBadRequest},
		{name: "missing unit", target: "/api/convert?amount=1", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers, _ := newTestHandlers(t)

			w := serve(handlers, "GET", tt.target)
			if w.Code != tt.wantStatus {
				t.Fatalf("GetConvert() status = %v, want %v", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var response models.ConvertResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("GetConvert() unmarshal error = %v", err)
			}
			if response.To != tt.wantTo {
				t.Errorf("GetConvert() to = %q, want %q", response.To, tt.wantTo)
			}
			if math.Abs(response.Converted-tt.wantConverted) > 1e-9 {
				t.Errorf("GetConvert() converted = %v, want %v", response.Converted, tt.wantConverted)
			}
			if response.Rate != 1.25 {
				t.Errorf("GetConvert() rate = %v, want 1.25", response.Rate)
			}
		})
	}
}

func TestHandlers_ServeStatic(t *testing.T) {
	handlers, _ := newTestHandlers(t)
	staticDir := handlers.configuration.StaticDir
	if err := os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<html>index</html>"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(staticDir, "app.js"), []byte("console.log('app')"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   string
	}{
		{name: "asset", target: "/app.js", wantStatus: http.StatusOK, wantBody: "console.log('app')"},
		{name: "root", target: "/", wantStatus: http.StatusOK, wantBody: "<html>index</html>"},
		{name: "client route falls back", target: "/items/apple", wantStatus: http.StatusOK, wantBody: "<html>index</html>"},
		{name: "unknown api path", target: "/api/nope", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(handlers, "GET", tt.target)
			if w.Code != tt.wantStatus {
				t.Fatalf("ServeStatic(%s) status = %v, want %v", tt.target, w.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("ServeStatic(%s) body = %q, want %q", tt.target, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandlers_ServeStatic_NoIndex(t *testing.T) {
	handlers, _ := newTestHandlers(t)

	w := serve(handlers, "GET", "/anything")
	if w.Code != http.StatusNotFound {
		t.Errorf("ServeStatic() without index status = %v, want %v", w.Code, http.StatusNotFound)
	}
}

func TestHandlers_RateLimit(t *testing.T) {
	handlers, _ := newTestHandlers(t)
	cfg := testutils.MockConfig()
	cfg.RateLimitBurst = 2
	cfg.RateLimitRequests = 1
	cfg.RateLimitWindow = time.Hour
	limiter := ratelimit.NewLimiter(cfg, testutils.MockLogger())
	defer limiter.Stop()
	handlers.rateLimiter = limiter

	router := handlers.SetupRoutes()
	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/api/exchange-rate", nil))
		statuses = append(statuses, w.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK || statuses[2] != http.StatusTooManyRequests {
		t.Errorf("rate limited statuses = %v, want [200 200 429]", statuses)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %v, want %v (not rate limited)", w.Code, http.StatusOK)
	}
}

func TestHandlers_Middleware(t *testing.T) {
	handlers, _ := newTestHandlers(t)

	router := handlers.SetupRoutes()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/exchange-rate", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

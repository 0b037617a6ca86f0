package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"grocery-price-api/internal/config"
	"grocery-price-api/internal/logger"
)

// UnsplashService looks up a representative photo for a grocery item
type UnsplashService struct {
	accessKey  string
	baseURL    string
	perPage    int
	logger     *logger.Logger
	httpClient *http.Client
}

// NewUnsplashService creates a new image search client
func NewUnsplashService(configuration *config.Config, logger *logger.Logger) *UnsplashService {
	httpTransport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
	if configuration.UnsplashAccessKey == "" {
		logger.Error("UNSPLASH_ACCESS_KEY is not set")
	}
	perPage := configuration.UnsplashPerPage
	if perPage <= 0 {
		perPage = 3
	}
	return &UnsplashService{
		accessKey:  configuration.UnsplashAccessKey,
		baseURL:    configuration.UnsplashBaseURL,
		perPage:    perPage,
		logger:     logger,
		httpClient: &http.Client{Timeout: configuration.UnsplashTimeout, Transport: httpTransport},
	}
}

type unsplashSearchResponse struct {
	Results []struct {
		URLs struct {
			Regular string `json:"regular"`
		} `json:"urls"`
	} `json:"results"`
}

// ImageURL returns the first result's regular-size URL, or "" when nothing matched
func (unsplashService *UnsplashService) ImageURL(ctx context.Context, term string) (string, error) {
	query := url.Values{}
	query.Set("query", term)
	query.Set("client_id", unsplashService.accessKey)
	query.Set("per_page", strconv.Itoa(unsplashService.perPage))

	unsplashService.logger.WithField("query", term).Info("Fetching Unsplash image")

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, unsplashService.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	response, err := unsplashService.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return "", &ServiceError{
			Type:    ErrorTypeInvalidResponse,
			Message: fmt.Sprintf("image search failed with status %d: %s", response.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var result unsplashSearchResponse
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		return "", &ServiceError{
			Type:    ErrorTypeInvalidResponse,
			Message: "failed to parse image search response",
			Cause:   err,
		}
	}

	if len(result.Results) == 0 {
		return "", nil
	}
	return result.Results[0].URLs.Regular, nil
}

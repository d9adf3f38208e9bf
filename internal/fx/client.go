package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// HTTPRateSource fetches rates from the conversion provider's REST API.
type HTTPRateSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPRateSource builds the rates client.
func NewHTTPRateSource(baseURL, apiKey string, logger *zap.Logger) *HTTPRateSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPRateSource{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

type rateResponse struct {
	Rate  float64 `json:"rate"`
	Error string  `json:"error,omitempty"`
}

func (s *HTTPRateSource) Rate(ctx context.Context, from, to string) (float64, error) {
	endpoint := fmt.Sprintf("%s/rates?from=%s&to=%s",
		s.baseURL, url.QueryEscape(from), url.QueryEscape(to))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build rate request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch rate %s->%s: %w", from, to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %s->%s", ErrUnknownCurrency, from, to)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: %s->%s status %d", ErrRateUnavailable, from, to, resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode rate response: %w", err)
	}
	if body.Rate <= 0 {
		return 0, fmt.Errorf("%w: %s->%s", ErrRateUnavailable, from, to)
	}

	s.logger.Debug("fetched fx rate",
		zap.String("from", from), zap.String("to", to), zap.Float64("rate", body.Rate))
	return body.Rate, nil
}

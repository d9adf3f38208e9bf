// Package shipping wraps the shipping-label provider.
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var ErrRateExpired = errors.New("shipping rate expired")

// LabelDownloads are the printable artifacts of a purchased label.
type LabelDownloads struct {
	PDF string `json:"pdf"`
	PNG string `json:"png"`
	ZPL string `json:"zpl"`
}

// Label is a purchased shipping label.
type Label struct {
	LabelID        string         `json:"label_id"`
	TrackingNumber string         `json:"tracking_number"`
	CarrierCode    string         `json:"carrier_code"`
	ServiceCode    string         `json:"service_code"`
	Downloads      LabelDownloads `json:"downloads"`
}

// LabelService purchases shipping labels from previously quoted rates.
type LabelService interface {
	CreateLabelFromRate(ctx context.Context, rateID string) (*Label, error)
}

type httpLabelService struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPLabelService builds the label provider client.
func NewHTTPLabelService(baseURL, apiKey string, logger *zap.Logger) LabelService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &httpLabelService{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (s *httpLabelService) CreateLabelFromRate(ctx context.Context, rateID string) (*Label, error) {
	payload, err := json.Marshal(map[string]string{"label_format": "pdf"})
	if err != nil {
		return nil, fmt.Errorf("encode label request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/labels/rates/%s", s.baseURL, rateID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build label request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("API-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("purchase label for rate %s: %w", rateID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil, fmt.Errorf("%w: %s", ErrRateExpired, rateID)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("purchase label for rate %s: status %d", rateID, resp.StatusCode)
	}

	var label Label
	if err := json.NewDecoder(resp.Body).Decode(&label); err != nil {
		return nil, fmt.Errorf("decode label response: %w", err)
	}

	s.logger.Info("purchased shipping label",
		zap.String("rate_id", rateID),
		zap.String("label_id", label.LabelID),
		zap.String("tracking_number", label.TrackingNumber))
	return &label, nil
}

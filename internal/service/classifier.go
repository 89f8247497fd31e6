package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"reward-service/internal/models"
	"reward-service/internal/util"
)

// Classifier base point bounds. The AI side promises [5,30] but the ledger
// never trusts an external number.
const (
	minBasePoints = 5
	maxBasePoints = 30
)

// ClassificationFlags carry the classifier's hints about an item.
type ClassificationFlags struct {
	CanTrade             bool `json:"can_trade"`
	HasCreativePotential bool `json:"has_creative_potential"`
}

// Classification is the structured guess for one image.
type Classification struct {
	Name           string              `json:"name"`
	Category       string              `json:"category"`
	Confidence     float64             `json:"confidence"`
	Points         int                 `json:"points"`
	IsHuman        bool                `json:"is_human"`
	Unidentifiable bool                `json:"unidentifiable"`
	Flags          ClassificationFlags `json:"flags"`
}

// ClassificationGateway is the opaque external classifier. A transport or
// server failure surfaces as ErrClassificationUnavailable and never creates
// a record.
type ClassificationGateway interface {
	Classify(ctx context.Context, image string) (*Classification, error)
}

// HTTPClassifier calls the classification service over HTTP.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

// NewHTTPClassifier creates a new HTTP classification client
func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Classify sends the image to the classifier and decodes its guess. Base
// points are clamped to the contract range before anyone computes with them.
func (c *HTTPClassifier) Classify(ctx context.Context, image string) (*Classification, error) {
	start := time.Now()
	defer func() {
		util.ClassificationLatency.Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(map[string]string{"image": image})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal classification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build classification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrClassificationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: classifier returned status %d", models.ErrClassificationUnavailable, resp.StatusCode)
	}

	var classification Classification
	if err := json.NewDecoder(resp.Body).Decode(&classification); err != nil {
		return nil, fmt.Errorf("%w: bad classifier response: %v", models.ErrClassificationUnavailable, err)
	}

	if classification.Points < minBasePoints {
		classification.Points = minBasePoints
	}
	if classification.Points > maxBasePoints {
		classification.Points = maxBasePoints
	}

	return &classification, nil
}

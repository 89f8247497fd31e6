package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"reward-service/internal/models"
	"reward-service/internal/util"

	"go.uber.org/zap"
)

// ComplianceResult is the outcome of a marketplace compliance check.
type ComplianceResult struct {
	RiskScore  int      `json:"risk_score"`
	Violations []string `json:"violations"`
	Action     string   `json:"action"`
}

// ComplianceGateway screens listing content before publication.
type ComplianceGateway interface {
	Check(ctx context.Context, title, description, category, imageURL string) (*ComplianceResult, error)
}

// HTTPCompliance calls the external moderation service.
type HTTPCompliance struct {
	url    string
	client *http.Client
}

// NewHTTPCompliance creates a new HTTP compliance client
func NewHTTPCompliance(url string, timeout time.Duration) *HTTPCompliance {
	return &HTTPCompliance{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Check sends the listing content for moderation.
func (c *HTTPCompliance) Check(ctx context.Context, title, description, category, imageURL string) (*ComplianceResult, error) {
	body, err := json.Marshal(map[string]string{
		"title":       title,
		"description": description,
		"category":    category,
		"image_url":   imageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal compliance request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build compliance request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("compliance gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("compliance gateway returned status %d", resp.StatusCode)
	}

	var result ComplianceResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("bad compliance response: %w", err)
	}
	return &result, nil
}

// prohibitedTerms drives the local fallback heuristic.
var prohibitedTerms = []string{
	"weapon", "firearm", "ammunition", "explosive",
	"drug", "narcotic", "prescription", "medication",
	"alcohol", "tobacco", "vape",
	"counterfeit", "stolen", "replica",
	"live animal", "endangered",
}

// Action thresholds over the 0-10 risk score.
const (
	riskNeedsReview = 3
	riskAutoReject  = 7
)

// LocalCompliance is the keyword heuristic used when the gateway is down.
// It produces the same result shape as the external service.
type LocalCompliance struct{}

// Check scores the content against the prohibited-terms list.
func (LocalCompliance) Check(_ context.Context, title, description, category, _ string) (*ComplianceResult, error) {
	content := strings.ToLower(title + " " + description)

	result := &ComplianceResult{Violations: []string{}}
	for _, term := range prohibitedTerms {
		if strings.Contains(content, term) {
			result.Violations = append(result.Violations, term)
			result.RiskScore += 4
		}
	}
	if category == models.CategoryHazardous {
		result.RiskScore += 3
	}
	if result.RiskScore > 10 {
		result.RiskScore = 10
	}

	switch {
	case result.RiskScore >= riskAutoReject:
		result.Action = models.ComplianceAutoReject
	case result.RiskScore >= riskNeedsReview:
		result.Action = models.ComplianceNeedsReview
	default:
		result.Action = models.ComplianceAutoApprove
	}
	return result, nil
}

// ComplianceChecker fronts the gateway and degrades to the local heuristic
// when it fails. A nil gateway means heuristic-only mode.
type ComplianceChecker struct {
	gateway  ComplianceGateway
	fallback LocalCompliance
	logger   *zap.Logger
}

// NewComplianceChecker creates a new compliance checker
func NewComplianceChecker(gateway ComplianceGateway) *ComplianceChecker {
	return &ComplianceChecker{
		gateway: gateway,
		logger:  util.GetLogger(),
	}
}

// Check runs the gateway check with local fallback.
func (cc *ComplianceChecker) Check(ctx context.Context, title, description, category, imageURL string) (*ComplianceResult, error) {
	if cc.gateway != nil {
		result, err := cc.gateway.Check(ctx, title, description, category, imageURL)
		if err == nil {
			return result, nil
		}
		cc.logger.Warn("Compliance gateway failed, using local heuristic", zap.Error(err))
	}

	util.ComplianceFallbackTotal.Inc()
	return cc.fallback.Check(ctx, title, description, category, imageURL)
}

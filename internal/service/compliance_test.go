package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"reward-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalComplianceCleanListing(t *testing.T) {
	result, err := LocalCompliance{}.Check(context.Background(),
		"Wool sweater", "Barely worn, size M", models.CategoryClothing, "")
	require.NoError(t, err)

	assert.Equal(t, 0, result.RiskScore)
	assert.Empty(t, result.Violations)
	assert.Equal(t, models.ComplianceAutoApprove, result.Action)
}

func TestLocalComplianceSingleTerm(t *testing.T) {
	result, err := LocalCompliance{}.Check(context.Background(),
		"Replica watch", "looks like the real thing", models.CategoryOther, "")
	require.NoError(t, err)

	assert.Equal(t, 4, result.RiskScore)
	assert.Equal(t, []string{"replica"}, result.Violations)
	assert.Equal(t, models.ComplianceNeedsReview, result.Action)
}

func TestLocalComplianceMultipleTerms(t *testing.T) {
	result, err := LocalCompliance{}.Check(context.Background(),
		"Vintage firearm", "comes with ammunition", models.CategoryOther, "")
	require.NoError(t, err)

	assert.Equal(t, 8, result.RiskScore)
	assert.Equal(t, models.ComplianceAutoReject, result.Action)
}

func TestLocalComplianceHazardousBump(t *testing.T) {
	result, err := LocalCompliance{}.Check(context.Background(),
		"Old car battery", "still holds charge", models.CategoryHazardous, "")
	require.NoError(t, err)

	// Hazardous alone lands in the review band.
	assert.Equal(t, 3, result.RiskScore)
	assert.Equal(t, models.ComplianceNeedsReview, result.Action)
}

func TestLocalComplianceScoreClamped(t *testing.T) {
	result, err := LocalCompliance{}.Check(context.Background(),
		"weapon drug alcohol", "counterfeit stolen replica", models.CategoryHazardous, "")
	require.NoError(t, err)

	assert.Equal(t, 10, result.RiskScore)
	assert.Equal(t, models.ComplianceAutoReject, result.Action)
}

func TestComplianceCheckerUsesGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"risk_score":1,"violations":[],"action":"auto_approve"}`))
	}))
	defer srv.Close()

	checker := NewComplianceChecker(NewHTTPCompliance(srv.URL, 5*time.Second))
	result, err := checker.Check(context.Background(), "Used phone", "works fine", models.CategoryElectronics, "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.RiskScore)
	assert.Equal(t, models.ComplianceAutoApprove, result.Action)
}

type failingGateway struct{}

func (failingGateway) Check(context.Context, string, string, string, string) (*ComplianceResult, error) {
	return nil, errors.New("gateway down")
}

func TestComplianceCheckerFallsBack(t *testing.T) {
	checker := NewComplianceChecker(failingGateway{})
	result, err := checker.Check(context.Background(), "Replica bag", "", models.CategoryOther, "")
	require.NoError(t, err)

	// Heuristic result, not a gateway error.
	assert.Equal(t, 4, result.RiskScore)
	assert.Equal(t, models.ComplianceNeedsReview, result.Action)
}

func TestComplianceCheckerNilGateway(t *testing.T) {
	checker := NewComplianceChecker(nil)
	result, err := checker.Check(context.Background(), "Clean item", "", models.CategoryOther, "")
	require.NoError(t, err)
	assert.Equal(t, models.ComplianceAutoApprove, result.Action)
}

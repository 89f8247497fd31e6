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

func classifierServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClassifyDecodesResponse(t *testing.T) {
	srv := classifierServer(t, http.StatusOK,
		`{"name":"winter jacket","category":"clothing","confidence":0.92,"points":12,"flags":{"can_trade":true}}`)

	c := NewHTTPClassifier(srv.URL, 5*time.Second)
	got, err := c.Classify(context.Background(), "base64data")
	require.NoError(t, err)

	assert.Equal(t, "winter jacket", got.Name)
	assert.Equal(t, models.CategoryClothing, got.Category)
	assert.Equal(t, 12, got.Points)
	assert.True(t, got.Flags.CanTrade)
	assert.False(t, got.Unidentifiable)
}

func TestClassifyClampsPoints(t *testing.T) {
	srv := classifierServer(t, http.StatusOK,
		`{"name":"gold bar","category":"other","confidence":0.99,"points":5000}`)

	c := NewHTTPClassifier(srv.URL, 5*time.Second)
	got, err := c.Classify(context.Background(), "img")
	require.NoError(t, err)
	assert.Equal(t, 30, got.Points)

	srv2 := classifierServer(t, http.StatusOK,
		`{"name":"bottle cap","category":"recyclable","confidence":0.7,"points":0}`)

	got, err = NewHTTPClassifier(srv2.URL, 5*time.Second).Classify(context.Background(), "img")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Points)
}

func TestClassifyRetrySignals(t *testing.T) {
	srv := classifierServer(t, http.StatusOK, `{"unidentifiable":true}`)

	got, err := NewHTTPClassifier(srv.URL, 5*time.Second).Classify(context.Background(), "blur")
	require.NoError(t, err)
	assert.True(t, got.Unidentifiable)
}

func TestClassifyServerError(t *testing.T) {
	srv := classifierServer(t, http.StatusInternalServerError, `oops`)

	_, err := NewHTTPClassifier(srv.URL, 5*time.Second).Classify(context.Background(), "img")
	assert.True(t, errors.Is(err, models.ErrClassificationUnavailable))
}

func TestClassifyTransportError(t *testing.T) {
	srv := classifierServer(t, http.StatusOK, `{}`)
	srv.Close()

	_, err := NewHTTPClassifier(srv.URL, time.Second).Classify(context.Background(), "img")
	assert.True(t, errors.Is(err, models.ErrClassificationUnavailable))
}

func TestClassifyBadBody(t *testing.T) {
	srv := classifierServer(t, http.StatusOK, `not json`)

	_, err := NewHTTPClassifier(srv.URL, 5*time.Second).Classify(context.Background(), "img")
	assert.True(t, errors.Is(err, models.ErrClassificationUnavailable))
}

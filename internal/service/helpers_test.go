package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"reward-service/internal/broker"
	"reward-service/internal/redisclient"
	"reward-service/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// recordingPublisher captures published events instead of writing to Kafka.
type recordingPublisher struct {
	keys   []string
	events []interface{}
}

func (p *recordingPublisher) PublishEvent(_ context.Context, key string, event interface{}) error {
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)
	return nil
}

func newTestBus() (*broker.Bus, *recordingPublisher) {
	pub := &recordingPublisher{}
	return broker.NewBus(pub), pub
}

// newTestRedis returns a client whose commands fail fast. The services treat
// cache failures as degradation, so this exercises the database-only paths.
func newTestRedis() *redisclient.Client {
	return redisclient.NewClientFromRedis(redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  10 * time.Millisecond,
		ReadTimeout:  10 * time.Millisecond,
		WriteTimeout: 10 * time.Millisecond,
		MaxRetries:   -1,
	}))
}

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewStoreFromDB(sqlx.NewDb(db, "sqlmock")), mock
}

// stubClassifier returns a fixed classification.
type stubClassifier struct {
	result *Classification
	err    error
}

func (s stubClassifier) Classify(context.Context, string) (*Classification, error) {
	return s.result, s.err
}

// recordingMedia counts uploads instead of talking to a blob store.
type recordingMedia struct {
	uploads []string
}

func (m *recordingMedia) Put(_ context.Context, image string) (string, error) {
	m.uploads = append(m.uploads, image)
	return "https://img.example/" + image, nil
}

func (m *recordingMedia) Delete(context.Context, string) (bool, error) {
	return true, nil
}

func accountColumns() []string {
	return []string{"id", "total_points", "level", "streak", "items_recycled",
		"pending_points", "last_scan_at", "created_at", "updated_at"}
}

func accountRow(id uuid.UUID, totalPoints int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(accountColumns()).
		AddRow(id, totalPoints, totalPoints/100+1, 0, 0, 0, nil, now, now)
}

func scanColumns() []string {
	return []string{"id", "account_id", "name", "category", "base_points",
		"disposal_choice", "final_points", "status", "image_url", "scanned_at", "updated_at"}
}

func scanRow(id, accountID uuid.UUID, category string, basePoints int, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(scanColumns()).
		AddRow(id, accountID, "scanned item", category, basePoints, nil, basePoints, status, "", now, now)
}

func listingColumns() []string {
	return []string{"id", "seller_id", "scan_id", "title", "description", "category",
		"price_points", "status", "risk_score", "condition", "pickup_method", "image_url",
		"created_at", "updated_at"}
}

func listingRow(id, sellerID uuid.UUID, pricePoints int, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(listingColumns()).
		AddRow(id, sellerID, nil, "old lamp", "", "other", pricePoints, status, 0, "", "", "", now, now)
}

func errNoRows() error {
	return sql.ErrNoRows
}

package worker

import (
	"context"
	"testing"

	"reward-service/internal/models"
	"reward-service/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T) (*NotificationWorker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewNotificationWorker(nil, store.NewStoreFromDB(sqlx.NewDb(db, "sqlmock"))), mock
}

func TestProcessInsertsAndMarks(t *testing.T) {
	w, mock := newTestWorker(t)
	accountID := uuid.New()
	base := models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeScanApproved}

	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO processed_events").WillReturnResult(sqlmock.NewResult(0, 1))

	err := w.process(context.Background(), base, &models.Notification{
		AccountID: &accountID,
		Kind:      "scan_approved",
		Title:     "Scan approved",
		Body:      "Your item earned 10 points.",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessSkipsRedelivery(t *testing.T) {
	w, mock := newTestWorker(t)
	accountID := uuid.New()
	base := models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeScanApproved}

	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := w.process(context.Background(), base, &models.Notification{
		AccountID: &accountID,
		Kind:      "scan_approved",
	})
	require.NoError(t, err)

	// No insert, no second mark.
	assert.NoError(t, mock.ExpectationsWereMet())
}

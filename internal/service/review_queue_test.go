package service

import (
	"context"
	"testing"

	"reward-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReviewQueue(t *testing.T) (*ReviewQueue, sqlmock.Sqlmock, *recordingPublisher) {
	t.Helper()
	st, mock := newMockStore(t)
	redis := newTestRedis()
	bus, pub := newTestBus()
	ledger := NewPointsLedger(st, redis, bus)
	return NewReviewQueue(st, redis, ledger, bus), mock, pub
}

func TestApproveScanCreditsOnce(t *testing.T) {
	rq, mock, pub := newReviewQueue(t)
	scanID := uuid.New()
	accountID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM scans WHERE id").
		WillReturnRows(scanRow(scanID, accountID, models.CategoryClothing, 25, models.ScanStatusPending))
	mock.ExpectExec("UPDATE scans SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("pending_points = GREATEST").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE accounts").
		WillReturnRows(sqlmock.NewRows([]string{"total_points"}).AddRow(25))
	mock.ExpectCommit()

	scan, err := rq.ApproveScan(context.Background(), scanID)
	require.NoError(t, err)

	assert.Equal(t, models.ScanStatusApproved, scan.Status)
	require.Len(t, pub.events, 1)
	approved, ok := pub.events[0].(*models.ScanApprovedEvent)
	require.True(t, ok)
	assert.Equal(t, 25, approved.FinalPoints)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveScanAlreadySettledIsNoop(t *testing.T) {
	rq, mock, pub := newReviewQueue(t)
	scanID := uuid.New()
	accountID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM scans WHERE id").
		WillReturnRows(scanRow(scanID, accountID, models.CategoryClothing, 25, models.ScanStatusApproved))
	mock.ExpectRollback()
	// The duplicate action reloads and reports the current state.
	mock.ExpectQuery("SELECT \\* FROM scans WHERE id").
		WillReturnRows(scanRow(scanID, accountID, models.CategoryClothing, 25, models.ScanStatusApproved))

	scan, err := rq.ApproveScan(context.Background(), scanID)
	require.NoError(t, err)

	assert.Equal(t, models.ScanStatusApproved, scan.Status)
	assert.Empty(t, pub.events, "no second credit, no second event")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectScanNeverCredits(t *testing.T) {
	rq, mock, pub := newReviewQueue(t)
	scanID := uuid.New()
	accountID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM scans WHERE id").
		WillReturnRows(scanRow(scanID, accountID, models.CategoryElectronics, 15, models.ScanStatusPending))
	mock.ExpectExec("UPDATE scans SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("pending_points = GREATEST").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	scan, err := rq.RejectScan(context.Background(), scanID, "not recyclable")
	require.NoError(t, err)

	assert.Equal(t, models.ScanStatusRejected, scan.Status)
	require.Len(t, pub.events, 1)
	rejected, ok := pub.events[0].(*models.ScanRejectedEvent)
	require.True(t, ok)
	assert.Equal(t, "not recyclable", rejected.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveListingPublishes(t *testing.T) {
	rq, mock, pub := newReviewQueue(t)
	listingID := uuid.New()
	sellerID := uuid.New()

	mock.ExpectExec("UPDATE listings SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM listings WHERE id").
		WillReturnRows(listingRow(listingID, sellerID, 40, models.ListingStatusActive))

	listing, err := rq.ApproveListing(context.Background(), listingID)
	require.NoError(t, err)

	assert.Equal(t, models.ListingStatusActive, listing.Status)
	require.Len(t, pub.events, 1)
	assert.IsType(t, &models.ListingActiveEvent{}, pub.events[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveListingAlreadyDecidedIsNoop(t *testing.T) {
	rq, mock, pub := newReviewQueue(t)
	listingID := uuid.New()
	sellerID := uuid.New()

	mock.ExpectExec("UPDATE listings SET status").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT \\* FROM listings WHERE id").
		WillReturnRows(listingRow(listingID, sellerID, 40, models.ListingStatusActive))

	listing, err := rq.ApproveListing(context.Background(), listingID)
	require.NoError(t, err)

	assert.Equal(t, models.ListingStatusActive, listing.Status)
	assert.Empty(t, pub.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectListingCancels(t *testing.T) {
	rq, mock, pub := newReviewQueue(t)
	listingID := uuid.New()
	sellerID := uuid.New()

	mock.ExpectExec("UPDATE listings SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM listings WHERE id").
		WillReturnRows(listingRow(listingID, sellerID, 40, models.ListingStatusCancelled))

	listing, err := rq.RejectListing(context.Background(), listingID, "prohibited item")
	require.NoError(t, err)

	assert.Equal(t, models.ListingStatusCancelled, listing.Status)
	require.Len(t, pub.events, 1)
	closed, ok := pub.events[0].(*models.ListingClosedEvent)
	require.True(t, ok)
	assert.Equal(t, "prohibited item", closed.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

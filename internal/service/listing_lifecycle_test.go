package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"reward-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newListingLifecycle(t *testing.T) (*ListingLifecycle, sqlmock.Sqlmock, *recordingPublisher) {
	t.Helper()
	st, mock := newMockStore(t)
	bus, pub := newTestBus()
	return NewListingLifecycle(st, NewComplianceChecker(nil), newTestRedis(), bus), mock, pub
}

func draftRow(id, sellerID uuid.UUID, title, description, category string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(listingColumns()).
		AddRow(id, sellerID, nil, title, description, category, 50,
			models.ListingStatusDraft, 0, "", "", "", now, now)
}

func TestSubmitCleanListingPublishes(t *testing.T) {
	ll, mock, pub := newListingLifecycle(t)
	listingID := uuid.New()
	sellerID := uuid.New()

	mock.ExpectQuery("SELECT \\* FROM listings WHERE id").
		WillReturnRows(draftRow(listingID, sellerID, "Wool sweater", "size M", models.CategoryClothing))
	mock.ExpectExec("UPDATE listings SET status").WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := ll.Submit(context.Background(), models.Actor{AccountID: sellerID}, listingID)
	require.NoError(t, err)

	assert.Equal(t, models.ComplianceAutoApprove, result.Action)
	assert.Equal(t, models.ListingStatusActive, result.Listing.Status)
	require.Len(t, pub.events, 1)
	assert.IsType(t, &models.ListingActiveEvent{}, pub.events[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitSuspectListingParksForReview(t *testing.T) {
	ll, mock, pub := newListingLifecycle(t)
	listingID := uuid.New()
	sellerID := uuid.New()

	mock.ExpectQuery("SELECT \\* FROM listings WHERE id").
		WillReturnRows(draftRow(listingID, sellerID, "Replica watch", "", models.CategoryOther))
	mock.ExpectExec("UPDATE listings SET status").WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := ll.Submit(context.Background(), models.Actor{AccountID: sellerID}, listingID)
	require.NoError(t, err)

	assert.Equal(t, models.ComplianceNeedsReview, result.Action)
	assert.Equal(t, models.ListingStatusPendingReview, result.Listing.Status)
	assert.Contains(t, result.Violations, "replica")
	assert.Empty(t, pub.events, "nothing published until an admin decides")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitRejectedListingStaysDraft(t *testing.T) {
	ll, mock, pub := newListingLifecycle(t)
	listingID := uuid.New()
	sellerID := uuid.New()

	mock.ExpectQuery("SELECT \\* FROM listings WHERE id").
		WillReturnRows(draftRow(listingID, sellerID, "Vintage firearm", "with ammunition", models.CategoryOther))
	mock.ExpectExec("UPDATE listings SET status").WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := ll.Submit(context.Background(), models.Actor{AccountID: sellerID}, listingID)
	require.NoError(t, err)

	assert.Equal(t, models.ComplianceAutoReject, result.Action)
	assert.Equal(t, models.ListingStatusDraft, result.Listing.Status)
	assert.Empty(t, pub.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitForeignListing(t *testing.T) {
	ll, mock, _ := newListingLifecycle(t)
	listingID := uuid.New()

	mock.ExpectQuery("SELECT \\* FROM listings WHERE id").
		WillReturnRows(draftRow(listingID, uuid.New(), "bike", "", models.CategoryOther))

	_, err := ll.Submit(context.Background(), models.Actor{AccountID: uuid.New()}, listingID)
	assert.True(t, errors.Is(err, models.ErrNotOwner))
}

func TestSubmitNonDraft(t *testing.T) {
	ll, mock, _ := newListingLifecycle(t)
	listingID := uuid.New()
	sellerID := uuid.New()

	mock.ExpectQuery("SELECT \\* FROM listings WHERE id").
		WillReturnRows(listingRow(listingID, sellerID, 50, models.ListingStatusActive))

	_, err := ll.Submit(context.Background(), models.Actor{AccountID: sellerID}, listingID)
	assert.True(t, errors.Is(err, models.ErrStaleTransition))
}

func TestCreateDirectSkipsCompliance(t *testing.T) {
	ll, mock, pub := newListingLifecycle(t)
	sellerID := uuid.New()

	mock.ExpectExec("INSERT INTO listings").WillReturnResult(sqlmock.NewResult(0, 1))

	listing, err := ll.CreateDirect(context.Background(), models.Actor{AccountID: sellerID},
		ListingInput{Title: "Replica watch", Category: models.CategoryOther, PricePoints: 80})
	require.NoError(t, err)

	// Direct creation publishes immediately even with content the draft
	// pipeline would have flagged.
	assert.Equal(t, models.ListingStatusActive, listing.Status)
	require.Len(t, pub.events, 1)
	assert.IsType(t, &models.ListingActiveEvent{}, pub.events[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelSettledListing(t *testing.T) {
	ll, mock, pub := newListingLifecycle(t)

	mock.ExpectExec("UPDATE listings SET status").WillReturnResult(sqlmock.NewResult(0, 0))

	err := ll.Cancel(context.Background(), models.Actor{AccountID: uuid.New()}, uuid.New())
	assert.True(t, errors.Is(err, models.ErrStaleTransition))
	assert.Empty(t, pub.events)
}

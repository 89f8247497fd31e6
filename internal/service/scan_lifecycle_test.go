package service

import (
	"context"
	"errors"
	"testing"

	"reward-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScanLifecycle(t *testing.T, classifier ClassificationGateway) (*ScanLifecycle, sqlmock.Sqlmock, *recordingPublisher) {
	t.Helper()
	st, mock := newMockStore(t)
	redis := newTestRedis()
	bus, pub := newTestBus()
	ledger := NewPointsLedger(st, redis, bus)
	return NewScanLifecycle(st, classifier, nil, ledger, bus, 0.5), mock, pub
}

func TestCreateScanRetryOnUnidentifiable(t *testing.T) {
	sl, mock, pub := newScanLifecycle(t, stubClassifier{
		result: &Classification{Unidentifiable: true},
	})

	result, err := sl.CreateScan(context.Background(), models.Actor{AccountID: uuid.New()}, "blurry")
	require.NoError(t, err)

	assert.Equal(t, OutcomeRetry, result.Outcome)
	assert.Nil(t, result.Scan)
	assert.Empty(t, pub.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateScanRetryOnHuman(t *testing.T) {
	sl, mock, _ := newScanLifecycle(t, stubClassifier{
		result: &Classification{IsHuman: true, Name: "person"},
	})

	result, err := sl.CreateScan(context.Background(), models.Actor{AccountID: uuid.New()}, "selfie")
	require.NoError(t, err)

	assert.Equal(t, OutcomeRetry, result.Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateScanRetryOnLowConfidence(t *testing.T) {
	sl, mock, pub := newScanLifecycle(t, stubClassifier{
		result: &Classification{Name: "maybe a shoe", Category: models.CategoryClothing, Confidence: 0.05, Points: 12},
	})

	result, err := sl.CreateScan(context.Background(), models.Actor{AccountID: uuid.New()}, "dark")
	require.NoError(t, err)

	assert.Equal(t, OutcomeRetry, result.Outcome)
	assert.Nil(t, result.Scan)
	assert.Empty(t, pub.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateScanRetryOnUnknownCategory(t *testing.T) {
	sl, mock, pub := newScanLifecycle(t, stubClassifier{
		result: &Classification{Name: "mystery box", Category: "antique", Confidence: 0.95, Points: 20},
	})

	result, err := sl.CreateScan(context.Background(), models.Actor{AccountID: uuid.New()}, "img")
	require.NoError(t, err)

	assert.Equal(t, OutcomeRetry, result.Outcome)
	assert.Nil(t, result.Scan)
	assert.Empty(t, pub.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateScanClassifierUnavailable(t *testing.T) {
	sl, mock, _ := newScanLifecycle(t, stubClassifier{
		err: models.ErrClassificationUnavailable,
	})

	_, err := sl.CreateScan(context.Background(), models.Actor{AccountID: uuid.New()}, "img")
	assert.True(t, errors.Is(err, models.ErrClassificationUnavailable))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateScanOtherCategoryCreditsImmediately(t *testing.T) {
	sl, mock, pub := newScanLifecycle(t, stubClassifier{
		result: &Classification{Name: "ceramic mug", Category: models.CategoryOther, Confidence: 0.92, Points: 10},
	})
	accountID := uuid.New()

	mock.ExpectExec("INSERT INTO accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scans").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE accounts").
		WillReturnRows(sqlmock.NewRows([]string{"total_points"}).AddRow(10))
	mock.ExpectExec("items_recycled = items_recycled").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET streak = CASE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := sl.CreateScan(context.Background(), models.Actor{AccountID: accountID}, "img")
	require.NoError(t, err)

	assert.Equal(t, OutcomeStored, result.Outcome)
	assert.False(t, result.NeedsChoice)
	assert.Equal(t, models.ScanStatusApproved, result.Scan.Status)
	assert.Equal(t, 10, result.Scan.FinalPoints)

	// ScanApproved then ScanCreated.
	require.Len(t, pub.events, 2)
	assert.IsType(t, &models.ScanApprovedEvent{}, pub.events[0])
	assert.IsType(t, &models.ScanCreatedEvent{}, pub.events[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateScanChoiceCategoryStaysPending(t *testing.T) {
	sl, mock, pub := newScanLifecycle(t, stubClassifier{
		result: &Classification{Name: "denim jacket", Category: models.CategoryClothing, Confidence: 0.88, Points: 12},
	})
	accountID := uuid.New()

	mock.ExpectExec("INSERT INTO accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scans").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("pending_points = pending_points").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET streak = CASE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := sl.CreateScan(context.Background(), models.Actor{AccountID: accountID}, "img")
	require.NoError(t, err)

	assert.True(t, result.NeedsChoice)
	assert.Equal(t, models.ScanStatusPending, result.Scan.Status)

	// No credit yet, only ScanCreated.
	require.Len(t, pub.events, 1)
	assert.IsType(t, &models.ScanCreatedEvent{}, pub.events[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuestScanSkipsImageUpload(t *testing.T) {
	st, mock := newMockStore(t)
	bus, pub := newTestBus()
	ledger := NewPointsLedger(st, newTestRedis(), bus)
	media := &recordingMedia{}
	sl := NewScanLifecycle(st, stubClassifier{
		result: &Classification{Name: "wool scarf", Category: models.CategoryClothing, Confidence: 0.9, Points: 8},
	}, media, ledger, bus, 0.5)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO guest_profiles").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO guest_scans").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := sl.CreateScan(context.Background(), models.Actor{DeviceID: "device-7"}, "img")
	require.NoError(t, err)

	assert.Equal(t, OutcomeStored, result.Outcome)
	assert.True(t, result.NeedsChoice)
	assert.Equal(t, models.ScanStatusPending, result.GuestScan.Status)
	// Guest scans carry no image, so nothing is uploaded.
	assert.Empty(t, media.uploads)
	assert.Empty(t, pub.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyChoiceNotOwner(t *testing.T) {
	sl, mock, _ := newScanLifecycle(t, stubClassifier{})
	scanID := uuid.New()

	mock.ExpectQuery("SELECT \\* FROM scans WHERE id").
		WillReturnRows(scanRow(scanID, uuid.New(), models.CategoryClothing, 10, models.ScanStatusPending))

	_, err := sl.ApplyDisposalChoice(context.Background(),
		models.Actor{AccountID: uuid.New()}, scanID, models.ChoiceDonate)
	assert.True(t, errors.Is(err, models.ErrNotOwner))
}

func TestApplyChoiceOnSettledScan(t *testing.T) {
	sl, mock, _ := newScanLifecycle(t, stubClassifier{})
	scanID := uuid.New()
	accountID := uuid.New()

	mock.ExpectQuery("SELECT \\* FROM scans WHERE id").
		WillReturnRows(scanRow(scanID, accountID, models.CategoryClothing, 10, models.ScanStatusApproved))

	_, err := sl.ApplyDisposalChoice(context.Background(),
		models.Actor{AccountID: accountID}, scanID, models.ChoiceDonate)
	assert.True(t, errors.Is(err, models.ErrStaleTransition))
}

func TestApplyChoiceInvalidForCategory(t *testing.T) {
	sl, mock, _ := newScanLifecycle(t, stubClassifier{})
	scanID := uuid.New()
	accountID := uuid.New()

	mock.ExpectQuery("SELECT \\* FROM scans WHERE id").
		WillReturnRows(scanRow(scanID, accountID, models.CategoryHazardous, 10, models.ScanStatusPending))

	_, err := sl.ApplyDisposalChoice(context.Background(),
		models.Actor{AccountID: accountID}, scanID, models.ChoiceDiscard)
	assert.True(t, errors.Is(err, models.ErrInvalidDisposalChoice))
}

func TestApplyChoiceDiscardCreditsImmediately(t *testing.T) {
	sl, mock, pub := newScanLifecycle(t, stubClassifier{})
	scanID := uuid.New()
	accountID := uuid.New()

	mock.ExpectQuery("SELECT \\* FROM scans WHERE id").
		WillReturnRows(scanRow(scanID, accountID, models.CategoryClothing, 10, models.ScanStatusPending))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM scans WHERE id").
		WillReturnRows(scanRow(scanID, accountID, models.CategoryClothing, 10, models.ScanStatusPending))
	mock.ExpectExec("UPDATE scans").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("pending_points = GREATEST").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE accounts").
		WillReturnRows(sqlmock.NewRows([]string{"total_points"}).AddRow(10))
	mock.ExpectCommit()

	result, err := sl.ApplyDisposalChoice(context.Background(),
		models.Actor{AccountID: accountID}, scanID, models.ChoiceDiscard)
	require.NoError(t, err)

	// Clothing discard keeps the base points: 10 * 1.0.
	assert.Equal(t, models.ScanStatusApproved, result.Scan.Status)
	assert.Equal(t, 10, result.Scan.FinalPoints)

	require.Len(t, pub.events, 1)
	assert.IsType(t, &models.ScanApprovedEvent{}, pub.events[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyChoiceTradeSeedsDraftListing(t *testing.T) {
	sl, mock, pub := newScanLifecycle(t, stubClassifier{})
	scanID := uuid.New()
	accountID := uuid.New()

	mock.ExpectQuery("SELECT \\* FROM scans WHERE id").
		WillReturnRows(scanRow(scanID, accountID, models.CategoryClothing, 10, models.ScanStatusPending))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM scans WHERE id").
		WillReturnRows(scanRow(scanID, accountID, models.CategoryClothing, 10, models.ScanStatusPending))
	mock.ExpectExec("UPDATE scans").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("pending_points = GREATEST").WillReturnResult(sqlmock.NewResult(0, 1))
	// Draft listing priced at twice the final points: round(10 * 1.8) * 2.
	mock.ExpectExec("INSERT INTO listings").
		WithArgs(sqlmock.AnyArg(), accountID, scanID, "scanned item", "", models.CategoryClothing,
			36, models.ListingStatusDraft, 0, "", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := sl.ApplyDisposalChoice(context.Background(),
		models.Actor{AccountID: accountID}, scanID, models.ChoiceTrade)
	require.NoError(t, err)

	// Trade waits for review, nothing credited yet.
	assert.Equal(t, models.ScanStatusPending, result.Scan.Status)
	assert.Equal(t, 18, result.Scan.FinalPoints)
	assert.Empty(t, pub.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

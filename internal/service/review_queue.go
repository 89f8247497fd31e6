package service

import (
	"context"
	"errors"

	"reward-service/internal/broker"
	"reward-service/internal/models"
	"reward-service/internal/redisclient"
	"reward-service/internal/store"
	"reward-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReviewQueue is the admin surface over pending scans and pending_review
// listings. Every transition is guarded on the record's current status, so
// duplicate clicks and replayed realtime events collapse into no-op
// successes instead of double credits.
type ReviewQueue struct {
	store  *store.Store
	redis  *redisclient.Client
	ledger *PointsLedger
	bus    *broker.Bus
	logger *zap.Logger
}

// NewReviewQueue creates a new review queue service
func NewReviewQueue(
	store *store.Store,
	redis *redisclient.Client,
	ledger *PointsLedger,
	bus *broker.Bus,
) *ReviewQueue {
	return &ReviewQueue{
		store:  store,
		redis:  redis,
		ledger: ledger,
		bus:    bus,
		logger: util.GetLogger(),
	}
}

// PendingScans lists scans awaiting review, oldest first.
func (rq *ReviewQueue) PendingScans(ctx context.Context, limit int) ([]models.ScanRecord, error) {
	return rq.store.ListPendingScans(ctx, limit)
}

// PendingListings lists listings awaiting review, oldest first.
func (rq *ReviewQueue) PendingListings(ctx context.Context, limit int) ([]models.Listing, error) {
	return rq.store.ListPendingReviewListings(ctx, limit)
}

// ApproveScan credits a pending scan's final points exactly once and settles
// its pending total. A scan that already left pending is returned as-is.
func (rq *ReviewQueue) ApproveScan(ctx context.Context, scanID uuid.UUID) (*models.ScanRecord, error) {
	ctx, span := util.StartSpan(ctx, "ReviewQueue.ApproveScan")
	defer span.End()

	mutation, err := rq.store.ApproveScanTx(ctx, scanID)
	if errors.Is(err, models.ErrStaleTransition) {
		// Repeated admin action: report the current state as a success.
		return rq.store.GetScanByID(ctx, scanID)
	}
	if err != nil {
		return nil, err
	}

	util.ReviewActionsTotal.WithLabelValues("scan", "approve").Inc()
	util.PointsCreditedTotal.Add(float64(mutation.Scan.FinalPoints))
	rq.ledger.SettleBalance(ctx, mutation.Scan.AccountID, mutation.OldBalance, mutation.NewBalance)

	event := &models.ScanApprovedEvent{
		BaseEvent:   broker.NewBase(models.EventTypeScanApproved),
		ScanID:      mutation.Scan.ID,
		AccountID:   mutation.Scan.AccountID,
		Name:        mutation.Scan.Name,
		FinalPoints: mutation.Scan.FinalPoints,
	}
	if err := rq.bus.PublishScanApproved(ctx, event); err != nil {
		rq.logger.Error("Failed to publish ScanApproved event", zap.Error(err))
	}

	return mutation.Scan, nil
}

// RejectScan terminates a pending scan without any credit, ever.
func (rq *ReviewQueue) RejectScan(ctx context.Context, scanID uuid.UUID, reason string) (*models.ScanRecord, error) {
	ctx, span := util.StartSpan(ctx, "ReviewQueue.RejectScan")
	defer span.End()

	scan, err := rq.store.RejectScanTx(ctx, scanID)
	if errors.Is(err, models.ErrStaleTransition) {
		return rq.store.GetScanByID(ctx, scanID)
	}
	if err != nil {
		return nil, err
	}

	util.ReviewActionsTotal.WithLabelValues("scan", "reject").Inc()

	event := &models.ScanRejectedEvent{
		BaseEvent: broker.NewBase(models.EventTypeScanRejected),
		ScanID:    scan.ID,
		AccountID: scan.AccountID,
		Reason:    reason,
	}
	if err := rq.bus.PublishScanRejected(ctx, event); err != nil {
		rq.logger.Error("Failed to publish ScanRejected event", zap.Error(err))
	}

	return scan, nil
}

// ApproveListing publishes a pending_review listing. A listing that already
// left pending_review is a no-op success.
func (rq *ReviewQueue) ApproveListing(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	ctx, span := util.StartSpan(ctx, "ReviewQueue.ApproveListing")
	defer span.End()

	ok, err := rq.store.TransitionListing(ctx, listingID,
		models.ListingStatusPendingReview, models.ListingStatusActive)
	if err != nil {
		return nil, err
	}

	listing, err := rq.store.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return listing, nil
	}

	util.ReviewActionsTotal.WithLabelValues("listing", "approve").Inc()
	if err := rq.redis.InvalidateBrowse(ctx); err != nil {
		rq.logger.Warn("Failed to invalidate browse cache", zap.Error(err))
	}

	event := &models.ListingActiveEvent{
		BaseEvent: broker.NewBase(models.EventTypeListingActive),
		ListingID: listing.ID,
		SellerID:  listing.SellerID,
		Title:     listing.Title,
	}
	if err := rq.bus.PublishListingActive(ctx, event); err != nil {
		rq.logger.Error("Failed to publish ListingActive event", zap.Error(err))
	}

	return listing, nil
}

// RejectListing cancels a pending_review listing. A listing that already
// left pending_review is a no-op success.
func (rq *ReviewQueue) RejectListing(ctx context.Context, listingID uuid.UUID, reason string) (*models.Listing, error) {
	ctx, span := util.StartSpan(ctx, "ReviewQueue.RejectListing")
	defer span.End()

	ok, err := rq.store.TransitionListing(ctx, listingID,
		models.ListingStatusPendingReview, models.ListingStatusCancelled)
	if err != nil {
		return nil, err
	}

	listing, err := rq.store.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return listing, nil
	}

	util.ReviewActionsTotal.WithLabelValues("listing", "reject").Inc()

	event := &models.ListingClosedEvent{
		BaseEvent: broker.NewBase(models.EventTypeListingClosed),
		ListingID: listing.ID,
		SellerID:  listing.SellerID,
		Reason:    reason,
	}
	if err := rq.bus.PublishListingClosed(ctx, event); err != nil {
		rq.logger.Error("Failed to publish ListingClosed event", zap.Error(err))
	}

	return listing, nil
}

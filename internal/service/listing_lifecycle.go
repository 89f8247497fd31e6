package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reward-service/internal/broker"
	"reward-service/internal/models"
	"reward-service/internal/redisclient"
	"reward-service/internal/store"
	"reward-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const browseCacheTTL = 30 * time.Second

// ListingInput carries the seller-editable fields of a listing.
type ListingInput struct {
	Title        string `json:"title" binding:"required"`
	Description  string `json:"description"`
	Category     string `json:"category" binding:"required"`
	PricePoints  int    `json:"price_points" binding:"required,min=1"`
	Condition    string `json:"condition"`
	PickupMethod string `json:"pickup_method"`
	ImageURL     string `json:"image_url"`
}

// SubmitResult is the outcome of pushing a draft through the compliance gate.
type SubmitResult struct {
	Listing    *models.Listing `json:"listing"`
	Action     string          `json:"action"`
	RiskScore  int             `json:"risk_score"`
	Violations []string        `json:"violations,omitempty"`
}

// ListingLifecycle manages a listing's progression from draft to
// active/sold/cancelled, including the compliance gate.
type ListingLifecycle struct {
	store      *store.Store
	compliance *ComplianceChecker
	redis      *redisclient.Client
	bus        *broker.Bus
	logger     *zap.Logger
}

// NewListingLifecycle creates a new listing lifecycle service
func NewListingLifecycle(
	store *store.Store,
	compliance *ComplianceChecker,
	redis *redisclient.Client,
	bus *broker.Bus,
) *ListingLifecycle {
	return &ListingLifecycle{
		store:      store,
		compliance: compliance,
		redis:      redis,
		bus:        bus,
		logger:     util.GetLogger(),
	}
}

// CreateDraft creates an unpublished listing, editable and invisible to
// browse until submitted.
func (l *ListingLifecycle) CreateDraft(ctx context.Context, actor models.Actor, input ListingInput) (*models.Listing, error) {
	listing := listingFromInput(actor.AccountID, input)
	listing.Status = models.ListingStatusDraft
	if err := l.store.CreateListing(ctx, listing); err != nil {
		return nil, err
	}
	return listing, nil
}

// CreateDirect publishes a listing straight to active, skipping the
// compliance gate. Scan-originated trade drafts always pass through
// compliance on submission; direct marketplace creation does not. The
// asymmetry is a deliberate policy choice, kept as two distinct paths.
func (l *ListingLifecycle) CreateDirect(ctx context.Context, actor models.Actor, input ListingInput) (*models.Listing, error) {
	listing := listingFromInput(actor.AccountID, input)
	listing.Status = models.ListingStatusActive
	if err := l.store.CreateListing(ctx, listing); err != nil {
		return nil, err
	}

	l.invalidateBrowse(ctx)
	l.publishActive(ctx, listing)
	return listing, nil
}

// UpdateDraft edits a listing the seller still controls. Sold and cancelled
// listings are immutable.
func (l *ListingLifecycle) UpdateDraft(ctx context.Context, actor models.Actor, listingID uuid.UUID, input ListingInput) (*models.Listing, error) {
	listing := listingFromInput(actor.AccountID, input)
	listing.ID = listingID
	if err := l.store.UpdateListingDraft(ctx, listing); err != nil {
		return nil, err
	}
	return l.store.GetListingByID(ctx, listingID)
}

// Submit runs a draft through the compliance gate. auto_approve publishes,
// needs_review parks the listing for an admin, auto_reject refuses the
// submission and leaves the draft editable with the violations surfaced.
func (l *ListingLifecycle) Submit(ctx context.Context, actor models.Actor, listingID uuid.UUID) (*SubmitResult, error) {
	ctx, span := util.StartSpan(ctx, "ListingLifecycle.Submit")
	defer span.End()

	listing, err := l.store.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != actor.AccountID {
		return nil, models.ErrNotOwner
	}
	if listing.Status != models.ListingStatusDraft {
		return nil, models.ErrStaleTransition
	}

	check, err := l.compliance.Check(ctx, listing.Title, listing.Description, listing.Category, listing.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("compliance check failed: %w", err)
	}

	util.ListingsSubmittedTotal.WithLabelValues(check.Action).Inc()

	switch check.Action {
	case models.ComplianceAutoApprove:
		ok, err := l.store.SubmitListingResult(ctx, listingID, check.RiskScore, models.ListingStatusActive)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, models.ErrStaleTransition
		}
		listing.Status = models.ListingStatusActive
		l.invalidateBrowse(ctx)
		l.publishActive(ctx, listing)

	case models.ComplianceNeedsReview:
		ok, err := l.store.SubmitListingResult(ctx, listingID, check.RiskScore, models.ListingStatusPendingReview)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, models.ErrStaleTransition
		}
		listing.Status = models.ListingStatusPendingReview

	case models.ComplianceAutoReject:
		// Submission refused; the listing stays an editable draft.
		if _, err := l.store.SubmitListingResult(ctx, listingID, check.RiskScore, models.ListingStatusDraft); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown compliance action: %s", check.Action)
	}

	listing.RiskScore = check.RiskScore
	return &SubmitResult{
		Listing:    listing,
		Action:     check.Action,
		RiskScore:  check.RiskScore,
		Violations: check.Violations,
	}, nil
}

// Cancel withdraws a listing. Irreversible; allowed from draft,
// pending_review and active only.
func (l *ListingLifecycle) Cancel(ctx context.Context, actor models.Actor, listingID uuid.UUID) error {
	ok, err := l.store.CancelListing(ctx, listingID, actor.AccountID)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrStaleTransition
	}

	l.invalidateBrowse(ctx)
	event := &models.ListingClosedEvent{
		BaseEvent: broker.NewBase(models.EventTypeListingClosed),
		ListingID: listingID,
		SellerID:  actor.AccountID,
		Reason:    "seller_cancelled",
	}
	if err := l.bus.PublishListingClosed(ctx, event); err != nil {
		l.logger.Error("Failed to publish ListingClosed event", zap.Error(err))
	}
	return nil
}

// Get retrieves one listing.
func (l *ListingLifecycle) Get(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	return l.store.GetListingByID(ctx, listingID)
}

// Browse returns a page of active listings, served from the Redis cache when
// fresh.
func (l *ListingLifecycle) Browse(ctx context.Context, limit, offset int) ([]models.Listing, error) {
	page := fmt.Sprintf("%d-%d", limit, offset)

	if cached, err := l.redis.GetBrowsePage(ctx, page); err == nil && cached != nil {
		var listings []models.Listing
		if err := json.Unmarshal(cached, &listings); err == nil {
			return listings, nil
		}
	}

	listings, err := l.store.ListActiveListings(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(listings); err == nil {
		if err := l.redis.CacheBrowsePage(ctx, page, payload, browseCacheTTL); err != nil {
			l.logger.Warn("Failed to cache browse page", zap.Error(err))
		}
	}
	return listings, nil
}

// Mine returns all of the seller's listings, any status.
func (l *ListingLifecycle) Mine(ctx context.Context, actor models.Actor) ([]models.Listing, error) {
	return l.store.ListListingsBySeller(ctx, actor.AccountID)
}

func (l *ListingLifecycle) invalidateBrowse(ctx context.Context) {
	if err := l.redis.InvalidateBrowse(ctx); err != nil {
		l.logger.Warn("Failed to invalidate browse cache", zap.Error(err))
	}
}

func (l *ListingLifecycle) publishActive(ctx context.Context, listing *models.Listing) {
	event := &models.ListingActiveEvent{
		BaseEvent: broker.NewBase(models.EventTypeListingActive),
		ListingID: listing.ID,
		SellerID:  listing.SellerID,
		Title:     listing.Title,
	}
	if err := l.bus.PublishListingActive(ctx, event); err != nil {
		l.logger.Error("Failed to publish ListingActive event", zap.Error(err))
	}
}

func listingFromInput(sellerID uuid.UUID, input ListingInput) *models.Listing {
	return &models.Listing{
		ID:           uuid.New(),
		SellerID:     sellerID,
		Title:        input.Title,
		Description:  input.Description,
		Category:     input.Category,
		PricePoints:  input.PricePoints,
		Condition:    input.Condition,
		PickupMethod: input.PickupMethod,
		ImageURL:     input.ImageURL,
	}
}

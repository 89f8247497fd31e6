package store

import (
	"context"
	"database/sql"
	"fmt"

	"reward-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreateListing inserts a listing in its initial status.
func (s *Store) CreateListing(ctx context.Context, listing *models.Listing) error {
	return insertListing(ctx, s.db, listing)
}

// GetListingByID retrieves a listing by ID
func (s *Store) GetListingByID(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	err := s.db.GetContext(ctx, &listing, "SELECT * FROM listings WHERE id = $1", listingID)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// UpdateListingDraft updates the editable fields of a listing. Guarded on the
// seller and on the mutable statuses, so a sold or cancelled listing is
// immutable and a foreign seller gets ErrStaleTransition surfaced upstream.
func (s *Store) UpdateListingDraft(ctx context.Context, listing *models.Listing) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings
		 SET title = $1, description = $2, category = $3, price_points = $4,
		     condition = $5, pickup_method = $6, image_url = $7, updated_at = NOW()
		 WHERE id = $8 AND seller_id = $9 AND status IN ($10, $11, $12)`,
		listing.Title, listing.Description, listing.Category, listing.PricePoints,
		listing.Condition, listing.PickupMethod, listing.ImageURL,
		listing.ID, listing.SellerID,
		models.ListingStatusDraft, models.ListingStatusPendingReview, models.ListingStatusActive)
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrStaleTransition
	}
	return nil
}

// TransitionListing flips a listing from one status to another, guarded on
// the current status. Returns false when the guard did not match, which is
// how lost races and duplicate admin actions are detected.
func (s *Store) TransitionListing(ctx context.Context, listingID uuid.UUID, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		to, listingID, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition listing: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// SubmitListingResult records the compliance outcome of a submission: the
// risk score plus the resulting status, guarded on draft.
func (s *Store) SubmitListingResult(ctx context.Context, listingID uuid.UUID, riskScore int, toStatus string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET status = $1, risk_score = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		toStatus, riskScore, listingID, models.ListingStatusDraft)
	if err != nil {
		return false, fmt.Errorf("failed to record submission: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// CancelListing withdraws a listing. Seller-initiated and irreversible,
// allowed from draft, pending_review and active only.
func (s *Store) CancelListing(ctx context.Context, listingID, sellerID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND seller_id = $3 AND status IN ($4, $5, $6)`,
		models.ListingStatusCancelled, listingID, sellerID,
		models.ListingStatusDraft, models.ListingStatusPendingReview, models.ListingStatusActive)
	if err != nil {
		return false, fmt.Errorf("failed to cancel listing: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ListActiveListings retrieves browseable listings, newest first.
func (s *Store) ListActiveListings(ctx context.Context, limit, offset int) ([]models.Listing, error) {
	var listings []models.Listing
	err := s.db.SelectContext(ctx, &listings,
		`SELECT * FROM listings WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		models.ListingStatusActive, limit, offset)
	return listings, err
}

// ListListingsBySeller retrieves all listings for a seller, any status.
func (s *Store) ListListingsBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Listing, error) {
	var listings []models.Listing
	err := s.db.SelectContext(ctx, &listings,
		"SELECT * FROM listings WHERE seller_id = $1 ORDER BY created_at DESC", sellerID)
	return listings, err
}

// ListPendingReviewListings retrieves listings awaiting review, oldest first.
func (s *Store) ListPendingReviewListings(ctx context.Context, limit int) ([]models.Listing, error) {
	var listings []models.Listing
	err := s.db.SelectContext(ctx, &listings,
		"SELECT * FROM listings WHERE status = $1 ORDER BY created_at ASC LIMIT $2",
		models.ListingStatusPendingReview, limit)
	return listings, err
}

func insertListing(ctx context.Context, q sqlx.ExtContext, listing *models.Listing) error {
	if listing.ID == uuid.Nil {
		listing.ID = uuid.New()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO listings (id, seller_id, scan_id, title, description, category,
		                       price_points, status, risk_score, condition, pickup_method, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		listing.ID, listing.SellerID, listing.ScanID, listing.Title, listing.Description,
		listing.Category, listing.PricePoints, listing.Status, listing.RiskScore,
		listing.Condition, listing.PickupMethod, listing.ImageURL)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

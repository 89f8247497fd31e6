package store

import (
	"context"
	"database/sql"
	"fmt"

	"reward-service/internal/models"

	"github.com/google/uuid"
)

// PurchaseResult carries everything the coordinator needs after a successful
// purchase transaction: the order, the sold listing, and both sides of the
// point transfer for level-up detection.
type PurchaseResult struct {
	Order            *models.Order
	Listing          *models.Listing
	BuyerNewBalance  int
	SellerNewBalance int
	ConversationID   uuid.UUID
}

// PurchaseTx executes the whole purchase protocol in one transaction: the
// guarded active-to-sold flip, the guarded buyer debit, the seller credit,
// the order insert and the conversation seed. Either every leg applies or
// none does; a rollback leaves listing and both accounts untouched.
//
// The sold flip is guarded on the current status, so the loser of a
// double-purchase race gets ErrListingUnavailable, never a second order.
func (s *Store) PurchaseTx(ctx context.Context, listingID, buyerID uuid.UUID, openingMessage string) (*PurchaseResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var listing models.Listing
	err = tx.GetContext(ctx, &listing,
		`UPDATE listings SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3
		 RETURNING *`,
		models.ListingStatusSold, listingID, models.ListingStatusActive)
	if err == sql.ErrNoRows {
		return nil, models.ErrListingUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to flip listing to sold: %w", err)
	}

	if listing.SellerID == buyerID {
		return nil, models.ErrNotOwnListing
	}

	buyerBalance, err := debitPoints(ctx, tx, buyerID, listing.PricePoints)
	if err != nil {
		return nil, err
	}

	sellerBalance, err := creditPoints(ctx, tx, listing.SellerID, listing.PricePoints)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:          uuid.New(),
		ListingID:   listing.ID,
		BuyerID:     buyerID,
		SellerID:    listing.SellerID,
		PricePoints: listing.PricePoints,
		Status:      models.OrderStatusPending,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, listing_id, buyer_id, seller_id, price_points, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		order.ID, order.ListingID, order.BuyerID, order.SellerID,
		order.PricePoints, order.Status); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	conversationID := uuid.New()
	err = tx.GetContext(ctx, &conversationID,
		`INSERT INTO conversations (id, listing_id, buyer_id, seller_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (listing_id) DO UPDATE SET listing_id = EXCLUDED.listing_id
		 RETURNING id`,
		conversationID, listing.ID, buyerID, listing.SellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to seed conversation: %w", err)
	}

	if openingMessage != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, sender_id, text)
			 VALUES ($1, $2, $3, $4)`,
			uuid.New(), conversationID, buyerID, openingMessage); err != nil {
			return nil, fmt.Errorf("failed to seed opening message: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		models.OrderStatusCompleted, order.ID); err != nil {
		return nil, fmt.Errorf("failed to complete order: %w", err)
	}
	order.Status = models.OrderStatusCompleted

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &PurchaseResult{
		Order:            order,
		Listing:          &listing,
		BuyerNewBalance:  buyerBalance,
		SellerNewBalance: sellerBalance,
		ConversationID:   conversationID,
	}, nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByListingID retrieves the non-cancelled order for a listing.
func (s *Store) GetOrderByListingID(ctx context.Context, listingID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE listing_id = $1 AND status != $2",
		listingID, models.OrderStatusCancelled)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrdersByBuyer retrieves orders placed by an account, newest first.
func (s *Store) ListOrdersByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC", buyerID)
	return orders, err
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"reward-service/internal/models"

	"github.com/google/uuid"
)

// GetConversationByListing retrieves the thread for a listing.
func (s *Store) GetConversationByListing(ctx context.Context, listingID uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	err := s.db.GetContext(ctx, &conversation,
		"SELECT * FROM conversations WHERE listing_id = $1", listingID)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// ListConversationsByAccount retrieves threads an account participates in.
func (s *Store) ListConversationsByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := s.db.SelectContext(ctx, &conversations,
		`SELECT * FROM conversations WHERE buyer_id = $1 OR seller_id = $1
		 ORDER BY created_at DESC`, accountID)
	return conversations, err
}

// CreateMessage appends a message to a conversation the sender participates in.
func (s *Store) CreateMessage(ctx context.Context, message *models.Message) error {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, text)
		 SELECT $1, c.id, $2, $3 FROM conversations c
		 WHERE c.id = $4 AND (c.buyer_id = $2 OR c.seller_id = $2)`,
		message.ID, message.SenderID, message.Text, message.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrNotOwner
	}
	return nil
}

// ListMessages retrieves a conversation's messages, oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.SelectContext(ctx, &messages,
		"SELECT * FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC", conversationID)
	return messages, err
}

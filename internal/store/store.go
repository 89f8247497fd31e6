package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reward-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreFromDB wraps an existing connection, used by tests.
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// EnsureAccount creates the account row on first authentication if it does
// not exist yet.
func (s *Store) EnsureAccount(ctx context.Context, accountID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, total_points, level, streak, items_recycled, pending_points)
		 VALUES ($1, 0, 1, 0, 0, 0)
		 ON CONFLICT (id) DO NOTHING`, accountID)
	return err
}

// GetAccount retrieves an account by ID
func (s *Store) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := s.db.GetContext(ctx, &account, "SELECT * FROM accounts WHERE id = $1", accountID)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// CreditPoints atomically adds points to an account and recomputes the level
// in the same statement. Returns the new balance.
func (s *Store) CreditPoints(ctx context.Context, accountID uuid.UUID, amount int) (int, error) {
	return creditPoints(ctx, s.db, accountID, amount)
}

// DebitPoints atomically removes points, guarded on the current balance so a
// stale read can never overdraw. Returns ErrInsufficientFunds with no effect
// when the balance is too low.
func (s *Store) DebitPoints(ctx context.Context, accountID uuid.UUID, amount int) (int, error) {
	return debitPoints(ctx, s.db, accountID, amount)
}

// AddPendingPoints adjusts the informational pending-points total. Delta may
// be negative; the total is clamped at zero.
func (s *Store) AddPendingPoints(ctx context.Context, accountID uuid.UUID, delta int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts
		 SET pending_points = GREATEST(pending_points + $1, 0), updated_at = NOW()
		 WHERE id = $2`, delta, accountID)
	return err
}

// creditPoints runs the guarded credit on any executor so transactional flows
// can reuse it.
func creditPoints(ctx context.Context, q sqlx.ExtContext, accountID uuid.UUID, amount int) (int, error) {
	var newTotal int
	err := sqlx.GetContext(ctx, q, &newTotal,
		`UPDATE accounts
		 SET total_points = total_points + $1,
		     level = (total_points + $1) / 100 + 1,
		     updated_at = NOW()
		 WHERE id = $2
		 RETURNING total_points`, amount, accountID)
	if err == sql.ErrNoRows {
		return 0, models.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to credit account: %w", err)
	}
	return newTotal, nil
}

func debitPoints(ctx context.Context, q sqlx.ExtContext, accountID uuid.UUID, amount int) (int, error) {
	var newTotal int
	err := sqlx.GetContext(ctx, q, &newTotal,
		`UPDATE accounts
		 SET total_points = total_points - $1,
		     level = (total_points - $1) / 100 + 1,
		     updated_at = NOW()
		 WHERE id = $2 AND total_points >= $1
		 RETURNING total_points`, amount, accountID)
	if err == sql.ErrNoRows {
		return 0, models.ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("failed to debit account: %w", err)
	}
	return newTotal, nil
}

// touchStreak bumps the scan streak: unchanged when already scanned today,
// incremented on a consecutive day, reset to 1 after a gap.
func touchStreak(ctx context.Context, q sqlx.ExtContext, accountID uuid.UUID) error {
	_, err := q.ExecContext(ctx,
		`UPDATE accounts
		 SET streak = CASE
		       WHEN last_scan_at::date = CURRENT_DATE THEN streak
		       WHEN last_scan_at::date = CURRENT_DATE - 1 THEN streak + 1
		       ELSE 1
		     END,
		     last_scan_at = NOW(),
		     updated_at = NOW()
		 WHERE id = $1`, accountID)
	return err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

// InsertNotification stores a materialized notification row.
func (s *Store) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, account_id, kind, title, body)
		 VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.AccountID, n.Kind, n.Title, n.Body)
	return err
}

// ListNotifications retrieves recent notifications for an account, including
// broadcasts.
func (s *Store) ListNotifications(ctx context.Context, accountID uuid.UUID, limit int) ([]models.Notification, error) {
	var notifications []models.Notification
	err := s.db.SelectContext(ctx, &notifications,
		`SELECT * FROM notifications
		 WHERE account_id = $1 OR account_id IS NULL
		 ORDER BY created_at DESC LIMIT $2`, accountID, limit)
	return notifications, err
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"reward-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ScanMutation reports the account-side effects of a scan transition so the
// service layer can emit level-up events without a second read.
type ScanMutation struct {
	Scan       *models.ScanRecord
	NewBalance int
	OldBalance int
	Credited   bool
}

// CreateApprovedScanTx inserts a scan directly in approved status and credits
// the account in the same transaction. Used for the no-choice category and
// never for anything that still needs review.
func (s *Store) CreateApprovedScanTx(ctx context.Context, scan *models.ScanRecord) (*ScanMutation, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	scan.Status = models.ScanStatusApproved
	if err := insertScan(ctx, tx, scan); err != nil {
		return nil, err
	}

	newTotal, err := creditPoints(ctx, tx, scan.AccountID, scan.FinalPoints)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET items_recycled = items_recycled + 1 WHERE id = $1`,
		scan.AccountID); err != nil {
		return nil, fmt.Errorf("failed to bump items recycled: %w", err)
	}

	if err := touchStreak(ctx, tx, scan.AccountID); err != nil {
		return nil, fmt.Errorf("failed to update streak: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &ScanMutation{
		Scan:       scan,
		NewBalance: newTotal,
		OldBalance: newTotal - scan.FinalPoints,
		Credited:   true,
	}, nil
}

// CreatePendingScanTx inserts a scan in pending status and adds its final
// points to the informational pending total. No credit happens here.
func (s *Store) CreatePendingScanTx(ctx context.Context, scan *models.ScanRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	scan.Status = models.ScanStatusPending
	if err := insertScan(ctx, tx, scan); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts
		 SET pending_points = pending_points + $1, updated_at = NOW()
		 WHERE id = $2`, scan.FinalPoints, scan.AccountID); err != nil {
		return fmt.Errorf("failed to add pending points: %w", err)
	}

	if err := touchStreak(ctx, tx, scan.AccountID); err != nil {
		return fmt.Errorf("failed to update streak: %w", err)
	}

	return tx.Commit()
}

// ApplyChoiceTx resolves a disposal choice on a pending scan. The row is
// locked and re-guarded on status inside the transaction, so a concurrent
// resolution or review loses with ErrStaleTransition. When approve is true
// (the discard path) the account is credited here, exactly once; otherwise
// the scan stays pending and only the pending total moves by the final-points
// delta. A non-nil draft is inserted in the same transaction (trade path).
func (s *Store) ApplyChoiceTx(ctx context.Context, scanID uuid.UUID, choice string, newFinal int, approve bool, draft *models.Listing) (*ScanMutation, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var scan models.ScanRecord
	err = tx.GetContext(ctx, &scan,
		"SELECT * FROM scans WHERE id = $1 FOR UPDATE", scanID)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock scan: %w", err)
	}
	if scan.Status != models.ScanStatusPending {
		return nil, models.ErrStaleTransition
	}

	oldFinal := scan.FinalPoints
	newStatus := models.ScanStatusPending
	if approve {
		newStatus = models.ScanStatusApproved
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE scans
		 SET disposal_choice = $1, final_points = $2, status = $3, updated_at = NOW()
		 WHERE id = $4`, choice, newFinal, newStatus, scanID); err != nil {
		return nil, fmt.Errorf("failed to update scan: %w", err)
	}

	mutation := &ScanMutation{Scan: &scan}
	scan.DisposalChoice = &choice
	scan.FinalPoints = newFinal
	scan.Status = newStatus

	if approve {
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts
			 SET pending_points = GREATEST(pending_points - $1, 0),
			     items_recycled = items_recycled + 1,
			     updated_at = NOW()
			 WHERE id = $2`, oldFinal, scan.AccountID); err != nil {
			return nil, fmt.Errorf("failed to settle pending points: %w", err)
		}

		newTotal, err := creditPoints(ctx, tx, scan.AccountID, newFinal)
		if err != nil {
			return nil, err
		}
		mutation.NewBalance = newTotal
		mutation.OldBalance = newTotal - newFinal
		mutation.Credited = true
	} else {
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts
			 SET pending_points = GREATEST(pending_points + $1, 0), updated_at = NOW()
			 WHERE id = $2`, newFinal-oldFinal, scan.AccountID); err != nil {
			return nil, fmt.Errorf("failed to adjust pending points: %w", err)
		}
	}

	if draft != nil {
		if err := insertListing(ctx, tx, draft); err != nil {
			return nil, fmt.Errorf("failed to seed trade draft: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return mutation, nil
}

// ApproveScanTx moves a pending scan to approved and credits the account,
// guarded on current status so duplicate admin clicks are detected.
func (s *Store) ApproveScanTx(ctx context.Context, scanID uuid.UUID) (*ScanMutation, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var scan models.ScanRecord
	err = tx.GetContext(ctx, &scan,
		"SELECT * FROM scans WHERE id = $1 FOR UPDATE", scanID)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock scan: %w", err)
	}
	if scan.Status != models.ScanStatusPending {
		return nil, models.ErrStaleTransition
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE scans SET status = $1, updated_at = NOW() WHERE id = $2`,
		models.ScanStatusApproved, scanID); err != nil {
		return nil, fmt.Errorf("failed to approve scan: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts
		 SET pending_points = GREATEST(pending_points - $1, 0),
		     items_recycled = items_recycled + 1,
		     updated_at = NOW()
		 WHERE id = $2`, scan.FinalPoints, scan.AccountID); err != nil {
		return nil, fmt.Errorf("failed to settle pending points: %w", err)
	}

	newTotal, err := creditPoints(ctx, tx, scan.AccountID, scan.FinalPoints)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	scan.Status = models.ScanStatusApproved
	return &ScanMutation{
		Scan:       &scan,
		NewBalance: newTotal,
		OldBalance: newTotal - scan.FinalPoints,
		Credited:   true,
	}, nil
}

// RejectScanTx moves a pending scan to rejected. The account is never
// credited; only the pending total is released.
func (s *Store) RejectScanTx(ctx context.Context, scanID uuid.UUID) (*models.ScanRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var scan models.ScanRecord
	err = tx.GetContext(ctx, &scan,
		"SELECT * FROM scans WHERE id = $1 FOR UPDATE", scanID)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock scan: %w", err)
	}
	if scan.Status != models.ScanStatusPending {
		return nil, models.ErrStaleTransition
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE scans SET status = $1, updated_at = NOW() WHERE id = $2`,
		models.ScanStatusRejected, scanID); err != nil {
		return nil, fmt.Errorf("failed to reject scan: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts
		 SET pending_points = GREATEST(pending_points - $1, 0), updated_at = NOW()
		 WHERE id = $2`, scan.FinalPoints, scan.AccountID); err != nil {
		return nil, fmt.Errorf("failed to release pending points: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	scan.Status = models.ScanStatusRejected
	return &scan, nil
}

// GetScanByID retrieves a scan by ID
func (s *Store) GetScanByID(ctx context.Context, scanID uuid.UUID) (*models.ScanRecord, error) {
	var scan models.ScanRecord
	err := s.db.GetContext(ctx, &scan, "SELECT * FROM scans WHERE id = $1", scanID)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

// ListScansByAccount retrieves scan history for an account, newest first.
func (s *Store) ListScansByAccount(ctx context.Context, accountID uuid.UUID) ([]models.ScanRecord, error) {
	var scans []models.ScanRecord
	err := s.db.SelectContext(ctx, &scans,
		"SELECT * FROM scans WHERE account_id = $1 ORDER BY scanned_at DESC", accountID)
	return scans, err
}

// ListPendingScans retrieves scans awaiting review, oldest first.
func (s *Store) ListPendingScans(ctx context.Context, limit int) ([]models.ScanRecord, error) {
	var scans []models.ScanRecord
	err := s.db.SelectContext(ctx, &scans,
		"SELECT * FROM scans WHERE status = $1 ORDER BY scanned_at ASC LIMIT $2",
		models.ScanStatusPending, limit)
	return scans, err
}

func insertScan(ctx context.Context, q sqlx.ExtContext, scan *models.ScanRecord) error {
	if scan.ID == uuid.Nil {
		scan.ID = uuid.New()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO scans (id, account_id, name, category, base_points, disposal_choice, final_points, status, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		scan.ID, scan.AccountID, scan.Name, scan.Category, scan.BasePoints,
		scan.DisposalChoice, scan.FinalPoints, scan.Status, scan.ImageURL)
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}
	return nil
}

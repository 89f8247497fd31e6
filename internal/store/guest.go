package store

import (
	"context"
	"database/sql"
	"fmt"

	"reward-service/internal/models"

	"github.com/google/uuid"
)

// CreateGuestScanTx records a guest-mode scan: the history row plus the
// rolled-up device profile, in one transaction. credit is the number of
// points the guest accrues locally for this scan (zero for rejected paths).
func (s *Store) CreateGuestScanTx(ctx context.Context, scan *models.GuestScan, credit int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if scan.ID == uuid.Nil {
		scan.ID = uuid.New()
	}

	// Profile first: guest_scans references guest_profiles.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO guest_profiles (device_id, total_points, level, streak, items_recycled, last_scan_at)
		 VALUES ($1, $2, $2 / 100 + 1, 1, $3, NOW())
		 ON CONFLICT (device_id) DO UPDATE SET
		   total_points = guest_profiles.total_points + $2,
		   level = (guest_profiles.total_points + $2) / 100 + 1,
		   items_recycled = guest_profiles.items_recycled + $3,
		   streak = CASE
		     WHEN guest_profiles.last_scan_at::date = CURRENT_DATE THEN guest_profiles.streak
		     WHEN guest_profiles.last_scan_at::date = CURRENT_DATE - 1 THEN guest_profiles.streak + 1
		     ELSE 1
		   END,
		   last_scan_at = NOW(),
		   updated_at = NOW()`,
		scan.DeviceID, credit, boolToInt(credit > 0)); err != nil {
		return fmt.Errorf("failed to upsert guest profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO guest_scans (id, device_id, name, category, base_points, disposal_choice, final_points, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		scan.ID, scan.DeviceID, scan.Name, scan.Category,
		scan.BasePoints, scan.DisposalChoice, scan.FinalPoints, scan.Status); err != nil {
		return fmt.Errorf("failed to insert guest scan: %w", err)
	}

	return tx.Commit()
}

// GetGuestScanByID retrieves one guest scan.
func (s *Store) GetGuestScanByID(ctx context.Context, scanID uuid.UUID) (*models.GuestScan, error) {
	var scan models.GuestScan
	err := s.db.GetContext(ctx, &scan, "SELECT * FROM guest_scans WHERE id = $1", scanID)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

// ResolveGuestScanTx applies a disposal choice to a pending guest scan and
// credits the device profile. Guest state has no reviewer, so every valid
// choice settles immediately; the transition is guarded on pending.
func (s *Store) ResolveGuestScanTx(ctx context.Context, scanID uuid.UUID, deviceID, choice string, newFinal int) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE guest_scans
		 SET disposal_choice = $1, final_points = $2, status = $3
		 WHERE id = $4 AND device_id = $5 AND status = $6`,
		choice, newFinal, models.ScanStatusApproved, scanID, deviceID, models.ScanStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to resolve guest scan: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE guest_profiles
		 SET total_points = total_points + $1,
		     level = (total_points + $1) / 100 + 1,
		     items_recycled = items_recycled + 1,
		     updated_at = NOW()
		 WHERE device_id = $2`, newFinal, deviceID); err != nil {
		return false, fmt.Errorf("failed to credit guest profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// GetGuestProfile retrieves the accumulated state for a device.
func (s *Store) GetGuestProfile(ctx context.Context, deviceID string) (*models.GuestProfile, error) {
	var profile models.GuestProfile
	err := s.db.GetContext(ctx, &profile,
		"SELECT * FROM guest_profiles WHERE device_id = $1", deviceID)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListGuestScans retrieves guest history for a device, newest first.
func (s *Store) ListGuestScans(ctx context.Context, deviceID string) ([]models.GuestScan, error) {
	var scans []models.GuestScan
	err := s.db.SelectContext(ctx, &scans,
		"SELECT * FROM guest_scans WHERE device_id = $1 ORDER BY scanned_at DESC", deviceID)
	return scans, err
}

// MigrationResult reports what a guest migration moved.
type MigrationResult struct {
	Migrated      bool
	MigratedScans int
	TotalPoints   int
	Level         int
}

// MigrateGuestTx folds a device's guest state into an account: the stats
// overwrite the account's (the guest record becomes the initial state), the
// history is bulk-inserted keeping the guest scan ids so a partial prior run
// cannot duplicate rows, and the guest store is cleared. All in one
// transaction; a second run finds no profile and is a no-op.
func (s *Store) MigrateGuestTx(ctx context.Context, deviceID string, accountID uuid.UUID) (*MigrationResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var profile models.GuestProfile
	err = tx.GetContext(ctx, &profile,
		"SELECT * FROM guest_profiles WHERE device_id = $1 FOR UPDATE", deviceID)
	if err == sql.ErrNoRows {
		return &MigrationResult{Migrated: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock guest profile: %w", err)
	}

	// Overwrite, not additive: the guest record becomes the account's
	// initial state. Pending points are recomputed from the still-pending
	// guest scans being moved over.
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts
		 SET total_points = $1, level = $1 / 100 + 1, streak = $2,
		     items_recycled = $3, last_scan_at = $4,
		     pending_points = (SELECT COALESCE(SUM(final_points), 0)
		                       FROM guest_scans WHERE device_id = $5 AND status = $6),
		     updated_at = NOW()
		 WHERE id = $7`,
		profile.TotalPoints, profile.Streak, profile.ItemsRecycled,
		profile.LastScanAt, deviceID, models.ScanStatusPending, accountID); err != nil {
		return nil, fmt.Errorf("failed to merge guest stats: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO scans (id, account_id, name, category, base_points, disposal_choice, final_points, status, scanned_at)
		 SELECT id, $1, name, category, base_points, disposal_choice, final_points, status, scanned_at
		 FROM guest_scans WHERE device_id = $2
		 ON CONFLICT (id) DO NOTHING`,
		accountID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate guest scans: %w", err)
	}
	migrated, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM guest_scans WHERE device_id = $1", deviceID); err != nil {
		return nil, fmt.Errorf("failed to clear guest scans: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM guest_profiles WHERE device_id = $1", deviceID); err != nil {
		return nil, fmt.Errorf("failed to clear guest profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &MigrationResult{
		Migrated:      true,
		MigratedScans: int(migrated),
		TotalPoints:   profile.TotalPoints,
		Level:         models.LevelForPoints(profile.TotalPoints),
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

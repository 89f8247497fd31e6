package service

import (
	"context"
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

const migrationLockTTL = 30 * time.Second

// GuestMigrator folds device-local guest state into the authoritative store
// when a guest authenticates. Runs at most once per device: after success
// the guest store is cleared, so a retry finds nothing to migrate.
type GuestMigrator struct {
	store  *store.Store
	redis  *redisclient.Client
	ledger *PointsLedger
	bus    *broker.Bus
	logger *zap.Logger
}

// NewGuestMigrator creates a new guest migrator
func NewGuestMigrator(
	store *store.Store,
	redis *redisclient.Client,
	ledger *PointsLedger,
	bus *broker.Bus,
) *GuestMigrator {
	return &GuestMigrator{
		store:  store,
		redis:  redis,
		ledger: ledger,
		bus:    bus,
		logger: util.GetLogger(),
	}
}

// Migrate merges guest stats (overwrite, not additive) and bulk-inserts the
// guest scan history into the account, then clears the guest store. The
// whole move is one transaction behind a per-device lock; a concurrent or
// repeated call either waits out the lock or finds nothing left.
func (gm *GuestMigrator) Migrate(ctx context.Context, deviceID string, accountID uuid.UUID) (*store.MigrationResult, error) {
	ctx, span := util.StartSpan(ctx, "GuestMigrator.Migrate")
	defer span.End()

	lockKey := fmt.Sprintf("migrate:%s", deviceID)
	locked, err := gm.redis.AcquireLock(ctx, lockKey, migrationLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !locked {
		util.GuestMigrationsTotal.WithLabelValues("locked").Inc()
		return nil, models.ErrMigrationPartialFailure
	}
	defer func() {
		if err := gm.redis.ReleaseLock(ctx, lockKey); err != nil {
			gm.logger.Warn("Failed to release migration lock", zap.Error(err))
		}
	}()

	if err := gm.store.EnsureAccount(ctx, accountID); err != nil {
		return nil, err
	}

	// The balance is about to change out from under the cache; drop it so
	// the purchase fast path cannot spend a stale balance mid-migration.
	if err := gm.redis.InvalidateBalance(ctx, accountID); err != nil {
		gm.logger.Warn("Failed to invalidate cached balance", zap.Error(err))
	}

	result, err := gm.store.MigrateGuestTx(ctx, deviceID, accountID)
	if err != nil {
		util.GuestMigrationsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: %v", models.ErrMigrationPartialFailure, err)
	}

	if !result.Migrated {
		util.GuestMigrationsTotal.WithLabelValues("noop").Inc()
		return result, nil
	}

	util.GuestMigrationsTotal.WithLabelValues("migrated").Inc()
	if err := gm.redis.SetBalance(ctx, accountID, result.TotalPoints, balanceCacheTTL); err != nil {
		gm.logger.Warn("Failed to refresh cached balance", zap.Error(err))
	}

	event := &models.GuestMigratedEvent{
		BaseEvent:     broker.NewBase(models.EventTypeGuestMigrated),
		DeviceID:      deviceID,
		AccountID:     accountID,
		MigratedScans: result.MigratedScans,
		TotalPoints:   result.TotalPoints,
	}
	if err := gm.bus.PublishGuestMigrated(ctx, event); err != nil {
		gm.logger.Error("Failed to publish GuestMigrated event", zap.Error(err))
	}

	gm.logger.Info("Guest migration completed",
		zap.String("device_id", deviceID),
		zap.String("account_id", accountID.String()),
		zap.Int("migrated_scans", result.MigratedScans))

	return result, nil
}

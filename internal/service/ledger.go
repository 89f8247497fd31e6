package service

import (
	"context"
	"time"

	"reward-service/internal/broker"
	"reward-service/internal/models"
	"reward-service/internal/redisclient"
	"reward-service/internal/store"
	"reward-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const balanceCacheTTL = 10 * time.Minute

// PointsLedger owns account balances. Every credit and debit is a single
// guarded read-modify-write in the store; the ledger never writes from a
// stale client-held balance. Level is recomputed in the same statement and a
// level-up publishes an event.
type PointsLedger struct {
	store  *store.Store
	redis  *redisclient.Client
	bus    *broker.Bus
	logger *zap.Logger
}

// NewPointsLedger creates a new points ledger
func NewPointsLedger(store *store.Store, redis *redisclient.Client, bus *broker.Bus) *PointsLedger {
	return &PointsLedger{
		store:  store,
		redis:  redis,
		bus:    bus,
		logger: util.GetLogger(),
	}
}

// GetAccount retrieves an account, creating the row on first sight. Warms the
// fast-path balance cache on a miss so the next purchase can gate in Redis.
func (l *PointsLedger) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	if err := l.store.EnsureAccount(ctx, accountID); err != nil {
		return nil, err
	}
	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if _, cached, err := l.redis.GetBalance(ctx, accountID); err == nil && !cached {
		if err := l.redis.SetBalance(ctx, accountID, account.TotalPoints, balanceCacheTTL); err != nil {
			l.logger.Warn("Failed to warm balance cache", zap.Error(err))
		}
	}
	return account, nil
}

// Credit adds points to an account and returns the new balance.
func (l *PointsLedger) Credit(ctx context.Context, accountID uuid.UUID, amount int) (int, error) {
	ctx, span := util.StartSpan(ctx, "PointsLedger.Credit")
	defer span.End()

	newBalance, err := l.store.CreditPoints(ctx, accountID, amount)
	if err != nil {
		return 0, err
	}

	util.PointsCreditedTotal.Add(float64(amount))
	l.SettleBalance(ctx, accountID, newBalance-amount, newBalance)
	return newBalance, nil
}

// Debit removes points, failing with ErrInsufficientFunds and no partial
// effect when the balance does not cover the amount.
func (l *PointsLedger) Debit(ctx context.Context, accountID uuid.UUID, amount int) (int, error) {
	ctx, span := util.StartSpan(ctx, "PointsLedger.Debit")
	defer span.End()

	newBalance, err := l.store.DebitPoints(ctx, accountID, amount)
	if err != nil {
		return 0, err
	}

	util.PointsDebitedTotal.Add(float64(amount))
	l.SettleBalance(ctx, accountID, newBalance+amount, newBalance)
	return newBalance, nil
}

// SettleBalance refreshes the fast-path cache after an authoritative balance
// change and publishes LevelUp when the change crossed a level boundary.
// Transactional flows that credit inside the store call this with the
// balances the transaction returned.
func (l *PointsLedger) SettleBalance(ctx context.Context, accountID uuid.UUID, oldBalance, newBalance int) {
	if err := l.redis.SetBalance(ctx, accountID, newBalance, balanceCacheTTL); err != nil {
		l.logger.Warn("Failed to refresh cached balance",
			zap.String("account_id", accountID.String()),
			zap.Error(err))
	}

	oldLevel := models.LevelForPoints(oldBalance)
	newLevel := models.LevelForPoints(newBalance)
	if newLevel <= oldLevel {
		return
	}

	util.LevelUpsTotal.Inc()
	event := &models.LevelUpEvent{
		BaseEvent: broker.NewBase(models.EventTypeLevelUp),
		AccountID: accountID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
	}
	if err := l.bus.PublishLevelUp(ctx, event); err != nil {
		l.logger.Error("Failed to publish LevelUp event", zap.Error(err))
	}
}

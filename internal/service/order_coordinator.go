package service

import (
	"context"
	"errors"
	"time"

	"reward-service/internal/broker"
	"reward-service/internal/models"
	"reward-service/internal/redisclient"
	"reward-service/internal/store"
	"reward-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const idempotencyTTL = 24 * time.Hour

// OrderCoordinator executes purchases: one order, one sold flip, one debit
// and one credit, all inside a single database transaction so either every
// leg applies or none does.
type OrderCoordinator struct {
	store  *store.Store
	redis  *redisclient.Client
	ledger *PointsLedger
	bus    *broker.Bus
	logger *zap.Logger
}

// NewOrderCoordinator creates a new order coordinator
func NewOrderCoordinator(
	store *store.Store,
	redis *redisclient.Client,
	ledger *PointsLedger,
	bus *broker.Bus,
) *OrderCoordinator {
	return &OrderCoordinator{
		store:  store,
		redis:  redis,
		ledger: ledger,
		bus:    bus,
		logger: util.GetLogger(),
	}
}

// PurchaseRequest is a buyer's attempt to buy a listing.
type PurchaseRequest struct {
	ListingID      uuid.UUID `json:"listing_id"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	OpeningMessage string    `json:"opening_message,omitempty"`
}

// Purchase buys an active listing for the actor. Precondition failures
// (own listing, inactive listing, short balance) abort with no side effects;
// the race on the sold flip is decided inside the transaction, so the losing
// buyer gets ErrListingUnavailable and no partial transfer ever survives.
func (oc *OrderCoordinator) Purchase(ctx context.Context, actor models.Actor, req PurchaseRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderCoordinator.Purchase")
	defer span.End()

	start := time.Now()
	defer func() {
		util.PurchaseLatency.Observe(time.Since(start).Seconds())
	}()

	if req.IdempotencyKey != "" {
		seen, err := oc.redis.CheckIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			oc.logger.Warn("Idempotency check failed", zap.Error(err))
		} else if seen {
			order, err := oc.store.GetOrderByListingID(ctx, req.ListingID)
			if err == nil {
				oc.logger.Info("Duplicate purchase request",
					zap.String("idempotency_key", req.IdempotencyKey),
					zap.String("order_id", order.ID.String()))
				return order, nil
			}
		}
	}

	listing, err := oc.store.GetListingByID(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID == actor.AccountID {
		util.PurchasesFailedTotal.WithLabelValues("own_listing").Inc()
		return nil, models.ErrNotOwnListing
	}
	if listing.Status != models.ListingStatusActive {
		util.PurchasesFailedTotal.WithLabelValues("unavailable").Inc()
		return nil, models.ErrListingUnavailable
	}

	spent, err := oc.gateBalance(ctx, actor.AccountID, listing.PricePoints)
	if err != nil {
		util.PurchasesFailedTotal.WithLabelValues("insufficient_funds").Inc()
		return nil, err
	}

	result, err := oc.store.PurchaseTx(ctx, req.ListingID, actor.AccountID, req.OpeningMessage)
	if err != nil {
		if spent {
			if rerr := oc.redis.RefundPoints(ctx, actor.AccountID, listing.PricePoints); rerr != nil {
				oc.logger.Error("Failed to refund fast-path balance",
					zap.String("account_id", actor.AccountID.String()),
					zap.Error(rerr))
			}
		}
		switch {
		case errors.Is(err, models.ErrListingUnavailable):
			util.PurchasesFailedTotal.WithLabelValues("lost_race").Inc()
		case errors.Is(err, models.ErrInsufficientFunds):
			util.PurchasesFailedTotal.WithLabelValues("insufficient_funds").Inc()
		default:
			util.PurchasesFailedTotal.WithLabelValues("db_error").Inc()
		}
		return nil, err
	}

	util.PurchasesTotal.Inc()
	util.PointsDebitedTotal.Add(float64(result.Order.PricePoints))
	util.PointsCreditedTotal.Add(float64(result.Order.PricePoints))

	price := result.Order.PricePoints
	oc.ledger.SettleBalance(ctx, actor.AccountID, result.BuyerNewBalance+price, result.BuyerNewBalance)
	oc.ledger.SettleBalance(ctx, result.Order.SellerID, result.SellerNewBalance-price, result.SellerNewBalance)

	if req.IdempotencyKey != "" {
		if err := oc.redis.SetIdempotencyKey(ctx, req.IdempotencyKey, result.Order.ID.String(), idempotencyTTL); err != nil {
			oc.logger.Warn("Failed to store idempotency key", zap.Error(err))
		}
	}

	if err := oc.redis.InvalidateBrowse(ctx); err != nil {
		oc.logger.Warn("Failed to invalidate browse cache", zap.Error(err))
	}

	event := &models.ListingSoldEvent{
		BaseEvent:   broker.NewBase(models.EventTypeListingSold),
		ListingID:   result.Listing.ID,
		OrderID:     result.Order.ID,
		BuyerID:     result.Order.BuyerID,
		SellerID:    result.Order.SellerID,
		PricePoints: result.Order.PricePoints,
		Title:       result.Listing.Title,
	}
	if err := oc.bus.PublishListingSold(ctx, event); err != nil {
		oc.logger.Error("Failed to publish ListingSold event", zap.Error(err))
	}

	oc.logger.Info("Purchase completed",
		zap.String("order_id", result.Order.ID.String()),
		zap.String("listing_id", result.Listing.ID.String()),
		zap.Int("price_points", result.Order.PricePoints))

	return result.Order, nil
}

// gateBalance is the Redis fast path mirroring the authoritative balance: a
// cached balance short of the price fails fast with ErrInsufficientFunds; a
// cache miss falls through to a database read. The transaction's guarded
// debit remains the source of truth either way. Returns whether the cached
// balance was decremented and so needs a refund if the transaction fails.
func (oc *OrderCoordinator) gateBalance(ctx context.Context, buyerID uuid.UUID, price int) (bool, error) {
	ok, err := oc.redis.SpendPoints(ctx, buyerID, price)
	if err == nil {
		if !ok {
			return false, models.ErrInsufficientFunds
		}
		return true, nil
	}

	account, err := oc.store.GetAccount(ctx, buyerID)
	if err != nil {
		return false, err
	}
	if account.TotalPoints < price {
		return false, models.ErrInsufficientFunds
	}
	return false, nil
}

// GetOrder retrieves an order by ID
func (oc *OrderCoordinator) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return oc.store.GetOrderByID(ctx, orderID)
}

// History returns orders the actor placed, newest first.
func (oc *OrderCoordinator) History(ctx context.Context, actor models.Actor) ([]models.Order, error) {
	return oc.store.ListOrdersByBuyer(ctx, actor.AccountID)
}

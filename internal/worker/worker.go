package worker

import (
	"context"
	"fmt"

	"reward-service/internal/broker"
	"reward-service/internal/models"
	"reward-service/internal/store"
	"reward-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationWorker consumes domain events and materializes notification
// rows. Processed event IDs are recorded so Kafka redeliveries never produce
// duplicate notifications.
type NotificationWorker struct {
	consumer *broker.Consumer
	store    *store.Store
	logger   *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, store *store.Store) *NotificationWorker {
	return &NotificationWorker{
		consumer: consumer,
		store:    store,
		logger:   util.GetLogger(),
	}
}

// Start begins consuming events. Blocks until the context is cancelled.
func (w *NotificationWorker) Start(ctx context.Context) error {
	handler := broker.NewEventHandler()

	handler.OnScanApproved(func(ctx context.Context, event *models.ScanApprovedEvent) error {
		return w.process(ctx, event.BaseEvent, &models.Notification{
			AccountID: &event.AccountID,
			Kind:      "scan_approved",
			Title:     "Scan approved",
			Body:      fmt.Sprintf("Your %s earned %d points.", event.Name, event.FinalPoints),
		})
	})

	handler.OnScanRejected(func(ctx context.Context, event *models.ScanRejectedEvent) error {
		body := "Your scan was rejected."
		if event.Reason != "" {
			body = fmt.Sprintf("Your scan was rejected: %s", event.Reason)
		}
		return w.process(ctx, event.BaseEvent, &models.Notification{
			AccountID: &event.AccountID,
			Kind:      "scan_rejected",
			Title:     "Scan rejected",
			Body:      body,
		})
	})

	handler.OnLevelUp(func(ctx context.Context, event *models.LevelUpEvent) error {
		return w.process(ctx, event.BaseEvent, &models.Notification{
			AccountID: &event.AccountID,
			Kind:      "level_up",
			Title:     fmt.Sprintf("Level %d reached", event.NewLevel),
			Body:      fmt.Sprintf("You advanced from level %d to level %d.", event.OldLevel, event.NewLevel),
		})
	})

	handler.OnListingActive(func(ctx context.Context, event *models.ListingActiveEvent) error {
		return w.process(ctx, event.BaseEvent, &models.Notification{
			AccountID: &event.SellerID,
			Kind:      "listing_active",
			Title:     "Listing published",
			Body:      fmt.Sprintf("Your listing %q is now visible to buyers.", event.Title),
		})
	})

	handler.OnListingClosed(func(ctx context.Context, event *models.ListingClosedEvent) error {
		body := "Your listing was closed."
		if event.Reason != "" {
			body = fmt.Sprintf("Your listing was closed: %s", event.Reason)
		}
		return w.process(ctx, event.BaseEvent, &models.Notification{
			AccountID: &event.SellerID,
			Kind:      "listing_closed",
			Title:     "Listing closed",
			Body:      body,
		})
	})

	handler.OnListingSold(func(ctx context.Context, event *models.ListingSoldEvent) error {
		// One delivery fans out to both parties; idempotency is keyed on the
		// event, so both inserts happen in the same handled pass.
		seller := event.SellerID
		buyer := event.BuyerID
		if err := w.process(ctx, event.BaseEvent, &models.Notification{
			AccountID: &seller,
			Kind:      "listing_sold",
			Title:     "Listing sold",
			Body:      fmt.Sprintf("%q sold for %d points.", event.Title, event.PricePoints),
		}); err != nil {
			return err
		}
		return w.insert(ctx, &models.Notification{
			AccountID: &buyer,
			Kind:      "purchase_completed",
			Title:     "Purchase completed",
			Body:      fmt.Sprintf("You bought %q for %d points.", event.Title, event.PricePoints),
		})
	})

	w.logger.Info("Notification worker starting")
	return w.consumer.StartConsuming(ctx, handler.HandleMessage)
}

// process inserts a notification unless the event was already handled, then
// marks the event processed.
func (w *NotificationWorker) process(ctx context.Context, base models.BaseEvent, n *models.Notification) error {
	processed, err := w.store.IsEventProcessed(ctx, base.EventID)
	if err != nil {
		return fmt.Errorf("failed to check processed event: %w", err)
	}
	if processed {
		w.logger.Debug("Skipping already processed event",
			zap.String("event_id", base.EventID),
			zap.String("event_type", base.EventType))
		return nil
	}

	if err := w.insert(ctx, n); err != nil {
		return err
	}

	if err := w.store.MarkEventProcessed(ctx, base.EventID, base.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

func (w *NotificationWorker) insert(ctx context.Context, n *models.Notification) error {
	if err := w.store.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	w.logger.Debug("Notification created",
		zap.String("kind", n.Kind),
		zap.String("account_id", accountIDString(n.AccountID)))
	return nil
}

func accountIDString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

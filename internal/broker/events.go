package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"reward-service/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Publisher writes one serialized event to the event stream. Satisfied by
// Producer; tests substitute a recorder.
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// Bus publishes typed domain events. Downstream observers (notification
// worker, UI feeds) subscribe via consumers; the core never depends on them.
type Bus struct {
	pub Publisher
}

// NewBus creates a new event bus
func NewBus(pub Publisher) *Bus {
	return &Bus{pub: pub}
}

// NewBase stamps a fresh event envelope.
func NewBase(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// PublishScanCreated publishes ScanCreated, keyed by account so one
// account's events stay ordered.
func (b *Bus) PublishScanCreated(ctx context.Context, event *models.ScanCreatedEvent) error {
	return b.pub.PublishEvent(ctx, accountKey(event.AccountID), event)
}

// PublishScanApproved publishes ScanApproved
func (b *Bus) PublishScanApproved(ctx context.Context, event *models.ScanApprovedEvent) error {
	return b.pub.PublishEvent(ctx, accountKey(event.AccountID), event)
}

// PublishScanRejected publishes ScanRejected
func (b *Bus) PublishScanRejected(ctx context.Context, event *models.ScanRejectedEvent) error {
	return b.pub.PublishEvent(ctx, accountKey(event.AccountID), event)
}

// PublishLevelUp publishes LevelUp
func (b *Bus) PublishLevelUp(ctx context.Context, event *models.LevelUpEvent) error {
	return b.pub.PublishEvent(ctx, accountKey(event.AccountID), event)
}

// PublishListingActive publishes ListingActive
func (b *Bus) PublishListingActive(ctx context.Context, event *models.ListingActiveEvent) error {
	return b.pub.PublishEvent(ctx, listingKey(event.ListingID), event)
}

// PublishListingClosed publishes ListingClosed
func (b *Bus) PublishListingClosed(ctx context.Context, event *models.ListingClosedEvent) error {
	return b.pub.PublishEvent(ctx, listingKey(event.ListingID), event)
}

// PublishListingSold publishes ListingSold
func (b *Bus) PublishListingSold(ctx context.Context, event *models.ListingSoldEvent) error {
	return b.pub.PublishEvent(ctx, listingKey(event.ListingID), event)
}

// PublishGuestMigrated publishes GuestMigrated
func (b *Bus) PublishGuestMigrated(ctx context.Context, event *models.GuestMigratedEvent) error {
	return b.pub.PublishEvent(ctx, accountKey(event.AccountID), event)
}

func accountKey(accountID uuid.UUID) string {
	return fmt.Sprintf("account-%s", accountID)
}

func listingKey(listingID uuid.UUID) string {
	return fmt.Sprintf("listing-%s", listingID)
}

// EventHandler routes consumed events to registered handlers.
type EventHandler struct {
	onScanApproved  func(context.Context, *models.ScanApprovedEvent) error
	onScanRejected  func(context.Context, *models.ScanRejectedEvent) error
	onLevelUp       func(context.Context, *models.LevelUpEvent) error
	onListingActive func(context.Context, *models.ListingActiveEvent) error
	onListingClosed func(context.Context, *models.ListingClosedEvent) error
	onListingSold   func(context.Context, *models.ListingSoldEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnScanApproved registers a handler for ScanApproved events
func (eh *EventHandler) OnScanApproved(handler func(context.Context, *models.ScanApprovedEvent) error) {
	eh.onScanApproved = handler
}

// OnScanRejected registers a handler for ScanRejected events
func (eh *EventHandler) OnScanRejected(handler func(context.Context, *models.ScanRejectedEvent) error) {
	eh.onScanRejected = handler
}

// OnLevelUp registers a handler for LevelUp events
func (eh *EventHandler) OnLevelUp(handler func(context.Context, *models.LevelUpEvent) error) {
	eh.onLevelUp = handler
}

// OnListingActive registers a handler for ListingActive events
func (eh *EventHandler) OnListingActive(handler func(context.Context, *models.ListingActiveEvent) error) {
	eh.onListingActive = handler
}

// OnListingClosed registers a handler for ListingClosed events
func (eh *EventHandler) OnListingClosed(handler func(context.Context, *models.ListingClosedEvent) error) {
	eh.onListingClosed = handler
}

// OnListingSold registers a handler for ListingSold events
func (eh *EventHandler) OnListingSold(handler func(context.Context, *models.ListingSoldEvent) error) {
	eh.onListingSold = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeScanApproved:
		if eh.onScanApproved != nil {
			var event models.ScanApprovedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ScanApproved event: %w", err)
			}
			return eh.onScanApproved(ctx, &event)
		}

	case models.EventTypeScanRejected:
		if eh.onScanRejected != nil {
			var event models.ScanRejectedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ScanRejected event: %w", err)
			}
			return eh.onScanRejected(ctx, &event)
		}

	case models.EventTypeLevelUp:
		if eh.onLevelUp != nil {
			var event models.LevelUpEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal LevelUp event: %w", err)
			}
			return eh.onLevelUp(ctx, &event)
		}

	case models.EventTypeListingActive:
		if eh.onListingActive != nil {
			var event models.ListingActiveEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ListingActive event: %w", err)
			}
			return eh.onListingActive(ctx, &event)
		}

	case models.EventTypeListingClosed:
		if eh.onListingClosed != nil {
			var event models.ListingClosedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ListingClosed event: %w", err)
			}
			return eh.onListingClosed(ctx, &event)
		}

	case models.EventTypeListingSold:
		if eh.onListingSold != nil {
			var event models.ListingSoldEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ListingSold event: %w", err)
			}
			return eh.onListingSold(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}

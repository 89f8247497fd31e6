package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeScanCreated   = "SCAN_CREATED"
	EventTypeScanApproved  = "SCAN_APPROVED"
	EventTypeScanRejected  = "SCAN_REJECTED"
	EventTypeLevelUp       = "LEVEL_UP"
	EventTypeListingActive = "LISTING_ACTIVE"
	EventTypeListingClosed = "LISTING_CLOSED"
	EventTypeListingSold   = "LISTING_SOLD"
	EventTypeGuestMigrated = "GUEST_MIGRATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ScanCreatedEvent published when a scan record is stored
type ScanCreatedEvent struct {
	BaseEvent
	ScanID      uuid.UUID `json:"scan_id"`
	AccountID   uuid.UUID `json:"account_id"`
	Category    string    `json:"category"`
	BasePoints  int       `json:"base_points"`
	FinalPoints int       `json:"final_points"`
	Status      string    `json:"status"`
}

// ScanApprovedEvent published when a scan reaches approved and is credited
type ScanApprovedEvent struct {
	BaseEvent
	ScanID      uuid.UUID `json:"scan_id"`
	AccountID   uuid.UUID `json:"account_id"`
	Name        string    `json:"name"`
	FinalPoints int       `json:"final_points"`
}

// ScanRejectedEvent published when a reviewer rejects a pending scan
type ScanRejectedEvent struct {
	BaseEvent
	ScanID    uuid.UUID `json:"scan_id"`
	AccountID uuid.UUID `json:"account_id"`
	Reason    string    `json:"reason"`
}

// LevelUpEvent published when a credit raises an account's level
type LevelUpEvent struct {
	BaseEvent
	AccountID uuid.UUID `json:"account_id"`
	OldLevel  int       `json:"old_level"`
	NewLevel  int       `json:"new_level"`
}

// ListingActiveEvent published when a listing becomes publicly visible
type ListingActiveEvent struct {
	BaseEvent
	ListingID uuid.UUID `json:"listing_id"`
	SellerID  uuid.UUID `json:"seller_id"`
	Title     string    `json:"title"`
}

// ListingClosedEvent published when a listing is cancelled or review-rejected
type ListingClosedEvent struct {
	BaseEvent
	ListingID uuid.UUID `json:"listing_id"`
	SellerID  uuid.UUID `json:"seller_id"`
	Reason    string    `json:"reason"`
}

// ListingSoldEvent published when a purchase completes
type ListingSoldEvent struct {
	BaseEvent
	ListingID   uuid.UUID `json:"listing_id"`
	OrderID     uuid.UUID `json:"order_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	SellerID    uuid.UUID `json:"seller_id"`
	PricePoints int       `json:"price_points"`
	Title       string    `json:"title"`
}

// GuestMigratedEvent published after a guest profile is folded into an account
type GuestMigratedEvent struct {
	BaseEvent
	DeviceID      string    `json:"device_id"`
	AccountID     uuid.UUID `json:"account_id"`
	MigratedScans int       `json:"migrated_scans"`
	TotalPoints   int       `json:"total_points"`
}

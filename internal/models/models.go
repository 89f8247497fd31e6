package models

import (
	"time"

	"github.com/google/uuid"
)

// Item categories returned by the classifier. Part of the wire contract:
// the multiplier table and the state machine guards key on these values.
const (
	CategoryClothing    = "clothing"
	CategoryElectronics = "electronics"
	CategoryCompost     = "compost"
	CategoryRecyclable  = "recyclable"
	CategoryHazardous   = "hazardous"
	CategoryOther       = "other"
)

// Disposal choices
const (
	ChoiceDonate  = "donate"
	ChoiceTrade   = "trade"
	ChoiceRecycle = "recycle"
	ChoiceDiscard = "discard"
	ChoiceSpecial = "special"
)

// Scan statuses
const (
	ScanStatusPending  = "pending"
	ScanStatusApproved = "approved"
	ScanStatusRejected = "rejected"
)

// Listing statuses
const (
	ListingStatusDraft         = "draft"
	ListingStatusPendingReview = "pending_review"
	ListingStatusActive        = "active"
	ListingStatusSold          = "sold"
	ListingStatusCancelled     = "cancelled"
)

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// Compliance actions
const (
	ComplianceAutoApprove = "auto_approve"
	ComplianceNeedsReview = "needs_review"
	ComplianceAutoReject  = "auto_reject"
)

// Account holds a user's point balance and recycling stats.
// Mutated by the points ledger only; level is derived from total_points.
type Account struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	TotalPoints   int        `db:"total_points" json:"total_points"`
	Level         int        `db:"level" json:"level"`
	Streak        int        `db:"streak" json:"streak"`
	ItemsRecycled int        `db:"items_recycled" json:"items_recycled"`
	PendingPoints int        `db:"pending_points" json:"pending_points"`
	LastScanAt    *time.Time `db:"last_scan_at" json:"last_scan_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// LevelForPoints derives the level for a balance: one level per 100 points.
func LevelForPoints(totalPoints int) int {
	return totalPoints/100 + 1
}

// ScanRecord represents one classified item owned by the account that scanned it.
type ScanRecord struct {
	ID             uuid.UUID `db:"id" json:"id"`
	AccountID      uuid.UUID `db:"account_id" json:"account_id"`
	Name           string    `db:"name" json:"name"`
	Category       string    `db:"category" json:"category"`
	BasePoints     int       `db:"base_points" json:"base_points"`
	DisposalChoice *string   `db:"disposal_choice" json:"disposal_choice,omitempty"`
	FinalPoints    int       `db:"final_points" json:"final_points"`
	Status         string    `db:"status" json:"status"`
	ImageURL       string    `db:"image_url" json:"image_url,omitempty"`
	ScannedAt      time.Time `db:"scanned_at" json:"scanned_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Listing is a tradeable offer, optionally derived from a scan.
type Listing struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	SellerID     uuid.UUID  `db:"seller_id" json:"seller_id"`
	ScanID       *uuid.UUID `db:"scan_id" json:"scan_id,omitempty"`
	Title        string     `db:"title" json:"title"`
	Description  string     `db:"description" json:"description"`
	Category     string     `db:"category" json:"category"`
	PricePoints  int        `db:"price_points" json:"price_points"`
	Status       string     `db:"status" json:"status"`
	RiskScore    int        `db:"risk_score" json:"risk_score"`
	Condition    string     `db:"condition" json:"condition,omitempty"`
	PickupMethod string     `db:"pickup_method" json:"pickup_method,omitempty"`
	ImageURL     string     `db:"image_url" json:"image_url,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Order records a completed purchase. PricePoints is a snapshot of the
// listing price at purchase time; at most one non-cancelled order per listing.
type Order struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ListingID   uuid.UUID `db:"listing_id" json:"listing_id"`
	BuyerID     uuid.UUID `db:"buyer_id" json:"buyer_id"`
	SellerID    uuid.UUID `db:"seller_id" json:"seller_id"`
	PricePoints int       `db:"price_points" json:"price_points"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Conversation is a message thread keyed by listing plus the two participants.
type Conversation struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ListingID uuid.UUID `db:"listing_id" json:"listing_id"`
	BuyerID   uuid.UUID `db:"buyer_id" json:"buyer_id"`
	SellerID  uuid.UUID `db:"seller_id" json:"seller_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Message is a single message within a conversation.
type Message struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ConversationID uuid.UUID `db:"conversation_id" json:"conversation_id"`
	SenderID       uuid.UUID `db:"sender_id" json:"sender_id"`
	Text           string    `db:"text" json:"text"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Notification is a materialized push for one account, or a broadcast when
// AccountID is nil. Delivery and read tracking are out of scope.
type Notification struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	AccountID *uuid.UUID `db:"account_id" json:"account_id,omitempty"`
	Kind      string     `db:"kind" json:"kind"`
	Title     string     `db:"title" json:"title"`
	Body      string     `db:"body" json:"body"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// GuestProfile is device-local accumulated state awaiting migration.
type GuestProfile struct {
	DeviceID      string     `db:"device_id" json:"device_id"`
	TotalPoints   int        `db:"total_points" json:"total_points"`
	Level         int        `db:"level" json:"level"`
	Streak        int        `db:"streak" json:"streak"`
	ItemsRecycled int        `db:"items_recycled" json:"items_recycled"`
	LastScanAt    *time.Time `db:"last_scan_at" json:"last_scan_at,omitempty"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// GuestScan is one scan accumulated while in guest mode. Its id survives
// migration so a retried migration cannot duplicate history rows.
type GuestScan struct {
	ID             uuid.UUID `db:"id" json:"id"`
	DeviceID       string    `db:"device_id" json:"device_id"`
	Name           string    `db:"name" json:"name"`
	Category       string    `db:"category" json:"category"`
	BasePoints     int       `db:"base_points" json:"base_points"`
	DisposalChoice *string   `db:"disposal_choice" json:"disposal_choice,omitempty"`
	FinalPoints    int       `db:"final_points" json:"final_points"`
	Status         string    `db:"status" json:"status"`
	ScannedAt      time.Time `db:"scanned_at" json:"scanned_at"`
}

// Actor identifies the caller of a core operation: an authenticated account
// or a guest device. Guest-vs-authenticated is an explicit parameter, never
// ambient state.
type Actor struct {
	AccountID uuid.UUID
	DeviceID  string
	Admin     bool
}

// Guest reports whether the actor is an unauthenticated device.
func (a Actor) Guest() bool {
	return a.AccountID == uuid.Nil && a.DeviceID != ""
}

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
